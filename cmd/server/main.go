package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/meridianhq/platform/internal/config"
	"github.com/meridianhq/platform/internal/domain"
	"github.com/meridianhq/platform/internal/routefabric"
	"github.com/meridianhq/platform/internal/service"
	"github.com/meridianhq/platform/internal/storage/mysql"
	transporthttp "github.com/meridianhq/platform/internal/transport/http"
	"github.com/meridianhq/platform/pkg/auth"
	"github.com/meridianhq/platform/pkg/constants"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: could not load .env file: %v", err)
	}
	cfg := config.Load()

	ctx := context.Background()

	conn, err := mysql.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	db := mysql.New(conn)
	log.Println("database connection established")

	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}
	repos := db.Repositories()

	permissions := service.NewPermissionCatalog(repos.Permissions)
	if err := permissions.Seed(ctx); err != nil {
		log.Fatalf("failed to seed permission catalog: %v", err)
	}

	identity := service.NewIdentityStore(repos.Users, repos.Roles, repos.RefreshTokens, cfg.HashRounds)
	if err := seedRolesAndAdmin(ctx, identity, cfg); err != nil {
		log.Fatalf("failed to seed roles/admin user: %v", err)
	}

	audit := service.NewAuditLog(repos.Audit)
	authz := service.NewAuthz(repos.Users, repos.Models, repos.Records, repos.Permissions, repos.RolePermissions, repos.UserPermissions, repos.ModelRolePermissions)
	artifacts := service.NewArtifactWriter(cfg.ModelsDir)
	registry := service.NewModelRegistry(db, repos.Models, repos.Records, repos.ModelRolePermissions, repos.Roles, permissions, artifacts, audit)
	records := service.NewRecordService(db, repos.Models, repos.Records, identity, audit, cfg.HashRounds)
	suggestor := service.NewRelationSuggestor(repos.Models, repos.Records)

	tokens, err := service.NewTokenService(db, identity, audit, cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTIssuer, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, cfg.HashRounds)
	if err != nil {
		log.Fatalf("failed to initialize token service: %v", err)
	}

	staticRouter := transporthttp.NewRouter(transporthttp.Dependencies{
		Identity:  identity,
		Tokens:    tokens,
		Authz:     authz,
		Registry:  registry,
		Suggestor: suggestor,
		Audit:     audit,
		Dev:       cfg.IsDevelopment(),
	})

	fabric := routefabric.NewFabric(cfg.ModelsDir, records, authz, tokens)
	watcher, err := routefabric.NewWatcher(fabric)
	if err != nil {
		log.Fatalf("failed to initialize route fabric watcher: %v", err)
	}
	if err := watcher.Start(cfg.ModelsDir); err != nil {
		log.Fatalf("failed to build initial dynamic route fabric: %v", err)
	}
	log.Println("dynamic route fabric built and watching", cfg.ModelsDir)

	mux := http.NewServeMux()
	mux.Handle("/api/", fabric)
	mux.Handle("/", staticRouter)

	cleanup := cron.New()
	if _, err := cleanup.AddFunc("@every 1h", func() {
		n, err := identity.DeleteExpiredRefreshTokens(context.Background(), 0)
		if err != nil {
			log.Printf("refresh-token cleanup failed: %v", err)
			return
		}
		if n > 0 {
			log.Printf("refresh-token cleanup removed %d expired tokens", n)
		}
	}); err != nil {
		log.Fatalf("failed to schedule refresh-token cleanup: %v", err)
	}
	cleanup.Start()

	srv := &http.Server{
		Addr:    "0.0.0.0:" + itoa(cfg.HTTPPort),
		Handler: mux,
	}

	go func() {
		log.Printf("meridian platform listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced to shutdown: %v", err)
	}

	cleanup.Stop()
	if err := watcher.Stop(); err != nil {
		log.Printf("error stopping route fabric watcher: %v", err)
	}
	if err := db.Close(); err != nil {
		log.Printf("error closing database: %v", err)
	}

	log.Println("server exiting")
}

// seedRolesAndAdmin ensures the built-in Admin/Viewer roles and, if
// SEED_ADMIN_PASSWORD is set, a first Admin user exist. The Admin role
// bypasses every authorization check (domain.User.IsAdmin), so it needs no
// permission grants of its own.
func seedRolesAndAdmin(ctx context.Context, identity *service.IdentityStore, cfg *config.Config) error {
	for _, name := range []string{constants.AdminRoleName, constants.DefaultRoleName} {
		if _, err := identity.FindRoleByName(ctx, name); err == nil {
			continue
		}
		if _, err := identity.CreateRole(ctx, name); err != nil {
			return err
		}
	}

	if cfg.SeedAdminPassword == "" {
		return nil
	}
	if _, err := identity.FindUserByEmail(ctx, cfg.SeedAdminEmail); err == nil {
		return nil
	}
	if err := auth.ValidatePasswordStrength(cfg.SeedAdminPassword); err != nil {
		return err
	}
	_, err := identity.RegisterUser(ctx, cfg.SeedAdminEmail, cfg.SeedAdminPassword, "Administrator", constants.AdminRoleName)
	return err
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

var _ = domain.ModelDefinition{}
