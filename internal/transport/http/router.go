package http

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meridianhq/platform/internal/service"
	apierrors "github.com/meridianhq/platform/pkg/errors"
)

// Dependencies bundles the services the static HTTP surface is built from.
// The dynamic /api/<table> surface is assembled separately by
// internal/routefabric.
type Dependencies struct {
	Identity   *service.IdentityStore
	Tokens     *service.TokenService
	Authz      *service.Authz
	Registry   *service.ModelRegistry
	Suggestor  *service.RelationSuggestor
	Audit      *service.AuditLog
	Dev        bool
}

// NewRouter builds the gin engine for the static surface: auth, model
// administration, RBAC, and support (spec.md §6.1).
func NewRouter(deps Dependencies) *gin.Engine {
	if !deps.Dev {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())

	requireAuth := RequireAuth(deps.Tokens)

	authHandler := NewAuthHandler(deps.Identity, deps.Tokens, deps.Authz)
	authHandler.Register(r, requireAuth)

	authed := r.Group("/")
	authed.Use(requireAuth)

	NewModelHandler(deps.Registry, deps.Authz, deps.Suggestor).Register(authed)
	NewRBACHandler(deps.Authz, deps.Identity, deps.Registry).Register(authed)
	NewSupportHandler(deps.Audit, deps.Registry, deps.Identity, deps.Authz).Register(authed)

	r.NoRoute(func(c *gin.Context) {
		RespondError(c, apierrors.NewNotFoundError("route", c.Request.URL.Path))
	})

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Printf("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
