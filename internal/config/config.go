// Package config handles application configuration.
// Configuration is loaded from environment variables with sensible defaults,
// per spec.md §6.3.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	HTTPPort int

	DatabaseURL string

	ModelsDir            string
	ModelWatchDebounceMS int

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	HashRounds      int

	JWTIssuer         string
	JWTPrivateKeyPath string
	JWTPublicKeyPath  string

	CookieSecure   bool
	CookieSameSite string

	SeedAdminEmail    string
	SeedAdminPassword string

	Environment string
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		HTTPPort: getEnvInt("HTTP_PORT", 8080),

		DatabaseURL: getEnv("DATABASE_URL", "root@tcp(127.0.0.1:3306)/platform?charset=utf8mb4&parseTime=True&loc=Local"),

		ModelsDir:            getEnv("MODELS_DIR", "./models"),
		ModelWatchDebounceMS: getEnvInt("MODEL_WATCH_DEBOUNCE_MS", 250),

		AccessTokenTTL:  getEnvDurationSeconds("ACCESS_TOKEN_TTL", 900*time.Second),
		RefreshTokenTTL: getEnvDurationSeconds("REFRESH_TOKEN_TTL", 2_592_000*time.Second),
		HashRounds:      getEnvInt("HASH_ROUNDS", 12),

		JWTIssuer:         getEnv("JWT_ISSUER", "meridian-platform"),
		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./keys/jwt_private.pem"),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./keys/jwt_public.pem"),

		CookieSecure:   getEnvBool("COOKIE_SECURE", true),
		CookieSameSite: getEnv("COOKIE_SAMESITE", "Lax"),

		SeedAdminEmail:    getEnv("SEED_ADMIN_EMAIL", "admin@meridian.local"),
		SeedAdminPassword: getEnv("SEED_ADMIN_PASSWORD", ""),

		Environment: getEnv("ENVIRONMENT", "dev"),
	}
}

// IsDevelopment reports whether stack traces may be included in error
// responses (spec.md §7: "Stack traces are included only in development
// mode").
func (c *Config) IsDevelopment() bool {
	return c.Environment == "dev"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDurationSeconds(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return time.Duration(i) * time.Second
		}
	}
	return defaultValue
}
