// Package config builds runtime configuration from the environment so main
// stays lean. An optional .env file seeds variables during development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	platformstrings "portico/pkg/platform/strings"
)

// Server captures process-level configuration for the admin portal engine.
type Server struct {
	Addr            string
	DatabaseURL     string
	RedisURL        string
	JWTSigningKey   string
	TokenTTL        time.Duration
	RefreshTokenTTL time.Duration
	ResetTokenTTL   time.Duration
	SessionMaxAge   time.Duration
	CleanupInterval time.Duration
	SignInRatePerIP float64
	SignInBurst     int
	AllowedOrigins  []string
}

const (
	defaultAddr            = ":8080"
	defaultTokenTTL        = 15 * time.Minute
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
	defaultResetTokenTTL   = 24 * time.Hour
	defaultSessionMaxAge   = 30 * 24 * time.Hour
	defaultCleanupInterval = 5 * time.Minute
	defaultSignInRate      = 5.0
	defaultSignInBurst     = 10
)

// Load reads an optional .env file and builds a Server config from the
// environment. A missing JWT signing key is a startup error: the engine must
// never run with an unusable signer.
func Load() (Server, error) {
	// Best effort: a missing .env is the normal production case.
	_ = godotenv.Load()

	cfg := Server{
		Addr:            envOr("PORTICO_ADDR", defaultAddr),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		JWTSigningKey:   os.Getenv("JWT_SIGNING_KEY"),
		TokenTTL:        envDuration("TOKEN_TTL", defaultTokenTTL),
		RefreshTokenTTL: envDuration("REFRESH_TOKEN_TTL", defaultRefreshTokenTTL),
		ResetTokenTTL:   envDuration("RESET_TOKEN_TTL", defaultResetTokenTTL),
		SessionMaxAge:   envDuration("SESSION_MAX_AGE", defaultSessionMaxAge),
		CleanupInterval: envDuration("CLEANUP_INTERVAL", defaultCleanupInterval),
		SignInRatePerIP: envFloat("SIGNIN_RATE_PER_IP", defaultSignInRate),
		SignInBurst:     envInt("SIGNIN_BURST", defaultSignInBurst),
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = platformstrings.DedupeAndTrim(strings.Split(origins, ","))
	}

	if cfg.JWTSigningKey == "" {
		return Server{}, fmt.Errorf("JWT_SIGNING_KEY must be set")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
