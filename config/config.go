// Package config loads server configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime parameter of the server.
type Config struct {
	ServerPort   int
	DatabasePath string
	JWTSecretKey string
	TokenTTL     time.Duration
	LogLevel     slog.Level

	// AllowedOrigins feeds the CORS layer and the websocket origin check.
	AllowedOrigins []string

	// Public signup rate limit, per client IP.
	SignupRatePerSecond float64
	SignupBurst         int
}

// Load reads configuration from environment variables. A missing .env file is
// not an error; a present but invalid variable is.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:          8080,
		DatabasePath:        "tcc.db",
		TokenTTL:            24 * time.Hour,
		LogLevel:            slog.LevelInfo,
		AllowedOrigins:      []string{"*"},
		SignupRatePerSecond: 1,
		SignupBurst:         5,
	}

	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
		}
		if port <= 0 || port > 65535 {
			return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
		}
		cfg.ServerPort = port
	}

	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}

	cfg.JWTSecretKey = os.Getenv("JWT_SECRET_KEY")
	if cfg.JWTSecretKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	if v := os.Getenv("TOKEN_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid TOKEN_TTL: %w", err)
		}
		if ttl <= 0 {
			return nil, fmt.Errorf("TOKEN_TTL must be positive, got %s", ttl)
		}
		cfg.TokenTTL = ttl
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return nil, err
		}
		cfg.LogLevel = level
	}

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		if len(origins) == 0 {
			return nil, fmt.Errorf("ALLOWED_ORIGINS is set but contains no origins")
		}
		cfg.AllowedOrigins = origins
	}

	if v := os.Getenv("SIGNUP_RATE_PER_SECOND"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r <= 0 {
			return nil, fmt.Errorf("invalid SIGNUP_RATE_PER_SECOND: %q", v)
		}
		cfg.SignupRatePerSecond = r
	}

	if v := os.Getenv("SIGNUP_BURST"); v != "" {
		b, err := strconv.Atoi(v)
		if err != nil || b <= 0 {
			return nil, fmt.Errorf("invalid SIGNUP_BURST: %q", v)
		}
		cfg.SignupBurst = b
	}

	return cfg, nil
}

func parseLogLevel(v string) (slog.Level, error) {
	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid LOG_LEVEL %q (want debug, info, warn or error)", v)
	}
}
