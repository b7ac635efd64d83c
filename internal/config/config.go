package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv string
	Port   int

	// Postgres (pgxpool DSN)
	DBDSN string

	// Session credential signing (tokens this service mints)
	JWTSecret string
	JWTIssuer string
	TokenTTL  time.Duration

	// Discord OAuth2 application
	DiscordClientID     string
	DiscordClientSecret string
	DiscordRedirectURI  string

	// Privy directory + published key set (inbound bearer credentials)
	PrivyAPIURL      string
	PrivyAppSecret   string
	PrivyJWKSURL     string
	PrivyTokenIssuer string

	// Outbound HTTP calls (Discord, Privy, key set)
	HTTPClientTimeout time.Duration

	// Redis
	RedisAddr string
	RedisPass string
	RedisDB   int

	// Rate limit
	RLEnabled bool
	RLLimit   int
	RLWindow  time.Duration

	// Logging
	LogLevel string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.AppEnv = getEnv("APP_ENV", "dev")
	cfg.Port = getInt("PORT", 8080)

	// --- Postgres: prefer DATABASE_URL if present, else build from POSTGRES_*
	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL != "" {
		cfg.DBDSN = dbURL
	} else {
		addr := getEnv("POSTGRES_ADDR", "")
		user := getEnv("POSTGRES_USER", "")
		pass := getEnv("POSTGRES_PASSWORD", "")
		db := getEnv("POSTGRES_DB", "")
		sslmode := getEnv("POSTGRES_SSLMODE", "disable")
		cfg.DBDSN = buildPostgresURL(addr, user, pass, db, sslmode)
	}

	// --- Session credential signing
	cfg.JWTSecret = getEnv("JWT_SECRET", "")
	cfg.JWTIssuer = getEnv("JWT_ISSUER", "privy-proxy")
	cfg.TokenTTL = getDuration("SESSION_TOKEN_TTL", time.Hour)

	// --- Discord
	cfg.DiscordClientID = getEnv("DISCORD_CLIENT_ID", "")
	cfg.DiscordClientSecret = getEnv("DISCORD_CLIENT_SECRET", "")
	cfg.DiscordRedirectURI = getEnv("DISCORD_REDIRECT_URI", "")

	// --- Privy
	cfg.PrivyAPIURL = getEnv("PRIVY_API_URL", "https://auth.privy.io")
	cfg.PrivyAppSecret = getEnv("PRIVY_APP_SECRET", "")
	cfg.PrivyJWKSURL = getEnv("PRIVY_JWKS_URL", "")
	cfg.PrivyTokenIssuer = getEnv("PRIVY_TOKEN_ISSUER", "")

	// --- Outbound HTTP
	cfg.HTTPClientTimeout = getDuration("HTTP_CLIENT_TIMEOUT", 10*time.Second)

	// --- Redis
	cfg.RedisAddr = getEnv("REDIS_ADDR", "127.0.0.1:6379")
	cfg.RedisPass = getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB = getInt("REDIS_DB", 0)

	// --- Rate limit
	cfg.RLEnabled = getBool("RL_ENABLED", true)
	cfg.RLLimit = getInt("RL_REQUESTS_LIMIT", 100)
	cfg.RLWindow = time.Duration(getInt("RL_WINDOW_SECONDS", 60)) * time.Second

	// --- Logging
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	// --- Validation (fail fast)
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("missing database config: provide DATABASE_URL or POSTGRES_ADDR/POSTGRES_USER/POSTGRES_PASSWORD/POSTGRES_DB")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("missing JWT_SECRET")
	}
	if cfg.DiscordClientID == "" || cfg.DiscordClientSecret == "" {
		return nil, fmt.Errorf("missing DISCORD_CLIENT_ID / DISCORD_CLIENT_SECRET")
	}
	if cfg.DiscordRedirectURI == "" {
		return nil, fmt.Errorf("missing DISCORD_REDIRECT_URI (must match the registered redirect URI exactly)")
	}
	if cfg.PrivyAppSecret == "" {
		return nil, fmt.Errorf("missing PRIVY_APP_SECRET")
	}
	if cfg.PrivyJWKSURL == "" {
		return nil, fmt.Errorf("missing PRIVY_JWKS_URL")
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("SESSION_TOKEN_TTL must be positive")
	}

	return cfg, nil
}

// buildPostgresURL builds a safe postgres URL DSN (handles special characters).
func buildPostgresURL(addr, user, pass, db, sslmode string) string {
	// If any critical fields missing, return empty and let validation handle it.
	if strings.TrimSpace(addr) == "" || strings.TrimSpace(user) == "" || strings.TrimSpace(db) == "" {
		return ""
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   strings.TrimSpace(addr),
		Path:   "/" + strings.TrimPrefix(strings.TrimSpace(db), "/"),
	}
	if pass != "" {
		u.User = url.UserPassword(user, pass)
	} else {
		u.User = url.User(user)
	}

	q := url.Values{}
	if strings.TrimSpace(sslmode) != "" {
		q.Set("sslmode", strings.TrimSpace(sslmode))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getBool(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		// prefer failing fast over silent misconfig
		panic(fmt.Errorf("invalid boolean env %s=%q", k, v))
	}
}

func getDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
