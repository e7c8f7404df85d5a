// Package config loads engine settings from environment variables, with a
// local .env file picked up for development.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config is the full runtime configuration.
type Config struct {
	Addr            string          // listen address
	DatabaseURL     string          // empty → in-memory store
	RedisURL        string          // empty → no cache layer
	AdminToken      string          // empty → admin endpoints disabled
	StartingBalance decimal.Decimal // play-money grant per new profile
	DefaultPoolK    decimal.Decimal // liquidity constant for new markets
	LockTimeout     time.Duration   // per-market lock acquire bound
	CacheTTL        time.Duration   // redis entry lifetime
}

// Load reads configuration from the environment. Missing values fall back
// to development defaults; nothing here is fatal.
func Load() Config {
	_ = godotenv.Load()

	addr := strings.TrimSpace(os.Getenv("PORT"))
	if addr == "" {
		addr = "8080"
	}
	if !strings.HasPrefix(addr, ":") {
		addr = ":" + addr
	}

	return Config{
		Addr:            addr,
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisURL:        strings.TrimSpace(os.Getenv("REDIS_URL")),
		AdminToken:      strings.TrimSpace(os.Getenv("ADMIN_TOKEN")),
		StartingBalance: envDecimal("STARTING_BALANCE", decimal.NewFromInt(1000)),
		DefaultPoolK:    envDecimal("DEFAULT_POOL_K", decimal.NewFromInt(10000)),
		LockTimeout:     envDuration("LOCK_TIMEOUT", 5*time.Second),
		CacheTTL:        envDuration("CACHE_TTL", 30*time.Second),
	}
}

func envDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.LessThanOrEqual(decimal.Zero) {
		return fallback
	}
	return d
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
