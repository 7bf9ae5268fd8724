package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	DBSource string
	Port     string
	Env      string
	LogLevel string

	Backend         string
	SystemAccountID uuid.UUID
	LedgerID        uint32
	AccountCode     uint16

	RedisAddr      string
	IdempotencyTTL time.Duration

	StoreTimeout       time.Duration
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		DBSource:  os.Getenv("DB_SOURCE"),
		Port:      getEnv("SERVER_PORT", "8080"),
		Env:       getEnv("ENVIRONMENT", "development"),
		LogLevel:  os.Getenv("LOG_LEVEL"),
		Backend:   getEnv("LEDGER_BACKEND", BackendPostgres),
		RedisAddr: os.Getenv("REDIS_ADDR"),
	}

	switch cfg.Backend {
	case BackendPostgres:
		if cfg.DBSource == "" {
			return nil, fmt.Errorf("DB_SOURCE environment variable is required")
		}
	case BackendMemory:
	default:
		return nil, fmt.Errorf("LEDGER_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMemory, cfg.Backend)
	}

	var err error
	if cfg.SystemAccountID, err = uuid.Parse(getEnv("SYSTEM_ACCOUNT_ID", "00000000-0000-0000-0000-0000000003e7")); err != nil {
		return nil, fmt.Errorf("SYSTEM_ACCOUNT_ID: %w", err)
	}
	if cfg.SystemAccountID == uuid.Nil {
		return nil, fmt.Errorf("SYSTEM_ACCOUNT_ID must not be the nil uuid")
	}

	ledger, err := parseUint("LEDGER_ID", "1", 32)
	if err != nil {
		return nil, err
	}
	cfg.LedgerID = uint32(ledger)

	code, err := parseUint("ACCOUNT_CODE", "1", 16)
	if err != nil {
		return nil, err
	}
	cfg.AccountCode = uint16(code)

	failures, err := parseUint("BREAKER_MAX_FAILURES", "5", 32)
	if err != nil {
		return nil, err
	}
	cfg.BreakerMaxFailures = uint32(failures)

	if cfg.IdempotencyTTL, err = parseDuration("IDEMPOTENCY_TTL", "24h"); err != nil {
		return nil, err
	}
	if cfg.StoreTimeout, err = parseDuration("STORE_TIMEOUT", "5s"); err != nil {
		return nil, err
	}
	if cfg.BreakerOpenTimeout, err = parseDuration("BREAKER_OPEN_TIMEOUT", "30s"); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseUint(key, fallback string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(getEnv(key, fallback), 10, bits)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if v == 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return v, nil
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
