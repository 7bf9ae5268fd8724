package config

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_SOURCE", "postgres://localhost/ledger")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, BackendPostgres, cfg.Backend)
	assert.Equal(t, uuid.MustParse("00000000-0000-0000-0000-0000000003e7"), cfg.SystemAccountID)
	assert.Equal(t, uint32(1), cfg.LedgerID)
	assert.Equal(t, uint16(1), cfg.AccountCode)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Equal(t, uint32(5), cfg.BreakerMaxFailures)
	assert.Equal(t, 30*time.Second, cfg.BreakerOpenTimeout)
}

func TestLoad_MemoryBackendNeedsNoDatabase(t *testing.T) {
	t.Setenv("DB_SOURCE", "")
	t.Setenv("LEDGER_BACKEND", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Backend)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing db source", map[string]string{"DB_SOURCE": ""}},
		{"unknown backend", map[string]string{"LEDGER_BACKEND": "tigerbeetle"}},
		{"bad system account", map[string]string{"SYSTEM_ACCOUNT_ID": "999"}},
		{"nil system account", map[string]string{"SYSTEM_ACCOUNT_ID": uuid.Nil.String()}},
		{"ledger overflow", map[string]string{"LEDGER_ID": "5000000000"}},
		{"zero account code", map[string]string{"ACCOUNT_CODE": "0"}},
		{"bad ttl", map[string]string{"IDEMPOTENCY_TTL": "tomorrow"}},
		{"negative timeout", map[string]string{"STORE_TIMEOUT": "-1s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DB_SOURCE", "postgres://localhost/ledger")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
