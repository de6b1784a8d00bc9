package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadSettlementConfig_Defaults(t *testing.T) {
	for _, key := range []string{
		"SETTLEMENT_FEE_ADMIN_ID",
		"SETTLEMENT_SEED_BALANCE_MIN",
		"SETTLEMENT_SEED_BALANCE_MAX",
		"SETTLEMENT_CURRENCY",
		"SETTLEMENT_IDEMPOTENCY_TTL",
		"SETTLEMENT_SCOPE_TIMEOUT",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadSettlementConfig()

	assert.Empty(t, cfg.FeeAdminID)
	assert.Equal(t, "1", cfg.SeedBalanceMin.String())
	assert.Equal(t, "300001", cfg.SeedBalanceMax.String())
	assert.Equal(t, "INR", cfg.Currency)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, 5*time.Second, cfg.ScopeTimeout)
}

func TestLoadSettlementConfig_FromEnv(t *testing.T) {
	t.Setenv("SETTLEMENT_FEE_ADMIN_ID", "bursar-01")
	t.Setenv("SETTLEMENT_SEED_BALANCE_MAX", "5000.50")
	t.Setenv("SETTLEMENT_SCOPE_TIMEOUT", "750ms")
	t.Setenv("SETTLEMENT_IDEMPOTENCY_TTL", "not-a-duration")

	cfg := LoadSettlementConfig()

	assert.Equal(t, "bursar-01", cfg.FeeAdminID)
	assert.Equal(t, "5000.5", cfg.SeedBalanceMax.String())
	assert.Equal(t, 750*time.Millisecond, cfg.ScopeTimeout)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
}
