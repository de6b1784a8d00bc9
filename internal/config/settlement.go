package config

import (
	"os"
	"time"

	"github.com/shopspring/decimal"
)

type SettlementConfig struct {
	// FeeAdminID names the admin whose collection account receives fees.
	// Empty means the earliest registered admin.
	FeeAdminID     string
	SeedBalanceMin decimal.Decimal
	SeedBalanceMax decimal.Decimal
	Currency       string
	InstitutionBIC string
	IdempotencyTTL time.Duration
	ScopeTimeout   time.Duration
	ReceiptTTL     time.Duration
	// ReceiptMasterKey unlocks the receipt signing key store. Empty
	// disables receipt signatures.
	ReceiptMasterKey string
	KeyStorePath     string
}

func LoadSettlementConfig() *SettlementConfig {
	return &SettlementConfig{
		FeeAdminID:     getEnv("SETTLEMENT_FEE_ADMIN_ID", ""),
		SeedBalanceMin: getEnvAsDecimal("SETTLEMENT_SEED_BALANCE_MIN", decimal.NewFromInt(1)),
		SeedBalanceMax: getEnvAsDecimal("SETTLEMENT_SEED_BALANCE_MAX", decimal.NewFromInt(300001)),
		Currency:       getEnv("SETTLEMENT_CURRENCY", "INR"),
		InstitutionBIC: getEnv("SETTLEMENT_INSTITUTION_BIC", "CAMPUSINXXX"),
		IdempotencyTTL: getEnvAsDuration("SETTLEMENT_IDEMPOTENCY_TTL", 24*time.Hour),
		ScopeTimeout:   getEnvAsDuration("SETTLEMENT_SCOPE_TIMEOUT", 5*time.Second),
		ReceiptTTL:     getEnvAsDuration("SETTLEMENT_RECEIPT_TTL", 30*24*time.Hour),

		ReceiptMasterKey: getEnv("HSM_MASTER_KEY", ""),
		KeyStorePath:     getEnv("HSM_KEYSTORE_PATH", "./keystore"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsDecimal(key string, defaultVal decimal.Decimal) decimal.Decimal {
	if val := os.Getenv(key); val != "" {
		if d, err := decimal.NewFromString(val); err == nil {
			return d
		}
	}
	return defaultVal
}
