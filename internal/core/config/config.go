package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	Env         string

	// CardVaultKey is the 32-byte hex-encoded key for the card encryption
	// boundary.
	CardVaultKey  string
	WebhookURL    string
	WebhookSecret string

	// Risk & verification tunables. Caps live here, not in the state
	// machines.
	HighRiskThreshold int
	SMSResendCap      int
	CodeMismatchCap   int
	ResendCooldown    time.Duration

	// Lifecycle sweeps.
	InactivityWindow   time.Duration
	SweepInterval      time.Duration
	SettleAfter        time.Duration
	SettlementInterval time.Duration

	// Withdrawal fees. Crypto pays a flat fee in minor units; bank
	// transfers pay a percentage expressed in basis points.
	CryptoFlatFee   int64
	BankFeeBasisPts int64
}

// LoadConfig reads .env file and returns a Config struct
func LoadConfig() *Config {
	// The .env file might not exist in production, which is fine.
	if err := godotenv.Load(); err != nil {
		slog.Warn("No .env file found, relying on system env variables")
	}

	return &Config{
		Port:        getEnv("PORT", "3000"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		Env:         getEnv("ENV", "development"),

		CardVaultKey:  getEnv("CARD_VAULT_KEY", ""),
		WebhookURL:    getEnv("WEBHOOK_URL", ""),
		WebhookSecret: getEnv("WEBHOOK_SECRET", ""),

		HighRiskThreshold: getEnvInt("HIGH_RISK_THRESHOLD", 70),
		SMSResendCap:      getEnvInt("SMS_RESEND_CAP", 3),
		CodeMismatchCap:   getEnvInt("CODE_MISMATCH_CAP", 3),
		ResendCooldown:    getEnvDuration("RESEND_COOLDOWN", 60*time.Second),

		InactivityWindow:   getEnvDuration("INACTIVITY_WINDOW", 30*time.Minute),
		SweepInterval:      getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
		SettleAfter:        getEnvDuration("SETTLE_AFTER", 24*time.Hour),
		SettlementInterval: getEnvDuration("SETTLEMENT_INTERVAL", 15*time.Minute),

		CryptoFlatFee:   getEnvInt64("CRYPTO_FLAT_FEE", 1500),
		BankFeeBasisPts: getEnvInt64("BANK_FEE_BASIS_PTS", 50),
	}
}

// Helper to get env with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		slog.Warn("Invalid integer in env, using default", "key", key)
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
		slog.Warn("Invalid integer in env, using default", "key", key)
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("Invalid duration in env, using default", "key", key)
	}
	return fallback
}
