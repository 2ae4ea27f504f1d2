// Package config loads runtime settings from the environment with sane
// development defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is everything the process needs at startup.
type Config struct {
	ListenAddr string
	RedisURL   string
	// PostgresDSN selects the durable stores. Empty falls back to the
	// in-memory stores, for local development only.
	PostgresDSN string

	// AdminWallets is the operator allow-list.
	AdminWallets []string

	// Admission pipeline.
	GeneralRateMax    int
	GeneralRateWindow time.Duration
	ConnectRateMax    int
	ConnectRateWindow time.Duration
	SettleRateMax     int
	SettleRateWindow  time.Duration
	QuoteRateMax      int
	QuoteRateWindow   time.Duration
	MaxTrackedKeys    int

	// Buyback pricing.
	SpreadBps     int64
	FeeFlat       decimal.Decimal
	TreasuryFloor decimal.Decimal
	OraclePrice   decimal.Decimal
	PayoutTimeout time.Duration
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:        getEnv("LISTEN_ADDR", ":9000"),
		RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379/0"),
		PostgresDSN:       os.Getenv("POSTGRES_DSN"),
		AdminWallets:      splitList(os.Getenv("ADMIN_WALLETS")),
		GeneralRateMax:    120,
		GeneralRateWindow: time.Minute,
		ConnectRateMax:    10,
		ConnectRateWindow: time.Minute,
		SettleRateMax:     6,
		SettleRateWindow:  time.Minute,
		QuoteRateMax:      60,
		QuoteRateWindow:   time.Minute,
		MaxTrackedKeys:    100_000,
		SpreadBps:         200,
		PayoutTimeout:     30 * time.Second,
	}

	var err error
	if cfg.GeneralRateMax, err = getEnvInt("GENERAL_RATE_MAX", cfg.GeneralRateMax); err != nil {
		return nil, err
	}
	if cfg.ConnectRateMax, err = getEnvInt("CONNECT_RATE_MAX", cfg.ConnectRateMax); err != nil {
		return nil, err
	}
	if cfg.SettleRateMax, err = getEnvInt("SETTLE_RATE_MAX", cfg.SettleRateMax); err != nil {
		return nil, err
	}
	if cfg.QuoteRateMax, err = getEnvInt("QUOTE_RATE_MAX", cfg.QuoteRateMax); err != nil {
		return nil, err
	}
	if cfg.MaxTrackedKeys, err = getEnvInt("MAX_TRACKED_KEYS", cfg.MaxTrackedKeys); err != nil {
		return nil, err
	}

	spread, err := getEnvInt("BUYBACK_SPREAD_BPS", int(cfg.SpreadBps))
	if err != nil {
		return nil, err
	}
	if spread < 0 || spread > 10_000 {
		return nil, fmt.Errorf("BUYBACK_SPREAD_BPS must be between 0 and 10000, got %d", spread)
	}
	cfg.SpreadBps = int64(spread)

	if cfg.FeeFlat, err = getEnvDecimal("BUYBACK_FEE_FLAT", decimal.NewFromInt(1)); err != nil {
		return nil, err
	}
	if cfg.TreasuryFloor, err = getEnvDecimal("TREASURY_FLOOR", decimal.NewFromInt(100)); err != nil {
		return nil, err
	}
	if cfg.OraclePrice, err = getEnvDecimal("ORACLE_FALLBACK_PRICE", decimal.NewFromInt(200)); err != nil {
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

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func getEnvDecimal(key string, fallback decimal.Decimal) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be a decimal number, got %q", key, v)
	}
	return d, nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
