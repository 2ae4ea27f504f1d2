package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Empty(t, cfg.PostgresDSN)
	assert.Empty(t, cfg.AdminWallets)
	assert.Equal(t, 120, cfg.GeneralRateMax)
	assert.Equal(t, time.Minute, cfg.GeneralRateWindow)
	assert.Equal(t, 10, cfg.ConnectRateMax)
	assert.Equal(t, time.Minute, cfg.ConnectRateWindow)
	assert.Equal(t, 6, cfg.SettleRateMax)
	assert.Equal(t, 60, cfg.QuoteRateMax)
	assert.Equal(t, int64(200), cfg.SpreadBps)
	assert.True(t, cfg.FeeFlat.Equal(decimal.NewFromInt(1)))
	assert.True(t, cfg.TreasuryFloor.Equal(decimal.NewFromInt(100)))
	assert.True(t, cfg.OraclePrice.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, 30*time.Second, cfg.PayoutTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":8080")
	t.Setenv("ADMIN_WALLETS", "wallet-a, wallet-b ,")
	t.Setenv("GENERAL_RATE_MAX", "240")
	t.Setenv("CONNECT_RATE_MAX", "25")
	t.Setenv("BUYBACK_SPREAD_BPS", "150")
	t.Setenv("BUYBACK_FEE_FLAT", "0.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, []string{"wallet-a", "wallet-b"}, cfg.AdminWallets)
	assert.Equal(t, 240, cfg.GeneralRateMax)
	assert.Equal(t, 25, cfg.ConnectRateMax)
	assert.Equal(t, int64(150), cfg.SpreadBps)
	assert.True(t, cfg.FeeFlat.Equal(decimal.NewFromFloat(0.5)))
}

func TestLoadRejectsGarbage(t *testing.T) {
	t.Setenv("CONNECT_RATE_MAX", "lots")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsSpreadOutOfRange(t *testing.T) {
	t.Setenv("BUYBACK_SPREAD_BPS", "10001")
	_, err := Load()
	assert.Error(t, err)
}
