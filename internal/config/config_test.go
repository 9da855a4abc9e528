package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DATABASE_LOCK_TIMEOUT", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("REPORT_TIMEZONE", "")
	t.Setenv("LOW_STOCK_THRESHOLD", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Contains(t, cfg.Database.URL, "stockledger")
	assert.Equal(t, 5*time.Second, cfg.Database.LockTimeout)
	assert.Equal(t, 3, cfg.Database.MaxRetries)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, int64(10), cfg.Report.LowStockThreshold)

	loc, err := cfg.Report.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_LOCK_TIMEOUT", "250ms")
	t.Setenv("DATABASE_MAX_RETRIES", "5")
	t.Setenv("LOW_STOCK_THRESHOLD", "3")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REPORT_CACHE_TTL", "1m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Database.LockTimeout)
	assert.Equal(t, 5, cfg.Database.MaxRetries)
	assert.Equal(t, int64(3), cfg.Report.LowStockThreshold)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, time.Minute, cfg.Redis.CacheTTL)
}

func TestLoadRejectsUnknownTimezone(t *testing.T) {
	t.Setenv("REPORT_TIMEZONE", "Mars/Olympus_Mons")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsNegativeRetries(t *testing.T) {
	t.Setenv("DATABASE_MAX_RETRIES", "-1")

	_, err := Load()
	assert.Error(t, err)
}
