package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.PreviewRowLimit)
	assert.Equal(t, "@every 1m", cfg.SchedulerTick)
	assert.Equal(t, 15*time.Minute, cfg.SchedulerLease)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PREVIEW_ROW_LIMIT", "10")
	t.Setenv("SCHEDULER_LEASE", "90s")
	t.Setenv("WAREHOUSE_DRIVER", "sqlite3")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.PreviewRowLimit)
	assert.Equal(t, 90*time.Second, cfg.SchedulerLease)
	assert.Equal(t, "sqlite3", cfg.WarehouseDriver)
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("SCHEDULER_WORKERS", "many")
	t.Setenv("SCHEDULER_LEASE", "-1m")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.SchedulerWorkers)
	assert.Equal(t, 15*time.Minute, cfg.SchedulerLease)
}
