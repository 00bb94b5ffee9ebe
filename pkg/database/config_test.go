package database_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrywarden/scrywarden/pkg/database"
)

func TestLoadConfigFromEnv_RequiresPassword(t *testing.T) {
	t.Setenv("DB_PASSWORD", "")
	_, err := database.LoadConfigFromEnv()
	require.Error(t, err)
}

func TestLoadConfigFromEnv_AppliesDefaultsAndOverrides(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_MAX_OPEN_CONNS", "5")
	t.Setenv("DB_MAX_IDLE_CONNS", "2")

	cfg, err := database.LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, 5, cfg.MaxOpenConns)
	assert.Equal(t, 2, cfg.MaxIdleConns)
}

func TestConfig_Validate_RejectsIdleExceedingOpen(t *testing.T) {
	cfg := database.Config{Password: "x", MaxOpenConns: 1, MaxIdleConns: 5}
	assert.Error(t, cfg.Validate())
}
