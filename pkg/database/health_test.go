package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrywarden/scrywarden/pkg/database"
	util "github.com/scrywarden/scrywarden/test/util"
)

func TestHealth_ReportsStatsForAReachablePool(t *testing.T) {
	pool := util.SetupTestDatabase(t)

	status, err := database.Health(context.Background(), pool)
	require.NoError(t, err)
	assert.Equal(t, "healthy", status.Status)
	assert.GreaterOrEqual(t, status.MaxConns, int32(1))
}
