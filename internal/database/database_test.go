package database

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cramwell/backend-go/internal/config"
)

func TestOpenPostgres_RequiresURL(t *testing.T) {
	_, err := OpenPostgres(config.DatabaseConfig{})
	assert.Error(t, err)
}

func TestOpenPostgresWithConn(t *testing.T) {
	conn, _, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	db, err := OpenPostgresWithConn(conn)
	require.NoError(t, err)
	assert.True(t, db.Config.SkipDefaultTransaction)
}

func TestApplyPoolDefaults(t *testing.T) {
	conn, _, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	applyPool(conn, config.DatabaseConfig{})
	assert.Equal(t, defaultMaxOpenConns, conn.Stats().MaxOpenConnections)

	applyPool(conn, config.DatabaseConfig{MaxOpenConns: 7})
	assert.Equal(t, 7, conn.Stats().MaxOpenConnections)
}

func TestPoolMetrics_Collect(t *testing.T) {
	conn, _, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	reg := prometheus.NewRegistry()
	pm := NewPoolMetrics(conn, reg, nil)
	pm.Collect()

	assert.Equal(t, float64(0), testutil.ToFloat64(pm.connections.WithLabelValues("in_use")))
	count, err := testutil.GatherAndCount(reg, "cramwell_cache_db_connections")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
