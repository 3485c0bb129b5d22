package database

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/lib/pq"
)

func TestMigrationsPath(t *testing.T) {
	abs, err := filepath.Abs(DefaultMigrationsPath)
	require.NoError(t, err)
	assert.Equal(t, abs, MigrationsPath(""))
	assert.Equal(t, "/srv/migrations", MigrationsPath("/srv/migrations"))
}

func TestMigrationFilesArePaired(t *testing.T) {
	ups, err := filepath.Glob("../../migrations/*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)

	for _, up := range ups {
		down := up[:len(up)-len(".up.sql")] + ".down.sql"
		_, err := os.Stat(down)
		assert.NoError(t, err, "missing down migration for %s", up)
	}
}

func TestMigrationManager_StudyFeaturesCache(t *testing.T) {
	dbURL := os.Getenv("TEST_DB_URL")
	if dbURL == "" {
		t.Skip("Skipping migration test: TEST_DB_URL not set")
	}

	db, err := sql.Open("postgres", dbURL)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Ping())

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	manager, err := NewMigrationManager(db, "../../migrations", logger)
	require.NoError(t, err)
	defer manager.Close()

	require.NoError(t, manager.Up())
	version, dirty, err := manager.Version()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.GreaterOrEqual(t, version, uint(1))

	var exists bool
	err = db.QueryRow("SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'study_features_cache')").Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, manager.Down(1))
	err = db.QueryRow("SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'study_features_cache')").Scan(&exists)
	require.NoError(t, err)
	assert.False(t, exists)
}
