package database

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sirupsen/logrus"
)

// DefaultMigrationsPath holds the study_features_cache schema.
const DefaultMigrationsPath = "./migrations"

// MigrationManager applies the SQL migrations under a directory.
type MigrationManager struct {
	migrate *migrate.Migrate
	path    string
	logger  *logrus.Logger
}

// MigrationsPath resolves path to an absolute directory, defaulting to
// DefaultMigrationsPath.
func MigrationsPath(path string) string {
	if path == "" {
		path = DefaultMigrationsPath
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// NewMigrationManager builds a migration manager for the given source path.
func NewMigrationManager(db *sql.DB, path string, logger *logrus.Logger) (*MigrationManager, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	path = MigrationsPath(path)

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+path, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return &MigrationManager{migrate: m, path: path, logger: logger}, nil
}

// Path returns the migrations directory.
func (mm *MigrationManager) Path() string {
	return mm.path
}

// Up applies every pending migration.
func (mm *MigrationManager) Up() error {
	mm.logger.WithField("path", mm.path).Info("Applying migrations")

	err := mm.migrate.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		mm.logger.Info("No migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	mm.logger.Info("Migrations applied")
	return nil
}

// Down rolls back the given number of migrations.
func (mm *MigrationManager) Down(steps int) error {
	if steps <= 0 {
		steps = 1
	}
	mm.logger.WithField("steps", steps).Info("Rolling back migrations")

	if err := mm.migrate.Steps(-steps); err != nil {
		return fmt.Errorf("failed to rollback %d migrations: %w", steps, err)
	}
	return nil
}

// Version returns the applied version. A database with no migrations
// reports version 0.
func (mm *MigrationManager) Version() (uint, bool, error) {
	version, dirty, err := mm.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// Force sets the version without running migrations, to clear a dirty state.
func (mm *MigrationManager) Force(version int) error {
	mm.logger.Warnf("Forcing migration version to %d", version)
	if err := mm.migrate.Force(version); err != nil {
		return fmt.Errorf("failed to force version %d: %w", version, err)
	}
	return nil
}

// Close releases the source and database handles.
func (mm *MigrationManager) Close() error {
	sourceErr, dbErr := mm.migrate.Close()
	if sourceErr != nil || dbErr != nil {
		return fmt.Errorf("close migrator: source=%v, db=%v", sourceErr, dbErr)
	}
	return nil
}
