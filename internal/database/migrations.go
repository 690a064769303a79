package database

import (
	"embed"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFiles embed.FS

// Migrate runs all pending migrations for the database's engine. The
// migration source is embedded, so callers never depend on a migrations
// directory existing on disk.
func Migrate(db *DB, logger *logrus.Logger) error {
	m, err := newMigrator(db)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil {
		if err == migrate.ErrNoChange {
			logger.Info("No pending migrations to run")
			return nil
		}
		return fmt.Errorf("running migrations up: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		logger.WithError(err).Warn("Could not get migration version after up")
	} else {
		logger.WithFields(logrus.Fields{
			"version": version,
			"dirty":   dirty,
		}).Info("Migrations completed successfully")
	}

	return nil
}

// MigrateDown rolls back the most recent migration.
func MigrateDown(db *DB, logger *logrus.Logger) error {
	m, err := newMigrator(db)
	if err != nil {
		return err
	}

	if err := m.Steps(-1); err != nil {
		if err == migrate.ErrNoChange {
			logger.Info("No migrations to roll back")
			return nil
		}
		return fmt.Errorf("rolling back migration: %w", err)
	}

	logger.Info("Rolled back one migration")
	return nil
}

func newMigrator(db *DB) (*migrate.Migrate, error) {
	sub, err := fs.Sub(migrationFiles, "migrations/"+db.Engine)
	if err != nil {
		return nil, fmt.Errorf("selecting migrations for %s: %w", db.Engine, err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("creating migration source: %w", err)
	}

	var driver migratedb.Driver
	switch db.Engine {
	case EngineSQLite:
		driver, err = migratesqlite.WithInstance(db.SQL, &migratesqlite.Config{})
	case EnginePostgres:
		driver, err = migratepostgres.WithInstance(db.SQL, &migratepostgres.Config{})
	default:
		return nil, fmt.Errorf("unsupported database engine %q", db.Engine)
	}
	if err != nil {
		return nil, fmt.Errorf("creating migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, db.Engine, driver)
	if err != nil {
		return nil, fmt.Errorf("creating migration instance: %w", err)
	}
	return m, nil
}
