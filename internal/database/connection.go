package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Engine names accepted by Config.Engine.
const (
	EngineSQLite   = "sqlite"
	EnginePostgres = "postgres"
)

// Config holds database configuration for either engine.
type Config struct {
	Engine string

	// SQLite
	Path string

	// Postgres
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DB wraps the sql.DB handle with the engine it was opened against.
type DB struct {
	SQL    *sql.DB
	Engine string
	log    *logrus.Logger
}

// Open establishes a database connection for the configured engine. SQLite
// files are created on first open; Postgres connections are verified with a
// ping.
func Open(config Config, logger *logrus.Logger) (*DB, error) {
	switch config.Engine {
	case EngineSQLite, "":
		return openSQLite(config, logger)
	case EnginePostgres:
		return openPostgres(config, logger)
	default:
		return nil, fmt.Errorf("unsupported database engine %q", config.Engine)
	}
}

func openSQLite(config Config, logger *logrus.Logger) (*DB, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("sqlite database path is required")
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// Single-writer batch execution; more than one connection only invites
	// SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %s: %w", pragma, err)
		}
	}

	logger.WithFields(logrus.Fields{
		"engine": EngineSQLite,
		"path":   config.Path,
	}).Info("Database connection established")

	return &DB{SQL: db, Engine: EngineSQLite, log: logger}, nil
}

func openPostgres(config Config, logger *logrus.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		config.Host, config.Port, config.Database, config.Username, config.Password, config.SSLMode,
	)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres database: %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"engine":   EnginePostgres,
		"host":     config.Host,
		"port":     config.Port,
		"database": config.Database,
	}).Info("Database connection established")

	return &DB{SQL: db, Engine: EnginePostgres, log: logger}, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	if db.SQL == nil {
		return nil
	}
	err := db.SQL.Close()
	if err == nil {
		db.log.Info("Database connection closed")
	}
	return err
}

// Health checks the connection.
func (db *DB) Health() error {
	return db.SQL.Ping()
}
