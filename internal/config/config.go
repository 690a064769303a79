// Package config provides configuration management for the curator CLI.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/genepanel-curator/internal/database"
)

// Config is the complete curator configuration.
type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"`
	PanelSource PanelSourceConfig `mapstructure:"panel_source"`
	Import      ImportConfig      `mapstructure:"import"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// DatabaseConfig selects and parameterizes the storage engine.
type DatabaseConfig struct {
	Engine   string `mapstructure:"engine"` // sqlite or postgres
	Path     string `mapstructure:"path"`   // sqlite file path
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// PanelSourceConfig parameterizes the panel registry client.
type PanelSourceConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit int           `mapstructure:"rate_limit"`
	CacheSize int           `mapstructure:"cache_size"`
}

// ImportConfig carries the vocabulary constants the importer filters on.
type ImportConfig struct {
	GreenConfidence int      `mapstructure:"green_confidence"`
	OmitHGNCIDs     []string `mapstructure:"omit_hgnc_ids"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// Manager loads and validates configuration using Viper.
type Manager struct {
	config *Config
}

// NewManager creates a configuration manager, loading from config file,
// environment (CURATOR_ prefix) and defaults in that order of precedence.
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

func (m *Manager) loadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/genepanel-curator/")

	viper.SetEnvPrefix("CURATOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	m.setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; defaults and environment apply
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

func (m *Manager) setDefaults() {
	viper.SetDefault("database.engine", database.EngineSQLite)
	viper.SetDefault("database.path", "curator.db")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "genepanel_curator")
	viper.SetDefault("database.username", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.ssl_mode", "disable")

	viper.SetDefault("panel_source.base_url", "https://panelapp.genomicsengland.co.uk/api/v1")
	viper.SetDefault("panel_source.timeout", "30s")
	viper.SetDefault("panel_source.rate_limit", 5)
	viper.SetDefault("panel_source.cache_size", 256)

	viper.SetDefault("import.green_confidence", 3)
	viper.SetDefault("import.omit_hgnc_ids", []string{})

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}

// GetConfig returns the complete configuration.
func (m *Manager) GetConfig() *Config {
	return m.config
}

// Validate checks the loaded configuration for inconsistencies.
func (m *Manager) Validate() error {
	config := m.config

	switch config.Database.Engine {
	case database.EngineSQLite:
		if config.Database.Path == "" {
			return fmt.Errorf("sqlite database path is required")
		}
	case database.EnginePostgres:
		if config.Database.Host == "" {
			return fmt.Errorf("postgres host is required")
		}
		if config.Database.Database == "" {
			return fmt.Errorf("postgres database name is required")
		}
		if config.Database.Username == "" {
			return fmt.Errorf("postgres username is required")
		}
	default:
		return fmt.Errorf("unknown database engine: %s", config.Database.Engine)
	}

	if config.PanelSource.BaseURL == "" {
		return fmt.Errorf("panel source base URL is required")
	}
	if config.Import.GreenConfidence <= 0 {
		return fmt.Errorf("green confidence level must be positive: %d", config.Import.GreenConfidence)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// DatabaseConfig maps the loaded settings onto the store's connection
// config.
func (m *Manager) DatabaseConfig() database.Config {
	db := m.config.Database
	return database.Config{
		Engine:   db.Engine,
		Path:     db.Path,
		Host:     db.Host,
		Port:     db.Port,
		Database: db.Database,
		Username: db.Username,
		Password: db.Password,
		SSLMode:  db.SSLMode,
	}
}
