package config

import "time"

// Supported values of database.driver.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Ledger   LedgerConfig   `mapstructure:"ledger" validate:"required"`
	Export   ExportConfig   `mapstructure:"export" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig selects and configures the store backend.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=postgres sqlite mongo memory"`
	// URL is a postgres DSN, a sqlite file path or DSN, or a mongodb:// URI.
	URL  string `mapstructure:"url" validate:"required_unless=Driver memory"`
	Name string `mapstructure:"name" validate:"required_if=Driver mongo"`

	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0,ltefield=MaxOpenConns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

// LedgerConfig tunes the apply-operation protocol.
type LedgerConfig struct {
	// MaxApplyAttempts bounds how many times an apply is attempted when the
	// store reports a transaction conflict.
	MaxApplyAttempts int           `mapstructure:"max_apply_attempts" validate:"gte=1,lte=10"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay" validate:"gt=0"`
	ApplyTimeout     time.Duration `mapstructure:"apply_timeout" validate:"gt=0"`
}

// ExportConfig controls how CSV timestamps are rendered.
type ExportConfig struct {
	Timezone   string `mapstructure:"timezone" validate:"required"`
	TimeLayout string `mapstructure:"time_layout" validate:"required"`
}

// Location resolves Timezone. Load has already verified it.
func (c ExportConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
