package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. LEDGER_DATABASE_URL.
const EnvPrefix = "LEDGER"

// ConfigFileEnv names an explicit YAML config file.
const ConfigFileEnv = "LEDGER_CONFIG_FILE"

// defaults registers every key, which AutomaticEnv needs to resolve it during Unmarshal.
var defaults = map[string]any{
	"server.port":                8080,
	"server.log_level":           "info",
	"server.shutdown_timeout":    10 * time.Second,
	"database.driver":            DriverPostgres,
	"database.url":               "",
	"database.name":              "ledger",
	"database.max_open_conns":    10,
	"database.max_idle_conns":    5,
	"database.conn_max_lifetime": 5 * time.Minute,
	"ledger.max_apply_attempts":  3,
	"ledger.retry_base_delay":    25 * time.Millisecond,
	"ledger.apply_timeout":       10 * time.Second,
	"export.timezone":            "UTC",
	"export.time_layout":         "2/1/2006, 15:04:05",
}

// Load reads configuration from defaults, an optional config.yaml in the
// working directory (or the file named by LEDGER_CONFIG_FILE), and
// environment variables, in increasing order of precedence.
// Returns a populated Config or an error if loading or validation fails.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(ConfigFileEnv))
}

// LoadFile is Load with an explicit config file path. An empty path searches
// the working directory for config.yaml and tolerates its absence.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints plus the settings validator tags cannot
// express.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if _, err := time.LoadLocation(cfg.Export.Timezone); err != nil {
		return fmt.Errorf("configuration validation failed: export.timezone: %w", err)
	}
	return nil
}
