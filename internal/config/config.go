package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the RestForge configuration
type Config struct {
	ProjectName string         `mapstructure:"project_name"`
	Database    DatabaseConfig `mapstructure:"database"`
	Server      ServerConfig   `mapstructure:"server"`
	Logging     LoggingConfig  `mapstructure:"logging"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL     string `mapstructure:"url"`
	Driver  string `mapstructure:"driver"`
	MaxOpen int    `mapstructure:"max_open"`
	MaxIdle int    `mapstructure:"max_idle"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	Host      string `mapstructure:"host"`
	APIPrefix string `mapstructure:"api_prefix"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load loads the configuration from restforge.yml or restforge.yaml.
// Environment variables with the RESTFORGE_ prefix override file values,
// with dots mapped to underscores (RESTFORGE_SERVER_PORT, etc).
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.api_prefix", "/api")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_open", 10)
	v.SetDefault("database.max_idle", 5)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	v.SetConfigName("restforge")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RESTFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	switch cfg.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("unsupported database driver: %q", cfg.Database.Driver)
	}
	return nil
}

// DatabaseURL returns the database URL, preferring the DATABASE_URL
// environment variable over the configured value
func (c *Config) DatabaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	return c.Database.URL
}

// Addr returns the host:port pair the HTTP server should bind to
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
