// Package config loads application configuration from a config file,
// environment variables, and defaults, grounded on the teacher's
// viper+godotenv layering.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jimsantora/librarysync/internal/storage"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig           `mapstructure:"server"`
	Database storage.DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig            `mapstructure:"redis"`
	Platform PlatformConfig         `mapstructure:"platform"`
	Sync     SyncConfig             `mapstructure:"sync"`
	Logging  LoggingConfig          `mapstructure:"logging"`
}

// ServerConfig holds web/websocket server configuration.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	Port         int           `mapstructure:"port"`
	Environment  string        `mapstructure:"environment"` // "development", "production"
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// RedisConfig holds the connection settings shared by RL, SS, PT, and JQ.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SteamAPIConfig is the Steam adapter's slice of PlatformConfig.
type SteamAPIConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

// PlatformConfig groups every configured platform's adapter credentials,
// generalized from the teacher's Steam-only SteamConfig to the §4.2
// multi-platform contract.
type PlatformConfig struct {
	Steam SteamAPIConfig `mapstructure:"steam"`
}

// SyncConfig holds the Sync Worker/Scheduler's operational knobs (§4.6,
// §4.7).
type SyncConfig struct {
	BatchSize             int           `mapstructure:"batch_size"`
	AutoSyncEnabled       bool          `mapstructure:"auto_sync_enabled"`
	AutoSyncCheckInterval time.Duration `mapstructure:"auto_sync_check_interval"`
	AutoSyncInterval      time.Duration `mapstructure:"auto_sync_interval"`
	QuietHoursStart       int           `mapstructure:"quiet_hours_start"`
	QuietHoursEnd         int           `mapstructure:"quiet_hours_end"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format"` // "json", "text"
	Output string `mapstructure:"output"` // "stdout", "stderr", file path
}

// LoadConfig loads configuration from ./configs/config.yaml (or .), the
// environment, and .env, falling back to defaults for anything unset.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	if config.Server.Port > 0 {
		config.Server.Address = fmt.Sprintf("%s:%d", extractHost(config.Server.Address), config.Server.Port)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.address", "localhost:8080")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.environment", "development")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "60s")

	viper.SetDefault("database.type", "sqlite")
	viper.SetDefault("database.file_path", "librarysync.db")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "librarysync")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.timezone", "UTC")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "1h")

	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("platform.steam.request_timeout", "30s")
	viper.SetDefault("platform.steam.max_retries", 3)

	viper.SetDefault("sync.batch_size", 100)
	viper.SetDefault("sync.auto_sync_enabled", false)
	viper.SetDefault("sync.auto_sync_check_interval", "15m")
	viper.SetDefault("sync.auto_sync_interval", "6h")
	viper.SetDefault("sync.quiet_hours_start", 1)
	viper.SetDefault("sync.quiet_hours_end", 6)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Server.Environment != "development" && config.Server.Environment != "production" {
		return fmt.Errorf("invalid environment: %s (must be 'development' or 'production')", config.Server.Environment)
	}

	validDBTypes := []string{"sqlite", "postgres", "mysql"}
	if !contains(validDBTypes, config.Database.Type) {
		return fmt.Errorf("invalid database type: %s (must be one of: %v)", config.Database.Type, validDBTypes)
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, config.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (must be one of: %v)", config.Logging.Level, validLogLevels)
	}

	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, config.Logging.Format) {
		return fmt.Errorf("invalid log format: %s (must be one of: %v)", config.Logging.Format, validLogFormats)
	}

	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func extractHost(address string) string {
	if strings.Contains(address, ":") {
		return strings.Split(address, ":")[0]
	}
	return address
}

// GetDatabaseConfig returns the database configuration in the shape the
// storage package expects.
func (c *Config) GetDatabaseConfig() storage.DatabaseConfig {
	return c.Database
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
