package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates all configuration settings for the application.
type Config struct {
	// Environment indicates the running environment (e.g., "development", "production").
	Environment string `mapstructure:"environment"`
	// LogLevel sets the global logging verbosity.
	LogLevel string `mapstructure:"log_level"`
	// Server holds configuration for the HTTP server.
	Server ServerConfig `mapstructure:"server"`
	// Database holds configuration for the database connection.
	Database DatabaseConfig `mapstructure:"database"`
	// Redis holds configuration for the Redis connection.
	Redis RedisConfig `mapstructure:"redis"`
	// Calibration holds configuration for the sensor calibration engine.
	Calibration CalibrationConfig `mapstructure:"calibration"`
	// Thresholds holds base values for the dynamic threshold adapter.
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	// Snapshot holds configuration for state snapshot persistence.
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
}

// ServerConfig defines the HTTP server settings.
type ServerConfig struct {
	// Port is the TCP port the server listens on.
	Port int `mapstructure:"port"`
	// AllowedOrigins is a list of CORS allowed origins.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig defines the PostgreSQL database connection settings.
type DatabaseConfig struct {
	// Host is the database server hostname or IP.
	Host string `mapstructure:"host"`
	// Port is the database server port.
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password.
	Password string `mapstructure:"password"`
	// DBName is the name of the database to connect to.
	DBName string `mapstructure:"dbname"`
	// SSLMode defines the SSL connection mode.
	SSLMode string `mapstructure:"sslmode"`
	// DatabaseURL is a connection string that can override individual fields.
	DatabaseURL string `mapstructure:"database_url"`
	// Enabled controls whether snapshots are written to Postgres at all.
	// The service degrades to Redis-only persistence when false.
	Enabled bool `mapstructure:"enabled"`
}

// RedisConfig defines the Redis connection settings.
type RedisConfig struct {
	// Host is the Redis server hostname.
	Host string `mapstructure:"host"`
	// Port is the Redis server port.
	Port int `mapstructure:"port"`
	// Password is the Redis authentication password.
	Password string `mapstructure:"password"`
	// DB is the Redis database index to use.
	DB int `mapstructure:"db"`
}

// CalibrationConfig defines settings for the sensor calibration engine.
type CalibrationConfig struct {
	// DefaultProfile is the calibration profile applied at startup.
	DefaultProfile string `mapstructure:"default_profile"`
	// DecayInterval is how often baseline decay maintenance runs.
	DecayInterval time.Duration `mapstructure:"decay_interval"`
	// HistoryLimit caps the number of readings retained per sensor.
	HistoryLimit int `mapstructure:"history_limit"`
}

// ThresholdsConfig defines base values for the dynamic threshold adapter.
// Entries override the built-in defaults; unknown names are ignored.
type ThresholdsConfig struct {
	// Base maps threshold names to their base values.
	Base map[string]float64 `mapstructure:"base"`
}

// SnapshotConfig defines settings for state snapshot persistence.
type SnapshotConfig struct {
	// Interval is how often the engine state is snapshotted in the background.
	Interval time.Duration `mapstructure:"interval"`
	// RedisKey is the key under which the latest snapshot is cached.
	RedisKey string `mapstructure:"redis_key"`
	// Retention is the number of snapshot rows kept in Postgres.
	Retention int `mapstructure:"retention"`
}

// Load reads configuration from config.yaml and the environment.
//
// Returns:
//   - The populated Config, or an error if reading or unmarshalling fails.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Common deployment overrides
	_ = viper.BindEnv("database.database_url", "DATABASE_URL")
	_ = viper.BindEnv("redis.host", "REDIS_HOST")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env cover everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// setDefaults registers fallback values for every configuration key.
func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "change-me-in-production")
	viper.SetDefault("database.dbname", "calibra")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.database_url", "")
	viper.SetDefault("database.enabled", true)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("calibration.default_profile", "default")
	viper.SetDefault("calibration.decay_interval", time.Hour)
	viper.SetDefault("calibration.history_limit", 500)

	viper.SetDefault("snapshot.interval", 5*time.Minute)
	viper.SetDefault("snapshot.redis_key", "calibra:snapshot:latest")
	viper.SetDefault("snapshot.retention", 48)
}
