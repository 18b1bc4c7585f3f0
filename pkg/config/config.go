package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment identifies the deployment environment a Netra instance runs in.
// It selects the default timeout profile for the database and VPC connector.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTest        Environment = "test"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// ParseEnvironment validates an environment name
func ParseEnvironment(s string) (Environment, error) {
	switch Environment(s) {
	case EnvDevelopment, EnvTest, EnvStaging, EnvProduction:
		return Environment(s), nil
	default:
		return "", fmt.Errorf("unknown environment %q (expected development|test|staging|production)", s)
	}
}

// Environments lists all known environments in deployment order
func Environments() []Environment {
	return []Environment{EnvDevelopment, EnvTest, EnvStaging, EnvProduction}
}

// Config holds the application configuration
type Config struct {
	Environment Environment     `json:"environment"`
	Server      ServerConfig    `json:"server"`
	Database    DatabaseConfig  `json:"database"`
	Redis       RedisConfig     `json:"redis"`
	Connector   ConnectorConfig `json:"connector"`
	Monitor     MonitorConfig   `json:"monitor"`
	Logging     LoggingConfig   `json:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// DatabaseConfig contains database connection configuration.
// Timeouts default to the profile of the selected environment.
type DatabaseConfig struct {
	Host     string         `json:"host"`
	Port     int            `json:"port"`
	Name     string         `json:"name"`
	User     string         `json:"user"`
	Password string         `json:"password"`
	SSLMode  string         `json:"ssl_mode"`
	Timeouts TimeoutProfile `json:"timeouts"`
}

// RedisConfig contains Redis connection configuration
type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// ConnectorConfig contains VPC connector monitoring configuration
type ConnectorConfig struct {
	Name              string        `json:"name"`
	PollInterval      time.Duration `json:"poll_interval"`
	TimeoutBuffer     time.Duration `json:"timeout_buffer"`
	PressureThreshold float64       `json:"pressure_threshold"`
	ScalingThreshold  float64       `json:"scaling_threshold"`
	OverloadThreshold float64       `json:"overload_threshold"`
	LatencyThreshold  time.Duration `json:"latency_threshold"`
}

// MonitorConfig contains connection monitor thresholds
type MonitorConfig struct {
	SampleWindow     int     `json:"sample_window"`
	MinSamples       int     `json:"min_samples"`
	WarningRatio     float64 `json:"warning_ratio"`
	CriticalRatio    float64 `json:"critical_ratio"`
	MinSuccessRate   float64 `json:"min_success_rate"`
	MaxViolationRate float64 `json:"max_violation_rate"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
}

// Load loads configuration from environment variables with per-environment defaults
func Load() (*Config, error) {
	// .env files are a development convenience; missing files are fine
	_ = godotenv.Load()

	env, err := ParseEnvironment(getEnvString("NETRA_ENV", string(EnvDevelopment)))
	if err != nil {
		return nil, err
	}

	profile := ProfileFor(env)

	config := &Config{
		Environment: env,
		Server: ServerConfig{
			Host:         getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnvString("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			Name:     getEnvString("DB_NAME", "netra"),
			User:     getEnvString("DB_USER", "netra"),
			Password: getEnvString("DB_PASSWORD", ""),
			SSLMode:  getEnvString("DB_SSL_MODE", "disable"),
			Timeouts: TimeoutProfile{
				Initialization:  getEnvDuration("DB_INITIALIZATION_TIMEOUT", profile.Initialization),
				Connection:      getEnvDuration("DB_CONNECTION_TIMEOUT", profile.Connection),
				Query:           getEnvDuration("DB_QUERY_TIMEOUT", profile.Query),
				PoolAcquire:     getEnvDuration("DB_POOL_ACQUIRE_TIMEOUT", profile.PoolAcquire),
				MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", profile.MaxOpenConns),
				MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", profile.MaxIdleConns),
				ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", profile.ConnMaxLifetime),
			},
		},
		Redis: RedisConfig{
			Host:     getEnvString("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 10),
		},
		Connector: ConnectorConfig{
			Name:              getEnvString("VPC_CONNECTOR_NAME", fmt.Sprintf("netra-%s", env)),
			PollInterval:      getEnvDuration("VPC_POLL_INTERVAL", 30*time.Second),
			TimeoutBuffer:     getEnvDuration("VPC_TIMEOUT_BUFFER", 10*time.Second),
			PressureThreshold: getEnvFloat("VPC_PRESSURE_THRESHOLD", 0.60),
			ScalingThreshold:  getEnvFloat("VPC_SCALING_THRESHOLD", 0.75),
			OverloadThreshold: getEnvFloat("VPC_OVERLOAD_THRESHOLD", 0.90),
			LatencyThreshold:  getEnvDuration("VPC_LATENCY_THRESHOLD", 500*time.Millisecond),
		},
		Monitor: MonitorConfig{
			SampleWindow:     getEnvInt("MONITOR_SAMPLE_WINDOW", 100),
			MinSamples:       getEnvInt("MONITOR_MIN_SAMPLES", 10),
			WarningRatio:     getEnvFloat("MONITOR_WARNING_RATIO", 0.80),
			CriticalRatio:    getEnvFloat("MONITOR_CRITICAL_RATIO", 0.95),
			MinSuccessRate:   getEnvFloat("MONITOR_MIN_SUCCESS_RATE", 0.90),
			MaxViolationRate: getEnvFloat("MONITOR_MAX_VIOLATION_RATE", 0.20),
		},
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
			Output: getEnvString("LOG_OUTPUT", "stdout"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Environment == EnvProduction || c.Environment == EnvStaging {
		if c.Database.Password == "" {
			return fmt.Errorf("database password is required in %s", c.Environment)
		}
	}

	if c.Database.Timeouts.Connection <= 0 {
		return fmt.Errorf("database connection timeout must be positive")
	}

	if c.Database.Timeouts.Initialization < c.Database.Timeouts.Connection {
		return fmt.Errorf("initialization timeout must cover at least one connection attempt")
	}

	if c.Monitor.WarningRatio >= c.Monitor.CriticalRatio {
		return fmt.Errorf("monitor warning ratio must be below critical ratio")
	}

	return nil
}

// DatabaseURL returns the database connection URL
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// RedisURL returns the Redis connection URL
func (c *Config) RedisURL() string {
	if c.Redis.Password != "" {
		return fmt.Sprintf("redis://:%s@%s:%d/%d",
			c.Redis.Password,
			c.Redis.Host,
			c.Redis.Port,
			c.Redis.DB,
		)
	}
	return fmt.Sprintf("redis://%s:%d/%d",
		c.Redis.Host,
		c.Redis.Port,
		c.Redis.DB,
	)
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
