package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the attribution engine.
type Config struct {
	Klaviyo    KlaviyoConfig
	Report     ReportConfig
	Classifier ClassifierConfig
	Redis      RedisConfig
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Output     OutputConfig
	Log        LogConfig
	Metrics    MetricsConfig
}

// KlaviyoConfig configures the remote analytics API client.
type KlaviyoConfig struct {
	BaseURL  string
	APIKey   string
	Revision string
	Timeout  time.Duration

	// DefaultRetryAfter is the backoff applied to a throttling response
	// that carries no Retry-After header.
	DefaultRetryAfter time.Duration

	// StrictPagination turns an unrecognized next-page link into a hard
	// error instead of a warning plus partial collection.
	StrictPagination bool
}

// ReportConfig configures the reporting window and target metric.
type ReportConfig struct {
	// WindowDays is how far back campaigns, flows and events are fetched.
	WindowDays int

	// MetricName is the event type counted as a purchase.
	MetricName string
}

// Window returns the reporting window ending now.
func (r ReportConfig) Window(now time.Time) (start, end time.Time) {
	end = now.UTC()
	start = end.AddDate(0, 0, -r.WindowDays)
	return start, end
}

// ClassifierConfig configures the new-vs-recurring lookup pool.
type ClassifierConfig struct {
	Workers int
}

// RedisConfig configures the optional classification cache.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// PostgresConfig configures the optional report archive.
type PostgresConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode,
	)
}

// ClickHouseConfig configures the optional purchase archive.
type ClickHouseConfig struct {
	Enabled  bool
	Addr     string
	Database string
	User     string
	Password string
}

// OutputConfig configures the CSV/JSON file sinks.
type OutputConfig struct {
	Dir string
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
	Addr    string
	Path    string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Klaviyo: KlaviyoConfig{
			BaseURL:           getEnv("ATTR_API_BASE_URL", "https://a.klaviyo.com/api"),
			APIKey:            getEnv("KLAVIYO_API_KEY", ""),
			Revision:          getEnv("ATTR_API_REVISION", "2025-01-15"),
			Timeout:           getDurationEnv("ATTR_API_TIMEOUT", 30*time.Second),
			DefaultRetryAfter: getDurationEnv("ATTR_API_DEFAULT_RETRY_AFTER", 60*time.Second),
			StrictPagination:  getBoolEnv("ATTR_STRICT_PAGINATION", false),
		},
		Report: ReportConfig{
			WindowDays: getIntEnv("ATTR_WINDOW_DAYS", 365),
			MetricName: getEnv("ATTR_METRIC_NAME", "Placed Order"),
		},
		Classifier: ClassifierConfig{
			Workers: getIntEnv("ATTR_CLASSIFIER_WORKERS", 10),
		},
		Redis: RedisConfig{
			Enabled:  getBoolEnv("ATTR_REDIS_ENABLED", false),
			Addr:     getEnv("ATTR_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("ATTR_REDIS_PASSWORD", ""),
			DB:       getIntEnv("ATTR_REDIS_DB", 0),
			TTL:      getDurationEnv("ATTR_REDIS_TTL", 24*time.Hour),
		},
		Postgres: PostgresConfig{
			Enabled:  getBoolEnv("ATTR_DB_ENABLED", false),
			Host:     getEnv("ATTR_DB_HOST", "localhost"),
			Port:     getIntEnv("ATTR_DB_PORT", 5432),
			User:     getEnv("ATTR_DB_USER", "attribution"),
			Password: getEnv("ATTR_DB_PASSWORD", ""),
			DBName:   getEnv("ATTR_DB_NAME", "attribution"),
			SSLMode:  getEnv("ATTR_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("ATTR_DB_MAX_CONNS", 10),
			MinConns: getIntEnv("ATTR_DB_MIN_CONNS", 2),
		},
		ClickHouse: ClickHouseConfig{
			Enabled:  getBoolEnv("ATTR_CLICKHOUSE_ENABLED", false),
			Addr:     getEnv("ATTR_CLICKHOUSE_ADDR", "localhost:9000"),
			Database: getEnv("ATTR_CLICKHOUSE_DB", "attribution"),
			User:     getEnv("ATTR_CLICKHOUSE_USER", "default"),
			Password: getEnv("ATTR_CLICKHOUSE_PASSWORD", ""),
		},
		Output: OutputConfig{
			Dir: getEnv("ATTR_OUTPUT_DIR", "."),
		},
		Log: LogConfig{
			Level:  getEnv("ATTR_LOG_LEVEL", "info"),
			Format: getEnv("ATTR_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("ATTR_METRICS_ENABLED", false),
			Addr:    getEnv("ATTR_METRICS_ADDR", ":9090"),
			Path:    getEnv("ATTR_METRICS_PATH", "/metrics"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Klaviyo.APIKey == "" {
		return fmt.Errorf("KLAVIYO_API_KEY is required")
	}
	if c.Report.WindowDays <= 0 {
		return fmt.Errorf("ATTR_WINDOW_DAYS must be positive, got %d", c.Report.WindowDays)
	}
	if c.Classifier.Workers < 1 || c.Classifier.Workers > 64 {
		return fmt.Errorf("ATTR_CLASSIFIER_WORKERS must be in [1,64], got %d", c.Classifier.Workers)
	}
	return nil
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
