// Package config loads kedai configuration from a YAML file with
// environment variable overrides. Absence of Redis configuration is a
// valid state meaning "bounded store only", not an error.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// RedisConfig holds durable-backend connection settings. An empty Addr
// and URL means no durable backend is configured.
type RedisConfig struct {
	Addr           string        `yaml:"addr"`
	URL            string        `yaml:"url"`
	Password       string        `yaml:"password"`
	DB             int           `yaml:"db"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// Configured reports whether any connection parameter is present.
func (r RedisConfig) Configured() bool {
	return r.Addr != "" || r.URL != ""
}

// CacheConfig holds facade and bounded-store settings.
type CacheConfig struct {
	KeyPrefix        string        `yaml:"key_prefix"`
	DefaultTTL       time.Duration `yaml:"default_ttl"`
	MaxKeys          int           `yaml:"max_keys"`
	MaxValueBytes    int           `yaml:"max_value_bytes"`
	EmergencyDisable bool          `yaml:"emergency_disable"`
}

// MonitorConfig holds performance-monitoring settings.
type MonitorConfig struct {
	Enabled         bool          `yaml:"enabled"`
	SlowOpThreshold time.Duration `yaml:"slow_op_threshold"`
	ThrottleLimit   int           `yaml:"throttle_limit"`
	QueueCapacity   int           `yaml:"queue_capacity"`
}

// BreakerConfig holds per-feature circuit breaker defaults.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
}

// WarmerConfig holds cache warming settings.
type WarmerConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
}

// PostgresConfig holds the usage-statistics database connection.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// DaemonConfig holds kedaid-specific settings.
type DaemonConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	LogLevel string `yaml:"log_level"`
}

// Config is the central configuration struct embedding all component configs.
type Config struct {
	Redis     RedisConfig     `yaml:"redis"`
	Cache     CacheConfig     `yaml:"cache"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Warmer    WarmerConfig    `yaml:"warmer"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Daemon    DaemonConfig    `yaml:"daemon"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Redis: RedisConfig{
			ConnectTimeout: 5 * time.Second,
			CommandTimeout: 3 * time.Second,
		},
		Cache: CacheConfig{
			KeyPrefix:     "kedai",
			DefaultTTL:    time.Hour,
			MaxKeys:       10000,
			MaxValueBytes: 1 << 20,
		},
		Monitor: MonitorConfig{
			Enabled:         true,
			SlowOpThreshold: 500 * time.Millisecond,
			ThrottleLimit:   100,
			QueueCapacity:   1000,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		},
		Warmer: WarmerConfig{
			Enabled:   true,
			Interval:  15 * time.Minute,
			BatchSize: 20,
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4318",
			ServiceName: "kedai",
			SampleRate:  1.0,
		},
		Daemon: DaemonConfig{
			HTTPAddr: ":8086",
			LogLevel: "info",
		},
	}
}

// LoadFromFile loads configuration from a YAML file on top of defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to the config.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("KEDAI_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("KEDAI_REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("KEDAI_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("KEDAI_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v := os.Getenv("KEDAI_CACHE_PREFIX"); v != "" {
		cfg.Cache.KeyPrefix = v
	}
	if v := os.Getenv("KEDAI_CACHE_DEFAULT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.DefaultTTL = d
		}
	}
	if v := os.Getenv("KEDAI_CACHE_MAX_KEYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxKeys = n
		}
	}
	if v := os.Getenv("KEDAI_CACHE_DISABLE"); v != "" {
		cfg.Cache.EmergencyDisable = v == "1" || v == "true"
	}
	if v := os.Getenv("KEDAI_PG_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("KEDAI_HTTP_ADDR"); v != "" {
		cfg.Daemon.HTTPAddr = v
	}
	if v := os.Getenv("KEDAI_LOG_LEVEL"); v != "" {
		cfg.Daemon.LogLevel = v
	}
	if v := os.Getenv("KEDAI_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.Endpoint = v
		cfg.Telemetry.Enabled = true
	}
}
