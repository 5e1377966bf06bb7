package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Worker     WorkerConfig     `yaml:"worker" mapstructure:"worker"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Standards  StandardsConfig  `yaml:"standards" mapstructure:"standards"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite or postgres
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RateLimit   float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst   int      `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// WorkerConfig configures background assessment.
type WorkerConfig struct {
	Backend               string         `yaml:"backend" mapstructure:"backend"` // local or temporal
	Concurrency           int            `yaml:"concurrency" mapstructure:"concurrency"`
	QueueSize             int            `yaml:"queue_size" mapstructure:"queue_size"`
	RetryAttempts         int            `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryInitialBackoffMs int            `yaml:"retry_initial_backoff_ms" mapstructure:"retry_initial_backoff_ms"`
	Temporal              TemporalConfig `yaml:"temporal" mapstructure:"temporal"`
}

// TemporalConfig locates the Temporal frontend.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port" mapstructure:"host_port"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue string `yaml:"task_queue" mapstructure:"task_queue"`
}

// MonitoringConfig configures the background alert checker.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	UnsafeRateThreshold  float64 `yaml:"unsafe_rate_threshold" mapstructure:"unsafe_rate_threshold"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// StandardsConfig points at an optional reference table file.
type StandardsConfig struct {
	Path string `yaml:"path" mapstructure:"path"` // empty uses the built-in tables
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("METALSENSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "metalsense.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit", 20)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("worker.backend", "local")
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.queue_size", 256)
	v.SetDefault("worker.retry_attempts", 3)
	v.SetDefault("worker.retry_initial_backoff_ms", 200)
	v.SetDefault("worker.temporal.host_port", "localhost:7233")
	v.SetDefault("worker.temporal.namespace", "default")
	v.SetDefault("worker.temporal.task_queue", "metalsense-assessments")
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.unsafe_rate_threshold", 0.25)
	v.SetDefault("monitoring.failure_rate_threshold", 0.10)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("standards.path", "")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects unknown backends and out-of-range thresholds.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q (want sqlite or postgres)", c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required")
	}
	switch c.Worker.Backend {
	case "local", "temporal":
	default:
		return eris.Errorf("config: unknown worker backend %q (want local or temporal)", c.Worker.Backend)
	}
	for name, v := range map[string]float64{
		"monitoring.unsafe_rate_threshold":  c.Monitoring.UnsafeRateThreshold,
		"monitoring.failure_rate_threshold": c.Monitoring.FailureRateThreshold,
	} {
		if v < 0 || v > 1 {
			return eris.Errorf("config: %s must be within [0, 1], got %g", name, v)
		}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
