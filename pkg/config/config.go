package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/atriumhq/atrium/pkg/telemetry"
)

// Config is the root service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Airlock  AirlockConfig  `yaml:"airlock"`
	Policy   PolicyConfig   `yaml:"policy"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	ListenAddress   string        `yaml:"listen_address" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures the SQLite document store.
type DatabaseConfig struct {
	Path           string `yaml:"path" validate:"required"`
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

// EngineConfig configures the operation engine.
type EngineConfig struct {
	// PatchRetries is the number of retries after the first failed patch
	// attempt when a step hits an etag conflict.
	PatchRetries int `yaml:"patch_retries" validate:"gte=0,lte=20"`
}

// AirlockConfig configures the airlock subsystem.
type AirlockConfig struct {
	// ScanningEnabled controls whether malware scan results are expected.
	// When false, an incoming scan verdict is a configuration error.
	ScanningEnabled bool `yaml:"scanning_enabled"`
}

// PolicyConfig configures the submission policy engine.
type PolicyConfig struct {
	// Dir is an optional directory of additional .rego policies loaded
	// next to the built-in ones.
	Dir string `yaml:"dir"`

	// MaxExportFiles bounds the file count of an export request.
	MaxExportFiles int `yaml:"max_export_files" validate:"gte=1"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level        string `yaml:"level" validate:"oneof=trace debug info warn error fatal"`
	Format       string `yaml:"format" validate:"oneof=console json"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// TracingConfig configures distributed tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter" validate:"oneof=otlp stdout none"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate" validate:"gte=0,lte=1"`
	Insecure     bool    `yaml:"insecure"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"`
	Path          string `yaml:"path"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddress:   ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Path:           "atrium.db",
			MigrateOnStart: true,
		},
		Engine: EngineConfig{
			PatchRetries: 5,
		},
		Airlock: AirlockConfig{
			ScanningEnabled: true,
		},
		Policy: PolicyConfig{
			MaxExportFiles: 100,
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "console",
			Output:       "stdout",
			EnableCaller: true,
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "stdout",
			SamplingRate: 1.0,
			Insecure:     true,
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			ListenAddress: ":9090",
			Path:          "/metrics",
		},
	}
}

// Load reads a configuration file, applies environment overrides and
// validates the result. An empty path loads defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Telemetry maps the configuration into a telemetry config.
func (c *Config) Telemetry(serviceVersion, environment string) *telemetry.Config {
	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceVersion = serviceVersion
	tcfg.Environment = environment

	tcfg.Logging.Level = c.Logging.Level
	tcfg.Logging.Format = c.Logging.Format
	tcfg.Logging.Output = c.Logging.Output
	tcfg.Logging.EnableCaller = c.Logging.EnableCaller

	tcfg.Tracing.Enabled = c.Tracing.Enabled
	tcfg.Tracing.Exporter = c.Tracing.Exporter
	tcfg.Tracing.Endpoint = c.Tracing.Endpoint
	tcfg.Tracing.SamplingRate = c.Tracing.SamplingRate
	tcfg.Tracing.Insecure = c.Tracing.Insecure

	tcfg.Metrics.Enabled = c.Metrics.Enabled
	if c.Metrics.ListenAddress != "" {
		tcfg.Metrics.ListenAddress = c.Metrics.ListenAddress
	}
	if c.Metrics.Path != "" {
		tcfg.Metrics.Path = c.Metrics.Path
	}
	return tcfg
}

// applyEnvOverrides applies ATRIUM_* environment variables on top of the
// loaded configuration.
func applyEnvOverrides(cfg *Config) {
	setString := func(key string, target *string) {
		if v, ok := os.LookupEnv(key); ok {
			*target = v
		}
	}
	setBool := func(key string, target *bool) {
		if v, ok := os.LookupEnv(key); ok {
			if parsed, err := strconv.ParseBool(v); err == nil {
				*target = parsed
			}
		}
	}
	setInt := func(key string, target *int) {
		if v, ok := os.LookupEnv(key); ok {
			if parsed, err := strconv.Atoi(v); err == nil {
				*target = parsed
			}
		}
	}

	setString("ATRIUM_SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	setString("ATRIUM_DATABASE_PATH", &cfg.Database.Path)
	setBool("ATRIUM_DATABASE_MIGRATE_ON_START", &cfg.Database.MigrateOnStart)
	setInt("ATRIUM_ENGINE_PATCH_RETRIES", &cfg.Engine.PatchRetries)
	setBool("ATRIUM_AIRLOCK_SCANNING_ENABLED", &cfg.Airlock.ScanningEnabled)
	setString("ATRIUM_POLICY_DIR", &cfg.Policy.Dir)
	setInt("ATRIUM_POLICY_MAX_EXPORT_FILES", &cfg.Policy.MaxExportFiles)
	setString("ATRIUM_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("ATRIUM_LOGGING_FORMAT", &cfg.Logging.Format)
	setString("ATRIUM_LOGGING_OUTPUT", &cfg.Logging.Output)
	setBool("ATRIUM_TRACING_ENABLED", &cfg.Tracing.Enabled)
	setString("ATRIUM_TRACING_EXPORTER", &cfg.Tracing.Exporter)
	setString("ATRIUM_TRACING_ENDPOINT", &cfg.Tracing.Endpoint)
	setBool("ATRIUM_METRICS_ENABLED", &cfg.Metrics.Enabled)
	setString("ATRIUM_METRICS_LISTEN_ADDRESS", &cfg.Metrics.ListenAddress)
}
