package config

import "time"

// Store backend constants
const (
	// StoreBackendMemory keeps the collection in process
	StoreBackendMemory = "memory"
	// StoreBackendMongoDB uses a MongoDB collection
	StoreBackendMongoDB = "mongodb"
)

// Config is the root configuration structure for the bookstore tool
type Config struct {
	Service ServiceConfig `mapstructure:"service" yaml:"service"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing" yaml:"tracing"`
}

// ServiceConfig configures service identity metadata.
type ServiceConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// StoreConfig selects and configures the collection backend.
type StoreConfig struct {
	Backend          string        `mapstructure:"backend" yaml:"backend"`
	URL              string        `mapstructure:"url" yaml:"url"`
	Database         string        `mapstructure:"database" yaml:"database"`
	Collection       string        `mapstructure:"collection" yaml:"collection"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig toggles collection operation metrics
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// TracingConfig configures OTLP span export
type TracingConfig struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string  `mapstructure:"endpoint" yaml:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
}

// DefaultConfig returns the configuration used when nothing is overridden
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "bookstore",
			Environment: "development",
		},
		Store: StoreConfig{
			Backend:          StoreBackendMemory,
			Database:         "plp_bookstore",
			Collection:       "books",
			ConnectTimeout:   5 * time.Second,
			OperationTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			Endpoint:   "localhost:4317",
			SampleRate: 1,
		},
	}
}
