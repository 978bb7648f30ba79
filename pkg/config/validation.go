package config

import (
	"errors"
	"fmt"

	"github.com/nimburion/bookstore/pkg/observability/logger"
	"gopkg.in/yaml.v3"
)

// Validate checks if the configuration is valid and reports every problem found
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Backend {
	case StoreBackendMemory:
	case StoreBackendMongoDB:
		if c.Store.URL == "" {
			errs = append(errs, errors.New("store.url is required for the mongodb backend"))
		}
		if c.Store.Database == "" {
			errs = append(errs, errors.New("store.database is required for the mongodb backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid store.backend: %q (must be one of: %s, %s)",
			c.Store.Backend, StoreBackendMemory, StoreBackendMongoDB))
	}
	if c.Store.Collection == "" {
		errs = append(errs, errors.New("store.collection is required"))
	}
	if c.Store.ConnectTimeout < 0 {
		errs = append(errs, fmt.Errorf("store.connect_timeout must be non-negative, got %s", c.Store.ConnectTimeout))
	}
	if c.Store.OperationTimeout < 0 {
		errs = append(errs, fmt.Errorf("store.operation_timeout must be non-negative, got %s", c.Store.OperationTimeout))
	}

	if _, err := logger.ParseLogLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if _, err := logger.ParseLogFormat(c.Log.Format); err != nil {
		errs = append(errs, fmt.Errorf("log.format: %w", err))
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		errs = append(errs, errors.New("tracing.endpoint is required when tracing is enabled"))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_rate must be between 0 and 1, got %v", c.Tracing.SampleRate))
	}

	return errors.Join(errs...)
}

// YAML renders the configuration as YAML.
func (c *Config) YAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}
	return string(out), nil
}
