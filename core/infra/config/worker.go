package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the worker config file omits a field.
const (
	DefaultConcurrency     = 5
	DefaultPollInterval    = time.Second
	DefaultLease           = 30 * time.Second
	DefaultReclaimInterval = 10 * time.Second
	DefaultMaxRetries      = 3
)

// WorkerConfig tunes the poll loop and queue behavior of a worker process.
type WorkerConfig struct {
	Concurrency     int
	PollInterval    time.Duration
	Lease           time.Duration
	ReclaimInterval time.Duration
	MaxRetries      int
}

type rawWorkerConfig struct {
	Concurrency     int    `yaml:"concurrency,omitempty"`
	PollInterval    string `yaml:"poll_interval,omitempty"`
	Lease           string `yaml:"lease,omitempty"`
	ReclaimInterval string `yaml:"reclaim_interval,omitempty"`
	MaxRetries      *int   `yaml:"max_retries,omitempty"`
}

// DefaultWorkerConfig returns the built-in worker tuning.
func DefaultWorkerConfig() *WorkerConfig {
	return &WorkerConfig{
		Concurrency:     DefaultConcurrency,
		PollInterval:    DefaultPollInterval,
		Lease:           DefaultLease,
		ReclaimInterval: DefaultReclaimInterval,
		MaxRetries:      DefaultMaxRetries,
	}
}

// ParseWorkerConfig parses worker tuning from YAML bytes, validating the
// document against the embedded schema first.
func ParseWorkerConfig(data []byte) (*WorkerConfig, error) {
	cfg := DefaultWorkerConfig()
	if len(data) == 0 {
		return cfg, nil
	}
	if err := validateConfigSchema("worker", workerSchemaFile, data); err != nil {
		return nil, err
	}
	var raw rawWorkerConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse worker config: %w", err)
	}
	if raw.Concurrency > 0 {
		cfg.Concurrency = raw.Concurrency
	}
	if raw.MaxRetries != nil && *raw.MaxRetries >= 0 {
		cfg.MaxRetries = *raw.MaxRetries
	}
	for _, field := range []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"poll_interval", raw.PollInterval, &cfg.PollInterval},
		{"lease", raw.Lease, &cfg.Lease},
		{"reclaim_interval", raw.ReclaimInterval, &cfg.ReclaimInterval},
	} {
		if field.value == "" {
			continue
		}
		d, err := time.ParseDuration(field.value)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("worker config %s: invalid duration %q", field.name, field.value)
		}
		*field.dst = d
	}
	return cfg, nil
}

// LoadWorkerConfig reads worker tuning from a YAML file. A missing file
// yields the defaults so a bare deployment still runs.
func LoadWorkerConfig(path string) (*WorkerConfig, error) {
	if path == "" {
		return nil, errors.New("worker config path is empty")
	}
	// #nosec G304 -- worker config path is operator-provided.
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultWorkerConfig(), nil
		}
		return nil, fmt.Errorf("read worker config %s: %w", path, err)
	}
	cfg, err := ParseWorkerConfig(data)
	if err != nil {
		return nil, fmt.Errorf("load worker config %s: %w", path, err)
	}
	return cfg, nil
}
