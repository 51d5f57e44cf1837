package config

import (
	"os"
	"strconv"
	"time"
)

const (
	defaultRedisURL       = "redis://localhost:6379"
	defaultHTTPAddr       = ":9094"
	defaultQueueName      = "workflow"
	defaultWorkerConfig   = "config/worker.yaml"
	envRedisURL           = "REDIS_URL"
	envHTTPAddr           = "WORKER_HTTP_ADDR"
	envQueueName          = "QUEUE_NAME"
	envWorkerConfigPath   = "WORKER_CONFIG_PATH"
	envWorkerConcurrency  = "WORKER_CONCURRENCY"
	envWorkerPollInterval = "WORKER_POLL_INTERVAL"
)

// Config holds runtime configuration for the execution pipeline.
type Config struct {
	RedisURL         string
	HTTPAddr         string
	QueueName        string
	WorkerConfigPath string
	Concurrency      int
	PollInterval     time.Duration
}

// Load returns configuration using environment variables with sane defaults.
func Load() *Config {
	cfg := &Config{
		RedisURL:         envOr(envRedisURL, defaultRedisURL),
		HTTPAddr:         envOr(envHTTPAddr, defaultHTTPAddr),
		QueueName:        envOr(envQueueName, defaultQueueName),
		WorkerConfigPath: envOr(envWorkerConfigPath, defaultWorkerConfig),
	}
	if v := os.Getenv(envWorkerConcurrency); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Concurrency = n
		}
	}
	if v := os.Getenv(envWorkerPollInterval); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.PollInterval = d
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
