package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// WorkerEnv carries environment overrides for the delivery worker
// binary, layered on top of the YAML config.
type WorkerEnv struct {
	WorkerCount  int           `envconfig:"WORKER_COUNT"`
	BatchSize    int           `envconfig:"WORKER_BATCH_SIZE"`
	PollInterval time.Duration `envconfig:"WORKER_POLL_INTERVAL"`
	MaxRetries   int           `envconfig:"WORKER_MAX_RETRIES"`
}

// LoadWorkerEnv reads NOTIFIER_-prefixed worker overrides and applies
// any that are set onto cfg.
func LoadWorkerEnv(cfg *Config) error {
	var env WorkerEnv
	if err := envconfig.Process("notifier", &env); err != nil {
		return err
	}
	if env.WorkerCount > 0 {
		cfg.Queue.WorkerCount = env.WorkerCount
	}
	if env.BatchSize > 0 {
		cfg.Queue.BatchSize = env.BatchSize
	}
	if env.PollInterval > 0 {
		cfg.Queue.PollInterval = env.PollInterval
	}
	if env.MaxRetries > 0 {
		cfg.Queue.MaxRetries = env.MaxRetries
	}
	return nil
}
