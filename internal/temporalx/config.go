package temporalx

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

// Config is read from TEMPORAL_* variables. Address empty means the
// training workflow is unavailable and callers run training in process.
type Config struct {
	Address   string `env:"TEMPORAL_ADDRESS"`
	Namespace string `env:"TEMPORAL_NAMESPACE" envDefault:"neurobridge-kt"`
	TaskQueue string `env:"TEMPORAL_TASK_QUEUE" envDefault:"kt-train"`

	ClientCertPath string `env:"TEMPORAL_CLIENT_CERT_PATH"`
	ClientKeyPath  string `env:"TEMPORAL_CLIENT_KEY_PATH"`
	ClientCAPath   string `env:"TEMPORAL_CLIENT_CA_PATH"`

	DialTimeout time.Duration `env:"TEMPORAL_DIAL_TIMEOUT" envDefault:"5s"`
	DialMaxWait time.Duration `env:"TEMPORAL_DIAL_MAX_WAIT" envDefault:"60s"`
	BackoffBase time.Duration `env:"TEMPORAL_BACKOFF" envDefault:"250ms"`
	BackoffMax  time.Duration `env:"TEMPORAL_BACKOFF_MAX" envDefault:"5s"`

	// AutoRegisterNamespace creates Namespace on first use. Meant for local
	// and self-hosted clusters.
	AutoRegisterNamespace bool          `env:"TEMPORAL_AUTO_REGISTER_NAMESPACE"`
	RetentionDays         int           `env:"TEMPORAL_NAMESPACE_RETENTION_DAYS" envDefault:"7"`
	NamespaceTimeout      time.Duration `env:"TEMPORAL_NAMESPACE_ENSURE_TIMEOUT" envDefault:"10s"`

	WorkerStartMaxWait time.Duration `env:"TEMPORAL_WORKER_START_MAX_WAIT" envDefault:"60s"`
	// WorkerConcurrency bounds concurrent training activities per worker.
	WorkerConcurrency int `env:"WORKER_CONCURRENCY" envDefault:"1"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("temporal config: %w", err)
	}
	if cfg.RetentionDays < 1 || cfg.RetentionDays > 365 {
		cfg.RetentionDays = 7
	}
	if cfg.WorkerConcurrency < 1 {
		cfg.WorkerConcurrency = 1
	}
	return cfg, nil
}

func (c Config) tlsEnabled() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}
