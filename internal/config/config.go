package config

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Root    string `env:"ROOT" envDefault:"./vision-backend"`
	Port    int    `env:"PORT" envDefault:"8000"`
	LogFile string `env:"LOG_FILE" envDefault:"backend.log"`

	// Empty DatabaseURL selects a sqlite database under Root.
	DatabaseURL string `env:"DATABASE_URL"`

	// Empty RabbitMQURL keeps usage records on an in-process queue.
	RabbitMQURL string `env:"RABBITMQ_URL"`

	// Empty S3EndpointURL and S3Region select the local object store under Root.
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION"`
	ModelBucket       string `env:"MODEL_BUCKET_NAME" envDefault:"models"`

	ModelCacheDir  string   `env:"MODEL_CACHE_DIR"`
	ModelCacheSize int      `env:"MODEL_CACHE_SIZE" envDefault:"4"`
	CatalogPath    string   `env:"MODEL_CATALOG"`
	WarmupModels   []string `env:"WARMUP_MODELS" envSeparator:","`

	PoolWorkers    int           `env:"POOL_WORKERS"`
	PoolQueueSize  int           `env:"POOL_QUEUE_SIZE" envDefault:"256"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`

	// Upper bound on request bodies, 0 disables the limit.
	MaxRequestBytes int64 `env:"MAX_REQUEST_BYTES" envDefault:"67108864"`

	OnnxRuntimeDylib string `env:"ONNX_RUNTIME_DYLIB"`
}

func (c *Config) UseS3() bool {
	return c.S3EndpointURL != "" || c.S3Region != ""
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.ModelCacheSize <= 0 {
		return fmt.Errorf("MODEL_CACHE_SIZE must be positive, got %d", c.ModelCacheSize)
	}
	if c.PoolWorkers < 0 || c.PoolQueueSize < 0 {
		return fmt.Errorf("POOL_WORKERS and POOL_QUEUE_SIZE must be non-negative")
	}
	if c.MaxRequestBytes < 0 {
		return fmt.Errorf("MAX_REQUEST_BYTES must be non-negative, got %d", c.MaxRequestBytes)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be non-negative, got %s", c.RequestTimeout)
	}
	if c.S3EndpointURL != "" && (c.S3AccessKeyID == "" || c.S3SecretAccessKey == "") {
		slog.Warn("S3_ENDPOINT_URL is set, but AWS_ACCESS_KEY_ID or AWS_SECRET_ACCESS_KEY are missing")
	}
	return nil
}

// Load reads the config from the environment and fills in defaults that
// depend on other fields.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if cfg.PoolWorkers == 0 {
		cfg.PoolWorkers = runtime.NumCPU()
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
