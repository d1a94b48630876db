package config

import "time"

// Duration accepts "5s"-style strings or integer nanoseconds in JSON, YAML
// and environment variables.
type Duration struct {
	Duration time.Duration
}

func D(d time.Duration) Duration { return Duration{Duration: d} }

type HTTPConfig struct {
	Addr              string   `json:"addr" yaml:"addr" env:"KT_HTTP_ADDR" validate:"required"`
	ReadHeaderTimeout Duration `json:"read_header_timeout" yaml:"read_header_timeout"`
	IdleTimeout       Duration `json:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout   Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"KT_SHUTDOWN_TIMEOUT"`
	MaxRequestBytes   int64    `json:"max_request_bytes" yaml:"max_request_bytes" validate:"gt=0"`

	// RateLimitRPS of zero disables per-client rate limiting.
	RateLimitRPS   float64  `json:"rate_limit_rps" yaml:"rate_limit_rps" env:"KT_RATE_LIMIT_RPS" validate:"gte=0"`
	RateLimitBurst int      `json:"rate_limit_burst" yaml:"rate_limit_burst" env:"KT_RATE_LIMIT_BURST" validate:"gte=0"`
	CORSOrigins    []string `json:"cors_origins" yaml:"cors_origins" env:"KT_CORS_ORIGINS" envSeparator:","`
}

type GRPCConfig struct {
	// Addr of "" leaves the gRPC server off.
	Addr string `json:"addr" yaml:"addr" env:"KT_GRPC_ADDR"`
}

// ModelSource locates one checkpoint: a directory (local or gs://) or the
// active snapshot of a registry key.
type ModelSource struct {
	Dir         string `json:"dir" yaml:"dir" env:"DIR" validate:"required_without=SnapshotKey"`
	SnapshotKey string `json:"snapshot_key" yaml:"snapshot_key" env:"SNAPSHOT_KEY"`
}

type ModelsConfig struct {
	Enhanced ModelSource `json:"enhanced" yaml:"enhanced" envPrefix:"KT_ENHANCED_"`
	Baseline ModelSource `json:"baseline" yaml:"baseline" envPrefix:"KT_BASELINE_"`
}

type SelectorConfig struct {
	// BreakerFailures consecutive enhanced failures open the breaker.
	BreakerFailures uint32   `json:"breaker_failures" yaml:"breaker_failures" env:"KT_BREAKER_FAILURES" validate:"gte=1"`
	BreakerTimeout  Duration `json:"breaker_timeout" yaml:"breaker_timeout" env:"KT_BREAKER_TIMEOUT"`
	MaxConcurrency  int64    `json:"max_concurrency" yaml:"max_concurrency" env:"KT_MAX_CONCURRENCY" validate:"gte=1"`
}

type CacheConfig struct {
	// RedisAddr of "" keeps the cache in process.
	RedisAddr string   `json:"redis_addr" yaml:"redis_addr" env:"KT_REDIS_ADDR"`
	TTL       Duration `json:"ttl" yaml:"ttl" env:"KT_CACHE_TTL"`
	// LocalSize caps in-process entries; zero disables caching entirely
	// when no Redis address is set.
	LocalSize int `json:"local_size" yaml:"local_size" env:"KT_CACHE_LOCAL_SIZE" validate:"gte=0"`
}

type RegistryConfig struct {
	Driver string `json:"driver" yaml:"driver" env:"KT_REGISTRY_DRIVER" validate:"omitempty,oneof=sqlite postgres"`
	DSN    string `json:"dsn" yaml:"dsn" env:"KT_REGISTRY_DSN"`
}

type AuthConfig struct {
	// JWTSecret of "" leaves the prediction routes unauthenticated.
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret" env:"KT_JWT_SECRET"`
}

type Config struct {
	Env      string         `json:"env" yaml:"env" env:"LOG_MODE" validate:"required"`
	HTTP     HTTPConfig     `json:"http" yaml:"http"`
	GRPC     GRPCConfig     `json:"grpc" yaml:"grpc"`
	Models   ModelsConfig   `json:"models" yaml:"models"`
	Selector SelectorConfig `json:"selector" yaml:"selector"`
	Cache    CacheConfig    `json:"cache" yaml:"cache"`
	Registry RegistryConfig `json:"registry" yaml:"registry"`
	Auth     AuthConfig     `json:"auth" yaml:"auth"`
}
