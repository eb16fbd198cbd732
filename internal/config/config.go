// Package config loads the platform configuration from the environment.
package config

import (
	"fmt"
	"math/big"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"github.com/rpch-net/discovery-platform/internal/core"
)

// Config holds every runtime setting of the discovery platform.
type Config struct {
	Server struct {
		Host            string        `env:"SERVER_HOST,default=0.0.0.0"`
		Port            int           `env:"SERVER_PORT,default=3020"`
		ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT,default=15s"`
		WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT,default=15s"`
		ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default=10s"`
	}

	// SecretKey gates the admin endpoints. Requests must carry it in the
	// x-secret-key header.
	SecretKey string `env:"SECRET_KEY"`

	Database struct {
		// URL is a lib/pq connection string. Empty selects the in-memory
		// store, which is only suitable for local development.
		URL          string        `env:"DATABASE_URL"`
		MaxOpenConns int           `env:"DATABASE_MAX_OPEN_CONNS,default=20"`
		MaxIdleConns int           `env:"DATABASE_MAX_IDLE_CONNS,default=5"`
		ConnLifetime time.Duration `env:"DATABASE_CONN_LIFETIME,default=30m"`
	}

	Cache struct {
		// RedisURL selects the redis backend when set; otherwise responses
		// are cached in process memory.
		RedisURL string        `env:"CACHE_REDIS_URL"`
		TTL      time.Duration `env:"CACHE_TTL,default=60s"`
	}

	Commitment struct {
		SubgraphURL string        `env:"SUBGRAPH_URL"`
		MinBalance  string        `env:"COMMITMENT_MIN_BALANCE,default=1000000000000000000"`
		MinChannels int           `env:"COMMITMENT_MIN_CHANNELS,default=1"`
		Timeout     time.Duration `env:"COMMITMENT_TIMEOUT,default=10s"`
		// SkipCheck short-circuits verification for staging environments
		// without a deployed subgraph.
		SkipCheck bool `env:"SKIP_CHECK_COMMITMENT,default=false"`
	}

	Sweeper struct {
		Enabled  bool   `env:"SWEEPER_ENABLED,default=true"`
		Schedule string `env:"SWEEPER_SCHEDULE,default=@every 1m"`
	}

	Quota struct {
		// BaseQuota is granted to freshly created trial clients.
		BaseQuota string `env:"BASE_QUOTA,default=100"`
	}

	RateLimit struct {
		RequestsPerSecond float64 `env:"RATE_LIMIT_RPS,default=20"`
		Burst             int     `env:"RATE_LIMIT_BURST,default=40"`
	}

	Logging struct {
		Level  string `env:"LOG_LEVEL,default=info"`
		Format string `env:"LOG_FORMAT,default=json"`
	}
}

// Load reads .env if present and decodes the configuration from the
// environment.
func Load() (Config, error) {
	_ = godotenv.Load() // allow .env for local runs

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that envdecode cannot express.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return core.NewValidationError("SERVER_PORT", "must be between 1 and 65535")
	}
	if _, ok := new(big.Int).SetString(c.Commitment.MinBalance, 10); !ok {
		return core.NewValidationError("COMMITMENT_MIN_BALANCE", "must be a base-10 integer")
	}
	if c.Commitment.MinChannels < 0 {
		return core.NewValidationError("COMMITMENT_MIN_CHANNELS", "must not be negative")
	}
	if _, ok := new(big.Int).SetString(c.Quota.BaseQuota, 10); !ok {
		return core.NewValidationError("BASE_QUOTA", "must be a base-10 integer")
	}
	if !c.Commitment.SkipCheck && c.Commitment.SubgraphURL == "" {
		return core.NewValidationError("SUBGRAPH_URL", "required unless SKIP_CHECK_COMMITMENT is set")
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		return core.NewValidationError("RATE_LIMIT_RPS", "must be positive")
	}
	return nil
}

// ListenAddr returns the host:port pair the HTTP server binds to.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// MinBalance returns the commitment balance threshold as a big integer.
func (c Config) MinBalance() *big.Int {
	v, _ := new(big.Int).SetString(c.Commitment.MinBalance, 10)
	return v
}

// BaseQuota returns the trial grant as a big integer.
func (c Config) BaseQuota() *big.Int {
	v, _ := new(big.Int).SetString(c.Quota.BaseQuota, 10)
	return v
}
