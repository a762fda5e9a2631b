// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/claymoreai/claymore/internal/domain"
)

// Config holds all application configuration parsed from environment
// variables. DatabaseURL, BrokerURL, UploadDir, UnstructuredURL, ESURL and
// HMACKey are required at startup.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"dev"`
	Port   int    `env:"PORT" envDefault:"8080"`

	DatabaseURL     string `env:"DATABASE_URL,required"`
	BrokerURL       string `env:"BROKER_URL,required"`
	UploadDir       string `env:"UPLOAD_DIR,required"`
	UnstructuredURL string `env:"UNSTRUCTURED_URL,required"`
	ESURL           string `env:"ES_URL,required"`
	HMACKey         string `env:"HMAC_KEY,required"`

	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`

	// MaxAttempts is the queue retry ceiling carried in x-attempts headers;
	// unset it defaults to domain.MaxAttempts.
	MaxAttempts int `env:"MAX_ATTEMPTS"`
	// EvoPrefetch bounds parallel evo deliveries per worker process; the
	// other queues are pinned at 1.
	EvoPrefetch int `env:"EVO_PREFETCH" envDefault:"2"`

	RateLimitPerMin       int           `env:"RATE_LIMIT_PER_MIN" envDefault:"60"`
	CORSAllowOrigins      string        `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"120s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	MetricsPort int `env:"METRICS_PORT" envDefault:"9090"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = domain.MaxAttempts
	}
	return cfg, nil
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }
