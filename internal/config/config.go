package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// App holds the runtime configuration loaded from environment variables.
// DatabaseURL is the optional remote mirror; leaving it empty runs local-only.
type App struct {
	Env             string        `env:"APP_ENV" envDefault:"dev"`
	HTTPPort        string        `env:"HTTP_PORT" envDefault:"8081"`
	LocalDBPath     string        `env:"LOCAL_DB_PATH" envDefault:"data/register.db"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	RedisAddr       string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	QueueBackend    string        `env:"QUEUE_BACKEND" envDefault:"memory"`
	SyncInterval    time.Duration `env:"SYNC_INTERVAL" envDefault:"30s"`
	WebhookURL      string        `env:"WEBHOOK_URL"`
	OnTimePoints    int           `env:"ON_TIME_POINTS" envDefault:"2"`
	RateLimitPerMin int           `env:"RATE_LIMIT_PER_MIN" envDefault:"120"`
	LogDir          string        `env:"LOG_DIR"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads .env when present and parses the environment into an App.
func Load() (App, error) {
	_ = godotenv.Load(".env")

	var cfg App
	if err := env.Parse(&cfg); err != nil {
		return App{}, err
	}
	return cfg, nil
}
