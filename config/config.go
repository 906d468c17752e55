// config/config.go
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	// Store selects the backend: "postgres" or "memory".
	Store        string   `env:"STORE" envDefault:"postgres"`
	ServiceToken string   `env:"GAME_SERVICE_TOKEN,required,notEmpty"`
	LogLevel     string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat    string   `env:"LOG_FORMAT" envDefault:"console"`
	AllowOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	SessionTTL          time.Duration `env:"SESSION_TTL" envDefault:"72h"`
	ExpirySweepInterval time.Duration `env:"EXPIRY_SWEEP_INTERVAL" envDefault:"10m"`
	ShuffleQuestions    bool          `env:"SHUFFLE_QUESTIONS" envDefault:"true"`

	// FeedChannel is the postgres NOTIFY channel shared by all instances.
	FeedChannel string `env:"FEED_CHANNEL" envDefault:"couple_game_changes"`

	PushServiceURL   string `env:"PUSH_SERVICE_URL"`
	PushServiceToken string `env:"PUSH_SERVICE_TOKEN"`

	R2 R2Config `envPrefix:"R2_"`
}

// R2Config enables session archiving when every field is set.
type R2Config struct {
	AccountID       string `env:"ACCOUNT_ID"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	AccessKeySecret string `env:"ACCESS_KEY_SECRET"`
	Bucket          string `env:"BUCKET"`
}

func (r R2Config) Enabled() bool {
	return r.AccountID != "" && r.AccessKeyID != "" && r.AccessKeySecret != "" && r.Bucket != ""
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("⚠️  No .env file found, reading environment variables directly")
	}
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Config) validate() error {
	switch c.Store {
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE=postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown STORE %q", c.Store)
	}
	if c.SessionTTL < 0 {
		return errors.New("SESSION_TTL must not be negative")
	}
	return nil
}
