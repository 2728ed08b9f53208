package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	ServerPort int `env:"SERVER_PORT" envDefault:"8080"`

	// Пустой DATABASE_URL включает хранилища в памяти.
	DatabaseURL string `env:"DATABASE_URL"`

	// Пустой ключ отключает проверку JWT.
	JWTSecretKey string `env:"JWT_SECRET_KEY"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	QuestionSeedFile string `env:"QUESTION_SEED_FILE" envDefault:"seed.yaml"`

	// MatchTTL = 0 отключает фоновое истечение матчей и заявок.
	MatchTTL            time.Duration `env:"MATCH_TTL" envDefault:"30m"`
	ExpirySweepInterval time.Duration `env:"EXPIRY_SWEEP_INTERVAL" envDefault:"1m"`

	R2 R2Config `envPrefix:"R2_"`
}

// R2Config - доступ к бакету для архивов результатов.
type R2Config struct {
	AccountID       string `env:"ACCOUNT_ID"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	BucketName      string `env:"BUCKET_NAME"`
	PublicBaseURL   string `env:"PUBLIC_BASE_URL"`
}

func (c R2Config) Enabled() bool {
	return c.AccountID != "" || c.AccessKeyID != "" || c.SecretAccessKey != "" || c.BucketName != ""
}

func (c R2Config) complete() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.SecretAccessKey != "" && c.BucketName != ""
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл для локальной разработки.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.ServerPort)
	}
	if c.MatchTTL < 0 {
		return fmt.Errorf("MATCH_TTL must not be negative, got %s", c.MatchTTL)
	}
	if c.MatchTTL > 0 && c.ExpirySweepInterval <= 0 {
		return fmt.Errorf("EXPIRY_SWEEP_INTERVAL must be positive when MATCH_TTL is set, got %s", c.ExpirySweepInterval)
	}
	if c.DatabaseURL == "" && c.QuestionSeedFile == "" {
		return errors.New("QUESTION_SEED_FILE is required when DATABASE_URL is not set")
	}
	if c.R2.Enabled() && !c.R2.complete() {
		return errors.New("R2_ACCOUNT_ID, R2_ACCESS_KEY_ID, R2_SECRET_ACCESS_KEY and R2_BUCKET_NAME must be set together")
	}
	return nil
}
