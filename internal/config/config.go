package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Core
	LogMode string `env:"LOG_MODE" envDefault:"development"`
	Port    string `env:"PORT" envDefault:"8080"`

	// Auth
	JWTSecretKey    string        `env:"JWT_SECRET_KEY" envDefault:"defaultsecret"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"1h"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"24h"`

	// Database
	DBDriver         string `env:"DB_DRIVER" envDefault:"postgres"`
	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"postgres"`
	PostgresPassword string `env:"POSTGRES_PASSWORD"`
	PostgresName     string `env:"POSTGRES_NAME" envDefault:"medscan"`
	PostgresSSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`
	SQLitePath       string `env:"SQLITE_PATH" envDefault:"medscan.db"`

	// Redis pub/sub, optional
	RedisAddress  string `env:"REDIS_ADDRESS"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisChannel  string `env:"REDIS_CHANNEL" envDefault:"medscan_hub_broadcast"`

	// Inference
	InferenceProvider string        `env:"INFERENCE_PROVIDER" envDefault:"gemini"`
	InferenceTimeout  time.Duration `env:"INFERENCE_TIMEOUT" envDefault:"60s"`
	GeminiAPIKey      string        `env:"GOOGLE_GENERATIVE_AI_API_KEY"`
	GeminiModel       string        `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	VisionAPIURL      string        `env:"VISION_API_URL" envDefault:"http://localhost:8000"`

	// Chat metadata generation
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	AnthropicModel  string `env:"ANTHROPIC_MODEL" envDefault:"claude-3-5-sonnet-20241022"`

	// Storage
	GCSBucketName      string `env:"GCS_BUCKET_NAME"`
	GCSCredentialsFile string `env:"GCS_CREDENTIALS_FILE"`
	MaxUploadBytes     int64  `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`

	// Email
	SendgridAPIKey    string `env:"SENDGRID_API_KEY"`
	SendgridFromEmail string `env:"SENDGRID_FROM_EMAIL" envDefault:"no-reply@medscan.ai"`

	// HTTP
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q, want postgres or sqlite", c.DBDriver)
	}
	switch c.InferenceProvider {
	case "gemini", "cxr":
	default:
		return fmt.Errorf("unsupported INFERENCE_PROVIDER %q, want gemini or cxr", c.InferenceProvider)
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	return nil
}

// PostgresDSN builds the connection string from the POSTGRES_* variables.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort, c.PostgresName, c.PostgresSSLMode)
}

func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.RedisAddress) != ""
}

func (c *Config) BucketEnabled() bool {
	return strings.TrimSpace(c.GCSBucketName) != ""
}

func (c *Config) EmailEnabled() bool {
	return strings.TrimSpace(c.SendgridAPIKey) != ""
}
