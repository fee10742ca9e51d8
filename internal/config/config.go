package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const defaultJWTSecret = "devsecret"

// Config holds the application configuration.
type Config struct {
	ServerPort        int      `env:"PORT" envDefault:"5000"`
	AppEnv            string   `env:"APP_ENV" envDefault:"development"`
	LogLevel          string   `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty         bool     `env:"LOG_PRETTY" envDefault:"true"`
	CORSOrigins       []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	BcryptCost        int      `env:"BCRYPT_COST" envDefault:"10"`
	ReconcileSchedule string   `env:"RECONCILE_SCHEDULE" envDefault:"@every 10m"`

	Database  Database  `envPrefix:"DATABASE_"`
	JWT       JWT       `envPrefix:"JWT_"`
	Media     Media     `envPrefix:"MEDIA_"`
	Minio     Minio     `envPrefix:"MINIO_"`
	RateLimit RateLimit `envPrefix:"RATE_LIMIT_"`
}

// Database selects the storage backend.
type Database struct {
	Driver string `env:"DRIVER" envDefault:"sqlite"` // sqlite, postgres or mongo
	DSN    string `env:"DSN" envDefault:"./chirper.db"`
	Name   string `env:"NAME" envDefault:"chirper"` // mongo only
}

// JWT contains credential signing parameters.
type JWT struct {
	Secret string        `env:"SECRET" envDefault:"devsecret"`
	TTL    time.Duration `env:"TTL" envDefault:"24h"`
}

// Media contains upload storage parameters.
type Media struct {
	Backend        string `env:"BACKEND" envDefault:"local"` // local or minio
	Dir            string `env:"DIR" envDefault:"./images"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"104857600"`
}

// Minio contains object storage parameters.
type Minio struct {
	Endpoint  string `env:"ENDPOINT" envDefault:"localhost:9000"`
	AccessKey string `env:"ACCESS_KEY" envDefault:"chirper-access-key"`
	SecretKey string `env:"SECRET_KEY" envDefault:"chirper-secret-key"`
	Bucket    string `env:"BUCKET_NAME" envDefault:"chirper-images"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
}

// RateLimit configures the per-client limiter on auth endpoints.
type RateLimit struct {
	RPS   int `env:"RPS" envDefault:"5"`
	Burst int `env:"BURST" envDefault:"10"`
}

// IsProduction reports whether the app runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Load reads an optional .env file and then parses the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres", "mongo":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	switch c.Media.Backend {
	case "local", "minio":
	default:
		return fmt.Errorf("unsupported media backend %q", c.Media.Backend)
	}

	if c.JWT.Secret == "" {
		return errors.New("JWT_SECRET must not be empty")
	}
	if c.IsProduction() && c.JWT.Secret == defaultJWTSecret {
		return errors.New("JWT_SECRET must be set in production")
	}
	if c.JWT.TTL <= 0 {
		return errors.New("JWT_TTL must be positive")
	}
	if c.Media.MaxUploadBytes <= 0 {
		return errors.New("MEDIA_MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}
