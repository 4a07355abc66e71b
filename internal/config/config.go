package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	DBFile      string        `envconfig:"DB_FILE" default:"palaver.db"`
	Addr        string        `envconfig:"ADDR" default:":8080"`
	BaseURL     string        `envconfig:"BASE_URL" default:"http://localhost:8080"`
	UploadsPath string        `envconfig:"UPLOADS_PATH" default:"uploads"`
	JWTSecret   string        `envconfig:"JWT_SECRET"`
	TokenExpiry time.Duration `envconfig:"TOKEN_EXPIRY" default:"24h"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("palaver", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("PALAVER_JWT_SECRET is required")
	}

	if c.TokenExpiry <= 0 {
		return fmt.Errorf("PALAVER_TOKEN_EXPIRY must be greater than 0")
	}

	return nil
}
