package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr           string
	DatabaseURL    string
	JWTSecret      string
	OutboxInterval time.Duration
}

// loadConfig reads configuration from the environment, with a .env file as
// optional local override.
func loadConfig() (Config, error) {
	godotenv.Load()

	cfg := Config{
		Addr:           os.Getenv("API_ADDR"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		OutboxInterval: time.Second,
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("config: DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("config: JWT_SECRET is required")
	}

	if raw := os.Getenv("OUTBOX_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("config: parse OUTBOX_INTERVAL: %w", err)
		}
		cfg.OutboxInterval = d
	}

	return cfg, nil
}
