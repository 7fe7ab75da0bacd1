package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds server configuration loaded from the environment.
// A .env file in the working directory is honored for local development.
type Config struct {
	Port          string
	RedisURL      string // empty = in-memory relay scoreboard
	SignerKeyHex  string // hex private key for the local zap request signer
	ContextRelays []string
}

// LoadConfig reads configuration from the environment, loading .env first
// if present.
func LoadConfig() *Config {
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env file")
	}

	cfg := &Config{
		Port:          os.Getenv("PORT"),
		RedisURL:      os.Getenv("REDIS_URL"),
		SignerKeyHex:  os.Getenv("ZAP_SIGNER_KEY"),
		ContextRelays: strings.Fields(os.Getenv("CONTEXT_RELAYS")),
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}

	return cfg
}
