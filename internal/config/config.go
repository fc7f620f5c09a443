package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port        int
	DatabaseDSN string // messagehub.db path, or a postgres:// URL
	OutputDir   string
	NatsURL     string // empty disables event publishing
	NatsToken   string
	LogLevel    string
}

func Load() Config {
	return Config{
		Port:        envInt("DATAFORGE_PORT", 8760),
		DatabaseDSN: envStr("DATAFORGE_DB", "messagehub.db"),
		OutputDir:   envStr("DATAFORGE_OUTPUT_DIR", "datasets"),
		NatsURL:     envStr("NATS_URL", ""),
		NatsToken:   envStr("NATS_TOKEN", ""),
		LogLevel:    envStr("LOG_LEVEL", "info"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
