package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadDotEnv reads a .env file into the process environment. A missing
// file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load .env file: %w", err)
	}
	return nil
}

// ApplyEnv overlays environment variables on top of the YAML values.
func ApplyEnv(cfg *Config) {
	cfg.Secrets.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", cfg.Secrets.TelegramToken)
	cfg.Secrets.OpenAIKey = getEnv("OPENAI_API_KEY", cfg.Secrets.OpenAIKey)

	cfg.Telegram.ChatID = getEnv("TELEGRAM_CHAT_ID", cfg.Telegram.ChatID)
	cfg.AI.BaseURL = getEnv("OPENAI_BASE_URL", cfg.AI.BaseURL)
	cfg.AI.Model = getEnv("OPENAI_MODEL", cfg.AI.Model)
	cfg.Dedup.RedisURL = getEnv("REDIS_URL", cfg.Dedup.RedisURL)
	cfg.Store.DatabaseURL = getEnv("DATABASE_URL", cfg.Store.DatabaseURL)

	cfg.App.Port = getEnvAsInt("JOBRELAY_PORT", cfg.App.Port)
	cfg.App.DataDir = getEnv("JOBRELAY_DATA_DIR", cfg.App.DataDir)
	cfg.App.LogLevel = getEnv("JOBRELAY_LOG_LEVEL", cfg.App.LogLevel)
	cfg.App.LogFormat = getEnv("JOBRELAY_LOG_FORMAT", cfg.App.LogFormat)
	cfg.Dedup.Backend = getEnv("JOBRELAY_DEDUP_BACKEND", cfg.Dedup.Backend)
	cfg.Store.Driver = getEnv("JOBRELAY_STORE_DRIVER", cfg.Store.Driver)
	cfg.Pipeline.Concurrency = getEnvAsInt("JOBRELAY_CONCURRENCY", cfg.Pipeline.Concurrency)
	cfg.Pipeline.Schedule = getEnv("JOBRELAY_SCHEDULE", cfg.Pipeline.Schedule)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
