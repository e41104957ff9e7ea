package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	GeminiAPIKey string
	GeminiModel  string

	StorageBucket string
	AWSRegion     string

	ServerPort string
	ServerHost string

	// Worker pool configuration
	IndexerWorkers   int
	IndexerQueueSize int

	// Room lifecycle
	AnalysisTimeout  time.Duration
	CompletedRoomTTL time.Duration
	AbandonedRoomTTL time.Duration

	// Observability
	JaegerEndpoint string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "stargate"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-1.5-pro"),

		StorageBucket: getEnv("STORAGE_BUCKET", ""),
		AWSRegion:     getEnv("AWS_REGION", "us-east-1"),

		ServerPort: getEnv("SERVER_PORT", "8080"),
		ServerHost: getEnv("SERVER_HOST", "0.0.0.0"),

		IndexerWorkers:   getEnvInt("INDEXER_WORKERS", 3),
		IndexerQueueSize: getEnvInt("INDEXER_QUEUE_SIZE", 100),

		AnalysisTimeout:  getEnvDuration("ANALYSIS_TIMEOUT", 90*time.Second),
		CompletedRoomTTL: getEnvDuration("COMPLETED_ROOM_TTL", 5*time.Minute),
		AbandonedRoomTTL: getEnvDuration("ABANDONED_ROOM_TTL", time.Hour),

		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if cfg.StorageBucket == "" {
		return nil, fmt.Errorf("STORAGE_BUCKET is required")
	}

	return cfg, nil
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
