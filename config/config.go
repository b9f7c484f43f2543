package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppMode    string
	ListenAddr string

	// Hosted backend
	APIBaseURL     string
	SessionToken   string
	RequestTimeout time.Duration

	// Push transport: "redis" or "websocket"
	PushTransport string
	PushURL       string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Sync controller tuning
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	LivenessWindow time.Duration

	// Media uploads
	S3Region     string
	S3Bucket     string
	S3AccessKey  string
	S3SecretKey  string
	S3Endpoint   string
	S3PublicBase string
	MaxUploadMB  int
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppMode:    getEnv("APP_MODE", "development"),
		ListenAddr: getEnv("LISTEN_ADDR", "127.0.0.1:7420"),

		APIBaseURL:     getEnv("API_BASE_URL", "https://api.verdant.app"),
		SessionToken:   getEnv("SESSION_TOKEN", ""),
		RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 15*time.Second),

		PushTransport: getEnv("PUSH_TRANSPORT", "redis"),
		PushURL:       getEnv("PUSH_URL", "wss://push.verdant.app/realtime"),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		BackoffBase:    getEnvAsDuration("BACKOFF_BASE", time.Second),
		BackoffCap:     getEnvAsDuration("BACKOFF_CAP", 30*time.Second),
		LivenessWindow: getEnvAsDuration("LIVENESS_WINDOW", 45*time.Second),

		S3Region:     getEnv("S3_REGION", ""),
		S3Bucket:     getEnv("S3_BUCKET", ""),
		S3AccessKey:  getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:  getEnv("S3_SECRET_KEY", ""),
		S3Endpoint:   getEnv("S3_ENDPOINT", ""),
		S3PublicBase: getEnv("S3_PUBLIC_BASE", ""),
		MaxUploadMB:  getEnvAsInt("MAX_UPLOAD_MB", 25),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}
