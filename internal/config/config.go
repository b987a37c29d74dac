package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv  string
	AppPort string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	RedisAddr string

	PayOSClientID    string
	PayOSAPIKey      string
	PayOSChecksumKey string

	VNPayTmnCode    string
	VNPayHashSecret string

	MomoPartnerCode string
	MomoAccessKey   string
	MomoSecretKey   string

	DefaultProvider string
	ReturnURL       string
	WebhookBaseURL  string

	// PaymentWindow bounds how long an intent may wait for a webhook
	// before the sweeper expires it.
	PaymentWindow  time.Duration
	IdempotencyTTL time.Duration
	SweepInterval  time.Duration
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:  os.Getenv("APP_ENV"),
		AppPort: getEnv("APP_PORT", "8080"),

		DBHost:     os.Getenv("DB_HOST"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBPort:     getEnv("DB_PORT", "5432"),

		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),

		PayOSClientID:    os.Getenv("PAYOS_CLIENT_ID"),
		PayOSAPIKey:      os.Getenv("PAYOS_API_KEY"),
		PayOSChecksumKey: os.Getenv("PAYOS_CHECKSUM_KEY"),

		VNPayTmnCode:    os.Getenv("VNPAY_TMN_CODE"),
		VNPayHashSecret: os.Getenv("VNPAY_HASH_SECRET"),

		MomoPartnerCode: os.Getenv("MOMO_PARTNER_CODE"),
		MomoAccessKey:   os.Getenv("MOMO_ACCESS_KEY"),
		MomoSecretKey:   os.Getenv("MOMO_SECRET_KEY"),

		DefaultProvider: getEnv("DEFAULT_PROVIDER", "payos"),
		ReturnURL:       os.Getenv("CHECKOUT_RETURN_URL"),
		WebhookBaseURL:  os.Getenv("WEBHOOK_BASE_URL"),

		PaymentWindow:  getEnvMinutes("PAYMENT_WINDOW_MINUTES", 30),
		IdempotencyTTL: getEnvMinutes("IDEMPOTENCY_TTL_MINUTES", 24*60),
		SweepInterval:  getEnvMinutes("SWEEP_INTERVAL_MINUTES", 1),
	}

	if cfg.DBHost == "" {
		log.Fatal("Environment variables not loaded properly")
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvMinutes(key string, fallback int) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(fallback) * time.Minute
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return time.Duration(fallback) * time.Minute
	}
	return time.Duration(n) * time.Minute
}
