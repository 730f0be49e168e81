package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBSSLMode  string
	AppPort    string
	AppEnv     string

	// PlatformBaseURL is the storefront host used when a store has no
	// custom domain, e.g. https://shops.example.com/{slug}.
	PlatformBaseURL string
	// APIBaseURL is where gateways deliver webhooks.
	APIBaseURL string

	JWTSecret string
	// CustomerJWTSecret verifies storefront shopper tokens. Without it every
	// checkout is a guest checkout.
	CustomerJWTSecret string
	InternalSecretKey string

	GatewayTimeout    time.Duration
	PendingPaymentTTL time.Duration
	ExpirySweep       time.Duration
	DefaultLocale     string
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:            os.Getenv("DB_HOST"),
		DBUser:            os.Getenv("DB_USER"),
		DBPassword:        os.Getenv("DB_PASSWORD"),
		DBName:            os.Getenv("DB_NAME"),
		DBPort:            os.Getenv("DB_PORT"),
		DBSSLMode:         getEnv("DB_SSLMODE", "disable"),
		AppPort:           getEnv("APP_PORT", "8080"),
		AppEnv:            os.Getenv("APP_ENV"),
		PlatformBaseURL:   getEnv("PLATFORM_BASE_URL", "https://shops.localhost"),
		APIBaseURL:        getEnv("API_BASE_URL", "https://api.localhost"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		CustomerJWTSecret: os.Getenv("CUSTOMER_JWT_SECRET"),
		InternalSecretKey: os.Getenv("INTERNAL_SECRET_KEY"),
		GatewayTimeout:    time.Duration(getInt("GATEWAY_TIMEOUT_SECONDS", 15)) * time.Second,
		PendingPaymentTTL: time.Duration(getInt("PENDING_PAYMENT_TTL_MINUTES", 30)) * time.Minute,
		ExpirySweep:       time.Duration(getInt("EXPIRY_SWEEP_SECONDS", 60)) * time.Second,
		DefaultLocale:     getEnv("CHECKOUT_LOCALE", "he"),
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

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
