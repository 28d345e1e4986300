package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	LogLevel    string

	OTLPEndpoint string
	OtelEnabled  bool

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string

	SchedulerInterval time.Duration

	Stripe StripeConfig
	Wechat WechatConfig
	Alipay AlipayConfig
	PayPal PayPalConfig
}

// StripeConfig carries the webhook shared secret and signature tolerance.
type StripeConfig struct {
	WebhookSecret      string
	SignatureTolerance time.Duration
}

// WechatConfig carries the APIv3 AEAD key and the platform certificate
// public key used to verify notification signatures.
type WechatConfig struct {
	APIv3Key           string
	PlatformCertPEM    string
	SignatureTolerance time.Duration
}

// AlipayConfig carries the Alipay public key used for RSA2 verification.
type AlipayConfig struct {
	PublicKeyPEM string
}

// PayPalConfig carries REST credentials for the server-to-server capture call.
type PayPalConfig struct {
	ClientID       string
	ClientSecret   string
	BaseURL        string
	CaptureTimeout time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "appforge"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),
		OtelEnabled:  getenvBool("OTEL_ENABLED", false),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "appforge"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		SchedulerInterval: getenvDuration("SCHEDULER_INTERVAL", time.Minute),

		Stripe: StripeConfig{
			WebhookSecret:      strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			SignatureTolerance: getenvDuration("STRIPE_SIGNATURE_TOLERANCE", 5*time.Minute),
		},
		Wechat: WechatConfig{
			APIv3Key:           strings.TrimSpace(getenv("WECHAT_APIV3_KEY", "")),
			PlatformCertPEM:    getenv("WECHAT_PLATFORM_CERT", ""),
			SignatureTolerance: getenvDuration("WECHAT_SIGNATURE_TOLERANCE", 5*time.Minute),
		},
		Alipay: AlipayConfig{
			PublicKeyPEM: getenv("ALIPAY_PUBLIC_KEY", ""),
		},
		PayPal: PayPalConfig{
			ClientID:       strings.TrimSpace(getenv("PAYPAL_CLIENT_ID", "")),
			ClientSecret:   strings.TrimSpace(getenv("PAYPAL_CLIENT_SECRET", "")),
			BaseURL:        getenv("PAYPAL_BASE_URL", "https://api-m.sandbox.paypal.com"),
			CaptureTimeout: getenvDuration("PAYPAL_CAPTURE_TIMEOUT", 5*time.Second),
		},
	}
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func getenvBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}
