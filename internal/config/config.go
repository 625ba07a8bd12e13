package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Marketplace API
	MarketplaceBaseURL string
	PaymentAPIBaseURL  string
	PublicSiteURL      string
	ReturnBaseURL      string
	DefaultTimezone    string
	HTTPClientTimeout  time.Duration

	// Availability probing
	ProbeConcurrency   int
	ProbeRatePerSecond float64
	ProbeTimeout       time.Duration

	// InFlightTimeout bounds how long an intent request or confirmation blocks the session.
	InFlightTimeout time.Duration

	// Payments
	StripeSecretKey   string
	StripeBaseURL     string
	AllowFakePayments bool

	// Sessions
	RedisAddr            string
	RedisPassword        string
	RedisTLS             bool
	SessionTTL           time.Duration
	SessionSigningSecret string
	StructuresCacheTTL   time.Duration

	// HTTP surface
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	// Outcome events
	OutcomeQueueURL     string
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables
func Load() *Config {
	marketplace := strings.TrimRight(getEnv("MARKETPLACE_BASE_URL", "https://bearound.onrender.com"), "/")
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		MarketplaceBaseURL: marketplace,
		PaymentAPIBaseURL:  strings.TrimRight(getEnv("PAYMENT_API_BASE_URL", marketplace), "/"),
		PublicSiteURL:      strings.TrimRight(getEnv("PUBLIC_SITE_URL", "https://www.bearound.eu"), "/"),
		ReturnBaseURL:      strings.TrimRight(getEnv("RETURN_BASE_URL", ""), "/"),
		DefaultTimezone:    getEnv("DEFAULT_TIMEZONE", "Europe/Rome"),
		HTTPClientTimeout:  getEnvAsDuration("HTTP_CLIENT_TIMEOUT", 15*time.Second),

		ProbeConcurrency:   getEnvAsInt("PROBE_CONCURRENCY", 8),
		ProbeRatePerSecond: getEnvAsFloat("PROBE_RATE_PER_SECOND", 0),
		ProbeTimeout:       getEnvAsDuration("PROBE_TIMEOUT", 30*time.Second),

		InFlightTimeout: getEnvAsDuration("IN_FLIGHT_TIMEOUT", 2*time.Minute),

		StripeSecretKey:   getEnv("STRIPE_SECRET_KEY", ""),
		StripeBaseURL:     getEnv("STRIPE_BASE_URL", ""),
		AllowFakePayments: getEnvAsBool("ALLOW_FAKE_PAYMENTS", false),

		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisTLS:             getEnvAsBool("REDIS_TLS", false),
		SessionTTL:           getEnvAsDuration("SESSION_TTL", 2*time.Hour),
		SessionSigningSecret: getEnv("SESSION_SIGNING_SECRET", ""),
		StructuresCacheTTL:   getEnvAsDuration("STRUCTURES_CACHE_TTL", 5*time.Minute),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 40),

		OutcomeQueueURL:     getEnv("OUTCOME_QUEUE_URL", ""),
		AWSRegion:           getEnv("AWS_REGION", "eu-south-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
