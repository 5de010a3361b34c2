package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName         = "walletd"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultGatewayTimeout  = 10 * time.Second
	defaultReconcileEvery  = time.Hour
	defaultWebhookPoll     = 30 * time.Second
	defaultWebhookAttempts = 5
	defaultRateLimit       = 120
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Gateway providers.
const (
	GatewayToss     = "toss"
	GatewayRazorpay = "razorpay"
	GatewayStatic   = "static"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	RunMigrations  bool
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration
	RateLimit      int

	GatewayProvider string
	GatewayBaseURL  string
	GatewaySecret   string
	RazorpayKey     string
	RazorpaySecret  string
	GatewayTimeout  time.Duration

	ReconcileInterval time.Duration
	ReconcileAutoFix  bool

	WebhookSecret       string
	WebhookPollInterval time.Duration
	WebhookMaxAttempts  int
}

// Load reads configuration values from an optional .env file and the
// environment. Variables already set in the environment win over .env.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppName:         getEnv("APP_NAME", defaultAppName),
		AppEnv:          getEnv("APP_ENV", defaultAppEnv),
		Port:            getEnv("PORT", defaultPort),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		ShutdownPeriod:  defaultShutdownDelay,
		IdempotencyTTL:  defaultIdempotencyTTL,
		GatewayProvider: strings.ToLower(getEnv("GATEWAY_PROVIDER", GatewayStatic)),
		GatewayBaseURL:  os.Getenv("GATEWAY_BASE_URL"),
		GatewaySecret:   os.Getenv("GATEWAY_SECRET_KEY"),
		RazorpayKey:     os.Getenv("RAZORPAY_KEY"),
		RazorpaySecret:  os.Getenv("RAZORPAY_SECRET"),
		WebhookSecret:   os.Getenv("WEBHOOK_SECRET"),
	}

	var err error
	if cfg.ShutdownPeriod, err = durationFromEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationFromEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.GatewayTimeout, err = durationFromEnv("", "GATEWAY_TIMEOUT", defaultGatewayTimeout); err != nil {
		return Config{}, err
	}
	if cfg.ReconcileInterval, err = durationFromEnv("", "RECONCILE_INTERVAL", defaultReconcileEvery); err != nil {
		return Config{}, err
	}
	if cfg.WebhookPollInterval, err = durationFromEnv("", "WEBHOOK_POLL_INTERVAL", defaultWebhookPoll); err != nil {
		return Config{}, err
	}
	if cfg.WebhookMaxAttempts, err = intFromEnv("WEBHOOK_MAX_ATTEMPTS", defaultWebhookAttempts); err != nil {
		return Config{}, err
	}
	if cfg.RateLimit, err = intFromEnv("RATE_LIMIT_PER_MINUTE", defaultRateLimit); err != nil {
		return Config{}, err
	}
	if cfg.RunMigrations, err = boolFromEnv("RUN_MIGRATIONS", true); err != nil {
		return Config{}, err
	}
	if cfg.ReconcileAutoFix, err = boolFromEnv("RECONCILE_AUTOFIX", false); err != nil {
		return Config{}, err
	}

	switch cfg.GatewayProvider {
	case GatewayToss:
		if cfg.GatewaySecret == "" {
			return Config{}, fmt.Errorf("GATEWAY_SECRET_KEY must be set for the toss gateway")
		}
	case GatewayRazorpay:
		if cfg.RazorpayKey == "" || cfg.RazorpaySecret == "" {
			return Config{}, fmt.Errorf("RAZORPAY_KEY and RAZORPAY_SECRET must be set for the razorpay gateway")
		}
	case GatewayStatic:
	default:
		return Config{}, fmt.Errorf("unknown GATEWAY_PROVIDER %q", cfg.GatewayProvider)
	}

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
		if cfg.GatewayProvider == GatewayStatic {
			return Config{}, fmt.Errorf("the static gateway is only allowed when APP_ENV is development")
		}
		if cfg.WebhookSecret == "" {
			return Config{}, fmt.Errorf("WEBHOOK_SECRET must be set")
		}
	}

	return cfg, nil
}

// IsDev reports whether the app runs in a development environment, where
// empty DATABASE_URL and REDIS_URL select in-memory backends.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// durationFromEnv prefers an integer seconds variable, then a Go duration string.
func durationFromEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if secondsKey != "" {
		if v := os.Getenv(secondsKey); v != "" {
			seconds, err := strconv.Atoi(v)
			if err != nil {
				return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
			}
			return time.Duration(seconds) * time.Second, nil
		}
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
