package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all process configuration for the engine.
type AppConfig struct {
	TelegramToken   string
	DatabaseURL     string
	RedisAddr       string
	RedisUsername   string
	RedisPassword   string
	RedisDB         int
	ClinicUserID    string // staff id of the device user
	DeliveryChatID  int64  // Telegram chat receiving notifications
	ClinicTimezone  *time.Location
	LogLevel        string
	Environment     string
	HTTPPort        string
	CurrencySymbol  string
	CurrencyLocale  string
	CronSpecRefresh string // periodic refresh of every notification kind
	CronSpecPrune   string // ledger pruning
	LedgerRetention time.Duration
	DispatchEvery   time.Duration
	MaxPending      int
	RefreshTimeout  time.Duration // per notification kind
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables and a .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load does not override variables already set.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is not set")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.ClinicUserID = strings.TrimSpace(os.Getenv("CLINIC_USER_ID"))
	if cfg.ClinicUserID == "" {
		return nil, fmt.Errorf("CLINIC_USER_ID is not set")
	}

	chatIDStr := os.Getenv("DELIVERY_CHAT_ID")
	if chatIDStr == "" {
		return nil, fmt.Errorf("DELIVERY_CHAT_ID is not set")
	}
	cfg.DeliveryChatID, err = strconv.ParseInt(chatIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid DELIVERY_CHAT_ID: %w", err)
	}

	tz := getEnv("CLINIC_TIMEZONE", "America/Sao_Paulo")
	cfg.ClinicTimezone, err = time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid CLINIC_TIMEZONE %q: %w", tz, err)
	}

	cfg.RedisAddr = getEnv("REDIS_ADDR", "127.0.0.1:6379")
	cfg.RedisUsername = os.Getenv("REDIS_USERNAME")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}

	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	cfg.Environment = strings.ToLower(getEnv("ENVIRONMENT", "development"))
	cfg.HTTPPort = getEnv("HTTP_PORT", "8080")

	cfg.CurrencySymbol = getEnv("CURRENCY_SYMBOL", "$")
	cfg.CurrencyLocale = getEnv("CURRENCY_LOCALE", "en")

	cfg.CronSpecRefresh = getEnv("CRON_SPEC_REFRESH", "*/15 * * * *") // every 15 minutes
	cfg.CronSpecPrune = getEnv("CRON_SPEC_LEDGER_PRUNE", "30 3 * * *") // 03:30 daily

	retentionDays, err := getInt("LEDGER_RETENTION_DAYS", 45)
	if err != nil {
		return nil, err
	}
	if retentionDays < 8 {
		// Weekly markers must outlive one full cycle.
		return nil, fmt.Errorf("LEDGER_RETENTION_DAYS must be at least 8, got %d", retentionDays)
	}
	cfg.LedgerRetention = time.Duration(retentionDays) * 24 * time.Hour

	if cfg.MaxPending, err = getInt("MAX_PENDING", 64); err != nil {
		return nil, err
	}
	if cfg.MaxPending <= 0 {
		return nil, fmt.Errorf("MAX_PENDING must be positive, got %d", cfg.MaxPending)
	}

	cfg.DispatchEvery = getDuration("DISPATCH_INTERVAL", time.Second)
	cfg.RefreshTimeout = getDuration("REFRESH_TIMEOUT", 30*time.Second)
	cfg.ShutdownTimeout = getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

// getDuration accepts plain seconds or a Go duration string.
func getDuration(key string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		fmt.Fprintf(os.Stderr, "invalid duration for %s=%q, using default %s\n", key, v, def)
	}
	return def
}
