package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	API struct {
		Port       string
		CronSecret string
	}
	DB struct {
		DSN         string
		Timeout     time.Duration
		AutoMigrate bool
	}
	Logging struct {
		Dir    string
		Level  string
		Format string
	}
	Email struct {
		ResendAPIKey string
		From         string
		RateLimit    int
		Timeout      time.Duration
		RenewURL     string
		SupportEmail string
	}
	Notification struct {
		Cooldown     time.Duration
		SweepWorkers int
	}
	Billing struct {
		DefaultCurrency string
		WebhookSecret   string
		CheckoutLinks   map[string]string
	}
	Kafka struct {
		Broker  string
		Topic   string
		GroupID string
	}
	Telegram struct {
		BotToken string
		ChatID   int64
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config
	var invalid []string

	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.CronSecret = os.Getenv("CRON_SECRET")

	cfg.DB.DSN = os.Getenv("DB_DSN")
	cfg.DB.Timeout = durationEnv("DB_TIMEOUT", 5*time.Second, &invalid)
	cfg.DB.AutoMigrate = boolEnv("DB_AUTO_MIGRATE", false, &invalid)

	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")
	cfg.Logging.Format = os.Getenv("LOG_FORMAT")

	// Email settings; an empty API key routes reminders to the log channel
	cfg.Email.ResendAPIKey = os.Getenv("RESEND_API_KEY")
	cfg.Email.From = os.Getenv("EMAIL_FROM")
	cfg.Email.RateLimit = intEnv("EMAIL_RATE_LIMIT", 2, &invalid)
	cfg.Email.Timeout = durationEnv("DELIVERY_TIMEOUT", 10*time.Second, &invalid)
	cfg.Email.RenewURL = os.Getenv("RENEW_URL")
	cfg.Email.SupportEmail = os.Getenv("SUPPORT_EMAIL")

	cfg.Notification.Cooldown = durationEnv("NOTIFICATION_COOLDOWN", 24*time.Hour, &invalid)
	cfg.Notification.SweepWorkers = intEnv("SWEEP_WORKERS", 1, &invalid)

	cfg.Billing.DefaultCurrency = strings.ToUpper(os.Getenv("DEFAULT_CURRENCY"))
	cfg.Billing.WebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")
	cfg.Billing.CheckoutLinks = map[string]string{
		"monthly":  os.Getenv("STRIPE_LINK_MONTHLY"),
		"annual":   os.Getenv("STRIPE_LINK_ANNUAL"),
		"lifetime": os.Getenv("STRIPE_LINK_LIFETIME"),
	}

	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = os.Getenv("KAFKA_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			invalid = append(invalid, "TELEGRAM_CHAT_ID")
		}
		cfg.Telegram.ChatID = id
	}

	// Validate required settings
	missing := []string{}
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if cfg.API.CronSecret == "" {
		missing = append(missing, "CRON_SECRET")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}
	if cfg.Notification.SweepWorkers < 1 {
		invalid = append(invalid, "SWEEP_WORKERS")
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid configurations: %v", invalid)
	}

	// Apply defaults
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Email.From == "" {
		cfg.Email.From = "notificaciones@victoriacrm.com"
	}
	if cfg.Email.RenewURL == "" {
		cfg.Email.RenewURL = "https://victoriacrm.com/renovar"
	}
	if cfg.Email.SupportEmail == "" {
		cfg.Email.SupportEmail = "support@victoriacrm.com"
	}
	if cfg.Billing.DefaultCurrency == "" {
		cfg.Billing.DefaultCurrency = "EUR"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "payment_events"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "renewal-service"
	}

	return cfg, nil
}

func durationEnv(key string, def time.Duration, invalid *[]string) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		*invalid = append(*invalid, key)
		return def
	}
	return d
}

func intEnv(key string, def int, invalid *[]string) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*invalid = append(*invalid, key)
		return def
	}
	return n
}

func boolEnv(key string, def bool, invalid *[]string) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		*invalid = append(*invalid, key)
		return def
	}
	return b
}
