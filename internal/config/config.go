package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from the environment.
type Config struct {
	AppEnv         string
	LogLevel       string
	LogFormat      string
	HTTPListenAddr string
	PublicBaseURL  string
	PublicBasePath string

	MetricsNamespace string

	// Database: DATABASE_URL selects Postgres; with it empty the service
	// falls back to a local SQLite file at SQLitePath.
	DatabaseURL string
	DBSchema    string
	SQLitePath  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool

	WhatsAppEnabled   bool
	WhatsAppStorePath string
	WhatsAppLogLevel  string

	TelegramBotToken    string
	TelegramSecretToken string
	TelegramTimeout     time.Duration

	WeatherBaseURL  string
	WeatherTimeout  time.Duration
	WeatherCacheTTL time.Duration

	// FeedbackEvery asks for advisory feedback every Nth report per user.
	FeedbackEvery int
	// RetailMarkup is added to the wholesale market price to approximate
	// the retail price shown in reports (RD$ per unit).
	RetailMarkup float64
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
		HTTPListenAddr: getEnv("HTTP_LISTEN_ADDR", ":8080"),
		PublicBaseURL:  os.Getenv("PUBLIC_BASE_URL"),
		PublicBasePath: os.Getenv("PUBLIC_BASE_PATH"),

		MetricsNamespace: getEnv("METRICS_NAMESPACE", "conuco"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBSchema:    getEnv("DB_SCHEMA", "public"),
		SQLitePath:  getEnv("SQLITE_PATH", "data/conuco.db"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		WhatsAppStorePath: getEnv("WA_STORE_PATH", "data/wa-session.db"),
		WhatsAppLogLevel:  getEnv("WA_LOG_LEVEL", "WARN"),

		TelegramBotToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramSecretToken: os.Getenv("TELEGRAM_SECRET_TOKEN"),

		WeatherBaseURL: getEnv("WEATHER_BASE_URL", "https://api.open-meteo.com/v1/forecast"),
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.RedisTLS, err = getEnvBool("REDIS_TLS", false); err != nil {
		return nil, err
	}
	if cfg.WhatsAppEnabled, err = getEnvBool("WA_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.TelegramTimeout, err = getEnvDuration("TELEGRAM_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.WeatherTimeout, err = getEnvDuration("WEATHER_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.WeatherCacheTTL, err = getEnvDuration("WEATHER_CACHE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.FeedbackEvery, err = getEnvInt("FEEDBACK_EVERY", 1); err != nil {
		return nil, err
	}
	if cfg.FeedbackEvery < 1 {
		cfg.FeedbackEvery = 1
	}
	if cfg.RetailMarkup, err = getEnvFloat("RETAIL_MARKUP", 3.0); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}
