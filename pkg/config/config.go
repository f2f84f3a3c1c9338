package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Lending       LendingConfig
	PolicyCache   PolicyCacheConfig
	Sweeper       SweeperConfig
	Notifications NotificationConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// LendingConfig holds the system-wide fallback lending policy.
type LendingConfig struct {
	DefaultLoanDays        int
	DefaultExtensionDays   int
	DefaultBorrowingLimit  int
	MaxPickupExtensionDays int
}

// PolicyCacheConfig toggles caching of resolved lending policies.
type PolicyCacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// SweeperConfig governs the periodic expiry and overdue sweep.
type SweeperConfig struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int
}

// NotificationConfig sizes the notification outbox worker pool.
type NotificationConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Lending = LendingConfig{
		DefaultLoanDays:        positiveOr(v.GetInt("LENDING_DEFAULT_LOAN_DAYS"), 14),
		DefaultExtensionDays:   positiveOr(v.GetInt("LENDING_DEFAULT_EXTENSION_DAYS"), 7),
		DefaultBorrowingLimit:  positiveOr(v.GetInt("LENDING_DEFAULT_BORROWING_LIMIT"), 2),
		MaxPickupExtensionDays: positiveOr(v.GetInt("LENDING_MAX_PICKUP_EXTENSION_DAYS"), 14),
	}

	cfg.PolicyCache = PolicyCacheConfig{
		Enabled: v.GetBool("ENABLE_POLICY_CACHE"),
		TTL:     parseDuration(v.GetString("POLICY_CACHE_TTL"), 10*time.Minute),
	}

	cfg.Sweeper = SweeperConfig{
		Enabled:   v.GetBool("ENABLE_SWEEPER"),
		Interval:  parseDuration(v.GetString("SWEEP_INTERVAL"), 5*time.Minute),
		BatchSize: positiveOr(v.GetInt("SWEEP_BATCH_SIZE"), 100),
	}

	cfg.Notifications = NotificationConfig{
		Workers:    positiveOr(v.GetInt("NOTIFY_WORKERS"), 2),
		MaxRetries: positiveOr(v.GetInt("NOTIFY_RETRIES"), 3),
		RetryDelay: parseDuration(v.GetString("NOTIFY_RETRY_DELAY"), 2*time.Second),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "library")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "library-lending-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LENDING_DEFAULT_LOAN_DAYS", 14)
	v.SetDefault("LENDING_DEFAULT_EXTENSION_DAYS", 7)
	v.SetDefault("LENDING_DEFAULT_BORROWING_LIMIT", 2)
	v.SetDefault("LENDING_MAX_PICKUP_EXTENSION_DAYS", 14)

	v.SetDefault("ENABLE_POLICY_CACHE", false)
	v.SetDefault("POLICY_CACHE_TTL", "10m")

	v.SetDefault("ENABLE_SWEEPER", true)
	v.SetDefault("SWEEP_INTERVAL", "5m")
	v.SetDefault("SWEEP_BATCH_SIZE", 100)

	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_RETRIES", 3)
	v.SetDefault("NOTIFY_RETRY_DELAY", "2s")
}

func positiveOr(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
