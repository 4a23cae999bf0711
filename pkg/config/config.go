package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	RateBackendMemory = "memory"
	RateBackendRedis  = "redis"
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
	ListingCache  ListingCacheConfig
	ReportLimit   ReportLimitConfig
	Trades        TradeConfig
	Notifications NotificationConfig
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	Name          string
	SSLMode       string
	MaxOpenConns  int
	MaxIdleConns  int
	MigrationsDir string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ListingCacheConfig governs the redis cache in front of public listing reads.
type ListingCacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// ReportLimitConfig throttles how many listing reports one actor may file.
type ReportLimitConfig struct {
	Limit   int
	Window  time.Duration
	Backend string
	MaxKeys int
}

// TradeConfig bounds trade offer expiry.
type TradeConfig struct {
	DefaultExpiryHours int
	MaxExpiryHours     int
	ExpiryConcurrency  int
}

// NotificationConfig sizes the notification worker pool.
type NotificationConfig struct {
	Workers    int
	Retries    int
	BufferSize int
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:          v.GetString("DB_HOST"),
		Port:          v.GetInt("DB_PORT"),
		User:          v.GetString("DB_USER"),
		Password:      v.GetString("DB_PASSWORD"),
		Name:          v.GetString("DB_NAME"),
		SSLMode:       v.GetString("DB_SSL_MODE"),
		MaxOpenConns:  v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:  v.GetInt("DB_MAX_IDLE_CONNS"),
		MigrationsDir: v.GetString("DB_MIGRATIONS_DIR"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Issuer:     v.GetString("JWT_ISSUER"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.ListingCache = ListingCacheConfig{
		Enabled: v.GetBool("ENABLE_LISTING_CACHE"),
		TTL:     parseDuration(v.GetString("LISTING_CACHE_TTL"), 2*time.Minute),
	}

	backend := strings.ToLower(strings.TrimSpace(v.GetString("REPORT_RATE_BACKEND")))
	if backend != RateBackendRedis {
		backend = RateBackendMemory
	}
	cfg.ReportLimit = ReportLimitConfig{
		Limit:   positiveOr(v.GetInt("REPORT_RATE_LIMIT"), 5),
		Window:  parseDuration(v.GetString("REPORT_RATE_WINDOW"), 15*time.Minute),
		Backend: backend,
		MaxKeys: positiveOr(v.GetInt("REPORT_RATE_MAX_KEYS"), 10000),
	}

	cfg.Trades = TradeConfig{
		DefaultExpiryHours: positiveOr(v.GetInt("TRADE_DEFAULT_EXPIRY_HOURS"), 72),
		MaxExpiryHours:     positiveOr(v.GetInt("TRADE_MAX_EXPIRY_HOURS"), 168),
		ExpiryConcurrency:  positiveOr(v.GetInt("TRADE_EXPIRY_CONCURRENCY"), 4),
	}

	cfg.Notifications = NotificationConfig{
		Workers:    positiveOr(v.GetInt("NOTIFY_WORKERS"), 2),
		Retries:    positiveOr(v.GetInt("NOTIFY_RETRIES"), 3),
		BufferSize: positiveOr(v.GetInt("NOTIFY_BUFFER_SIZE"), 256),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "card_market")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_MIGRATIONS_DIR", "")

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "card-market")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_LISTING_CACHE", false)
	v.SetDefault("LISTING_CACHE_TTL", "2m")

	v.SetDefault("REPORT_RATE_LIMIT", 5)
	v.SetDefault("REPORT_RATE_WINDOW", "15m")
	v.SetDefault("REPORT_RATE_BACKEND", RateBackendMemory)
	v.SetDefault("REPORT_RATE_MAX_KEYS", 10000)

	v.SetDefault("TRADE_DEFAULT_EXPIRY_HOURS", 72)
	v.SetDefault("TRADE_MAX_EXPIRY_HOURS", 168)
	v.SetDefault("TRADE_EXPIRY_CONCURRENCY", 4)

	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_RETRIES", 3)
	v.SetDefault("NOTIFY_BUFFER_SIZE", 256)
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

func positiveOr(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
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
