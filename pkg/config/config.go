package config

import (
	"errors"
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
	Workflow      WorkflowConfig
	Dashboard     DashboardConfig
	Manuscripts   ManuscriptsConfig
	Notifications NotificationsConfig
	SMTP          SMTPConfig
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

// WorkflowConfig tunes the review lifecycle policy.
type WorkflowConfig struct {
	MaxReviewers int
}

// DashboardConfig governs status statistics caching.
type DashboardConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// ManuscriptsConfig controls manuscript storage & validation.
type ManuscriptsConfig struct {
	StorageDir       string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// NotificationsConfig sizes the delivery worker pool.
type NotificationsConfig struct {
	Workers      int
	Retries      int
	EmailEnabled bool
}

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	From          string
	SkipTLSVerify bool
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
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
		Issuer:     v.GetString("JWT_ISSUER"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxReviewers := v.GetInt("WORKFLOW_MAX_REVIEWERS")
	if maxReviewers <= 0 {
		maxReviewers = 5
	}
	cfg.Workflow = WorkflowConfig{MaxReviewers: maxReviewers}

	cfg.Dashboard = DashboardConfig{
		CacheEnabled: v.GetBool("ENABLE_DASHBOARD_CACHE"),
		CacheTTL:     parseDuration(v.GetString("DASHBOARD_CACHE_TTL"), 5*time.Minute),
	}

	maxFileSize := v.GetInt64("MANUSCRIPTS_MAX_FILE_SIZE")
	if maxFileSize <= 0 {
		maxFileSize = 20 * 1024 * 1024
	}
	cfg.Manuscripts = ManuscriptsConfig{
		StorageDir:       v.GetString("MANUSCRIPTS_STORAGE_DIR"),
		SignedURLSecret:  v.GetString("MANUSCRIPTS_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("MANUSCRIPTS_SIGNED_URL_TTL"), 30*time.Minute),
		MaxFileSizeBytes: maxFileSize,
		AllowedMIMEs:     splitAndTrim(v.GetString("MANUSCRIPTS_ALLOWED_MIME_TYPES")),
	}

	cfg.Notifications = NotificationsConfig{
		Workers:      v.GetInt("NOTIFY_WORKERS"),
		Retries:      v.GetInt("NOTIFY_RETRIES"),
		EmailEnabled: v.GetBool("ENABLE_EMAIL"),
	}

	cfg.SMTP = SMTPConfig{
		Host:          v.GetString("SMTP_HOST"),
		Port:          v.GetInt("SMTP_PORT"),
		User:          v.GetString("SMTP_USER"),
		Password:      v.GetString("SMTP_PASS"),
		From:          v.GetString("SMTP_FROM"),
		SkipTLSVerify: v.GetBool("SMTP_SKIP_TLS_VERIFY"),
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
	v.SetDefault("DB_NAME", "jms")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "jms-api")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("WORKFLOW_MAX_REVIEWERS", 5)
	v.SetDefault("ENABLE_DASHBOARD_CACHE", false)
	v.SetDefault("DASHBOARD_CACHE_TTL", "5m")

	v.SetDefault("MANUSCRIPTS_STORAGE_DIR", "./manuscripts")
	v.SetDefault("MANUSCRIPTS_SIGNED_URL_SECRET", "dev_manuscripts_secret")
	v.SetDefault("MANUSCRIPTS_SIGNED_URL_TTL", "30m")
	v.SetDefault("MANUSCRIPTS_MAX_FILE_SIZE", 20*1024*1024)
	v.SetDefault("MANUSCRIPTS_ALLOWED_MIME_TYPES", "application/pdf,application/msword,application/vnd.openxmlformats-officedocument.wordprocessingml.document")

	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_RETRIES", 3)
	v.SetDefault("ENABLE_EMAIL", false)

	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASS", "")
	v.SetDefault("SMTP_FROM", "")
	v.SetDefault("SMTP_SKIP_TLS_VERIFY", false)
}

// isMissingFile tolerates an absent .env; viper reports it as an fs error
// rather than ConfigFileNotFoundError when SetConfigFile is used.
func isMissingFile(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "no such file")
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
