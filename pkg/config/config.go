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

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Sessions   SessionConfig
	Tokens     TokenConfig
	Reconciler ReconcilerConfig
	Devices    DeviceConfig
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

// SessionConfig tunes session lifecycle behaviour.
type SessionConfig struct {
	// StartWindow is how long before scheduled_start an instructor may
	// start the session. The UI shows a 5 minute window; the server is
	// the source of truth.
	StartWindow time.Duration
	// DefaultQRInterval applies when a session spec omits the refresh interval.
	DefaultQRInterval time.Duration
	// MinQRInterval/MaxQRInterval bound accepted refresh intervals.
	MinQRInterval time.Duration
	MaxQRInterval time.Duration
}

// TokenConfig tunes QR token issuance.
type TokenConfig struct {
	// GraceFactor scales the extra validity granted past one refresh
	// interval. 1.0 means a token lives for two intervals total.
	GraceFactor float64
}

// ReconcilerConfig governs biometric scan reconciliation.
type ReconcilerConfig struct {
	PollInterval     time.Duration
	BatchSize        int
	Workers          int
	DirectoryBaseURL string
	DirectoryTimeout time.Duration
}

// DeviceConfig authenticates biometric device sync calls.
type DeviceConfig struct {
	APIKey string
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
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

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

	cfg.Sessions = SessionConfig{
		StartWindow:       parseDuration(v.GetString("SESSION_START_WINDOW"), 5*time.Minute),
		DefaultQRInterval: parseDuration(v.GetString("QR_DEFAULT_INTERVAL"), 30*time.Second),
		MinQRInterval:     parseDuration(v.GetString("QR_MIN_INTERVAL"), 10*time.Second),
		MaxQRInterval:     parseDuration(v.GetString("QR_MAX_INTERVAL"), 5*time.Minute),
	}

	graceFactor := v.GetFloat64("QR_GRACE_FACTOR")
	if graceFactor <= 0 {
		graceFactor = 1.0
	}
	cfg.Tokens = TokenConfig{GraceFactor: graceFactor}

	cfg.Reconciler = ReconcilerConfig{
		PollInterval:     parseDuration(v.GetString("RECONCILER_POLL_INTERVAL"), time.Minute),
		BatchSize:        v.GetInt("RECONCILER_BATCH_SIZE"),
		Workers:          v.GetInt("RECONCILER_WORKERS"),
		DirectoryBaseURL: v.GetString("DIRECTORY_BASE_URL"),
		DirectoryTimeout: parseDuration(v.GetString("DIRECTORY_TIMEOUT"), 3*time.Second),
	}

	cfg.Devices = DeviceConfig{APIKey: v.GetString("DEVICE_API_KEY")}

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
	v.SetDefault("DB_NAME", "attendance_engine")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "attendance-engine")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SESSION_START_WINDOW", "5m")
	v.SetDefault("QR_DEFAULT_INTERVAL", "30s")
	v.SetDefault("QR_MIN_INTERVAL", "10s")
	v.SetDefault("QR_MAX_INTERVAL", "5m")
	v.SetDefault("QR_GRACE_FACTOR", 1.0)

	v.SetDefault("RECONCILER_POLL_INTERVAL", "1m")
	v.SetDefault("RECONCILER_BATCH_SIZE", 200)
	v.SetDefault("RECONCILER_WORKERS", 1)
	v.SetDefault("DIRECTORY_BASE_URL", "http://localhost:8090")
	v.SetDefault("DIRECTORY_TIMEOUT", "3s")

	v.SetDefault("DEVICE_API_KEY", "")
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
