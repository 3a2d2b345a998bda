package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingJWTSecret is returned by Load when JWT_SECRET is not set.
var ErrMissingJWTSecret = errors.New("JWT_SECRET must be set")

// Config holds every runtime setting of the service.
type Config struct {
	AppPort  string
	AppEnv   string
	LogLevel string

	DBDriver    string
	DatabaseDSN string

	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int

	UploadDir      string
	MaxUploadBytes int64

	RabbitMQURL     string
	CatalogExchange string
	CatalogQueue    string

	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	LoginRateLimit  int
	LoginRateWindow time.Duration

	CORSAllowOrigins string
}

// IsDevelopment reports whether the service runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.AppEnv, "development")
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", ":3060")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DATABASE_DSN", "secondchance.db")
	v.SetDefault("TOKEN_TTL", "1h")
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("UPLOAD_DIR", "public/images")
	v.SetDefault("MAX_UPLOAD_BYTES", 2*1024*1024)
	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("CATALOG_EXCHANGE", "secondchance.items")
	v.SetDefault("CATALOG_QUEUE", "secondchance.attachments")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("LOGIN_RATE_LIMIT", 10)
	v.SetDefault("LOGIN_RATE_WINDOW", "1m")
	v.SetDefault("CORS_ALLOW_ORIGINS", "*")
}

// Load reads configuration from v, which should already have AutomaticEnv
// enabled. A nil v uses a fresh viper instance bound to the environment.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
		v.AutomaticEnv()
	}
	SetDefaults(v)

	cfg := &Config{
		AppPort:          v.GetString("APP_PORT"),
		AppEnv:           v.GetString("APP_ENV"),
		LogLevel:         v.GetString("LOG_LEVEL"),
		DBDriver:         strings.ToLower(v.GetString("DB_DRIVER")),
		DatabaseDSN:      v.GetString("DATABASE_DSN"),
		JWTSecret:        v.GetString("JWT_SECRET"),
		TokenTTL:         v.GetDuration("TOKEN_TTL"),
		BcryptCost:       v.GetInt("BCRYPT_COST"),
		UploadDir:        v.GetString("UPLOAD_DIR"),
		MaxUploadBytes:   v.GetInt64("MAX_UPLOAD_BYTES"),
		RabbitMQURL:      v.GetString("RABBITMQ_URL"),
		CatalogExchange:  v.GetString("CATALOG_EXCHANGE"),
		CatalogQueue:     v.GetString("CATALOG_QUEUE"),
		RedisAddr:        v.GetString("REDIS_ADDR"),
		RedisPassword:    v.GetString("REDIS_PASSWORD"),
		RedisDB:          v.GetInt("REDIS_DB"),
		LoginRateLimit:   v.GetInt("LOGIN_RATE_LIMIT"),
		LoginRateWindow:  v.GetDuration("LOGIN_RATE_WINDOW"),
		CORSAllowOrigins: v.GetString("CORS_ALLOW_ORIGINS"),
	}

	if cfg.JWTSecret == "" {
		return nil, ErrMissingJWTSecret
	}
	switch cfg.DBDriver {
	case "postgres", "sqlite", "memory":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("TOKEN_TTL must be positive, got %s", cfg.TokenTTL)
	}
	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", cfg.MaxUploadBytes)
	}

	return cfg, nil
}
