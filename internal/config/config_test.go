package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	v := viper.New()
	v.Set("JWT_SECRET", "test_jwt_secret")

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, ":3060", cfg.AppPort)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.Equal(t, int64(2*1024*1024), cfg.MaxUploadBytes)
	assert.Equal(t, "public/images", cfg.UploadDir)
	assert.Equal(t, time.Minute, cfg.LoginRateWindow)
	assert.Empty(t, cfg.RabbitMQURL)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("DB_DRIVER", "MEMORY")
	t.Setenv("TOKEN_TTL", "30m")
	t.Setenv("APP_ENV", "production")

	v := viper.New()
	v.AutomaticEnv()

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.JWTSecret)
	assert.Equal(t, "memory", cfg.DBDriver)
	assert.Equal(t, 30*time.Minute, cfg.TokenTTL)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoad_MissingSecret(t *testing.T) {
	_, err := Load(viper.New())
	assert.ErrorIs(t, err, ErrMissingJWTSecret)
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	v := viper.New()
	v.Set("JWT_SECRET", "s")
	v.Set("DB_DRIVER", "mongodb")

	_, err := Load(v)
	assert.Error(t, err)
}
