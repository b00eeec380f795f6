package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("AUTH_CODE_WINDOW", "")

	cfg := LoadConfig()

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, 6, cfg.Auth.CodeDigits)
	assert.Equal(t, 3*time.Minute, cfg.Auth.CodeWindow)
	assert.Equal(t, 20*time.Minute, cfg.Auth.ResendTokenTTL)
	assert.True(t, cfg.Auth.SingleUseCodes)
	assert.Equal(t, StoreDriverMemory, cfg.Auth.StoreDriver)
	assert.Equal(t, ":8080", cfg.GetServerAddress())
	assert.Same(t, cfg, Get())
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("AUTH_CODE_DIGITS", "8")
	t.Setenv("AUTH_CODE_WINDOW", "90s")
	t.Setenv("AUTH_SINGLE_USE_CODES", "false")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092 ,")
	t.Setenv("SERVER_PORT", "not-a-number")

	cfg := LoadConfig()

	assert.Equal(t, 8, cfg.Auth.CodeDigits)
	assert.Equal(t, 90*time.Second, cfg.Auth.CodeWindow)
	assert.False(t, cfg.Auth.SingleUseCodes)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	t.Setenv("ENVIRONMENT", EnvProduction)
	t.Setenv("AUTH_MASTER_SECRET", "short")
	t.Setenv("SMS_DRIVER", SMSDriverLog)

	cfg := LoadConfig()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_MASTER_SECRET")
	assert.Contains(t, err.Error(), "SMS_DRIVER=log")

	t.Setenv("AUTH_MASTER_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("SMS_DRIVER", SMSDriverHTTP)
	t.Setenv("SMS_API_URL", "https://sms.example.com/send")
	require.NoError(t, LoadConfig().Validate())
}
