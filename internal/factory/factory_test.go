package factory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setDevEnv(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("AUTH_MASTER_SECRET", "")
	t.Setenv("AUTH_STORE_DRIVER", "memory")
	t.Setenv("SMS_DRIVER", "log")
	t.Setenv("AUDIT_SINKS", "log")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("KAFKA_ENABLED", "false")
	t.Setenv("ELASTICSEARCH_ENABLED", "false")
	t.Setenv("CLICKHOUSE_ENABLED", "false")
	t.Setenv("KMS_ENABLED", "false")
	t.Setenv("SERVER_ENABLE_TLS", "false")
	t.Setenv("JWT_PRIVATE_KEY_PATH", "")
}

func TestNewFactory_InMemory(t *testing.T) {
	setDevEnv(t)

	f, err := NewFactory(context.Background())
	require.NoError(t, err)
	t.Cleanup(f.Close)

	assert.NoError(t, f.HealthCheck(context.Background()))
	assert.Empty(t, f.HealthStatus(context.Background()))
	assert.Nil(t, f.TLSManager())

	router := f.Router()

	req := httptest.NewRequest(http.MethodPost, "/api/phone/verification", strings.NewReader(`{"phone":"+1 (111) 111-1111"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "resend_token")

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewFactory_UnknownAuditSink(t *testing.T) {
	setDevEnv(t)
	t.Setenv("AUDIT_SINKS", "log,carrier-pigeon")

	_, err := NewFactory(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestNewFactory_InvalidConfig(t *testing.T) {
	setDevEnv(t)
	t.Setenv("AUTH_STORE_DRIVER", "postgres")

	_, err := NewFactory(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_STORE_DRIVER")
}
