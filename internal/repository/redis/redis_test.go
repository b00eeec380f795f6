package redis

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phone-auth-service/internal/client"
	"phone-auth-service/internal/models"
)

// These tests need a live server: REDIS_TEST_URL=redis://localhost:6379/15
func testClient(t *testing.T) *client.RedisClient {
	t.Helper()
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	opts, err := goredis.ParseURL(url)
	require.NoError(t, err)
	rc := &client.RedisClient{Client: goredis.NewClient(opts)}
	t.Cleanup(func() { _ = rc.Close() })
	require.NoError(t, rc.HealthCheck(context.Background()))
	return rc
}

func TestConsumedCodeCache(t *testing.T) {
	cache := NewConsumedCodeCache(testClient(t))
	ctx := context.Background()
	key := "test-" + time.Now().Format(time.RFC3339Nano)

	fresh, err := cache.Consume(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = cache.Consume(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestSessionCache(t *testing.T) {
	cache := NewSessionCache(testClient(t))
	ctx := context.Background()
	accountID := "acct-" + time.Now().Format(time.RFC3339Nano)

	s1 := &models.Session{ID: accountID + "-s1", AccountID: accountID, AuthMethod: "sms", ExpiresAt: time.Now().Add(time.Hour)}
	s2 := &models.Session{ID: accountID + "-s2", AccountID: accountID, AuthMethod: "sms", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, cache.SaveSession(ctx, s1))
	require.NoError(t, cache.SaveSession(ctx, s2))

	got, err := cache.GetSession(ctx, s1.ID)
	require.NoError(t, err)
	assert.Equal(t, accountID, got.AccountID)

	require.NoError(t, cache.DeleteSession(ctx, s1.ID))
	_, err = cache.GetSession(ctx, s1.ID)
	assert.ErrorIs(t, err, models.ErrSessionNotFound)

	require.NoError(t, cache.DeleteAccountSessions(ctx, accountID))
	_, err = cache.GetSession(ctx, s2.ID)
	assert.ErrorIs(t, err, models.ErrSessionNotFound)

	assert.Error(t, cache.SaveSession(ctx, &models.Session{ID: "x", ExpiresAt: time.Now().Add(-time.Minute)}))
}
