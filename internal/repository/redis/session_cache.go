package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"phone-auth-service/internal/client"
	"phone-auth-service/internal/models"
	"phone-auth-service/internal/util"
)

const (
	sessionDataPrefix     = "session_data:"
	accountSessionsPrefix = "account_sessions:"
)

// SessionCache stores sign-in sessions keyed by session id, with a per-account
// index so every session of an account can be revoked at once.
type SessionCache struct {
	client *client.RedisClient
}

func NewSessionCache(client *client.RedisClient) *SessionCache {
	return &SessionCache{client: client}
}

func (c *SessionCache) SaveSession(ctx context.Context, session *models.Session) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired", session.ID)
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, sessionDataPrefix+session.ID, data, ttl)
	indexKey := accountSessionsPrefix + session.AccountID
	pipe.SAdd(ctx, indexKey, session.ID)
	pipe.Expire(ctx, indexKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		util.Error("Failed to save session",
			zap.String("account_id", session.AccountID),
			zap.String("session_id", session.ID),
			zap.Duration("ttl", ttl),
			zap.Error(err))
		return fmt.Errorf("failed to save session: %w", err)
	}

	util.Debug("Session saved",
		zap.String("account_id", session.AccountID),
		zap.String("session_id", session.ID),
		zap.Duration("ttl", ttl))
	return nil
}

func (c *SessionCache) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	raw, err := c.client.Get(ctx, sessionDataPrefix+sessionID)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return nil, models.ErrSessionNotFound
		}
		util.Error("Failed to get session", zap.String("session_id", sessionID), zap.Error(err))
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (c *SessionCache) DeleteSession(ctx context.Context, sessionID string) error {
	session, err := c.GetSession(ctx, sessionID)
	if errors.Is(err, models.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pipe := c.client.Pipeline()
	pipe.Del(ctx, sessionDataPrefix+sessionID)
	pipe.SRem(ctx, accountSessionsPrefix+session.AccountID, sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		util.Error("Failed to delete session", zap.String("session_id", sessionID), zap.Error(err))
		return fmt.Errorf("failed to delete session: %w", err)
	}

	util.Info("Session invalidated",
		zap.String("account_id", session.AccountID),
		zap.String("session_id", sessionID))
	return nil
}

// DeleteAccountSessions revokes every session of an account.
func (c *SessionCache) DeleteAccountSessions(ctx context.Context, accountID string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	indexKey := accountSessionsPrefix + accountID
	ids, err := c.client.SMembers(ctx, indexKey)
	if err != nil {
		return fmt.Errorf("failed to list account sessions: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionDataPrefix+id)
	}
	keys = append(keys, indexKey)

	if err := c.client.Del(ctx, keys...); err != nil {
		util.Error("Failed to invalidate account sessions", zap.String("account_id", accountID), zap.Error(err))
		return fmt.Errorf("failed to invalidate account sessions: %w", err)
	}

	util.Info("Account sessions invalidated",
		zap.String("account_id", accountID),
		zap.Int("count", len(ids)))
	return nil
}
