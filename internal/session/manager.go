// Package session signs authenticated accounts in.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"phone-auth-service/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultTTL = 14 * 24 * time.Hour
	// Non-persistent sessions live in a browser-session cookie; the server
	// side still expires them.
	transientTTL = 12 * time.Hour
)

var ErrPlaceholderAccount = errors.New("cannot sign in a placeholder account")

type Manager struct {
	store  models.SessionStore
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewManager(store models.SessionStore, ttl time.Duration, logger *zap.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, ttl: ttl, logger: logger, now: time.Now}
}

func (m *Manager) SignIn(ctx context.Context, account *models.Account, persistent bool, authMethod string) (*models.Session, error) {
	if account == nil || account.IsPlaceholder() {
		return nil, ErrPlaceholderAccount
	}

	ttl := m.ttl
	if !persistent && transientTTL < ttl {
		ttl = transientTTL
	}

	now := m.now().UTC()
	sess := &models.Session{
		ID:         uuid.New().String(),
		AccountID:  account.ID,
		Persistent: persistent,
		AuthMethod: authMethod,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}

	if err := m.store.SaveSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to sign in: %w", err)
	}

	m.logger.Info("Signed in",
		zap.String("account_id", account.ID),
		zap.String("session_id", sess.ID),
		zap.String("auth_method", authMethod),
		zap.Bool("persistent", persistent))
	return sess, nil
}

// Lookup returns the live session for id or models.ErrSessionNotFound.
func (m *Manager) Lookup(ctx context.Context, sessionID string) (*models.Session, error) {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Expired(m.now()) {
		_ = m.store.DeleteSession(ctx, sessionID)
		return nil, models.ErrSessionNotFound
	}
	return sess, nil
}

func (m *Manager) SignOut(ctx context.Context, sessionID string) error {
	return m.store.DeleteSession(ctx, sessionID)
}

// SignOutEverywhere revokes every session of the account.
func (m *Manager) SignOutEverywhere(ctx context.Context, accountID string) error {
	if err := m.store.DeleteAccountSessions(ctx, accountID); err != nil {
		return fmt.Errorf("failed to sign out account: %w", err)
	}
	m.logger.Info("Signed out everywhere", zap.String("account_id", accountID))
	return nil
}
