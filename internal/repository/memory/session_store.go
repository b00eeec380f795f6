package memory

import (
	"context"
	"sync"
	"time"

	"phone-auth-service/internal/models"
)

type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]models.Session)}
}

func (s *SessionStore) SaveSession(ctx context.Context, session *models.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = *session
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()

	if !ok {
		return nil, models.ErrSessionNotFound
	}
	if sess.Expired(time.Now()) {
		_ = s.DeleteSession(ctx, sessionID)
		return nil, models.ErrSessionNotFound
	}
	return &sess, nil
}

func (s *SessionStore) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *SessionStore) DeleteAccountSessions(ctx context.Context, accountID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if sess.AccountID == accountID {
			delete(s.sessions, id)
		}
	}
	return nil
}
