package models

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAccountExists   = errors.New("account already exists for phone number")
	ErrAccountNotFound = errors.New("account not found")
	ErrSessionNotFound = errors.New("session not found")
)

// AccountRepository persists real accounts. Phone numbers are unique; a
// CreateAccount that loses that race returns ErrAccountExists.
type AccountRepository interface {
	CreateAccount(ctx context.Context, account *Account) error
	GetAccountByPhone(ctx context.Context, phoneNumber string) (*Account, error)
	GetAccountByID(ctx context.Context, accountID string) (*Account, error)
	UpdateSecurityStamp(ctx context.Context, accountID, stamp string) error
	UpdateLastLogin(ctx context.Context, accountID string, at time.Time) error
	HealthCheck(ctx context.Context) error
}

type SessionStore interface {
	SaveSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	DeleteAccountSessions(ctx context.Context, accountID string) error
}
