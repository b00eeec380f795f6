package models

import "time"

type Session struct {
	ID         string    `db:"session_id" json:"session_id"`
	AccountID  string    `db:"account_id" json:"account_id"`
	Persistent bool      `db:"persistent" json:"persistent"`
	AuthMethod string    `db:"auth_method" json:"auth_method"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	ExpiresAt  time.Time `db:"expires_at" json:"expires_at"`
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
