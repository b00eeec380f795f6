package models

import "time"

type AuthEventType string

const (
	EventLoginSuccess       AuthEventType = "login_success"
	EventLoginFailure       AuthEventType = "login_failure"
	EventCodeIssued         AuthEventType = "code_issued"
	EventCodeResent         AuthEventType = "code_resent"
	EventAccountProvisioned AuthEventType = "account_provisioned"
	EventLogout             AuthEventType = "logout"
)

// AuthEvent is an audit record. It must never carry a code or resend token.
type AuthEvent struct {
	ID          string        `db:"event_id" json:"event_id"`
	Type        AuthEventType `db:"event_type" json:"event_type"`
	AccountID   string        `db:"account_id" json:"account_id,omitempty"`
	PhoneNumber string        `db:"phone_number" json:"phone_number"`
	Reason      string        `db:"reason" json:"reason,omitempty"`
	ClientID    string        `db:"client_id" json:"client_id,omitempty"`
	RemoteIP    string        `db:"remote_ip" json:"remote_ip,omitempty"`
	OccurredAt  time.Time     `db:"occurred_at" json:"occurred_at"`
	EventBucket int           `db:"event_bucket" json:"event_bucket"`
	DateBucket  string        `db:"date_bucket" json:"date_bucket"`
}
