package models

import "time"

// PlaceholderAccountID is the id carried by every unpersisted placeholder
// account. It never names a stored row.
const PlaceholderAccountID = "00000000-0000-0000-0000-000000000000"

type AccountKind string

const (
	AccountKindReal        AccountKind = "real"
	AccountKindPlaceholder AccountKind = "placeholder"
)

type Account struct {
	Bucket               int         `db:"account_bucket" json:"-"`
	ID                   string      `db:"account_id" json:"id"`
	PhoneNumber          string      `db:"phone_number" json:"phone_number"`
	PhoneNumberConfirmed bool        `db:"phone_confirmed" json:"phone_number_confirmed"`
	SecurityStamp        string      `db:"security_stamp" json:"-"`
	Kind                 AccountKind `db:"-" json:"-"`
	CreatedAt            time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time   `db:"updated_at" json:"updated_at"`
	LastLoginAt          *time.Time  `db:"last_login_at" json:"last_login_at,omitempty"`
}

func (a *Account) IsPlaceholder() bool {
	return a != nil && a.Kind == AccountKindPlaceholder
}

// NewPlaceholderAccount builds the stand-in used for numbers with no account.
func NewPlaceholderAccount(phoneNumber, stamp string) *Account {
	return &Account{
		ID:            PlaceholderAccountID,
		PhoneNumber:   phoneNumber,
		SecurityStamp: stamp,
		Kind:          AccountKindPlaceholder,
	}
}
