// Package resend issues the opaque tokens that authorize sending another
// verification code to the same number.
package resend

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"time"

	"phone-auth-service/internal/hashing"
	"phone-auth-service/internal/models"
	"phone-auth-service/internal/phone"
)

const (
	DefaultTTL  = 20 * time.Minute
	DefaultSkew = time.Minute
)

// Sealer is satisfied by *encryption.EncryptionManager.
type Sealer interface {
	Seal(ctx context.Context, plaintext, aad []byte) (string, error)
	Open(ctx context.Context, token string, aad []byte) ([]byte, error)
}

type payload struct {
	Purpose     string `json:"p"`
	AccountID   string `json:"a"`
	PhoneNumber string `json:"n"`
	Stamp       string `json:"s"`
	IssuedAt    int64  `json:"t"`
}

// Issuer has no revocation list: a superseded token stays valid until it
// expires or the account stamp rotates.
type Issuer struct {
	sealer Sealer
	hasher *hashing.Hasher
	ttl    time.Duration
	skew   time.Duration
	now    func() time.Time
}

type Option func(*Issuer)

func WithTTL(d time.Duration) Option {
	return func(i *Issuer) {
		if d > 0 {
			i.ttl = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

func NewIssuer(sealer Sealer, hasher *hashing.Hasher, opts ...Option) *Issuer {
	i := &Issuer{
		sealer: sealer,
		hasher: hasher,
		ttl:    DefaultTTL,
		skew:   DefaultSkew,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Issuer) Issue(ctx context.Context, purpose string, account *models.Account) (string, error) {
	body, err := json.Marshal(payload{
		Purpose:     purpose,
		AccountID:   account.ID,
		PhoneNumber: phone.Normalize(account.PhoneNumber),
		Stamp:       i.hasher.StampFingerprint(account.SecurityStamp),
		IssuedAt:    i.now().Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode resend token: %w", err)
	}

	token, err := i.sealer.Seal(ctx, body, []byte(purpose))
	if err != nil {
		return "", fmt.Errorf("failed to seal resend token: %w", err)
	}
	return token, nil
}

// Validate reports whether token was issued for purpose and account and is
// still within its lifetime. It never returns an error to the caller.
func (i *Issuer) Validate(ctx context.Context, purpose, token string, account *models.Account) bool {
	if token == "" || account == nil {
		return false
	}

	body, err := i.sealer.Open(ctx, token, []byte(purpose))
	if err != nil {
		return false
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return false
	}

	if p.Purpose != purpose || p.AccountID != account.ID {
		return false
	}
	if p.PhoneNumber != phone.Normalize(account.PhoneNumber) {
		return false
	}
	expected := i.hasher.StampFingerprint(account.SecurityStamp)
	if subtle.ConstantTimeCompare([]byte(p.Stamp), []byte(expected)) != 1 {
		return false
	}

	now := i.now()
	issued := time.Unix(p.IssuedAt, 0)
	if issued.After(now.Add(i.skew)) {
		return false
	}
	return now.Sub(issued) <= i.ttl
}
