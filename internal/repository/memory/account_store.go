// Package memory holds single-process implementations of the account,
// consumed-code and session stores. They back development mode and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"phone-auth-service/internal/models"
)

// AccountStore enforces phone uniqueness under its mutex, matching the
// lightweight-transaction guarantee of the Scylla store.
type AccountStore struct {
	mu      sync.RWMutex
	byID    map[string]*models.Account
	byPhone map[string]string
}

func NewAccountStore() *AccountStore {
	return &AccountStore{
		byID:    make(map[string]*models.Account),
		byPhone: make(map[string]string),
	}
}

func (s *AccountStore) CreateAccount(ctx context.Context, account *models.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byPhone[account.PhoneNumber]; taken {
		return fmt.Errorf("%w: %s", models.ErrAccountExists, account.ID)
	}
	if _, taken := s.byID[account.ID]; taken {
		return fmt.Errorf("account id %s already in use", account.ID)
	}

	stored := *account
	s.byID[account.ID] = &stored
	s.byPhone[account.PhoneNumber] = account.ID
	return nil
}

func (s *AccountStore) GetAccountByPhone(ctx context.Context, phoneNumber string) (*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byPhone[phoneNumber]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	return s.copyOf(id)
}

func (s *AccountStore) GetAccountByID(ctx context.Context, accountID string) (*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyOf(accountID)
}

func (s *AccountStore) UpdateSecurityStamp(ctx context.Context, accountID, stamp string) error {
	return s.update(ctx, accountID, func(a *models.Account) {
		a.SecurityStamp = stamp
	})
}

func (s *AccountStore) UpdateLastLogin(ctx context.Context, accountID string, at time.Time) error {
	return s.update(ctx, accountID, func(a *models.Account) {
		t := at
		a.LastLoginAt = &t
	})
}

func (s *AccountStore) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the number of stored accounts.
func (s *AccountStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *AccountStore) update(ctx context.Context, accountID string, fn func(*models.Account)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[accountID]
	if !ok {
		return models.ErrAccountNotFound
	}
	fn(a)
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *AccountStore) copyOf(id string) (*models.Account, error) {
	a, ok := s.byID[id]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	out := *a
	if a.LastLoginAt != nil {
		t := *a.LastLoginAt
		out.LastLoginAt = &t
	}
	return &out, nil
}
