// Package resolver maps a phone number to a stored account or, when none
// exists, to a placeholder shaped like one.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"phone-auth-service/internal/bucketing"
	"phone-auth-service/internal/hashing"
	"phone-auth-service/internal/models"
	"phone-auth-service/internal/phone"
	"phone-auth-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrProvisioningConflict means another request created the account first.
	ErrProvisioningConflict = errors.New("account was provisioned concurrently")
	ErrNotPlaceholder       = errors.New("only placeholder accounts can be provisioned")
	ErrNotReal              = errors.New("placeholder accounts have no stored stamp")
)

type Resolver struct {
	repo    models.AccountRepository
	hasher  *hashing.Hasher
	buckets *bucketing.BucketingManager
	logger  *zap.Logger
	now     func() time.Time
}

func NewResolver(repo models.AccountRepository, hasher *hashing.Hasher, buckets *bucketing.BucketingManager, logger *zap.Logger) *Resolver {
	return &Resolver{
		repo:    repo,
		hasher:  hasher,
		buckets: buckets,
		logger:  logger,
		now:     time.Now,
	}
}

// Resolve never reports a missing account. Only store failures are errors.
func (r *Resolver) Resolve(ctx context.Context, phoneNumber string) (*models.Account, error) {
	normalized := phone.Normalize(phoneNumber)

	account, err := r.repo.GetAccountByPhone(ctx, normalized)
	switch {
	case err == nil:
		account.Kind = models.AccountKindReal
		return account, nil
	case errors.Is(err, models.ErrAccountNotFound):
		return models.NewPlaceholderAccount(normalized, r.hasher.PlaceholderStamp(normalized)), nil
	default:
		return nil, fmt.Errorf("failed to resolve account: %w", err)
	}
}

// Provision persists a real account for the placeholder's phone number.
func (r *Resolver) Provision(ctx context.Context, placeholder *models.Account) (*models.Account, error) {
	if !placeholder.IsPlaceholder() {
		return nil, ErrNotPlaceholder
	}

	stamp, err := hashing.NewRandomStamp()
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	id := uuid.New().String()
	account := &models.Account{
		Bucket:               r.buckets.GetAccountBucket(id),
		ID:                   id,
		PhoneNumber:          phone.Normalize(placeholder.PhoneNumber),
		PhoneNumberConfirmed: true,
		SecurityStamp:        stamp,
		Kind:                 models.AccountKindReal,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := r.repo.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, models.ErrAccountExists) {
			r.logger.Info("Provisioning lost race for phone number",
				util.Phone("phone_number", account.PhoneNumber))
			return nil, fmt.Errorf("%w: %w", ErrProvisioningConflict, err)
		}
		return nil, fmt.Errorf("failed to provision account: %w", err)
	}

	r.logger.Info("Account provisioned",
		zap.String("account_id", account.ID),
		util.Phone("phone_number", account.PhoneNumber))
	return account, nil
}

// RotateStamp gives a real account a fresh security stamp, which retires every
// code and resend token derived from the old one.
func (r *Resolver) RotateStamp(ctx context.Context, account *models.Account) error {
	if account.IsPlaceholder() {
		return ErrNotReal
	}

	stamp, err := hashing.NewRandomStamp()
	if err != nil {
		return err
	}
	if err := r.repo.UpdateSecurityStamp(ctx, account.ID, stamp); err != nil {
		return fmt.Errorf("failed to rotate security stamp: %w", err)
	}
	account.SecurityStamp = stamp
	return nil
}
