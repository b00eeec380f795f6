package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"phone-auth-service/internal/bucketing"
	"phone-auth-service/internal/models"
	"phone-auth-service/internal/util"
)

const (
	insertAccount = `INSERT INTO accounts (
		account_bucket, account_id, phone_number, phone_confirmed, security_stamp, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)`

	deleteAccount = `DELETE FROM accounts WHERE account_bucket = ? AND account_id = ?`

	claimPhone = `INSERT INTO phone_to_account (phone_number, account_bucket, account_id, created_at)
		VALUES (?, ?, ?, ?) IF NOT EXISTS`

	selectPhone = `SELECT account_bucket, account_id FROM phone_to_account WHERE phone_number = ?`

	releasePhone = `DELETE FROM phone_to_account WHERE phone_number = ? IF account_id = ?`

	selectAccount = `SELECT account_bucket, account_id, phone_number, phone_confirmed, security_stamp,
		created_at, updated_at, last_login_at
		FROM accounts WHERE account_bucket = ? AND account_id = ?`

	updateStamp = `UPDATE accounts SET security_stamp = ?, updated_at = ?
		WHERE account_bucket = ? AND account_id = ? IF EXISTS`

	updateLastLogin = `UPDATE accounts SET last_login_at = ? WHERE account_bucket = ? AND account_id = ?`
)

type AccountRepository struct {
	client  *ScyllaClient
	buckets *bucketing.BucketingManager
}

func NewAccountRepository(client *ScyllaClient, buckets *bucketing.BucketingManager) *AccountRepository {
	return &AccountRepository{client: client, buckets: buckets}
}

// CreateAccount writes the account row first and then claims the phone number
// with a lightweight transaction. Only a claim known to be lost removes the
// row, so a visible phone mapping always points at an existing account.
func (r *AccountRepository) CreateAccount(ctx context.Context, account *models.Account) error {
	account.Bucket = r.buckets.GetAccountBucket(account.ID)

	err := r.client.Query(ctx, insertAccount,
		account.Bucket, account.ID, account.PhoneNumber, account.PhoneNumberConfirmed,
		account.SecurityStamp, account.CreatedAt, account.UpdatedAt).Exec()
	if err != nil {
		util.Error("Failed to create account",
			zap.String("account_id", account.ID),
			zap.Error(err))
		return fmt.Errorf("failed to create account: %w", err)
	}

	applied, err := r.client.Query(ctx, claimPhone,
		account.PhoneNumber, account.Bucket, account.ID, account.CreatedAt).
		MapScanCAS(map[string]interface{}{})
	if err != nil {
		// a timed out claim may still have been applied
		util.Warn("Phone claim outcome unknown, reading it back",
			zap.String("account_id", account.ID),
			zap.Error(err))
		owner, readErr := r.phoneOwner(ctx, account.PhoneNumber)
		switch claimOutcome(account.ID, owner, readErr) {
		case claimWon:
			applied = true
		case claimLost:
			applied = false
		case claimAbsent:
			r.removeOrphan(ctx, account)
			return fmt.Errorf("failed to claim phone number: %w", err)
		default:
			return fmt.Errorf("failed to claim phone number: %w", errors.Join(err, readErr))
		}
	}

	if !applied {
		r.removeOrphan(ctx, account)
		return fmt.Errorf("%w: %s", models.ErrAccountExists, account.ID)
	}

	util.Info("Account created",
		zap.String("account_id", account.ID),
		zap.Int("account_bucket", account.Bucket))
	return nil
}

// phoneOwner reads the claimed account id at serial consistency, which
// settles any claim still in flight.
func (r *AccountRepository) phoneOwner(ctx context.Context, phoneNumber string) (string, error) {
	var (
		bucket int
		id     string
	)
	q := r.client.Query(ctx, selectPhone, phoneNumber).Consistency(gocql.Consistency(gocql.LocalSerial))
	if err := r.client.ScanWithRetry(ctx, q, &bucket, &id); err != nil {
		return "", err
	}
	return id, nil
}

type claim int

const (
	claimUnknown claim = iota
	claimWon
	claimLost
	claimAbsent
)

// claimOutcome decides a claim whose result was lost from the owner read back
// afterwards. While the outcome is unknown the account row must stay.
func claimOutcome(accountID, owner string, readErr error) claim {
	switch {
	case errors.Is(readErr, gocql.ErrNotFound):
		return claimAbsent
	case readErr != nil:
		return claimUnknown
	case owner == accountID:
		return claimWon
	default:
		return claimLost
	}
}

func (r *AccountRepository) removeOrphan(ctx context.Context, account *models.Account) {
	if err := r.client.Query(ctx, deleteAccount, account.Bucket, account.ID).Exec(); err != nil {
		util.Warn("Failed to remove orphan account row",
			zap.String("account_id", account.ID),
			zap.Error(err))
	}
}

// GetAccountByPhone releases a mapping whose account row is gone so the
// number can be provisioned again.
func (r *AccountRepository) GetAccountByPhone(ctx context.Context, phoneNumber string) (*models.Account, error) {
	var (
		bucket int
		id     string
	)
	err := r.client.ScanWithRetry(ctx, r.client.Session.Query(selectPhone, phoneNumber), &bucket, &id)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, models.ErrAccountNotFound
		}
		util.Error("Failed to look up phone number", zap.Error(err))
		return nil, fmt.Errorf("failed to get account by phone: %w", err)
	}

	account, err := r.get(ctx, bucket, id)
	if errors.Is(err, models.ErrAccountNotFound) {
		r.releasePhone(ctx, phoneNumber, id)
	}
	return account, err
}

func (r *AccountRepository) releasePhone(ctx context.Context, phoneNumber, accountID string) {
	applied, err := r.client.Query(ctx, releasePhone, phoneNumber, accountID).
		MapScanCAS(map[string]interface{}{})
	if err != nil {
		util.Warn("Failed to release dangling phone mapping",
			zap.String("account_id", accountID),
			zap.Error(err))
		return
	}
	if applied {
		util.Warn("Released dangling phone mapping", zap.String("account_id", accountID))
	}
}

func (r *AccountRepository) GetAccountByID(ctx context.Context, accountID string) (*models.Account, error) {
	return r.get(ctx, r.buckets.GetAccountBucket(accountID), accountID)
}

func (r *AccountRepository) get(ctx context.Context, bucket int, accountID string) (*models.Account, error) {
	a := &models.Account{Kind: models.AccountKindReal}
	var lastLogin time.Time

	err := r.client.ScanWithRetry(ctx, r.client.Session.Query(selectAccount, bucket, accountID),
		&a.Bucket, &a.ID, &a.PhoneNumber, &a.PhoneNumberConfirmed, &a.SecurityStamp,
		&a.CreatedAt, &a.UpdatedAt, &lastLogin)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, models.ErrAccountNotFound
		}
		util.Error("Failed to get account",
			zap.String("account_id", accountID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if !lastLogin.IsZero() {
		a.LastLoginAt = &lastLogin
	}
	return a, nil
}

func (r *AccountRepository) UpdateSecurityStamp(ctx context.Context, accountID, stamp string) error {
	bucket := r.buckets.GetAccountBucket(accountID)

	applied, err := r.client.Query(ctx, updateStamp, stamp, time.Now().UTC(), bucket, accountID).
		MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("failed to update security stamp: %w", err)
	}
	if !applied {
		return models.ErrAccountNotFound
	}

	util.Info("Security stamp rotated", zap.String("account_id", accountID))
	return nil
}

func (r *AccountRepository) UpdateLastLogin(ctx context.Context, accountID string, at time.Time) error {
	bucket := r.buckets.GetAccountBucket(accountID)
	if err := r.client.Query(ctx, updateLastLogin, at, bucket, accountID).Exec(); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

func (r *AccountRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck(ctx)
}
