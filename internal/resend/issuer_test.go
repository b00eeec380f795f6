package resend

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phone-auth-service/internal/config"
	"phone-auth-service/internal/encryption"
	"phone-auth-service/internal/hashing"
	"phone-auth-service/internal/models"
)

const purpose = "resend_token"

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func setup(t *testing.T) (*Issuer, *clock) {
	t.Helper()
	h, err := hashing.NewHasher([]byte("test-master-secret"))
	require.NoError(t, err)
	em := encryption.NewEncryptionManager(config.KMSConfig{}, nil, bytes.Repeat([]byte{1}, 32))
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	return NewIssuer(em, h, WithClock(c.Now)), c
}

func account() *models.Account {
	return &models.Account{
		ID:            "a0d7c2b8-0a8e-4c57-8d0b-2a3c4e5f6a7b",
		PhoneNumber:   "+11111111111",
		SecurityStamp: "stamp-1",
		Kind:          models.AccountKindReal,
	}
}

func TestIssueValidate(t *testing.T) {
	issuer, _ := setup(t)
	ctx := context.Background()
	acct := account()

	token, err := issuer.Issue(ctx, purpose, acct)
	require.NoError(t, err)
	assert.True(t, issuer.Validate(ctx, purpose, token, acct))

	again, err := issuer.Issue(ctx, purpose, acct)
	require.NoError(t, err)
	assert.NotEqual(t, token, again, "every issue yields a new token")
	assert.True(t, issuer.Validate(ctx, purpose, token, acct), "superseded tokens stay valid until expiry")
}

func TestValidate_Expiry(t *testing.T) {
	issuer, c := setup(t)
	ctx := context.Background()
	acct := account()

	token, err := issuer.Issue(ctx, purpose, acct)
	require.NoError(t, err)

	c.t = c.t.Add(DefaultTTL)
	assert.True(t, issuer.Validate(ctx, purpose, token, acct))

	c.t = c.t.Add(time.Second)
	assert.False(t, issuer.Validate(ctx, purpose, token, acct))
}

func TestValidate_FutureIssuedAt(t *testing.T) {
	issuer, c := setup(t)
	ctx := context.Background()
	acct := account()

	c.t = c.t.Add(5 * time.Minute)
	token, err := issuer.Issue(ctx, purpose, acct)
	require.NoError(t, err)

	c.t = c.t.Add(-5 * time.Minute)
	assert.False(t, issuer.Validate(ctx, purpose, token, acct))
}

func TestValidate_Mismatches(t *testing.T) {
	issuer, _ := setup(t)
	ctx := context.Background()
	acct := account()

	token, err := issuer.Issue(ctx, purpose, acct)
	require.NoError(t, err)

	assert.False(t, issuer.Validate(ctx, "verify_number", token, acct), "purpose")

	other := account()
	other.ID = models.PlaceholderAccountID
	assert.False(t, issuer.Validate(ctx, purpose, token, other), "account id")

	other = account()
	other.PhoneNumber = "+12222222222"
	assert.False(t, issuer.Validate(ctx, purpose, token, other), "phone")

	other = account()
	other.SecurityStamp = "rotated"
	assert.False(t, issuer.Validate(ctx, purpose, token, other), "stamp rotation")

	assert.False(t, issuer.Validate(ctx, purpose, "garbage", acct))
	assert.False(t, issuer.Validate(ctx, purpose, "", acct))
	assert.False(t, issuer.Validate(ctx, purpose, token, nil))
}

func TestValidate_NormalizesPhone(t *testing.T) {
	issuer, _ := setup(t)
	ctx := context.Background()
	acct := account()
	acct.PhoneNumber = "+1 (111) 111-1111"

	token, err := issuer.Issue(ctx, purpose, acct)
	require.NoError(t, err)
	assert.True(t, issuer.Validate(ctx, purpose, token, account()))
}
