package encryption

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phone-auth-service/internal/config"
)

type fakeKMS struct {
	plaintext []byte
	err       error
	calls     int
	lastInput *kms.DecryptInput
}

func (f *fakeKMS) Decrypt(_ context.Context, in *kms.DecryptInput, _ ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	f.calls++
	f.lastInput = in
	if f.err != nil {
		return nil, f.err
	}
	return &kms.DecryptOutput{Plaintext: f.plaintext}, nil
}

func localManager() *EncryptionManager {
	return NewEncryptionManager(config.KMSConfig{}, nil, bytes.Repeat([]byte{7}, 32))
}

func TestSealOpen_RoundTrip(t *testing.T) {
	em := localManager()
	ctx := context.Background()

	token, err := em.Seal(ctx, []byte("payload"), []byte("resend_token"))
	require.NoError(t, err)

	got, err := em.Open(ctx, token, []byte("resend_token"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestSeal_FreshNonce(t *testing.T) {
	em := localManager()
	ctx := context.Background()

	a, err := em.Seal(ctx, []byte("payload"), nil)
	require.NoError(t, err)
	b, err := em.Seal(ctx, []byte("payload"), nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpen_Rejects(t *testing.T) {
	em := localManager()
	ctx := context.Background()

	token, err := em.Seal(ctx, []byte("payload"), []byte("resend_token"))
	require.NoError(t, err)
	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)

	flipped := append([]byte(nil), raw...)
	flipped[len(flipped)-1] ^= 0x01
	badVersion := append([]byte(nil), raw...)
	badVersion[0] = 9

	cases := map[string]struct {
		token string
		aad   string
	}{
		"wrong aad":   {token, "verify_number"},
		"tampered":    {base64.RawURLEncoding.EncodeToString(flipped), "resend_token"},
		"bad version": {base64.RawURLEncoding.EncodeToString(badVersion), "resend_token"},
		"garbage":     {"not-a-token!", "resend_token"},
		"too short":   {base64.RawURLEncoding.EncodeToString([]byte{1, 2, 3}), "resend_token"},
		"empty":       {"", "resend_token"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := em.Open(ctx, tc.token, []byte(tc.aad))
			assert.ErrorIs(t, err, ErrDecryptionFailed)
		})
	}
}

func TestKMSUnwrap(t *testing.T) {
	key := bytes.Repeat([]byte{3}, 32)
	fake := &fakeKMS{plaintext: key}
	cfg := config.KMSConfig{
		Enabled:        true,
		KeyID:          "alias/phone-auth",
		WrappedDataKey: base64.StdEncoding.EncodeToString([]byte("wrapped")),
	}
	em := NewEncryptionManager(cfg, fake, nil)
	ctx := context.Background()

	require.NoError(t, em.Init(ctx))
	token, err := em.Seal(ctx, []byte("x"), nil)
	require.NoError(t, err)
	_, err = em.Open(ctx, token, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, fake.calls, "data key is unwrapped once")
	assert.Equal(t, []byte("wrapped"), fake.lastInput.CiphertextBlob)
	assert.Equal(t, "alias/phone-auth", aws.ToString(fake.lastInput.KeyId))

	// a different key must not open tokens sealed under the KMS key
	_, err = localManager().Open(ctx, token, nil)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestKMSUnwrap_Failure(t *testing.T) {
	fake := &fakeKMS{err: errors.New("access denied")}
	cfg := config.KMSConfig{Enabled: true, WrappedDataKey: base64.StdEncoding.EncodeToString([]byte("w"))}
	em := NewEncryptionManager(cfg, fake, nil)

	err := em.Init(context.Background())
	assert.ErrorIs(t, err, ErrNoDataKey)

	_, err = em.Seal(context.Background(), []byte("x"), nil)
	assert.ErrorIs(t, err, ErrEncryptionFailed)
	assert.Equal(t, 2, fake.calls, "failed unwrap is retried")
}

func TestLocalKey_WrongLength(t *testing.T) {
	em := NewEncryptionManager(config.KMSConfig{}, nil, []byte("short"))
	assert.ErrorIs(t, em.Init(context.Background()), ErrNoDataKey)
}
