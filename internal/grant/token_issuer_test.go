package grant

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phone-auth-service/internal/config"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func jwtConfig() config.JWTConfig {
	return config.JWTConfig{
		KeyID:          "test-key",
		Issuer:         "https://auth.example.com",
		Audience:       "api",
		AccessTokenTTL: time.Hour,
	}
}

func TestTokenIssuer_IssueAndVerify(t *testing.T) {
	issuer := NewTokenIssuer(testKey(t), jwtConfig())

	tok, err := issuer.Issue(&GrantResult{Subject: "acct-1", AuthMethods: []string{"sms"}}, "native-app", "openid")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, 3600, tok.ExpiresIn)
	assert.Equal(t, "openid", tok.Scope)

	claims, err := issuer.Verify(tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", claims.Subject)
	assert.Equal(t, []string{"sms"}, claims.AMR)
	assert.Equal(t, "native-app", claims.ClientID)
	assert.Equal(t, "https://auth.example.com", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenIssuer_RejectsFailedGrant(t *testing.T) {
	issuer := NewTokenIssuer(testKey(t), jwtConfig())
	_, err := issuer.Issue(&GrantResult{Error: ErrorInvalidGrant}, "", "")
	assert.Error(t, err)
	_, err = issuer.Issue(nil, "", "")
	assert.Error(t, err)
}

func TestTokenIssuer_VerifyRejects(t *testing.T) {
	key := testKey(t)
	issuer := NewTokenIssuer(key, jwtConfig())
	tok, err := issuer.Issue(&GrantResult{Subject: "acct-1", AuthMethods: []string{"sms"}}, "", "")
	require.NoError(t, err)

	otherAudience := jwtConfig()
	otherAudience.Audience = "billing"
	_, err = NewTokenIssuer(key, otherAudience).Verify(tok.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewTokenIssuer(testKey(t), jwtConfig()).Verify(tok.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	later := NewTokenIssuer(key, jwtConfig())
	later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = later.Verify(tok.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLoadSigningKey(t *testing.T) {
	key := testKey(t)
	dir := t.TempDir()

	pkcs1 := filepath.Join(dir, "pkcs1.pem")
	require.NoError(t, os.WriteFile(pkcs1, pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}), 0o600))

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pkcs8 := filepath.Join(dir, "pkcs8.pem")
	require.NoError(t, os.WriteFile(pkcs8, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0o600))

	for _, path := range []string{pkcs1, pkcs8} {
		loaded, ephemeral, err := LoadSigningKey(path, false)
		require.NoError(t, err, path)
		assert.False(t, ephemeral)
		assert.True(t, key.Equal(loaded))
	}

	_, _, err = LoadSigningKey("", false)
	assert.Error(t, err)

	generated, ephemeral, err := LoadSigningKey("", true)
	require.NoError(t, err)
	assert.True(t, ephemeral)
	assert.Equal(t, 2048, generated.N.BitLen())

	_, _, err = LoadSigningKey(filepath.Join(dir, "missing.pem"), true)
	assert.Error(t, err)
}
