package grant

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"phone-auth-service/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

type AccessClaims struct {
	jwt.RegisteredClaims
	AMR      []string `json:"amr,omitempty"`
	ClientID string   `json:"client_id,omitempty"`
	Scope    string   `json:"scope,omitempty"`
}

type AccessToken struct {
	Token     string
	TokenType string
	ExpiresIn int
	Scope     string
}

// TokenIssuer signs RS256 access tokens for granted subjects.
type TokenIssuer struct {
	privateKey *rsa.PrivateKey
	keyID      string
	issuer     string
	audience   string
	ttl        time.Duration
	now        func() time.Time
}

func NewTokenIssuer(privateKey *rsa.PrivateKey, cfg config.JWTConfig) *TokenIssuer {
	ttl := cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{
		privateKey: privateKey,
		keyID:      cfg.KeyID,
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		ttl:        ttl,
		now:        time.Now,
	}
}

// LoadSigningKey reads a PEM encoded RSA key (PKCS#1 or PKCS#8). With no path
// and allowEphemeral set, a throwaway key is generated.
func LoadSigningKey(path string, allowEphemeral bool) (key *rsa.PrivateKey, ephemeral bool, err error) {
	if path == "" {
		if !allowEphemeral {
			return nil, false, errors.New("JWT_PRIVATE_KEY_PATH is required")
		}
		key, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, false, fmt.Errorf("failed to generate signing key: %w", err)
		}
		return key, true, nil
	}

	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read signing key: %w", err)
	}
	key, err = jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse signing key: %w", err)
	}
	return key, false, nil
}

func (p *TokenIssuer) Issue(result *GrantResult, clientID, scope string) (*AccessToken, error) {
	if result == nil || result.Failed() || result.Subject == "" {
		return nil, errors.New("cannot issue a token for a failed grant")
	}

	now := p.now().UTC()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   result.Subject,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
		AMR:      result.AuthMethods,
		ClientID: clientID,
		Scope:    scope,
	}

	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if p.keyID != "" {
		t.Header["kid"] = p.keyID
	}
	signed, err := t.SignedString(p.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	return &AccessToken{
		Token:     signed,
		TokenType: "Bearer",
		ExpiresIn: int(p.ttl / time.Second),
		Scope:     scope,
	}, nil
}

// Verify checks signature, expiry, issuer and audience.
func (p *TokenIssuer) Verify(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return &p.privateKey.PublicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
