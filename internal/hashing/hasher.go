package hashing

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

var ErrEmptySecret = errors.New("master secret must not be empty")

const subkeyLength = 32

// HKDF info labels. Changing any of these invalidates every outstanding code,
// placeholder stamp and resend token.
const (
	infoCodeKey          = "phone-auth/code-key/v1"
	infoPlaceholderStamp = "phone-auth/placeholder-stamp/v1"
	infoStampFingerprint = "phone-auth/stamp-fingerprint/v1"
	infoDataKey          = "phone-auth/data-key/v1"
)

// Hasher holds the subkeys derived from the service master secret.
type Hasher struct {
	codeKey        []byte
	placeholderKey []byte
	fingerprintKey []byte
	dataKey        []byte
}

func NewHasher(masterSecret []byte) (*Hasher, error) {
	if len(masterSecret) == 0 {
		return nil, ErrEmptySecret
	}

	h := &Hasher{}
	for _, sk := range []struct {
		info string
		dst  *[]byte
	}{
		{infoCodeKey, &h.codeKey},
		{infoPlaceholderStamp, &h.placeholderKey},
		{infoStampFingerprint, &h.fingerprintKey},
		{infoDataKey, &h.dataKey},
	} {
		key, err := derive(masterSecret, sk.info)
		if err != nil {
			return nil, err
		}
		*sk.dst = key
	}
	return h, nil
}

func derive(secret []byte, info string) ([]byte, error) {
	key := make([]byte, subkeyLength)
	r := hkdf.New(sha256.New, secret, nil, []byte(info))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive %s: %w", info, err)
	}
	return key, nil
}

// CodeKey returns the HMAC key verification codes are computed under for an
// account with the given security stamp.
func (h *Hasher) CodeKey(stamp string) []byte {
	return mac(h.codeKey, stamp)
}

// PlaceholderStamp returns the security stamp given to a placeholder account
// for a normalized phone number. It is stable across instances sharing the
// master secret.
func (h *Hasher) PlaceholderStamp(phoneNumber string) string {
	return base64.RawURLEncoding.EncodeToString(mac(h.placeholderKey, phoneNumber))
}

// StampFingerprint binds a resend token to a stamp without embedding it.
func (h *Hasher) StampFingerprint(stamp string) string {
	return base64.RawURLEncoding.EncodeToString(mac(h.fingerprintKey, stamp))
}

// DataKey is the AES-256 key used when no KMS-wrapped key is configured.
func (h *Hasher) DataKey() []byte {
	out := make([]byte, len(h.dataKey))
	copy(out, h.dataKey)
	return out
}

// NewRandomStamp returns a fresh stamp for a provisioned account.
func NewRandomStamp() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate security stamp: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func mac(key []byte, msg string) []byte {
	m := hmac.New(sha256.New, key)
	m.Write([]byte(msg))
	return m.Sum(nil)
}
