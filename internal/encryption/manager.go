package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"

	"phone-auth-service/internal/config"
	"phone-auth-service/internal/util"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"go.uber.org/zap"
)

var (
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrNoDataKey        = errors.New("no data key available")
)

const tokenVersion byte = 1

// KMSDecrypter is the subset of *kms.Client used to unwrap the data key.
type KMSDecrypter interface {
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// EncryptionManager seals short-lived tokens under a single AES-256 data key.
// With KMS enabled the key is the unwrapped KMS_WRAPPED_DATA_KEY; otherwise
// the caller-supplied local key is used.
type EncryptionManager struct {
	kmsClient KMSDecrypter
	config    config.KMSConfig
	localKey  []byte

	mu      sync.RWMutex
	dataKey cipher.AEAD
}

func NewEncryptionManager(cfg config.KMSConfig, kmsClient KMSDecrypter, localKey []byte) *EncryptionManager {
	return &EncryptionManager{
		kmsClient: kmsClient,
		config:    cfg,
		localKey:  localKey,
	}
}

// Init resolves the data key. It is safe to call more than once; a failed
// unwrap is retried on the next call.
func (em *EncryptionManager) Init(ctx context.Context) error {
	_, err := em.aead(ctx)
	return err
}

func (em *EncryptionManager) aead(ctx context.Context) (cipher.AEAD, error) {
	em.mu.RLock()
	gcm := em.dataKey
	em.mu.RUnlock()
	if gcm != nil {
		return gcm, nil
	}

	em.mu.Lock()
	defer em.mu.Unlock()
	if em.dataKey != nil {
		return em.dataKey, nil
	}

	key, err := em.loadKey(ctx)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDataKey, err)
	}
	gcm, err = cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDataKey, err)
	}
	em.dataKey = gcm
	return gcm, nil
}

func (em *EncryptionManager) loadKey(ctx context.Context) ([]byte, error) {
	if !em.config.Enabled {
		if len(em.localKey) != 32 {
			return nil, fmt.Errorf("%w: local key must be 32 bytes", ErrNoDataKey)
		}
		return em.localKey, nil
	}
	if em.kmsClient == nil {
		return nil, fmt.Errorf("%w: kms client not configured", ErrNoDataKey)
	}

	blob, err := base64.StdEncoding.DecodeString(em.config.WrappedDataKey)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid wrapped data key: %v", ErrNoDataKey, err)
	}

	input := &kms.DecryptInput{CiphertextBlob: blob}
	if em.config.KeyID != "" {
		input.KeyId = aws.String(em.config.KeyID)
	}

	result, err := em.kmsClient.Decrypt(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to unwrap data key: %v", ErrNoDataKey, err)
	}
	if len(result.Plaintext) != 32 {
		return nil, fmt.Errorf("%w: unwrapped key is %d bytes, want 32", ErrNoDataKey, len(result.Plaintext))
	}

	util.Info("Data key unwrapped via KMS", zap.String("key_id", em.config.KeyID))
	return result.Plaintext, nil
}

// Seal encrypts plaintext and binds it to aad. The result is URL safe.
func (em *EncryptionManager) Seal(ctx context.Context, plaintext, aad []byte) (string, error) {
	gcm, err := em.aead(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	out := make([]byte, 1+gcm.NonceSize(), 1+gcm.NonceSize()+len(plaintext)+gcm.Overhead())
	out[0] = tokenVersion
	nonce := out[1:]
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	out = gcm.Seal(out, nonce, plaintext, aad)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Any tampering, version mismatch or aad mismatch yields
// ErrDecryptionFailed.
func (em *EncryptionManager) Open(ctx context.Context, token string, aad []byte) ([]byte, error) {
	gcm, err := em.aead(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid token encoding", ErrDecryptionFailed)
	}
	if len(raw) < 1+gcm.NonceSize()+gcm.Overhead() {
		return nil, fmt.Errorf("%w: token too short", ErrDecryptionFailed)
	}
	if raw[0] != tokenVersion {
		return nil, fmt.Errorf("%w: unsupported token version %d", ErrDecryptionFailed, raw[0])
	}

	nonce := raw[1 : 1+gcm.NonceSize()]
	plaintext, err := gcm.Open(nil, nonce, raw[1+gcm.NonceSize():], aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}
