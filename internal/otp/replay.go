package otp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ReplayGuard records codes that have already been accepted. Consume reports
// fresh=true only for the first presentation of a key within ttl.
type ReplayGuard interface {
	Consume(ctx context.Context, key string, ttl time.Duration) (fresh bool, err error)
}

// ConsumedKey identifies a presented code without storing it or the stamp it
// was derived from in the clear.
func ConsumedKey(purpose, phoneNumber, stamp, code string) string {
	sum := sha256.Sum256([]byte(purpose + "|" + phoneNumber + "|" + stamp + "|" + code))
	return hex.EncodeToString(sum[:])
}
