// Package otp derives and checks time-windowed verification codes. Codes are
// never stored; they are recomputed from the account and the current window.
package otp

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"time"

	"phone-auth-service/internal/hashing"
	"phone-auth-service/internal/models"
)

const (
	DefaultDigits = 6
	DefaultWindow = 3 * time.Minute
)

var pow10 = [...]uint32{1, 10, 100, 1000, 10000, 100000, 1000000, 10000000, 100000000, 1000000000}

type CodeIssuer struct {
	hasher *hashing.Hasher
	digits int
	window time.Duration
	now    func() time.Time
}

type Option func(*CodeIssuer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *CodeIssuer) { c.now = now }
}

func WithDigits(n int) Option {
	return func(c *CodeIssuer) {
		if n > 0 && n < len(pow10) {
			c.digits = n
		}
	}
}

func WithWindow(d time.Duration) Option {
	return func(c *CodeIssuer) {
		if d >= time.Second {
			c.window = d
		}
	}
}

func NewCodeIssuer(hasher *hashing.Hasher, opts ...Option) *CodeIssuer {
	c := &CodeIssuer{
		hasher: hasher,
		digits: DefaultDigits,
		window: DefaultWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CodeIssuer) Window() time.Duration {
	return c.window
}

// Issue returns the code for the current window.
func (c *CodeIssuer) Issue(purpose string, account *models.Account) string {
	return c.compute(purpose, account, c.step())
}

// Validate accepts a code from the current or the immediately preceding
// window. Any malformed input simply fails.
func (c *CodeIssuer) Validate(purpose, code string, account *models.Account) bool {
	if account == nil || len(code) != c.digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}

	step := c.step()
	ok := 0
	for _, s := range []uint64{step, step - 1} {
		expected := c.compute(purpose, account, s)
		ok |= subtle.ConstantTimeCompare([]byte(expected), []byte(code))
	}
	return ok == 1
}

func (c *CodeIssuer) step() uint64 {
	return uint64(c.now().Unix()) / uint64(c.window/time.Second)
}

func (c *CodeIssuer) compute(purpose string, account *models.Account, step uint64) string {
	var counter [8]byte
	binary.BigEndian.PutUint64(counter[:], step)

	m := hmac.New(sha256.New, c.hasher.CodeKey(account.SecurityStamp))
	m.Write(counter[:])
	for _, part := range []string{purpose, account.ID, account.PhoneNumber} {
		m.Write([]byte(part))
		m.Write([]byte{0})
	}
	sum := m.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (uint32(sum[offset])&0x7f)<<24 |
		uint32(sum[offset+1])<<16 |
		uint32(sum[offset+2])<<8 |
		uint32(sum[offset+3])

	return fmt.Sprintf("%0*d", c.digits, bin%pow10[c.digits])
}
