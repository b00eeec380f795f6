// Package sms delivers verification messages to phone numbers.
package sms

import (
	"context"
	"errors"
	"fmt"
)

// ErrDelivery wraps every failure to hand a message to the carrier.
var ErrDelivery = errors.New("sms delivery failed")

type Gateway interface {
	Send(ctx context.Context, phoneNumber, message string) error
}

// VerificationMessage is the text sent with a login code.
func VerificationMessage(code string) string {
	return fmt.Sprintf("Your login verification code is: %s", code)
}

func deliveryError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrDelivery, fmt.Sprintf(format, args...))
}
