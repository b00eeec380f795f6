// Package grant implements the phone_number_token extension grant and the
// minimal token issuance behind /connect/token.
package grant

import (
	"context"
	"errors"
	"net/url"

	"phone-auth-service/internal/service"
	"phone-auth-service/internal/util"

	"go.uber.org/zap"
)

const (
	GrantTypePhoneNumberToken = "phone_number_token"

	ErrorInvalidGrant         = "invalid_grant"
	ErrorUnsupportedGrantType = "unsupported_grant_type"
)

type TokenRequest struct {
	GrantType string
	ClientID  string
	Params    url.Values
}

// GrantResult is either a subject with its authentication methods or an
// OAuth2 error code. Failures never carry a description.
type GrantResult struct {
	Subject     string
	AuthMethods []string
	Error       string
}

func (r *GrantResult) Failed() bool {
	return r.Error != ""
}

func invalidGrant() *GrantResult {
	return &GrantResult{Error: ErrorInvalidGrant}
}

type ExtensionGrant interface {
	GrantType() string
	Validate(ctx context.Context, req TokenRequest) (*GrantResult, error)
}

type Authenticator interface {
	Authenticate(ctx context.Context, phoneNumber, code string, createIfMissing bool) (*service.AuthResult, error)
}

type PhoneNumberTokenGrant struct {
	auth   Authenticator
	logger *zap.Logger
}

func NewPhoneNumberTokenGrant(auth Authenticator, logger *zap.Logger) *PhoneNumberTokenGrant {
	return &PhoneNumberTokenGrant{auth: auth, logger: logger}
}

func (g *PhoneNumberTokenGrant) GrantType() string {
	return GrantTypePhoneNumberToken
}

// Validate authenticates with provisioning enabled. Only infrastructure
// failures are returned as errors.
func (g *PhoneNumberTokenGrant) Validate(ctx context.Context, req TokenRequest) (*GrantResult, error) {
	if req.GrantType != GrantTypePhoneNumberToken {
		return invalidGrant(), nil
	}

	phoneNumber := req.Params.Get("phone_number")
	code := req.Params.Get("verification_token")
	if phoneNumber == "" || code == "" {
		return invalidGrant(), nil
	}

	result, err := g.auth.Authenticate(ctx, phoneNumber, code, true)
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrRateLimited):
		return invalidGrant(), nil
	case err != nil:
		g.logger.Error("Phone number token grant failed", util.ErrorField(err))
		return nil, err
	case result == nil:
		return invalidGrant(), nil
	}

	return &GrantResult{
		Subject:     result.Account.ID,
		AuthMethods: []string{service.AuthMethodSMS},
	}, nil
}
