package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"phone-auth-service/internal/models"
	"phone-auth-service/internal/otp"
	"phone-auth-service/internal/phone"
	"phone-auth-service/internal/resolver"
	"phone-auth-service/internal/sms"
	"phone-auth-service/internal/util"

	"go.uber.org/zap"
)

const (
	PurposeVerifyNumber = "verify_number"
	PurposeResendToken  = "resend_token"

	AuthMethodSMS = "sms"

	failureReason = "verification_failed"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrDeliveryFailed = errors.New("failed to deliver verification code")
	ErrRateLimited    = errors.New("too many requests")
)

type AccountResolver interface {
	Resolve(ctx context.Context, phoneNumber string) (*models.Account, error)
	Provision(ctx context.Context, placeholder *models.Account) (*models.Account, error)
	RotateStamp(ctx context.Context, account *models.Account) error
}

type CodeIssuer interface {
	Issue(purpose string, account *models.Account) string
	Validate(purpose, code string, account *models.Account) bool
	Window() time.Duration
}

type ResendIssuer interface {
	Issue(ctx context.Context, purpose string, account *models.Account) (string, error)
	Validate(ctx context.Context, purpose, token string, account *models.Account) bool
}

type SignInManager interface {
	SignIn(ctx context.Context, account *models.Account, persistent bool, authMethod string) (*models.Session, error)
}

type EventRecorder interface {
	Record(ctx context.Context, event models.AuthEvent)
}

type LastLoginRecorder interface {
	UpdateLastLogin(ctx context.Context, accountID string, at time.Time) error
}

type Dependencies struct {
	Resolver   AccountResolver
	Codes      CodeIssuer
	Resend     ResendIssuer
	SMS        sms.Gateway
	// Replay makes codes for real accounts single use. Nil leaves a code
	// valid for its whole window.
	Replay     otp.ReplayGuard
	Sessions   SignInManager
	Events     EventRecorder
	LastLogin  LastLoginRecorder
	AbuseGuard AbuseGuard
}

type IssueResult struct {
	Account     *models.Account
	ResendToken string
}

type AuthResult struct {
	Account     *models.Account
	Session     *models.Session
	Provisioned bool
}

// PhoneAuthService runs the issue, resend and authenticate flows. Callers
// never learn from its results whether a number has an account.
type PhoneAuthService struct {
	deps   Dependencies
	logger *zap.Logger
	now    func() time.Time
}

func NewPhoneAuthService(deps Dependencies, logger *zap.Logger) *PhoneAuthService {
	if deps.AbuseGuard == nil {
		deps.AbuseGuard = NoopAbuseGuard{}
	}
	return &PhoneAuthService{deps: deps, logger: logger, now: time.Now}
}

// IssueVerificationCode texts a fresh code to the number and returns a token
// that authorizes one resend.
func (s *PhoneAuthService) IssueVerificationCode(ctx context.Context, phoneNumber string) (*IssueResult, error) {
	normalized := phone.Normalize(phoneNumber)
	if normalized == "" {
		return nil, fmt.Errorf("%w: phone number is required", ErrInvalidInput)
	}
	if err := s.allow(ctx, ActionIssueCode, normalized); err != nil {
		return nil, err
	}

	account, err := s.deps.Resolver.Resolve(ctx, normalized)
	if err != nil {
		return nil, err
	}
	return s.dispatch(ctx, account, models.EventCodeIssued)
}

// ResendVerificationCode returns nil without sending anything when the token
// does not authorize a resend for this number.
func (s *PhoneAuthService) ResendVerificationCode(ctx context.Context, phoneNumber, resendToken string) (*IssueResult, error) {
	normalized := phone.Normalize(phoneNumber)
	if normalized == "" {
		return nil, fmt.Errorf("%w: phone number is required", ErrInvalidInput)
	}
	if err := s.allow(ctx, ActionResendCode, normalized); err != nil {
		return nil, err
	}

	account, err := s.deps.Resolver.Resolve(ctx, normalized)
	if err != nil {
		return nil, err
	}

	if !s.deps.Resend.Validate(ctx, PurposeResendToken, resendToken, account) {
		s.logger.Debug("Resend token rejected", util.Phone("phone_number", normalized))
		return nil, nil
	}
	return s.dispatch(ctx, account, models.EventCodeResent)
}

func (s *PhoneAuthService) dispatch(ctx context.Context, account *models.Account, eventType models.AuthEventType) (*IssueResult, error) {
	code := s.deps.Codes.Issue(PurposeVerifyNumber, account)

	if err := s.deps.SMS.Send(ctx, account.PhoneNumber, sms.VerificationMessage(code)); err != nil {
		s.logger.Error("Failed to send verification code",
			zap.String("phone_number", account.PhoneNumber),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	token, err := s.deps.Resend.Issue(ctx, PurposeResendToken, account)
	if err != nil {
		return nil, fmt.Errorf("failed to issue resend token: %w", err)
	}

	s.record(ctx, models.AuthEvent{Type: eventType, AccountID: realID(account), PhoneNumber: account.PhoneNumber})
	return &IssueResult{Account: account, ResendToken: token}, nil
}

// Authenticate returns nil, nil for every authentication failure: wrong or
// stale code, replayed code, or an unknown number without createIfMissing.
func (s *PhoneAuthService) Authenticate(ctx context.Context, phoneNumber, code string, createIfMissing bool) (*AuthResult, error) {
	normalized := phone.Normalize(phoneNumber)
	code = strings.TrimSpace(code)
	if normalized == "" || code == "" {
		return nil, fmt.Errorf("%w: phone number and code are required", ErrInvalidInput)
	}
	if err := s.allow(ctx, ActionAuthenticate, normalized); err != nil {
		return nil, err
	}

	account, err := s.deps.Resolver.Resolve(ctx, normalized)
	if err != nil {
		return nil, err
	}

	if !s.deps.Codes.Validate(PurposeVerifyNumber, code, account) {
		return s.fail(ctx, normalized)
	}

	provisioned := false
	if account.IsPlaceholder() {
		if !createIfMissing {
			return s.fail(ctx, normalized)
		}
		// Placeholder codes die with the placeholder: provisioning gives the
		// account a new stamp, so no replay bookkeeping is needed here.
		account, provisioned, err = s.provision(ctx, account)
		if err != nil {
			return nil, err
		}
	} else if s.deps.Replay != nil {
		fresh, err := s.consume(ctx, account, code)
		if err != nil {
			return nil, err
		}
		if !fresh {
			return s.fail(ctx, normalized)
		}
	}

	if provisioned {
		s.record(ctx, models.AuthEvent{Type: models.EventAccountProvisioned, AccountID: account.ID, PhoneNumber: normalized})
	}
	s.record(ctx, models.AuthEvent{Type: models.EventLoginSuccess, AccountID: account.ID, PhoneNumber: normalized})

	sess, err := s.deps.Sessions.SignIn(ctx, account, true, AuthMethodSMS)
	if err != nil {
		return nil, err
	}

	if s.deps.LastLogin != nil {
		if err := s.deps.LastLogin.UpdateLastLogin(ctx, account.ID, s.now().UTC()); err != nil {
			s.logger.Warn("Failed to record last login", zap.String("account_id", account.ID), util.ErrorField(err))
		}
	}

	return &AuthResult{Account: account, Session: sess, Provisioned: provisioned}, nil
}

// consume retires the stamp the code was derived from, so the next code sent to
// the number differs, and then claims the code against concurrent requests
// that validated it under the same stamp.
func (s *PhoneAuthService) consume(ctx context.Context, account *models.Account, code string) (bool, error) {
	key := otp.ConsumedKey(PurposeVerifyNumber, account.PhoneNumber, account.SecurityStamp, code)

	if err := s.deps.Resolver.RotateStamp(ctx, account); err != nil {
		return false, err
	}
	fresh, err := s.deps.Replay.Consume(ctx, key, 2*s.deps.Codes.Window())
	if err != nil {
		return false, fmt.Errorf("failed to check code reuse: %w", err)
	}
	return fresh, nil
}

// provision creates the account, or continues with the row another request
// created first. A conflict that resolves back to a placeholder means the
// store released a stale claim, so provisioning is tried once more.
func (s *PhoneAuthService) provision(ctx context.Context, placeholder *models.Account) (*models.Account, bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		account, err := s.deps.Resolver.Provision(ctx, placeholder)
		if err == nil {
			return account, true, nil
		}
		if !errors.Is(err, resolver.ErrProvisioningConflict) {
			return nil, false, err
		}

		account, err = s.deps.Resolver.Resolve(ctx, placeholder.PhoneNumber)
		if err != nil {
			return nil, false, err
		}
		if !account.IsPlaceholder() {
			return account, false, nil
		}
		placeholder = account
	}
	return nil, false, fmt.Errorf("account for %s missing after provisioning conflict", placeholder.PhoneNumber)
}

func (s *PhoneAuthService) fail(ctx context.Context, phoneNumber string) (*AuthResult, error) {
	s.record(ctx, models.AuthEvent{Type: models.EventLoginFailure, PhoneNumber: phoneNumber, Reason: failureReason})
	return nil, nil
}

func (s *PhoneAuthService) allow(ctx context.Context, action Action, phoneNumber string) error {
	if err := s.deps.AbuseGuard.Allow(ctx, action, phoneNumber); err != nil {
		s.logger.Warn("Request rejected by abuse guard",
			zap.String("action", string(action)),
			util.Phone("phone_number", phoneNumber),
			util.ErrorField(err))
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	return nil
}

func (s *PhoneAuthService) record(ctx context.Context, event models.AuthEvent) {
	if s.deps.Events == nil {
		return
	}
	meta := RequestMetaFrom(ctx)
	event.ClientID = meta.ClientID
	event.RemoteIP = meta.RemoteIP
	s.deps.Events.Record(ctx, event)
}

func realID(account *models.Account) string {
	if account.IsPlaceholder() {
		return ""
	}
	return account.ID
}
