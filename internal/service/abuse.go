package service

import "context"

type Action string

const (
	ActionIssueCode    Action = "issue_code"
	ActionResendCode   Action = "resend_code"
	ActionAuthenticate Action = "authenticate"
)

// AbuseGuard is the hook for CAPTCHA or rate enforcement. A non-nil error
// rejects the request before any code is sent or checked.
type AbuseGuard interface {
	Allow(ctx context.Context, action Action, phoneNumber string) error
}

type NoopAbuseGuard struct{}

func (NoopAbuseGuard) Allow(context.Context, Action, string) error { return nil }
