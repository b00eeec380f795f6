package handler

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"phone-auth-service/internal/config"
	"phone-auth-service/internal/grant"
	"phone-auth-service/internal/models"
	"phone-auth-service/internal/service"
)

const (
	testPhone = "+11111111111"
	testCode  = "123456"
)

var testSessionExpiry = time.Now().Add(14 * 24 * time.Hour).UTC()

type fakeAuth struct {
	issueErr   error
	authErr    error
	resendOK   bool
	issued     []string
	authCalls  int
	lastCreate bool
	lastMeta   service.RequestMeta
}

func (f *fakeAuth) IssueVerificationCode(ctx context.Context, phoneNumber string) (*service.IssueResult, error) {
	if f.issueErr != nil {
		return nil, f.issueErr
	}
	if phoneNumber == "" {
		return nil, service.ErrInvalidInput
	}
	f.issued = append(f.issued, phoneNumber)
	return &service.IssueResult{ResendToken: "resend-1"}, nil
}

func (f *fakeAuth) ResendVerificationCode(ctx context.Context, phoneNumber, resendToken string) (*service.IssueResult, error) {
	if !f.resendOK || resendToken != "resend-1" {
		return nil, nil
	}
	return &service.IssueResult{ResendToken: "resend-2"}, nil
}

func (f *fakeAuth) Authenticate(ctx context.Context, phoneNumber, code string, createIfMissing bool) (*service.AuthResult, error) {
	f.authCalls++
	f.lastCreate = createIfMissing
	f.lastMeta = service.RequestMetaFrom(ctx)
	if f.authErr != nil {
		return nil, f.authErr
	}
	if phoneNumber != testPhone || code != testCode {
		return nil, nil
	}
	return &service.AuthResult{
		Account: &models.Account{ID: "acct-1", PhoneNumber: testPhone, Kind: models.AccountKindReal},
		Session: &models.Session{ID: "sess-1", AccountID: "acct-1", Persistent: true, ExpiresAt: testSessionExpiry},
	}, nil
}

type healthFunc func(ctx context.Context) error

func (f healthFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

type fakeSessions struct {
	sessions   map[string]*models.Session
	signedOut  []string
	everywhere []string
}

func (f *fakeSessions) Lookup(ctx context.Context, sessionID string) (*models.Session, error) {
	sess, ok := f.sessions[sessionID]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	return sess, nil
}

func (f *fakeSessions) SignOut(ctx context.Context, sessionID string) error {
	f.signedOut = append(f.signedOut, sessionID)
	return nil
}

func (f *fakeSessions) SignOutEverywhere(ctx context.Context, accountID string) error {
	f.everywhere = append(f.everywhere, accountID)
	return nil
}

type fakeEvents struct {
	events []models.AuthEvent
}

func (f *fakeEvents) Record(_ context.Context, e models.AuthEvent) {
	f.events = append(f.events, e)
}

func newTestRouter(t *testing.T, auth *fakeAuth, health HealthChecker) http.Handler {
	t.Helper()
	return newTestRouterWithSessions(t, auth, health, &fakeSessions{}, &fakeEvents{})
}

func newTestRouterWithSessions(t *testing.T, auth *fakeAuth, health HealthChecker, sessions SessionManager, events *fakeEvents) http.Handler {
	t.Helper()
	logger := zap.NewNop()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	registry, err := grant.NewRegistry(grant.NewPhoneNumberTokenGrant(auth, logger))
	require.NoError(t, err)
	issuer := grant.NewTokenIssuer(key, config.JWTConfig{Issuer: "https://auth.test", Audience: "api", AccessTokenTTL: time.Hour})

	return NewRouter(Handlers{
		Verification: NewVerificationHandler(auth, logger),
		Token:        NewTokenHandler(registry, issuer, logger),
		Account:      NewAccountHandler(auth, sessions, events, config.SessionConfig{CookieName: "phone_auth_session"}, logger),
		Health:       health,
	}, config.ServerConfig{}, logger)
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func doForm(h http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestVerification_SendCode(t *testing.T) {
	auth := &fakeAuth{}
	h := newTestRouter(t, auth, nil)

	rec, resp := doJSON(t, h, http.MethodPost, "/api/phone/verification", `{"phone":"+1 (111) 111-1111"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, map[string]interface{}{"resend_token": "resend-1"}, resp.Data)
	assert.Equal(t, []string{"+1 (111) 111-1111"}, auth.issued)

	rec, resp = doJSON(t, h, http.MethodPost, "/api/phone/verification", `{"phone":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)

	rec, _ = doJSON(t, h, http.MethodPost, "/api/phone/verification", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, h, http.MethodPost, "/api/phone/verification", `{"phone":"<script>1</script>"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, auth.issued, 1)
}

func TestVerification_DeliveryFailure(t *testing.T) {
	auth := &fakeAuth{issueErr: errors.Join(service.ErrDeliveryFailed, errors.New("gateway down"))}
	h := newTestRouter(t, auth, nil)

	rec, resp := doJSON(t, h, http.MethodPost, "/api/phone/verification", `{"phone":"+11111111111"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "server_error", resp.Error)
	assert.NotContains(t, rec.Body.String(), "gateway down")
}

func TestVerification_ResendCode(t *testing.T) {
	auth := &fakeAuth{resendOK: true}
	h := newTestRouter(t, auth, nil)

	rec, resp := doJSON(t, h, http.MethodPut, "/api/phone/verification", `{"phone":"+11111111111","resend_token":"resend-1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]interface{}{"resend_token": "resend-2"}, resp.Data)

	rec, _ = doJSON(t, h, http.MethodPut, "/api/phone/verification", `{"phone":"+11111111111","resend_token":"garbage"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, h, http.MethodPut, "/api/phone/verification", `{"phone":"+11111111111"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestToken_PhoneNumberGrant(t *testing.T) {
	auth := &fakeAuth{}
	h := newTestRouter(t, auth, nil)

	rec := doForm(h, "/connect/token", url.Values{
		"grant_type":         {grant.GrantTypePhoneNumberToken},
		"phone_number":       {testPhone},
		"verification_token": {testCode},
		"client_id":          {"native-app"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var body tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.AccessToken)
	assert.Equal(t, "Bearer", body.TokenType)
	assert.Equal(t, 3600, body.ExpiresIn)
	assert.True(t, auth.lastCreate)
	assert.Equal(t, "native-app", auth.lastMeta.ClientID)
	assert.NotEmpty(t, auth.lastMeta.RemoteIP)
}

func TestToken_Failures(t *testing.T) {
	h := newTestRouter(t, &fakeAuth{}, nil)

	rec := doForm(h, "/connect/token", url.Values{
		"grant_type":         {grant.GrantTypePhoneNumberToken},
		"phone_number":       {testPhone},
		"verification_token": {"000000"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"invalid_grant"}`, rec.Body.String())

	rec = doForm(h, "/connect/token", url.Values{"grant_type": {"password"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"unsupported_grant_type"}`, rec.Body.String())

	h = newTestRouter(t, &fakeAuth{authErr: errors.New("store unavailable")}, nil)
	rec = doForm(h, "/connect/token", url.Values{
		"grant_type":         {grant.GrantTypePhoneNumberToken},
		"phone_number":       {testPhone},
		"verification_token": {testCode},
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"server_error"}`, rec.Body.String())
}

func TestAccount_LoginAndCode(t *testing.T) {
	auth := &fakeAuth{}
	h := newTestRouter(t, auth, nil)

	rec := doForm(h, "/account/login", url.Values{"phone_number": {testPhone}, "return_url": {"/consent?x=1"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="token_key" value="resend-1"`)
	assert.Contains(t, rec.Body.String(), `value="/consent?x=1"`)

	rec = doForm(h, "/account/code", url.Values{
		"phone_number": {testPhone},
		"token_key":    {"resend-1"},
		"sms_code":     {"999999"},
		"return_url":   {"/consent"},
		"button":       {"verify"},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Wrong SMS code.")
	assert.Empty(t, rec.Result().Cookies())

	rec = doForm(h, "/account/code", url.Values{
		"phone_number": {testPhone},
		"token_key":    {"resend-1"},
		"sms_code":     {testCode},
		"return_url":   {"/consent"},
		"button":       {"verify"},
	})
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/consent", rec.Header().Get("Location"))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "phone_auth_session", cookies[0].Name)
	assert.Equal(t, "sess-1", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.WithinDuration(t, testSessionExpiry, cookies[0].Expires, time.Second)
}

func TestAccount_LoginRejectsMalformedPhone(t *testing.T) {
	auth := &fakeAuth{}
	h := newTestRouter(t, auth, nil)

	rec := doForm(h, "/account/login", url.Values{"phone_number": {"alice@example.com"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid phone number.")
	assert.Empty(t, auth.issued)
}

func TestAccount_Resend(t *testing.T) {
	h := newTestRouter(t, &fakeAuth{resendOK: true}, nil)

	rec := doForm(h, "/account/code", url.Values{
		"phone_number": {testPhone},
		"token_key":    {"resend-1"},
		"button":       {"resend"},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="token_key" value="resend-2"`)

	rec = doForm(h, "/account/code", url.Values{
		"phone_number": {testPhone},
		"token_key":    {"stale"},
		"button":       {"resend"},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `action="/account/login"`)
}

func TestAccount_Logout(t *testing.T) {
	sessions := &fakeSessions{sessions: map[string]*models.Session{
		"sess-1": {ID: "sess-1", AccountID: "acct-1"},
	}}
	events := &fakeEvents{}
	h := newTestRouterWithSessions(t, &fakeAuth{}, nil, sessions, events)

	logout := func(form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/account/logout", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.AddCookie(&http.Cookie{Name: "phone_auth_session", Value: "sess-1"})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := logout(url.Values{"return_url": {"/bye"}})
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/bye", rec.Header().Get("Location"))
	assert.Equal(t, []string{"sess-1"}, sessions.signedOut)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].MaxAge < 0)

	logout(url.Values{"everywhere": {"true"}})
	assert.Equal(t, []string{"acct-1"}, sessions.everywhere)

	require.Len(t, events.events, 2)
	for _, e := range events.events {
		assert.Equal(t, models.EventLogout, e.Type)
		assert.Equal(t, "acct-1", e.AccountID)
		assert.NotEmpty(t, e.RemoteIP)
	}
	assert.Empty(t, events.events[0].Reason)
	assert.Equal(t, "all_sessions", events.events[1].Reason)

	delete(sessions.sessions, "sess-1")
	rec = logout(url.Values{})
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Len(t, events.events, 2, "no event without a live session")
}

func TestLocalReturnURL(t *testing.T) {
	cases := map[string]string{
		"":                     "/",
		"/":                    "/",
		"/connect/authorize?a": "/connect/authorize?a",
		"https://evil.test":    "/",
		"//evil.test":          "/",
		"/\\evil.test":         "/",
	}
	for in, want := range cases {
		assert.Equal(t, want, localReturnURL(in), in)
	}
}

func TestHealth(t *testing.T) {
	h := newTestRouter(t, &fakeAuth{}, healthFunc(func(context.Context) error { return nil }))
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	h = newTestRouter(t, &fakeAuth{}, healthFunc(func(context.Context) error { return errors.New("redis down") }))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "redis down")
}

func TestRequireHTTPS(t *testing.T) {
	h := NewRouter(Handlers{}, config.ServerConfig{RequireHTTPS: true}, zap.NewNop())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusUpgradeRequired, rec.Code)
}
