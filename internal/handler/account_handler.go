package handler

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"phone-auth-service/internal/config"
	"phone-auth-service/internal/models"
	"phone-auth-service/internal/service"
	"phone-auth-service/internal/util"
)

const (
	msgInvalidPhone  = "Invalid phone number."
	msgWrongCode     = "Wrong SMS code."
	msgEnterCode     = "Enter the SMS code."
	msgResendFailed  = "Could not send a new code. Start again."
	msgTryAgainLater = "Something went wrong. Try again later."

	logoutAllSessions = "all_sessions"
)

var pages = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html><head><title>Sign in</title></head><body>
<h1>Sign in with your phone</h1>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form method="post" action="/account/login">
<input type="tel" name="phone_number" value="{{.PhoneNumber}}" autocomplete="tel" required>
<input type="hidden" name="return_url" value="{{.ReturnURL}}">
<button type="submit">Send code</button>
</form>
</body></html>`))

func init() {
	template.Must(pages.New("code").Parse(`<!DOCTYPE html>
<html><head><title>Enter code</title></head><body>
<h1>Enter the code sent to {{.PhoneNumber}}</h1>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form method="post" action="/account/code">
<input type="hidden" name="phone_number" value="{{.PhoneNumber}}">
<input type="hidden" name="token_key" value="{{.TokenKey}}">
<input type="hidden" name="return_url" value="{{.ReturnURL}}">
<input type="text" name="sms_code" inputmode="numeric" autocomplete="one-time-code">
<button type="submit" name="button" value="verify">Verify</button>
<button type="submit" name="button" value="resend">Send a new code</button>
</form>
</body></html>`))
}

type pageModel struct {
	PhoneNumber string
	TokenKey    string
	ReturnURL   string
	Error       string
}

// SessionManager is implemented by *session.Manager.
type SessionManager interface {
	Lookup(ctx context.Context, sessionID string) (*models.Session, error)
	SignOut(ctx context.Context, sessionID string) error
	SignOutEverywhere(ctx context.Context, accountID string) error
}

// AccountHandler drives the browser sign-in flow. The token_key carried by
// the code form is the current resend token.
type AccountHandler struct {
	auth     PhoneAuthenticator
	sessions SessionManager
	events   service.EventRecorder
	session  config.SessionConfig
	logger   *zap.Logger
}

func NewAccountHandler(auth PhoneAuthenticator, sessions SessionManager, events service.EventRecorder, session config.SessionConfig, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{auth: auth, sessions: sessions, events: events, session: session, logger: logger}
}

func (h *AccountHandler) RegisterRoutes(router chi.Router) {
	router.Route("/account", func(r chi.Router) {
		r.Get("/login", h.LoginPage)
		r.Post("/login", h.Login)
		r.Post("/code", h.Code)
		r.Post("/logout", h.Logout)
	})
}

func (h *AccountHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "login", pageModel{ReturnURL: localReturnURL(r.URL.Query().Get("return_url"))})
}

func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, http.StatusBadRequest, "login", pageModel{Error: msgInvalidPhone})
		return
	}
	model := pageModel{
		PhoneNumber: strings.TrimSpace(r.PostForm.Get("phone_number")),
		ReturnURL:   localReturnURL(r.PostForm.Get("return_url")),
	}

	if err := validatePhone(model.PhoneNumber); err != nil {
		model.Error = msgInvalidPhone
		h.render(w, http.StatusBadRequest, "login", model)
		return
	}

	result, err := h.auth.IssueVerificationCode(r.Context(), model.PhoneNumber)
	if err != nil {
		h.renderError(w, "login", model, err)
		return
	}

	model.TokenKey = result.ResendToken
	h.render(w, http.StatusOK, "code", model)
}

func (h *AccountHandler) Code(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, http.StatusBadRequest, "login", pageModel{Error: msgInvalidPhone})
		return
	}
	model := pageModel{
		PhoneNumber: strings.TrimSpace(r.PostForm.Get("phone_number")),
		TokenKey:    r.PostForm.Get("token_key"),
		ReturnURL:   localReturnURL(r.PostForm.Get("return_url")),
	}

	if r.PostForm.Get("button") == "resend" {
		h.resend(w, r, model)
		return
	}

	code := strings.TrimSpace(r.PostForm.Get("sms_code"))
	if code == "" {
		model.Error = msgEnterCode
		h.render(w, http.StatusBadRequest, "code", model)
		return
	}

	result, err := h.auth.Authenticate(r.Context(), model.PhoneNumber, code, true)
	if err != nil {
		h.renderError(w, "code", model, err)
		return
	}
	if result == nil {
		model.Error = msgWrongCode
		h.render(w, http.StatusOK, "code", model)
		return
	}

	cookie := &http.Cookie{
		Name:     h.session.CookieName,
		Value:    result.Session.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.session.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if result.Session.Persistent {
		cookie.Expires = result.Session.ExpiresAt
	}
	http.SetCookie(w, cookie)
	http.Redirect(w, r, model.ReturnURL, http.StatusFound)
}

// Logout ends the cookie's session, or every session of its account when
// the form carries everywhere=true.
func (h *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	returnURL := localReturnURL(r.FormValue("return_url"))

	cookie, err := r.Cookie(h.session.CookieName)
	if err == nil && cookie.Value != "" {
		if err := h.signOut(r.Context(), cookie.Value, r.FormValue("everywhere") == "true"); err != nil {
			h.logger.Error("Sign-out failed", util.ErrorField(err))
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.session.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, returnURL, http.StatusFound)
}

func (h *AccountHandler) signOut(ctx context.Context, sessionID string, everywhere bool) error {
	sess, err := h.sessions.Lookup(ctx, sessionID)
	if errors.Is(err, models.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	event := models.AuthEvent{Type: models.EventLogout, AccountID: sess.AccountID}
	if everywhere {
		err = h.sessions.SignOutEverywhere(ctx, sess.AccountID)
		event.Reason = logoutAllSessions
	} else {
		err = h.sessions.SignOut(ctx, sessionID)
	}
	if err != nil {
		return err
	}

	if h.events != nil {
		event.RemoteIP = service.RequestMetaFrom(ctx).RemoteIP
		h.events.Record(ctx, event)
	}
	return nil
}

func (h *AccountHandler) resend(w http.ResponseWriter, r *http.Request, model pageModel) {
	result, err := h.auth.ResendVerificationCode(r.Context(), model.PhoneNumber, model.TokenKey)
	if err != nil {
		h.renderError(w, "code", model, err)
		return
	}
	if result == nil {
		model.TokenKey = ""
		model.Error = msgResendFailed
		h.render(w, http.StatusOK, "login", model)
		return
	}

	model.TokenKey = result.ResendToken
	h.render(w, http.StatusOK, "code", model)
}

func (h *AccountHandler) renderError(w http.ResponseWriter, page string, model pageModel, err error) {
	status := getStatusCode(err)
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		page, model.Error = "login", msgInvalidPhone
	default:
		h.logger.Error("Sign-in request failed", util.ErrorField(err))
		model.Error = msgTryAgainLater
	}
	h.render(w, status, page, model)
}

func (h *AccountHandler) render(w http.ResponseWriter, status int, page string, model pageModel) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := pages.ExecuteTemplate(w, page, model); err != nil {
		h.logger.Error("Failed to render page", util.String("page", page), util.ErrorField(err))
	}
}

// localReturnURL only accepts absolute paths on this host.
func localReturnURL(raw string) string {
	if raw == "" || raw[0] != '/' {
		return "/"
	}
	if len(raw) > 1 && (raw[1] == '/' || raw[1] == '\\') {
		return "/"
	}
	return raw
}
