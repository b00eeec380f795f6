package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"phone-auth-service/internal/grant"
	"phone-auth-service/internal/service"
	"phone-auth-service/internal/util"
)

// TokenHandler serves the OAuth2 token endpoint for registered extension
// grants.
type TokenHandler struct {
	grants *grant.Registry
	issuer *grant.TokenIssuer
	logger *zap.Logger
}

func NewTokenHandler(grants *grant.Registry, issuer *grant.TokenIssuer, logger *zap.Logger) *TokenHandler {
	return &TokenHandler{grants: grants, issuer: issuer, logger: logger}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

type tokenError struct {
	Error string `json:"error"`
}

func (h *TokenHandler) RegisterRoutes(router chi.Router) {
	router.Post("/connect/token", h.Token)
}

func (h *TokenHandler) Token(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	if err := r.ParseForm(); err != nil {
		respondWithJSON(w, h.logger, http.StatusBadRequest, tokenError{Error: "invalid_request"})
		return
	}

	grantType := r.PostForm.Get("grant_type")
	g, ok := h.grants.Lookup(grantType)
	if !ok {
		respondWithJSON(w, h.logger, http.StatusBadRequest, tokenError{Error: grant.ErrorUnsupportedGrantType})
		return
	}

	clientID := r.PostForm.Get("client_id")
	meta := service.RequestMetaFrom(r.Context())
	meta.ClientID = clientID
	ctx := service.WithRequestMeta(r.Context(), meta)

	result, err := g.Validate(ctx, grant.TokenRequest{
		GrantType: grantType,
		ClientID:  clientID,
		Params:    r.PostForm,
	})
	if err != nil {
		h.logger.Error("Token request failed",
			util.String("grant_type", grantType),
			util.ErrorField(err))
		respondWithJSON(w, h.logger, http.StatusInternalServerError, tokenError{Error: "server_error"})
		return
	}
	if result.Failed() {
		respondWithJSON(w, h.logger, http.StatusBadRequest, tokenError{Error: result.Error})
		return
	}

	token, err := h.issuer.Issue(result, clientID, r.PostForm.Get("scope"))
	if err != nil {
		h.logger.Error("Failed to issue access token", util.ErrorField(err))
		respondWithJSON(w, h.logger, http.StatusInternalServerError, tokenError{Error: "server_error"})
		return
	}

	respondWithJSON(w, h.logger, http.StatusOK, tokenResponse{
		AccessToken: token.Token,
		TokenType:   token.TokenType,
		ExpiresIn:   token.ExpiresIn,
		Scope:       token.Scope,
	})
}
