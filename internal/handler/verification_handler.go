package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"phone-auth-service/internal/service"
)

type VerificationHandler struct {
	auth   PhoneAuthenticator
	logger *zap.Logger
}

func NewVerificationHandler(auth PhoneAuthenticator, logger *zap.Logger) *VerificationHandler {
	return &VerificationHandler{auth: auth, logger: logger}
}

type verificationRequest struct {
	Phone       string `json:"phone"`
	ResendToken string `json:"resend_token,omitempty"`
}

type verificationResponse struct {
	ResendToken string `json:"resend_token"`
}

func (h *VerificationHandler) RegisterRoutes(router chi.Router) {
	router.Route("/api/phone/verification", func(r chi.Router) {
		r.Post("/", h.SendCode)
		r.Put("/", h.ResendCode)
	})
}

// SendCode texts a verification code. The response is the same whether or
// not the number has an account.
func (h *VerificationHandler) SendCode(w http.ResponseWriter, r *http.Request) {
	var req verificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, h.logger, fmt.Errorf("%w: %w", service.ErrInvalidInput, err), "Invalid request body")
		return
	}
	if err := validatePhone(req.Phone); err != nil {
		respondWithError(w, h.logger, err, "Invalid phone number")
		return
	}

	result, err := h.auth.IssueVerificationCode(r.Context(), req.Phone)
	if err != nil {
		respondWithError(w, h.logger, err, "Failed to send verification code")
		return
	}

	respondWithJSON(w, h.logger, http.StatusOK,
		successResponse(verificationResponse{ResendToken: result.ResendToken}, "Verification code sent"))
}

func (h *VerificationHandler) ResendCode(w http.ResponseWriter, r *http.Request) {
	var req verificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, h.logger, fmt.Errorf("%w: %w", service.ErrInvalidInput, err), "Invalid request body")
		return
	}
	if err := validatePhone(req.Phone); err != nil {
		respondWithError(w, h.logger, err, "Invalid phone number")
		return
	}
	if req.ResendToken == "" {
		respondWithError(w, h.logger, fmt.Errorf("%w: missing resend token", service.ErrInvalidInput), "Invalid resend token")
		return
	}

	result, err := h.auth.ResendVerificationCode(r.Context(), req.Phone, req.ResendToken)
	if err != nil {
		respondWithError(w, h.logger, err, "Failed to resend verification code")
		return
	}
	if result == nil {
		respondWithError(w, h.logger, fmt.Errorf("%w: resend token rejected", service.ErrInvalidInput), "Invalid resend token")
		return
	}

	respondWithJSON(w, h.logger, http.StatusOK,
		successResponse(verificationResponse{ResendToken: result.ResendToken}, "Verification code sent"))
}
