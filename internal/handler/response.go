package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"phone-auth-service/internal/phone"
	"phone-auth-service/internal/service"
	"phone-auth-service/internal/util"
)

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(code, message string) Response {
	return Response{
		Success: false,
		Error:   code,
		Message: message,
	}
}

// PhoneAuthenticator is implemented by *service.PhoneAuthService.
type PhoneAuthenticator interface {
	IssueVerificationCode(ctx context.Context, phoneNumber string) (*service.IssueResult, error)
	ResendVerificationCode(ctx context.Context, phoneNumber, resendToken string) (*service.IssueResult, error)
	Authenticate(ctx context.Context, phoneNumber, code string, createIfMissing bool) (*service.AuthResult, error)
}

// validatePhone rejects input that cannot be a phone number before it
// reaches the service.
func validatePhone(raw string) error {
	if util.ContainsSuspicious(raw) || !phone.IsPhoneNumber(raw) {
		return fmt.Errorf("%w: malformed phone number", service.ErrInvalidInput)
	}
	return nil
}

func respondWithJSON(w http.ResponseWriter, logger *zap.Logger, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError logs the underlying error and renders only a generic
// code and message.
func respondWithError(w http.ResponseWriter, logger *zap.Logger, err error, message string) {
	statusCode := getStatusCode(err)
	logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	respondWithJSON(w, logger, statusCode, errorResponse(errorCode(statusCode), message))
}

// getStatusCode determines the appropriate HTTP status code for an error
func getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(statusCode int) string {
	switch statusCode {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusTooManyRequests:
		return "rate_limited"
	default:
		return "server_error"
	}
}
