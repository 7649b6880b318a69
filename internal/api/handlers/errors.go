package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dom/accounts/internal/api/response"
	"github.com/dom/accounts/internal/auth"
	"github.com/dom/accounts/internal/logger"
	"github.com/dom/accounts/internal/service"
)

// writeError maps service errors onto status codes. Anything unrecognised
// is logged and reported as a generic 500.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	status, message := classify(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed", logger.Err(err))
	}
	response.Error(w, status, message)
}

func classify(err error) (int, string) {
	var validationErr *service.ValidationError

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, validationErr.Reason
	case errors.Is(err, service.ErrAmbiguousIdentifier):
		return http.StatusBadRequest, service.ErrAmbiguousIdentifier.Error()
	case errors.Is(err, service.ErrUserExists):
		return http.StatusConflict, service.ErrUserExists.Error()
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, service.ErrInvalidCredentials.Error()
	case errors.Is(err, service.ErrTokenReused):
		return http.StatusUnauthorized, service.ErrTokenReused.Error()
	case errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized, tokenMessage(service.ErrInvalidToken.Error(), err)
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized, service.ErrUnauthorized.Error()
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound, service.ErrUserNotFound.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func tokenMessage(base string, err error) string {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return base + ": token expired"
	case errors.Is(err, auth.ErrBadSignature):
		return base + ": bad signature"
	case errors.Is(err, auth.ErrMalformedToken):
		return base + ": malformed token"
	}
	return base
}
