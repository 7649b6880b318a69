package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/dom/accounts/internal/auth"
	"github.com/dom/accounts/internal/service"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"validation", fmt.Errorf("op: %w", &service.ValidationError{Reason: "avatar file is required"}), http.StatusBadRequest, "avatar file is required"},
		{"ambiguous", fmt.Errorf("op: %w", service.ErrAmbiguousIdentifier), http.StatusBadRequest, service.ErrAmbiguousIdentifier.Error()},
		{"conflict", fmt.Errorf("op: %w", service.ErrUserExists), http.StatusConflict, service.ErrUserExists.Error()},
		{"bad password", fmt.Errorf("op: %w", service.ErrInvalidCredentials), http.StatusUnauthorized, service.ErrInvalidCredentials.Error()},
		{"reused", fmt.Errorf("op: %w", service.ErrTokenReused), http.StatusUnauthorized, service.ErrTokenReused.Error()},
		{"expired", fmt.Errorf("op: %w: %w", service.ErrInvalidToken, auth.ErrTokenExpired), http.StatusUnauthorized, "invalid refresh token: token expired"},
		{"bad signature", fmt.Errorf("op: %w: %w", service.ErrInvalidToken, auth.ErrBadSignature), http.StatusUnauthorized, "invalid refresh token: bad signature"},
		{"unauthorized", fmt.Errorf("op: %w", service.ErrUnauthorized), http.StatusUnauthorized, service.ErrUnauthorized.Error()},
		{"not found", fmt.Errorf("op: %w", service.ErrUserNotFound), http.StatusNotFound, service.ErrUserNotFound.Error()},
		{"unexpected", errors.New("connection refused"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := classify(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantMsg, msg)
		})
	}
}

func TestRequestValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     interface{ Validate() error }
		wantErr bool
	}{
		{"login by username", LoginRequest{UserName: "alice", Password: "x"}, false},
		{"login by email", LoginRequest{Email: "alice@x.com", Password: "x"}, false},
		{"login without identifier", LoginRequest{Password: "x"}, true},
		{"login bad email", LoginRequest{Email: "alice", Password: "x"}, true},
		{"login without password", LoginRequest{UserName: "alice"}, true},
		{"register ok", RegisterRequest{UserName: "alice", Email: "alice@x.com", FullName: "Alice", Password: "pw123!"}, false},
		{"register short password", RegisterRequest{UserName: "alice", Email: "alice@x.com", FullName: "Alice", Password: "pw"}, true},
		{"register bad email", RegisterRequest{UserName: "alice", Email: "x", FullName: "Alice", Password: "pw123!"}, true},
		{"change password ok", ChangePasswordRequest{OldPassword: "a", NewPassword: "secret1"}, false},
		{"change password missing old", ChangePasswordRequest{NewPassword: "secret1"}, true},
		{"update name", UpdateAccountRequest{FullName: "New"}, false},
		{"update email", UpdateAccountRequest{Email: "new@x.com"}, false},
		{"update nothing", UpdateAccountRequest{}, true},
		{"update bad email", UpdateAccountRequest{Email: "new"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
