package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dom/accounts/internal/api/middleware"
	"github.com/dom/accounts/internal/api/response"
	"github.com/dom/accounts/internal/config"
	"github.com/dom/accounts/internal/domain"
	"github.com/dom/accounts/internal/service"
)

type AuthHandler struct {
	authService            *service.AuthService
	cookies                cookieWriter
	revokeOnPasswordChange bool
	log                    *slog.Logger
}

func NewAuthHandler(authService *service.AuthService, cfg *config.Config, log *slog.Logger) *AuthHandler {
	return &AuthHandler{
		authService:            authService,
		cookies:                cookieWriter{cfg: cfg.Cookie},
		revokeOnPasswordChange: cfg.Auth.RevokeSessionOnPasswordChange,
		log:                    log,
	}
}

type LoginResponse struct {
	User         *domain.User `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.authService.Login(r.Context(), service.LoginInput{
		UserName: req.UserName,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	h.cookies.setSession(w, result.AccessToken, result.RefreshToken,
		h.authService.AccessTTL(), h.authService.RefreshTTL())

	response.JSON(w, http.StatusOK, LoginResponse{
		User:         result.User,
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	}, "user logged in successfully")
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, service.ErrUnauthorized.Error())
		return
	}

	if err := h.authService.Logout(r.Context(), user.ID); err != nil {
		writeError(w, h.log, err)
		return
	}

	h.cookies.clearSession(w)
	response.JSON(w, http.StatusOK, struct{}{}, "user logged out")
}

// RefreshAccessToken reads the refresh token from its cookie, or from the
// JSON body when the cookie is absent.
func (h *AuthHandler) RefreshAccessToken(w http.ResponseWriter, r *http.Request) {
	var token string
	if c, err := r.Cookie(middleware.RefreshTokenCookie); err == nil {
		token = c.Value
	}

	if token == "" {
		var req RefreshRequest
		if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
			response.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		token = req.RefreshToken
	}

	pair, err := h.authService.Refresh(r.Context(), token)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	h.cookies.setSession(w, pair.AccessToken, pair.RefreshToken,
		h.authService.AccessTTL(), h.authService.RefreshTTL())

	response.JSON(w, http.StatusOK, TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, "access token refreshed")
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, service.ErrUnauthorized.Error())
		return
	}

	var req ChangePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.authService.ChangePassword(r.Context(), user.ID, service.ChangePasswordInput{
		OldPassword: req.OldPassword,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	if h.revokeOnPasswordChange {
		h.cookies.clearSession(w)
	}
	response.JSON(w, http.StatusOK, struct{}{}, "password changed successfully")
}
