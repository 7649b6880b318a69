package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dom/accounts/internal/api/response"
	"github.com/dom/accounts/internal/domain"
	"github.com/dom/accounts/internal/logger"
	"github.com/dom/accounts/internal/service"
)

type contextKey string

const (
	UserKey contextKey = "user"

	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

// Authenticator resolves an access token to the sanitized user it belongs to.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*domain.User, error)
}

// Auth rejects requests without a valid access token. The token is read
// from the accessToken cookie, falling back to an Authorization bearer header.
func Auth(authenticator Authenticator, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := AccessToken(r)
			if token == "" {
				response.Error(w, http.StatusUnauthorized, service.ErrUnauthorized.Error())
				return
			}

			user, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				log.Debug("authentication failed",
					slog.String("path", r.URL.Path),
					logger.Err(err),
				)
				response.Error(w, http.StatusUnauthorized, "invalid access token")
				return
			}

			ctx := context.WithValue(r.Context(), UserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessToken extracts the presented access token, if any.
func AccessToken(r *http.Request) string {
	if c, err := r.Cookie(AccessTokenCookie); err == nil && c.Value != "" {
		return c.Value
	}

	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func GetUser(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(UserKey).(*domain.User)
	return user, ok && user != nil
}
