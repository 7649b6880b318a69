package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dom/accounts/internal/auth"
	"github.com/dom/accounts/internal/config"
	"github.com/dom/accounts/internal/domain"
	"github.com/dom/accounts/internal/events"
	"github.com/dom/accounts/internal/logger"
	"github.com/dom/accounts/internal/metrics"
	"github.com/dom/accounts/internal/repository"
	"github.com/google/uuid"
)

// AuthService owns the session lifecycle. It is the only writer of the
// stored refresh token.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenIssuer
	hasher    auth.Hasher
	publisher events.Publisher
	cfg       *config.Config
	log       *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenIssuer,
	hasher auth.Hasher,
	publisher events.Publisher,
	cfg *config.Config,
	log *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		hasher:    hasher,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
	}
}

type LoginInput struct {
	UserName string
	Email    string
	Password string
}

type AuthResult struct {
	User         *domain.User
	AccessToken  string
	RefreshToken string
}

// Login resolves the user by username or email, checks the password and
// starts a new session. Any previous session of the user stops being
// refreshable.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	const op = "service.AuthService.Login"
	log := s.log.With(slog.String("op", op))

	userName := normalizeUserName(input.UserName)
	email := normalizeEmail(input.Email)
	if userName == "" && email == "" {
		return nil, fmt.Errorf("%s: %w", op, invalid("username or email is required"))
	}
	if input.Password == "" {
		return nil, fmt.Errorf("%s: %w", op, invalid("password is required"))
	}

	user, err := s.resolve(ctx, userName, email)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			log.Warn("user not found")
			metrics.Logins.WithLabelValues(metrics.ResultNotFound).Inc()
		case errors.Is(err, ErrAmbiguousIdentifier):
			log.Warn("identifiers match different users")
			metrics.Logins.WithLabelValues(metrics.ResultInvalidCredentials).Inc()
		default:
			log.Error("failed to look up user", logger.Err(err))
			metrics.Logins.WithLabelValues(metrics.ResultError).Inc()
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log = log.With(slog.String("user_id", user.ID.String()))

	if !s.hasher.Verify(input.Password, user.PasswordHash) {
		log.Warn("invalid password")
		metrics.Logins.WithLabelValues(metrics.ResultInvalidCredentials).Inc()
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		log.Error("failed to issue tokens", logger.Err(err))
		metrics.Logins.WithLabelValues(metrics.ResultError).Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	previous, err := s.users.SetRefreshToken(ctx, user.ID, pair.RefreshToken)
	if err != nil {
		log.Error("failed to store refresh token", logger.Err(err))
		metrics.Logins.WithLabelValues(metrics.ResultError).Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if previous != "" {
		emit(ctx, log, s.publisher,
			domain.NewSessionEvent(domain.SessionEventRevoked, user.ID, domain.RevokeReasonSuperseded))
	}
	emit(ctx, log, s.publisher, domain.NewSessionEvent(domain.SessionEventStarted, user.ID, ""))

	metrics.Logins.WithLabelValues(metrics.ResultSuccess).Inc()
	log.Info("user logged in")

	return &AuthResult{
		User:         user.Sanitized(),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

func (s *AuthService) resolve(ctx context.Context, userName, email string) (*domain.User, error) {
	matches, err := s.users.FindByIdentifier(ctx, userName, email)
	if err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, ErrUserNotFound
	case 1:
		return matches[0], nil
	default:
		return nil, ErrAmbiguousIdentifier
	}
}

// Logout clears the stored refresh token. Logging out without a session
// is not an error.
func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID) error {
	const op = "service.AuthService.Logout"
	log := s.log.With(slog.String("op", op), slog.String("user_id", userID.String()))

	previous, err := s.users.SetRefreshToken(ctx, userID, "")
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		log.Error("failed to clear refresh token", logger.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if previous != "" {
		emit(ctx, log, s.publisher,
			domain.NewSessionEvent(domain.SessionEventRevoked, userID, domain.RevokeReasonLogout))
	}

	log.Info("user logged out")
	return nil
}

// Refresh exchanges the presented refresh token for a new pair. The stored
// token is replaced only if it still equals the presented one, so of two
// concurrent refreshes with the same token exactly one wins.
func (s *AuthService) Refresh(ctx context.Context, presented string) (auth.TokenPair, error) {
	const op = "service.AuthService.Refresh"
	log := s.log.With(slog.String("op", op))

	if presented == "" {
		metrics.Refreshes.WithLabelValues(metrics.ResultInvalidToken).Inc()
		return auth.TokenPair{}, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}

	claims, err := s.tokens.Verify(presented, auth.RefreshToken)
	if err != nil {
		log.Warn("refresh token rejected", logger.Err(err))
		metrics.Refreshes.WithLabelValues(metrics.ResultInvalidToken).Inc()
		return auth.TokenPair{}, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
	}

	userID, err := claims.UserID()
	if err != nil {
		metrics.Refreshes.WithLabelValues(metrics.ResultInvalidToken).Inc()
		return auth.TokenPair{}, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
	}

	log = log.With(slog.String("user_id", userID.String()))

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Warn("refresh token subject does not exist")
			metrics.Refreshes.WithLabelValues(metrics.ResultInvalidToken).Inc()
			return auth.TokenPair{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}
		log.Error("failed to load user", logger.Err(err))
		metrics.Refreshes.WithLabelValues(metrics.ResultError).Inc()
		return auth.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	if subtle.ConstantTimeCompare([]byte(user.RefreshToken), []byte(presented)) != 1 {
		log.Warn("refresh token does not match stored session")
		metrics.Refreshes.WithLabelValues(metrics.ResultReused).Inc()
		return auth.TokenPair{}, fmt.Errorf("%s: %w", op, ErrTokenReused)
	}

	pair, err := s.tokens.IssuePair(userID)
	if err != nil {
		log.Error("failed to issue tokens", logger.Err(err))
		metrics.Refreshes.WithLabelValues(metrics.ResultError).Inc()
		return auth.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.users.SwapRefreshToken(ctx, userID, presented, pair.RefreshToken); err != nil {
		if errors.Is(err, repository.ErrTokenMismatch) || errors.Is(err, repository.ErrNotFound) {
			log.Warn("lost refresh race")
			metrics.Refreshes.WithLabelValues(metrics.ResultReused).Inc()
			return auth.TokenPair{}, fmt.Errorf("%s: %w", op, ErrTokenReused)
		}
		log.Error("failed to rotate refresh token", logger.Err(err))
		metrics.Refreshes.WithLabelValues(metrics.ResultError).Inc()
		return auth.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	emit(ctx, log, s.publisher, domain.NewSessionEvent(domain.SessionEventRotated, userID, ""))
	metrics.Refreshes.WithLabelValues(metrics.ResultSuccess).Inc()
	log.Info("session rotated")

	return pair, nil
}

type ChangePasswordInput struct {
	OldPassword string
	NewPassword string
}

func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, input ChangePasswordInput) error {
	const op = "service.AuthService.ChangePassword"
	log := s.log.With(slog.String("op", op), slog.String("user_id", userID.String()))

	if input.OldPassword == "" || input.NewPassword == "" {
		return fmt.Errorf("%s: %w", op, invalid("old and new password are required"))
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		log.Error("failed to load user", logger.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if !s.hasher.Verify(input.OldPassword, user.PasswordHash) {
		log.Warn("invalid old password")
		return fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	hash, err := s.hasher.Hash(input.NewPassword)
	if err != nil {
		log.Error("failed to hash password", logger.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.users.SetPassword(ctx, userID, hash); err != nil {
		log.Error("failed to store password", logger.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if s.cfg.Auth.RevokeSessionOnPasswordChange {
		previous, err := s.users.SetRefreshToken(ctx, userID, "")
		if err != nil {
			log.Error("failed to revoke session", logger.Err(err))
			return fmt.Errorf("%s: %w", op, err)
		}
		if previous != "" {
			emit(ctx, log, s.publisher,
				domain.NewSessionEvent(domain.SessionEventRevoked, userID, domain.RevokeReasonPasswordChanged))
		}
	}

	log.Info("password changed")
	return nil
}

// Authenticate verifies an access token and returns the sanitized user it
// was issued to.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*domain.User, error) {
	const op = "service.AuthService.Authenticate"

	if accessToken == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}

	claims, err := s.tokens.Verify(accessToken, auth.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrUnauthorized, err)
	}

	userID, err := claims.UserID()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrUnauthorized, err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
		}
		s.log.Error("failed to load user", slog.String("op", op), logger.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user.Sanitized(), nil
}

func (s *AuthService) AccessTTL() time.Duration  { return s.tokens.AccessTTL() }
func (s *AuthService) RefreshTTL() time.Duration { return s.tokens.RefreshTTL() }
