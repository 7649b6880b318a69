package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dom/accounts/internal/auth"
	"github.com/dom/accounts/internal/config"
	"github.com/dom/accounts/internal/domain"
	"github.com/dom/accounts/internal/events"
	"github.com/dom/accounts/internal/logger"
	"github.com/dom/accounts/internal/repository"
)

type Services struct {
	Auth  *AuthService
	Users *UserService
}

func NewServices(
	repos *repository.Repositories,
	tokens *auth.TokenIssuer,
	hasher auth.Hasher,
	publisher events.Publisher,
	cfg *config.Config,
	log *slog.Logger,
) *Services {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Services{
		Auth:  NewAuthService(repos.User, tokens, hasher, publisher, cfg, log),
		Users: NewUserService(repos.User, repos.Blobs, hasher, publisher, log),
	}
}

// emit publishes best effort; a failed notification never fails the
// operation that produced it.
func emit(ctx context.Context, log *slog.Logger, p events.Publisher, event domain.SessionEvent) {
	if err := p.Publish(ctx, event); err != nil {
		log.Warn("failed to publish event",
			slog.String("type", string(event.Type)),
			logger.Err(err),
		)
	}
}

func normalizeUserName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
