package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dom/accounts/internal/auth"
	"github.com/dom/accounts/internal/domain"
	"github.com/dom/accounts/internal/events"
	"github.com/dom/accounts/internal/logger"
	"github.com/dom/accounts/internal/metrics"
	"github.com/dom/accounts/internal/repository"
	"github.com/google/uuid"
)

type UserService struct {
	users     repository.UserRepository
	blobs     repository.BlobStore
	hasher    auth.Hasher
	publisher events.Publisher
	log       *slog.Logger
}

func NewUserService(
	users repository.UserRepository,
	blobs repository.BlobStore,
	hasher auth.Hasher,
	publisher events.Publisher,
	log *slog.Logger,
) *UserService {
	return &UserService{
		users:     users,
		blobs:     blobs,
		hasher:    hasher,
		publisher: publisher,
		log:       log,
	}
}

// RegisterInput carries the form fields and the local paths of the uploaded
// files. The caller owns the files and removes them afterwards.
type RegisterInput struct {
	UserName       string
	Email          string
	FullName       string
	Password       string
	AvatarPath     string
	CoverImagePath string
}

func (s *UserService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	const op = "service.UserService.Register"
	log := s.log.With(slog.String("op", op))

	userName := normalizeUserName(input.UserName)
	email := normalizeEmail(input.Email)
	fullName := strings.TrimSpace(input.FullName)

	if userName == "" || email == "" || fullName == "" || strings.TrimSpace(input.Password) == "" {
		metrics.Registrations.WithLabelValues(metrics.ResultInvalidInput).Inc()
		return nil, fmt.Errorf("%s: %w", op, invalid("all fields are required"))
	}

	existing, err := s.users.FindByIdentifier(ctx, userName, email)
	if err != nil {
		log.Error("failed to check for existing user", logger.Err(err))
		metrics.Registrations.WithLabelValues(metrics.ResultError).Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(existing) > 0 {
		log.Warn("user already exists", slog.String("user_name", userName))
		metrics.Registrations.WithLabelValues(metrics.ResultConflict).Inc()
		return nil, fmt.Errorf("%s: %w", op, ErrUserExists)
	}

	if input.AvatarPath == "" {
		metrics.Registrations.WithLabelValues(metrics.ResultInvalidInput).Inc()
		return nil, fmt.Errorf("%s: %w", op, invalid("avatar file is required"))
	}

	avatarURL, err := s.blobs.Upload(ctx, input.AvatarPath)
	if err != nil {
		log.Error("failed to upload avatar", logger.Err(err))
		metrics.Registrations.WithLabelValues(metrics.ResultError).Inc()
		return nil, fmt.Errorf("%s: upload avatar: %w", op, err)
	}
	uploaded := []string{avatarURL}

	var coverURL string
	if input.CoverImagePath != "" {
		coverURL, err = s.blobs.Upload(ctx, input.CoverImagePath)
		if err != nil {
			log.Error("failed to upload cover image", logger.Err(err))
			s.discard(ctx, log, uploaded...)
			metrics.Registrations.WithLabelValues(metrics.ResultError).Inc()
			return nil, fmt.Errorf("%s: upload cover image: %w", op, err)
		}
		uploaded = append(uploaded, coverURL)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		log.Error("failed to hash password", logger.Err(err))
		s.discard(ctx, log, uploaded...)
		metrics.Registrations.WithLabelValues(metrics.ResultError).Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user := &domain.User{
		ID:           uuid.New(),
		UserName:     userName,
		Email:        email,
		FullName:     fullName,
		Avatar:       avatarURL,
		CoverImage:   coverURL,
		PasswordHash: hash,
	}

	if err := s.users.Create(ctx, user); err != nil {
		s.discard(ctx, log, uploaded...)
		if errors.Is(err, repository.ErrDuplicate) {
			log.Warn("user created concurrently", slog.String("user_name", userName))
			metrics.Registrations.WithLabelValues(metrics.ResultConflict).Inc()
			return nil, fmt.Errorf("%s: %w", op, ErrUserExists)
		}
		log.Error("failed to create user", logger.Err(err))
		metrics.Registrations.WithLabelValues(metrics.ResultError).Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	created, err := s.users.GetByID(ctx, user.ID)
	if err != nil {
		log.Error("created user cannot be read back", logger.Err(err))
		metrics.Registrations.WithLabelValues(metrics.ResultError).Inc()
		return nil, fmt.Errorf("%s: verify created user: %w", op, err)
	}

	emit(ctx, log, s.publisher, domain.NewSessionEvent(domain.UserEventRegistered, created.ID, ""))
	metrics.Registrations.WithLabelValues(metrics.ResultSuccess).Inc()
	log.Info("user registered", slog.String("user_id", created.ID.String()))

	return created.Sanitized(), nil
}

func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	const op = "service.UserService.GetByID"

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user.Sanitized(), nil
}

type AccountDetailsInput struct {
	Email    string
	FullName string
}

// UpdateAccountDetails changes email and/or full name. Empty fields are
// left as they are.
func (s *UserService) UpdateAccountDetails(ctx context.Context, id uuid.UUID, input AccountDetailsInput) (*domain.User, error) {
	const op = "service.UserService.UpdateAccountDetails"
	log := s.log.With(slog.String("op", op), slog.String("user_id", id.String()))

	var update domain.UserUpdate
	if email := normalizeEmail(input.Email); email != "" {
		update.Email = &email
	}
	if fullName := strings.TrimSpace(input.FullName); fullName != "" {
		update.FullName = &fullName
	}
	if update.Empty() {
		return nil, fmt.Errorf("%s: %w", op, invalid("email or full name is required"))
	}

	if update.Email != nil {
		matches, err := s.users.FindByIdentifier(ctx, "", *update.Email)
		if err != nil {
			log.Error("failed to check email", logger.Err(err))
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		for _, m := range matches {
			if m.ID != id {
				return nil, fmt.Errorf("%s: %w", op, ErrUserExists)
			}
		}
	}

	user, err := s.users.Update(ctx, id, update)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		case errors.Is(err, repository.ErrDuplicate):
			return nil, fmt.Errorf("%s: %w", op, ErrUserExists)
		}
		log.Error("failed to update user", logger.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("account details updated")
	return user.Sanitized(), nil
}

func (s *UserService) UpdateAvatar(ctx context.Context, id uuid.UUID, localPath string) (*domain.User, error) {
	return s.replaceImage(ctx, "service.UserService.UpdateAvatar", id, localPath,
		func(u *domain.User) string { return u.Avatar },
		func(url string) domain.UserUpdate { return domain.UserUpdate{Avatar: &url} },
	)
}

func (s *UserService) UpdateCoverImage(ctx context.Context, id uuid.UUID, localPath string) (*domain.User, error) {
	return s.replaceImage(ctx, "service.UserService.UpdateCoverImage", id, localPath,
		func(u *domain.User) string { return u.CoverImage },
		func(url string) domain.UserUpdate { return domain.UserUpdate{CoverImage: &url} },
	)
}

// replaceImage uploads the new file, points the user at it and then drops
// the old blob. Failing to drop the old blob is logged only.
func (s *UserService) replaceImage(
	ctx context.Context,
	op string,
	id uuid.UUID,
	localPath string,
	current func(*domain.User) string,
	set func(url string) domain.UserUpdate,
) (*domain.User, error) {
	log := s.log.With(slog.String("op", op), slog.String("user_id", id.String()))

	if localPath == "" {
		return nil, fmt.Errorf("%s: %w", op, invalid("image file is required"))
	}

	before, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		log.Error("failed to load user", logger.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	url, err := s.blobs.Upload(ctx, localPath)
	if err != nil {
		log.Error("failed to upload image", logger.Err(err))
		return nil, fmt.Errorf("%s: upload: %w", op, err)
	}

	after, err := s.users.Update(ctx, id, set(url))
	if err != nil {
		s.discard(ctx, log, url)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		log.Error("failed to update user", logger.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if old := current(before); old != "" && old != url {
		s.discard(ctx, log, old)
	}

	log.Info("image updated")
	return after.Sanitized(), nil
}

func (s *UserService) discard(ctx context.Context, log *slog.Logger, urls ...string) {
	for _, url := range urls {
		if err := s.blobs.Remove(ctx, url); err != nil {
			log.Warn("failed to remove blob", slog.String("url", url), logger.Err(err))
		}
	}
}
