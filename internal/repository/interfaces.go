package repository

import (
	"context"
	"errors"

	"github.com/dom/accounts/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrDuplicate     = errors.New("record already exists")
	ErrTokenMismatch = errors.New("stored refresh token does not match")
)

// UserRepository is the durable user store. It is the only place session
// state lives: the current refresh token is a field of the user record.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	// FindByIdentifier returns every user whose username equals userName or
	// whose email equals email. Empty arguments are ignored.
	FindByIdentifier(ctx context.Context, userName, email string) ([]*domain.User, error)
	// Update applies a partial update and returns the stored record.
	Update(ctx context.Context, id uuid.UUID, update domain.UserUpdate) (*domain.User, error)
	SetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	// SetRefreshToken overwrites the stored refresh token unconditionally and
	// returns the value it replaced.
	SetRefreshToken(ctx context.Context, id uuid.UUID, token string) (previous string, err error)
	// SwapRefreshToken replaces the stored token with next only if it
	// currently equals expected, as a single atomic update. It returns
	// ErrTokenMismatch when the comparison fails.
	SwapRefreshToken(ctx context.Context, id uuid.UUID, expected, next string) error
	Migrate(ctx context.Context) error
}

// BlobStore keeps uploaded media. Upload reads a local file and returns the
// public URL; Remove accepts that URL.
type BlobStore interface {
	Upload(ctx context.Context, localPath string) (url string, err error)
	Remove(ctx context.Context, url string) error
}

type Repositories struct {
	User  UserRepository
	Blobs BlobStore
}
