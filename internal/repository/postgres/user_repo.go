package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dom/accounts/internal/domain"
	"github.com/dom/accounts/internal/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *userRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&domain.User{})
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	return translate(r.db.WithContext(ctx).Create(user).Error)
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *userRepository) FindByIdentifier(ctx context.Context, userName, email string) ([]*domain.User, error) {
	if userName == "" && email == "" {
		return nil, nil
	}

	query := r.db.WithContext(ctx).Model(&domain.User{})
	switch {
	case userName != "" && email != "":
		query = query.Where("user_name = ? OR email = ?", userName, email)
	case userName != "":
		query = query.Where("user_name = ?", userName)
	default:
		query = query.Where("email = ?", email)
	}

	var users []*domain.User
	if err := query.Order("created_at").Limit(2).Find(&users).Error; err != nil {
		return nil, translate(err)
	}
	return users, nil
}

func (r *userRepository) Update(ctx context.Context, id uuid.UUID, update domain.UserUpdate) (*domain.User, error) {
	fields := map[string]interface{}{"updated_at": time.Now()}
	if update.Email != nil {
		fields["email"] = *update.Email
	}
	if update.FullName != nil {
		fields["full_name"] = *update.FullName
	}
	if update.Avatar != nil {
		fields["avatar"] = *update.Avatar
	}
	if update.CoverImage != nil {
		fields["cover_image"] = *update.CoverImage
	}

	res := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, repository.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *userRepository) SetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"password": passwordHash, "updated_at": time.Now()})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *userRepository) SetRefreshToken(ctx context.Context, id uuid.UUID, token string) (string, error) {
	var previous string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current domain.User
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "refresh_token").
			First(&current, "id = ?", id).Error
		if err != nil {
			return err
		}
		previous = current.RefreshToken

		return tx.Model(&domain.User{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{"refresh_token": token, "updated_at": time.Now()}).Error
	})
	if err != nil {
		return "", translate(err)
	}
	return previous, nil
}

func (r *userRepository) SwapRefreshToken(ctx context.Context, id uuid.UUID, expected, next string) error {
	if expected == "" {
		return repository.ErrTokenMismatch
	}

	res := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ? AND refresh_token = ?", id, expected).
		Updates(map[string]interface{}{"refresh_token": next, "updated_at": time.Now()})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrTokenMismatch
	}
	return nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return repository.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", repository.ErrDuplicate, err)
	default:
		return err
	}
}
