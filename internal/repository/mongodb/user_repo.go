package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dom/accounts/internal/domain"
	"github.com/dom/accounts/internal/repository"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const usersCollection = "users"

type userDoc struct {
	ID           string    `bson:"_id"`
	UserName     string    `bson:"user_name"`
	Email        string    `bson:"email"`
	FullName     string    `bson:"full_name"`
	Avatar       string    `bson:"avatar"`
	CoverImage   string    `bson:"cover_image"`
	Password     string    `bson:"password"`
	RefreshToken string    `bson:"refresh_token"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func (d *userDoc) toDomain() (*domain.User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("decode user id %q: %w", d.ID, err)
	}
	return &domain.User{
		ID:           id,
		UserName:     d.UserName,
		Email:        d.Email,
		FullName:     d.FullName,
		Avatar:       d.Avatar,
		CoverImage:   d.CoverImage,
		PasswordHash: d.Password,
		RefreshToken: d.RefreshToken,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}, nil
}

type userRepository struct {
	users *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *userRepository {
	return &userRepository{users: db.Collection(usersCollection)}
}

// Migrate creates the unique indexes that back username/email uniqueness.
func (r *userRepository) Migrate(ctx context.Context) error {
	const op = "mongodb.Migrate"

	_, err := r.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "full_name", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const op = "mongodb.Create"

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	doc := userDoc{
		ID:           user.ID.String(),
		UserName:     user.UserName,
		Email:        user.Email,
		FullName:     user.FullName,
		Avatar:       user.Avatar,
		CoverImage:   user.CoverImage,
		Password:     user.PasswordHash,
		RefreshToken: user.RefreshToken,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}

	if _, err := r.users.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("%s: %w", op, translate(err))
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	const op = "mongodb.GetByID"

	var doc userDoc
	err := r.users.FindOne(ctx, bson.D{{Key: "_id", Value: id.String()}}).Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translate(err))
	}
	return doc.toDomain()
}

func (r *userRepository) FindByIdentifier(ctx context.Context, userName, email string) ([]*domain.User, error) {
	const op = "mongodb.FindByIdentifier"

	var or bson.A
	if userName != "" {
		or = append(or, bson.D{{Key: "user_name", Value: userName}})
	}
	if email != "" {
		or = append(or, bson.D{{Key: "email", Value: email}})
	}
	if len(or) == 0 {
		return nil, nil
	}

	opts := options.Find().SetLimit(2).SetSort(bson.D{{Key: "created_at", Value: 1}})
	cur, err := r.users.Find(ctx, bson.D{{Key: "$or", Value: or}}, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	users := make([]*domain.User, 0, len(docs))
	for i := range docs {
		u, err := docs[i].toDomain()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		users = append(users, u)
	}
	return users, nil
}

func (r *userRepository) Update(ctx context.Context, id uuid.UUID, update domain.UserUpdate) (*domain.User, error) {
	const op = "mongodb.Update"

	set := bson.D{{Key: "updated_at", Value: time.Now().UTC()}}
	if update.Email != nil {
		set = append(set, bson.E{Key: "email", Value: *update.Email})
	}
	if update.FullName != nil {
		set = append(set, bson.E{Key: "full_name", Value: *update.FullName})
	}
	if update.Avatar != nil {
		set = append(set, bson.E{Key: "avatar", Value: *update.Avatar})
	}
	if update.CoverImage != nil {
		set = append(set, bson.E{Key: "cover_image", Value: *update.CoverImage})
	}

	var doc userDoc
	err := r.users.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: id.String()}},
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translate(err))
	}
	return doc.toDomain()
}

func (r *userRepository) SetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	const op = "mongodb.SetPassword"

	res, err := r.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id.String()}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "password", Value: passwordHash},
			{Key: "updated_at", Value: time.Now().UTC()},
		}}},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}
	return nil
}

func (r *userRepository) SetRefreshToken(ctx context.Context, id uuid.UUID, token string) (string, error) {
	const op = "mongodb.SetRefreshToken"

	var before userDoc
	err := r.users.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: id.String()}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "refresh_token", Value: token},
			{Key: "updated_at", Value: time.Now().UTC()},
		}}},
		options.FindOneAndUpdate().
			SetReturnDocument(options.Before).
			SetProjection(bson.D{{Key: "refresh_token", Value: 1}}),
	).Decode(&before)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, translate(err))
	}
	return before.RefreshToken, nil
}

func (r *userRepository) SwapRefreshToken(ctx context.Context, id uuid.UUID, expected, next string) error {
	const op = "mongodb.SwapRefreshToken"

	if expected == "" {
		return fmt.Errorf("%s: %w", op, repository.ErrTokenMismatch)
	}

	res, err := r.users.UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: id.String()},
			{Key: "refresh_token", Value: expected},
		},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "refresh_token", Value: next},
			{Key: "updated_at", Value: time.Now().UTC()},
		}}},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrTokenMismatch)
	}
	return nil
}

func translate(err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return repository.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", repository.ErrDuplicate, err)
	default:
		return err
	}
}
