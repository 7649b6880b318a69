package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the account record. PasswordHash and RefreshToken never leave the
// process: both are excluded from JSON and stripped by Sanitized.
type User struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserName     string    `json:"userName" gorm:"uniqueIndex;not null"`
	Email        string    `json:"email" gorm:"uniqueIndex;not null"`
	FullName     string    `json:"fullName" gorm:"index;not null"`
	Avatar       string    `json:"avatar" gorm:"not null"`
	CoverImage   string    `json:"coverImage"`
	PasswordHash string    `json:"-" gorm:"column:password;not null"`
	RefreshToken string    `json:"-" gorm:"not null;default:''"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Sanitized returns a copy safe to hand to callers outside the service layer.
func (u *User) Sanitized() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.PasswordHash = ""
	c.RefreshToken = ""
	return &c
}

// HasSession reports whether the user currently holds a refresh token.
func (u *User) HasSession() bool {
	return u.RefreshToken != ""
}

// UserUpdate carries a partial update. Nil fields are left untouched.
type UserUpdate struct {
	Email      *string
	FullName   *string
	Avatar     *string
	CoverImage *string
}

// Empty reports whether the update would change nothing.
func (u UserUpdate) Empty() bool {
	return u.Email == nil && u.FullName == nil && u.Avatar == nil && u.CoverImage == nil
}
