package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/dom/accounts/internal/domain"
	"github.com/dom/accounts/internal/repository"
	"github.com/dom/accounts/internal/service"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// 1x1 transparent PNG
var pngPixel = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

// TempImage writes a small PNG into the test's temp dir and returns its path
func TempImage(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), uuid.NewString()+".png")
	if err := os.WriteFile(path, pngPixel, 0o600); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}
	return path
}

// UserBuilder creates test users with a builder pattern
type UserBuilder struct {
	userName string
	email    string
	fullName string
	password string
}

// NewUserBuilder creates a new UserBuilder with random but unique values
func NewUserBuilder() *UserBuilder {
	suffix := uuid.NewString()[:8]
	return &UserBuilder{
		userName: strings.ToLower(gofakeit.Username()) + "_" + suffix,
		email:    fmt.Sprintf("%s.%s@example.com", strings.ToLower(gofakeit.FirstName()), suffix),
		fullName: gofakeit.Name(),
		password: gofakeit.Password(true, true, true, true, false, 14),
	}
}

func (b *UserBuilder) WithUserName(name string) *UserBuilder {
	b.userName = name
	return b
}

func (b *UserBuilder) WithEmail(email string) *UserBuilder {
	b.email = email
	return b
}

func (b *UserBuilder) WithFullName(name string) *UserBuilder {
	b.fullName = name
	return b
}

func (b *UserBuilder) WithPassword(password string) *UserBuilder {
	b.password = password
	return b
}

// Build stores the user directly and returns it with the raw password
func (b *UserBuilder) Build(t *testing.T, users repository.UserRepository) (*domain.User, string) {
	t.Helper()

	hashed, err := bcrypt.GenerateFromPassword([]byte(b.password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &domain.User{
		ID:           uuid.New(),
		UserName:     b.userName,
		Email:        b.email,
		FullName:     b.fullName,
		Avatar:       memoryBlobPrefix + uuid.NewString(),
		PasswordHash: string(hashed),
	}

	if err := users.Create(context.Background(), user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	return user, b.password
}

// RegisterInput returns service input for this user with the given avatar
func (b *UserBuilder) RegisterInput(avatarPath string) service.RegisterInput {
	return service.RegisterInput{
		UserName:   b.userName,
		Email:      b.email,
		FullName:   b.fullName,
		Password:   b.password,
		AvatarPath: avatarPath,
	}
}

// Fields returns the registration form fields
func (b *UserBuilder) Fields() map[string]string {
	return map[string]string{
		"userName": b.userName,
		"email":    b.email,
		"fullName": b.fullName,
		"password": b.password,
	}
}

func (b *UserBuilder) Password() string {
	return b.password
}

// Multipart encodes fields and files (form field name to local path)
func Multipart(t *testing.T, fields map[string]string, files map[string]string) (io.Reader, string) {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	for field, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read %s: %v", path, err)
		}
		part, err := w.CreateFormFile(field, filepath.Base(path))
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		part.Write(data)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	return body, w.FormDataContentType()
}

// Session is the token pair returned by login
type Session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// LoginResponse matches the login data payload
type LoginResponse struct {
	User         domain.User `json:"user"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
}

// Register creates the user through the API
func (b *UserBuilder) Register(t *testing.T, ts *TestServer) *domain.User {
	t.Helper()

	body, contentType := Multipart(t, b.Fields(), map[string]string{"avatar": TempImage(t)})
	resp, err := http.Post(ts.APIURL("/register"), contentType, body)
	if err != nil {
		t.Fatalf("failed to register user: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status code: %d", resp.StatusCode)
	}

	var user domain.User
	DecodeEnvelope(t, resp, &user)
	return &user
}

// Login logs the user in through the API
func (b *UserBuilder) Login(t *testing.T, ts *TestServer) Session {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{
		"userName": b.userName,
		"password": b.password,
	})
	resp, err := http.Post(ts.APIURL("/login"), "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("failed to login: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status code: %d", resp.StatusCode)
	}

	var login LoginResponse
	DecodeEnvelope(t, resp, &login)
	return Session{AccessToken: login.AccessToken, RefreshToken: login.RefreshToken}
}

// BuildAndAuthenticate registers and logs in a user through the API
func (b *UserBuilder) BuildAndAuthenticate(t *testing.T, ts *TestServer) (*domain.User, Session) {
	t.Helper()

	user := b.Register(t, ts)
	return user, b.Login(t, ts)
}
