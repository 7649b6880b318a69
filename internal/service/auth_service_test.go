package service_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/dom/accounts/internal/auth"
	"github.com/dom/accounts/internal/domain"
	"github.com/dom/accounts/internal/logger"
	"github.com/dom/accounts/internal/repository/postgres"
	"github.com/dom/accounts/internal/service"
	"github.com/dom/accounts/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.SessionEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e domain.SessionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) reasons(typ domain.SessionEventType) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		if e.Type == typ {
			out = append(out, e.Reason)
		}
	}
	return out
}

func TestAuthService_Login(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	users := postgres.NewUserRepository(testDB.DB)
	services, _ := testutil.NewTestServices(t, users, testutil.TestConfig())
	ctx := context.Background()

	tests := []struct {
		name    string
		input   func(u *domain.User, password string) service.LoginInput
		setup   func(t *testing.T)
		wantErr error
	}{
		{
			name: "by username",
			input: func(u *domain.User, pw string) service.LoginInput {
				return service.LoginInput{UserName: u.UserName, Password: pw}
			},
		},
		{
			name: "by email",
			input: func(u *domain.User, pw string) service.LoginInput {
				return service.LoginInput{Email: u.Email, Password: pw}
			},
		},
		{
			name: "username is case insensitive",
			input: func(u *domain.User, pw string) service.LoginInput {
				return service.LoginInput{UserName: "  " + strings.ToUpper(u.UserName) + " ", Password: pw}
			},
		},
		{
			name: "wrong password",
			input: func(u *domain.User, _ string) service.LoginInput {
				return service.LoginInput{UserName: u.UserName, Password: "wrong-password"}
			},
			wantErr: service.ErrInvalidCredentials,
		},
		{
			name: "unknown user",
			input: func(_ *domain.User, pw string) service.LoginInput {
				return service.LoginInput{UserName: "nobody", Password: pw}
			},
			wantErr: service.ErrUserNotFound,
		},
		{
			name: "identifiers of different users",
			input: func(u *domain.User, pw string) service.LoginInput {
				return service.LoginInput{UserName: u.UserName, Email: "other@example.com", Password: pw}
			},
			setup: func(t *testing.T) {
				testutil.NewUserBuilder().WithEmail("other@example.com").Build(t, users)
			},
			wantErr: service.ErrAmbiguousIdentifier,
		},
		{
			name: "missing identifier",
			input: func(_ *domain.User, pw string) service.LoginInput {
				return service.LoginInput{Password: pw}
			},
			wantErr: service.ErrValidation,
		},
		{
			name: "missing password",
			input: func(u *domain.User, _ string) service.LoginInput {
				return service.LoginInput{UserName: u.UserName}
			},
			wantErr: service.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testDB.Truncate(t)
			user, password := testutil.NewUserBuilder().Build(t, users)
			if tt.setup != nil {
				tt.setup(t)
			}

			result, err := services.Auth.Login(ctx, tt.input(user, password))

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, result)

				stored, err := users.GetByID(ctx, user.ID)
				require.NoError(t, err)
				assert.False(t, stored.HasSession(), "failed login must not store a token")
				return
			}

			require.NoError(t, err)
			assert.Equal(t, user.ID, result.User.ID)
			assert.Empty(t, result.User.PasswordHash)
			assert.Empty(t, result.User.RefreshToken)
			assert.NotEmpty(t, result.AccessToken)
			assert.NotEmpty(t, result.RefreshToken)
			assert.NotEqual(t, result.AccessToken, result.RefreshToken)

			stored, err := users.GetByID(ctx, user.ID)
			require.NoError(t, err)
			assert.Equal(t, result.RefreshToken, stored.RefreshToken)
		})
	}
}

func TestAuthService_Refresh(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	users := postgres.NewUserRepository(testDB.DB)
	cfg := testutil.TestConfig()
	services, _ := testutil.NewTestServices(t, users, cfg)
	ctx := context.Background()

	login := func(t *testing.T) (*domain.User, *service.AuthResult) {
		user, password := testutil.NewUserBuilder().Build(t, users)
		result, err := services.Auth.Login(ctx, service.LoginInput{UserName: user.UserName, Password: password})
		require.NoError(t, err)
		return user, result
	}

	t.Run("rotates the refresh token", func(t *testing.T) {
		user, session := login(t)

		pair, err := services.Auth.Refresh(ctx, session.RefreshToken)
		require.NoError(t, err)
		assert.NotEqual(t, session.RefreshToken, pair.RefreshToken)
		assert.NotEmpty(t, pair.AccessToken)

		stored, err := users.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, pair.RefreshToken, stored.RefreshToken)

		next, err := services.Auth.Refresh(ctx, pair.RefreshToken)
		require.NoError(t, err)
		assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)
	})

	t.Run("rotated token cannot be reused", func(t *testing.T) {
		_, session := login(t)

		_, err := services.Auth.Refresh(ctx, session.RefreshToken)
		require.NoError(t, err)

		_, err = services.Auth.Refresh(ctx, session.RefreshToken)
		assert.ErrorIs(t, err, service.ErrTokenReused)
	})

	t.Run("new login supersedes previous session", func(t *testing.T) {
		user, password := testutil.NewUserBuilder().Build(t, users)
		first, err := services.Auth.Login(ctx, service.LoginInput{UserName: user.UserName, Password: password})
		require.NoError(t, err)
		_, err = services.Auth.Login(ctx, service.LoginInput{Email: user.Email, Password: password})
		require.NoError(t, err)

		_, err = services.Auth.Refresh(ctx, first.RefreshToken)
		assert.ErrorIs(t, err, service.ErrTokenReused)
	})

	t.Run("logout invalidates refresh token", func(t *testing.T) {
		user, session := login(t)

		require.NoError(t, services.Auth.Logout(ctx, user.ID))
		require.NoError(t, services.Auth.Logout(ctx, user.ID))

		_, err := services.Auth.Refresh(ctx, session.RefreshToken)
		assert.ErrorIs(t, err, service.ErrTokenReused)
	})

	t.Run("missing token", func(t *testing.T) {
		_, err := services.Auth.Refresh(ctx, "")
		assert.ErrorIs(t, err, service.ErrUnauthorized)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := services.Auth.Refresh(ctx, "not-a-jwt")
		assert.ErrorIs(t, err, service.ErrInvalidToken)
		assert.ErrorIs(t, err, auth.ErrMalformedToken)
	})

	t.Run("access token is not a refresh token", func(t *testing.T) {
		_, session := login(t)

		_, err := services.Auth.Refresh(ctx, session.AccessToken)
		assert.ErrorIs(t, err, service.ErrInvalidToken)
	})

	t.Run("token for unknown user", func(t *testing.T) {
		token, err := testutil.NewTestIssuer(t, cfg).IssueRefresh(uuid.New())
		require.NoError(t, err)

		_, err = services.Auth.Refresh(ctx, token)
		assert.ErrorIs(t, err, service.ErrInvalidToken)
	})

	t.Run("concurrent refresh has one winner", func(t *testing.T) {
		user, session := login(t)

		const callers = 8
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners []auth.TokenPair
			reused  int
		)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				pair, err := services.Auth.Refresh(ctx, session.RefreshToken)
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					winners = append(winners, pair)
					return
				}
				if assert.ErrorIs(t, err, service.ErrTokenReused) {
					reused++
				}
			}()
		}
		wg.Wait()

		require.Len(t, winners, 1)
		assert.Equal(t, callers-1, reused)

		stored, err := users.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, winners[0].RefreshToken, stored.RefreshToken)
	})
}

func TestAuthService_ChangePassword(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	users := postgres.NewUserRepository(testDB.DB)
	ctx := context.Background()

	tests := []struct {
		name           string
		revoke         bool
		oldPassword    func(actual string) string
		wantErr        error
		refreshAllowed bool
	}{
		{
			name:        "correct old password revokes session",
			revoke:      true,
			oldPassword: func(actual string) string { return actual },
		},
		{
			name:           "correct old password keeps session when configured",
			revoke:         false,
			oldPassword:    func(actual string) string { return actual },
			refreshAllowed: true,
		},
		{
			name:           "wrong old password",
			revoke:         true,
			oldPassword:    func(string) string { return "not-the-password" },
			wantErr:        service.ErrInvalidCredentials,
			refreshAllowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testDB.Truncate(t)
			cfg := testutil.TestConfig()
			cfg.Auth.RevokeSessionOnPasswordChange = tt.revoke
			services, _ := testutil.NewTestServices(t, users, cfg)

			user, password := testutil.NewUserBuilder().Build(t, users)
			session, err := services.Auth.Login(ctx, service.LoginInput{UserName: user.UserName, Password: password})
			require.NoError(t, err)

			const newPassword = "brand-new-password"
			err = services.Auth.ChangePassword(ctx, user.ID, service.ChangePasswordInput{
				OldPassword: tt.oldPassword(password),
				NewPassword: newPassword,
			})

			_, refreshErr := services.Auth.Refresh(ctx, session.RefreshToken)
			if tt.refreshAllowed {
				assert.NoError(t, refreshErr)
			} else {
				assert.ErrorIs(t, refreshErr, service.ErrTokenReused)
			}

			_, oldErr := services.Auth.Login(ctx, service.LoginInput{UserName: user.UserName, Password: password})
			_, newErr := services.Auth.Login(ctx, service.LoginInput{UserName: user.UserName, Password: newPassword})

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.NoError(t, oldErr)
				assert.ErrorIs(t, newErr, service.ErrInvalidCredentials)
				return
			}

			require.NoError(t, err)
			assert.ErrorIs(t, oldErr, service.ErrInvalidCredentials)
			assert.NoError(t, newErr)
		})
	}
}

func TestAuthService_Authenticate(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	users := postgres.NewUserRepository(testDB.DB)
	cfg := testutil.TestConfig()
	services, _ := testutil.NewTestServices(t, users, cfg)
	ctx := context.Background()

	user, password := testutil.NewUserBuilder().Build(t, users)
	session, err := services.Auth.Login(ctx, service.LoginInput{UserName: user.UserName, Password: password})
	require.NoError(t, err)

	orphan, err := testutil.NewTestIssuer(t, cfg).IssueAccess(uuid.New())
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "valid access token", token: session.AccessToken},
		{name: "empty", token: "", wantErr: service.ErrUnauthorized},
		{name: "refresh token", token: session.RefreshToken, wantErr: service.ErrUnauthorized},
		{name: "garbage", token: "abc.def.ghi", wantErr: service.ErrUnauthorized},
		{name: "unknown user", token: orphan, wantErr: service.ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := services.Auth.Authenticate(ctx, tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, user.ID, got.ID)
			assert.Empty(t, got.PasswordHash)
			assert.Empty(t, got.RefreshToken)
		})
	}
}

func TestAuthService_Events(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	users := postgres.NewUserRepository(testDB.DB)
	cfg := testutil.TestConfig()
	publisher := &recordingPublisher{}
	authService := service.NewAuthService(
		users,
		testutil.NewTestIssuer(t, cfg),
		auth.NewBcryptHasher(cfg.Auth.BcryptCost),
		publisher,
		cfg,
		logger.Discard(),
	)
	ctx := context.Background()

	user, password := testutil.NewUserBuilder().Build(t, users)
	input := service.LoginInput{UserName: user.UserName, Password: password}

	_, err := authService.Login(ctx, input)
	require.NoError(t, err)
	second, err := authService.Login(ctx, input)
	require.NoError(t, err)
	_, err = authService.Refresh(ctx, second.RefreshToken)
	require.NoError(t, err)
	require.NoError(t, authService.ChangePassword(ctx, user.ID, service.ChangePasswordInput{
		OldPassword: password,
		NewPassword: "another-password",
	}))
	require.NoError(t, authService.Logout(ctx, user.ID))

	assert.Len(t, publisher.reasons(domain.SessionEventStarted), 2)
	assert.Len(t, publisher.reasons(domain.SessionEventRotated), 1)
	assert.Equal(t,
		[]string{domain.RevokeReasonSuperseded, domain.RevokeReasonPasswordChanged},
		publisher.reasons(domain.SessionEventRevoked),
		"logout after revocation has no session to revoke",
	)
}
