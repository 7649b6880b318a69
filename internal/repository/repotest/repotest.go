// Package repotest holds behaviour every UserRepository implementation must
// share. Store packages run it against a live database.
package repotest

import (
	"context"
	"sync"
	"testing"

	"github.com/dom/accounts/internal/domain"
	"github.com/dom/accounts/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty repository. It is called once per subtest.
type Factory func(t *testing.T) repository.UserRepository

func newUser(userName, email string) *domain.User {
	return &domain.User{
		ID:           uuid.New(),
		UserName:     userName,
		Email:        email,
		FullName:     "Test " + userName,
		Avatar:       "https://blobs.test/media/" + uuid.NewString(),
		PasswordHash: "hash",
	}
}

func RunUserRepository(t *testing.T, newRepo Factory) {
	t.Run("create and get", func(t *testing.T) { testCreateAndGet(t, newRepo(t)) })
	t.Run("uniqueness", func(t *testing.T) { testUniqueness(t, newRepo(t)) })
	t.Run("find by identifier", func(t *testing.T) { testFindByIdentifier(t, newRepo(t)) })
	t.Run("update", func(t *testing.T) { testUpdate(t, newRepo(t)) })
	t.Run("set password", func(t *testing.T) { testSetPassword(t, newRepo(t)) })
	t.Run("set refresh token", func(t *testing.T) { testSetRefreshToken(t, newRepo(t)) })
	t.Run("swap refresh token", func(t *testing.T) { testSwapRefreshToken(t, newRepo(t)) })
	t.Run("concurrent swap", func(t *testing.T) { testConcurrentSwap(t, newRepo(t)) })
}

func testCreateAndGet(t *testing.T, repo repository.UserRepository) {
	ctx := context.Background()
	user := newUser("alice", "alice@x.com")
	user.CoverImage = "https://blobs.test/media/cover"

	require.NoError(t, repo.Create(ctx, user))

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "alice", got.UserName)
	assert.Equal(t, "alice@x.com", got.Email)
	assert.Equal(t, user.FullName, got.FullName)
	assert.Equal(t, user.Avatar, got.Avatar)
	assert.Equal(t, user.CoverImage, got.CoverImage)
	assert.Equal(t, "hash", got.PasswordHash)
	assert.Empty(t, got.RefreshToken)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func testUniqueness(t *testing.T, repo repository.UserRepository) {
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newUser("bob", "bob@x.com")))

	tests := []struct {
		name string
		user *domain.User
	}{
		{name: "same username", user: newUser("bob", "other@x.com")},
		{name: "same email", user: newUser("other", "bob@x.com")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.Create(ctx, tt.user)
			assert.ErrorIs(t, err, repository.ErrDuplicate)
		})
	}

	matches, err := repo.FindByIdentifier(ctx, "bob", "bob@x.com")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func testFindByIdentifier(t *testing.T, repo repository.UserRepository) {
	ctx := context.Background()
	carol := newUser("carol", "carol@x.com")
	dave := newUser("dave", "dave@x.com")
	require.NoError(t, repo.Create(ctx, carol))
	require.NoError(t, repo.Create(ctx, dave))

	tests := []struct {
		name     string
		userName string
		email    string
		want     []uuid.UUID
	}{
		{name: "by username", userName: "carol", want: []uuid.UUID{carol.ID}},
		{name: "by email", email: "dave@x.com", want: []uuid.UUID{dave.ID}},
		{name: "both identify one user", userName: "carol", email: "carol@x.com", want: []uuid.UUID{carol.ID}},
		{name: "identifiers of different users", userName: "carol", email: "dave@x.com", want: []uuid.UUID{carol.ID, dave.ID}},
		{name: "no match", userName: "nobody", email: "nobody@x.com"},
		{name: "no identifiers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches, err := repo.FindByIdentifier(ctx, tt.userName, tt.email)
			require.NoError(t, err)

			ids := make([]uuid.UUID, 0, len(matches))
			for _, m := range matches {
				ids = append(ids, m.ID)
			}
			assert.ElementsMatch(t, tt.want, ids)
		})
	}
}

func testUpdate(t *testing.T, repo repository.UserRepository) {
	ctx := context.Background()
	erin := newUser("erin", "erin@x.com")
	frank := newUser("frank", "frank@x.com")
	require.NoError(t, repo.Create(ctx, erin))
	require.NoError(t, repo.Create(ctx, frank))

	name := "Erin Updated"
	got, err := repo.Update(ctx, erin.ID, domain.UserUpdate{FullName: &name})
	require.NoError(t, err)
	assert.Equal(t, name, got.FullName)
	assert.Equal(t, "erin@x.com", got.Email)
	assert.Equal(t, erin.Avatar, got.Avatar)

	avatar := "https://blobs.test/media/new"
	got, err = repo.Update(ctx, erin.ID, domain.UserUpdate{Avatar: &avatar})
	require.NoError(t, err)
	assert.Equal(t, avatar, got.Avatar)
	assert.Equal(t, name, got.FullName)

	taken := "frank@x.com"
	_, err = repo.Update(ctx, erin.ID, domain.UserUpdate{Email: &taken})
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	_, err = repo.Update(ctx, uuid.New(), domain.UserUpdate{FullName: &name})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func testSetPassword(t *testing.T, repo repository.UserRepository) {
	ctx := context.Background()
	user := newUser("grace", "grace@x.com")
	require.NoError(t, repo.Create(ctx, user))

	require.NoError(t, repo.SetPassword(ctx, user.ID, "new-hash"))

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)

	assert.ErrorIs(t, repo.SetPassword(ctx, uuid.New(), "x"), repository.ErrNotFound)
}

func testSetRefreshToken(t *testing.T, repo repository.UserRepository) {
	ctx := context.Background()
	user := newUser("heidi", "heidi@x.com")
	require.NoError(t, repo.Create(ctx, user))

	previous, err := repo.SetRefreshToken(ctx, user.ID, "first")
	require.NoError(t, err)
	assert.Empty(t, previous)

	previous, err = repo.SetRefreshToken(ctx, user.ID, "second")
	require.NoError(t, err)
	assert.Equal(t, "first", previous)

	previous, err = repo.SetRefreshToken(ctx, user.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "second", previous)

	// clearing twice is fine
	previous, err = repo.SetRefreshToken(ctx, user.ID, "")
	require.NoError(t, err)
	assert.Empty(t, previous)

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, got.HasSession())

	_, err = repo.SetRefreshToken(ctx, uuid.New(), "x")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func testSwapRefreshToken(t *testing.T, repo repository.UserRepository) {
	ctx := context.Background()
	user := newUser("ivan", "ivan@x.com")
	require.NoError(t, repo.Create(ctx, user))
	_, err := repo.SetRefreshToken(ctx, user.ID, "current")
	require.NoError(t, err)

	assert.ErrorIs(t, repo.SwapRefreshToken(ctx, user.ID, "stale", "next"), repository.ErrTokenMismatch)
	assert.ErrorIs(t, repo.SwapRefreshToken(ctx, user.ID, "", "next"), repository.ErrTokenMismatch)
	assert.ErrorIs(t, repo.SwapRefreshToken(ctx, uuid.New(), "current", "next"), repository.ErrTokenMismatch)

	require.NoError(t, repo.SwapRefreshToken(ctx, user.ID, "current", "next"))

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "next", got.RefreshToken)

	assert.ErrorIs(t, repo.SwapRefreshToken(ctx, user.ID, "current", "again"), repository.ErrTokenMismatch)
}

func testConcurrentSwap(t *testing.T, repo repository.UserRepository) {
	ctx := context.Background()
	user := newUser("judy", "judy@x.com")
	require.NoError(t, repo.Create(ctx, user))
	_, err := repo.SetRefreshToken(ctx, user.ID, "shared")
	require.NoError(t, err)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(next string) {
			defer wg.Done()
			if err := repo.SwapRefreshToken(ctx, user.ID, "shared", next); err == nil {
				mu.Lock()
				winners = append(winners, next)
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, repository.ErrTokenMismatch)
			}
		}(uuid.NewString())
	}
	wg.Wait()

	require.Len(t, winners, 1)

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, winners[0], got.RefreshToken)
}
