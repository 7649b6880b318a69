package mongodb_test

import (
	"context"
	"testing"

	"github.com/dom/accounts/internal/repository"
	"github.com/dom/accounts/internal/repository/mongodb"
	"github.com/dom/accounts/internal/repository/repotest"
	"github.com/dom/accounts/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository(t *testing.T) {
	tm := testutil.NewTestMongo(t)
	repo := mongodb.NewUserRepository(tm.DB)

	repotest.RunUserRepository(t, func(t *testing.T) repository.UserRepository {
		tm.Truncate(t)
		return repo
	})
}

func TestMigrate_Idempotent(t *testing.T) {
	tm := testutil.NewTestMongo(t)
	repo := mongodb.NewUserRepository(tm.DB)

	require.NoError(t, repo.Migrate(context.Background()))

	specs, err := tm.DB.Collection("users").Indexes().ListSpecifications(context.Background())
	require.NoError(t, err)

	unique := map[string]bool{}
	for _, s := range specs {
		unique[s.Name] = s.Unique != nil && *s.Unique
	}
	assert.True(t, unique["user_name_1"])
	assert.True(t, unique["email_1"])
	assert.Contains(t, unique, "full_name_1")
}
