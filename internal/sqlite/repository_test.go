package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/mastodon-bridge/internal/domain"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRepository_UpsertAndLoad(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	require.NoError(t, repo.UpsertUser(ctx, domain.UserRecord{
		SubjectID:      "did:plc:abc",
		MastodonHandle: "alice@example.social",
		AccessToken:    "tok-1",
	}))
	require.NoError(t, repo.UpsertUser(ctx, domain.UserRecord{
		SubjectID:      "did:plc:abc",
		MastodonHandle: "alice@example.social",
		AccessToken:    "tok-2",
		PDS:            "https://pds.example.net",
	}))

	cfg, err := repo.LoadConfig(ctx)
	require.NoError(t, err)
	require.Len(t, cfg.Users, 1)

	user, ok := cfg.Lookup("did:plc:abc")
	require.True(t, ok)
	assert.Equal(t, "tok-2", user.AccessToken)
	assert.Equal(t, "https://pds.example.net", user.PDS)
}

func TestRepository_GetUser(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	user, err := repo.GetUser(ctx, "did:plc:missing")
	require.NoError(t, err)
	assert.Nil(t, user)

	require.NoError(t, repo.UpsertUser(ctx, domain.UserRecord{
		SubjectID:      "did:plc:abc",
		MastodonHandle: "alice@example.social",
		AccessToken:    "tok",
		MastodonUserID: "42",
	}))

	user, err = repo.GetUser(ctx, "did:plc:abc")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "42", user.MastodonUserID)
}

func TestRepository_UpsertRequiresSubject(t *testing.T) {
	err := newTestRepository(t).UpsertUser(context.Background(), domain.UserRecord{AccessToken: "tok"})
	assert.Error(t, err)
}
