package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/mastodon-bridge/internal/domain"
	"github.com/blackmichael/mastodon-bridge/internal/sqlite"
)

func TestImportUsers_ReportsInsertsAndUpdates(t *testing.T) {
	ctx := context.Background()
	repo, err := sqlite.NewRepository(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	require.NoError(t, repo.UpsertUser(ctx, domain.UserRecord{
		SubjectID:      "did:plc:bob",
		MastodonHandle: "bob@old.social",
		AccessToken:    "old",
	}))

	cfg := &domain.Config{Users: map[string]domain.UserRecord{
		"did:plc:bob":   {SubjectID: "did:plc:bob", MastodonHandle: "bob@new.social", AccessToken: "new"},
		"did:plc:alice": {SubjectID: "did:plc:alice", MastodonHandle: "alice@example.social", AccessToken: "a"},
	}}

	var out bytes.Buffer
	require.NoError(t, importUsers(ctx, repo, cfg, &out, "users.db"))

	assert.Equal(t, "Inserted did:plc:alice (alice@example.social)\n"+
		"Updated did:plc:bob (bob@new.social)\n"+
		"1 inserted, 1 updated in users.db\n", out.String())

	bob, err := repo.GetUser(ctx, "did:plc:bob")
	require.NoError(t, err)
	require.NotNil(t, bob)
	assert.Equal(t, "new", bob.AccessToken)
}
