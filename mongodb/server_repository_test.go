package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pterolink/pterolink/domain"
	serrors "github.com/pterolink/pterolink/errors"
	"github.com/pterolink/pterolink/mongodb/testutil"
)

func linkedServer(userID, serverID string) *domain.LinkedServer {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.LinkedServer{
		UserID:     userID,
		ServerID:   serverID,
		ServerName: "survival",
		Verified:   true,
		VerifiedAt: now,
		LastActive: now,
		Status:     domain.ServerLinkStatusLinked,
	}
}

func TestServerRepository_UpsertGetRemove(t *testing.T) {
	db, cleanup := testutil.SetupTestMongoDB(t, "test_servers")
	defer cleanup()
	repo := NewServerRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.EnsureIndexes(ctx))

	require.NoError(t, repo.Upsert(ctx, linkedServer("u1", "s1")))

	got, err := repo.Get(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.True(t, got.Verified)
	assert.Equal(t, "survival", got.ServerName)

	// Upsert for the same pair replaces instead of duplicating.
	updated := linkedServer("u1", "s1")
	updated.ServerName = "renamed"
	require.NoError(t, repo.Upsert(ctx, updated))

	servers, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, "renamed", servers[0].ServerName)

	require.NoError(t, repo.Remove(ctx, "u1", "s1"))
	assert.ErrorIs(t, repo.Remove(ctx, "u1", "s1"), serrors.ErrNotFound)

	_, err = repo.Get(ctx, "u1", "s1")
	assert.ErrorIs(t, err, serrors.ErrNotFound)
}

func TestServerRepository_ListScopes(t *testing.T) {
	db, cleanup := testutil.SetupTestMongoDB(t, "test_servers")
	defer cleanup()
	repo := NewServerRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, linkedServer("u1", "s1")))
	require.NoError(t, repo.Upsert(ctx, linkedServer("u1", "s2")))
	require.NoError(t, repo.Upsert(ctx, linkedServer("u2", "s3")))

	mine, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	none, err := repo.ListByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestServerRepository_TouchLastActive(t *testing.T) {
	db, cleanup := testutil.SetupTestMongoDB(t, "test_servers")
	defer cleanup()
	repo := NewServerRepository(db)
	ctx := context.Background()

	server := linkedServer("u1", "s1")
	server.LastActive = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, repo.Upsert(ctx, server))

	require.NoError(t, repo.TouchLastActive(ctx, "u1", "s1"))

	got, err := repo.Get(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), got.LastActive, time.Minute)
}
