package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketcoach/converse/pkg/domain"
)

// RunSnapshotStoreContract verifies that a SnapshotStorer implementation
// honors the interface contract. Adapter test files call this against their
// own construction.
func RunSnapshotStoreContract(t *testing.T, store SnapshotStorer) {
	ctx := context.Background()
	sessionID := "contract-" + time.Now().Format("20060102150405.000")

	t.Run("Save and Load", func(t *testing.T) {
		snap := &domain.Snapshot{
			Module:     "Mindfulness",
			Checkpoint: "M1_Intro",
			Trail:      []string{"M1_Start", "M1_Intro"},
			UpdatedAt:  time.Now().UTC().Truncate(time.Second),
		}
		require.NoError(t, store.Save(ctx, sessionID, snap))

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, snap.Module, loaded.Module)
		assert.Equal(t, snap.Checkpoint, loaded.Checkpoint)
		assert.Equal(t, snap.Trail, loaded.Trail)
	})

	t.Run("Load returns isolated copies", func(t *testing.T) {
		snap := &domain.Snapshot{Module: "M", Checkpoint: "A", Trail: []string{"A"}}
		require.NoError(t, store.Save(ctx, sessionID, snap))

		first, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		first.Checkpoint = "mutated"
		first.Trail[0] = "mutated"

		second, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "A", second.Checkpoint)
		assert.Equal(t, []string{"A"}, second.Trail)
	})

	t.Run("Load non-existent", func(t *testing.T) {
		_, err := store.Load(ctx, "missing-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, sessionID, &domain.Snapshot{Module: "M"}))
		require.NoError(t, store.Delete(ctx, sessionID))

		_, err := store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("List", func(t *testing.T) {
		a, b := sessionID+"-a", sessionID+"-b"
		require.NoError(t, store.Save(ctx, a, &domain.Snapshot{Module: "M"}))
		require.NoError(t, store.Save(ctx, b, &domain.Snapshot{Module: "M"}))

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, a)
		assert.Contains(t, ids, b)

		require.NoError(t, store.Delete(ctx, a))
		require.NoError(t, store.Delete(ctx, b))
	})
}
