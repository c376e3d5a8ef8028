package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketcoach/converse/pkg/adapters/memory"
	"github.com/pocketcoach/converse/pkg/domain"
	"github.com/pocketcoach/converse/pkg/ports"
	"github.com/pocketcoach/converse/pkg/session"
)

func TestManager_LoadOrStart(t *testing.T) {
	m := session.NewManager(memory.NewStore())
	ctx := context.Background()

	snap, err := m.LoadOrStart(ctx, "s1", "Sleep")
	require.NoError(t, err)
	assert.Equal(t, "Sleep", snap.Module)
	assert.False(t, snap.UpdatedAt.IsZero())

	// The fresh session was persisted immediately.
	again, err := m.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Sleep", again.Module)

	// An existing session is returned as-is, not re-initialized.
	snap.Checkpoint = "Part2"
	require.NoError(t, m.Save(ctx, "s1", snap))
	resumed, err := m.LoadOrStart(ctx, "s1", "Mood")
	require.NoError(t, err)
	assert.Equal(t, "Sleep", resumed.Module)
	assert.Equal(t, "Part2", resumed.Checkpoint)
}

func TestManager_LoadMissing(t *testing.T) {
	m := session.NewManager(memory.NewStore())
	_, err := m.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestManager_SaveStampsUpdateTime(t *testing.T) {
	now := time.Unix(1700000000, 0)
	m := session.NewManager(memory.NewStore(), session.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	snap := &domain.Snapshot{Module: "Sleep"}
	require.NoError(t, m.Save(ctx, "s1", snap))
	assert.Equal(t, now, snap.UpdatedAt)
}

func TestManager_SerializesPerSession(t *testing.T) {
	m := session.NewManager(memory.NewStore())
	ctx := context.Background()

	var inCritical, max int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.WithLock(ctx, "same", func(context.Context) error {
				mu.Lock()
				inCritical++
				if inCritical > max {
					max = inCritical
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				inCritical--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, max, "at most one holder per session")
}

// countingLocker verifies distributed lock acquisition wraps every operation.
type countingLocker struct {
	mu       sync.Mutex
	acquired int
	released int
}

func (c *countingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	c.mu.Lock()
	c.acquired++
	c.mu.Unlock()
	return func(context.Context) error {
		c.mu.Lock()
		c.released++
		c.mu.Unlock()
		return nil
	}, nil
}

func TestManager_UsesDistributedLocker(t *testing.T) {
	locker := &countingLocker{}
	m := session.NewManager(memory.NewStore(), session.WithLocker(locker))
	ctx := context.Background()

	_, err := m.LoadOrStart(ctx, "s1", "Sleep")
	require.NoError(t, err)
	require.NoError(t, m.Delete(ctx, "s1"))

	assert.Equal(t, 2, locker.acquired)
	assert.Equal(t, 2, locker.released)
}
