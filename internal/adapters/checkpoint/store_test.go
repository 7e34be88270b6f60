package checkpoint

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/ports"
)

func stores(t *testing.T) map[string]ports.CheckpointRepository {
	t.Helper()

	sqliteStore, err := NewSQLiteStore(filepath.Join(t.TempDir(), "checkpoints.db"), zap.NewNop(), time.Hour, 0)
	require.NoError(t, err)

	all := map[string]ports.CheckpointRepository{
		"memory": NewMemoryStore(zap.NewNop(), time.Hour, 0),
		"sqlite": sqliteStore,
	}
	t.Cleanup(func() {
		for _, s := range all {
			s.Stop()
		}
	})
	return all
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(ctx, "INBOX")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Set(ctx, &core.Checkpoint{Mailbox: "INBOX", UIDValidity: 7, LastUID: 42}))

			cp, err := store.Get(ctx, "INBOX")
			require.NoError(t, err)
			assert.Equal(t, uint32(7), cp.UIDValidity)
			assert.Equal(t, uint32(42), cp.LastUID)
			assert.False(t, cp.UpdatedAt.IsZero())
			assert.True(t, cp.ExpiresAt.After(time.Now()))

			require.NoError(t, store.Set(ctx, &core.Checkpoint{Mailbox: "INBOX", UIDValidity: 7, LastUID: 50}))
			cp, err = store.Get(ctx, "INBOX")
			require.NoError(t, err)
			assert.Equal(t, uint32(50), cp.LastUID)

			require.NoError(t, store.Delete(ctx, "INBOX"))
			_, err = store.Get(ctx, "INBOX")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreExpiry(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			past := time.Now().Add(-time.Minute)
			require.NoError(t, store.Set(ctx, &core.Checkpoint{Mailbox: "Old", LastUID: 1, ExpiresAt: past}))
			require.NoError(t, store.Set(ctx, &core.Checkpoint{Mailbox: "Live", LastUID: 2}))

			_, err := store.Get(ctx, "Old")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Cleanup(ctx))

			cp, err := store.Get(ctx, "Live")
			require.NoError(t, err)
			assert.Equal(t, uint32(2), cp.LastUID)
		})
	}
}

func TestMemoryStoreCleanupRemovesExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(zap.NewNop(), time.Hour, 0)
	defer store.Stop()

	require.NoError(t, store.Set(ctx, &core.Checkpoint{Mailbox: "Old", ExpiresAt: time.Now().Add(-time.Second)}))
	require.NoError(t, store.Cleanup(ctx))

	store.mu.RLock()
	defer store.mu.RUnlock()
	assert.Empty(t, store.entries)
}

func TestJanitorRunsAndStops(t *testing.T) {
	calls := make(chan struct{}, 1)
	j := startJanitor(5*time.Millisecond, func(context.Context) error {
		select {
		case calls <- struct{}{}:
		default:
		}
		return nil
	}, zap.NewNop())

	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("cleanup never ran")
	}

	j.stop()
	j.stop()
}

func TestStampKeepsExplicitTimes(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	explicit := now.Add(time.Minute)

	got := stamp(&core.Checkpoint{ExpiresAt: explicit}, time.Hour, now)
	assert.Equal(t, now, got.UpdatedAt)
	assert.Equal(t, explicit, got.ExpiresAt)

	got = stamp(&core.Checkpoint{}, 0, now)
	assert.True(t, got.ExpiresAt.IsZero())
}
