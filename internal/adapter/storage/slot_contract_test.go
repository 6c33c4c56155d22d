package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storeflow/internal/port"
)

type revisioned interface {
	port.SlotRepository
	Revision(ctx context.Context, key string) (int64, error)
}

// runSlotContract checks the behavior every slot backend shares. prefix keeps
// runs against shared servers apart.
func runSlotContract(t *testing.T, repo revisioned, prefix string) {
	ctx := context.Background()
	key := prefix + "products"
	t.Cleanup(func() { _ = repo.Delete(context.Background(), key) })

	t.Run("absent slot", func(t *testing.T) {
		_, ok, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)

		rev, err := repo.Revision(ctx, key)
		require.NoError(t, err)
		assert.Zero(t, rev)
	})

	t.Run("set then overwrite", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, key, `{"schemaVersion":1,"items":[]}`))
		require.NoError(t, repo.Set(ctx, key, `{"schemaVersion":1,"items":[{"id":"1"}]}`))

		v, ok, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, `{"schemaVersion":1,"items":[{"id":"1"}]}`, v)

		rev, err := repo.Revision(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(2), rev)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, key))
		require.NoError(t, repo.Delete(ctx, key))

		_, ok, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
