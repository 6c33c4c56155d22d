package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storeflow/internal/core/domain"
)

// revisionedSlotRepo reports write counts like the durable backends do.
type revisionedSlotRepo struct {
	*mockSlotRepo
	failRevision error
}

func (r *revisionedSlotRepo) Revision(ctx context.Context, key string) (int64, error) {
	if r.failRevision != nil {
		return 0, r.failRevision
	}
	return int64(r.writeCount(key)), nil
}

func TestStateStore_StatusWithoutRevisions(t *testing.T) {
	st, err := NewStateStore(newMockSlotRepo()).Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Revisioned)
	assert.Nil(t, st.Revisions)
}

func TestStateStore_StatusCountsWrites(t *testing.T) {
	ctx := context.Background()
	slots := &revisionedSlotRepo{mockSlotRepo: newMockSlotRepo()}
	inv := NewInventory(NewStateStore(slots), InventoryConfig{Clock: newFakeClock(), IDs: &seqIDs{}})

	p, err := inv.AddProduct(ctx, domain.ProductForm{Name: "Cable", Quantity: "5"})
	require.NoError(t, err)
	_, err = inv.Record(ctx, p.ID, domain.MovementOut, 2)
	require.NoError(t, err)

	st, err := inv.StorageStatus(ctx)
	require.NoError(t, err)
	assert.True(t, st.Revisioned)
	assert.Equal(t, map[string]int64{KeyProducts: 2, KeyTransactions: 1, KeyCurrentUser: 0}, st.Revisions)
}

func TestStateStore_StatusWrapsRevisionError(t *testing.T) {
	slots := &revisionedSlotRepo{mockSlotRepo: newMockSlotRepo(), failRevision: errBoom}

	_, err := NewStateStore(slots).Status(context.Background())
	require.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), KeyProducts)
}
