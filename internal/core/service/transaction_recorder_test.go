package service

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storeflow/internal/core/domain"
)

func TestRecord_OutClampsAtZero(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	inv := newTestInventory(newMockSlotRepo(), clock)
	p, err := inv.AddProduct(ctx, domain.ProductForm{Name: "Cable", Quantity: "10"})
	require.NoError(t, err)

	tx, err := inv.Record(ctx, p.ID, domain.MovementOut, 15)
	require.NoError(t, err)

	assert.Equal(t, "Cable", tx.ProductName)
	assert.Equal(t, 15, tx.Quantity)
	assert.Equal(t, domain.MovementOut, tx.Type)
	assert.Equal(t, clock.Now().UnixMilli(), tx.Timestamp)

	got, _ := inv.Product(p.ID)
	assert.Equal(t, 0, got.Quantity)
}

func TestRecord_NameIsSnapshotAtCallTime(t *testing.T) {
	ctx := context.Background()
	inv := newTestInventory(newMockSlotRepo(), newFakeClock())
	p, err := inv.AddProduct(ctx, domain.ProductForm{Name: "Old Name", Quantity: "1"})
	require.NoError(t, err)

	_, err = inv.Record(ctx, p.ID, domain.MovementIn, 2)
	require.NoError(t, err)
	_, err = inv.UpdateProduct(ctx, p.ID, domain.ProductForm{Name: "New Name", Quantity: "3"})
	require.NoError(t, err)

	txs, _ := inv.Transactions(0, 1)
	require.Len(t, txs, 1)
	assert.Equal(t, "Old Name", txs[0].ProductName)
}

func TestRecord_UnknownProduct(t *testing.T) {
	ctx := context.Background()
	slots := newMockSlotRepo()
	inv := newTestInventory(slots, newFakeClock())
	p, err := inv.AddProduct(ctx, domain.ProductForm{Name: "Real", Quantity: "4"})
	require.NoError(t, err)
	productWrites := slots.writeCount(KeyProducts)

	tx, err := inv.Record(ctx, "ghost", domain.MovementIn, 3)
	require.NoError(t, err)

	assert.Equal(t, domain.UnknownProductName, tx.ProductName)
	assert.Equal(t, "ghost", tx.ProductID)
	got, _ := inv.Product(p.ID)
	assert.Equal(t, 4, got.Quantity)
	assert.Equal(t, productWrites, slots.writeCount(KeyProducts))
	assert.Equal(t, 1, slots.writeCount(KeyTransactions))
}

func TestRecord_RejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	inv := newTestInventory(newMockSlotRepo(), newFakeClock())
	p, err := inv.AddProduct(ctx, domain.ProductForm{Name: "Thing", Quantity: "4"})
	require.NoError(t, err)

	_, err = inv.Record(ctx, p.ID, domain.MovementType("SIDEWAYS"), 1)
	assert.ErrorIs(t, err, ErrInvalidMovementType)

	_, err = inv.Record(ctx, p.ID, domain.MovementIn, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = inv.Record(ctx, p.ID, domain.MovementOut, -2)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, total := inv.Transactions(0, 10)
	assert.Zero(t, total)
}

func TestRecord_QuantityNeverNegative(t *testing.T) {
	ctx := context.Background()
	inv := newTestInventory(newMockSlotRepo(), newFakeClock())
	p, err := inv.AddProduct(ctx, domain.ProductForm{Name: "Random", Quantity: "7"})
	require.NoError(t, err)

	r := rand.New(rand.NewPCG(7, 11))
	expected := 7
	for range 300 {
		typ := domain.MovementIn
		if r.IntN(2) == 0 {
			typ = domain.MovementOut
		}
		amount := r.IntN(20) + 1
		_, err := inv.Record(ctx, p.ID, typ, amount)
		require.NoError(t, err)

		expected = domain.ApplyMovement(expected, typ, amount)
		got, _ := inv.Product(p.ID)
		require.GreaterOrEqual(t, got.Quantity, 0)
		require.Equal(t, expected, got.Quantity)
	}
}

func TestRecord_RetentionDropsOldest(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	inv := NewInventory(NewStateStore(newMockSlotRepo()), InventoryConfig{Retention: 3, Clock: clock, IDs: &seqIDs{}})

	for i := 1; i <= 5; i++ {
		_, err := inv.Record(ctx, "p", domain.MovementIn, i)
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	txs, total := inv.Transactions(0, 10)
	assert.Equal(t, 3, total)
	require.Len(t, txs, 3)
	assert.Equal(t, []int{5, 4, 3}, []int{txs[0].Quantity, txs[1].Quantity, txs[2].Quantity})
}

func TestTransactions_Paging(t *testing.T) {
	ctx := context.Background()
	inv := newTestInventory(newMockSlotRepo(), newFakeClock())
	for i := 1; i <= 7; i++ {
		_, err := inv.Record(ctx, "p", domain.MovementIn, i)
		require.NoError(t, err)
	}

	tests := []struct {
		name          string
		offset, limit int
		want          []int
	}{
		{"first page", 0, 3, []int{7, 6, 5}},
		{"second page", 3, 3, []int{4, 3, 2}},
		{"tail", 6, 3, []int{1}},
		{"past end", 7, 3, []int{}},
		{"zero limit", 0, 0, []int{}},
		{"negative offset", -4, 2, []int{7, 6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txs, total := inv.Transactions(tt.offset, tt.limit)
			assert.Equal(t, 7, total)
			got := make([]int, 0, len(txs))
			for _, tx := range txs {
				got = append(got, tx.Quantity)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecord_ConcurrentMovements(t *testing.T) {
	ctx := context.Background()
	inv := newTestInventory(newMockSlotRepo(), newFakeClock())
	p, err := inv.AddProduct(ctx, domain.ProductForm{Name: "Hot Item", Quantity: "50"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			typ := domain.MovementOut
			if i%4 == 0 {
				typ = domain.MovementIn
			}
			_, err := inv.Record(ctx, p.ID, typ, 1)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	_, total := inv.Transactions(0, 1)
	assert.Equal(t, 100, total)
	got, _ := inv.Product(p.ID)
	assert.GreaterOrEqual(t, got.Quantity, 0)
	assert.LessOrEqual(t, got.Quantity, 75)
}

func TestRecord_PublishesToQueue(t *testing.T) {
	ctx := context.Background()
	inv := NewInventory(NewStateStore(newMockSlotRepo()), InventoryConfig{QueueSize: 2, Clock: newFakeClock(), IDs: &seqIDs{}})

	for i := 1; i <= 3; i++ {
		_, err := inv.Record(ctx, fmt.Sprintf("p%d", i), domain.MovementIn, i)
		require.NoError(t, err)
	}
	inv.Close()
	inv.Close()

	var got []string
	for tx := range inv.Movements() {
		got = append(got, tx.ProductID)
	}
	// The third event overflowed the buffer and was dropped.
	assert.Equal(t, []string{"p1", "p2"}, got)

	_, err := inv.Record(ctx, "p4", domain.MovementIn, 1)
	assert.NoError(t, err)
	_, total := inv.Transactions(0, 1)
	assert.Equal(t, 4, total)
}

func TestRecord_NoQueue(t *testing.T) {
	inv := newTestInventory(newMockSlotRepo(), newFakeClock())
	assert.Nil(t, inv.Movements())

	_, err := inv.Record(context.Background(), "p", domain.MovementOut, 1)
	assert.NoError(t, err)
	inv.Close()
}

func TestRecord_PersistFailure(t *testing.T) {
	ctx := context.Background()
	slots := newMockSlotRepo()
	inv := newTestInventory(slots, newFakeClock())
	p, err := inv.AddProduct(ctx, domain.ProductForm{Name: "Item", Quantity: "3"})
	require.NoError(t, err)

	slots.failSet = errBoom
	_, err = inv.Record(ctx, p.ID, domain.MovementIn, 2)
	assert.ErrorIs(t, err, ErrPersist)

	got, _ := inv.Product(p.ID)
	assert.Equal(t, 5, got.Quantity)
	_, total := inv.Transactions(0, 1)
	assert.Equal(t, 1, total)
}

func TestRecord_RejectsQuantityAboveCeiling(t *testing.T) {
	ctx := context.Background()
	slots := newMockSlotRepo()
	inv := newTestInventory(slots, newFakeClock())
	p, err := inv.AddProduct(ctx, domain.ProductForm{Name: "Bulk", Quantity: "10"})
	require.NoError(t, err)

	for _, qty := range []int{domain.MaxQuantity + 1, math.MaxInt} {
		_, err := inv.Record(ctx, p.ID, domain.MovementIn, qty)
		assert.ErrorIs(t, err, ErrInvalidQuantity, "quantity %d", qty)
	}

	got, _ := inv.Product(p.ID)
	assert.Equal(t, 10, got.Quantity)
	_, total := inv.Transactions(0, 1)
	assert.Zero(t, total)
}

func TestRecord_InSaturatesInsteadOfWrapping(t *testing.T) {
	ctx := context.Background()
	inv := newTestInventory(newMockSlotRepo(), newFakeClock())

	huge, err := inv.AddProduct(ctx, domain.ProductForm{Name: "Huge", Quantity: "9223372036854775807"})
	require.NoError(t, err)
	assert.Equal(t, 0, huge.Quantity)

	p, err := inv.AddProduct(ctx, domain.ProductForm{Name: "Full", Quantity: "2147483647"})
	require.NoError(t, err)
	require.Equal(t, domain.MaxQuantity, p.Quantity)

	_, err = inv.Record(ctx, p.ID, domain.MovementIn, domain.MaxQuantity)
	require.NoError(t, err)
	_, err = inv.Record(ctx, p.ID, domain.MovementIn, 1)
	require.NoError(t, err)

	got, _ := inv.Product(p.ID)
	assert.Equal(t, domain.MaxQuantity, got.Quantity)
	assert.Equal(t, domain.MaxQuantity, inv.Stats(0).TotalStock)
}
