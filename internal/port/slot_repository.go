package port

import "context"

type SlotRepository interface {
	// Get returns the stored value and whether the slot exists
	Get(ctx context.Context, key string) (string, bool, error)

	// Set overwrites the slot with value
	Set(ctx context.Context, key, value string) error

	// Delete removes the slot, absent slots are not an error
	Delete(ctx context.Context, key string) error
}

// SlotRevisions is implemented by backends that count writes per slot.
type SlotRevisions interface {
	Revision(ctx context.Context, key string) (int64, error)
}
