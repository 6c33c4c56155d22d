package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/rl1809/storeflow/internal/core/domain"
	"github.com/rl1809/storeflow/internal/port"
)

// Slot keys.
const (
	KeyProducts     = "products"
	KeyTransactions = "transactions"
	KeyCurrentUser  = "currentUser"
)

// SchemaVersion tags every collection snapshot written by StateStore.
const SchemaVersion = 1

type snapshot[T any] struct {
	SchemaVersion int `json:"schemaVersion"`
	Items         []T `json:"items"`
}

// StateStore serializes whole collections into named durable slots.
type StateStore struct {
	slots port.SlotRepository
}

func NewStateStore(slots port.SlotRepository) *StateStore {
	return &StateStore{slots: slots}
}

func (s *StateStore) LoadProducts(ctx context.Context) ([]domain.Product, error) {
	return loadCollection[domain.Product](ctx, s.slots, KeyProducts)
}

func (s *StateStore) SaveProducts(ctx context.Context, products []domain.Product) error {
	return saveCollection(ctx, s.slots, KeyProducts, products)
}

func (s *StateStore) LoadTransactions(ctx context.Context) ([]domain.Transaction, error) {
	return loadCollection[domain.Transaction](ctx, s.slots, KeyTransactions)
}

func (s *StateStore) SaveTransactions(ctx context.Context, txs []domain.Transaction) error {
	return saveCollection(ctx, s.slots, KeyTransactions, txs)
}

// CurrentUser returns the persisted session identity, or "" when nobody is signed in.
func (s *StateStore) CurrentUser(ctx context.Context) (string, error) {
	v, ok, err := s.slots.Get(ctx, KeyCurrentUser)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", KeyCurrentUser, err)
	}
	if !ok {
		return "", nil
	}
	return v, nil
}

func (s *StateStore) SetCurrentUser(ctx context.Context, email string) error {
	if email == "" {
		return s.ClearCurrentUser(ctx)
	}
	if err := s.slots.Set(ctx, KeyCurrentUser, email); err != nil {
		return fmt.Errorf("write %s: %w", KeyCurrentUser, err)
	}
	return nil
}

func (s *StateStore) ClearCurrentUser(ctx context.Context) error {
	if err := s.slots.Delete(ctx, KeyCurrentUser); err != nil {
		return fmt.Errorf("delete %s: %w", KeyCurrentUser, err)
	}
	return nil
}

// StorageStatus reports per-slot write counts when the backend tracks them.
type StorageStatus struct {
	Revisioned bool             `json:"revisioned"`
	Revisions  map[string]int64 `json:"revisions,omitempty"`
}

// Status reads the revision of every state slot.
func (s *StateStore) Status(ctx context.Context) (StorageStatus, error) {
	rev, ok := s.slots.(port.SlotRevisions)
	if !ok {
		return StorageStatus{}, nil
	}
	st := StorageStatus{Revisioned: true, Revisions: make(map[string]int64, 3)}
	for _, key := range []string{KeyProducts, KeyTransactions, KeyCurrentUser} {
		n, err := rev.Revision(ctx, key)
		if err != nil {
			return StorageStatus{}, fmt.Errorf("revision %s: %w", key, err)
		}
		st.Revisions[key] = n
	}
	return st, nil
}

func loadCollection[T any](ctx context.Context, slots port.SlotRepository, key string) ([]T, error) {
	raw, ok, err := slots.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return []T{}, nil
	}
	items, err := decodeSnapshot[T]([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptSnapshot, key, err)
	}
	return items, nil
}

func saveCollection[T any](ctx context.Context, slots port.SlotRepository, key string, items []T) error {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(snapshot[T]{SchemaVersion: SchemaVersion, Items: items})
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := slots.Set(ctx, key, string(data)); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// decodeSnapshot accepts the versioned envelope and the unversioned bare array.
func decodeSnapshot[T any](data []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty value")
	}

	if trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		if items == nil {
			items = []T{}
		}
		return items, nil
	}

	var snap snapshot[T]
	if err := json.Unmarshal(trimmed, &snap); err != nil {
		return nil, err
	}
	if snap.SchemaVersion < 1 || snap.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("unsupported schema version %d", snap.SchemaVersion)
	}
	if snap.Items == nil {
		snap.Items = []T{}
	}
	return snap.Items, nil
}
