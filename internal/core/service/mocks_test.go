package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rl1809/storeflow/internal/core/sheet"
	"github.com/rl1809/storeflow/internal/port"
)

var errBoom = errors.New("boom")

// Mock SlotRepository
type mockSlotRepo struct {
	mu      sync.Mutex
	values  map[string]string
	writes  map[string]int
	failSet error
}

func newMockSlotRepo() *mockSlotRepo {
	return &mockSlotRepo{
		values: make(map[string]string),
		writes: make(map[string]int),
	}
}

func (m *mockSlotRepo) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *mockSlotRepo) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet != nil {
		return m.failSet
	}
	m.values[key] = value
	m.writes[key]++
	return nil
}

func (m *mockSlotRepo) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *mockSlotRepo) writeCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[key]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%d", g.n)
}

// Mock WorkbookCodec keeping rows in memory; the "workbook bytes" are a key into rows.
type mockCodec struct {
	mu       sync.Mutex
	books    map[string][]sheet.Row
	encodes  int
	failNext error
}

func newMockCodec() *mockCodec {
	return &mockCodec{books: make(map[string][]sheet.Row)}
}

func (c *mockCodec) Encode(sheetName string, headers []string, rows []sheet.Row) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext != nil {
		err := c.failNext
		c.failNext = nil
		return nil, err
	}
	c.encodes++
	key := fmt.Sprintf("book-%d", c.encodes)
	c.books[key] = rows
	return []byte(key), nil
}

func (c *mockCodec) Decode(data []byte) ([]sheet.Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows, ok := c.books[string(data)]
	if !ok {
		return nil, errors.New("not a workbook")
	}
	return rows, nil
}

func (c *mockCodec) put(key string, rows []sheet.Row) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.books[key] = rows
	return []byte(key)
}

// Mock FileAccess with a single in-memory file per path.
type mockFiles struct {
	supported bool
	mu        sync.Mutex
	files     map[string]*mockHandle
}

func newMockFiles(supported bool) *mockFiles {
	return &mockFiles{supported: supported, files: make(map[string]*mockHandle)}
}

func (f *mockFiles) Supported() bool { return f.supported }

func (f *mockFiles) Open(ctx context.Context, path string) (port.FileHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("open %s: file does not exist", path)
	}
	return h, nil
}

func (f *mockFiles) add(path string, data []byte) *mockHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := &mockHandle{name: path, data: data}
	f.files[path] = h
	return h
}

type mockHandle struct {
	name     string
	mu       sync.Mutex
	data     []byte
	writes   int
	failNext error
	delay    time.Duration
}

func (h *mockHandle) Name() string { return h.name }

func (h *mockHandle) Read(ctx context.Context) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.data, nil
}

func (h *mockHandle) Write(ctx context.Context, data []byte) error {
	time.Sleep(h.delay)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failNext != nil {
		err := h.failNext
		h.failNext = nil
		return err
	}
	h.data = data
	h.writes++
	return nil
}

func (h *mockHandle) writeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.writes
}

type mockEditor struct {
	gotImage       []byte
	gotMIME        string
	gotInstruction string
	result         []byte
	err            error
}

func (e *mockEditor) EditImage(ctx context.Context, image []byte, mimeType, instruction string) ([]byte, error) {
	e.gotImage = image
	e.gotMIME = mimeType
	e.gotInstruction = instruction
	return e.result, e.err
}

func newTestInventory(slots *mockSlotRepo, clock *fakeClock) *Inventory {
	return NewInventory(NewStateStore(slots), InventoryConfig{Clock: clock, IDs: &seqIDs{}})
}
