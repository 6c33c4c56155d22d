package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storeflow/internal/core/domain"
	"github.com/rl1809/storeflow/internal/logger"
	"github.com/rl1809/storeflow/internal/port"
)

const (
	lookupLimit    = 5
	chartSize      = 10
	chartNameRunes = 15
)

type InventoryConfig struct {
	// QueueSize is the movement event buffer. Zero disables the queue.
	QueueSize int
	// Retention caps the transaction log, oldest entries dropped first. Zero keeps everything.
	Retention int
	Clock     port.Clock
	IDs       port.IDGenerator
}

// Inventory owns the product list and the transaction log. Every mutation
// runs under one lock together with the snapshot write that mirrors it.
type Inventory struct {
	store     *StateStore
	clock     port.Clock
	ids       port.IDGenerator
	retention int

	mu           sync.Mutex
	products     []domain.Product
	transactions []domain.Transaction
	unsaved      bool
	revision     uint64

	queueMu     sync.RWMutex
	movements   chan domain.Transaction
	queueClosed bool
}

func NewInventory(store *StateStore, cfg InventoryConfig) *Inventory {
	inv := &Inventory{
		store:        store,
		clock:        cfg.Clock,
		ids:          cfg.IDs,
		retention:    cfg.Retention,
		products:     []domain.Product{},
		transactions: []domain.Transaction{},
	}
	if inv.clock == nil {
		inv.clock = systemClock{}
	}
	if inv.ids == nil {
		inv.ids = uuidGenerator{}
	}
	if cfg.QueueSize > 0 {
		inv.movements = make(chan domain.Transaction, cfg.QueueSize)
	}
	return inv
}

// Load replaces the in-memory collections with the persisted snapshots.
func (s *Inventory) Load(ctx context.Context) error {
	products, err := s.store.LoadProducts(ctx)
	if err != nil {
		return err
	}
	txs, err := s.store.LoadTransactions(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = products
	s.transactions = txs

	logger.Logger.Info().
		Int("products", len(products)).
		Int("transactions", len(txs)).
		Msg("inventory loaded")
	return nil
}

func (s *Inventory) Products() []domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneProducts(s.products)
}

// Snapshot returns the products together with the revision they were read at.
func (s *Inventory) Snapshot() ([]domain.Product, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneProducts(s.products), s.revision
}

func (s *Inventory) Product(id string) (domain.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.products[i], true
	}
	return domain.Product{}, false
}

// Search matches name, category or SKU case-insensitively. An empty term returns everything.
func (s *Inventory) Search(term string) []domain.Product {
	term = strings.ToLower(strings.TrimSpace(term))

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if term == "" ||
			strings.Contains(strings.ToLower(p.Name), term) ||
			strings.Contains(strings.ToLower(p.Category), term) ||
			strings.Contains(strings.ToLower(p.SKU), term) {
			out = append(out, p)
		}
	}
	return out
}

// LookupForMovement finds up to five products by name or SKU for the reception desk.
func (s *Inventory) LookupForMovement(term string) []domain.Product {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return []domain.Product{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Product, 0, lookupLimit)
	for _, p := range s.products {
		if strings.Contains(strings.ToLower(p.Name), term) || strings.Contains(strings.ToLower(p.SKU), term) {
			out = append(out, p)
			if len(out) == lookupLimit {
				break
			}
		}
	}
	return out
}

// Unsaved reports whether products changed since the last workbook sync.
func (s *Inventory) Unsaved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsaved
}

// MarkSaved clears the unsaved flag if nothing changed after revision was read.
func (s *Inventory) MarkSaved(revision uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revision != revision {
		return false
	}
	s.unsaved = false
	return true
}

func (s *Inventory) AddProduct(ctx context.Context, form domain.ProductForm) (domain.Product, error) {
	name := strings.TrimSpace(form.Name)
	if name == "" {
		return domain.Product{}, ErrNameRequired
	}

	now := s.clock.Now()
	p := domain.Product{
		ID:       s.ids.NewID(),
		Name:     name,
		SKU:      strings.TrimSpace(form.SKU),
		Category: categoryOrDefault(form.Category),
		MinLevel: domain.DefaultMinLevel,
		ImageURL: strings.TrimSpace(form.ImageURL),
	}
	p.Quantity, _ = domain.ParseQuantity(form.Quantity)
	p.Price, _ = domain.ParsePrice(form.Price)
	if p.SKU == "" {
		p.SKU = GenerateSKU()
	}
	if p.ImageURL == "" {
		p.ImageURL = placeholderImageURL(now)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.products = append(s.products, p)
	if err := s.commitProductsLocked(ctx); err != nil {
		return p, err
	}

	logger.Logger.Info().Str("product_id", p.ID).Str("sku", p.SKU).Msg("product added")
	return p, nil
}

func (s *Inventory) UpdateProduct(ctx context.Context, id string, form domain.ProductForm) (domain.Product, error) {
	name := strings.TrimSpace(form.Name)
	if name == "" {
		return domain.Product{}, ErrNameRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return domain.Product{}, ErrProductNotFound
	}

	p := s.products[i]
	p.Name = name
	p.Category = categoryOrDefault(form.Category)
	p.Price, _ = domain.ParsePrice(form.Price)
	p.Quantity, _ = domain.ParseQuantity(form.Quantity)
	p.SKU = strings.TrimSpace(form.SKU)
	p.ImageURL = strings.TrimSpace(form.ImageURL)
	s.products[i] = p

	if err := s.commitProductsLocked(ctx); err != nil {
		return p, err
	}

	logger.Logger.Info().Str("product_id", id).Msg("product updated")
	return p, nil
}

// DeleteProduct removes the product. Deleting an absent id is a no-op.
// Transactions referencing the product are kept.
func (s *Inventory) DeleteProduct(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false, nil
	}
	s.products = append(s.products[:i], s.products[i+1:]...)

	if err := s.commitProductsLocked(ctx); err != nil {
		return true, err
	}

	logger.Logger.Info().Str("product_id", id).Msg("product deleted")
	return true, nil
}

// ClearAll empties the product list. The transaction log is untouched.
func (s *Inventory) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := len(s.products)
	s.products = []domain.Product{}
	if err := s.commitProductsLocked(ctx); err != nil {
		return err
	}

	logger.Logger.Warn().Int("removed", removed).Msg("inventory cleared")
	return nil
}

// ReplaceAll swaps in a new product list wholesale.
func (s *Inventory) ReplaceAll(ctx context.Context, products []domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.products = cloneProducts(products)
	if err := s.commitProductsLocked(ctx); err != nil {
		return err
	}

	logger.Logger.Info().Int("products", len(products)).Msg("inventory replaced")
	return nil
}

type StockBar struct {
	Name     string `json:"name"`
	Quantity int    `json:"qty"`
}

type Stats struct {
	TotalProducts  int             `json:"totalProducts"`
	TotalStock     int             `json:"totalStock"`
	LowStockCount  int             `json:"lowStockCount"`
	InventoryValue decimal.Decimal `json:"inventoryValue"`
	RecentIn       int             `json:"recentIn"`
	RecentOut      int             `json:"recentOut"`
	StockChart     []StockBar      `json:"stockChart"`
}

// Stats summarizes the inventory. RecentIn and RecentOut sum the quantities of
// the latest `recent` movements of each type.
func (s *Inventory) Stats(recent int) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		TotalProducts:  len(s.products),
		InventoryValue: decimal.Zero,
		StockChart:     make([]StockBar, 0, min(chartSize, len(s.products))),
	}
	for i, p := range s.products {
		st.TotalStock += p.Quantity
		st.InventoryValue = st.InventoryValue.Add(p.Value())
		if p.IsLowStock() {
			st.LowStockCount++
		}
		if i < chartSize {
			st.StockChart = append(st.StockChart, StockBar{Name: truncateRunes(p.Name, chartNameRunes), Quantity: p.Quantity})
		}
	}

	var ins, outs int
	for i := len(s.transactions) - 1; i >= 0 && (ins < recent || outs < recent); i-- {
		tx := s.transactions[i]
		switch {
		case tx.Type == domain.MovementIn && ins < recent:
			st.RecentIn += tx.Quantity
			ins++
		case tx.Type == domain.MovementOut && outs < recent:
			st.RecentOut += tx.Quantity
			outs++
		}
	}
	return st
}

// commitProductsLocked persists the product list and marks it unsaved. s.mu must be held.
// StorageStatus reports the durable slots behind the inventory.
func (s *Inventory) StorageStatus(ctx context.Context) (StorageStatus, error) {
	return s.store.Status(ctx)
}

func (s *Inventory) commitProductsLocked(ctx context.Context) error {
	s.revision++
	s.unsaved = true
	if err := s.store.SaveProducts(ctx, s.products); err != nil {
		logger.Logger.Error().Err(err).Msg("failed to persist products")
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

func (s *Inventory) indexOf(id string) int {
	for i := range s.products {
		if s.products[i].ID == id {
			return i
		}
	}
	return -1
}

// GenerateSKU returns "SKU-" followed by a random number in [0, 9999], unpadded.
func GenerateSKU() string {
	return fmt.Sprintf("SKU-%d", rand.IntN(10000))
}

func placeholderImageURL(now time.Time) string {
	return fmt.Sprintf("https://picsum.photos/200/200?random=%d", now.UnixMilli())
}

func categoryOrDefault(c string) string {
	c = strings.TrimSpace(c)
	if c == "" {
		return domain.DefaultCategory
	}
	return c
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func cloneProducts(in []domain.Product) []domain.Product {
	out := make([]domain.Product, len(in))
	copy(out, in)
	return out
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type uuidGenerator struct{}

func (uuidGenerator) NewID() string { return uuid.NewString() }
