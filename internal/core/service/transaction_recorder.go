package service

import (
	"context"
	"fmt"

	"github.com/rl1809/storeflow/internal/core/domain"
	"github.com/rl1809/storeflow/internal/logger"
)

// Record moves stock for productID and appends the matching transaction.
// A missing product leaves quantities alone but the movement is still logged
// under the name "Unknown".
func (s *Inventory) Record(ctx context.Context, productID string, typ domain.MovementType, quantity int) (domain.Transaction, error) {
	if !typ.Valid() {
		return domain.Transaction{}, ErrInvalidMovementType
	}
	if quantity <= 0 || quantity > domain.MaxQuantity {
		return domain.Transaction{}, ErrInvalidQuantity
	}

	tx, err := s.record(ctx, productID, typ, quantity)
	if err != nil {
		return tx, err
	}

	s.publish(tx)
	return tx, nil
}

func (s *Inventory) record(ctx context.Context, productID string, typ domain.MovementType, quantity int) (domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	tx := domain.Transaction{
		ID:          s.ids.NewID(),
		ProductID:   productID,
		ProductName: domain.UnknownProductName,
		Type:        typ,
		Quantity:    quantity,
		Timestamp:   now.UnixMilli(),
	}

	var productErr error
	if i := s.indexOf(productID); i >= 0 {
		p := &s.products[i]
		tx.ProductName = p.Name
		before := p.Quantity
		p.Quantity = domain.ApplyMovement(p.Quantity, typ, quantity)
		productErr = s.commitProductsLocked(ctx)

		logger.Logger.Info().
			Str("product_id", productID).
			Str("type", string(typ)).
			Int("quantity", quantity).
			Int("before", before).
			Int("after", p.Quantity).
			Msg("stock moved")
	} else {
		logger.Logger.Warn().
			Str("product_id", productID).
			Str("type", string(typ)).
			Msg("movement recorded for unknown product")
	}

	s.transactions = append(s.transactions, tx)
	if s.retention > 0 && len(s.transactions) > s.retention {
		drop := len(s.transactions) - s.retention
		s.transactions = append([]domain.Transaction(nil), s.transactions[drop:]...)
	}

	if err := s.store.SaveTransactions(ctx, s.transactions); err != nil {
		logger.Logger.Error().Err(err).Str("transaction_id", tx.ID).Msg("failed to persist transactions")
		return tx, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	if productErr != nil {
		return tx, productErr
	}
	return tx, nil
}

// publish offers tx to the movement queue without blocking the caller.
func (s *Inventory) publish(tx domain.Transaction) {
	s.queueMu.RLock()
	defer s.queueMu.RUnlock()
	if s.movements == nil || s.queueClosed {
		return
	}
	select {
	case s.movements <- tx:
	default:
		logger.Logger.Warn().Str("transaction_id", tx.ID).Msg("movement queue full, event dropped")
	}
}

// Transactions pages the log newest first and returns the total count.
func (s *Inventory) Transactions(offset, limit int) ([]domain.Transaction, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.transactions)
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || offset >= total {
		return []domain.Transaction{}, total
	}

	out := make([]domain.Transaction, 0, min(limit, total-offset))
	for i := total - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.transactions[i])
	}
	return out, total
}

// Movements exposes the movement event queue. It is nil when the queue is disabled.
func (s *Inventory) Movements() <-chan domain.Transaction {
	return s.movements
}

// Close closes the movement queue so consumers can drain and exit.
func (s *Inventory) Close() {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if s.movements != nil && !s.queueClosed {
		close(s.movements)
	}
	s.queueClosed = true
}
