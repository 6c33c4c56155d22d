package port

import (
	"context"

	"github.com/rl1809/storeflow/internal/core/domain"
)

type MovementPublisher interface {
	PublishMovement(ctx context.Context, tx domain.Transaction) error
	Close() error
}
