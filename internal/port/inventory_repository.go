package port

import (
	"context"

	"github.com/rl1809/collectible-trade/internal/core/domain"
)

type InventoryRepository interface {
	// GetHolding returns the live quantity of itemID owned by ownerID, 0 if absent
	GetHolding(ctx context.Context, ownerID, itemID string) (int, error)

	// ListHoldings returns every non-empty holding of ownerID
	ListHoldings(ctx context.Context, ownerID string) ([]domain.Holding, error)

	// AdjustHolding atomically adds delta and returns the new quantity.
	// A delta that would go below zero fails with domain.ErrInsufficientHolding.
	AdjustHolding(ctx context.Context, ownerID, itemID string, delta int) (int, error)
}
