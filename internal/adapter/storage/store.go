package storage

import (
	"context"

	"github.com/rl1809/collectible-trade/internal/port"
)

// Store is implemented by every adapter in this package.
type Store interface {
	port.InventoryRepository
	port.TradeRepository
	SetHolding(ctx context.Context, ownerID, itemID string, quantity int) error
}

var (
	_ Store = (*MemoryAdapter)(nil)
	_ Store = (*RedisAdapter)(nil)
	_ Store = (*MySQLAdapter)(nil)
)
