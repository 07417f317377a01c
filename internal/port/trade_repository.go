package port

import (
	"context"

	"github.com/rl1809/collectible-trade/internal/core/domain"
)

type TradeRepository interface {
	// CommitTrade re-checks and moves both legs of the record and appends it,
	// all-or-nothing. Fails with domain.ErrInsufficientHolding when a leg is no
	// longer covered and domain.ErrDuplicateTrade when the record id exists.
	CommitTrade(ctx context.Context, record domain.TradeRecord) error

	// GetTrade returns nil when the record does not exist
	GetTrade(ctx context.Context, tradeID string) (*domain.TradeRecord, error)

	// ListTrades returns the newest records involving ownerID
	ListTrades(ctx context.Context, ownerID string, limit int) ([]domain.TradeRecord, error)
}
