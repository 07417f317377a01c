package port

import (
	"context"

	"github.com/rl1809/collectible-trade/internal/core/domain"
)

// Presenter renders negotiation progress to the two parties. Implementations
// must not call back into the trade service synchronously.
type Presenter interface {
	Present(ctx context.Context, view domain.StageView) error
	NotifyOutcome(ctx context.Context, outcome domain.Outcome) error
}
