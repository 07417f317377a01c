package presenter

import (
	"context"
	"errors"

	"github.com/rl1809/collectible-trade/internal/core/domain"
	"github.com/rl1809/collectible-trade/internal/port"
)

// Multi fans every call out to all presenters, in order.
type Multi []port.Presenter

func (m Multi) Present(ctx context.Context, view domain.StageView) error {
	var errs []error
	for _, p := range m {
		errs = append(errs, p.Present(ctx, view))
	}
	return errors.Join(errs...)
}

func (m Multi) NotifyOutcome(ctx context.Context, outcome domain.Outcome) error {
	var errs []error
	for _, p := range m {
		errs = append(errs, p.NotifyOutcome(ctx, outcome))
	}
	return errors.Join(errs...)
}
