package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/collectible-trade/internal/core/domain"
	"github.com/rl1809/collectible-trade/internal/port"
)

// Executor commits finalized offers against the trade store. The store call is
// the only place holdings change, and it re-validates both legs atomically.
type Executor struct {
	trades port.TradeRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewExecutor(trades port.TradeRepository, logger *zap.Logger) *Executor {
	return &Executor{
		trades: trades,
		logger: logger,
		now:    time.Now,
	}
}

// Commit moves both offers and persists the trade record under tradeID. An
// empty tradeID gets a fresh one. Retrying with the same tradeID after
// ErrStoreUnavailable never applies the trade twice.
func (e *Executor) Commit(ctx context.Context, tradeID, initiatorID, recipientID string, initiatorOffer, recipientOffer domain.Offer) (*domain.TradeRecord, error) {
	if initiatorID == recipientID {
		return nil, domain.ErrSelfTrade
	}
	if initiatorOffer.Party() != domain.PartyInitiator || recipientOffer.Party() != domain.PartyRecipient {
		return nil, fmt.Errorf("%w: offers attributed to the wrong sides", domain.ErrInvalidSelection)
	}
	if initiatorOffer.IsNothing() && recipientOffer.IsNothing() {
		return nil, domain.ErrEmptyTrade
	}
	if tradeID == "" {
		tradeID = uuid.New().String()
	}

	record := domain.TradeRecord{
		ID:             tradeID,
		InitiatorID:    initiatorID,
		RecipientID:    recipientID,
		InitiatorOffer: initiatorOffer,
		RecipientOffer: recipientOffer,
		CommittedAt:    e.now().UTC(),
	}

	err := e.trades.CommitTrade(ctx, record)
	switch {
	case err == nil:
		e.logger.Info("trade committed",
			zap.String("trade_id", record.ID),
			zap.String("initiator", initiatorID),
			zap.String("recipient", recipientID),
			zap.Stringer("initiator_offer", initiatorOffer),
			zap.Stringer("recipient_offer", recipientOffer),
		)
		return &record, nil

	case errors.Is(err, domain.ErrDuplicateTrade):
		// an earlier attempt reached the store; report what it wrote
		existing, getErr := e.trades.GetTrade(ctx, tradeID)
		if getErr != nil {
			return nil, fmt.Errorf("%w: load committed trade %s: %w", domain.ErrStoreUnavailable, tradeID, getErr)
		}
		if existing == nil {
			return nil, fmt.Errorf("%w: trade %s reported duplicate but not found", domain.ErrStoreUnavailable, tradeID)
		}
		e.logger.Warn("trade already committed, returning stored record", zap.String("trade_id", tradeID))
		return existing, nil

	case errors.Is(err, domain.ErrInsufficientHolding):
		e.logger.Info("trade rejected, offer is stale",
			zap.String("trade_id", record.ID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", domain.ErrStaleOffer, err)
	}

	e.logger.Error("trade commit failed", zap.String("trade_id", record.ID), zap.Error(err))
	return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}

// Lookup returns the stored record for tradeID, or nil if no commit landed.
func (e *Executor) Lookup(ctx context.Context, tradeID string) (*domain.TradeRecord, error) {
	record, err := e.trades.GetTrade(ctx, tradeID)
	if err != nil {
		return nil, fmt.Errorf("%w: load trade %s: %w", domain.ErrStoreUnavailable, tradeID, err)
	}
	return record, nil
}
