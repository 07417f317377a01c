package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSelection = errors.New("invalid selection")
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrEmptyTrade       = errors.New("empty trade: both sides offer nothing")
	ErrTimeout          = errors.New("trade timed out")
	ErrDeclined         = errors.New("trade declined")
	ErrStaleOffer       = errors.New("stale offer")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrCancelled        = errors.New("trade cancelled")
	ErrShutdown         = errors.New("trade service shutting down")

	ErrNotParticipant  = fmt.Errorf("%w: not a participant of this trade", ErrInvalidSelection)
	ErrNotRecipient    = errors.New("only the recipient may confirm or decline")
	ErrWrongStage      = errors.New("operation not allowed in current stage")
	ErrSessionNotFound = errors.New("trade session not found or already closed")
	ErrSessionExists   = errors.New("a trade between these users is already open")
	ErrSelfTrade       = errors.New("cannot trade with yourself")

	// ErrInsufficientHolding is returned by stores when a conditional
	// decrement finds fewer items than requested.
	ErrInsufficientHolding = errors.New("insufficient holding")
	ErrDuplicateTrade      = errors.New("trade record already exists")
)

// InsufficientHoldingError reports which holding failed a conditional
// decrement. It matches ErrInsufficientHolding with errors.Is.
type InsufficientHoldingError struct {
	OwnerID string
	ItemID  string
	Wanted  int
}

func (e *InsufficientHoldingError) Error() string {
	return fmt.Sprintf("%s does not hold %d x %s", e.OwnerID, e.Wanted, e.ItemID)
}

func (e *InsufficientHoldingError) Is(target error) bool {
	return target == ErrInsufficientHolding
}
