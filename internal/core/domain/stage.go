package domain

import (
	"fmt"
	"time"
)

type Stage string

const (
	StageSelectingInitiatorItem Stage = "selecting_initiator_item"
	StageSelectingRecipientItem Stage = "selecting_recipient_item"
	StageAwaitingQuantities     Stage = "awaiting_quantities"
	StageAwaitingConfirmation   Stage = "awaiting_confirmation"
	StageCommitted              Stage = "committed"
	StageAborted                Stage = "aborted"
)

func (s Stage) IsTerminal() bool {
	return s == StageCommitted || s == StageAborted
}

func (s Stage) IsSelecting() bool {
	return s == StageSelectingInitiatorItem || s == StageSelectingRecipientItem
}

// AbortReason explains why a session ended without a trade.
type AbortReason string

const (
	ReasonTimeout          AbortReason = "timeout"
	ReasonDeclined         AbortReason = "declined"
	ReasonStaleOffer       AbortReason = "stale_offer"
	ReasonEmptyTrade       AbortReason = "empty_trade"
	ReasonInvalidSelection AbortReason = "invalid_selection"
	ReasonInvalidQuantity  AbortReason = "invalid_quantity"
	ReasonCancelled        AbortReason = "cancelled"
	ReasonShutdown         AbortReason = "shutdown"
)

// Err returns the sentinel error matching the reason.
func (r AbortReason) Err() error {
	switch r {
	case ReasonTimeout:
		return ErrTimeout
	case ReasonDeclined:
		return ErrDeclined
	case ReasonStaleOffer:
		return ErrStaleOffer
	case ReasonEmptyTrade:
		return ErrEmptyTrade
	case ReasonInvalidSelection:
		return ErrInvalidSelection
	case ReasonInvalidQuantity:
		return ErrInvalidQuantity
	case ReasonCancelled:
		return ErrCancelled
	case ReasonShutdown:
		return ErrShutdown
	}
	return fmt.Errorf("unknown abort reason %q", string(r))
}

// Message is the notice shown to both parties.
func (r AbortReason) Message() string {
	switch r {
	case ReasonTimeout:
		return "The trade expired because nobody responded in time."
	case ReasonDeclined:
		return "The recipient declined the trade."
	case ReasonStaleOffer:
		return "The trade could not be completed: one of the offered items is no longer held in the agreed quantity."
	case ReasonEmptyTrade:
		return "The trade was cancelled because neither side offered anything."
	case ReasonInvalidSelection:
		return "The trade was cancelled because an item was selected that is not in the owner's inventory."
	case ReasonInvalidQuantity:
		return "The trade was cancelled because an invalid quantity was entered."
	case ReasonCancelled:
		return "The trade was cancelled by a participant."
	case ReasonShutdown:
		return "The trade was cancelled because the trading service is restarting."
	}
	return "The trade was cancelled."
}

// SideView is one party's progress as shown to the presentation layer.
type SideView struct {
	Selected  bool   `json:"selected"`
	ItemID    string `json:"item_id,omitempty"`
	Quantity  int    `json:"quantity"`
	Finalized bool   `json:"finalized"`
}

// StageView is a read-only snapshot of a session, rendered on every transition.
type StageView struct {
	SessionID   string      `json:"session_id"`
	InitiatorID string      `json:"initiator_id"`
	RecipientID string      `json:"recipient_id"`
	Stage       Stage       `json:"stage"`
	Version     int         `json:"version"`
	Initiator   SideView    `json:"initiator"`
	Recipient   SideView    `json:"recipient"`
	TradeID     string      `json:"trade_id,omitempty"`
	Reason      AbortReason `json:"reason,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	ExpiresAt   time.Time   `json:"expires_at"`
}

// Awaiting lists the parties whose input the current stage is waiting for.
func (v StageView) Awaiting() []Party {
	switch v.Stage {
	case StageSelectingInitiatorItem, StageSelectingRecipientItem:
		var parties []Party
		if !v.Initiator.Selected {
			parties = append(parties, PartyInitiator)
		}
		if !v.Recipient.Selected {
			parties = append(parties, PartyRecipient)
		}
		return parties
	case StageAwaitingQuantities:
		var parties []Party
		if !v.Initiator.Finalized {
			parties = append(parties, PartyInitiator)
		}
		if !v.Recipient.Finalized {
			parties = append(parties, PartyRecipient)
		}
		return parties
	case StageAwaitingConfirmation:
		return []Party{PartyRecipient}
	}
	return nil
}

// Outcome is the terminal result delivered to both parties.
type Outcome struct {
	SessionID   string       `json:"session_id"`
	InitiatorID string       `json:"initiator_id"`
	RecipientID string       `json:"recipient_id"`
	Stage       Stage        `json:"stage"`
	Record      *TradeRecord `json:"record,omitempty"`
	Reason      AbortReason  `json:"reason,omitempty"`
	At          time.Time    `json:"at"`
}

func (o Outcome) Committed() bool {
	return o.Stage == StageCommitted
}

func (o Outcome) Message() string {
	if o.Committed() && o.Record != nil {
		return fmt.Sprintf("Trade %s completed: %s gave %s, %s gave %s.",
			o.Record.ID,
			o.InitiatorID, o.Record.InitiatorOffer,
			o.RecipientID, o.Record.RecipientOffer,
		)
	}
	return o.Reason.Message()
}
