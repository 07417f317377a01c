package domain

import "time"

// TradeRecord is the durable result of a committed trade. It is written in the
// same atomic unit as the holdings it moves and never changes afterwards.
type TradeRecord struct {
	ID             string    `json:"trade_id"`
	InitiatorID    string    `json:"initiator_id"`
	RecipientID    string    `json:"recipient_id"`
	InitiatorOffer Offer     `json:"initiator_offer"`
	RecipientOffer Offer     `json:"recipient_offer"`
	CommittedAt    time.Time `json:"committed_at"`
}

// Transfer is one direction of a trade: quantity of item moving from one owner
// to the other.
type Transfer struct {
	FromID   string
	ToID     string
	ItemID   string
	Quantity int
}

// Legs returns the transfers implied by the record. A side that offered
// nothing produces no leg, so a gift-style trade has exactly one.
func (r TradeRecord) Legs() []Transfer {
	legs := make([]Transfer, 0, 2)
	if !r.InitiatorOffer.IsNothing() {
		legs = append(legs, Transfer{
			FromID:   r.InitiatorID,
			ToID:     r.RecipientID,
			ItemID:   r.InitiatorOffer.ItemID(),
			Quantity: r.InitiatorOffer.Quantity(),
		})
	}
	if !r.RecipientOffer.IsNothing() {
		legs = append(legs, Transfer{
			FromID:   r.RecipientID,
			ToID:     r.InitiatorID,
			ItemID:   r.RecipientOffer.ItemID(),
			Quantity: r.RecipientOffer.Quantity(),
		})
	}
	return legs
}

func (r TradeRecord) Involves(ownerID string) bool {
	return r.InitiatorID == ownerID || r.RecipientID == ownerID
}
