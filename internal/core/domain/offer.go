package domain

import (
	"encoding/json"
	"fmt"
)

// Offer is one side's proposed contribution to a trade: a quantity of a single
// item, or nothing at all. Offers are values; the zero Offer is invalid.
type Offer struct {
	party    Party
	itemID   string
	quantity int
}

// NewOffer validates and builds an offer. An empty itemID means "nothing" and
// requires a zero quantity; a non-empty itemID requires a positive quantity.
func NewOffer(party Party, itemID string, quantity int) (Offer, error) {
	if !party.Valid() {
		return Offer{}, fmt.Errorf("%w: unknown party %q", ErrInvalidSelection, party)
	}
	if quantity < 0 {
		return Offer{}, fmt.Errorf("%w: negative quantity %d", ErrInvalidQuantity, quantity)
	}
	if itemID == "" && quantity != 0 {
		return Offer{}, fmt.Errorf("%w: quantity %d offered without an item", ErrInvalidQuantity, quantity)
	}
	if itemID != "" && quantity == 0 {
		return Offer{}, fmt.Errorf("%w: item %s offered with zero quantity", ErrInvalidQuantity, itemID)
	}
	return Offer{party: party, itemID: itemID, quantity: quantity}, nil
}

// NothingOffer is the gift-only offer for party.
func NothingOffer(party Party) Offer {
	return Offer{party: party}
}

func (o Offer) Party() Party    { return o.party }
func (o Offer) ItemID() string  { return o.itemID }
func (o Offer) Quantity() int   { return o.quantity }
func (o Offer) IsNothing() bool { return o.itemID == "" }

func (o Offer) Equal(other Offer) bool {
	return o == other
}

func (o Offer) String() string {
	if o.IsNothing() {
		return "nothing"
	}
	return fmt.Sprintf("%d x %s", o.quantity, o.itemID)
}

type offerJSON struct {
	Party    Party  `json:"party"`
	ItemID   string `json:"item_id,omitempty"`
	Quantity int    `json:"quantity"`
}

func (o Offer) MarshalJSON() ([]byte, error) {
	return json.Marshal(offerJSON{Party: o.party, ItemID: o.itemID, Quantity: o.quantity})
}

// UnmarshalJSON re-applies NewOffer validation so a stored record can never
// decode into an inconsistent offer.
func (o *Offer) UnmarshalJSON(data []byte) error {
	var raw offerJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	offer, err := NewOffer(raw.Party, raw.ItemID, raw.Quantity)
	if err != nil {
		return err
	}
	*o = offer
	return nil
}
