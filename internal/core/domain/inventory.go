package domain

import "time"

// Holding is the quantity of one collectible owned by one user. A holding
// with quantity 0 is treated as absent.
type Holding struct {
	OwnerID   string    `json:"owner_id"`
	ItemID    string    `json:"item_id"`
	Quantity  int       `json:"quantity"`
	Version   int       `json:"version,omitempty"` // bumped on every mutation by SQL stores
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}
