package models

import (
	"time"

	"github.com/google/uuid"
)

// LotStatus defines the lifecycle status of a lot.
type LotStatus string

const (
	LotStatusAvailable LotStatus = "AVAILABLE"
	LotStatusInAuction LotStatus = "IN_AUCTION"
	LotStatusSold      LotStatus = "SOLD"
	LotStatusUnsold    LotStatus = "UNSOLD"
)

// Lot represents an auctionable player. The three sale fields (Winner,
// SoldPrice, SoldAt) are all set when Status is SOLD and all nil otherwise.
type Lot struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Category  string     `json:"category"`
	BasePrice int64      `json:"base_price"`
	Status    LotStatus  `json:"status"`
	Winner    *uuid.UUID `json:"winner,omitempty"`
	SoldPrice *int64     `json:"sold_price,omitempty"`
	SoldAt    *time.Time `json:"sold_at,omitempty"`
}

// IsSellable reports whether the lot can be put up for auction.
func (l *Lot) IsSellable() bool {
	return l.Status == LotStatusAvailable || l.Status == LotStatusUnsold
}
