package models

import (
	"time"

	"github.com/google/uuid"
)

// Bid is one entry in the append-only bid ledger. The ledger is an audit
// trail; the current leader lives on AuctionState, not here.
type Bid struct {
	ID       uuid.UUID `json:"id"`
	LotID    uuid.UUID `json:"lot_id"`
	BidderID uuid.UUID `json:"bidder_id"`
	Amount   int64     `json:"amount"`
	PlacedAt time.Time `json:"placed_at"`
}
