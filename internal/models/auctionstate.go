package models

import (
	"time"

	"github.com/google/uuid"
)

// RecentlySoldCap bounds the recently-sold ring kept on AuctionState.
const RecentlySoldCap = 10

// HighBid is the currently leading accepted bid for the active lot. A nil
// Bidder marks the sentinel value (no accepted bid yet).
type HighBid struct {
	Amount int64      `json:"amount"`
	Bidder *uuid.UUID `json:"bidder,omitempty"`
}

// SoldSummary is one entry of the recently-sold ring, newest first.
type SoldSummary struct {
	LotID      uuid.UUID `json:"lot_id"`
	LotName    string    `json:"lot_name"`
	WinnerID   uuid.UUID `json:"winner_id"`
	WinnerName string    `json:"winner_name"`
	Amount     int64     `json:"amount"`
	SoldAt     time.Time `json:"sold_at"`
}

// AuctionState is the single authoritative auction record. Exactly one lot
// may be IN_AUCTION system-wide and it equals CurrentLot while IsActive.
type AuctionState struct {
	CurrentLot       *uuid.UUID    `json:"current_lot,omitempty"`
	CurrentHighBid   HighBid       `json:"current_high_bid"`
	IsActive         bool          `json:"is_active"`
	IsPaused         bool          `json:"is_paused"`
	LastBidAt        *time.Time    `json:"last_bid_at,omitempty"`
	AuctionStartedAt *time.Time    `json:"auction_started_at,omitempty"`
	RecentlySold     []SoldSummary `json:"recently_sold"`
}

// NewAuctionState returns an idle state with the high bid at the given
// auction floor.
func NewAuctionState(floor int64) *AuctionState {
	return &AuctionState{
		CurrentHighBid: HighBid{Amount: floor},
		RecentlySold:   []SoldSummary{},
	}
}

// PrependSold pushes a summary onto the front of the recently-sold ring,
// evicting beyond RecentlySoldCap entries.
func (s *AuctionState) PrependSold(sum SoldSummary) {
	s.RecentlySold = append([]SoldSummary{sum}, s.RecentlySold...)
	if len(s.RecentlySold) > RecentlySoldCap {
		s.RecentlySold = s.RecentlySold[:RecentlySoldCap]
	}
}

// RemoveSold drops any ring entry for the given lot. Used when a sale is
// undone.
func (s *AuctionState) RemoveSold(lotID uuid.UUID) {
	out := s.RecentlySold[:0]
	for _, sum := range s.RecentlySold {
		if sum.LotID != lotID {
			out = append(out, sum)
		}
	}
	s.RecentlySold = out
}

// Clone returns a deep copy safe to hand outside the engine's lock.
func (s *AuctionState) Clone() *AuctionState {
	cp := *s
	if s.CurrentLot != nil {
		id := *s.CurrentLot
		cp.CurrentLot = &id
	}
	if s.CurrentHighBid.Bidder != nil {
		id := *s.CurrentHighBid.Bidder
		cp.CurrentHighBid.Bidder = &id
	}
	if s.LastBidAt != nil {
		t := *s.LastBidAt
		cp.LastBidAt = &t
	}
	if s.AuctionStartedAt != nil {
		t := *s.AuctionStartedAt
		cp.AuctionStartedAt = &t
	}
	cp.RecentlySold = append([]SoldSummary(nil), s.RecentlySold...)
	return &cp
}
