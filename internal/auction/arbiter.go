package auction

import (
	"github.com/openbid/auctiond/internal/models"
)

// validateBid applies the bid acceptance rules, in order, against the
// current auction state. A nil bidder means the connection was not
// recognized. Returns nil when the bid may be applied.
//
// Ties are rejected: a bid equal to the current high bid always fails, so
// the first request through the serialization point wins and any racing
// request sees the already-updated high bid.
func validateBid(state *models.AuctionState, lot *models.Lot, bidder *models.Bidder, amount int64) *BidError {
	if bidder == nil {
		return &BidError{Reason: RejectNotAuthenticated, Amount: amount}
	}
	if !state.IsActive || state.IsPaused || lot == nil {
		return &BidError{Reason: RejectAuctionInactive, Amount: amount}
	}
	if state.CurrentHighBid.Bidder == nil {
		if amount < lot.BasePrice {
			return &BidError{Reason: RejectBelowMinimum, Amount: amount}
		}
	} else if amount <= state.CurrentHighBid.Amount {
		return &BidError{Reason: RejectNotHigherThanCurrent, Amount: amount}
	}
	if amount > bidder.BudgetRemaining {
		return &BidError{Reason: RejectInsufficientBudget, Amount: amount}
	}
	if state.CurrentHighBid.Bidder != nil && *state.CurrentHighBid.Bidder == bidder.ID {
		return &BidError{Reason: RejectAlreadyHighBidder, Amount: amount}
	}
	return nil
}
