package auction

import (
	"errors"
	"fmt"
)

// RejectReason classifies why a bid was turned away. Reasons are reported
// only to the originating connection and never mutate shared state.
type RejectReason string

const (
	RejectNotAuthenticated     RejectReason = "NOT_AUTHENTICATED"
	RejectAuctionInactive      RejectReason = "AUCTION_INACTIVE"
	RejectBelowMinimum         RejectReason = "BELOW_MINIMUM"
	RejectNotHigherThanCurrent RejectReason = "NOT_HIGHER_THAN_CURRENT"
	RejectInsufficientBudget   RejectReason = "INSUFFICIENT_BUDGET"
	RejectAlreadyHighBidder    RejectReason = "ALREADY_HIGH_BIDDER"
)

// BidError is a bid validation failure.
type BidError struct {
	Reason RejectReason
	Amount int64
}

func (e *BidError) Error() string {
	return fmt.Sprintf("bid rejected: %s (amount %d)", e.Reason, e.Amount)
}

// AsBidError unwraps err into a *BidError if it is one.
func AsBidError(err error) (*BidError, bool) {
	var be *BidError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

var (
	// ErrAuctionActive is returned when a lot start collides with a lot
	// already in auction.
	ErrAuctionActive = errors.New("a lot is already in auction")

	// ErrAuctionInactive is returned by pause/resume/force-sell when no lot
	// is in auction.
	ErrAuctionInactive = errors.New("no lot is in auction")

	// ErrNotPaused is returned by resume when the auction is not paused.
	ErrNotPaused = errors.New("auction is not paused")

	// ErrLotNotSellable is returned when starting a lot that is sold or
	// already in auction.
	ErrLotNotSellable = errors.New("lot is not available for auction")

	// ErrNotSold is returned by UndoSale for a lot whose status is not SOLD.
	ErrNotSold = errors.New("lot is not sold")

	// ErrPresentationLocked signals a transient start rejection while the
	// results screen holds the presentation lock. Callers should try later.
	ErrPresentationLocked = errors.New("presentation in progress, try later")

	// ErrAutoRunActive is returned when starting auto-run twice.
	ErrAutoRunActive = errors.New("auto-run already active")

	// ErrAutoRunInactive is returned when stopping auto-run while off.
	ErrAutoRunInactive = errors.New("auto-run not active")
)
