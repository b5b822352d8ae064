package auction

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/openbid/auctiond/internal/auction/events"
	"github.com/openbid/auctiond/internal/models"
)

// LotStore is what the engine needs from lot persistence. Lots are owned by
// an external catalog; the engine only transitions their status.
type LotStore interface {
	GetLot(ctx context.Context, id uuid.UUID) (*models.Lot, error)
	ListUnsoldLots(ctx context.Context) ([]models.Lot, error)
	MarkInAuction(ctx context.Context, id uuid.UUID) error
	MarkAvailable(ctx context.Context, id uuid.UUID) error
	MarkSold(ctx context.Context, id uuid.UUID, winner uuid.UUID, price int64, at time.Time) error
	MarkUnsold(ctx context.Context, id uuid.UUID) error
	// RevokeSale moves a SOLD lot back to UNSOLD and clears the sale fields.
	// It must be guarded on the SOLD status and return ErrNotSold otherwise,
	// so concurrent undo attempts succeed at most once.
	RevokeSale(ctx context.Context, id uuid.UUID) error
}

// BidderStore is what the engine needs from bidder persistence.
type BidderStore interface {
	GetBidder(ctx context.Context, id uuid.UUID) (*models.Bidder, error)
	ListBidders(ctx context.Context) ([]models.Bidder, error)
	// ApplySale debits the budget and increments the roster count in one
	// transaction. It fails if the debit would drive the budget negative.
	ApplySale(ctx context.Context, id uuid.UUID, amount int64) error
	// RevertSale credits the budget and decrements the roster count.
	RevertSale(ctx context.Context, id uuid.UUID, amount int64) error
	SetOnline(ctx context.Context, id uuid.UUID, online bool) error
}

// BidLedger is the append-only audit trail of accepted bids.
type BidLedger interface {
	AppendBid(ctx context.Context, bid models.Bid) error
	FindBidsByLot(ctx context.Context, lotID uuid.UUID) ([]models.Bid, error)
	DeleteBidsByLot(ctx context.Context, lotID uuid.UUID) error
}

// StateStore persists the single AuctionState record.
type StateStore interface {
	GetState(ctx context.Context) (*models.AuctionState, error)
	SaveState(ctx context.Context, state *models.AuctionState) error
}

// PresentationLock reports whether an externally-owned results screen is in
// progress. While held, no lot may be started.
type PresentationLock interface {
	Held(ctx context.Context) (bool, error)
}

// Broadcaster fans committed events out to connected clients. Broadcast
// reaches all roles; BroadcastControl reaches the control role only.
// Implementations must not block the caller.
type Broadcaster interface {
	Broadcast(evt events.Event)
	BroadcastControl(evt events.Event)
}
