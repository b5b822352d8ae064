package events

import (
	"time"

	"github.com/google/uuid"
)

// LotStartedPayload is the payload for a LotStarted event.
type LotStartedPayload struct {
	LotID     uuid.UUID `json:"lot_id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	BasePrice int64     `json:"base_price"`
	TimerSec  int       `json:"timer_sec"`
	StartedAt time.Time `json:"started_at"`
}

// BidAcceptedPayload is the payload for a BidAccepted event.
type BidAcceptedPayload struct {
	LotID      uuid.UUID `json:"lot_id"`
	BidderID   uuid.UUID `json:"bidder_id"`
	BidderName string    `json:"bidder_name"`
	Amount     int64     `json:"amount"`
	PlacedAt   time.Time `json:"placed_at"`
}

// BidRejectedPayload is sent only to the connection whose bid failed.
type BidRejectedPayload struct {
	Reason string `json:"reason"`
	Amount int64  `json:"amount"`
}

// TimerTickPayload carries the remaining countdown seconds.
type TimerTickPayload struct {
	Remaining int `json:"remaining"`
}

// TimerResetPayload is emitted when an accepted bid replenishes the timer.
type TimerResetPayload struct {
	Remaining int `json:"remaining"`
}

// LotSoldPayload is the payload for a LotSold event.
type LotSoldPayload struct {
	LotID      uuid.UUID `json:"lot_id"`
	Name       string    `json:"name"`
	WinnerID   uuid.UUID `json:"winner_id"`
	WinnerName string    `json:"winner_name"`
	Amount     int64     `json:"amount"`
	SoldAt     time.Time `json:"sold_at"`
}

// LotUnsoldPayload is the payload for a LotUnsold event.
type LotUnsoldPayload struct {
	LotID uuid.UUID `json:"lot_id"`
	Name  string    `json:"name"`
}

// SaleUndonePayload is the payload for a SaleUndone event.
type SaleUndonePayload struct {
	LotID    uuid.UUID `json:"lot_id"`
	BidderID uuid.UUID `json:"bidder_id"`
	Amount   int64     `json:"amount"`
}

// PausedPayload is the payload for an AuctionPaused event.
type PausedPayload struct {
	PausedAt time.Time `json:"paused_at"`
}

// ResumedPayload is the payload for an AuctionResumed event.
type ResumedPayload struct {
	ResumedAt time.Time `json:"resumed_at"`
	Remaining int       `json:"remaining"`
}

// QueueProgressPayload reports auto-run queue depth to the control role.
type QueueProgressPayload struct {
	QueueLength int `json:"queue_length"`
	CarryCount  int `json:"carry_count"`
	Round       int `json:"round"`
}

// NewRoundPayload announces an unsold-carry rollover to the control role.
type NewRoundPayload struct {
	Round int `json:"round"`
	Count int `json:"count"`
}

// AutoRunCompletedPayload announces the end of auto-run to the control role.
type AutoRunCompletedPayload struct {
	Rounds      int       `json:"rounds"`
	CompletedAt time.Time `json:"completed_at"`
}

// BidderStatusPayload reports a bidder going online or offline.
type BidderStatusPayload struct {
	BidderID uuid.UUID `json:"bidder_id"`
	Name     string    `json:"name"`
	Online   bool      `json:"online"`
}

// CommandRejectedPayload is sent only to the connection whose command
// failed.
type CommandRejectedPayload struct {
	Command string `json:"command"`
	Error   string `json:"error"`
}

// AuthResultPayload is sent only to the authenticating connection.
type AuthResultPayload struct {
	OK       bool   `json:"ok"`
	Role     string `json:"role"`
	BidderID string `json:"bidder_id,omitempty"`
	Error    string `json:"error,omitempty"`
}
