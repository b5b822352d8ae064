package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type identifies an auction event on the wire.
type Type string

const (
	TypeLotStarted       Type = "LotStarted"
	TypeBidAccepted      Type = "BidAccepted"
	TypeBidRejected      Type = "BidRejected"
	TypeTimerTick        Type = "TimerTick"
	TypeTimerReset       Type = "TimerReset"
	TypeLotSold          Type = "LotSold"
	TypeLotUnsold        Type = "LotUnsold"
	TypeSaleUndone       Type = "SaleUndone"
	TypeAuctionPaused    Type = "AuctionPaused"
	TypeAuctionResumed   Type = "AuctionResumed"
	TypeQueueProgress    Type = "QueueProgress"
	TypeNewRound         Type = "NewRound"
	TypeAutoRunCompleted Type = "AutoRunCompleted"
	TypeBidderStatus     Type = "BidderStatus"
	TypeAuthResult       Type = "AuthResult"
	TypeSnapshot         Type = "Snapshot"
	TypeAutoRunStatus    Type = "AutoRunStatus"
	TypeCommandRejected  Type = "CommandRejected"
)

// Event is the envelope broadcast to connected clients.
type Event struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// New builds an event envelope around the given payload. Payloads defined in
// this package always marshal; a marshal failure produces an empty data
// object rather than a dropped event.
func New(t Type, payload any) Event {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("{}")
	}
	return Event{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}
