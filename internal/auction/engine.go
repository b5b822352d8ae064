package auction

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/openbid/auctiond/internal/auction/events"
	"github.com/openbid/auctiond/internal/models"
)

// ErrNotFound is returned by stores for missing records.
var ErrNotFound = errors.New("not found")

// Config holds the auction engine knobs.
type Config struct {
	// CountdownSec is the full countdown started with each lot.
	CountdownSec int `yaml:"countdown_sec"`
	// BidResetSec is the fixed replenishment value applied on every
	// accepted bid, regardless of how much time was left.
	BidResetSec int `yaml:"bid_reset_sec"`
	// CooldownSec is the auto-run delay between a settlement and the next
	// lot, covering result-presentation time.
	CooldownSec int `yaml:"cooldown_sec"`
	// FloorAmount is the sentinel high-bid amount while no bid is accepted.
	FloorAmount int64 `yaml:"floor_amount"`
}

// DefaultConfig returns the stock auction timings.
func DefaultConfig() Config {
	return Config{
		CountdownSec: 30,
		BidResetSec:  15,
		CooldownSec:  8,
		FloorAmount:  0,
	}
}

// Engine owns the single authoritative AuctionState and serializes every
// mutating entry point (bids, timer expiry, settlement, control commands)
// through one mutex. Broadcasts are emitted only after a mutation commits.
type Engine struct {
	cfg     Config
	lots    LotStore
	bidders BidderStore
	ledger  BidLedger
	states  StateStore
	plock   PresentationLock
	hub     Broadcaster
	clock   clockwork.Clock
	timer   *Countdown

	mu              sync.Mutex
	state           *models.AuctionState
	currentLot      *models.Lot
	highBidderName  string
	pausedRemaining int
	autoRun         bool
	cooldownTimer   clockwork.Timer
	queue           *LotQueue
}

// NewEngine wires the engine. Call Start before use.
func NewEngine(cfg Config, lots LotStore, bidders BidderStore, ledger BidLedger, states StateStore, plock PresentationLock, hub Broadcaster, clock clockwork.Clock) *Engine {
	e := &Engine{
		cfg:     cfg,
		lots:    lots,
		bidders: bidders,
		ledger:  ledger,
		states:  states,
		plock:   plock,
		hub:     hub,
		clock:   clock,
		queue:   NewLotQueue(rand.New(rand.NewSource(clock.Now().UnixNano()))),
	}
	e.timer = NewCountdown(clock, e.broadcastTick, e.handleExpiry)
	return e
}

// Start loads (or creates) the persisted auction state. A state left active
// by a dead process is reset and its lot returned to the pool; a countdown
// cannot be resumed across restarts.
func (e *Engine) Start(ctx context.Context) error {
	st, err := e.states.GetState(ctx)
	if errors.Is(err, ErrNotFound) {
		st = models.NewAuctionState(e.cfg.FloorAmount)
		if err := e.states.SaveState(ctx, st); err != nil {
			return fmt.Errorf("create auction state: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("load auction state: %w", err)
	}

	if st.IsActive {
		log.Warn().Msg("auction state was active at startup, resetting")
		if st.CurrentLot != nil {
			if err := e.lots.MarkAvailable(ctx, *st.CurrentLot); err != nil {
				log.Error().Err(err).Str("lot_id", st.CurrentLot.String()).Msg("failed to release stale lot")
			}
		}
		st.CurrentLot = nil
		st.IsActive = false
		st.IsPaused = false
		st.CurrentHighBid = models.HighBid{Amount: e.cfg.FloorAmount}
		if err := e.states.SaveState(ctx, st); err != nil {
			return fmt.Errorf("reset auction state: %w", err)
		}
	}

	e.mu.Lock()
	e.state = st
	e.mu.Unlock()
	return nil
}

// Stop halts the countdown and any pending auto-run trigger.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.autoRun = false
	e.cancelCooldownLocked()
	e.mu.Unlock()
	e.timer.Stop()
}

// StartLot puts a lot up for auction and starts the countdown. Rejected with
// ErrPresentationLocked while the results screen is in progress.
func (e *Engine) StartLot(ctx context.Context, lotID uuid.UUID) error {
	held, err := e.plock.Held(ctx)
	if err != nil {
		return fmt.Errorf("check presentation lock: %w", err)
	}
	if held {
		return ErrPresentationLocked
	}

	lot, err := e.lots.GetLot(ctx, lotID)
	if err != nil {
		return fmt.Errorf("get lot %s: %w", lotID, err)
	}

	e.mu.Lock()
	evt, err := e.startLotLocked(ctx, lot)
	e.mu.Unlock()
	if err != nil {
		return err
	}

	e.hub.Broadcast(evt)
	return nil
}

// startLotLocked activates a lot and starts the countdown. Caller holds mu.
func (e *Engine) startLotLocked(ctx context.Context, lot *models.Lot) (events.Event, error) {
	if e.state.IsActive {
		return events.Event{}, ErrAuctionActive
	}
	if !lot.IsSellable() {
		return events.Event{}, ErrLotNotSellable
	}

	if err := e.lots.MarkInAuction(ctx, lot.ID); err != nil {
		return events.Event{}, fmt.Errorf("mark lot in auction: %w", err)
	}

	now := e.clock.Now().UTC()
	active := *lot
	active.Status = models.LotStatusInAuction

	prev := e.state.Clone()
	id := lot.ID
	e.state.CurrentLot = &id
	e.state.IsActive = true
	e.state.IsPaused = false
	e.state.CurrentHighBid = models.HighBid{Amount: e.cfg.FloorAmount}
	if e.state.AuctionStartedAt == nil {
		e.state.AuctionStartedAt = &now
	}
	if err := e.states.SaveState(ctx, e.state); err != nil {
		e.state = prev
		if rbErr := e.lots.MarkAvailable(ctx, lot.ID); rbErr != nil {
			log.Error().Err(rbErr).Str("lot_id", lot.ID.String()).Msg("failed to release lot after state write failure")
		}
		return events.Event{}, fmt.Errorf("persist lot start: %w", err)
	}

	e.currentLot = &active
	e.highBidderName = ""
	e.timer.Start(e.cfg.CountdownSec)

	log.Info().
		Str("lot_id", lot.ID.String()).
		Str("name", lot.Name).
		Int64("base_price", lot.BasePrice).
		Msg("lot started")

	return events.New(events.TypeLotStarted, events.LotStartedPayload{
		LotID:     lot.ID,
		Name:      lot.Name,
		Category:  lot.Category,
		BasePrice: lot.BasePrice,
		TimerSec:  e.cfg.CountdownSec,
		StartedAt: now,
	}), nil
}

// PlaceBid validates and applies a bid. Validation failures come back as a
// *BidError carrying the rejection reason; they never mutate shared state.
func (e *Engine) PlaceBid(ctx context.Context, bidderID uuid.UUID, amount int64) error {
	bidder, err := e.bidders.GetBidder(ctx, bidderID)
	if errors.Is(err, ErrNotFound) {
		bidder = nil
	} else if err != nil {
		return fmt.Errorf("get bidder %s: %w", bidderID, err)
	}

	e.mu.Lock()
	if be := validateBid(e.state, e.currentLot, bidder, amount); be != nil {
		e.mu.Unlock()
		return be
	}

	now := e.clock.Now().UTC()
	bid := models.Bid{
		ID:       uuid.New(),
		LotID:    e.currentLot.ID,
		BidderID: bidder.ID,
		Amount:   amount,
		PlacedAt: now,
	}
	if err := e.ledger.AppendBid(ctx, bid); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("append bid: %w", err)
	}

	prevHigh := e.state.CurrentHighBid
	prevLast := e.state.LastBidAt
	prevName := e.highBidderName
	winner := bidder.ID
	e.state.CurrentHighBid = models.HighBid{Amount: amount, Bidder: &winner}
	e.state.LastBidAt = &now
	e.highBidderName = bidder.DisplayName
	if err := e.states.SaveState(ctx, e.state); err != nil {
		e.state.CurrentHighBid = prevHigh
		e.state.LastBidAt = prevLast
		e.highBidderName = prevName
		e.mu.Unlock()
		return fmt.Errorf("persist bid: %w", err)
	}

	e.timer.ResetTo(e.cfg.BidResetSec)
	lotID := e.currentLot.ID
	e.mu.Unlock()

	log.Info().
		Str("lot_id", lotID.String()).
		Str("bidder_id", bidder.ID.String()).
		Int64("amount", amount).
		Msg("bid accepted")

	e.hub.Broadcast(events.New(events.TypeBidAccepted, events.BidAcceptedPayload{
		LotID:      lotID,
		BidderID:   bidder.ID,
		BidderName: bidder.DisplayName,
		Amount:     amount,
		PlacedAt:   now,
	}))
	e.hub.Broadcast(events.New(events.TypeTimerReset, events.TimerResetPayload{
		Remaining: e.cfg.BidResetSec,
	}))
	return nil
}

// Pause freezes the countdown without resetting it and cancels any pending
// auto-run trigger.
func (e *Engine) Pause(ctx context.Context) error {
	e.mu.Lock()
	if !e.state.IsActive {
		e.mu.Unlock()
		return ErrAuctionInactive
	}
	if e.state.IsPaused {
		e.mu.Unlock()
		return nil
	}

	e.pausedRemaining = e.timer.Remaining()
	e.timer.Stop()
	e.cancelCooldownLocked()
	e.state.IsPaused = true
	if err := e.states.SaveState(ctx, e.state); err != nil {
		log.Error().Err(err).Msg("failed to persist pause")
	}
	now := e.clock.Now().UTC()
	e.mu.Unlock()

	log.Info().Msg("auction paused")
	e.hub.Broadcast(events.New(events.TypeAuctionPaused, events.PausedPayload{PausedAt: now}))
	return nil
}

// Resume restarts the countdown from the frozen remaining time. The current
// high bid is untouched.
func (e *Engine) Resume(ctx context.Context) error {
	e.mu.Lock()
	if !e.state.IsActive {
		e.mu.Unlock()
		return ErrAuctionInactive
	}
	if !e.state.IsPaused {
		e.mu.Unlock()
		return ErrNotPaused
	}

	rem := e.pausedRemaining
	if rem <= 0 {
		rem = e.cfg.CountdownSec
	}
	e.state.IsPaused = false
	if err := e.states.SaveState(ctx, e.state); err != nil {
		log.Error().Err(err).Msg("failed to persist resume")
	}
	e.timer.Start(rem)
	now := e.clock.Now().UTC()
	e.mu.Unlock()

	log.Info().Int("remaining", rem).Msg("auction resumed")
	e.hub.Broadcast(events.New(events.TypeAuctionResumed, events.ResumedPayload{
		ResumedAt: now,
		Remaining: rem,
	}))
	return nil
}

// ForceSell settles the current lot immediately, same path as timer expiry.
func (e *Engine) ForceSell(ctx context.Context) error {
	e.mu.Lock()
	if !e.state.IsActive {
		e.mu.Unlock()
		return ErrAuctionInactive
	}
	evts, err := e.settleLocked(ctx)
	cooldown := err == nil && e.autoRun
	e.mu.Unlock()

	e.emit(evts)
	if err != nil {
		return err
	}
	if cooldown {
		e.scheduleAdvance()
	}
	return nil
}

// UndoSale reverses a completed sale: the winner is refunded, the bid
// history for the lot is cleared, and the lot returns to UNSOLD. It has no
// time limit and does not reopen bidding.
func (e *Engine) UndoSale(ctx context.Context, lotID uuid.UUID) error {
	lot, err := e.lots.GetLot(ctx, lotID)
	if err != nil {
		return fmt.Errorf("get lot %s: %w", lotID, err)
	}
	if lot.Status != models.LotStatusSold || lot.Winner == nil || lot.SoldPrice == nil {
		return ErrNotSold
	}

	winner := *lot.Winner
	price := *lot.SoldPrice

	e.mu.Lock()
	// The guarded SOLD→UNSOLD transition is the idempotency gate: a second
	// undo, even one that read the lot as SOLD concurrently, finds no SOLD
	// row and fails ErrNotSold before any credit is applied.
	if err := e.lots.RevokeSale(ctx, lotID); err != nil {
		e.mu.Unlock()
		if errors.Is(err, ErrNotSold) {
			return ErrNotSold
		}
		return fmt.Errorf("revoke sale for lot %s: %w", lotID, err)
	}
	if err := e.bidders.RevertSale(ctx, winner, price); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("revert sale for bidder %s: %w", winner, err)
	}
	if err := e.ledger.DeleteBidsByLot(ctx, lotID); err != nil {
		log.Error().Err(err).Str("lot_id", lotID.String()).Msg("failed to clear bid history on undo")
	}
	e.state.RemoveSold(lotID)
	if err := e.states.SaveState(ctx, e.state); err != nil {
		log.Error().Err(err).Msg("failed to persist undo")
	}
	e.mu.Unlock()

	log.Info().
		Str("lot_id", lotID.String()).
		Str("bidder_id", winner.String()).
		Int64("amount", price).
		Msg("sale undone")

	e.hub.Broadcast(events.New(events.TypeSaleUndone, events.SaleUndonePayload{
		LotID:    lotID,
		BidderID: winner,
		Amount:   price,
	}))
	return nil
}

// settleLocked resolves the current lot. Caller holds mu. The
// IsActive → false transition is the idempotency gate: a second concurrent
// trigger observes an inactive state and is a no-op. Persistence failures
// leave the in-memory state untouched so a retried trigger is safe.
func (e *Engine) settleLocked(ctx context.Context) ([]pendingEvent, error) {
	if !e.state.IsActive {
		return nil, nil
	}

	lot := e.currentLot
	now := e.clock.Now().UTC()
	var evts []pendingEvent

	if hb := e.state.CurrentHighBid; hb.Bidder != nil {
		winner := *hb.Bidder
		if err := e.lots.MarkSold(ctx, lot.ID, winner, hb.Amount, now); err != nil {
			return nil, fmt.Errorf("mark lot sold: %w", err)
		}
		if err := e.bidders.ApplySale(ctx, winner, hb.Amount); err != nil {
			if rbErr := e.lots.MarkUnsold(ctx, lot.ID); rbErr != nil {
				log.Error().Err(rbErr).Str("lot_id", lot.ID.String()).Msg("failed to roll back lot after debit failure")
			}
			return nil, fmt.Errorf("debit winner %s: %w", winner, err)
		}

		e.state.PrependSold(models.SoldSummary{
			LotID:      lot.ID,
			LotName:    lot.Name,
			WinnerID:   winner,
			WinnerName: e.highBidderName,
			Amount:     hb.Amount,
			SoldAt:     now,
		})

		log.Info().
			Str("lot_id", lot.ID.String()).
			Str("winner_id", winner.String()).
			Int64("amount", hb.Amount).
			Msg("lot sold")

		evts = append(evts, pendingEvent{evt: events.New(events.TypeLotSold, events.LotSoldPayload{
			LotID:      lot.ID,
			Name:       lot.Name,
			WinnerID:   winner,
			WinnerName: e.highBidderName,
			Amount:     hb.Amount,
			SoldAt:     now,
		})})
	} else {
		if err := e.lots.MarkUnsold(ctx, lot.ID); err != nil {
			return nil, fmt.Errorf("mark lot unsold: %w", err)
		}
		if e.autoRun {
			e.queue.AddCarry(lot.ID)
		}

		log.Info().Str("lot_id", lot.ID.String()).Msg("lot unsold")

		evts = append(evts, pendingEvent{evt: events.New(events.TypeLotUnsold, events.LotUnsoldPayload{
			LotID: lot.ID,
			Name:  lot.Name,
		})})
	}

	e.state.CurrentLot = nil
	e.state.IsActive = false
	e.state.IsPaused = false
	e.state.CurrentHighBid = models.HighBid{Amount: e.cfg.FloorAmount}
	e.currentLot = nil
	e.highBidderName = ""
	if err := e.states.SaveState(ctx, e.state); err != nil {
		// Lot and bidder transitions are committed; the singleton row is
		// repaired by the next successful save.
		log.Error().Err(err).Msg("failed to persist settled state")
	}
	e.timer.Stop()

	if e.autoRun {
		evts = append(evts, pendingEvent{control: true, evt: e.queueProgressLocked()})
	}
	return evts, nil
}

// handleExpiry is the countdown's settlement trigger.
func (e *Engine) handleExpiry() {
	ctx := context.Background()

	e.mu.Lock()
	evts, err := e.settleLocked(ctx)
	cooldown := err == nil && e.autoRun
	e.mu.Unlock()

	e.emit(evts)
	if err != nil {
		// Halt safely rather than leave an ambiguous running state.
		log.Error().Err(err).Msg("settlement failed on timer expiry")
		return
	}
	if cooldown {
		e.scheduleAdvance()
	}
}

func (e *Engine) broadcastTick(remaining int) {
	e.hub.Broadcast(events.New(events.TypeTimerTick, events.TimerTickPayload{Remaining: remaining}))
}

// pendingEvent is an event collected inside the critical section and emitted
// after the mutation commits.
type pendingEvent struct {
	evt     events.Event
	control bool
}

func (e *Engine) emit(evts []pendingEvent) {
	for _, pe := range evts {
		if pe.control {
			e.hub.BroadcastControl(pe.evt)
		} else {
			e.hub.Broadcast(pe.evt)
		}
	}
}

func (e *Engine) queueProgressLocked() events.Event {
	return events.New(events.TypeQueueProgress, events.QueueProgressPayload{
		QueueLength: e.queue.Len(),
		CarryCount:  e.queue.CarryLen(),
		Round:       e.queue.Round(),
	})
}

// TimerRemaining exposes the countdown value for snapshots.
func (e *Engine) TimerRemaining() int {
	return e.timer.Remaining()
}

// Snapshot is the full current-state view served to control and display
// clients on (re)connection.
type Snapshot struct {
	State     *models.AuctionState `json:"state"`
	Lot       *models.Lot          `json:"lot,omitempty"`
	Remaining int                  `json:"remaining"`
	AutoRun   AutoRunStatus        `json:"auto_run"`
	Bidders   []models.Bidder      `json:"bidders"`
}

// Snapshot assembles the current auction view.
func (e *Engine) Snapshot(ctx context.Context) (*Snapshot, error) {
	bidders, err := e.bidders.ListBidders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bidders: %w", err)
	}

	e.mu.Lock()
	snap := &Snapshot{
		State:   e.state.Clone(),
		AutoRun: e.autoRunStatusLocked(),
		Bidders: bidders,
	}
	if e.currentLot != nil {
		lot := *e.currentLot
		snap.Lot = &lot
	}
	e.mu.Unlock()

	if snap.State.IsActive && !snap.State.IsPaused {
		snap.Remaining = e.timer.Remaining()
	}
	return snap, nil
}
