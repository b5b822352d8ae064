package auction

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbid/auctiond/internal/auction/events"
	"github.com/openbid/auctiond/internal/models"
)

type engineFixture struct {
	engine  *Engine
	lots    *memLots
	bidders *memBidders
	ledger  *memLedger
	states  *memStates
	plock   *stubLock
	hub     *recordingHub
	clock   *clockwork.FakeClock
	cfg     Config
}

func newTestEngine(t *testing.T, cfg Config) *engineFixture {
	t.Helper()
	f := &engineFixture{
		lots:    newMemLots(),
		bidders: newMemBidders(),
		ledger:  &memLedger{},
		states:  &memStates{},
		plock:   &stubLock{},
		hub:     &recordingHub{},
		clock:   clockwork.NewFakeClock(),
		cfg:     cfg,
	}
	f.engine = NewEngine(cfg, f.lots, f.bidders, f.ledger, f.states, f.plock, f.hub, f.clock)
	require.NoError(t, f.engine.Start(context.Background()))
	t.Cleanup(f.engine.Stop)
	return f
}

func decodePayload(t *testing.T, evt events.Event, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(evt.Data, out))
}

func TestEngine_StartLot(t *testing.T) {
	ctx := context.Background()
	f := newTestEngine(t, DefaultConfig())
	lotID := f.lots.add("Kite", 10)

	require.NoError(t, f.engine.StartLot(ctx, lotID))

	assert.Equal(t, models.LotStatusInAuction, f.lots.get(lotID).Status)

	started := f.hub.waitFor(t, events.TypeLotStarted, 1)
	var payload events.LotStartedPayload
	decodePayload(t, started[0], &payload)
	assert.Equal(t, lotID, payload.LotID)
	assert.Equal(t, int64(10), payload.BasePrice)
	assert.Equal(t, f.cfg.CountdownSec, payload.TimerSec)

	snap, err := f.engine.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.State.IsActive)
	require.NotNil(t, snap.State.CurrentLot)
	assert.Equal(t, lotID, *snap.State.CurrentLot)
	assert.Nil(t, snap.State.CurrentHighBid.Bidder)

	// A second start while a lot is live is refused.
	other := f.lots.add("Drum", 5)
	assert.ErrorIs(t, f.engine.StartLot(ctx, other), ErrAuctionActive)
}

func TestEngine_StartLot_PresentationLocked(t *testing.T) {
	ctx := context.Background()
	f := newTestEngine(t, DefaultConfig())
	lotID := f.lots.add("Kite", 10)

	f.plock.set(true)
	assert.ErrorIs(t, f.engine.StartLot(ctx, lotID), ErrPresentationLocked)
	assert.Equal(t, models.LotStatusAvailable, f.lots.get(lotID).Status)

	f.plock.set(false)
	assert.NoError(t, f.engine.StartLot(ctx, lotID))
}

func TestEngine_StartLot_NotSellable(t *testing.T) {
	ctx := context.Background()
	f := newTestEngine(t, DefaultConfig())
	lotID := f.lots.add("Kite", 10)
	winner := f.bidders.add("A", 100)
	require.NoError(t, f.lots.MarkSold(ctx, lotID, winner, 10, time.Now()))

	assert.ErrorIs(t, f.engine.StartLot(ctx, lotID), ErrLotNotSellable)
}

func TestEngine_BiddingAndSettlement(t *testing.T) {
	ctx := context.Background()
	f := newTestEngine(t, DefaultConfig())
	lotID := f.lots.add("Kite", 10)
	alice := f.bidders.add("Alice", 100)
	bob := f.bidders.add("Bob", 100)

	require.NoError(t, f.engine.StartLot(ctx, lotID))

	// Alice opens at base price.
	require.NoError(t, f.engine.PlaceBid(ctx, alice, 10))

	// Bob matching the high bid is rejected; ties never stand.
	err := f.engine.PlaceBid(ctx, bob, 10)
	be, ok := AsBidError(err)
	require.True(t, ok)
	assert.Equal(t, RejectNotHigherThanCurrent, be.Reason)

	// Bob raises.
	require.NoError(t, f.engine.PlaceBid(ctx, bob, 11))

	// Alice answering with the same amount is rejected too.
	err = f.engine.PlaceBid(ctx, alice, 11)
	be, ok = AsBidError(err)
	require.True(t, ok)
	assert.Equal(t, RejectNotHigherThanCurrent, be.Reason)

	accepted := f.hub.waitFor(t, events.TypeBidAccepted, 2)
	assert.Len(t, accepted, 2)
	f.hub.waitFor(t, events.TypeTimerReset, 2)

	require.NoError(t, f.engine.ForceSell(ctx))

	lot := f.lots.get(lotID)
	assert.Equal(t, models.LotStatusSold, lot.Status)
	require.NotNil(t, lot.Winner)
	assert.Equal(t, bob, *lot.Winner)
	require.NotNil(t, lot.SoldPrice)
	assert.Equal(t, int64(11), *lot.SoldPrice)

	// Budget moves only at settlement, and only for the winner.
	assert.Equal(t, int64(89), f.bidders.get(bob).BudgetRemaining)
	assert.Equal(t, 1, f.bidders.get(bob).RosterCount)
	assert.Equal(t, int64(100), f.bidders.get(alice).BudgetRemaining)

	sold := f.hub.waitFor(t, events.TypeLotSold, 1)
	var payload events.LotSoldPayload
	decodePayload(t, sold[0], &payload)
	assert.Equal(t, bob, payload.WinnerID)
	assert.Equal(t, "Bob", payload.WinnerName)
	assert.Equal(t, int64(11), payload.Amount)

	snap, err := f.engine.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, snap.State.IsActive)
	require.Len(t, snap.State.RecentlySold, 1)
	assert.Equal(t, lotID, snap.State.RecentlySold[0].LotID)

	// The ledger kept both accepted bids.
	bids, err := f.ledger.FindBidsByLot(ctx, lotID)
	require.NoError(t, err)
	assert.Len(t, bids, 2)
}

func TestEngine_ForceSellTwiceDebitsOnce(t *testing.T) {
	ctx := context.Background()
	f := newTestEngine(t, DefaultConfig())
	lotID := f.lots.add("Kite", 10)
	alice := f.bidders.add("Alice", 100)

	require.NoError(t, f.engine.StartLot(ctx, lotID))
	require.NoError(t, f.engine.PlaceBid(ctx, alice, 10))

	require.NoError(t, f.engine.ForceSell(ctx))
	assert.ErrorIs(t, f.engine.ForceSell(ctx), ErrAuctionInactive)

	assert.Equal(t, int64(90), f.bidders.get(alice).BudgetRemaining)
	assert.Equal(t, 1, f.bidders.get(alice).RosterCount)
}

func TestEngine_ExpiryWithNoBidsGoesUnsold(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.CountdownSec = 2
	f := newTestEngine(t, cfg)
	lotID := f.lots.add("Kite", 10)

	require.NoError(t, f.engine.StartLot(ctx, lotID))
	f.clock.BlockUntil(1)

	for i := 0; i < 5 && len(f.hub.ofType(events.TypeLotUnsold)) == 0; i++ {
		f.clock.Advance(time.Second)
		time.Sleep(5 * time.Millisecond)
	}

	unsold := f.hub.waitFor(t, events.TypeLotUnsold, 1)
	var payload events.LotUnsoldPayload
	decodePayload(t, unsold[0], &payload)
	assert.Equal(t, lotID, payload.LotID)

	assert.Equal(t, models.LotStatusUnsold, f.lots.get(lotID).Status)

	snap, err := f.engine.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, snap.State.IsActive)
	assert.Nil(t, snap.State.CurrentLot)

	// An unsold lot can be put up again.
	assert.NoError(t, f.engine.StartLot(ctx, lotID))
}

func TestEngine_UndoSale(t *testing.T) {
	ctx := context.Background()
	f := newTestEngine(t, DefaultConfig())
	lotID := f.lots.add("Kite", 10)
	alice := f.bidders.add("Alice", 100)

	require.NoError(t, f.engine.StartLot(ctx, lotID))
	require.NoError(t, f.engine.PlaceBid(ctx, alice, 10))
	require.NoError(t, f.engine.ForceSell(ctx))

	require.NoError(t, f.engine.UndoSale(ctx, lotID))

	// Budget and roster restored, lot back to UNSOLD, history cleared.
	assert.Equal(t, int64(100), f.bidders.get(alice).BudgetRemaining)
	assert.Equal(t, 0, f.bidders.get(alice).RosterCount)
	assert.Equal(t, models.LotStatusUnsold, f.lots.get(lotID).Status)

	bids, err := f.ledger.FindBidsByLot(ctx, lotID)
	require.NoError(t, err)
	assert.Empty(t, bids)

	undone := f.hub.waitFor(t, events.TypeSaleUndone, 1)
	var payload events.SaleUndonePayload
	decodePayload(t, undone[0], &payload)
	assert.Equal(t, alice, payload.BidderID)
	assert.Equal(t, int64(10), payload.Amount)

	snap, err := f.engine.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.State.RecentlySold)

	// A second undo finds the lot UNSOLD and never credits twice.
	assert.ErrorIs(t, f.engine.UndoSale(ctx, lotID), ErrNotSold)
	assert.Equal(t, int64(100), f.bidders.get(alice).BudgetRemaining)
}

func TestEngine_UndoSale_NeverSold(t *testing.T) {
	ctx := context.Background()
	f := newTestEngine(t, DefaultConfig())
	lotID := f.lots.add("Kite", 10)

	assert.ErrorIs(t, f.engine.UndoSale(ctx, lotID), ErrNotSold)
}

// rendezvousLots holds GetLot callers at a barrier so concurrent undo
// attempts all observe the lot as SOLD before any of them proceeds.
type rendezvousLots struct {
	*memLots
	barrier *sync.WaitGroup
}

func (r *rendezvousLots) GetLot(ctx context.Context, id uuid.UUID) (*models.Lot, error) {
	lot, err := r.memLots.GetLot(ctx, id)
	if r.barrier != nil {
		r.barrier.Done()
		r.barrier.Wait()
	}
	return lot, err
}

func TestEngine_ConcurrentUndoCreditsOnce(t *testing.T) {
	ctx := context.Background()
	lots := &rendezvousLots{memLots: newMemLots()}
	bidders := newMemBidders()
	e := NewEngine(DefaultConfig(), lots, bidders, &memLedger{}, &memStates{}, &stubLock{}, &recordingHub{}, clockwork.NewFakeClock())
	require.NoError(t, e.Start(ctx))
	t.Cleanup(e.Stop)

	lotID := lots.add("Kite", 10)
	alice := bidders.add("Alice", 100)
	require.NoError(t, e.StartLot(ctx, lotID))
	require.NoError(t, e.PlaceBid(ctx, alice, 20))
	require.NoError(t, e.ForceSell(ctx))
	require.Equal(t, int64(80), bidders.get(alice).BudgetRemaining)

	// Two undos racing for the same sale, both reading SOLD. A control-UI
	// double click produces exactly this.
	var barrier sync.WaitGroup
	barrier.Add(2)
	lots.barrier = &barrier

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { errs <- e.UndoSale(ctx, lotID) }()
	}

	undone := 0
	for i := 0; i < 2; i++ {
		if err := <-errs; err == nil {
			undone++
		} else {
			require.ErrorIs(t, err, ErrNotSold)
		}
	}
	assert.Equal(t, 1, undone)

	// Credited exactly once.
	assert.Equal(t, int64(100), bidders.get(alice).BudgetRemaining)
	assert.Equal(t, 0, bidders.get(alice).RosterCount)
	assert.Equal(t, models.LotStatusUnsold, lots.get(lotID).Status)
}

func TestEngine_PauseResume(t *testing.T) {
	ctx := context.Background()
	f := newTestEngine(t, DefaultConfig())
	lotID := f.lots.add("Kite", 10)
	alice := f.bidders.add("Alice", 100)

	assert.ErrorIs(t, f.engine.Pause(ctx), ErrAuctionInactive)

	require.NoError(t, f.engine.StartLot(ctx, lotID))
	assert.ErrorIs(t, f.engine.Resume(ctx), ErrNotPaused)

	require.NoError(t, f.engine.Pause(ctx))
	f.hub.waitFor(t, events.TypeAuctionPaused, 1)

	// Bids are rejected while paused.
	err := f.engine.PlaceBid(ctx, alice, 10)
	be, ok := AsBidError(err)
	require.True(t, ok)
	assert.Equal(t, RejectAuctionInactive, be.Reason)

	// Pausing again is a no-op.
	require.NoError(t, f.engine.Pause(ctx))

	require.NoError(t, f.engine.Resume(ctx))
	resumed := f.hub.waitFor(t, events.TypeAuctionResumed, 1)
	var payload events.ResumedPayload
	decodePayload(t, resumed[0], &payload)
	assert.Equal(t, f.cfg.CountdownSec, payload.Remaining)

	// The high bid survived the pause and bidding works again.
	require.NoError(t, f.engine.PlaceBid(ctx, alice, 10))
}

func TestEngine_ConcurrentBidsSerialize(t *testing.T) {
	ctx := context.Background()
	f := newTestEngine(t, DefaultConfig())
	lotID := f.lots.add("Kite", 10)

	bidderIDs := make([]uuid.UUID, 8)
	for i := range bidderIDs {
		bidderIDs[i] = f.bidders.add("B", 100)
	}

	require.NoError(t, f.engine.StartLot(ctx, lotID))

	var wg sync.WaitGroup
	errs := make([]error, len(bidderIDs))
	for i, id := range bidderIDs {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			errs[i] = f.engine.PlaceBid(ctx, id, 10)
		}(i, id)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		be, ok := AsBidError(err)
		require.True(t, ok)
		assert.Equal(t, RejectNotHigherThanCurrent, be.Reason)
	}
	assert.Equal(t, 1, accepted)

	snap, err := f.engine.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), snap.State.CurrentHighBid.Amount)
	require.NotNil(t, snap.State.CurrentHighBid.Bidder)
}

func TestEngine_PlaceBid_StateSaveFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newTestEngine(t, DefaultConfig())
	lotID := f.lots.add("Kite", 10)
	alice := f.bidders.add("Alice", 100)

	require.NoError(t, f.engine.StartLot(ctx, lotID))

	f.states.failSave = true
	require.Error(t, f.engine.PlaceBid(ctx, alice, 10))

	snap, err := f.engine.Snapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap.State.CurrentHighBid.Bidder)

	// The same bid goes through once persistence recovers.
	require.NoError(t, f.engine.PlaceBid(ctx, alice, 10))
}

func TestEngine_StartResetsStaleActiveState(t *testing.T) {
	ctx := context.Background()
	lots := newMemLots()
	lotID := lots.add("Kite", 10)
	require.NoError(t, lots.MarkInAuction(ctx, lotID))

	states := &memStates{}
	stale := models.NewAuctionState(0)
	stale.IsActive = true
	stale.CurrentLot = &lotID
	require.NoError(t, states.SaveState(ctx, stale))

	e := NewEngine(DefaultConfig(), lots, newMemBidders(), &memLedger{}, states, &stubLock{}, &recordingHub{}, clockwork.NewFakeClock())
	require.NoError(t, e.Start(ctx))
	defer e.Stop()

	// A countdown cannot survive a restart; the lot returns to the pool.
	assert.Equal(t, models.LotStatusAvailable, lots.get(lotID).Status)

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, snap.State.IsActive)
	assert.Nil(t, snap.State.CurrentLot)
}

func TestEngine_SnapshotListsBidders(t *testing.T) {
	ctx := context.Background()
	f := newTestEngine(t, DefaultConfig())
	f.bidders.add("Alice", 100)
	f.bidders.add("Bob", 80)

	snap, err := f.engine.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Bidders, 2)
	assert.Equal(t, 0, snap.Remaining)
	assert.False(t, snap.AutoRun.Active)
}
