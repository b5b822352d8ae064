package auction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/openbid/auctiond/internal/auction/events"
	"github.com/openbid/auctiond/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory stores backing the engine under test
// ---------------------------------------------------------------------------

type memLots struct {
	mu   sync.Mutex
	lots map[uuid.UUID]*models.Lot
}

func newMemLots() *memLots {
	return &memLots{lots: make(map[uuid.UUID]*models.Lot)}
}

func (m *memLots) add(name string, basePrice int64) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.lots[id] = &models.Lot{
		ID:        id,
		Name:      name,
		BasePrice: basePrice,
		Status:    models.LotStatusAvailable,
	}
	return id
}

func (m *memLots) get(id uuid.UUID) models.Lot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.lots[id]
}

func (m *memLots) GetLot(_ context.Context, id uuid.UUID) (*models.Lot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lot, ok := m.lots[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *lot
	return &clone, nil
}

func (m *memLots) ListUnsoldLots(_ context.Context) ([]models.Lot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Lot
	for _, lot := range m.lots {
		if lot.Status != models.LotStatusSold {
			out = append(out, *lot)
		}
	}
	return out, nil
}

func (m *memLots) MarkInAuction(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lot, ok := m.lots[id]
	if !ok {
		return ErrNotFound
	}
	if !lot.IsSellable() {
		return ErrLotNotSellable
	}
	lot.Status = models.LotStatusInAuction
	return nil
}

func (m *memLots) MarkAvailable(_ context.Context, id uuid.UUID) error {
	return m.clearSale(id, models.LotStatusAvailable)
}

func (m *memLots) MarkSold(_ context.Context, id uuid.UUID, winner uuid.UUID, price int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lot, ok := m.lots[id]
	if !ok {
		return ErrNotFound
	}
	lot.Status = models.LotStatusSold
	lot.Winner = &winner
	lot.SoldPrice = &price
	lot.SoldAt = &at
	return nil
}

func (m *memLots) MarkUnsold(_ context.Context, id uuid.UUID) error {
	return m.clearSale(id, models.LotStatusUnsold)
}

// RevokeSale mirrors the repository's status guard: only a SOLD lot can be
// reverted, anything else is ErrNotSold.
func (m *memLots) RevokeSale(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lot, ok := m.lots[id]
	if !ok || lot.Status != models.LotStatusSold {
		return ErrNotSold
	}
	lot.Status = models.LotStatusUnsold
	lot.Winner = nil
	lot.SoldPrice = nil
	lot.SoldAt = nil
	return nil
}

func (m *memLots) clearSale(id uuid.UUID, status models.LotStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lot, ok := m.lots[id]
	if !ok {
		return ErrNotFound
	}
	lot.Status = status
	lot.Winner = nil
	lot.SoldPrice = nil
	lot.SoldAt = nil
	return nil
}

type memBidders struct {
	mu      sync.Mutex
	bidders map[uuid.UUID]*models.Bidder
}

func newMemBidders() *memBidders {
	return &memBidders{bidders: make(map[uuid.UUID]*models.Bidder)}
}

func (m *memBidders) add(name string, budget int64) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.bidders[id] = &models.Bidder{
		ID:              id,
		DisplayName:     name,
		BudgetRemaining: budget,
	}
	return id
}

func (m *memBidders) get(id uuid.UUID) models.Bidder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.bidders[id]
}

func (m *memBidders) GetBidder(_ context.Context, id uuid.UUID) (*models.Bidder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bidders[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *b
	return &clone, nil
}

func (m *memBidders) ListBidders(_ context.Context) ([]models.Bidder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Bidder
	for _, b := range m.bidders {
		out = append(out, *b)
	}
	return out, nil
}

func (m *memBidders) ApplySale(_ context.Context, id uuid.UUID, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bidders[id]
	if !ok {
		return ErrNotFound
	}
	if amount > b.BudgetRemaining {
		return errors.New("insufficient budget")
	}
	b.BudgetRemaining -= amount
	b.RosterCount++
	return nil
}

func (m *memBidders) RevertSale(_ context.Context, id uuid.UUID, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bidders[id]
	if !ok {
		return ErrNotFound
	}
	b.BudgetRemaining += amount
	if b.RosterCount > 0 {
		b.RosterCount--
	}
	return nil
}

func (m *memBidders) SetOnline(_ context.Context, id uuid.UUID, online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bidders[id]
	if !ok {
		return ErrNotFound
	}
	b.Online = online
	return nil
}

type memLedger struct {
	mu   sync.Mutex
	bids []models.Bid
}

func (m *memLedger) AppendBid(_ context.Context, bid models.Bid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bids = append(m.bids, bid)
	return nil
}

func (m *memLedger) FindBidsByLot(_ context.Context, lotID uuid.UUID) ([]models.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Bid
	for _, b := range m.bids {
		if b.LotID == lotID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memLedger) DeleteBidsByLot(_ context.Context, lotID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.bids[:0]
	for _, b := range m.bids {
		if b.LotID != lotID {
			kept = append(kept, b)
		}
	}
	m.bids = kept
	return nil
}

type memStates struct {
	mu       sync.Mutex
	state    *models.AuctionState
	failSave bool // next SaveState fails when set
}

func (m *memStates) GetState(_ context.Context) (*models.AuctionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return nil, ErrNotFound
	}
	return m.state.Clone(), nil
}

func (m *memStates) SaveState(_ context.Context, state *models.AuctionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		m.failSave = false
		return errors.New("save failed")
	}
	m.state = state.Clone()
	return nil
}

type stubLock struct {
	mu   sync.Mutex
	held bool
	err  error
}

func (l *stubLock) Held(_ context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held, l.err
}

func (l *stubLock) set(held bool) {
	l.mu.Lock()
	l.held = held
	l.mu.Unlock()
}

// recordingHub captures broadcast events for assertions.
type recordingHub struct {
	mu      sync.Mutex
	all     []events.Event
	control []events.Event
}

func (h *recordingHub) Broadcast(evt events.Event) {
	h.mu.Lock()
	h.all = append(h.all, evt)
	h.mu.Unlock()
}

func (h *recordingHub) BroadcastControl(evt events.Event) {
	h.mu.Lock()
	h.control = append(h.control, evt)
	h.mu.Unlock()
}

func (h *recordingHub) ofType(typ events.Type) []events.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []events.Event
	for _, evt := range h.all {
		if evt.Type == typ {
			out = append(out, evt)
		}
	}
	return out
}

func (h *recordingHub) controlOfType(typ events.Type) []events.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []events.Event
	for _, evt := range h.control {
		if evt.Type == typ {
			out = append(out, evt)
		}
	}
	return out
}

// waitFor blocks until at least n events of the type were broadcast. The
// countdown and the cooldown trigger run on their own goroutines, so event
// arrival is asynchronous even under a fake clock.
func (h *recordingHub) waitFor(t *testing.T, typ events.Type, n int) []events.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := h.ofType(typ); len(got) >= n {
			return got
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %s event(s), have %d", n, typ, len(h.ofType(typ)))
	return nil
}

func (h *recordingHub) waitForControl(t *testing.T, typ events.Type, n int) []events.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := h.controlOfType(typ); len(got) >= n {
			return got
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d control %s event(s), have %d", n, typ, len(h.controlOfType(typ)))
	return nil
}
