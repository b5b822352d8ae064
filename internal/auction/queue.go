package auction

import (
	"math/rand"
	"sort"

	"github.com/google/uuid"

	"github.com/openbid/auctiond/internal/models"
)

// LotQueue holds the auto-run sequence: a primary queue of lot ids plus the
// unsold-carry list for the next round. Not safe for concurrent use; the
// engine serializes access.
type LotQueue struct {
	rng      *rand.Rand
	primary  []uuid.UUID
	carry    []uuid.UUID
	carrySet map[uuid.UUID]struct{}
	round    int
}

// NewLotQueue builds an empty queue using the given randomness source for
// in-group shuffling.
func NewLotQueue(rng *rand.Rand) *LotQueue {
	return &LotQueue{
		rng:      rng,
		carrySet: make(map[uuid.UUID]struct{}),
	}
}

// Build replaces the queue contents from the given lots. Sold lots and a lot
// currently in auction are excluded (a running lot re-enters via the carry
// list if it settles unsold, never through the primary queue); the rest are
// grouped by base price, groups ordered descending (higher-value lots
// first), each group shuffled, then concatenated. The carry list starts
// empty and the round counter resets to 1.
func (q *LotQueue) Build(lots []models.Lot) {
	groups := make(map[int64][]uuid.UUID)
	for _, lot := range lots {
		if lot.Status == models.LotStatusSold || lot.Status == models.LotStatusInAuction {
			continue
		}
		groups[lot.BasePrice] = append(groups[lot.BasePrice], lot.ID)
	}

	prices := make([]int64, 0, len(groups))
	for price := range groups {
		prices = append(prices, price)
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i] > prices[j] })

	q.primary = q.primary[:0]
	for _, price := range prices {
		group := groups[price]
		q.rng.Shuffle(len(group), func(i, j int) {
			group[i], group[j] = group[j], group[i]
		})
		q.primary = append(q.primary, group...)
	}

	q.carry = nil
	q.carrySet = make(map[uuid.UUID]struct{})
	q.round = 1
}

// Advance pops the next lot id. When the primary queue is exhausted and the
// carry list holds unsold lots, the carry list becomes the new primary
// queue, the round counter increments, and newRound reports the rollover.
// ok is false when both are empty (auto-run is done). The rollover loop is
// iterative; there is no recursion on repeatedly-unsold cycles.
func (q *LotQueue) Advance() (id uuid.UUID, newRound bool, ok bool) {
	for {
		if len(q.primary) > 0 {
			id = q.primary[0]
			q.primary = q.primary[1:]
			return id, newRound, true
		}
		if len(q.carry) == 0 {
			return uuid.Nil, newRound, false
		}
		q.primary = q.carry
		q.carry = nil
		q.carrySet = make(map[uuid.UUID]struct{})
		q.round++
		newRound = true
	}
}

// AddCarry appends a lot to the unsold-carry list. Idempotent: a lot already
// carried is not added twice. Reports whether the lot was appended.
func (q *LotQueue) AddCarry(id uuid.UUID) bool {
	if _, dup := q.carrySet[id]; dup {
		return false
	}
	q.carrySet[id] = struct{}{}
	q.carry = append(q.carry, id)
	return true
}

// PushFront puts a popped lot back at the head of the primary queue, for
// start attempts deferred by the presentation lock.
func (q *LotQueue) PushFront(id uuid.UUID) {
	q.primary = append([]uuid.UUID{id}, q.primary...)
}

// Reset drops all queue contents.
func (q *LotQueue) Reset() {
	q.primary = nil
	q.carry = nil
	q.carrySet = make(map[uuid.UUID]struct{})
	q.round = 0
}

// Len returns the primary queue length.
func (q *LotQueue) Len() int { return len(q.primary) }

// CarryLen returns the carry list length.
func (q *LotQueue) CarryLen() int { return len(q.carry) }

// Round returns the current round number, starting at 1 after Build.
func (q *LotQueue) Round() int { return q.round }
