package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func soldEntry(amount int64) SoldSummary {
	return SoldSummary{
		LotID:    uuid.New(),
		WinnerID: uuid.New(),
		Amount:   amount,
		SoldAt:   time.Now(),
	}
}

func TestAuctionState_PrependSoldEvictsBeyondCap(t *testing.T) {
	st := NewAuctionState(0)

	for i := 0; i < RecentlySoldCap+3; i++ {
		st.PrependSold(soldEntry(int64(i)))
	}

	require.Len(t, st.RecentlySold, RecentlySoldCap)
	// Newest first; the three oldest entries fell off.
	assert.Equal(t, int64(RecentlySoldCap+2), st.RecentlySold[0].Amount)
	assert.Equal(t, int64(3), st.RecentlySold[RecentlySoldCap-1].Amount)
}

func TestAuctionState_RemoveSold(t *testing.T) {
	st := NewAuctionState(0)
	keep := soldEntry(1)
	drop := soldEntry(2)
	st.PrependSold(keep)
	st.PrependSold(drop)

	st.RemoveSold(drop.LotID)

	require.Len(t, st.RecentlySold, 1)
	assert.Equal(t, keep.LotID, st.RecentlySold[0].LotID)

	// Removing an absent lot is a no-op.
	st.RemoveSold(uuid.New())
	assert.Len(t, st.RecentlySold, 1)
}

func TestAuctionState_CloneIsDeep(t *testing.T) {
	lotID := uuid.New()
	bidderID := uuid.New()
	now := time.Now()

	st := NewAuctionState(0)
	st.CurrentLot = &lotID
	st.CurrentHighBid = HighBid{Amount: 42, Bidder: &bidderID}
	st.LastBidAt = &now
	st.IsActive = true
	st.PrependSold(soldEntry(7))

	cp := st.Clone()
	require.Equal(t, st, cp)

	// Mutating the clone must not reach the original.
	*cp.CurrentLot = uuid.New()
	*cp.CurrentHighBid.Bidder = uuid.New()
	cp.RecentlySold[0].Amount = 99

	assert.Equal(t, lotID, *st.CurrentLot)
	assert.Equal(t, bidderID, *st.CurrentHighBid.Bidder)
	assert.Equal(t, int64(7), st.RecentlySold[0].Amount)
}
