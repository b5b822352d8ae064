package auctionstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openbid/auctiond/internal/auction"
	"github.com/openbid/auctiond/internal/models"
)

// Repository implements auction.StateStore on PostgreSQL. The auction_state
// table holds exactly one row, keyed by a constant-true primary key.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetState(ctx context.Context) (*models.AuctionState, error) {
	query := `SELECT current_lot_id, high_bid_amount, high_bidder_id, is_active, is_paused,
		last_bid_at, auction_started_at, recently_sold
		FROM auction_state WHERE id`

	var st models.AuctionState
	var recentlySold []byte
	err := r.pool.QueryRow(ctx, query).Scan(
		&st.CurrentLot, &st.CurrentHighBid.Amount, &st.CurrentHighBid.Bidder,
		&st.IsActive, &st.IsPaused, &st.LastBidAt, &st.AuctionStartedAt, &recentlySold,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auction.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get auction state: %w", err)
	}

	st.RecentlySold = []models.SoldSummary{}
	if len(recentlySold) > 0 {
		if err := json.Unmarshal(recentlySold, &st.RecentlySold); err != nil {
			return nil, fmt.Errorf("failed to decode recently sold ring: %w", err)
		}
	}
	return &st, nil
}

func (r *Repository) SaveState(ctx context.Context, state *models.AuctionState) error {
	recentlySold, err := json.Marshal(state.RecentlySold)
	if err != nil {
		return fmt.Errorf("failed to encode recently sold ring: %w", err)
	}

	query := `INSERT INTO auction_state (
			id, current_lot_id, high_bid_amount, high_bidder_id, is_active, is_paused,
			last_bid_at, auction_started_at, recently_sold
		) VALUES (TRUE, $1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			current_lot_id = EXCLUDED.current_lot_id,
			high_bid_amount = EXCLUDED.high_bid_amount,
			high_bidder_id = EXCLUDED.high_bidder_id,
			is_active = EXCLUDED.is_active,
			is_paused = EXCLUDED.is_paused,
			last_bid_at = EXCLUDED.last_bid_at,
			auction_started_at = EXCLUDED.auction_started_at,
			recently_sold = EXCLUDED.recently_sold`

	_, err = r.pool.Exec(ctx, query,
		state.CurrentLot, state.CurrentHighBid.Amount, state.CurrentHighBid.Bidder,
		state.IsActive, state.IsPaused, state.LastBidAt, state.AuctionStartedAt, recentlySold,
	)
	if err != nil {
		return fmt.Errorf("failed to save auction state: %w", err)
	}
	return nil
}

var _ auction.StateStore = (*Repository)(nil)
