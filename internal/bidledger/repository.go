package bidledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openbid/auctiond/internal/auction"
	"github.com/openbid/auctiond/internal/models"
)

// Repository implements auction.BidLedger on PostgreSQL. The ledger is an
// append-only audit trail; rows are deleted only when a sale is undone.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) AppendBid(ctx context.Context, bid models.Bid) error {
	query := `INSERT INTO bids (id, lot_id, bidder_id, amount, placed_at) VALUES ($1, $2, $3, $4, $5)`

	_, err := r.pool.Exec(ctx, query, bid.ID, bid.LotID, bid.BidderID, bid.Amount, bid.PlacedAt)
	if err != nil {
		return fmt.Errorf("failed to append bid %s: %w", bid.ID, err)
	}
	return nil
}

func (r *Repository) FindBidsByLot(ctx context.Context, lotID uuid.UUID) ([]models.Bid, error) {
	query := `SELECT id, lot_id, bidder_id, amount, placed_at FROM bids WHERE lot_id = $1 ORDER BY placed_at`

	rows, err := r.pool.Query(ctx, query, lotID)
	if err != nil {
		return nil, fmt.Errorf("failed to find bids for lot %s: %w", lotID, err)
	}
	defer rows.Close()

	var bids []models.Bid
	for rows.Next() {
		var b models.Bid
		if err := rows.Scan(&b.ID, &b.LotID, &b.BidderID, &b.Amount, &b.PlacedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

func (r *Repository) DeleteBidsByLot(ctx context.Context, lotID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM bids WHERE lot_id = $1`, lotID)
	if err != nil {
		return fmt.Errorf("failed to delete bids for lot %s: %w", lotID, err)
	}
	return nil
}

var _ auction.BidLedger = (*Repository)(nil)
