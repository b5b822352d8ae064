package lot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openbid/auctiond/internal/auction"
	"github.com/openbid/auctiond/internal/models"
)

const lotCols = `id, name, category, base_price, status, winner_id, sold_price, sold_at`

// Repository implements auction.LotStore on PostgreSQL. Lot creation and
// deletion belong to the external catalog service; this repository only
// reads lots and transitions their status.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetLot(ctx context.Context, id uuid.UUID) (*models.Lot, error) {
	query := fmt.Sprintf(`SELECT %s FROM lots WHERE id = $1`, lotCols)

	var lot models.Lot
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&lot.ID, &lot.Name, &lot.Category, &lot.BasePrice, &lot.Status,
		&lot.Winner, &lot.SoldPrice, &lot.SoldAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auction.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lot %s: %w", id, err)
	}
	return &lot, nil
}

func (r *Repository) ListUnsoldLots(ctx context.Context) ([]models.Lot, error) {
	query := fmt.Sprintf(`SELECT %s FROM lots WHERE status != $1 ORDER BY base_price DESC, name`, lotCols)

	rows, err := r.pool.Query(ctx, query, models.LotStatusSold)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsold lots: %w", err)
	}
	defer rows.Close()

	var lots []models.Lot
	for rows.Next() {
		var lot models.Lot
		if err := rows.Scan(
			&lot.ID, &lot.Name, &lot.Category, &lot.BasePrice, &lot.Status,
			&lot.Winner, &lot.SoldPrice, &lot.SoldAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan lot: %w", err)
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func (r *Repository) MarkInAuction(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE lots SET status = $2 WHERE id = $1 AND status IN ($3, $4)`

	tag, err := r.pool.Exec(ctx, query, id,
		models.LotStatusInAuction, models.LotStatusAvailable, models.LotStatusUnsold)
	if err != nil {
		return fmt.Errorf("failed to mark lot %s in auction: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return auction.ErrLotNotSellable
	}
	return nil
}

func (r *Repository) MarkSold(ctx context.Context, id uuid.UUID, winner uuid.UUID, price int64, at time.Time) error {
	query := `UPDATE lots SET status = $2, winner_id = $3, sold_price = $4, sold_at = $5 WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, models.LotStatusSold, winner, price, at)
	if err != nil {
		return fmt.Errorf("failed to mark lot %s sold: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return auction.ErrNotFound
	}
	return nil
}

func (r *Repository) MarkUnsold(ctx context.Context, id uuid.UUID) error {
	return r.clearSale(ctx, id, models.LotStatusUnsold)
}

func (r *Repository) MarkAvailable(ctx context.Context, id uuid.UUID) error {
	return r.clearSale(ctx, id, models.LotStatusAvailable)
}

// RevokeSale is the undo path's SOLD → UNSOLD transition. The status guard
// makes it first-wins: a concurrent second undo updates zero rows and gets
// ErrNotSold instead of clearing (and crediting) the sale twice.
func (r *Repository) RevokeSale(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE lots SET status = $2, winner_id = NULL, sold_price = NULL, sold_at = NULL
		WHERE id = $1 AND status = $3`

	tag, err := r.pool.Exec(ctx, query, id, models.LotStatusUnsold, models.LotStatusSold)
	if err != nil {
		return fmt.Errorf("failed to revoke sale of lot %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return auction.ErrNotSold
	}
	return nil
}

func (r *Repository) clearSale(ctx context.Context, id uuid.UUID, status models.LotStatus) error {
	query := `UPDATE lots SET status = $2, winner_id = NULL, sold_price = NULL, sold_at = NULL WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to mark lot %s %s: %w", id, status, err)
	}
	if tag.RowsAffected() == 0 {
		return auction.ErrNotFound
	}
	return nil
}

var _ auction.LotStore = (*Repository)(nil)
