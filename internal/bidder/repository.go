package bidder

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openbid/auctiond/internal/auction"
	"github.com/openbid/auctiond/internal/models"
	"github.com/openbid/auctiond/internal/sqlutil"
)

// ErrInsufficientBudget is returned when a sale debit would drive a
// bidder's budget negative.
var ErrInsufficientBudget = errors.New("insufficient budget")

const bidderCols = `id, display_name, budget_remaining, roster_count, max_roster_size, online`

// Repository implements auction.BidderStore on PostgreSQL. Bidder creation
// and credential management belong to the external team service.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetBidder(ctx context.Context, id uuid.UUID) (*models.Bidder, error) {
	query := fmt.Sprintf(`SELECT %s FROM bidders WHERE id = $1`, bidderCols)

	var b models.Bidder
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&b.ID, &b.DisplayName, &b.BudgetRemaining, &b.RosterCount, &b.MaxRosterSize, &b.Online,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auction.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bidder %s: %w", id, err)
	}
	return &b, nil
}

func (r *Repository) ListBidders(ctx context.Context) ([]models.Bidder, error) {
	query := fmt.Sprintf(`SELECT %s FROM bidders ORDER BY display_name`, bidderCols)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list bidders: %w", err)
	}
	defer rows.Close()

	var bidders []models.Bidder
	for rows.Next() {
		var b models.Bidder
		if err := rows.Scan(
			&b.ID, &b.DisplayName, &b.BudgetRemaining, &b.RosterCount, &b.MaxRosterSize, &b.Online,
		); err != nil {
			return nil, fmt.Errorf("failed to scan bidder: %w", err)
		}
		bidders = append(bidders, b)
	}
	return bidders, rows.Err()
}

// ApplySale debits the winner's budget and increments the roster count in
// one transaction. The budget guard is re-checked under a row lock so the
// remaining budget never goes negative.
func (r *Repository) ApplySale(ctx context.Context, id uuid.UUID, amount int64) error {
	return sqlutil.Run(ctx, r.pool, func(tx pgx.Tx) error {
		var budget int64
		err := tx.QueryRow(ctx,
			`SELECT budget_remaining FROM bidders WHERE id = $1 FOR UPDATE`, id,
		).Scan(&budget)
		if errors.Is(err, pgx.ErrNoRows) {
			return auction.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock bidder %s: %w", id, err)
		}
		if budget < amount {
			return ErrInsufficientBudget
		}

		_, err = tx.Exec(ctx,
			`UPDATE bidders SET budget_remaining = budget_remaining - $2, roster_count = roster_count + 1 WHERE id = $1`,
			id, amount,
		)
		if err != nil {
			return fmt.Errorf("failed to debit bidder %s: %w", id, err)
		}
		return nil
	})
}

// RevertSale credits the budget back and decrements the roster count.
func (r *Repository) RevertSale(ctx context.Context, id uuid.UUID, amount int64) error {
	query := `UPDATE bidders
		SET budget_remaining = budget_remaining + $2,
		    roster_count = GREATEST(roster_count - 1, 0)
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, amount)
	if err != nil {
		return fmt.Errorf("failed to credit bidder %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return auction.ErrNotFound
	}
	return nil
}

func (r *Repository) SetOnline(ctx context.Context, id uuid.UUID, online bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE bidders SET online = $2 WHERE id = $1`, id, online)
	if err != nil {
		return fmt.Errorf("failed to set bidder %s online=%t: %w", id, online, err)
	}
	if tag.RowsAffected() == 0 {
		return auction.ErrNotFound
	}
	return nil
}

// GetCredential returns the stored PIN hash for gateway authentication.
func (r *Repository) GetCredential(ctx context.Context, id uuid.UUID) (string, error) {
	var hash string
	err := r.pool.QueryRow(ctx, `SELECT pin_hash FROM bidders WHERE id = $1`, id).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", auction.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get credential for bidder %s: %w", id, err)
	}
	return hash, nil
}

var _ auction.BidderStore = (*Repository)(nil)
