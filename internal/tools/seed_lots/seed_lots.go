package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openbid/auctiond/internal/dbconfig"
)

// Lot mirrors the lots.json layout. Missing ids are generated on insert.
type Lot struct {
	ID        *uuid.UUID `json:"id"`
	Name      string     `json:"name"`
	Category  string     `json:"category"`
	BasePrice int64      `json:"base_price"`
}

func main() {
	ctx := context.Background()

	path := "internal/assets/lots.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", path, err)
		os.Exit(1)
	}
	var lots []Lot
	if err := json.Unmarshal(data, &lots); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal lots: %v\n", err)
		os.Exit(1)
	}

	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect error: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	total, inserted, skipped, errs := len(lots), 0, 0, 0
	for _, l := range lots {
		id := uuid.New()
		if l.ID != nil {
			id = *l.ID
		}
		tag, err := pool.Exec(ctx, `
            INSERT INTO lots (
              id, name, category, base_price, status
            ) VALUES ($1,$2,$3,$4,'AVAILABLE')
            ON CONFLICT (id) DO NOTHING
        `, id, l.Name, l.Category, l.BasePrice)
		if err != nil {
			errs++
			continue
		}
		if tag.RowsAffected() == 1 {
			inserted++
		} else {
			skipped++
		}
	}
	fmt.Printf(
		"Lots seed: total=%d inserted=%d skipped=%d errors=%d\n",
		total, inserted, skipped, errs,
	)
}
