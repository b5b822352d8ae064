package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/openbid/auctiond/internal/dbconfig"
)

// Bidder mirrors the bidders.json layout. PINs are stored only as bcrypt
// hashes; the plaintext exists just in the seed file.
type Bidder struct {
	ID            *uuid.UUID `json:"id"`
	DisplayName   string     `json:"display_name"`
	Budget        int64      `json:"budget"`
	MaxRosterSize int        `json:"max_roster_size"`
	PIN           string     `json:"pin"`
}

func main() {
	ctx := context.Background()

	path := "internal/assets/bidders.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", path, err)
		os.Exit(1)
	}
	var bidders []Bidder
	if err := json.Unmarshal(data, &bidders); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal bidders: %v\n", err)
		os.Exit(1)
	}

	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect error: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	total, inserted, skipped, errs := len(bidders), 0, 0, 0
	for _, b := range bidders {
		hash, err := bcrypt.GenerateFromPassword([]byte(b.PIN), bcrypt.DefaultCost)
		if err != nil {
			errs++
			continue
		}

		id := uuid.New()
		if b.ID != nil {
			id = *b.ID
		}
		tag, err := pool.Exec(ctx, `
            INSERT INTO bidders (
              id, display_name, budget_remaining, roster_count, max_roster_size, pin_hash, online
            ) VALUES ($1,$2,$3,0,$4,$5,false)
            ON CONFLICT (id) DO NOTHING
        `, id, b.DisplayName, b.Budget, b.MaxRosterSize, string(hash))
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
		"Bidders seed: total=%d inserted=%d skipped=%d errors=%d\n",
		total, inserted, skipped, errs,
	)
}
