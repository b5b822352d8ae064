package models

import (
	"github.com/google/uuid"
)

// Bidder represents a participating team. BudgetRemaining never goes
// negative; RosterCount is tracked against MaxRosterSize but the cap is not
// enforced at settlement.
type Bidder struct {
	ID              uuid.UUID `json:"id"`
	DisplayName     string    `json:"display_name"`
	BudgetRemaining int64     `json:"budget_remaining"`
	RosterCount     int       `json:"roster_count"`
	MaxRosterSize   int       `json:"max_roster_size"`
	Online          bool      `json:"online"`
}
