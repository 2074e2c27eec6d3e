package domain

import "time"

// PositionRecord entry in the open-position store. The duplicate-position
// gate is account independent, so a symbol holds one record no matter how
// many accounts filled.
type PositionRecord struct {
	Pair     Pair      `json:"pair"`
	Side     Side      `json:"side"`
	OpenedAt time.Time `json:"opened_at"`
	// Accounts IDs that reported a successful entry.
	Accounts []string `json:"accounts"`
}
