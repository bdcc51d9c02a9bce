package domain

import "time"

// Position is one user's signed share count in one bucket of one market.
// The engine's in-memory position vectors are authoritative; rows exist for
// persistence and reporting, keyed by (market, user, bucket index). A split
// rewrites every row of the affected market in the same transaction that
// resizes the share vector.
type Position struct {
	MarketID  string    `json:"market_id"`
	User      string    `json:"user"`
	Bucket    int       `json:"bucket"`
	Shares    float64   `json:"shares"`
	UpdatedAt time.Time `json:"updated_at"`
}
