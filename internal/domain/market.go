package domain

import "time"

// Bucket is one interval [Low, High) of the continuous outcome axis. Buckets
// are contiguous and exhaustive over the market domain; Index is the bucket's
// stable position in the share vector until the next split remaps indices.
type Bucket struct {
	Low    float64 `json:"low"`
	High   float64 `json:"high"`
	Center float64 `json:"center"`
	Index  int     `json:"index"`
}

// Width returns the bucket's interval width.
func (b Bucket) Width() float64 {
	return b.High - b.Low
}

// Contains reports whether v falls inside [Low, High).
func (b Bucket) Contains(v float64) bool {
	return v >= b.Low && v < b.High
}

// MarketState is a consistent point-in-time snapshot of one market's AMM
// state. Prices are derived, never authoritative; Q and B are.
type MarketState struct {
	MarketID string    `json:"market_id"`
	Q        []float64 `json:"q"`
	B        float64   `json:"b"`
	Buckets  []Bucket  `json:"buckets"`
	Prices   []float64 `json:"prices"`
	NetCash  float64   `json:"net_cash"` // collected minus paid out since seeding
	Version  uint64    `json:"version"`  // bumped on every commit
	AsOf     time.Time `json:"as_of"`
}

// BucketQuote is the mid/bid/ask triple for a single bucket, where ask is
// the cost of buying one share and bid the proceeds of selling one.
type BucketQuote struct {
	Bucket Bucket  `json:"bucket"`
	Mid    float64 `json:"mid"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

// Trade is one committed fill against the AMM.
type Trade struct {
	ID         string    `json:"id"`
	MarketID   string    `json:"market_id"`
	OrderID    string    `json:"order_id"`
	User       string    `json:"user"`
	Side       OrderSide `json:"side"`
	Size       float64   `json:"size"`
	Payment    float64   `json:"payment"` // positive: trader paid the AMM
	AvgPrice   float64   `json:"avg_price"`
	ExecutedAt time.Time `json:"executed_at"`
}
