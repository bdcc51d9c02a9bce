package risk

import (
	"sync"
	"time"
)

// vectorPoint is one observed price vector at a point in time.
type vectorPoint struct {
	prices []float64
	ts     time.Time
}

// Tracker maintains a sliding window of price-vector observations per market
// and reports the largest per-bucket relative move within the window. It is
// the measurement half of the volatility circuit breaker.
type Tracker struct {
	mu      sync.RWMutex
	history map[string][]vectorPoint
	window  time.Duration
}

// NewTracker creates a Tracker with the given sliding window.
func NewTracker(window time.Duration) *Tracker {
	return &Tracker{
		history: make(map[string][]vectorPoint),
		window:  window,
	}
}

// Record appends a new observation and trims points outside the window.
// A change in vector length means the grid was resized; index alignment with
// older points is gone, so history restarts from this observation.
func (t *Tracker) Record(marketID string, prices []float64, ts time.Time) {
	cp := make([]float64, len(prices))
	copy(cp, prices)

	t.mu.Lock()
	defer t.mu.Unlock()

	pts := t.history[marketID]
	if len(pts) > 0 && len(pts[len(pts)-1].prices) != len(prices) {
		pts = nil
	}
	pts = append(pts, vectorPoint{prices: cp, ts: ts})

	cutoff := ts.Add(-t.window)
	i := 0
	for i < len(pts) && pts[i].ts.Before(cutoff) {
		i++
	}
	t.history[marketID] = pts[i:]
}

// MaxRelativeMove returns the largest |p_now - p_start| / p_start across
// buckets between the oldest and newest observations in the window, and the
// bucket index where it occurred. With fewer than two points it returns 0.
func (t *Tracker) MaxRelativeMove(marketID string) (float64, int) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pts := t.history[marketID]
	if len(pts) < 2 {
		return 0, -1
	}
	first, last := pts[0].prices, pts[len(pts)-1].prices

	var worst float64
	bucket := -1
	for k := range first {
		if first[k] <= 0 {
			continue
		}
		move := (last[k] - first[k]) / first[k]
		if move < 0 {
			move = -move
		}
		if move > worst {
			worst = move
			bucket = k
		}
	}
	return worst, bucket
}

// Reset discards all history for a market.
func (t *Tracker) Reset(marketID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.history, marketID)
}
