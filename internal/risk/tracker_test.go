package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackerMaxRelativeMove(t *testing.T) {
	tr := NewTracker(time.Hour)
	now := time.Now()

	move, bucket := tr.MaxRelativeMove("m")
	assert.Zero(t, move)
	assert.Equal(t, -1, bucket)

	tr.Record("m", []float64{0.50, 0.30, 0.20}, now)
	tr.Record("m", []float64{0.40, 0.45, 0.15}, now.Add(time.Minute))

	move, bucket = tr.MaxRelativeMove("m")
	assert.InDelta(t, 0.5, move, 1e-12) // bucket 1: 0.30 -> 0.45
	assert.Equal(t, 1, bucket)
}

func TestTrackerWindowTrim(t *testing.T) {
	tr := NewTracker(10 * time.Minute)
	now := time.Now()

	tr.Record("m", []float64{0.50, 0.50}, now)
	tr.Record("m", []float64{0.10, 0.90}, now.Add(time.Hour))

	// The first point fell out of the window, leaving a single observation.
	move, _ := tr.MaxRelativeMove("m")
	assert.Zero(t, move)
}

func TestTrackerResetsOnGridResize(t *testing.T) {
	tr := NewTracker(time.Hour)
	now := time.Now()

	tr.Record("m", []float64{0.50, 0.50}, now)
	tr.Record("m", []float64{0.10, 0.40, 0.50}, now.Add(time.Minute))

	// Index alignment is gone after a resize; history restarts.
	move, _ := tr.MaxRelativeMove("m")
	assert.Zero(t, move)
}

func TestTrackerReset(t *testing.T) {
	tr := NewTracker(time.Hour)
	now := time.Now()

	tr.Record("m", []float64{0.5, 0.5}, now)
	tr.Record("m", []float64{0.1, 0.9}, now.Add(time.Minute))
	tr.Reset("m")

	move, _ := tr.MaxRelativeMove("m")
	assert.Zero(t, move)
}
