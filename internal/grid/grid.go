// Package grid manages the bucket partition of a market's outcome axis.
//
// A grid is a contiguous, exhaustive list of [low, high) buckets over the
// configured domain. It only ever changes in two ways: appending buckets at
// the top when an out-of-range value must become tradeable, and splitting one
// bucket in two at an interior point. Both happen inside the owning market's
// exclusive writer section because they resize every index-keyed vector.
package grid

import (
	"fmt"
	"math"
	"sort"

	"github.com/quantish/rangemaker/internal/domain"
)

// Policy selects how bucket widths are generated.
type Policy string

const (
	// PolicyFixed cuts the domain into equal-width buckets.
	PolicyFixed Policy = "fixed"
	// PolicyLogDecade cuts at a repeating multiplicative pattern across
	// decades, e.g. 5, 10, 25, 50, 100, 250, 500 (in units of PatternBase).
	PolicyLogDecade Policy = "log_decade"
)

// DefaultPattern is the log-decade cut pattern used for valuation markets.
var DefaultPattern = []float64{5, 10, 25, 50}

// DefaultPatternBase anchors the pattern at $1M.
const DefaultPatternBase = 1e6

// boundaryTol is the relative tolerance for treating a value as an existing
// bucket boundary.
const boundaryTol = 1e-9

// DefaultCeiling is the exclusive cap on upward extension when the config
// does not set one. Values at or above it are never tradeable.
const DefaultCeiling = 1e12

// MaxBuckets bounds how many buckets any grid may hold, initial partition and
// extensions combined.
const MaxBuckets = 10_000

// Config describes the initial partition.
type Config struct {
	Min         float64
	Max         float64
	Policy      Policy
	FixedWidth  float64   // PolicyFixed only
	Pattern     []float64 // PolicyLogDecade; DefaultPattern when empty
	PatternBase float64   // PolicyLogDecade; DefaultPatternBase when zero
	Ceiling     float64   // extension cap, exclusive; DefaultCeiling when zero
}

// Grid owns the bucket list for one market. It is not internally locked; the
// owning market serializes all mutating access.
type Grid struct {
	cfg     Config
	buckets []domain.Bucket
}

// SplitResult reports the outcome of a Split call.
type SplitResult struct {
	// Index is the bucket at the split point. After a split it names the
	// left half; for a no-op it names the existing bucket starting there.
	Index int
	// Created is false when the value was already a boundary (no-op).
	Created bool
	// LeftFrac is the left half's share of the original width.
	LeftFrac float64
}

// New builds the initial partition.
func New(cfg Config) (*Grid, error) {
	if cfg.Min >= cfg.Max {
		return nil, fmt.Errorf("grid: min %g >= max %g: %w", cfg.Min, cfg.Max, domain.ErrConfig)
	}
	if cfg.Ceiling == 0 {
		cfg.Ceiling = DefaultCeiling
	}
	if cfg.Ceiling < cfg.Max {
		return nil, fmt.Errorf("grid: ceiling %g below max %g: %w", cfg.Ceiling, cfg.Max, domain.ErrConfig)
	}

	g := &Grid{cfg: cfg}

	switch cfg.Policy {
	case PolicyFixed:
		if cfg.FixedWidth <= 0 {
			return nil, fmt.Errorf("grid: fixed width %g yields no buckets: %w", cfg.FixedWidth, domain.ErrConfig)
		}
	case PolicyLogDecade:
		if cfg.Min <= 0 {
			return nil, fmt.Errorf("grid: log-decade grid requires min > 0, got %g: %w", cfg.Min, domain.ErrConfig)
		}
		if len(g.cfg.Pattern) == 0 {
			g.cfg.Pattern = DefaultPattern
		}
		if g.cfg.PatternBase == 0 {
			g.cfg.PatternBase = DefaultPatternBase
		}
		for i, m := range g.cfg.Pattern {
			if m <= 0 || (i > 0 && m <= g.cfg.Pattern[i-1]) {
				return nil, fmt.Errorf("grid: pattern must be positive and increasing: %w", domain.ErrConfig)
			}
		}
	default:
		return nil, fmt.Errorf("grid: unknown policy %q: %w", cfg.Policy, domain.ErrConfig)
	}

	cuts := g.interiorCuts(cfg.Min, cfg.Max)
	lows := append([]float64{cfg.Min}, cuts...)
	for i, low := range lows {
		high := cfg.Max
		if i < len(cuts) {
			high = cuts[i]
		}
		g.buckets = append(g.buckets, makeBucket(low, high, i))
	}
	if len(g.buckets) > MaxBuckets {
		return nil, fmt.Errorf("grid: %d buckets exceeds the %d bucket cap: %w", len(g.buckets), MaxBuckets, domain.ErrConfig)
	}
	return g, nil
}

// interiorCuts returns the policy's cut points strictly inside (min, max),
// ascending.
func (g *Grid) interiorCuts(min, max float64) []float64 {
	var cuts []float64
	switch g.cfg.Policy {
	case PolicyFixed:
		for c := min + g.cfg.FixedWidth; c < max && !closeTo(c, max); c += g.cfg.FixedWidth {
			cuts = append(cuts, c)
		}
	case PolicyLogDecade:
		for c := g.nextBoundary(min); c < max && !closeTo(c, max); c = g.nextBoundary(c) {
			cuts = append(cuts, c)
		}
	}
	return cuts
}

// nextBoundary returns the smallest pattern boundary strictly above after.
func (g *Grid) nextBoundary(after float64) float64 {
	pattern := g.cfg.Pattern
	base := g.cfg.PatternBase

	// Start one decade below the candidate so the scan cannot skip the
	// first boundary above after.
	d := math.Floor(math.Log10(math.Max(after, pattern[0]*base) / (pattern[0] * base)))
	for dec := d - 1; ; dec++ {
		scale := math.Pow(10, dec) * base
		for _, m := range pattern {
			if b := m * scale; b > after && !closeTo(b, after) {
				return b
			}
		}
	}
}

// Len returns the current bucket count.
func (g *Grid) Len() int {
	return len(g.buckets)
}

// Buckets returns a copy of the bucket list, safe for callers to keep.
func (g *Grid) Buckets() []domain.Bucket {
	out := make([]domain.Bucket, len(g.buckets))
	copy(out, g.buckets)
	return out
}

// Bucket returns the bucket at index i.
func (g *Grid) Bucket(i int) domain.Bucket {
	return g.buckets[i]
}

// UpperBound returns the current exclusive top of the domain.
func (g *Grid) UpperBound() float64 {
	return g.buckets[len(g.buckets)-1].High
}

// Min returns the inclusive bottom of the domain. It never changes.
func (g *Grid) Min() float64 {
	return g.buckets[0].Low
}

// Locate returns the index of the bucket containing value, extending the grid
// upward first when the value lies at or above the current upper bound.
// Extension only appends: existing boundaries and indices are untouched. The
// second return is the number of buckets appended (zero for in-range values).
// Values at or above the ceiling, or needing more than MaxBuckets total, are
// rejected before anything is appended.
func (g *Grid) Locate(value float64) (int, int, error) {
	if math.IsNaN(value) || value < g.Min() {
		return 0, 0, fmt.Errorf("grid: value %g below domain minimum %g: %w", value, g.Min(), domain.ErrDomain)
	}
	if value >= g.cfg.Ceiling {
		return 0, 0, fmt.Errorf("grid: value %g at or above ceiling %g: %w", value, g.cfg.Ceiling, domain.ErrDomain)
	}

	appended, err := g.extensionCount(value)
	if err != nil {
		return 0, 0, err
	}
	for i := 0; i < appended; i++ {
		g.appendBucket()
	}

	// First bucket whose high exceeds value.
	i := sort.Search(len(g.buckets), func(i int) bool {
		return g.buckets[i].High > value
	})
	return i, appended, nil
}

// extensionCount counts the buckets an extension covering value would append,
// without touching the bucket list, so an over-cap request fails atomically.
func (g *Grid) extensionCount(value float64) (int, error) {
	count := 0
	upper := g.UpperBound()
	for value >= upper {
		if len(g.buckets)+count >= MaxBuckets {
			return 0, fmt.Errorf("grid: extending to %g exceeds the %d bucket cap: %w", value, MaxBuckets, domain.ErrDomain)
		}
		switch g.cfg.Policy {
		case PolicyLogDecade:
			upper = g.nextBoundary(upper)
		default:
			upper += g.cfg.FixedWidth
		}
		count++
	}
	return count, nil
}

// appendBucket appends one policy-shaped bucket above the current top.
func (g *Grid) appendBucket() {
	low := g.UpperBound()
	var high float64
	switch g.cfg.Policy {
	case PolicyLogDecade:
		high = g.nextBoundary(low)
	default:
		high = low + g.cfg.FixedWidth
	}
	g.buckets = append(g.buckets, makeBucket(low, high, len(g.buckets)))
}

// Split cuts the bucket containing value in two at value. When value already
// sits on a boundary this is a no-op returning the existing index. Values
// outside the current domain are a caller error; extend via Locate first.
func (g *Grid) Split(value float64) (SplitResult, error) {
	if value < g.Min() || value >= g.UpperBound() {
		return SplitResult{}, fmt.Errorf("grid: split point %g outside domain [%g, %g): %w",
			value, g.Min(), g.UpperBound(), domain.ErrDomain)
	}

	i := sort.Search(len(g.buckets), func(i int) bool {
		return g.buckets[i].High > value
	})
	bk := g.buckets[i]

	if closeTo(value, bk.Low) {
		return SplitResult{Index: i, Created: false, LeftFrac: 0}, nil
	}

	leftFrac := (value - bk.Low) / bk.Width()
	left := makeBucket(bk.Low, value, i)
	right := makeBucket(value, bk.High, i+1)

	g.buckets = append(g.buckets, domain.Bucket{})
	copy(g.buckets[i+2:], g.buckets[i+1:])
	g.buckets[i] = left
	g.buckets[i+1] = right
	for j := i + 2; j < len(g.buckets); j++ {
		g.buckets[j].Index = j
	}

	return SplitResult{Index: i, Created: true, LeftFrac: leftFrac}, nil
}

// Validate checks the structural invariants: sorted, contiguous, exhaustive,
// indices matching positions. It exists for tests and state checks.
func (g *Grid) Validate() error {
	if len(g.buckets) == 0 {
		return fmt.Errorf("grid: empty bucket list: %w", domain.ErrInvalidState)
	}
	for i, bk := range g.buckets {
		if bk.Index != i {
			return fmt.Errorf("grid: bucket %d carries index %d: %w", i, bk.Index, domain.ErrInvalidState)
		}
		if bk.Low >= bk.High {
			return fmt.Errorf("grid: bucket %d has non-positive width: %w", i, domain.ErrInvalidState)
		}
		if i > 0 && g.buckets[i-1].High != bk.Low {
			return fmt.Errorf("grid: gap between buckets %d and %d: %w", i-1, i, domain.ErrInvalidState)
		}
	}
	return nil
}

func makeBucket(low, high float64, idx int) domain.Bucket {
	return domain.Bucket{Low: low, High: high, Center: (low + high) / 2, Index: idx}
}

func closeTo(a, b float64) bool {
	scale := math.Max(math.Abs(a), math.Abs(b))
	if scale == 0 {
		return true
	}
	return math.Abs(a-b) <= boundaryTol*scale
}
