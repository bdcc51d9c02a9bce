// Package engine owns per-market AMM state and the serialized trade path.
//
// Each Market is a single-writer coordinator: the validate→commit sequence
// runs inside an exclusive critical section acquired with a bounded wait,
// while reads are served from an atomically published snapshot and never
// block on the writer. Grid growth (extension, split) happens inside the
// same critical section as the commit that needs it, so the share vector,
// position vectors and bucket list resize in one atomic step.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/quantish/rangemaker/internal/domain"
	"github.com/quantish/rangemaker/internal/grid"
	"github.com/quantish/rangemaker/internal/lmsr"
	"github.com/quantish/rangemaker/internal/prior"
)

// Config describes a new market.
type Config struct {
	MarketID string
	Grid     grid.Config

	// B sets the liquidity parameter directly. When zero, Bankroll must be
	// set and b is derived as bankroll / ln(bucket count).
	B        float64
	Bankroll float64

	// Prior is the seeding probability vector; uniform when nil. Length
	// must equal the initial bucket count.
	Prior []float64

	// SlippageTolerance is the maximum relative deviation between a
	// limit/stop order's reference price and the quoted per-unit price.
	// Defaults to 0.02.
	SlippageTolerance float64
}

// Market is the state owner for one outcome market. All mutable state (grid,
// share vector, positions, cumulative cash) is reachable only through the
// writer lock; readers use Snapshot.
type Market struct {
	id      string
	slipTol float64
	logger  *slog.Logger

	// Guarded by writer.
	grid      *grid.Grid
	q         []float64
	b         float64
	netCash   float64
	version   uint64
	positions map[string][]float64

	writer chan struct{}
	snap   atomic.Pointer[domain.MarketState]
}

// NewMarket builds the grid, seeds phantom shares from the prior and
// publishes the initial snapshot.
func NewMarket(cfg Config, logger *slog.Logger) (*Market, error) {
	g, err := grid.New(cfg.Grid)
	if err != nil {
		return nil, fmt.Errorf("engine: market %s: %w", cfg.MarketID, err)
	}
	n := g.Len()

	b := cfg.B
	if b == 0 {
		b, err = prior.LiquidityFromBankroll(cfg.Bankroll, n)
		if err != nil {
			return nil, fmt.Errorf("engine: market %s: %w", cfg.MarketID, err)
		}
	}
	if b <= 0 {
		return nil, fmt.Errorf("engine: market %s: liquidity b=%g must be positive: %w", cfg.MarketID, b, domain.ErrConfig)
	}

	p0 := cfg.Prior
	if p0 == nil {
		p0 = prior.Uniform(n)
	}
	q0, err := prior.Seed(p0, b, n)
	if err != nil {
		return nil, fmt.Errorf("engine: market %s: %w", cfg.MarketID, err)
	}

	slipTol := cfg.SlippageTolerance
	if slipTol <= 0 {
		slipTol = 0.02
	}

	m := &Market{
		id:        cfg.MarketID,
		slipTol:   slipTol,
		logger:    logger.With(slog.String("market", cfg.MarketID)),
		grid:      g,
		q:         q0,
		b:         b,
		positions: make(map[string][]float64),
		writer:    make(chan struct{}, 1),
	}
	if err := m.publishLocked(); err != nil {
		return nil, err
	}
	return m, nil
}

// ID returns the market identifier.
func (m *Market) ID() string { return m.id }

// Snapshot returns the latest published consistent state. The returned value
// is immutable; callers may hold it indefinitely.
func (m *Market) Snapshot() *domain.MarketState {
	return m.snap.Load()
}

// lock acquires the writer section, waiting no longer than ctx allows.
func (m *Market) lock(ctx context.Context) error {
	select {
	case m.writer <- struct{}{}:
		return nil
	default:
	}
	select {
	case m.writer <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("engine: market %s: %w", m.id, domain.ErrBusy)
	}
}

func (m *Market) unlock() { <-m.writer }

// publishLocked recomputes prices and swaps in a new snapshot. Caller holds
// the writer lock (or is the constructor).
func (m *Market) publishLocked() error {
	if m.grid.Len() != len(m.q) {
		return fmt.Errorf("engine: market %s: %d buckets vs %d shares: %w",
			m.id, m.grid.Len(), len(m.q), domain.ErrInvalidState)
	}
	p, err := lmsr.Prices(m.q, m.b)
	if err != nil {
		return fmt.Errorf("engine: market %s: publish: %w", m.id, err)
	}
	q := make([]float64, len(m.q))
	copy(q, m.q)

	m.version++
	m.snap.Store(&domain.MarketState{
		MarketID: m.id,
		Q:        q,
		B:        m.b,
		Buckets:  m.grid.Buckets(),
		Prices:   p,
		NetCash:  m.netCash,
		Version:  m.version,
		AsOf:     time.Now().UTC(),
	})
	return nil
}

// ensureValueLocked makes the target value tradeable: extends the grid when
// the value lies above the upper bound and, when splitAt is set, splits the
// containing bucket so the value becomes a boundary. The share vector and
// every position vector are resized in the same step. Returns the index of
// the bucket at (or starting at) the value.
func (m *Market) ensureValueLocked(value float64, splitAt bool) (int, error) {
	idx, appended, err := m.grid.Locate(value)
	if err != nil {
		return 0, err
	}

	if appended > 0 {
		// Appended buckets inherit the smallest existing share quantity so
		// the new tail carries the least prior mass rather than dominating
		// the softmax at q=0.
		floor := minOf(m.q)
		for i := 0; i < appended; i++ {
			m.q = append(m.q, floor)
		}
		for user, pos := range m.positions {
			m.positions[user] = append(pos, make([]float64, appended)...)
		}
		m.logger.Info("engine: grid extended",
			slog.Int("appended", appended),
			slog.Float64("upper_bound", m.grid.UpperBound()),
		)
	}

	if !splitAt {
		return idx, nil
	}

	res, err := m.grid.Split(value)
	if err != nil {
		return 0, err
	}
	if !res.Created {
		return res.Index, nil
	}

	// Apportion the split bucket's price mass by sub-interval width:
	// exp(q/b) splits into leftFrac and rightFrac portions, i.e.
	// q_left = q + b*ln(leftFrac), q_right = q + b*ln(1-leftFrac).
	i := res.Index
	old := m.q[i]
	left := old + m.b*math.Log(res.LeftFrac)
	right := old + m.b*math.Log(1-res.LeftFrac)

	m.q = append(m.q, 0)
	copy(m.q[i+2:], m.q[i+1:])
	m.q[i] = left
	m.q[i+1] = right

	// User positions split linearly by width in the same step.
	for user, pos := range m.positions {
		orig := pos[i]
		np := make([]float64, len(pos)+1)
		copy(np, pos[:i])
		np[i] = orig * res.LeftFrac
		np[i+1] = orig * (1 - res.LeftFrac)
		copy(np[i+2:], pos[i+1:])
		m.positions[user] = np
	}

	m.logger.Info("engine: bucket split",
		slog.Int("index", i),
		slog.Float64("at", value),
	)
	return res.Index, nil
}

// userPositionsLocked returns the user's share vector, sized to the current
// bucket count.
func (m *Market) userPositionsLocked(user string) []float64 {
	pos, ok := m.positions[user]
	if !ok || len(pos) != len(m.q) {
		np := make([]float64, len(m.q))
		copy(np, pos)
		m.positions[user] = np
		pos = np
	}
	return pos
}

// commitLocked applies delta as a whole-vector replacement and records the
// cash flow. It is the only mutation path for q.
func (m *Market) commitLocked(user string, delta []float64, payment float64) error {
	if len(delta) != len(m.q) {
		return fmt.Errorf("engine: market %s: delta length %d != q length %d: %w",
			m.id, len(delta), len(m.q), domain.ErrShape)
	}
	next := make([]float64, len(m.q))
	for i := range m.q {
		next[i] = m.q[i] + delta[i]
	}
	m.q = next
	m.netCash += payment

	if user != "" {
		pos := m.userPositionsLocked(user)
		for i := range pos {
			pos[i] += delta[i]
		}
	}
	return m.publishLocked()
}

// restoreLocked puts back a previously captured state after a failed
// settlement. The grid is untouched: structural changes are kept even when
// the triggering trade is rolled back, since they are mass-preserving.
func (m *Market) restoreLocked(q []float64, userPos []float64, user string, netCash float64) {
	m.q = q
	m.netCash = netCash
	if user != "" && userPos != nil {
		m.positions[user] = userPos
	}
	if err := m.publishLocked(); err != nil {
		m.logger.Error("engine: snapshot publish after rollback failed",
			slog.String("error", err.Error()),
		)
	}
}

// SetLiquidity replaces b. Operator path only; ordinary trades never touch
// the liquidity parameter.
func (m *Market) SetLiquidity(ctx context.Context, b float64) error {
	if b <= 0 || math.IsNaN(b) || math.IsInf(b, 0) {
		return fmt.Errorf("engine: market %s: liquidity b=%g must be positive and finite: %w", m.id, b, domain.ErrDomain)
	}
	if err := m.lock(ctx); err != nil {
		return err
	}
	defer m.unlock()

	m.b = b
	return m.publishLocked()
}

// Recalibrate shifts the share vector toward a new prior with damping weight
// w in (0, 1]: q' = (1-w)*q + w*b*ln(p0). This is the operator's tool for
// resolving belief drift and InvalidState conditions.
func (m *Market) Recalibrate(ctx context.Context, p0 []float64, w float64) error {
	if w <= 0 || w > 1 {
		return fmt.Errorf("engine: market %s: damping weight %g outside (0,1]: %w", m.id, w, domain.ErrDomain)
	}
	if err := m.lock(ctx); err != nil {
		return err
	}
	defer m.unlock()

	target, err := prior.Seed(p0, m.b, len(m.q))
	if err != nil {
		return fmt.Errorf("engine: market %s: recalibrate: %w", m.id, err)
	}
	for i := range m.q {
		m.q[i] = (1-w)*m.q[i] + w*target[i]
	}
	return m.publishLocked()
}

// CheckState verifies the canonical invariant len(buckets) == len(q) plus
// grid structure. A failure is an InvalidState for the operator to resolve
// via recalibration; it is never silently auto-repaired.
func (m *Market) CheckState(ctx context.Context) error {
	if err := m.lock(ctx); err != nil {
		return err
	}
	defer m.unlock()

	if err := m.grid.Validate(); err != nil {
		return err
	}
	if m.grid.Len() != len(m.q) {
		return fmt.Errorf("engine: market %s: %d buckets vs %d shares: %w",
			m.id, m.grid.Len(), len(m.q), domain.ErrInvalidState)
	}
	return nil
}

// Positions returns persistence rows for every non-zero position.
func (m *Market) Positions(ctx context.Context) ([]domain.Position, error) {
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.unlock()

	now := time.Now().UTC()
	var out []domain.Position
	for user, pos := range m.positions {
		for i, shares := range pos {
			if shares == 0 {
				continue
			}
			out = append(out, domain.Position{
				MarketID:  m.id,
				User:      user,
				Bucket:    i,
				Shares:    shares,
				UpdatedAt: now,
			})
		}
	}
	return out, nil
}

func minOf(q []float64) float64 {
	m := q[0]
	for _, v := range q[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
