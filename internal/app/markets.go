package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/quantish/rangemaker/internal/config"
	"github.com/quantish/rangemaker/internal/engine"
	"github.com/quantish/rangemaker/internal/grid"
	"github.com/quantish/rangemaker/internal/prior"
	"github.com/quantish/rangemaker/internal/service"
)

// createMarkets builds and registers every market listed in the configuration.
func (a *App) createMarkets(ctx context.Context, markets *service.MarketService) error {
	for _, mc := range a.cfg.Markets {
		ec, err := engineConfig(mc, a.cfg.Engine.SlippageTolerance)
		if err != nil {
			return fmt.Errorf("app: market %s: %w", mc.ID, err)
		}
		if _, err := markets.CreateMarket(ctx, ec); err != nil {
			return fmt.Errorf("app: market %s: %w", mc.ID, err)
		}
	}
	return nil
}

// engineConfig translates a configured market into an engine.Config. For a
// lognormal prior the bucket layout is materialized up front so the seed
// probabilities can be integrated over the same partition the market starts
// with.
func engineConfig(mc config.MarketConfig, slippageTolerance float64) (engine.Config, error) {
	gc := grid.Config{
		Min:        mc.Min,
		Max:        mc.Max,
		FixedWidth: mc.FixedWidth,
		Ceiling:    mc.Ceiling,
	}
	switch strings.ToLower(mc.Policy) {
	case "fixed":
		gc.Policy = grid.PolicyFixed
	default:
		gc.Policy = grid.PolicyLogDecade
	}

	ec := engine.Config{
		MarketID:          mc.ID,
		Grid:              gc,
		B:                 mc.Liquidity,
		Bankroll:          mc.Bankroll,
		SlippageTolerance: slippageTolerance,
	}

	if strings.ToLower(mc.Prior) == "lognormal" {
		g, err := grid.New(gc)
		if err != nil {
			return engine.Config{}, err
		}
		p, err := prior.Lognormal(g.Buckets(), mc.PriorMedian, mc.PriorSigma)
		if err != nil {
			return engine.Config{}, err
		}
		ec.Prior = p
	}

	return ec, nil
}
