package sizing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"copytrader/src/model"
)

// ----- fixed ratio -----

// FixedRatio copies the leader's quantity scaled by the edge-configured
// ratio. The simplest and default strategy.
type FixedRatio struct {
	cfg Config
}

func NewFixedRatio(cfg Config) *FixedRatio {
	return &FixedRatio{cfg: cfg}
}

func (s *FixedRatio) Name() string { return model.SizingFixedRatio }

func (s *FixedRatio) Size(_ context.Context, in Inputs) (Size, error) {
	ratio := in.Ratio
	if ratio.LessThanOrEqual(decimal.Zero) {
		return degraded(s.cfg, in), nil
	}

	quantity := in.LeaderQuantity.Mul(ratio)
	return Size{
		Quantity: quantity,
		Fraction: fractionFor(quantity, in.FillPrice, in.AllocatedCapital),
	}, nil
}

// ----- kelly -----

// Kelly sizes at f = p - (1-p)/b where p is the historical win rate copying
// this leader and b the win/loss odds, clamped to [0, MaxFraction]. With
// fewer than MinSamples observations the neutral prior would dominate, so
// the result degrades to the minimum default instead.
type Kelly struct {
	cfg   Config
	stats CopyStats
}

func NewKelly(cfg Config, stats CopyStats) *Kelly {
	return &Kelly{cfg: cfg, stats: stats}
}

func (s *Kelly) Name() string { return model.SizingKelly }

func (s *Kelly) Size(ctx context.Context, in Inputs) (Size, error) {
	if s.stats == nil {
		return degraded(s.cfg, in), nil
	}

	stats, err := s.stats.WinStats(ctx, in.FollowerID, in.LeaderID)
	if err != nil {
		return Size{}, fmt.Errorf("kelly win stats: %w", err)
	}

	if stats.Samples < s.cfg.MinSamples || stats.AvgLoss.LessThanOrEqual(decimal.Zero) {
		return degraded(s.cfg, in), nil
	}

	odds := stats.AvgWin.Div(stats.AvgLoss)
	if odds.LessThanOrEqual(decimal.Zero) {
		return degraded(s.cfg, in), nil
	}

	one := decimal.NewFromInt(1)
	fraction := stats.WinRate.Sub(one.Sub(stats.WinRate).Div(odds))
	fraction = clampFraction(fraction, s.cfg.MaxFraction)

	return Size{
		Quantity: quantityFor(fraction, in.AllocatedCapital, in.FillPrice),
		Fraction: fraction,
	}, nil
}

// ----- risk parity -----

// RiskParity weights the new position by inverse volatility against the
// follower's current holdings, so each position contributes comparably to
// portfolio volatility.
type RiskParity struct {
	cfg      Config
	market   MarketStats
	holdings HoldingsSource
}

func NewRiskParity(cfg Config, market MarketStats, holdings HoldingsSource) *RiskParity {
	return &RiskParity{cfg: cfg, market: market, holdings: holdings}
}

func (s *RiskParity) Name() string { return model.SizingRiskParity }

func (s *RiskParity) Size(ctx context.Context, in Inputs) (Size, error) {
	if s.market == nil {
		return degraded(s.cfg, in), nil
	}

	symbols := []string{in.Symbol}
	if s.holdings != nil {
		held, err := s.holdings.HeldSymbols(ctx, in.FollowerID)
		if err != nil {
			return Size{}, fmt.Errorf("risk parity holdings: %w", err)
		}
		for _, symbol := range held {
			if symbol != in.Symbol {
				symbols = append(symbols, symbol)
			}
		}
	}

	one := decimal.NewFromInt(1)
	var inverseSum, targetInverse decimal.Decimal
	for _, symbol := range symbols {
		volatility, samples, err := s.market.Volatility(ctx, symbol)
		if err != nil {
			return Size{}, fmt.Errorf("risk parity volatility for %s: %w", symbol, err)
		}
		if samples < s.cfg.MinSamples || volatility.LessThanOrEqual(decimal.Zero) {
			// One unmeasurable leg makes equal-risk weighting meaningless.
			return degraded(s.cfg, in), nil
		}

		inverse := one.Div(volatility)
		inverseSum = inverseSum.Add(inverse)
		if symbol == in.Symbol {
			targetInverse = inverse
		}
	}

	if inverseSum.LessThanOrEqual(decimal.Zero) {
		return degraded(s.cfg, in), nil
	}

	fraction := clampFraction(targetInverse.Div(inverseSum), s.cfg.MaxFraction)
	return Size{
		Quantity: quantityFor(fraction, in.AllocatedCapital, in.FillPrice),
		Fraction: fraction,
	}, nil
}

// ----- momentum -----

// Momentum scales the position with the symbol's recent-return signal. A
// flat or negative signal clamps to zero, which the guardrail engine then
// rejects; too little history degrades to the minimum default.
type Momentum struct {
	cfg    Config
	market MarketStats
}

func NewMomentum(cfg Config, market MarketStats) *Momentum {
	return &Momentum{cfg: cfg, market: market}
}

func (s *Momentum) Name() string { return model.SizingMomentum }

func (s *Momentum) Size(ctx context.Context, in Inputs) (Size, error) {
	if s.market == nil {
		return degraded(s.cfg, in), nil
	}

	signal, samples, err := s.market.Momentum(ctx, in.Symbol)
	if err != nil {
		return Size{}, fmt.Errorf("momentum signal for %s: %w", in.Symbol, err)
	}
	if samples < s.cfg.MinSamples {
		return degraded(s.cfg, in), nil
	}

	fraction := clampFraction(signal.Mul(s.cfg.MomentumScale), s.cfg.MaxFraction)
	return Size{
		Quantity: quantityFor(fraction, in.AllocatedCapital, in.FillPrice),
		Fraction: fraction,
	}, nil
}

// ----- factory -----

// Factory maps a follower edge's configured strategy name to an instance.
type Factory struct {
	cfg      Config
	copyHist CopyStats
	market   MarketStats
	holdings HoldingsSource
}

func NewFactory(cfg Config, copyHist CopyStats, market MarketStats, holdings HoldingsSource) *Factory {
	return &Factory{cfg: cfg, copyHist: copyHist, market: market, holdings: holdings}
}

// ForEdge returns the strategy for the edge, defaulting to fixed ratio for
// unknown names so a bad setting degrades instead of breaking the copy flow.
func (f *Factory) ForEdge(edge *model.FollowerRelationship) Strategy {
	switch edge.SizingStrategy {
	case model.SizingKelly:
		return NewKelly(f.cfg, f.copyHist)
	case model.SizingRiskParity:
		return NewRiskParity(f.cfg, f.market, f.holdings)
	case model.SizingMomentum:
		return NewMomentum(f.cfg, f.market)
	default:
		return NewFixedRatio(f.cfg)
	}
}
