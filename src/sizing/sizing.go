package sizing

import (
	"context"

	"github.com/shopspring/decimal"
)

// ----- results -----

// Size is the outcome of a position-sizing strategy. Quantity is an
// absolute share count; Fraction is the same size expressed against the
// follower's allocated capital. Neither is ever negative. Degraded marks a
// result that fell back to the minimum default because the strategy lacked
// sufficient data; it is a valid result, not an error.
type Size struct {
	Quantity decimal.Decimal
	Fraction decimal.Decimal
	Degraded bool
}

// Inputs is the snapshot a strategy sizes against.
type Inputs struct {
	LeaderID   uint
	FollowerID uint

	Symbol         string
	Side           string
	LeaderQuantity decimal.Decimal
	FillPrice      decimal.Decimal

	// AllocatedCapital is the capital the follower committed to this leader.
	AllocatedCapital decimal.Decimal

	// Ratio is the edge-configured multiplier used by the fixed-ratio
	// strategy.
	Ratio decimal.Decimal
}

// Strategy computes a copy size for one follower and one leader fill.
type Strategy interface {
	Name() string
	Size(ctx context.Context, in Inputs) (Size, error)
}

// ----- config -----

type Config struct {
	// MinimumFraction is the degraded fallback when a strategy lacks data.
	MinimumFraction decimal.Decimal

	// MaxFraction is the strategy-level cap on the capital fraction.
	// Guardrails may clamp further downstream.
	MaxFraction decimal.Decimal

	// MinSamples is how many observations a statistical strategy needs
	// before trusting its own numbers.
	MinSamples int

	// MomentumScale converts a raw return signal into a capital fraction.
	MomentumScale decimal.Decimal

	// LookbackFills bounds how much ledger history the estimators read.
	LookbackFills int
}

// DefaultConfig reasonable defaults, tweak per deployment.
func DefaultConfig() Config {
	return Config{
		MinimumFraction: decimal.NewFromFloat(0.01),
		MaxFraction:     decimal.NewFromFloat(1.0),
		MinSamples:      10,
		MomentumScale:   decimal.NewFromFloat(2.0),
		LookbackFills:   50,
	}
}

// clampFraction bounds f to [0, max].
func clampFraction(f, max decimal.Decimal) decimal.Decimal {
	if f.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	if f.GreaterThan(max) {
		return max
	}
	return f
}

// quantityFor converts a capital fraction into shares at the fill price.
func quantityFor(fraction, capital, price decimal.Decimal) decimal.Decimal {
	if price.LessThanOrEqual(decimal.Zero) || capital.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return fraction.Mul(capital).Div(price)
}

// fractionFor expresses an absolute quantity as a capital fraction.
func fractionFor(quantity, price, capital decimal.Decimal) decimal.Decimal {
	if capital.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return quantity.Mul(price).Div(capital)
}

// degraded builds the minimum-default result.
func degraded(cfg Config, in Inputs) Size {
	fraction := cfg.MinimumFraction
	return Size{
		Quantity: quantityFor(fraction, in.AllocatedCapital, in.FillPrice),
		Fraction: fraction,
		Degraded: true,
	}
}

// ----- stats providers -----

// WinStats summarises the follower's history of copying one leader.
type WinStats struct {
	WinRate decimal.Decimal // 0-1
	AvgWin  decimal.Decimal // mean fractional gain of winners
	AvgLoss decimal.Decimal // mean absolute fractional loss of losers
	Samples int
}

// CopyStats feeds the Kelly estimator.
type CopyStats interface {
	WinStats(ctx context.Context, followerID, leaderID uint) (WinStats, error)
}

// MarketStats feeds the volatility and momentum estimators from ledger
// history.
type MarketStats interface {
	// Volatility returns the stddev of recent fill-to-fill returns for the
	// symbol, plus the number of return samples behind it.
	Volatility(ctx context.Context, symbol string) (decimal.Decimal, int, error)

	// Momentum returns the net return over the recent fill window, plus the
	// number of fills behind it.
	Momentum(ctx context.Context, symbol string) (decimal.Decimal, int, error)
}

// HoldingsSource lists the symbols a follower currently holds.
type HoldingsSource interface {
	HeldSymbols(ctx context.Context, followerID uint) ([]string, error)
}
