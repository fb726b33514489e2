package sizing

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"copytrader/src/model"
)

type stubCopyStats struct {
	stats WinStats
	err   error
}

func (s stubCopyStats) WinStats(context.Context, uint, uint) (WinStats, error) {
	return s.stats, s.err
}

type stubMarketStats struct {
	volatility map[string]decimal.Decimal
	volSamples int
	momentum   decimal.Decimal
	momSamples int
}

func (s stubMarketStats) Volatility(_ context.Context, symbol string) (decimal.Decimal, int, error) {
	return s.volatility[symbol], s.volSamples, nil
}

func (s stubMarketStats) Momentum(context.Context, string) (decimal.Decimal, int, error) {
	return s.momentum, s.momSamples, nil
}

type stubHoldings struct {
	symbols []string
}

func (s stubHoldings) HeldSymbols(context.Context, uint) ([]string, error) {
	return s.symbols, nil
}

func baseInputs() Inputs {
	return Inputs{
		LeaderID:         1,
		FollowerID:       2,
		Symbol:           "AAPL",
		Side:             model.TradeSideBuy,
		LeaderQuantity:   decimal.NewFromInt(10),
		FillPrice:        decimal.NewFromInt(150),
		AllocatedCapital: decimal.NewFromInt(15000),
		Ratio:            decimal.NewFromFloat(0.5),
	}
}

func TestFixedRatioScalesLeaderQuantity(t *testing.T) {
	strategy := NewFixedRatio(DefaultConfig())

	size, err := strategy.Size(context.Background(), baseInputs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if size.Degraded {
		t.Fatal("expected a non-degraded result")
	}
	if !size.Quantity.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected quantity 5, got %s", size.Quantity)
	}
}

func TestFixedRatioDegradesOnNonPositiveRatio(t *testing.T) {
	strategy := NewFixedRatio(DefaultConfig())

	in := baseInputs()
	in.Ratio = decimal.Zero

	size, err := strategy.Size(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !size.Degraded {
		t.Fatal("expected a degraded result")
	}
	// 1% of 15000 at price 150 is one share.
	if !size.Quantity.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected degraded quantity 1, got %s", size.Quantity)
	}
}

func TestKellySizesFromWinStats(t *testing.T) {
	cfg := DefaultConfig()
	stats := stubCopyStats{stats: WinStats{
		WinRate: decimal.NewFromFloat(0.6),
		AvgWin:  decimal.NewFromFloat(0.1),
		AvgLoss: decimal.NewFromFloat(0.05),
		Samples: 30,
	}}
	strategy := NewKelly(cfg, stats)

	size, err := strategy.Size(context.Background(), baseInputs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if size.Degraded {
		t.Fatal("expected a non-degraded result")
	}

	// f = 0.6 - 0.4 / (0.1 / 0.05) = 0.4
	if !size.Fraction.Equal(decimal.NewFromFloat(0.4)) {
		t.Fatalf("expected fraction 0.4, got %s", size.Fraction)
	}
	// 0.4 * 15000 / 150 = 40 shares
	if !size.Quantity.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("expected quantity 40, got %s", size.Quantity)
	}
}

func TestKellyDegradesOnThinHistory(t *testing.T) {
	cfg := DefaultConfig()
	stats := stubCopyStats{stats: WinStats{
		WinRate: decimal.NewFromFloat(0.9),
		AvgWin:  decimal.NewFromFloat(0.2),
		AvgLoss: decimal.NewFromFloat(0.01),
		Samples: cfg.MinSamples - 1,
	}}
	strategy := NewKelly(cfg, stats)

	size, err := strategy.Size(context.Background(), baseInputs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !size.Degraded {
		t.Fatal("expected a degraded result below the sample floor")
	}
	if !size.Fraction.Equal(cfg.MinimumFraction) {
		t.Fatalf("expected minimum fraction, got %s", size.Fraction)
	}
}

func TestKellyNeverGoesNegative(t *testing.T) {
	stats := stubCopyStats{stats: WinStats{
		WinRate: decimal.NewFromFloat(0.2),
		AvgWin:  decimal.NewFromFloat(0.05),
		AvgLoss: decimal.NewFromFloat(0.1),
		Samples: 50,
	}}
	strategy := NewKelly(DefaultConfig(), stats)

	size, err := strategy.Size(context.Background(), baseInputs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// f = 0.2 - 0.8/0.5 = -1.4, clamped to zero.
	if !size.Fraction.Equal(decimal.Zero) {
		t.Fatalf("expected fraction clamped to zero, got %s", size.Fraction)
	}
	if !size.Quantity.Equal(decimal.Zero) {
		t.Fatalf("expected zero quantity, got %s", size.Quantity)
	}
}

func TestRiskParityWeightsInverseVolatility(t *testing.T) {
	market := stubMarketStats{
		volatility: map[string]decimal.Decimal{
			"AAPL": decimal.NewFromFloat(0.02),
			"TSLA": decimal.NewFromFloat(0.04),
		},
		volSamples: 30,
	}
	holdings := stubHoldings{symbols: []string{"TSLA"}}
	strategy := NewRiskParity(DefaultConfig(), market, holdings)

	size, err := strategy.Size(context.Background(), baseInputs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if size.Degraded {
		t.Fatal("expected a non-degraded result")
	}

	// Inverse vols 50 and 25: AAPL weight = 50/75.
	want := decimal.NewFromInt(50).Div(decimal.NewFromInt(75))
	if !size.Fraction.Sub(want).Abs().LessThan(decimal.NewFromFloat(0.0001)) {
		t.Fatalf("expected fraction ~%s, got %s", want, size.Fraction)
	}
}

func TestRiskParityDegradesOnUnmeasurableLeg(t *testing.T) {
	market := stubMarketStats{
		volatility: map[string]decimal.Decimal{
			"AAPL": decimal.NewFromFloat(0.02),
			// TSLA missing: zero volatility.
		},
		volSamples: 30,
	}
	holdings := stubHoldings{symbols: []string{"TSLA"}}
	strategy := NewRiskParity(DefaultConfig(), market, holdings)

	size, err := strategy.Size(context.Background(), baseInputs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !size.Degraded {
		t.Fatal("expected a degraded result when one leg is unmeasurable")
	}
}

func TestMomentumScalesSignal(t *testing.T) {
	market := stubMarketStats{
		momentum:   decimal.NewFromFloat(0.1),
		momSamples: 30,
	}
	strategy := NewMomentum(DefaultConfig(), market)

	size, err := strategy.Size(context.Background(), baseInputs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 0.1 * scale 2.0 = 0.2 of capital
	if !size.Fraction.Equal(decimal.NewFromFloat(0.2)) {
		t.Fatalf("expected fraction 0.2, got %s", size.Fraction)
	}
}

func TestMomentumClampsNegativeSignalToZero(t *testing.T) {
	market := stubMarketStats{
		momentum:   decimal.NewFromFloat(-0.3),
		momSamples: 30,
	}
	strategy := NewMomentum(DefaultConfig(), market)

	size, err := strategy.Size(context.Background(), baseInputs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !size.Quantity.Equal(decimal.Zero) {
		t.Fatalf("expected zero quantity for negative momentum, got %s", size.Quantity)
	}
}

func TestFactoryDefaultsToFixedRatio(t *testing.T) {
	factory := NewFactory(DefaultConfig(), nil, nil, nil)

	cases := []struct {
		configured string
		want       string
	}{
		{model.SizingFixedRatio, model.SizingFixedRatio},
		{model.SizingKelly, model.SizingKelly},
		{model.SizingRiskParity, model.SizingRiskParity},
		{model.SizingMomentum, model.SizingMomentum},
		{"garbage", model.SizingFixedRatio},
		{"", model.SizingFixedRatio},
	}
	for _, tc := range cases {
		edge := &model.FollowerRelationship{SizingStrategy: tc.configured}
		if got := factory.ForEdge(edge).Name(); got != tc.want {
			t.Fatalf("ForEdge(%q) = %s, want %s", tc.configured, got, tc.want)
		}
	}
}
