package sizing

import (
	"context"
	"math"

	"github.com/shopspring/decimal"

	"copytrader/src/model"
)

type tradeLedger interface {
	RecentFills(ctx context.Context, symbol string, limit int) ([]model.Trade, error)
}

type copyOrderHistory interface {
	ListFilledForLeader(ctx context.Context, followerID, leaderID uint, limit int) ([]model.CopyOrder, error)
	HeldSymbols(ctx context.Context, followerID uint) ([]string, error)
}

// LedgerStats derives the statistical inputs for Kelly, risk-parity and
// momentum sizing from the trade ledger and the follower's copy history.
// The estimators are intentionally simple; the contract is bounded,
// non-negative, degrade-gracefully, not econometric rigor.
type LedgerStats struct {
	trades   tradeLedger
	orders   copyOrderHistory
	lookback int
}

func NewLedgerStats(trades tradeLedger, orders copyOrderHistory, lookback int) *LedgerStats {
	if lookback <= 0 {
		lookback = 50
	}
	return &LedgerStats{trades: trades, orders: orders, lookback: lookback}
}

// WinStats labels each filled copy order a win or loss by comparing its
// entry price with the most recent ledger price for the symbol.
func (s *LedgerStats) WinStats(ctx context.Context, followerID, leaderID uint) (WinStats, error) {
	orders, err := s.orders.ListFilledForLeader(ctx, followerID, leaderID, s.lookback)
	if err != nil {
		return WinStats{}, err
	}

	var wins, losses int
	var winSum, lossSum decimal.Decimal

	for i := range orders {
		order := orders[i]
		if order.LeaderTrade == nil {
			continue
		}
		entry := order.LeaderTrade.FillPrice
		if entry.LessThanOrEqual(decimal.Zero) {
			continue
		}

		latest, err := s.latestPrice(ctx, order.Symbol)
		if err != nil {
			return WinStats{}, err
		}
		if latest.LessThanOrEqual(decimal.Zero) {
			continue
		}

		move := latest.Sub(entry).Div(entry)
		if order.Side == model.TradeSideSell {
			move = move.Neg()
		}

		if move.GreaterThan(decimal.Zero) {
			wins++
			winSum = winSum.Add(move)
		} else if move.LessThan(decimal.Zero) {
			losses++
			lossSum = lossSum.Add(move.Abs())
		}
	}

	samples := wins + losses
	if samples == 0 {
		return WinStats{Samples: 0}, nil
	}

	stats := WinStats{
		WinRate: decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(samples))),
		Samples: samples,
	}
	if wins > 0 {
		stats.AvgWin = winSum.Div(decimal.NewFromInt(int64(wins)))
	}
	if losses > 0 {
		stats.AvgLoss = lossSum.Div(decimal.NewFromInt(int64(losses)))
	}
	return stats, nil
}

// Volatility is the standard deviation of fill-to-fill returns over the
// lookback window.
func (s *LedgerStats) Volatility(ctx context.Context, symbol string) (decimal.Decimal, int, error) {
	returns, err := s.recentReturns(ctx, symbol)
	if err != nil {
		return decimal.Zero, 0, err
	}
	if len(returns) < 2 {
		return decimal.Zero, len(returns), nil
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)

	return decimal.NewFromFloat(math.Sqrt(variance)), len(returns), nil
}

// Momentum is the net return from the oldest to the newest fill in the
// lookback window.
func (s *LedgerStats) Momentum(ctx context.Context, symbol string) (decimal.Decimal, int, error) {
	fills, err := s.trades.RecentFills(ctx, symbol, s.lookback)
	if err != nil {
		return decimal.Zero, 0, err
	}
	if len(fills) < 2 {
		return decimal.Zero, len(fills), nil
	}

	newest := fills[0].FillPrice
	oldest := fills[len(fills)-1].FillPrice
	if oldest.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, len(fills), nil
	}

	return newest.Sub(oldest).Div(oldest), len(fills), nil
}

// HeldSymbols passes through to the copy order history.
func (s *LedgerStats) HeldSymbols(ctx context.Context, followerID uint) ([]string, error) {
	return s.orders.HeldSymbols(ctx, followerID)
}

func (s *LedgerStats) latestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	fills, err := s.trades.RecentFills(ctx, symbol, 1)
	if err != nil {
		return decimal.Zero, err
	}
	if len(fills) == 0 {
		return decimal.Zero, nil
	}
	return fills[0].FillPrice, nil
}

func (s *LedgerStats) recentReturns(ctx context.Context, symbol string) ([]float64, error) {
	fills, err := s.trades.RecentFills(ctx, symbol, s.lookback)
	if err != nil {
		return nil, err
	}

	// fills are newest first; returns are computed newest over next-oldest.
	var returns []float64
	for i := 0; i+1 < len(fills); i++ {
		prev := fills[i+1].FillPrice
		if prev.LessThanOrEqual(decimal.Zero) {
			continue
		}
		r := fills[i].FillPrice.Sub(prev).Div(prev)
		returns = append(returns, r.InexactFloat64())
	}
	return returns, nil
}
