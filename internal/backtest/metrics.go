package backtest

import (
	"math"

	"quantdesk/internal/recorder"
)

// tradingDaysPerYear 为年化换算使用的交易日数。
const tradingDaysPerYear = 252

// Metrics 记录回测绩效指标。
type Metrics struct {
	InitialCapital   float64 `json:"initial_capital"`
	FinalAsset       float64 `json:"final_asset"`
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	BenchmarkReturn  float64 `json:"benchmark_return"`
	ExcessReturn     float64 `json:"excess_return"`
	TradeCount       int     `json:"trade_count"`
	TradingDays      int     `json:"trading_days"`
}

func calculateMetrics(initial float64, tables recorder.Tables) Metrics {
	m := Metrics{
		InitialCapital: initial,
		FinalAsset:     initial,
		TradeCount:     len(tables.TradeLog),
		TradingDays:    len(tables.DailySnapshots),
	}
	if len(tables.DailySnapshots) == 0 || initial <= 0 {
		return m
	}

	equity := make([]float64, 0, len(tables.DailySnapshots)+1)
	returns := make([]float64, 0, len(tables.DailySnapshots))
	equity = append(equity, initial)
	for _, snap := range tables.DailySnapshots {
		equity = append(equity, snap.TotalAsset)
		returns = append(returns, snap.DailyReturn)
	}

	m.FinalAsset = equity[len(equity)-1]
	m.TotalReturn = m.FinalAsset/initial - 1
	if growth := 1 + m.TotalReturn; growth > 0 {
		m.AnnualizedReturn = math.Pow(growth, float64(tradingDaysPerYear)/float64(len(returns))) - 1
	}
	m.MaxDrawdown = computeDrawdown(equity)
	m.SharpeRatio = computeSharpe(returns)

	if bench := tables.BenchmarkSeries; len(bench) > 0 && bench[0].Close > 0 {
		m.BenchmarkReturn = bench[len(bench)-1].Close/bench[0].Close - 1
		m.ExcessReturn = m.TotalReturn - m.BenchmarkReturn
	} else {
		m.ExcessReturn = m.TotalReturn
	}
	return m
}

func computeDrawdown(equity []float64) float64 {
	var peak float64
	maxDD := 0.0
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		dd := (v - peak) / peak
		if dd < maxDD {
			maxDD = dd
		}
	}
	return math.Abs(maxDD)
}

func computeSharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	variance /= float64(len(returns) - 1)

	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}

	// 日收益率，年化按 sqrt(252)
	return (mean / std) * math.Sqrt(tradingDaysPerYear)
}
