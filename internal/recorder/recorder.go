package recorder

import (
	"context"
	"time"

	"go.uber.org/zap"

	"quantdesk/internal/ledger"
	"quantdesk/internal/order"
	"quantdesk/internal/strategy"
)

// DailySnapshot 为每个交易日收盘后的账户快照。
type DailySnapshot struct {
	Date           string            `json:"date"`
	Time           time.Time         `json:"time"`
	TotalAsset     float64           `json:"total_asset"`
	Cash           float64           `json:"cash"`
	MarketValue    float64           `json:"market_value"`
	DailyReturn    float64           `json:"daily_return"`
	BenchmarkClose float64           `json:"benchmark_close"`
	Positions      []ledger.Position `json:"positions"`
}

// BenchmarkPoint 为基准的每日收盘价。
type BenchmarkPoint struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

// Tables 为交给报表层的三张表。
type Tables struct {
	TradeLog        []order.Fill
	DailySnapshots  []DailySnapshot
	BenchmarkSeries []BenchmarkPoint
}

// Recorder 记录成交与每日快照，单次回测独占。
type Recorder struct {
	initial   float64
	closes    *DailyCloseCache
	benchmark *BenchmarkCache
	logger    *zap.Logger

	trades    []order.Fill
	snapshots []DailySnapshot
	bench     []BenchmarkPoint
}

// New 创建记录器，closes 与 benchmark 可为空。
func New(initialCapital float64, closes *DailyCloseCache, benchmark *BenchmarkCache, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		initial:   initialCapital,
		closes:    closes,
		benchmark: benchmark,
		logger:    logger,
	}
}

// RecordTrade 追加一条成交记录。
func (r *Recorder) RecordTrade(fill order.Fill) {
	r.trades = append(r.trades, fill)
}

// TakeDailySnapshot 以收盘价盯市并记录当日快照。
// 收盘价优先级：日线收盘价 > 当前 tick 观测 > 持仓最新价 > 持仓成本。
func (r *Recorder) TakeDailySnapshot(ctx context.Context, date string, view strategy.View, l *ledger.Ledger) DailySnapshot {
	prices := make(map[string]float64)
	for _, pos := range l.Positions() {
		prices[pos.Symbol] = r.closePrice(ctx, date, view, pos)
	}
	account := l.Mark(prices)

	prev := r.initial
	if n := len(r.snapshots); n > 0 {
		prev = r.snapshots[n-1].TotalAsset
	}
	var dailyReturn float64
	if prev > 0 {
		dailyReturn = account.TotalAsset/prev - 1
	}

	snapshot := DailySnapshot{
		Date:        date,
		Time:        view.Time,
		TotalAsset:  account.TotalAsset,
		Cash:        account.Cash,
		MarketValue: account.MarketValue,
		DailyReturn: dailyReturn,
		Positions:   l.Positions(),
	}
	if r.benchmark != nil {
		snapshot.BenchmarkClose = r.benchmark.Close(date)
		if snapshot.BenchmarkClose > 0 {
			r.bench = append(r.bench, BenchmarkPoint{Date: date, Close: snapshot.BenchmarkClose})
		}
	}
	r.snapshots = append(r.snapshots, snapshot)

	r.logger.Debug("记录每日快照",
		zap.String("date", date),
		zap.Float64("total_asset", snapshot.TotalAsset),
		zap.Float64("daily_return", dailyReturn),
	)
	return snapshot
}

func (r *Recorder) closePrice(ctx context.Context, date string, view strategy.View, pos ledger.Position) float64 {
	if r.closes != nil {
		if price, ok := r.closes.Close(ctx, pos.Symbol, date); ok {
			return price
		}
	}
	if price := view.Price(pos.Symbol); price > 0 {
		return price
	}
	if pos.CurrentPrice > 0 {
		return pos.CurrentPrice
	}
	return pos.AvgPrice
}

// TradeCount 返回已记录的成交笔数。
func (r *Recorder) TradeCount() int {
	return len(r.trades)
}

// SnapshotCount 返回已记录的快照数。
func (r *Recorder) SnapshotCount() int {
	return len(r.snapshots)
}

// Tables 返回三张表的副本。
func (r *Recorder) Tables() Tables {
	return Tables{
		TradeLog:        append([]order.Fill(nil), r.trades...),
		DailySnapshots:  append([]DailySnapshot(nil), r.snapshots...),
		BenchmarkSeries: append([]BenchmarkPoint(nil), r.bench...),
	}
}
