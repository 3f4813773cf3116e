package recorder

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"quantdesk/internal/market"
)

// DailyCloseCache 按需加载日线收盘价，缓存 标的 -> 日期 -> 收盘价。
// 数据源缺少日线时回退到由日内序列聚合出的日线。
type DailyCloseCache struct {
	provider market.Provider
	start    time.Time
	end      time.Time
	logger   *zap.Logger

	mu       sync.Mutex
	closes   map[string]map[string]float64
	intraday map[string]market.Series
}

// NewDailyCloseCache 创建收盘价缓存，provider 可为空。
func NewDailyCloseCache(provider market.Provider, start, end time.Time, logger *zap.Logger) *DailyCloseCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DailyCloseCache{
		provider: provider,
		start:    start,
		end:      end,
		logger:   logger,
		closes:   make(map[string]map[string]float64),
		intraday: make(map[string]market.Series),
	}
}

// Seed 登记回测已加载的日内序列，作为日线缺失时的后备。
func (c *DailyCloseCache) Seed(series market.Series) {
	if series.Empty() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intraday[series.Symbol] = series
}

// Close 返回标的在某日（2006-01-02）的收盘价。
func (c *DailyCloseCache) Close(ctx context.Context, symbol, date string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byDate, ok := c.closes[symbol]
	if !ok {
		byDate = c.load(ctx, symbol)
		c.closes[symbol] = byDate
	}
	price, ok := byDate[date]
	return price, ok && price > 0
}

func (c *DailyCloseCache) load(ctx context.Context, symbol string) map[string]float64 {
	if c.provider != nil {
		closes, err := market.DailyCloses(ctx, c.provider, symbol, c.start, c.end)
		switch {
		case err == nil && len(closes) > 0:
			return closes
		case err != nil && !errors.Is(err, market.ErrNoData):
			c.logger.Warn("加载日线收盘价失败，改用日内数据聚合",
				zap.String("symbol", symbol),
				zap.Error(err),
			)
		}
	}

	closes := make(map[string]float64)
	if series, ok := c.intraday[symbol]; ok {
		for _, row := range market.ResampleDaily(series).Rows {
			closes[market.DateKey(row.Time)] = row.Close
		}
	}
	return closes
}

// BenchmarkCache 保存基准指数的每日收盘价，缺失日期沿用上一个收盘价。
// 需按日期递增顺序查询。
type BenchmarkCache struct {
	symbol string
	closes map[string]float64
	last   float64
}

// NewBenchmarkCache 以 日期 -> 收盘价 构建基准缓存。
func NewBenchmarkCache(symbol string, closes map[string]float64) *BenchmarkCache {
	if closes == nil {
		closes = make(map[string]float64)
	}
	return &BenchmarkCache{symbol: symbol, closes: closes}
}

// LoadBenchmark 从数据源读取基准日线。基准缺失仅告警，返回空缓存。
func LoadBenchmark(ctx context.Context, provider market.Provider, symbol string, start, end time.Time, logger *zap.Logger) (*BenchmarkCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if symbol == "" || provider == nil {
		return NewBenchmarkCache(symbol, nil), nil
	}
	closes, err := market.DailyCloses(ctx, provider, symbol, start, end)
	if err != nil {
		if errors.Is(err, market.ErrNoData) {
			logger.Warn("基准指数无日线数据", zap.String("benchmark", symbol))
			return NewBenchmarkCache(symbol, nil), nil
		}
		return nil, err
	}
	return NewBenchmarkCache(symbol, closes), nil
}

// Symbol 返回基准代码。
func (b *BenchmarkCache) Symbol() string {
	if b == nil {
		return ""
	}
	return b.symbol
}

// Close 返回某日基准收盘价，无数据时沿用前值，从未有数据时返回 0。
func (b *BenchmarkCache) Close(date string) float64 {
	if b == nil {
		return 0
	}
	if price, ok := b.closes[date]; ok && price > 0 {
		b.last = price
	}
	return b.last
}
