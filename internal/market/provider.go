package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNoData 表示数据源没有该标的/周期的数据，属于数据质量问题而非致命错误。
var ErrNoData = errors.New("market: no data")

// Provider 按标的与周期提供历史观测。
type Provider interface {
	Series(ctx context.Context, symbol string, period Period, start, end time.Time) (Series, error)
}

// ProviderFunc 允许使用函数作为数据源。
type ProviderFunc func(ctx context.Context, symbol string, period Period, start, end time.Time) (Series, error)

func (f ProviderFunc) Series(ctx context.Context, symbol string, period Period, start, end time.Time) (Series, error) {
	if f == nil {
		return Series{}, errors.New("market: provider 函数未实现")
	}
	return f(ctx, symbol, period, start, end)
}

// LoadOptions 控制批量加载。
type LoadOptions struct {
	Period      Period
	Start       time.Time
	End         time.Time
	Concurrency int
	// Filter 可选，对每个已加载的序列做裁剪。
	Filter func(Series) Series
}

// LoadAll 并发加载所有标的的历史序列。缺失数据返回空序列并记录告警，
// 其它错误视为致命。
func LoadAll(ctx context.Context, provider Provider, symbols []string, opts LoadOptions, logger *zap.Logger) (map[string]Series, error) {
	if provider == nil {
		return nil, errors.New("market: provider 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := opts.Concurrency
	if limit <= 0 {
		limit = 4
	}

	var (
		mu     sync.Mutex
		result = make(map[string]Series, len(symbols))
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(limit)

	for _, symbol := range symbols {
		symbol := symbol
		group.Go(func() error {
			series, err := provider.Series(groupCtx, symbol, opts.Period, opts.Start, opts.End)
			switch {
			case errors.Is(err, ErrNoData):
				series = Series{Symbol: symbol, Period: opts.Period}
			case err != nil:
				return fmt.Errorf("market: 加载 %s(%s) 失败: %w", symbol, opts.Period, err)
			}
			series.Symbol = symbol
			if series.Period == "" {
				series.Period = opts.Period
			}
			if dropped := series.Sanitize(); dropped > 0 {
				logger.Warn("序列存在重复时间戳，已去重",
					zap.String("symbol", symbol),
					zap.Int("dropped", dropped),
				)
			}
			if opts.Filter != nil {
				series = opts.Filter(series)
			}
			if series.Empty() {
				logger.Warn("标的无可用行情数据",
					zap.String("symbol", symbol),
					zap.String("period", string(opts.Period)),
				)
			}

			mu.Lock()
			result[symbol] = series
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	logger.Debug("历史行情加载完成",
		zap.Int("symbols", len(symbols)),
		zap.String("period", string(opts.Period)),
	)
	return result, nil
}

// DailyCloses 读取日线收盘价，返回 日期 -> 收盘价。
func DailyCloses(ctx context.Context, provider Provider, symbol string, start, end time.Time) (map[string]float64, error) {
	series, err := provider.Series(ctx, symbol, Period1d, start, end)
	if err != nil {
		return nil, err
	}
	closes := make(map[string]float64, series.Len())
	for _, row := range series.Rows {
		if p := row.Price(); p > 0 {
			closes[DateKey(row.Time)] = p
		}
	}
	return closes, nil
}
