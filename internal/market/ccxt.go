package market

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"
)

// ErrMaintenance 表示交易所处于维护状态。
var ErrMaintenance = errors.New("exchange on maintenance")

type ohlcvClient interface {
	FetchOHLCV(symbol string, options ...ccxt.FetchOHLCVOptions) ([]ccxt.OHLCV, error)
}

// CCXTOptions 描述交易所历史K线数据源。
type CCXTOptions struct {
	Exchange    string
	APIKey      string
	APISecret   string
	UseSandbox  bool
	PageLimit   int64
	MaxAttempts int
	MinDelay    time.Duration
	MaxDelay    time.Duration
}

// CCXTProvider 通过 ccxt 分页拉取交易所历史K线，并带有重试机制。
type CCXTProvider struct {
	opts        CCXTOptions
	client      ohlcvClient
	loadMarkets func() error
	logger      *zap.Logger

	marketsMu     sync.Mutex
	marketsLoaded bool
}

// NewCCXTProvider 按交易所名称构建数据源。
func NewCCXTProvider(opts CCXTOptions, logger *zap.Logger) (*CCXTProvider, error) {
	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
		},
	}
	if opts.APIKey != "" {
		userConfig["apiKey"] = opts.APIKey
	}
	if opts.APISecret != "" {
		userConfig["secret"] = opts.APISecret
	}

	switch strings.ToLower(strings.TrimSpace(opts.Exchange)) {
	case "", "binance":
		ex := ccxt.NewBinance(userConfig)
		if opts.UseSandbox {
			ex.SetSandboxMode(true)
		}
		return newCCXTProvider(opts, ex, func() error {
			_, err := ex.LoadMarkets()
			return err
		}, logger), nil
	case "binanceusdm":
		ex := ccxt.NewBinanceusdm(userConfig)
		if opts.UseSandbox {
			ex.SetSandboxMode(true)
		}
		return newCCXTProvider(opts, ex, func() error {
			_, err := ex.LoadMarkets()
			return err
		}, logger), nil
	default:
		return nil, fmt.Errorf("market: 不支持的交易所 %q", opts.Exchange)
	}
}

func newCCXTProvider(opts CCXTOptions, client ohlcvClient, loadMarkets func() error, logger *zap.Logger) *CCXTProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PageLimit <= 0 {
		opts.PageLimit = 1000
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	return &CCXTProvider{
		opts:        opts,
		client:      client,
		loadMarkets: loadMarkets,
		logger:      logger,
	}
}

// Series 实现 Provider，按 since 游标分页直到覆盖结束时间。
func (p *CCXTProvider) Series(ctx context.Context, symbol string, period Period, start, end time.Time) (Series, error) {
	timeframe, err := ccxtTimeframe(period)
	if err != nil {
		return Series{}, err
	}
	if err := p.ensureMarketsLoaded(ctx); err != nil {
		return Series{}, err
	}

	series := Series{Symbol: symbol, Period: period}
	since := start.UnixMilli()
	endMs := end.UnixMilli()
	if end.IsZero() {
		endMs = time.Now().UnixMilli()
	}

	for page := 1; since <= endMs; page++ {
		var raw []ccxt.OHLCV
		err := p.callWithRetry(ctx, fmt.Sprintf("fetch_ohlcv_%s", timeframe), func() error {
			result, fetchErr := p.client.FetchOHLCV(
				symbol,
				ccxt.WithFetchOHLCVTimeframe(timeframe),
				ccxt.WithFetchOHLCVSince(since),
				ccxt.WithFetchOHLCVLimit(p.opts.PageLimit),
			)
			if fetchErr != nil {
				return fetchErr
			}
			raw = result
			return nil
		})
		if err != nil {
			return Series{}, fmt.Errorf("market: 拉取 %s 第 %d 页失败: %w", symbol, page, err)
		}
		if len(raw) == 0 {
			break
		}

		lastTs := since
		for _, item := range raw {
			if item.Timestamp > endMs {
				break
			}
			if item.Timestamp > lastTs {
				lastTs = item.Timestamp
			}
			series.Rows = append(series.Rows, Row{
				Time:   time.UnixMilli(item.Timestamp).In(Location),
				Open:   item.Open,
				High:   item.High,
				Low:    item.Low,
				Close:  item.Close,
				Volume: item.Volume,
			})
		}
		if lastTs <= since || int64(len(raw)) < p.opts.PageLimit {
			break
		}
		since = lastTs + 1
	}

	if series.Empty() {
		return Series{}, fmt.Errorf("%w: %s %s", ErrNoData, symbol, period)
	}
	series.Sanitize()
	return series.Between(start, end), nil
}

func ccxtTimeframe(period Period) (string, error) {
	switch period {
	case Period1s, Period1m, Period5m, Period1d:
		return string(period), nil
	default:
		return "", fmt.Errorf("market: 交易所数据源不支持周期 %q", period)
	}
}

func (p *CCXTProvider) ensureMarketsLoaded(ctx context.Context) error {
	if p.loadMarkets == nil {
		return nil
	}

	p.marketsMu.Lock()
	defer p.marketsMu.Unlock()

	if p.marketsLoaded {
		return nil
	}

	if err := p.callWithRetry(ctx, "load_markets", p.loadMarkets); err != nil {
		return err
	}

	p.marketsLoaded = true
	p.logger.Info("已完成市场元数据加载", zap.String("exchange", p.opts.Exchange))
	return nil
}

func (p *CCXTProvider) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	delay := p.opts.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := p.opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		err := fn()
		if err == nil {
			if attempt > 1 {
				p.logger.Info("交易所调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
				)
			}
			return nil
		}

		normalizedErr, retry := classifyError(err)
		if errors.Is(normalizedErr, ErrMaintenance) || !retry || attempt >= p.opts.MaxAttempts {
			p.logger.Error("交易所调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}
		p.logger.Warn("交易所调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(normalizedErr),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func classifyError(err error) (error, bool) {
	if err == nil {
		return nil, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return err, true
		case ccxt.OnMaintenanceErrType:
			message := strings.TrimSpace(ccxtErr.Message)
			if message == "" {
				message = "exchange under maintenance"
			}
			return fmt.Errorf("%w: %s", ErrMaintenance, message), false
		default:
			return err, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return err, true
	}
	return err, false
}
