package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quantdesk/internal/backtest"
	"quantdesk/internal/config"
	"quantdesk/internal/market"
	"quantdesk/internal/metrics"
	"quantdesk/internal/monitor"
	"quantdesk/internal/report"
	"quantdesk/internal/store"
	"quantdesk/internal/strategy"
)

// App 聚合核心依赖并驱动一次回测的生命周期。
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *store.Store
	registry *strategy.Registry
}

// New 创建 App 实例，store 可为空（此时不落库）。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		registry: strategy.DefaultRegistry(),
	}
}

// Registry 返回策略注册表，可在 Run 之前注册自定义策略。
func (a *App) Registry() *strategy.Registry {
	return a.registry
}

// Run 在后台 goroutine 执行回测，等待完成后输出结果。
// 收到退出信号时回测在下一个 tick 停止，已完成部分照常输出；tick 内异常终止时只返回错误。
func (a *App) Run(ctx context.Context) (backtest.Result, error) {
	a.logger.Info("回测系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("strategy", a.cfg.Backtest.Strategy),
		zap.Strings("universe", a.cfg.Backtest.Universe),
		zap.String("data_source", a.cfg.Data.Source),
	)

	orch, err := newOrchestrator(a.cfg, a.registry, a.store, a.logger)
	if err != nil {
		return backtest.Result{}, err
	}

	runID := uuid.NewString()
	notifier := monitor.NewNotifier(runID, 1024)

	var collector *metrics.Collector
	if a.cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
	}

	var (
		sink     *monitor.SQLiteSink
		sinkDone sync.WaitGroup
	)
	if a.store != nil {
		sink, err = monitor.NewSQLiteSink(ctx, a.store, a.logger)
		if err != nil {
			return backtest.Result{}, fmt.Errorf("初始化事件存储失败: %w", err)
		}
		sinkDone.Add(1)
		go func() {
			defer sinkDone.Done()
			// 回测被中断时仍需把剩余事件写完
			sink.Consume(context.WithoutCancel(ctx), notifier.Events(), false)
		}()
	} else {
		sinkDone.Add(1)
		go func() {
			defer sinkDone.Done()
			for range notifier.Events() {
			}
		}()
	}

	var writer *report.SQLiteWriter
	if a.store != nil && a.cfg.Output.WriteSQLite {
		writer, err = report.NewSQLiteWriter(ctx, a.store, a.logger)
		if err != nil {
			notifier.Close()
			sinkDone.Wait()
			return backtest.Result{}, fmt.Errorf("初始化结果存储失败: %w", err)
		}
	}

	if a.cfg.Metrics.Enabled {
		srv, err := startMonitorServer(a.cfg.Metrics.Addr, runID, sink, writer, collector, a.logger)
		if err != nil {
			notifier.Close()
			sinkDone.Wait()
			return backtest.Result{}, err
		}
		defer stopMonitorServer(srv, a.logger)
	}

	engine, err := orch.newEngine(runID, monitor.Multi(notifier, progressLogger(a.logger)), collector)
	if err != nil {
		notifier.Close()
		sinkDone.Wait()
		return backtest.Result{}, err
	}

	type outcome struct {
		result backtest.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, runErr := engine.Run(ctx)
		done <- outcome{result: result, err: runErr}
	}()
	out := <-done

	notifier.Close()
	sinkDone.Wait()
	if dropped := notifier.Dropped(); dropped > 0 {
		a.logger.Warn("部分监控事件因缓冲区已满被丢弃", zap.Int64("dropped", dropped))
	}

	// 异常终止的回测不输出结果，中止的回测输出已完成部分
	if out.err != nil && !errors.Is(out.err, backtest.ErrStopped) {
		return out.result, out.err
	}

	if err := a.writeOutputs(context.WithoutCancel(ctx), out.result, writer); err != nil {
		return out.result, errors.Join(out.err, err)
	}
	return out.result, out.err
}

func (a *App) writeOutputs(ctx context.Context, result backtest.Result, writer *report.SQLiteWriter) error {
	if a.cfg.Output.WriteCSV {
		dir, err := report.WriteCSV(a.cfg.Output.Dir, result)
		if err != nil {
			return err
		}
		a.logger.Info("回测结果已导出", zap.String("dir", dir))
	}
	if writer != nil {
		if err := writer.Write(ctx, result); err != nil {
			return err
		}
	}
	return nil
}

// ImportCSV 将 data.dir 下股票池与基准的 CSV 行情导入 SQLite 行情库。
func (a *App) ImportCSV(ctx context.Context, period market.Period) (int, error) {
	if a.store == nil {
		return 0, fmt.Errorf("导入行情需要数据库连接")
	}
	target, err := market.NewSQLiteProvider(a.store.DB())
	if err != nil {
		return 0, err
	}
	source := market.NewCSVProvider(a.cfg.Data.Dir).WithAdjust(a.cfg.Backtest.Adjust)

	symbols := append([]string(nil), a.cfg.Backtest.Universe...)
	if a.cfg.Backtest.Benchmark != "" {
		symbols = append(symbols, a.cfg.Backtest.Benchmark)
	}

	periods := []market.Period{period}
	if period != market.Period1d {
		periods = append(periods, market.Period1d)
	}

	imported := 0
	for _, symbol := range symbols {
		for _, p := range periods {
			series, err := source.Series(ctx, symbol, p, a.cfg.Backtest.Start, a.cfg.Backtest.End.AddDate(0, 0, 1))
			if errors.Is(err, market.ErrNoData) {
				a.logger.Warn("CSV 行情不存在，跳过", zap.String("symbol", symbol), zap.String("period", string(p)))
				continue
			}
			if err != nil {
				return imported, err
			}
			if err := target.Import(ctx, series); err != nil {
				return imported, err
			}
			imported += series.Len()
		}
	}
	a.logger.Info("行情导入完成", zap.Int("rows", imported))
	return imported, nil
}

// progressLogger 每推进 10% 输出一条进度日志。
func progressLogger(logger *zap.Logger) monitor.Observer {
	lastBucket := -1
	return monitor.ObserverFunc(func(event monitor.Event) {
		if event.Type != monitor.EventProgress {
			return
		}
		p, ok := event.Payload.(monitor.ProgressPayload)
		if !ok {
			return
		}
		bucket := int(p.Percent / 10)
		if bucket <= lastBucket {
			return
		}
		lastBucket = bucket
		logger.Info("回测进度",
			zap.Int("current", p.Current),
			zap.Int("total", p.Total),
			zap.Float64("percent", p.Percent),
		)
	})
}
