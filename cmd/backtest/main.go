package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"quantdesk/internal/app"
	"quantdesk/internal/backtest"
	"quantdesk/internal/config"
	"quantdesk/internal/log"
	"quantdesk/internal/market"
	"quantdesk/internal/store"
	"quantdesk/internal/strategy"
)

func main() {
	var (
		configPath     string
		importPeriod   string
		listStrategies bool
	)
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.StringVar(&importPeriod, "import", "", "将 data.dir 下指定周期（如 1m、1d）的 CSV 行情导入数据库后退出")
	flag.BoolVar(&listStrategies, "strategies", false, "列出内置策略后退出")
	flag.Parse()

	if listStrategies {
		fmt.Println(strings.Join(strategy.DefaultRegistry().Names(), "\n"))
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	sqliteStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		logger.Error("初始化数据库失败", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			logger.Warn("关闭数据库失败", zap.Error(closeErr))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backtestApp := app.New(cfg, logger, sqliteStore)

	if importPeriod != "" {
		period := market.Period(importPeriod)
		if !period.Valid() {
			logger.Error("不支持的导入周期", zap.String("period", importPeriod))
			os.Exit(1)
		}
		if _, err := backtestApp.ImportCSV(ctx, period); err != nil {
			logger.Error("导入行情失败", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	result, err := backtestApp.Run(ctx)
	switch {
	case errors.Is(err, backtest.ErrStopped):
		logger.Warn("回测被中断，已输出部分结果",
			zap.String("run_id", result.RunID),
			zap.Int("processed", result.Ticks),
			zap.Int("total", result.TotalTicks),
		)
	case err != nil:
		logger.Error("回测运行异常", zap.Error(err))
		os.Exit(1)
	default:
		m := result.Metrics
		logger.Info("回测结束",
			zap.String("run_id", result.RunID),
			zap.Float64("total_return", m.TotalReturn),
			zap.Float64("annualized_return", m.AnnualizedReturn),
			zap.Float64("max_drawdown", m.MaxDrawdown),
			zap.Float64("sharpe", m.SharpeRatio),
			zap.Float64("excess_return", m.ExcessReturn),
			zap.Int("trades", m.TradeCount),
		)
	}
}
