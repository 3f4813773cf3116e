package app

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"quantdesk/internal/backtest"
	"quantdesk/internal/config"
	"quantdesk/internal/cost"
	"quantdesk/internal/market"
	"quantdesk/internal/metrics"
	"quantdesk/internal/monitor"
	"quantdesk/internal/risk"
	"quantdesk/internal/store"
	"quantdesk/internal/strategy"
	"quantdesk/internal/trigger"
)

// orchestrator 根据配置装配一次回测所需的全部组件。
type orchestrator struct {
	cfg      *config.Config
	provider market.Provider
	strategy strategy.Strategy
	trigger  trigger.Trigger
	gate     *risk.Gate
	cost     *cost.Model
	calendar *market.Calendar
	logger   *zap.Logger
}

func newOrchestrator(cfg *config.Config, registry *strategy.Registry, st *store.Store, logger *zap.Logger) (*orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = strategy.DefaultRegistry()
	}

	provider, err := newProvider(cfg, st, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化行情数据源失败: %w", err)
	}

	strat, err := registry.New(cfg.Backtest.Strategy, strategy.Params(cfg.Backtest.StrategyParams))
	if err != nil {
		return nil, fmt.Errorf("初始化策略失败: %w", err)
	}

	trig, err := trigger.New(cfg.Trigger, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化触发器失败: %w", err)
	}

	return &orchestrator{
		cfg:      cfg,
		provider: provider,
		strategy: strat,
		trigger:  trig,
		gate:     risk.NewGate(cfg.Risk, logger),
		cost:     cost.New(costConfig(cfg.Cost)),
		calendar: market.NewCalendar(cfg.Data.Holidays),
		logger:   logger,
	}, nil
}

// newEngine 构建回测引擎，observer 与 collector 可为空。
func (o *orchestrator) newEngine(runID string, observer monitor.Observer, collector *metrics.Collector) (*backtest.Engine, error) {
	btCfg := backtest.ConfigFrom(o.cfg)
	btCfg.RunID = runID
	return backtest.NewEngine(btCfg, backtest.Deps{
		Provider: o.provider,
		Strategy: o.strategy,
		Trigger:  o.trigger,
		Risk:     o.gate,
		Cost:     o.cost,
		Calendar: o.calendar,
		Observer: observer,
		Metrics:  collector,
		Logger:   o.logger,
	})
}

func newProvider(cfg *config.Config, st *store.Store, logger *zap.Logger) (market.Provider, error) {
	switch strings.ToLower(cfg.Data.Source) {
	case "", config.SourceCSV:
		return market.NewCSVProvider(cfg.Data.Dir).WithAdjust(cfg.Backtest.Adjust), nil
	case config.SourceSQLite:
		if st == nil {
			return nil, fmt.Errorf("sqlite 数据源需要数据库连接")
		}
		return market.NewSQLiteProvider(st.DB())
	case config.SourceCCXT:
		ex := cfg.Data.Exchange
		return market.NewCCXTProvider(market.CCXTOptions{
			Exchange:    ex.Name,
			APIKey:      ex.APIKey,
			APISecret:   ex.APISecret,
			UseSandbox:  ex.UseSandbox,
			PageLimit:   ex.PageLimit,
			MaxAttempts: ex.Retry.MaxAttempts,
			MinDelay:    ex.Retry.MinDelay,
			MaxDelay:    ex.Retry.MaxDelay,
		}, logger)
	default:
		return nil, fmt.Errorf("不支持的数据源 %q", cfg.Data.Source)
	}
}

func costConfig(cfg config.CostConfig) cost.Config {
	return cost.Config{
		CommissionRate:  cfg.CommissionRate,
		MinCommission:   cfg.MinCommission,
		StampTaxRate:    cfg.StampTaxRate,
		TransferFeeRate: cfg.TransferFeeRate,
		FlowFee:         cfg.FlowFee,
		SlippageMode:    cost.SlippageMode(strings.ToLower(cfg.SlippageType)),
		SlippageValue:   cfg.SlippageValue,
		TickSize:        cfg.TickSize,
	}
}
