package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了回测运行所需的全部配置项。
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Backtest BacktestConfig `mapstructure:"backtest"`
	Trigger  TriggerConfig  `mapstructure:"trigger"`
	Cost     CostConfig     `mapstructure:"cost"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Data     DataConfig     `mapstructure:"data"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Output   OutputConfig   `mapstructure:"output"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// BacktestConfig 描述一次回测任务。
type BacktestConfig struct {
	Start            time.Time      `mapstructure:"start"`
	End              time.Time      `mapstructure:"end"`
	InitialCapital   float64        `mapstructure:"initial_capital"`
	Universe         []string       `mapstructure:"universe"`
	Benchmark        string         `mapstructure:"benchmark"`
	Strategy         string         `mapstructure:"strategy"`
	StrategyParams   map[string]any `mapstructure:"strategy_params"`
	Adjust           string         `mapstructure:"adjust"`
	EnablePreMarket  bool           `mapstructure:"enable_pre_market"`
	EnablePostMarket bool           `mapstructure:"enable_post_market"`
}

// TriggerConfig 控制策略触发方式。
type TriggerConfig struct {
	Type        string   `mapstructure:"type"`
	Period      string   `mapstructure:"period"`
	CustomTimes []string `mapstructure:"custom_times"`
}

// 触发器类型。
const (
	TriggerTick   = "tick"
	TriggerPeriod = "period"
	TriggerCustom = "custom"
)

// CostConfig 交易成本参数。
type CostConfig struct {
	CommissionRate  float64 `mapstructure:"commission_rate"`
	MinCommission   float64 `mapstructure:"min_commission"`
	StampTaxRate    float64 `mapstructure:"stamp_tax_rate"`
	TransferFeeRate float64 `mapstructure:"transfer_fee_rate"`
	FlowFee         float64 `mapstructure:"flow_fee"`
	SlippageType    string  `mapstructure:"slippage_type"`
	SlippageValue   float64 `mapstructure:"slippage_value"`
	TickSize        float64 `mapstructure:"tick_size"`
}

// RiskConfig 管理风控参数，阈值为 0 表示不启用该项检查。
type RiskConfig struct {
	MaxPositionRatio float64 `mapstructure:"max_position_ratio"`
	MaxPositions     int     `mapstructure:"max_positions"`
	MaxDailyOrders   int     `mapstructure:"max_daily_orders"`
	MaxDailyLoss     float64 `mapstructure:"max_daily_loss"`
	MaxTotalLoss     float64 `mapstructure:"max_total_loss"`
}

// DataConfig 描述行情数据来源。
type DataConfig struct {
	Source      string         `mapstructure:"source"`
	Dir         string         `mapstructure:"dir"`
	Concurrency int            `mapstructure:"concurrency"`
	Holidays    []string       `mapstructure:"holidays"`
	Exchange    ExchangeConfig `mapstructure:"exchange"`
}

// 行情数据源。
const (
	SourceCSV    = "csv"
	SourceSQLite = "sqlite"
	SourceCCXT   = "ccxt"
)

// ExchangeConfig 描述 ccxt 历史K线数据源。
type ExchangeConfig struct {
	Name       string      `mapstructure:"name"`
	APIKey     string      `mapstructure:"api_key"`
	APISecret  string      `mapstructure:"api_secret"`
	UseSandbox bool        `mapstructure:"use_sandbox"`
	PageLimit  int64       `mapstructure:"page_limit"`
	Retry      RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// OutputConfig 控制结果输出。
type OutputConfig struct {
	Dir         string `mapstructure:"dir"`
	WriteCSV    bool   `mapstructure:"write_csv"`
	WriteSQLite bool   `mapstructure:"write_sqlite"`
}

// MetricsConfig 控制 Prometheus 指标与监控接口。
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}

	bt := c.Backtest
	if bt.Start.IsZero() || bt.End.IsZero() {
		err = multierr.Append(err, errors.New("backtest.start 与 backtest.end 不能为空"))
	} else if bt.End.Before(bt.Start) {
		err = multierr.Append(err, errors.New("backtest.end 不能早于 backtest.start"))
	}
	if bt.InitialCapital <= 0 {
		err = multierr.Append(err, errors.New("backtest.initial_capital 必须大于0"))
	}
	if len(bt.Universe) == 0 {
		err = multierr.Append(err, errors.New("backtest.universe 至少包含一个标的"))
	}
	for _, symbol := range bt.Universe {
		if strings.TrimSpace(symbol) == "" {
			err = multierr.Append(err, errors.New("backtest.universe 包含空标的"))
			break
		}
	}
	if bt.Strategy == "" {
		err = multierr.Append(err, errors.New("backtest.strategy 不能为空"))
	}
	switch strings.ToLower(bt.Adjust) {
	case "", "none", "qfq", "hfq":
	default:
		err = multierr.Append(err, fmt.Errorf("backtest.adjust 不支持: %s", bt.Adjust))
	}

	switch c.Trigger.Type {
	case TriggerTick:
	case TriggerPeriod:
		switch c.Trigger.Period {
		case "1m", "5m", "1d":
		default:
			err = multierr.Append(err, fmt.Errorf("trigger.period 仅支持 1m/5m/1d: %q", c.Trigger.Period))
		}
	case TriggerCustom:
		if len(c.Trigger.CustomTimes) == 0 {
			err = multierr.Append(err, errors.New("trigger.custom_times 至少包含一个时间点"))
		}
		for _, clock := range c.Trigger.CustomTimes {
			if _, parseErr := time.Parse("15:04:05", strings.TrimSpace(clock)); parseErr != nil {
				err = multierr.Append(err, fmt.Errorf("trigger.custom_times 格式应为 HH:MM:SS: %q", clock))
			}
		}
	default:
		err = multierr.Append(err, fmt.Errorf("trigger.type 不支持: %q", c.Trigger.Type))
	}

	if c.Cost.CommissionRate < 0 || c.Cost.CommissionRate > 0.01 {
		err = multierr.Append(err, errors.New("cost.commission_rate 应位于[0,0.01]"))
	}
	if c.Cost.MinCommission < 0 || c.Cost.StampTaxRate < 0 || c.Cost.TransferFeeRate < 0 || c.Cost.FlowFee < 0 {
		err = multierr.Append(err, errors.New("cost 费率与费用不能为负"))
	}
	switch c.Cost.SlippageType {
	case "none", "tick", "ratio":
	default:
		err = multierr.Append(err, fmt.Errorf("cost.slippage_type 不支持: %q", c.Cost.SlippageType))
	}
	if c.Cost.SlippageValue < 0 {
		err = multierr.Append(err, errors.New("cost.slippage_value 不能为负"))
	}
	if c.Cost.TickSize <= 0 {
		err = multierr.Append(err, errors.New("cost.tick_size 必须大于0"))
	}

	if c.Risk.MaxPositionRatio < 0 || c.Risk.MaxPositionRatio > 1 {
		err = multierr.Append(err, errors.New("risk.max_position_ratio 必须位于[0,1]"))
	}
	if c.Risk.MaxPositions < 0 || c.Risk.MaxDailyOrders < 0 {
		err = multierr.Append(err, errors.New("risk.max_positions 与 risk.max_daily_orders 不能为负"))
	}
	if c.Risk.MaxDailyLoss < 0 || c.Risk.MaxDailyLoss > 1 {
		err = multierr.Append(err, errors.New("risk.max_daily_loss 必须位于[0,1]"))
	}
	if c.Risk.MaxTotalLoss < 0 || c.Risk.MaxTotalLoss > 1 {
		err = multierr.Append(err, errors.New("risk.max_total_loss 必须位于[0,1]"))
	}

	switch c.Data.Source {
	case SourceCSV:
		if c.Data.Dir == "" {
			err = multierr.Append(err, errors.New("data.dir 不能为空"))
		}
	case SourceSQLite:
	case SourceCCXT:
		if c.Data.Exchange.Name == "" {
			err = multierr.Append(err, errors.New("data.exchange.name 不能为空"))
		}
		if c.Data.Exchange.Retry.MaxAttempts <= 0 {
			err = multierr.Append(err, errors.New("data.exchange.retry.max_attempts 必须大于0"))
		}
		if c.Data.Exchange.Retry.MinDelay > c.Data.Exchange.Retry.MaxDelay {
			err = multierr.Append(err, errors.New("data.exchange.retry.min_delay 不能大于 max_delay"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("data.source 不支持: %q", c.Data.Source))
	}
	if c.Data.Concurrency <= 0 {
		err = multierr.Append(err, errors.New("data.concurrency 必须大于0"))
	}

	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Output.WriteCSV && c.Output.Dir == "" {
		err = multierr.Append(err, errors.New("output.dir 不能为空"))
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		err = multierr.Append(err, errors.New("metrics.addr 不能为空"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
