package backtest

import (
	"time"

	"github.com/google/uuid"

	"quantdesk/internal/config"
	"quantdesk/internal/strategy"
)

// Config 定义回测参数。
type Config struct {
	RunID            string          // 运行标识，空时自动生成
	Start            time.Time       // 开始日期（含）
	End              time.Time       // 结束日期（含）
	InitialCapital   float64         // 初始资金
	Universe         []string        // 股票池
	Benchmark        string          // 基准指数代码
	StrategyParams   strategy.Params // 策略参数
	EnablePreMarket  bool
	EnablePostMarket bool
	Concurrency      int // 行情加载并发数
}

// ConfigFrom 从应用配置提取回测参数。
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Start:            cfg.Backtest.Start,
		End:              cfg.Backtest.End,
		InitialCapital:   cfg.Backtest.InitialCapital,
		Universe:         append([]string(nil), cfg.Backtest.Universe...),
		Benchmark:        cfg.Backtest.Benchmark,
		StrategyParams:   strategy.Params(cfg.Backtest.StrategyParams),
		EnablePreMarket:  cfg.Backtest.EnablePreMarket,
		EnablePostMarket: cfg.Backtest.EnablePostMarket,
		Concurrency:      cfg.Data.Concurrency,
	}
}

func (c *Config) normalize() Config {
	cfg := *c
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.InitialCapital <= 0 {
		cfg.InitialCapital = 1_000_000
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return cfg
}

// loadEnd 将仅含日期的结束时间扩展到当日末尾。
func (c Config) loadEnd() time.Time {
	if c.End.IsZero() {
		return c.End
	}
	local := c.End.In(c.End.Location())
	if local.Hour() == 0 && local.Minute() == 0 && local.Second() == 0 && local.Nanosecond() == 0 {
		return c.End.Add(24*time.Hour - time.Nanosecond)
	}
	return c.End
}
