package trigger

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"quantdesk/internal/config"
	"quantdesk/internal/market"
	"quantdesk/internal/strategy"
)

// CustomTolerance 为自定义时间点的匹配容差。
const CustomTolerance = 5 * time.Second

// Trigger 决定某个 tick 是否调用策略。
type Trigger interface {
	ShouldTrigger(ts time.Time, view strategy.View) bool
	DataPeriod() market.Period
}

// Tick 每个 tick 都触发。
type Tick struct{}

func (Tick) ShouldTrigger(time.Time, strategy.View) bool { return true }
func (Tick) DataPeriod() market.Period                   { return market.PeriodTick }

// Period 按固定周期触发：1m 在整分钟，5m 在整五分钟，1d 每个自然日一次。
type Period struct {
	period   market.Period
	lastDate string
}

// NewPeriod 创建周期触发器。
func NewPeriod(period market.Period) (*Period, error) {
	switch period {
	case market.Period1m, market.Period5m, market.Period1d:
		return &Period{period: period}, nil
	}
	return nil, fmt.Errorf("trigger: 不支持的周期 %q", period)
}

func (p *Period) ShouldTrigger(ts time.Time, _ strategy.View) bool {
	local := ts.In(market.Location)
	switch p.period {
	case market.Period1m:
		return local.Second() == 0
	case market.Period5m:
		return local.Minute()%5 == 0 && local.Second() == 0
	case market.Period1d:
		date := market.DateKey(local)
		if date == p.lastDate {
			return false
		}
		p.lastDate = date
		return true
	}
	return false
}

func (p *Period) DataPeriod() market.Period { return p.period }

// Custom 在每日若干固定时刻触发，容差 ±5 秒。
type Custom struct {
	offsets []time.Duration
}

// NewCustom 创建自定义时刻触发器，offsets 为距零点的偏移。
func NewCustom(offsets []time.Duration) (*Custom, error) {
	if len(offsets) == 0 {
		return nil, fmt.Errorf("trigger: 自定义触发至少需要一个时间点")
	}
	sorted := append([]time.Duration(nil), offsets...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return &Custom{offsets: sorted}, nil
}

func (c *Custom) ShouldTrigger(ts time.Time, _ strategy.View) bool {
	return c.Matches(ts, CustomTolerance)
}

// DataPeriod 自定义时刻需要秒级数据；全部为整分钟时引擎会降级为 1m。
func (c *Custom) DataPeriod() market.Period { return market.Period1s }

// Offsets 返回排序后的时刻偏移。
func (c *Custom) Offsets() []time.Duration {
	return append([]time.Duration(nil), c.offsets...)
}

// Matches 判断 ts 是否落在任一时刻的容差范围内。
func (c *Custom) Matches(ts time.Time, tolerance time.Duration) bool {
	sec := time.Duration(market.SecondsOfDay(ts)) * time.Second
	sec += time.Duration(ts.Nanosecond())
	for _, offset := range c.offsets {
		diff := sec - offset
		if diff < 0 {
			diff = -diff
		}
		if diff <= tolerance {
			return true
		}
	}
	return false
}

// AllWholeMinutes 判断所有时刻是否都在整分钟上。
func AllWholeMinutes(offsets []time.Duration) bool {
	if len(offsets) == 0 {
		return false
	}
	for _, offset := range offsets {
		if offset%time.Minute != 0 {
			return false
		}
	}
	return true
}

// ParseClock 解析 HH:MM:SS（或 HH:MM）为距零点的偏移。
func ParseClock(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, value); err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, fmt.Errorf("trigger: 无法解析时间点 %q", value)
}

// New 根据配置创建触发器，未知类型回退为 Tick。
func New(cfg config.TriggerConfig, logger *zap.Logger) (Trigger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case config.TriggerPeriod:
		return NewPeriod(market.Period(cfg.Period))
	case config.TriggerCustom:
		offsets := make([]time.Duration, 0, len(cfg.CustomTimes))
		for _, clock := range cfg.CustomTimes {
			offset, err := ParseClock(clock)
			if err != nil {
				return nil, err
			}
			offsets = append(offsets, offset)
		}
		return NewCustom(offsets)
	case config.TriggerTick:
		return Tick{}, nil
	default:
		logger.Warn("未知触发类型，回退为逐 tick 触发", zap.String("type", cfg.Type))
		return Tick{}, nil
	}
}

// ParseTimestamp 防御性解析原始时间戳，解析失败时返回当前时间。
func ParseTimestamp(raw any) time.Time {
	ts, ok := market.NormalizeTimestamp(raw)
	if !ok {
		return time.Now()
	}
	return ts
}

// Check 解析原始时间戳后调用触发器。
func Check(t Trigger, raw any, view strategy.View) bool {
	return t.ShouldTrigger(ParseTimestamp(raw), view)
}
