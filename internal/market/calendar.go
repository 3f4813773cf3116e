package market

import "time"

// Calendar 判定交易日：周一至周五且不在节假日列表中。
type Calendar struct {
	holidays map[string]struct{}
}

// NewCalendar 使用 2006-01-02 格式的节假日列表创建日历。
func NewCalendar(holidays []string) *Calendar {
	c := &Calendar{holidays: make(map[string]struct{}, len(holidays))}
	for _, h := range holidays {
		if t, ok := NormalizeTimestamp(h); ok {
			c.holidays[DateKey(t)] = struct{}{}
		}
	}
	return c
}

// IsTradingDay 判断给定时间所在日期是否为交易日。
func (c *Calendar) IsTradingDay(t time.Time) bool {
	local := t.In(Location)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	if c == nil {
		return true
	}
	_, holiday := c.holidays[DateKey(local)]
	return !holiday
}

// TradingDays 返回 [start, end] 内所有交易日的零点。
func (c *Calendar) TradingDays(start, end time.Time) []time.Time {
	if end.Before(start) {
		return nil
	}
	var days []time.Time
	last := StartOfDay(end)
	for d := StartOfDay(start); !d.After(last); d = d.AddDate(0, 0, 1) {
		if c.IsTradingDay(d) {
			days = append(days, d)
		}
	}
	return days
}
