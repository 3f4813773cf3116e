package market

import (
	"sort"
	"time"
)

// Period 表示数据粒度。
type Period string

const (
	PeriodTick Period = "tick"
	Period1s   Period = "1s"
	Period1m   Period = "1m"
	Period5m   Period = "5m"
	Period1d   Period = "1d"
)

// Valid 判断是否为受支持的周期。
func (p Period) Valid() bool {
	switch p {
	case PeriodTick, Period1s, Period1m, Period5m, Period1d:
		return true
	}
	return false
}

// Intraday 日内粒度（含 tick）。
func (p Period) Intraday() bool {
	return p != Period1d
}

// Location 为行情时间戳所在时区（沪深交易所）。
var Location = time.FixedZone("CST", 8*3600)

// DateKey 返回交易所时区下的日期键 2006-01-02。
func DateKey(t time.Time) string {
	return t.In(Location).Format("2006-01-02")
}

// StartOfDay 返回所在交易日零点。
func StartOfDay(t time.Time) time.Time {
	local := t.In(Location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, Location)
}

// SecondsOfDay 返回距离当日零点的秒数。
func SecondsOfDay(t time.Time) int {
	local := t.In(Location)
	return local.Hour()*3600 + local.Minute()*60 + local.Second()
}

// Row 为单条观测，K线字段与 tick 报价字段按配置择一填充。
type Row struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open,omitempty"`
	High   float64   `json:"high,omitempty"`
	Low    float64   `json:"low,omitempty"`
	Close  float64   `json:"close,omitempty"`
	Volume float64   `json:"volume,omitempty"`
	Amount float64   `json:"amount,omitempty"`

	Last float64 `json:"last,omitempty"`
	Bid1 float64 `json:"bid1,omitempty"`
	Ask1 float64 `json:"ask1,omitempty"`
}

// Price 返回该观测的参考价，优先收盘价，其次最新价。
func (r Row) Price() float64 {
	if r.Close > 0 {
		return r.Close
	}
	return r.Last
}

// Series 为单一标的按时间升序排列的观测序列。
type Series struct {
	Symbol string
	Period Period
	Rows   []Row
}

// Len 返回序列长度。
func (s Series) Len() int {
	return len(s.Rows)
}

// Empty 是否没有任何观测。
func (s Series) Empty() bool {
	return len(s.Rows) == 0
}

// Between 返回 [start, end] 区间内的子序列，零值边界不做限制。
func (s Series) Between(start, end time.Time) Series {
	lo := 0
	if !start.IsZero() {
		lo = sort.Search(len(s.Rows), func(i int) bool { return !s.Rows[i].Time.Before(start) })
	}
	hi := len(s.Rows)
	if !end.IsZero() {
		hi = sort.Search(len(s.Rows), func(i int) bool { return s.Rows[i].Time.After(end) })
	}
	if lo >= hi {
		return Series{Symbol: s.Symbol, Period: s.Period}
	}
	rows := make([]Row, hi-lo)
	copy(rows, s.Rows[lo:hi])
	return Series{Symbol: s.Symbol, Period: s.Period, Rows: rows}
}

// Sanitize 按时间排序并剔除重复时间戳，返回被剔除的条数。
// 序列内时间戳必须严格递增，重复时保留最后一条。
func (s *Series) Sanitize() int {
	if len(s.Rows) < 2 {
		return 0
	}
	sort.SliceStable(s.Rows, func(i, j int) bool { return s.Rows[i].Time.Before(s.Rows[j].Time) })

	out := s.Rows[:1]
	dropped := 0
	for _, row := range s.Rows[1:] {
		last := &out[len(out)-1]
		if row.Time.Equal(last.Time) {
			*last = row
			dropped++
			continue
		}
		out = append(out, row)
	}
	s.Rows = out
	return dropped
}
