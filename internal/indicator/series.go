package indicator

import (
	"math"
	"time"

	"quantdesk/internal/market"
)

// Series 将行情观测拆分为便于指标计算的序列。
type Series struct {
	Timestamps []time.Time
	Open       []float64
	High       []float64
	Low        []float64
	Close      []float64
	Volume     []float64
}

// NewSeries 从行情观测创建 Series，输入需已按时间升序排列。
// tick 行情没有 OHLC 时以最新价填充。
func NewSeries(rows []market.Row) Series {
	length := len(rows)
	series := Series{
		Timestamps: make([]time.Time, length),
		Open:       make([]float64, length),
		High:       make([]float64, length),
		Low:        make([]float64, length),
		Close:      make([]float64, length),
		Volume:     make([]float64, length),
	}

	for i, row := range rows {
		series.set(i, row, row.Price())
	}

	return series
}

// Len 返回序列长度。
func (s Series) Len() int {
	return len(s.Close)
}

// Append 追加一根 bar，保留最近 limit 根（limit<=0 不限）。
// 与最后一根时间相同的观测覆盖之，盘中同一 bar 多次推送时只保留最新值。
func (s *Series) Append(row market.Row, limit int) {
	price := row.Price()
	if price <= 0 {
		return
	}
	if n := s.Len(); n > 0 && s.Timestamps[n-1].Equal(row.Time) {
		s.set(n-1, row, price)
		return
	}
	s.Timestamps = append(s.Timestamps, row.Time)
	s.Open = append(s.Open, 0)
	s.High = append(s.High, 0)
	s.Low = append(s.Low, 0)
	s.Close = append(s.Close, 0)
	s.Volume = append(s.Volume, 0)
	s.set(s.Len()-1, row, price)

	if limit > 0 && s.Len() > limit {
		drop := s.Len() - limit
		s.Timestamps = s.Timestamps[drop:]
		s.Open = s.Open[drop:]
		s.High = s.High[drop:]
		s.Low = s.Low[drop:]
		s.Close = s.Close[drop:]
		s.Volume = s.Volume[drop:]
	}
}

func (s *Series) set(i int, row market.Row, price float64) {
	s.Timestamps[i] = row.Time
	s.Open[i] = orDefault(row.Open, price)
	s.High[i] = orDefault(row.High, price)
	s.Low[i] = orDefault(row.Low, price)
	s.Close[i] = price
	s.Volume[i] = row.Volume
}

// Window 为固定容量的滚动收盘价窗口，策略逐 tick 追加。
type Window struct {
	size   int
	values []float64
	last   time.Time
}

// NewWindow 创建容量为 size 的窗口。
func NewWindow(size int) *Window {
	if size <= 0 {
		size = 1
	}
	return &Window{size: size, values: make([]float64, 0, size)}
}

// Push 追加一个值；同一时间戳重复推送时覆盖最后一个值。
func (w *Window) Push(ts time.Time, value float64) {
	if !w.last.IsZero() && ts.Equal(w.last) && len(w.values) > 0 {
		w.values[len(w.values)-1] = value
		return
	}
	w.last = ts
	if len(w.values) == w.size {
		copy(w.values, w.values[1:])
		w.values = w.values[:w.size-1]
	}
	w.values = append(w.values, value)
}

// Values 返回窗口内容的副本。
func (w *Window) Values() []float64 {
	dst := make([]float64, len(w.values))
	copy(dst, w.values)
	return dst
}

// Len 返回当前元素个数。
func (w *Window) Len() int {
	return len(w.values)
}

// Last 返回序列最后一个值，若为空则返回 NaN。
func Last(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return values[len(values)-1]
}

// Prev 返回序列倒数第二个值，若不足两个元素则返回 NaN。
func Prev(values []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	return values[len(values)-2]
}

// SafeDivide 除法保护，除数为0时返回0。
func SafeDivide(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func orDefault(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}
