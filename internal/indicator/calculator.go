package indicator

import (
	"fmt"
	"math"
	"sync"

	talib "github.com/markcheno/go-talib"
)

// Periods 为 Calculator 使用的指标周期，零值字段取默认。
type Periods struct {
	MACDFast   int
	MACDSlow   int
	MACDSignal int
	BollPeriod int
	BollDev    float64
	ATR        int
	RSI        int
}

// DefaultPeriods 为常用的 12/26/9、20/2、14 组合。
func DefaultPeriods() Periods {
	return Periods{MACDFast: 12, MACDSlow: 26, MACDSignal: 9, BollPeriod: 20, BollDev: 2, ATR: 14, RSI: 14}
}

func (p Periods) withDefaults() Periods {
	def := DefaultPeriods()
	if p.MACDFast <= 0 {
		p.MACDFast = def.MACDFast
	}
	if p.MACDSlow <= p.MACDFast {
		p.MACDSlow = max(def.MACDSlow, p.MACDFast+1)
	}
	if p.MACDSignal <= 0 {
		p.MACDSignal = def.MACDSignal
	}
	if p.BollPeriod <= 1 {
		p.BollPeriod = def.BollPeriod
	}
	if p.BollDev <= 0 {
		p.BollDev = def.BollDev
	}
	if p.ATR <= 0 {
		p.ATR = def.ATR
	}
	if p.RSI <= 1 {
		p.RSI = def.RSI
	}
	return p
}

// MACD 柱线及其前值，用于判断柱线翻转。
type MACD struct {
	Line          float64
	Signal        float64
	Histogram     float64
	PrevHistogram float64
}

// CrossedUp 柱线由非正转正。
func (m MACD) CrossedUp() bool {
	return m.PrevHistogram <= 0 && m.Histogram > 0
}

// CrossedDown 柱线由非负转负。
func (m MACD) CrossedDown() bool {
	return m.PrevHistogram >= 0 && m.Histogram < 0
}

// Bands 布林带，Position 为收盘价在带内的相对位置 [0,1]。
type Bands struct {
	Upper    float64
	Middle   float64
	Lower    float64
	Width    float64
	Position float64
}

// Snapshot 为某标的最新一根 bar 上的指标值，样本不足的字段为 NaN。
type Snapshot struct {
	Key       string
	Bars      int
	Close     float64
	PrevClose float64
	MACD      MACD
	Bands     Bands
	ATR       float64
	RSI       float64
}

// Ready 各指标均已有有效值。
func (s Snapshot) Ready() bool {
	return !math.IsNaN(s.MACD.PrevHistogram) && !math.IsNaN(s.Bands.Middle) && !math.IsNaN(s.ATR)
}

type cached struct {
	stamp    string
	snapshot Snapshot
}

// Calculator 按标的缓存最近一次计算结果，同一序列重复计算直接命中缓存。
type Calculator struct {
	periods Periods

	mu    sync.Mutex
	cache map[string]cached
}

// NewCalculator 创建 Calculator。
func NewCalculator(periods Periods) *Calculator {
	return &Calculator{
		periods: periods.withDefaults(),
		cache:   make(map[string]cached),
	}
}

// Periods 返回生效的周期参数。
func (c *Calculator) Periods() Periods {
	return c.periods
}

// MinBars 返回全部指标就绪所需的最少 bar 数。
func (c *Calculator) MinBars() int {
	p := c.periods
	return max(p.MACDSlow+p.MACDSignal, p.BollPeriod, p.ATR+1, p.RSI+1) + 1
}

// Compute 计算 series 最新一根 bar 上的指标，key 通常为标的代码。
func (c *Calculator) Compute(key string, series Series) (Snapshot, error) {
	n := series.Len()
	if n == 0 {
		return Snapshot{}, fmt.Errorf("indicator: %s 序列为空", key)
	}
	stamp := fmt.Sprintf("%d:%d:%v", n, series.Timestamps[n-1].UnixMilli(), series.Close[n-1])

	c.mu.Lock()
	hit, ok := c.cache[key]
	c.mu.Unlock()
	if ok && hit.stamp == stamp {
		return hit.snapshot, nil
	}

	snap := c.snapshot(key, series)

	c.mu.Lock()
	c.cache[key] = cached{stamp: stamp, snapshot: snap}
	c.mu.Unlock()
	return snap, nil
}

// Reset 清空缓存。
func (c *Calculator) Reset() {
	c.mu.Lock()
	c.cache = make(map[string]cached)
	c.mu.Unlock()
}

func (c *Calculator) snapshot(key string, series Series) Snapshot {
	p := c.periods
	closes := series.Close
	n := len(closes)

	snap := Snapshot{
		Key:       key,
		Bars:      n,
		Close:     Last(closes),
		PrevClose: Prev(closes),
		MACD:      MACD{Line: math.NaN(), Signal: math.NaN(), Histogram: math.NaN(), PrevHistogram: math.NaN()},
		Bands:     Bands{Upper: math.NaN(), Middle: math.NaN(), Lower: math.NaN(), Width: math.NaN(), Position: math.NaN()},
		ATR:       math.NaN(),
		RSI:       RSI(closes, p.RSI),
	}

	// talib 的 MACD 需要 slow+signal-1 个样本才产出首个柱线，再多一个才有前值
	if n >= p.MACDSlow+p.MACDSignal {
		line, signal, hist := talib.Macd(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
		snap.MACD = MACD{Line: Last(line), Signal: Last(signal), Histogram: Last(hist), PrevHistogram: Prev(hist)}
	}

	if n >= p.BollPeriod {
		upper, middle, lower := talib.BBands(closes, p.BollPeriod, p.BollDev, p.BollDev, talib.SMA)
		snap.Bands = bands(snap.Close, Last(upper), Last(middle), Last(lower))
	}

	if n > p.ATR {
		snap.ATR = Last(talib.Atr(series.High, series.Low, closes, p.ATR))
	}
	return snap
}

func bands(price, upper, middle, lower float64) Bands {
	b := Bands{Upper: upper, Middle: middle, Lower: lower, Width: SafeDivide(upper-lower, middle)}
	if span := upper - lower; span > 0 {
		b.Position = math.Max(0, math.Min(1, (price-lower)/span))
	} else {
		b.Position = 0.5
	}
	return b
}

// SMA 返回最新的简单移动平均值，样本不足返回 NaN。
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return math.NaN()
	}
	return Last(talib.Sma(values, period))
}

// SMASeries 返回最近两个 SMA 值 (prev, last)，用于判断穿越。
func SMASeries(values []float64, period int) (float64, float64) {
	if period <= 0 || len(values) < period+1 {
		return math.NaN(), math.NaN()
	}
	out := talib.Sma(values, period)
	return Prev(out), Last(out)
}

// RSI 返回最新的 RSI，需要至少 period+1 个样本。
func RSI(values []float64, period int) float64 {
	if period <= 1 || len(values) <= period {
		return math.NaN()
	}
	return Last(talib.Rsi(values, period))
}
