package indicator

import (
	"math"
	"testing"
	"time"

	"quantdesk/internal/market"
)

func TestSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	if got := SMA(values, 5); math.Abs(got-3) > 1e-9 {
		t.Fatalf("SMA(5)=%v want 3", got)
	}
	if got := SMA(values, 6); !math.IsNaN(got) {
		t.Fatalf("expected NaN for short input, got %v", got)
	}
	prev, last := SMASeries(values, 2)
	if math.Abs(prev-3.5) > 1e-9 || math.Abs(last-4.5) > 1e-9 {
		t.Fatalf("SMASeries=(%v,%v)", prev, last)
	}
}

func TestRSI_MonotonicRise(t *testing.T) {
	values := make([]float64, 30)
	for i := range values {
		values[i] = float64(10 + i)
	}
	if got := RSI(values, 14); math.Abs(got-100) > 1e-6 {
		t.Fatalf("RSI of a strictly rising series should be 100, got %v", got)
	}
	if got := RSI(values[:14], 14); !math.IsNaN(got) {
		t.Fatalf("expected NaN with insufficient samples, got %v", got)
	}
}

func TestWindow_RollsAndOverwrites(t *testing.T) {
	w := NewWindow(3)
	base := time.Date(2024, 1, 2, 9, 30, 0, 0, market.Location)
	for i := 0; i < 4; i++ {
		w.Push(base.Add(time.Duration(i)*time.Minute), float64(i))
	}
	w.Push(base.Add(3*time.Minute), 9)

	got := w.Values()
	want := []float64{1, 2, 9}
	if len(got) != len(want) {
		t.Fatalf("len=%d want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("values=%v want %v", got, want)
		}
	}
}

func TestCalculatorCompute_ShortSeries(t *testing.T) {
	base := time.Date(2024, 1, 2, 9, 30, 0, 0, market.Location)
	rows := []market.Row{
		{Time: base, Last: 10},
		{Time: base.Add(time.Second), Last: 10.5},
	}
	calc := NewCalculator(Periods{})
	series := NewSeries(rows)
	snap, err := calc.Compute("000001", series)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if snap.Close != 10.5 || snap.PrevClose != 10 || snap.Bars != 2 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if !math.IsNaN(snap.RSI) || !math.IsNaN(snap.MACD.Histogram) || !math.IsNaN(snap.ATR) || snap.Ready() {
		t.Fatalf("indicators should be NaN on short input: %+v", snap)
	}
	if series.High[0] != 10 {
		t.Fatalf("tick rows should fill OHLC from last price")
	}

	if _, err := calc.Compute("000001", Series{}); err == nil {
		t.Fatalf("expected error for empty series")
	}
}

func TestPeriods_Defaults(t *testing.T) {
	calc := NewCalculator(Periods{MACDFast: 5, MACDSlow: 3})
	p := calc.Periods()
	if p.MACDFast != 5 || p.MACDSlow != 26 || p.MACDSignal != 9 || p.BollPeriod != 20 || p.ATR != 14 {
		t.Fatalf("unexpected periods %+v", p)
	}
	if got := calc.MinBars(); got != 36 {
		t.Fatalf("MinBars=%d want 36", got)
	}
}

func TestSeriesAppend_LimitAndOverwrite(t *testing.T) {
	base := time.Date(2024, 1, 2, 15, 0, 0, 0, market.Location)
	var s Series
	for i := 0; i < 5; i++ {
		s.Append(market.Row{Time: base.AddDate(0, 0, i), Close: float64(10 + i), High: float64(11 + i)}, 3)
	}
	s.Append(market.Row{Time: base.AddDate(0, 0, 4), Close: 20}, 3)
	s.Append(market.Row{Time: base.AddDate(0, 0, 5)}, 3)

	want := []float64{12, 13, 20}
	if s.Len() != len(want) {
		t.Fatalf("len=%d want %d", s.Len(), len(want))
	}
	for i := range want {
		if s.Close[i] != want[i] {
			t.Fatalf("closes=%v want %v", s.Close, want)
		}
	}
	if s.High[2] != 20 || s.High[0] != 13 {
		t.Fatalf("highs=%v", s.High)
	}
	if !s.Timestamps[0].Equal(base.AddDate(0, 0, 2)) {
		t.Fatalf("oldest bar %v", s.Timestamps[0])
	}
}

func TestCalculatorCompute_MACDTurnsUp(t *testing.T) {
	base := time.Date(2024, 1, 2, 15, 0, 0, 0, market.Location)
	calc := NewCalculator(Periods{})
	var s Series
	price := 30.0
	crossedUp := false
	for i := 0; i < 80; i++ {
		if i < 50 {
			price -= 0.2
		} else {
			price += 0.5
		}
		s.Append(market.Row{Time: base.AddDate(0, 0, i), Open: price, High: price + 0.1, Low: price - 0.1, Close: price}, 0)
		snap, err := calc.Compute("600000.SH", s)
		if err != nil {
			t.Fatalf("Compute: %v", err)
		}
		if i >= calc.MinBars() && !snap.Ready() {
			t.Fatalf("bar %d: snapshot not ready %+v", i, snap)
		}
		if i >= 50 && snap.MACD.CrossedUp() {
			crossedUp = true
		}
	}
	if !crossedUp {
		t.Fatalf("expected MACD histogram to turn positive after reversal")
	}

	snap, _ := calc.Compute("600000.SH", s)
	// 线性上涨时收盘价处于带内上沿附近
	if snap.Bands.Position < 0.8 || snap.Bands.Position > 1 {
		t.Fatalf("band position %v for close %v upper %v", snap.Bands.Position, snap.Close, snap.Bands.Upper)
	}
	if math.Abs(snap.ATR-0.5) > 0.2 {
		t.Fatalf("ATR=%v, want close to the daily move", snap.ATR)
	}
}
