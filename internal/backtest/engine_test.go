package backtest

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"quantdesk/internal/cost"
	"quantdesk/internal/market"
	"quantdesk/internal/metrics"
	"quantdesk/internal/monitor"
	"quantdesk/internal/order"
	"quantdesk/internal/strategy"
	"quantdesk/internal/trigger"
)

func at(day, hour, minute int) time.Time {
	return time.Date(2024, 1, day, hour, minute, 0, 0, market.Location)
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

type scriptedStrategy struct {
	onTick func(view strategy.View) ([]order.Signal, error)
	views  []strategy.View
	events []string
}

func (s *scriptedStrategy) Name() string { return "scripted" }

func (s *scriptedStrategy) Init([]string, strategy.InitData) error { return nil }

func (s *scriptedStrategy) OnTick(view strategy.View) ([]order.Signal, error) {
	s.views = append(s.views, view)
	s.events = append(s.events, "tick:"+view.Date)
	if s.onTick != nil {
		return s.onTick(view)
	}
	return nil, nil
}

type sessionStrategy struct {
	scriptedStrategy
	availableAtPre []int64
	onPre          func(view strategy.View) []order.Signal
	onPost         func(view strategy.View) []order.Signal
}

func (s *sessionStrategy) PreMarket(view strategy.View) ([]order.Signal, error) {
	s.events = append(s.events, "pre:"+view.Date)
	if pos, ok := view.Position("000001"); ok {
		s.availableAtPre = append(s.availableAtPre, pos.Available)
	}
	if s.onPre != nil {
		return s.onPre(view), nil
	}
	return nil, nil
}

func (s *sessionStrategy) PostMarket(view strategy.View) ([]order.Signal, error) {
	s.events = append(s.events, "post:"+view.Date)
	if s.onPost != nil {
		return s.onPost(view), nil
	}
	return nil, nil
}

type eventLog struct {
	events []monitor.Event
}

func (l *eventLog) Notify(e monitor.Event) {
	l.events = append(l.events, e)
}

func (l *eventLog) count(t monitor.EventType) int {
	n := 0
	for _, e := range l.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func testCost() *cost.Model {
	return cost.New(cost.Config{CommissionRate: 0.0001, MinCommission: 5, StampTaxRate: 0.0005})
}

func baseConfig(universe ...string) Config {
	return Config{
		RunID:          "test-run",
		Start:          at(2, 0, 0),
		End:            at(4, 0, 0),
		InitialCapital: 1_000_000,
		Universe:       universe,
	}
}

func dailyProvider() *market.MemoryProvider {
	mem := market.NewMemoryProvider()
	mem.Put(market.Series{Symbol: "000001", Period: market.Period1d, Rows: []market.Row{
		{Time: at(2, 15, 0), Close: 10},
		{Time: at(3, 15, 0), Close: 11},
	}})
	return mem
}

func newDailyEngine(t *testing.T, strat strategy.Strategy, obs monitor.Observer, col *metrics.Collector) *Engine {
	t.Helper()
	trig, err := trigger.NewPeriod(market.Period1d)
	if err != nil {
		t.Fatalf("NewPeriod: %v", err)
	}
	eng, err := NewEngine(baseConfig("000001"), Deps{
		Provider: dailyProvider(),
		Strategy: strat,
		Trigger:  trig,
		Cost:     testCost(),
		Observer: obs,
		Metrics:  col,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return eng
}

func TestEngine_BuyThenSellNextDay(t *testing.T) {
	strat := &scriptedStrategy{onTick: func(view strategy.View) ([]order.Signal, error) {
		switch view.Date {
		case "2024-01-02":
			return []order.Signal{{Symbol: "000001", Action: order.Buy, Price: view.Price("000001"), Quantity: 100}}, nil
		case "2024-01-03":
			return []order.Signal{{Symbol: "000001", Action: order.Sell, Price: view.Price("000001"), Quantity: 100}}, nil
		}
		return nil, nil
	}}
	col := metrics.NewCollector()
	eng := newDailyEngine(t, strat, nil, col)

	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	trades := result.Tables.TradeLog
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if !approxEqual(trades[0].CashAfter, 998_995) || !approxEqual(trades[0].Fees.Total, 5) {
		t.Fatalf("unexpected buy fill %+v", trades[0])
	}
	if !approxEqual(trades[1].Fees.StampTax, 0.55) || !approxEqual(trades[1].CashAfter, 1_000_089.45) {
		t.Fatalf("unexpected sell fill %+v", trades[1])
	}

	snaps := result.Tables.DailySnapshots
	if len(snaps) != 2 {
		t.Fatalf("expected 2 daily snapshots, got %d", len(snaps))
	}
	if !approxEqual(snaps[0].TotalAsset, 999_995) || !approxEqual(snaps[0].MarketValue, 1000) {
		t.Fatalf("unexpected first snapshot %+v", snaps[0])
	}
	if !approxEqual(snaps[1].TotalAsset, 1_000_089.45) || len(snaps[1].Positions) != 0 {
		t.Fatalf("unexpected second snapshot %+v", snaps[1])
	}
	if result.Metrics.TradeCount != 2 || !approxEqual(result.Metrics.TotalReturn, 0.00008945) {
		t.Fatalf("unexpected metrics %+v", result.Metrics)
	}
	if result.Ticks != 2 || result.TotalTicks != 2 || result.Interrupted {
		t.Fatalf("unexpected progress counters %+v", result)
	}
	if result.Period != market.Period1d {
		t.Fatalf("expected daily period, got %s", result.Period)
	}
}

func TestEngine_SameDaySellRejected(t *testing.T) {
	strat := &scriptedStrategy{onTick: func(view strategy.View) ([]order.Signal, error) {
		if view.Date != "2024-01-02" {
			return nil, nil
		}
		return []order.Signal{
			{Symbol: "000001", Action: order.Buy, Price: 10, Quantity: 100},
			{Symbol: "000001", Action: order.Sell, Price: 10, Quantity: 100},
		}, nil
	}}
	obs := &eventLog{}
	eng := newDailyEngine(t, strat, obs, nil)

	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Tables.TradeLog) != 1 {
		t.Fatalf("expected only the buy to fill, got %d trades", len(result.Tables.TradeLog))
	}
	if obs.count(monitor.EventRejection) != 1 {
		t.Fatalf("expected one rejection event, got %d", obs.count(monitor.EventRejection))
	}
	for _, e := range obs.events {
		if e.Type != monitor.EventRejection {
			continue
		}
		payload := e.Payload.(monitor.RejectionPayload)
		if payload.Reason != "insufficient_position" || e.RunID != "test-run" {
			t.Fatalf("unexpected rejection %+v", e)
		}
	}
	if pos := result.Positions; len(pos) != 1 || pos[0].Quantity != 100 {
		t.Fatalf("position should survive the rejected sell: %+v", pos)
	}
}

func TestEngine_SignalPriceRoundedAndInvalidIgnored(t *testing.T) {
	strat := &scriptedStrategy{onTick: func(view strategy.View) ([]order.Signal, error) {
		if view.Date != "2024-01-02" {
			return nil, nil
		}
		return []order.Signal{
			{Symbol: "", Action: order.Buy, Price: 10, Quantity: 100},
			{Symbol: "000001", Action: order.Buy, Price: 10.004, Quantity: 0},
			{Symbol: "000001", Action: order.Buy, Price: 10.004, Quantity: 100},
		}, nil
	}}
	obs := &eventLog{}
	eng := newDailyEngine(t, strat, obs, nil)

	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Tables.TradeLog) != 1 || result.Tables.TradeLog[0].Price != 10 {
		t.Fatalf("expected a single fill at 10.00, got %+v", result.Tables.TradeLog)
	}
	if obs.count(monitor.EventWarning) != 1 {
		t.Fatalf("expected one warning for the invalid signal, got %d", obs.count(monitor.EventWarning))
	}
}

func TestEngine_ChronologicalOrder(t *testing.T) {
	mem := market.NewMemoryProvider()
	mem.Put(market.Series{Symbol: "000001", Period: market.PeriodTick, Rows: []market.Row{
		{Time: at(2, 9, 30), Last: 10},
		{Time: at(2, 9, 32), Last: 10.1},
		{Time: at(3, 9, 31), Last: 10.2},
	}})
	mem.Put(market.Series{Symbol: "600000", Period: market.PeriodTick, Rows: []market.Row{
		{Time: at(2, 9, 31), Last: 8},
		{Time: at(2, 9, 32), Last: 8.1},
		{Time: at(3, 9, 30), Last: 8.2},
	}})

	strat := &scriptedStrategy{}
	eng, err := NewEngine(baseConfig("000001", "600000"), Deps{Provider: mem, Strategy: strat})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.TotalTicks != 5 || len(strat.views) != 5 {
		t.Fatalf("expected 5 union ticks, got total=%d calls=%d", result.TotalTicks, len(strat.views))
	}
	for i := 1; i < len(strat.views); i++ {
		if !strat.views[i].Time.After(strat.views[i-1].Time) {
			t.Fatalf("views out of order at %d: %v then %v", i, strat.views[i-1].Time, strat.views[i].Time)
		}
	}

	// 9:31 只有 600000 有新数据，000001 沿用 9:30 的观测
	v := strat.views[1]
	if v.Price("000001") != 10 || v.Price("600000") != 8 {
		t.Fatalf("unexpected last-known prices at 9:31: %v", v.Prices())
	}
	// 次日 9:30 000001 尚无当日数据
	v = strat.views[3]
	if q := v.Quotes["000001"]; !q.Empty {
		t.Fatalf("expected empty marker for 000001 on the new day, got %+v", q)
	}
	if len(result.Tables.DailySnapshots) != 2 {
		t.Fatalf("expected one snapshot per trading day, got %d", len(result.Tables.DailySnapshots))
	}
}

type recordingProvider struct {
	inner market.Provider

	mu      sync.Mutex
	periods []market.Period
}

func (p *recordingProvider) Series(ctx context.Context, symbol string, period market.Period, start, end time.Time) (market.Series, error) {
	p.mu.Lock()
	p.periods = append(p.periods, period)
	p.mu.Unlock()
	return p.inner.Series(ctx, symbol, period, start, end)
}

func (p *recordingProvider) requested(period market.Period) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, got := range p.periods {
		if got == period {
			return true
		}
	}
	return false
}

func clockProvider(skipDay int) *recordingProvider {
	var rows []market.Row
	for day := 2; day <= 4; day++ {
		if day == skipDay {
			continue
		}
		rows = append(rows,
			market.Row{Time: at(day, 9, 30), Close: 10},
			market.Row{Time: at(day, 9, 31), Close: 10.2},
			market.Row{Time: at(day, 14, 0), Close: 10.5},
		)
	}
	mem := market.NewMemoryProvider()
	mem.Put(market.Series{Symbol: "600000", Period: market.Period1m, Rows: rows})
	return &recordingProvider{inner: mem}
}

func clockTrigger(t *testing.T) *trigger.Custom {
	t.Helper()
	trig, err := trigger.NewCustom([]time.Duration{
		14 * time.Hour,
		9*time.Hour + 30*time.Minute,
	})
	if err != nil {
		t.Fatalf("NewCustom: %v", err)
	}
	return trig
}

func TestEngine_CustomClockTimeline(t *testing.T) {
	provider := clockProvider(0)
	strat := &scriptedStrategy{}
	eng, err := NewEngine(baseConfig("600000"), Deps{
		Provider: provider,
		Strategy: strat,
		Trigger:  clockTrigger(t),
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !provider.requested(market.Period1m) || provider.requested(market.Period1s) {
		t.Fatalf("whole-minute clock should load 1m data, requested %v", provider.periods)
	}
	if result.Period != market.Period1m {
		t.Fatalf("expected 1m period, got %s", result.Period)
	}
	if result.TotalTicks != 6 || len(strat.views) != 6 {
		t.Fatalf("expected 2x3 ticks, got total=%d calls=%d", result.TotalTicks, len(strat.views))
	}

	want := []time.Time{at(2, 9, 30), at(2, 14, 0), at(3, 9, 30), at(3, 14, 0), at(4, 9, 30), at(4, 14, 0)}
	for i, v := range strat.views {
		if !v.Time.Equal(want[i]) {
			t.Fatalf("tick %d at %v, want %v", i, v.Time, want[i])
		}
		wantPrice := 10.0
		if v.Time.Hour() == 14 {
			wantPrice = 10.5
		}
		if got := v.Price("600000"); got != wantPrice {
			t.Fatalf("tick %d price %v, want %v", i, got, wantPrice)
		}
	}
	if len(result.Tables.DailySnapshots) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(result.Tables.DailySnapshots))
	}
}

func atSec(day, hour, minute, second int) time.Time {
	return time.Date(2024, 1, day, hour, minute, second, 0, market.Location)
}

func TestEngine_CustomClockSecondOffsets(t *testing.T) {
	mem := market.NewMemoryProvider()
	mem.Put(market.Series{Symbol: "600000", Period: market.Period1s, Rows: []market.Row{
		{Time: atSec(2, 9, 30, 14), Close: 10.1},
		{Time: atSec(2, 9, 30, 18), Close: 99},
		{Time: atSec(2, 14, 0, 12), Close: 77},
		{Time: atSec(3, 9, 30, 16), Close: 10.3},
		{Time: atSec(3, 14, 0, 14), Close: 10.4},
	}})
	provider := &recordingProvider{inner: mem}
	trig, err := trigger.NewCustom([]time.Duration{
		9*time.Hour + 30*time.Minute + 15*time.Second,
		14*time.Hour + 15*time.Second,
	})
	if err != nil {
		t.Fatalf("NewCustom: %v", err)
	}
	strat := &scriptedStrategy{}
	eng, err := NewEngine(baseConfig("600000"), Deps{Provider: provider, Strategy: strat, Trigger: trig})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !provider.requested(market.Period1s) || provider.requested(market.Period1m) {
		t.Fatalf("offsets off the whole minute should load 1s data, requested %v", provider.periods)
	}
	if result.Period != market.Period1s || result.TotalTicks != 6 {
		t.Fatalf("period=%s ticks=%d", result.Period, result.TotalTicks)
	}

	// 偏离时刻 3s 的行被过滤，1s 内（含之后 1s）的行可见
	cases := []struct {
		at    time.Time
		price float64
	}{
		{atSec(2, 9, 30, 15), 10.1},
		{atSec(2, 14, 0, 15), 10.1},
		{atSec(3, 9, 30, 15), 10.3},
		{atSec(3, 14, 0, 15), 10.4},
	}
	if len(strat.views) != len(cases) {
		t.Fatalf("expected %d OnTick calls, got %d", len(cases), len(strat.views))
	}
	for i, tc := range cases {
		v := strat.views[i]
		if !v.Time.Equal(tc.at) {
			t.Fatalf("call %d at %v, want %v", i, v.Time, tc.at)
		}
		if got := v.Price("600000"); got != tc.price {
			t.Fatalf("call %d price %v, want %v", i, got, tc.price)
		}
	}
}

func TestEngine_AllEmptyTickSkipped(t *testing.T) {
	obs := &eventLog{}
	strat := &scriptedStrategy{}
	col := metrics.NewCollector()
	eng, err := NewEngine(baseConfig("600000"), Deps{
		Provider: clockProvider(3),
		Strategy: strat,
		Trigger:  clockTrigger(t),
		Observer: obs,
		Metrics:  col,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.TotalTicks != 6 {
		t.Fatalf("synthetic timeline should still have 6 ticks, got %d", result.TotalTicks)
	}
	if len(strat.views) != 4 {
		t.Fatalf("strategy should skip the empty day, got %d calls", len(strat.views))
	}
	for _, v := range strat.views {
		if v.Date == "2024-01-03" {
			t.Fatalf("strategy invoked on the empty day at %v", v.Time)
		}
	}
	if obs.count(monitor.EventWarning) != 2 {
		t.Fatalf("expected 2 data-quality warnings, got %d", obs.count(monitor.EventWarning))
	}
	if len(result.Tables.DailySnapshots) != 3 {
		t.Fatalf("snapshot is still taken on the empty day, got %d", len(result.Tables.DailySnapshots))
	}
}

func TestEngine_PreAndPostMarketOrder(t *testing.T) {
	strat := &sessionStrategy{}
	strat.onTick = func(view strategy.View) ([]order.Signal, error) {
		if view.Date == "2024-01-02" {
			return []order.Signal{{Symbol: "000001", Action: order.Buy, Price: 10, Quantity: 100}}, nil
		}
		return nil, nil
	}
	trig, _ := trigger.NewPeriod(market.Period1d)
	cfg := baseConfig("000001")
	cfg.EnablePreMarket = true
	cfg.EnablePostMarket = true
	eng, err := NewEngine(cfg, Deps{Provider: dailyProvider(), Strategy: strat, Trigger: trig, Cost: testCost()})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if _, err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{
		"pre:2024-01-02", "tick:2024-01-02", "post:2024-01-02",
		"pre:2024-01-03", "tick:2024-01-03", "post:2024-01-03",
	}
	if strings.Join(strat.events, ",") != strings.Join(want, ",") {
		t.Fatalf("callback order = %v, want %v", strat.events, want)
	}
	if len(strat.availableAtPre) != 1 || strat.availableAtPre[0] != 100 {
		t.Fatalf("position should be settled before pre-market of the next day: %v", strat.availableAtPre)
	}
}

func TestEngine_PreAndPostMarketSignalsTrade(t *testing.T) {
	strat := &sessionStrategy{}
	strat.onPre = func(view strategy.View) []order.Signal {
		if view.Date == "2024-01-02" {
			return []order.Signal{{Symbol: "000001", Action: order.Buy, Price: 10, Quantity: 100, Remark: "pre"}}
		}
		return nil
	}
	strat.onPost = func(view strategy.View) []order.Signal {
		if view.Date == "2024-01-03" {
			return []order.Signal{{Symbol: "000001", Action: order.Sell, Price: 11, Quantity: 100, Remark: "post"}}
		}
		return nil
	}
	trig, _ := trigger.NewPeriod(market.Period1d)
	cfg := baseConfig("000001")
	cfg.EnablePreMarket = true
	cfg.EnablePostMarket = true
	eng, err := NewEngine(cfg, Deps{Provider: dailyProvider(), Strategy: strat, Trigger: trig, Cost: testCost()})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(strat.views) != 2 {
		t.Fatalf("expected 2 OnTick calls, got %d", len(strat.views))
	}
	first := strat.views[0]
	if !approxEqual(first.Account.Cash, 998_995) {
		t.Fatalf("pre-market buy should settle cash before OnTick, cash=%v", first.Account.Cash)
	}
	if pos, ok := first.Position("000001"); !ok || pos.Quantity != 100 || pos.Available != 0 {
		t.Fatalf("unexpected position at first OnTick: %+v ok=%v", pos, ok)
	}

	trades := result.Tables.TradeLog
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if trades[0].Side != order.Buy || !trades[0].Time.Equal(at(2, 15, 0)) || trades[0].Remark != "pre" {
		t.Fatalf("unexpected pre-market fill %+v", trades[0])
	}
	if trades[1].Side != order.Sell || !trades[1].Time.Equal(at(3, 15, 0)) || trades[1].Remark != "post" {
		t.Fatalf("unexpected post-market fill %+v", trades[1])
	}
	if !approxEqual(result.FinalAccount.Cash, 1_000_089.45) || len(result.Positions) != 0 {
		t.Fatalf("final cash=%v positions=%v", result.FinalAccount.Cash, result.Positions)
	}
}

func TestEngine_RiskDeniedSkipsStrategy(t *testing.T) {
	strat := &scriptedStrategy{}
	trig, _ := trigger.NewPeriod(market.Period1d)
	eng, err := NewEngine(baseConfig("000001"), Deps{
		Provider: dailyProvider(),
		Strategy: strat,
		Trigger:  trig,
		Risk:     RiskCheckerFunc(func(strategy.View) bool { return false }),
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(strat.views) != 0 {
		t.Fatalf("strategy must not run when risk denies, got %d calls", len(strat.views))
	}
	if len(result.Tables.DailySnapshots) != 2 {
		t.Fatalf("snapshots are independent of the risk gate, got %d", len(result.Tables.DailySnapshots))
	}
}

func tickProvider(n int) *market.MemoryProvider {
	rows := make([]market.Row, n)
	for i := range rows {
		rows[i] = market.Row{Time: at(2, 9, 30).Add(time.Duration(i) * time.Minute), Last: 10}
	}
	mem := market.NewMemoryProvider()
	mem.Put(market.Series{Symbol: "000001", Period: market.PeriodTick, Rows: rows})
	return mem
}

func TestEngine_ProgressCoalesced(t *testing.T) {
	obs := &eventLog{}
	eng, err := NewEngine(baseConfig("000001"), Deps{Provider: tickProvider(250), Strategy: &scriptedStrategy{}, Observer: obs})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if _, err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// 前 5 个逐个通知，之后每 2 个（1%）通知一次
	if got := obs.count(monitor.EventProgress); got != 128 {
		t.Fatalf("expected 128 progress events, got %d", got)
	}
	last := obs.events[len(obs.events)-1].Payload.(monitor.ProgressPayload)
	if last.Current != 250 || last.Total != 250 || last.Percent != 100 {
		t.Fatalf("unexpected final progress %+v", last)
	}
}

func TestEngine_StopReturnsPartialResult(t *testing.T) {
	var eng *Engine
	calls := 0
	strat := &scriptedStrategy{onTick: func(strategy.View) ([]order.Signal, error) {
		calls++
		if calls == 2 {
			eng.Stop()
		}
		return nil, nil
	}}
	var err error
	eng, err = NewEngine(baseConfig("000001"), Deps{Provider: tickProvider(10), Strategy: strat})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	result, err := eng.Run(context.Background())
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if result.Ticks != 2 || !result.Interrupted || result.TotalTicks != 10 {
		t.Fatalf("unexpected partial result %+v", result)
	}
	if len(result.Tables.DailySnapshots) != 0 {
		t.Fatalf("interrupted day must not be snapshotted")
	}
}

func TestEngine_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	strat := &scriptedStrategy{onTick: func(strategy.View) ([]order.Signal, error) {
		cancel()
		return nil, nil
	}}
	eng, err := NewEngine(baseConfig("000001"), Deps{Provider: tickProvider(10), Strategy: strat})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	result, err := eng.Run(ctx)
	if !errors.Is(err, ErrStopped) || result.Ticks != 1 {
		t.Fatalf("expected stop after the first tick, got ticks=%d err=%v", result.Ticks, err)
	}
}

func TestEngine_TickFailures(t *testing.T) {
	errBoom := errors.New("boom")
	cases := []struct {
		name   string
		onTick func(calls int) ([]order.Signal, error)
		isErr  error
	}{
		{
			name: "strategy error",
			onTick: func(calls int) ([]order.Signal, error) {
				if calls == 3 {
					return nil, errBoom
				}
				return nil, nil
			},
			isErr: errBoom,
		},
		{
			name: "strategy panic",
			onTick: func(calls int) ([]order.Signal, error) {
				if calls == 3 {
					panic("index out of range")
				}
				return nil, nil
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			strat := &scriptedStrategy{onTick: func(strategy.View) ([]order.Signal, error) {
				calls++
				return tc.onTick(calls)
			}}
			eng, err := NewEngine(baseConfig("000001"), Deps{Provider: tickProvider(10), Strategy: strat})
			if err != nil {
				t.Fatalf("NewEngine: %v", err)
			}
			result, err := eng.Run(context.Background())

			var tickErr *TickError
			if !errors.As(err, &tickErr) {
				t.Fatalf("expected *TickError, got %v", err)
			}
			if tickErr.Index != 2 || !tickErr.Timestamp.Equal(at(2, 9, 32)) {
				t.Fatalf("unexpected tick error location %+v", tickErr)
			}
			if tc.isErr != nil && !errors.Is(err, tc.isErr) {
				t.Fatalf("tick error should unwrap to the strategy error: %v", err)
			}
			if result.Ticks != 2 || !result.Interrupted {
				t.Fatalf("unexpected partial result %+v", result)
			}
		})
	}
}

func TestEngine_EmptyTimeline(t *testing.T) {
	eng, err := NewEngine(baseConfig("000001"), Deps{Provider: market.NewMemoryProvider(), Strategy: &scriptedStrategy{}})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if _, err := eng.Run(context.Background()); !errors.Is(err, ErrEmptyTimeline) {
		t.Fatalf("expected ErrEmptyTimeline, got %v", err)
	}
	if _, err := eng.Run(context.Background()); err == nil {
		t.Fatalf("engine must refuse a second run")
	}
}

func TestNewEngine_Validation(t *testing.T) {
	if _, err := NewEngine(baseConfig(), Deps{Provider: market.NewMemoryProvider(), Strategy: &scriptedStrategy{}}); err == nil {
		t.Fatalf("empty universe should be rejected")
	}
	cfg := baseConfig("000001")
	cfg.End = cfg.Start.AddDate(0, 0, -1)
	if _, err := NewEngine(cfg, Deps{Provider: market.NewMemoryProvider(), Strategy: &scriptedStrategy{}}); err == nil {
		t.Fatalf("inverted range should be rejected")
	}
	if _, err := NewEngine(baseConfig("000001"), Deps{Strategy: &scriptedStrategy{}}); err == nil {
		t.Fatalf("missing provider should be rejected")
	}
}
