package risk

import (
	"testing"

	"quantdesk/internal/config"
	"quantdesk/internal/ledger"
	"quantdesk/internal/strategy"
)

func baseView() strategy.View {
	return strategy.View{
		Date:    "2024-01-02",
		Account: ledger.Account{TotalAsset: 100_000, InitialCapital: 100_000, Cash: 50_000, MarketValue: 50_000},
		Positions: map[string]ledger.Position{
			"000001": {Symbol: "000001", Quantity: 1000, MarketValue: 30_000},
			"600000": {Symbol: "600000", Quantity: 1000, MarketValue: 20_000},
		},
		Session: strategy.Session{InitialCapital: 100_000, DayStartAsset: 100_000},
	}
}

func TestGate_DefaultConfigAlwaysPasses(t *testing.T) {
	g := NewGate(config.RiskConfig{}, nil)
	v := baseView()
	v.Account.TotalAsset = 10
	v.Session.TradesToday = 1000
	if !g.Check(v) {
		t.Fatalf("zero thresholds must not deny")
	}
}

func TestGate_Limits(t *testing.T) {
	cases := []struct {
		name   string
		cfg    config.RiskConfig
		mutate func(*strategy.View)
		allow  bool
	}{
		{"positions within limit", config.RiskConfig{MaxPositions: 2}, nil, true},
		{"too many positions", config.RiskConfig{MaxPositions: 1}, nil, false},
		{"position ratio exceeded", config.RiskConfig{MaxPositionRatio: 0.25}, nil, false},
		{"position ratio ok", config.RiskConfig{MaxPositionRatio: 0.5}, nil, true},
		{"daily orders reached", config.RiskConfig{MaxDailyOrders: 3}, func(v *strategy.View) { v.Session.TradesToday = 3 }, false},
		{"daily orders below", config.RiskConfig{MaxDailyOrders: 3}, func(v *strategy.View) { v.Session.TradesToday = 2 }, true},
		{"total loss", config.RiskConfig{MaxTotalLoss: 0.1}, func(v *strategy.View) {
			v.Account.TotalAsset = 89_000
			v.Session.DayStartAsset = 89_000
		}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := baseView()
			if tc.mutate != nil {
				tc.mutate(&v)
			}
			d := NewGate(tc.cfg, nil).Evaluate(v)
			if d.Allowed() != tc.allow {
				t.Fatalf("allowed=%v want %v (reason=%s)", d.Allowed(), tc.allow, d.Reason)
			}
			if !tc.allow && d.Reason == "" {
				t.Fatalf("deny decision should carry a reason")
			}
		})
	}
}

func TestGate_DailyLossHaltsUntilNextDay(t *testing.T) {
	g := NewGate(config.RiskConfig{MaxDailyLoss: 0.05}, nil)

	v := baseView()
	v.Account.TotalAsset = 94_000
	d := g.Evaluate(v)
	if d.Allowed() || !d.DailyStatus.Halted {
		t.Fatalf("expected halt on 6%% daily loss, got %+v", d)
	}

	// 同日即便回升也保持停止
	v.Account.TotalAsset = 99_000
	if g.Check(v) {
		t.Fatalf("halt should persist for the rest of the day")
	}

	v.Date = "2024-01-03"
	v.Session.DayStartAsset = 99_000
	if !g.Check(v) {
		t.Fatalf("halt should reset on the next trading day")
	}
}
