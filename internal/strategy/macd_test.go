package strategy

import (
	"testing"

	"quantdesk/internal/ledger"
	"quantdesk/internal/order"
)

func TestMACDTrend_InvalidParams(t *testing.T) {
	if _, err := NewMACDTrend(Params{"fast": 26, "slow": 12}); err == nil {
		t.Fatalf("expected error when fast >= slow")
	}
	if _, err := NewMACDTrend(Params{"max_band": 1.5}); err == nil {
		t.Fatalf("expected error for max_band > 1")
	}
}

func TestMACDTrend_BuysOnReversalAndExits(t *testing.T) {
	s, err := NewMACDTrend(Params{
		"fast": 3, "slow": 6, "signal": 3,
		"boll_period": 5, "atr_period": 3, "max_band": 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Init([]string{"X"}, InitData{}); err != nil {
		t.Fatal(err)
	}

	// 加速下跌 30 根，上涨 15 根，再加速下跌 20 根
	var prices []float64
	for i := 0; i < 30; i++ {
		prices = append(prices, 50-0.02*float64(i*i))
	}
	top := prices[len(prices)-1]
	for i := 1; i <= 15; i++ {
		top++
		prices = append(prices, top)
	}
	for i := 1; i <= 20; i++ {
		prices = append(prices, top-0.1*float64(i*i))
	}

	var held map[string]ledger.Position
	boughtAt, soldAt := -1, -1
	for i, p := range prices {
		signals, err := s.OnTick(viewAt(i, map[string]float64{"X": p}, held))
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		for _, sig := range signals {
			switch sig.Action {
			case order.Buy:
				if boughtAt >= 0 {
					t.Fatalf("tick %d: duplicate buy %+v", i, sig)
				}
				boughtAt = i
				held = map[string]ledger.Position{"X": {Symbol: "X", Quantity: sig.Quantity, Available: sig.Quantity, AvgPrice: sig.Price}}
			case order.Sell:
				if held == nil {
					t.Fatalf("tick %d: sell without position", i)
				}
				soldAt = i
				held = nil
			}
		}
		if soldAt >= 0 {
			break
		}
	}

	if boughtAt < 30 || boughtAt >= 45 {
		t.Fatalf("expected buy during the rally, got tick %d", boughtAt)
	}
	if soldAt < 45 {
		t.Fatalf("expected exit after the rally ended, got tick %d", soldAt)
	}
}
