package market

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoadAll(t *testing.T) {
	base := time.Date(2024, 1, 2, 9, 30, 0, 0, Location)
	mem := NewMemoryProvider()
	mem.Put(Series{Symbol: "A", Period: Period1m, Rows: []Row{
		{Time: base, Close: 1},
		{Time: base.Add(time.Minute), Close: 2},
	}})

	result, err := LoadAll(context.Background(), mem, []string{"A", "B"}, LoadOptions{
		Period:      Period1m,
		Concurrency: 2,
		Filter: func(s Series) Series {
			return s.Between(base, base)
		},
	}, nil)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if result["A"].Len() != 1 {
		t.Fatalf("filter not applied: %+v", result["A"])
	}
	b, ok := result["B"]
	if !ok || !b.Empty() || b.Symbol != "B" {
		t.Fatalf("missing symbol should load as empty series, got %+v", b)
	}
}

func TestLoadAll_FatalError(t *testing.T) {
	boom := errors.New("disk on fire")
	provider := ProviderFunc(func(ctx context.Context, symbol string, period Period, start, end time.Time) (Series, error) {
		if symbol == "bad" {
			return Series{}, boom
		}
		return Series{Symbol: symbol}, nil
	})
	_, err := LoadAll(context.Background(), provider, []string{"ok", "bad"}, LoadOptions{Period: Period1d}, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped provider error, got %v", err)
	}
}

func TestDailyCloses(t *testing.T) {
	mem := NewMemoryProvider()
	d1 := time.Date(2024, 1, 2, 0, 0, 0, 0, Location)
	mem.Put(Series{Symbol: "IDX", Period: Period1d, Rows: []Row{
		{Time: d1, Close: 3000},
		{Time: d1.AddDate(0, 0, 1), Close: 3010},
	}})
	closes, err := DailyCloses(context.Background(), mem, "IDX", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("DailyCloses: %v", err)
	}
	if closes["2024-01-03"] != 3010 || len(closes) != 2 {
		t.Fatalf("unexpected closes %v", closes)
	}
}
