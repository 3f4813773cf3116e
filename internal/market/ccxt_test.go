package market

import (
	"context"
	"net"
	"testing"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

type fakeOHLCVClient struct {
	pages [][]ccxt.OHLCV
	errs  []error
	calls int
}

func (f *fakeOHLCVClient) FetchOHLCV(symbol string, options ...ccxt.FetchOHLCVOptions) ([]ccxt.OHLCV, error) {
	idx := f.calls
	f.calls++
	if idx < len(f.errs) && f.errs[idx] != nil {
		return nil, f.errs[idx]
	}
	page := idx - countErrors(f.errs[:min(idx, len(f.errs))])
	if page >= len(f.pages) {
		return nil, nil
	}
	return f.pages[page], nil
}

func countErrors(errs []error) int {
	n := 0
	for _, err := range errs {
		if err != nil {
			n++
		}
	}
	return n
}

func candle(ts time.Time, price float64) ccxt.OHLCV {
	return ccxt.OHLCV{Timestamp: ts.UnixMilli(), Open: price, High: price, Low: price, Close: price, Volume: 1}
}

func TestCCXTProvider_Pagination(t *testing.T) {
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, Location)
	client := &fakeOHLCVClient{pages: [][]ccxt.OHLCV{
		{candle(base, 1), candle(base.Add(time.Minute), 2)},
		{candle(base.Add(2*time.Minute), 3)},
	}}
	loads := 0
	provider := newCCXTProvider(CCXTOptions{Exchange: "fake", PageLimit: 2}, client, func() error {
		loads++
		return nil
	}, nil)

	series, err := provider.Series(context.Background(), "BTC/USDT", Period1m, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if series.Len() != 3 || series.Rows[2].Close != 3 {
		t.Fatalf("unexpected series %+v", series.Rows)
	}
	if client.calls != 2 {
		t.Fatalf("expected 2 page fetches, got %d", client.calls)
	}

	if _, err := provider.Series(context.Background(), "BTC/USDT", PeriodTick, base, base); err == nil {
		t.Fatalf("tick period should be unsupported")
	}
	if loads != 1 {
		t.Fatalf("markets should be loaded once, got %d", loads)
	}
}

func TestCCXTProvider_RetriesNetworkErrors(t *testing.T) {
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, Location)
	client := &fakeOHLCVClient{
		errs:  []error{&net.DNSError{Err: "timeout", IsTimeout: true}},
		pages: [][]ccxt.OHLCV{{candle(base, 1)}},
	}
	provider := newCCXTProvider(CCXTOptions{
		Exchange:    "fake",
		PageLimit:   10,
		MaxAttempts: 3,
		MinDelay:    time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
	}, client, nil, nil)

	series, err := provider.Series(context.Background(), "BTC/USDT", Period1d, base, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if series.Len() != 1 || client.calls != 2 {
		t.Fatalf("expected one retry then success, calls=%d len=%d", client.calls, series.Len())
	}
}
