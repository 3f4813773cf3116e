package market

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestReadCSV_HeaderAliases(t *testing.T) {
	input := "\ufeffDateTime,Open,High,Low,Close,Vol\n" +
		"2024-01-02 09:31:00,10,10.2,9.9,10.1,1000\n" +
		"2024-01-02 09:30:00,9.9,10,9.8,10,800\n"
	rows, err := ReadCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Close != 10.1 || rows[0].Volume != 1000 {
		t.Fatalf("unexpected row %+v", rows[0])
	}
}

func TestReadCSV_Errors(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("open,close\n1,2\n")); err == nil {
		t.Fatalf("expected missing time column error")
	}
	if _, err := ReadCSV(strings.NewReader("time,close\nyesterday,2\n")); err == nil {
		t.Fatalf("expected unparseable time error")
	}
	rows, err := ReadCSV(strings.NewReader(""))
	if err != nil || rows != nil {
		t.Fatalf("empty input should yield no rows, got %v %v", rows, err)
	}
}

func TestCSVProvider_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2024, 1, 2, 9, 30, 0, 0, Location)
	rows := []Row{
		{Time: base, Close: 10},
		{Time: base.Add(time.Minute), Close: 10.5},
		{Time: base.AddDate(0, 0, 1), Close: 11},
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	provider := NewCSVProvider(dir).WithAdjust("qfq")
	path := provider.Path("000001", Period1m)
	if filepath.Base(path) != "000001_1m_qfq.csv" {
		t.Fatalf("unexpected path %s", path)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	series, err := provider.Series(context.Background(), "000001", Period1m, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if series.Len() != 2 || series.Rows[1].Close != 10.5 {
		t.Fatalf("unexpected series %+v", series.Rows)
	}

	_, err = provider.Series(context.Background(), "600000", Period1m, time.Time{}, time.Time{})
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("missing file should be ErrNoData, got %v", err)
	}
}
