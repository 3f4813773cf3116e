package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"quantdesk/internal/backtest"
)

const (
	TradesFile    = "trades.csv"
	DailyFile     = "daily.csv"
	BenchmarkFile = "benchmark.csv"
	SummaryFile   = "summary.json"
)

var (
	tradeHeader = []string{
		"time", "symbol", "side", "request_price", "price", "quantity", "amount",
		"commission", "stamp_tax", "transfer_fee", "flow_fee", "total_fee",
		"cash_after", "position_after", "total_asset_after", "order_type", "remark",
	}
	dailyHeader     = []string{"date", "time", "total_asset", "cash", "market_value", "daily_return", "benchmark_close", "positions"}
	benchmarkHeader = []string{"date", "close"}
)

// WriteCSV 将三张结果表与汇总写入 dir/<run id>/，返回输出目录。
func WriteCSV(dir string, result backtest.Result) (string, error) {
	out := filepath.Join(dir, result.RunID)
	if err := os.MkdirAll(out, 0o755); err != nil {
		return "", fmt.Errorf("report: 创建输出目录失败: %w", err)
	}

	trades := make([][]string, 0, len(result.Tables.TradeLog))
	for _, t := range result.Tables.TradeLog {
		trades = append(trades, []string{
			t.Time.Format(time.RFC3339),
			t.Symbol,
			string(t.Side),
			formatF(t.RequestPrice),
			formatF(t.Price),
			strconv.FormatInt(t.Quantity, 10),
			formatF(t.Amount),
			formatF(t.Fees.Commission),
			formatF(t.Fees.StampTax),
			formatF(t.Fees.TransferFee),
			formatF(t.Fees.FlowFee),
			formatF(t.Fees.Total),
			formatF(t.CashAfter),
			strconv.FormatInt(t.PositionAfter, 10),
			formatF(t.TotalAssetAfter),
			t.OrderType,
			t.Remark,
		})
	}
	if err := writeFile(filepath.Join(out, TradesFile), tradeHeader, trades); err != nil {
		return "", err
	}

	daily := make([][]string, 0, len(result.Tables.DailySnapshots))
	for _, s := range result.Tables.DailySnapshots {
		positions, err := json.Marshal(s.Positions)
		if err != nil {
			return "", fmt.Errorf("report: 序列化持仓失败: %w", err)
		}
		daily = append(daily, []string{
			s.Date,
			s.Time.Format(time.RFC3339),
			formatF(s.TotalAsset),
			formatF(s.Cash),
			formatF(s.MarketValue),
			formatF(s.DailyReturn),
			formatF(s.BenchmarkClose),
			string(positions),
		})
	}
	if err := writeFile(filepath.Join(out, DailyFile), dailyHeader, daily); err != nil {
		return "", err
	}

	bench := make([][]string, 0, len(result.Tables.BenchmarkSeries))
	for _, p := range result.Tables.BenchmarkSeries {
		bench = append(bench, []string{p.Date, formatF(p.Close)})
	}
	if err := writeFile(filepath.Join(out, BenchmarkFile), benchmarkHeader, bench); err != nil {
		return "", err
	}

	summary, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("report: 序列化汇总失败: %w", err)
	}
	if err := os.WriteFile(filepath.Join(out, SummaryFile), summary, 0o644); err != nil {
		return "", fmt.Errorf("report: 写入汇总失败: %w", err)
	}
	return out, nil
}

func writeFile(path string, header []string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: 创建 %s 失败: %w", filepath.Base(path), err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("report: 写入 %s 失败: %w", filepath.Base(path), err)
	}
	if err := w.WriteAll(records); err != nil {
		return fmt.Errorf("report: 写入 %s 失败: %w", filepath.Base(path), err)
	}
	return nil
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
