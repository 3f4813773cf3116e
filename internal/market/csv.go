package market

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// CSVProvider 从目录中读取 <symbol>_<period>.csv 文件，复权数据为
// <symbol>_<period>_<adjust>.csv。首行为表头，time 列必填，其余列按名称映射到 Row 字段。
type CSVProvider struct {
	dir    string
	adjust string
}

// NewCSVProvider 创建 CSV 数据源。
func NewCSVProvider(dir string) *CSVProvider {
	return &CSVProvider{dir: dir}
}

// WithAdjust 设置复权方式（qfq/hfq），none 或空表示不复权。
func (p *CSVProvider) WithAdjust(adjust string) *CSVProvider {
	adjust = strings.ToLower(strings.TrimSpace(adjust))
	if adjust == "none" {
		adjust = ""
	}
	p.adjust = adjust
	return p
}

// Path 返回标的周期对应的文件路径。
func (p *CSVProvider) Path(symbol string, period Period) string {
	name := fmt.Sprintf("%s_%s", strings.ReplaceAll(symbol, "/", "-"), period)
	if p.adjust != "" {
		name += "_" + p.adjust
	}
	return filepath.Join(p.dir, name+".csv")
}

// Series 实现 Provider。
func (p *CSVProvider) Series(ctx context.Context, symbol string, period Period, start, end time.Time) (Series, error) {
	if err := ctx.Err(); err != nil {
		return Series{}, err
	}
	path := p.Path(symbol, period)
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Series{}, fmt.Errorf("%w: %s", ErrNoData, path)
		}
		return Series{}, fmt.Errorf("market: 打开 %s 失败: %w", path, err)
	}
	defer file.Close()

	rows, err := ReadCSV(file)
	if err != nil {
		return Series{}, fmt.Errorf("market: 解析 %s 失败: %w", path, err)
	}
	series := Series{Symbol: symbol, Period: period, Rows: rows}
	series.Sanitize()
	return series.Between(start, end), nil
}

// ReadCSV 解析带表头的行情 CSV。
func ReadCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	timeCol, ok := firstColumn(columns, "time", "datetime", "timestamp", "date", "trade_time")
	if !ok {
		return nil, errors.New("缺少时间列")
	}

	var rows []Row
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", line, err)
		}
		if timeCol >= len(record) {
			continue
		}
		ts, ok := NormalizeTimestamp(record[timeCol])
		if !ok {
			return nil, fmt.Errorf("第 %d 行: 无法解析时间 %q", line, record[timeCol])
		}
		row := Row{Time: ts}
		row.Open = floatColumn(record, columns, "open")
		row.High = floatColumn(record, columns, "high")
		row.Low = floatColumn(record, columns, "low")
		row.Close = floatColumn(record, columns, "close")
		row.Volume = floatColumn(record, columns, "volume", "vol")
		row.Amount = floatColumn(record, columns, "amount")
		row.Last = floatColumn(record, columns, "last", "last_price", "lastprice")
		row.Bid1 = floatColumn(record, columns, "bid1", "bid_price1")
		row.Ask1 = floatColumn(record, columns, "ask1", "ask_price1")
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteCSV 以标准表头写出序列。
func WriteCSV(w io.Writer, rows []Row) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"time", "open", "high", "low", "close", "volume", "amount", "last", "bid1", "ask1"}); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.Time.In(Location).Format("2006-01-02 15:04:05"),
			formatFloat(row.Open), formatFloat(row.High), formatFloat(row.Low), formatFloat(row.Close),
			formatFloat(row.Volume), formatFloat(row.Amount),
			formatFloat(row.Last), formatFloat(row.Bid1), formatFloat(row.Ask1),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func firstColumn(columns map[string]int, names ...string) (int, bool) {
	for _, name := range names {
		if i, ok := columns[name]; ok {
			return i, true
		}
	}
	return 0, false
}

func floatColumn(record []string, columns map[string]int, names ...string) float64 {
	i, ok := firstColumn(columns, names...)
	if !ok || i >= len(record) {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
	if err != nil {
		return 0
	}
	return v
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
