package market

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteProvider 从 bars 表读取历史行情。ts 列允许秒或毫秒精度。
type SQLiteProvider struct {
	db *sql.DB
}

// NewSQLiteProvider 创建 SQLite 数据源并初始化表结构。
func NewSQLiteProvider(db *sql.DB) (*SQLiteProvider, error) {
	if db == nil {
		return nil, errors.New("market: 数据库实例不能为空")
	}
	p := &SQLiteProvider{db: db}
	if err := p.initSchema(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *SQLiteProvider) initSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS bars (
			symbol TEXT NOT NULL,
			period TEXT NOT NULL,
			ts INTEGER NOT NULL,
			open REAL, high REAL, low REAL, close REAL,
			volume REAL, amount REAL,
			last REAL, bid1 REAL, ask1 REAL,
			PRIMARY KEY (symbol, period, ts)
		);`,
	}
	for _, stmt := range schema {
		if _, err := p.db.Exec(stmt); err != nil {
			return fmt.Errorf("market: 初始化 bars 表失败: %w", err)
		}
	}
	return nil
}

// Import 以毫秒时间戳写入（覆盖）序列。
func (p *SQLiteProvider) Import(ctx context.Context, series Series) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("market: 开启事务失败: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO bars
		(symbol, period, ts, open, high, low, close, volume, amount, last, bid1, ask1)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("market: 预编译写入语句失败: %w", err)
	}
	defer stmt.Close()

	for _, row := range series.Rows {
		if _, err = stmt.ExecContext(ctx,
			series.Symbol, string(series.Period), EpochKey(row.Time),
			row.Open, row.High, row.Low, row.Close, row.Volume, row.Amount,
			row.Last, row.Bid1, row.Ask1,
		); err != nil {
			return fmt.Errorf("market: 写入 %s 行情失败: %w", series.Symbol, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("market: 提交事务失败: %w", err)
	}
	return nil
}

// Series 实现 Provider。时间过滤在归一化之后进行，以兼容秒级存量数据。
func (p *SQLiteProvider) Series(ctx context.Context, symbol string, period Period, start, end time.Time) (Series, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT ts, open, high, low, close, volume, amount, last, bid1, ask1
		 FROM bars WHERE symbol = ? AND period = ? ORDER BY ts`,
		symbol, string(period),
	)
	if err != nil {
		return Series{}, fmt.Errorf("market: 查询 %s 行情失败: %w", symbol, err)
	}
	defer rows.Close()

	series := Series{Symbol: symbol, Period: period}
	for rows.Next() {
		var (
			ts                               int64
			row                              Row
			o, h, l, c, v, a, last, bid, ask sql.NullFloat64
		)
		if scanErr := rows.Scan(&ts, &o, &h, &l, &c, &v, &a, &last, &bid, &ask); scanErr != nil {
			return Series{}, fmt.Errorf("market: 解析 %s 行情失败: %w", symbol, scanErr)
		}
		t, ok := NormalizeTimestamp(ts)
		if !ok {
			continue
		}
		row.Time = t
		row.Open, row.High, row.Low, row.Close = o.Float64, h.Float64, l.Float64, c.Float64
		row.Volume, row.Amount = v.Float64, a.Float64
		row.Last, row.Bid1, row.Ask1 = last.Float64, bid.Float64, ask.Float64
		series.Rows = append(series.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return Series{}, fmt.Errorf("market: 读取 %s 行情失败: %w", symbol, err)
	}
	if series.Empty() {
		return Series{}, fmt.Errorf("%w: %s %s", ErrNoData, symbol, period)
	}
	series.Sanitize()
	return series.Between(start, end), nil
}
