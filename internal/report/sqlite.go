package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"quantdesk/internal/backtest"
	"quantdesk/internal/store"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS bt_runs (
		run_id TEXT PRIMARY KEY,
		strategy TEXT NOT NULL,
		period TEXT NOT NULL,
		initial_capital REAL NOT NULL,
		final_asset REAL NOT NULL,
		total_return REAL NOT NULL,
		annualized_return REAL NOT NULL,
		max_drawdown REAL NOT NULL,
		sharpe_ratio REAL NOT NULL,
		benchmark_return REAL NOT NULL,
		excess_return REAL NOT NULL,
		trade_count INTEGER NOT NULL,
		ticks INTEGER NOT NULL,
		total_ticks INTEGER NOT NULL,
		interrupted INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS bt_trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		trade_time TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		request_price REAL NOT NULL,
		price REAL NOT NULL,
		quantity INTEGER NOT NULL,
		amount REAL NOT NULL,
		commission REAL NOT NULL,
		stamp_tax REAL NOT NULL,
		transfer_fee REAL NOT NULL,
		flow_fee REAL NOT NULL,
		total_fee REAL NOT NULL,
		cash_after REAL NOT NULL,
		position_after INTEGER NOT NULL,
		total_asset_after REAL NOT NULL,
		order_type TEXT,
		remark TEXT
	);`,
	`CREATE INDEX IF NOT EXISTS idx_bt_trades_run ON bt_trades(run_id);`,
	`CREATE TABLE IF NOT EXISTS bt_daily (
		run_id TEXT NOT NULL,
		trade_date TEXT NOT NULL,
		total_asset REAL NOT NULL,
		cash REAL NOT NULL,
		market_value REAL NOT NULL,
		daily_return REAL NOT NULL,
		benchmark_close REAL NOT NULL,
		positions TEXT NOT NULL,
		PRIMARY KEY (run_id, trade_date)
	);`,
	`CREATE TABLE IF NOT EXISTS bt_benchmark (
		run_id TEXT NOT NULL,
		trade_date TEXT NOT NULL,
		close REAL NOT NULL,
		PRIMARY KEY (run_id, trade_date)
	);`,
}

// SQLiteWriter 将回测结果写入 SQLite。
type SQLiteWriter struct {
	store  *store.Store
	logger *zap.Logger
}

// NewSQLiteWriter 初始化结果表。
func NewSQLiteWriter(ctx context.Context, st *store.Store, logger *zap.Logger) (*SQLiteWriter, error) {
	if st == nil {
		return nil, fmt.Errorf("report: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := st.EnsureSchema(ctx, "report", schema...); err != nil {
		return nil, err
	}
	return &SQLiteWriter{store: st, logger: logger}, nil
}

// Write 在单个事务内写入运行汇总与三张结果表，同一 run id 重复写入会覆盖。
func (w *SQLiteWriter) Write(ctx context.Context, result backtest.Result) error {
	err := w.store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"bt_trades", "bt_daily", "bt_benchmark"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, result.RunID); err != nil {
				return fmt.Errorf("清理 %s 失败: %w", table, err)
			}
		}

		m := result.Metrics
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO bt_runs (
			run_id, strategy, period, initial_capital, final_asset, total_return, annualized_return,
			max_drawdown, sharpe_ratio, benchmark_return, excess_return, trade_count,
			ticks, total_ticks, interrupted, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			result.RunID, result.Strategy, string(result.Period), m.InitialCapital, m.FinalAsset,
			m.TotalReturn, m.AnnualizedReturn, m.MaxDrawdown, m.SharpeRatio, m.BenchmarkReturn,
			m.ExcessReturn, m.TradeCount, result.Ticks, result.TotalTicks, result.Interrupted,
			result.StartedAt.UTC().Format(time.RFC3339Nano), result.FinishedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("写入 bt_runs 失败: %w", err)
		}

		tradeStmt, err := tx.PrepareContext(ctx, `INSERT INTO bt_trades (
			run_id, trade_time, symbol, side, request_price, price, quantity, amount,
			commission, stamp_tax, transfer_fee, flow_fee, total_fee,
			cash_after, position_after, total_asset_after, order_type, remark
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("准备 bt_trades 语句失败: %w", err)
		}
		defer tradeStmt.Close()
		for _, t := range result.Tables.TradeLog {
			if _, err := tradeStmt.ExecContext(ctx,
				result.RunID, t.Time.Format(time.RFC3339), t.Symbol, string(t.Side), t.RequestPrice, t.Price,
				t.Quantity, t.Amount, t.Fees.Commission, t.Fees.StampTax, t.Fees.TransferFee, t.Fees.FlowFee,
				t.Fees.Total, t.CashAfter, t.PositionAfter, t.TotalAssetAfter, t.OrderType, t.Remark,
			); err != nil {
				return fmt.Errorf("写入 bt_trades 失败: %w", err)
			}
		}

		for _, s := range result.Tables.DailySnapshots {
			positions, err := json.Marshal(s.Positions)
			if err != nil {
				return fmt.Errorf("序列化持仓失败: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO bt_daily (
				run_id, trade_date, total_asset, cash, market_value, daily_return, benchmark_close, positions
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				result.RunID, s.Date, s.TotalAsset, s.Cash, s.MarketValue, s.DailyReturn, s.BenchmarkClose, string(positions),
			); err != nil {
				return fmt.Errorf("写入 bt_daily 失败: %w", err)
			}
		}

		for _, p := range result.Tables.BenchmarkSeries {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO bt_benchmark (run_id, trade_date, close) VALUES (?, ?, ?)`,
				result.RunID, p.Date, p.Close,
			); err != nil {
				return fmt.Errorf("写入 bt_benchmark 失败: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}

	w.logger.Info("回测结果已写入数据库",
		zap.String("run_id", result.RunID),
		zap.Int("trades", len(result.Tables.TradeLog)),
		zap.Int("days", len(result.Tables.DailySnapshots)),
	)
	return nil
}

// RunSummary 为 bt_runs 中的一行。
type RunSummary struct {
	RunID       string
	Strategy    string
	TotalReturn float64
	TradeCount  int
	Interrupted bool
}

// ListRuns 返回最近的回测运行。
func (w *SQLiteWriter) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := w.store.DB().QueryContext(ctx,
		`SELECT run_id, strategy, total_return, trade_count, interrupted FROM bt_runs ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("report: 查询回测记录失败: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.Strategy, &r.TotalReturn, &r.TradeCount, &r.Interrupted); err != nil {
			return nil, fmt.Errorf("report: 解析回测记录失败: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("report: 读取回测记录失败: %w", err)
	}
	return runs, nil
}
