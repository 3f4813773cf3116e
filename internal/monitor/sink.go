package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"quantdesk/internal/store"
)

// SQLiteSink 负责持久化监控事件。
type SQLiteSink struct {
	store  *store.Store
	logger *zap.Logger
}

// NewSQLiteSink 初始化事件表。
func NewSQLiteSink(ctx context.Context, st *store.Store, logger *zap.Logger) (*SQLiteSink, error) {
	if st == nil {
		return nil, fmt.Errorf("monitor: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &SQLiteSink{store: st, logger: logger}
	if err := st.EnsureSchema(ctx, "monitor",
		`CREATE TABLE IF NOT EXISTS bt_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			tick_time TEXT,
			payload TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_bt_events_run_type ON bt_events(run_id, event_type);`,
	); err != nil {
		return nil, err
	}
	return s, nil
}

// Record 写入单个事件。
func (s *SQLiteSink) Record(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("monitor: 序列化事件失败: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	var tick interface{}
	if !event.TickTime.IsZero() {
		tick = event.TickTime.Format(time.RFC3339)
	}

	_, err = s.store.DB().ExecContext(ctx,
		`INSERT INTO bt_events (run_id, event_type, tick_time, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		event.RunID, string(event.Type), tick, string(payload), event.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("monitor: 写入事件失败: %w", err)
	}
	return nil
}

// Consume 持续读取事件并写库，直到通道关闭或 ctx 取消。写库失败只记录日志。
// 进度事件量大，只在 persistProgress 为 true 时落库。
func (s *SQLiteSink) Consume(ctx context.Context, events <-chan Event, persistProgress bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Type == EventProgress && !persistProgress {
				continue
			}
			if err := s.Record(ctx, event); err != nil {
				s.logger.Warn("记录监控事件失败", zap.String("type", string(event.Type)), zap.Error(err))
			}
		}
	}
}

// ListEvents 按运行与类型检索最近事件，参数为空表示不过滤。
func (s *SQLiteSink) ListEvents(ctx context.Context, runID string, eventType EventType, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT run_id, event_type, tick_time, payload, created_at FROM bt_events WHERE 1 = 1`
	args := make([]interface{}, 0, 3)
	if runID != "" {
		query += ` AND run_id = ?`
		args = append(args, runID)
	}
	if eventType != "" {
		query += ` AND event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("monitor: 查询事件失败: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var (
			run     string
			typ     string
			tick    sql.NullString
			payload string
			created string
		)
		if scanErr := rows.Scan(&run, &typ, &tick, &payload, &created); scanErr != nil {
			return nil, fmt.Errorf("monitor: 解析事件失败: %w", scanErr)
		}

		ts, parseErr := time.Parse(time.RFC3339Nano, created)
		if parseErr != nil {
			ts = time.Now().UTC()
		}
		event := Event{
			Type:      EventType(typ),
			RunID:     run,
			Timestamp: ts,
			Payload:   json.RawMessage(payload),
		}
		if tick.Valid {
			if t, err := time.Parse(time.RFC3339, tick.String); err == nil {
				event.TickTime = t
			}
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("monitor: 读取事件失败: %w", err)
	}

	return events, nil
}
