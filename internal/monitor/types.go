package monitor

import (
	"time"

	"quantdesk/internal/order"
)

// EventType 表示监控事件类型。
type EventType string

const (
	EventProgress  EventType = "progress"
	EventWarning   EventType = "warning"
	EventRejection EventType = "rejection"
	EventTrade     EventType = "trade"
	EventError     EventType = "error"
)

// Event 封装通用监控事件。TickTime 为事件对应的回测时间点。
type Event struct {
	Type      EventType   `json:"type"`
	RunID     string      `json:"run_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	TickTime  time.Time   `json:"tick_time"`
	Payload   interface{} `json:"payload"`
}

// ProgressPayload 记录回测进度。
type ProgressPayload struct {
	Current int     `json:"current"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

// WarningPayload 记录数据质量等告警。
type WarningPayload struct {
	Message string `json:"message"`
	Symbol  string `json:"symbol,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// RejectionPayload 记录被拒绝的订单。
type RejectionPayload struct {
	Signal order.Signal `json:"signal"`
	Reason string       `json:"reason"`
	Detail string       `json:"detail"`
}

// TradePayload 记录成交。
type TradePayload struct {
	Fill order.Fill `json:"fill"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}
