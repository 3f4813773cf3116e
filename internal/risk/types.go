package risk

// StatusType 描述风险评估结果状态。
type StatusType string

const (
	StatusProceed StatusType = "proceed"
	StatusDeny    StatusType = "deny"
)

// DailyStatus 表示当日风控状态。
type DailyStatus struct {
	TradingDate   string
	StartEquity   float64
	CurrentEquity float64
	LossPercent   float64
	Halted        bool
}

// Decision 为一次风控评估结果。
type Decision struct {
	Status      StatusType
	Reason      string
	DailyStatus DailyStatus
}

// Allowed 是否允许调用策略。
func (d Decision) Allowed() bool {
	return d.Status == StatusProceed
}
