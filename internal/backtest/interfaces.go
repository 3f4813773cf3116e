package backtest

import (
	"errors"
	"fmt"
	"time"

	"quantdesk/internal/strategy"
)

var (
	// ErrEmptyTimeline 表示所选区间内没有任何可回放的时间点。
	ErrEmptyTimeline = errors.New("backtest: 时间轴为空")
	// ErrStopped 表示回测被取消，结果只包含已处理的部分。
	ErrStopped = errors.New("backtest: 回测已中止")
)

// RiskChecker 在调用策略前执行风控检查，返回 false 时跳过本 tick。
type RiskChecker interface {
	Check(view strategy.View) bool
}

// RiskCheckerFunc 允许使用函数作为风控检查。
type RiskCheckerFunc func(view strategy.View) bool

func (f RiskCheckerFunc) Check(view strategy.View) bool {
	if f == nil {
		return true
	}
	return f(view)
}

// TickError 为单个 tick 内的意外失败（策略返回错误或 panic），回测随之终止。
type TickError struct {
	Timestamp time.Time
	Index     int
	Progress  float64
	Err       error
}

func (e *TickError) Error() string {
	return fmt.Sprintf("backtest: tick %s (#%d, 进度 %.2f%%) 执行失败: %v",
		e.Timestamp.Format(time.RFC3339), e.Index, e.Progress*100, e.Err)
}

func (e *TickError) Unwrap() error {
	return e.Err
}
