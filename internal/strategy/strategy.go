package strategy

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"quantdesk/internal/market"
	"quantdesk/internal/order"
)

// InitData 为策略初始化时获得的回测上下文。
type InitData struct {
	Start          time.Time
	End            time.Time
	Period         market.Period
	InitialCapital float64
	Benchmark      string
	Params         Params
	Logger         *zap.Logger
}

// Strategy 为用户策略契约。OnTick 返回的信号按顺序执行。
type Strategy interface {
	Name() string
	Init(symbols []string, data InitData) error
	OnTick(view View) ([]order.Signal, error)
}

// PreMarketer 可选接口，每个交易日首个 tick 前调用。返回的信号在当日首个 tick 时点执行。
type PreMarketer interface {
	PreMarket(view View) ([]order.Signal, error)
}

// PostMarketer 可选接口，交易日结束后以当日最后一个视图调用。返回的信号按该视图的时点执行。
type PostMarketer interface {
	PostMarket(view View) ([]order.Signal, error)
}

// ValidateSignal 校验信号形状。数量非正的信号交由账本忽略。
func ValidateSignal(sig order.Signal) error {
	if err := sig.Validate(); err != nil {
		return fmt.Errorf("strategy: 非法信号: %w", err)
	}
	return nil
}
