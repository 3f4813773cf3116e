package ledger

import (
	"errors"
	"fmt"

	"quantdesk/internal/order"
)

var (
	// ErrNoop 表示数量非正的信号被忽略，不属于错误。
	ErrNoop                 = errors.New("ledger: 数量非正，信号已忽略")
	ErrInsufficientFunds    = errors.New("ledger: 资金不足")
	ErrInsufficientPosition = errors.New("ledger: 可卖数量不足")
)

// Reason 描述订单被拒原因。
type Reason string

const (
	InsufficientFunds    Reason = "insufficient_funds"
	InsufficientPosition Reason = "insufficient_position"
)

// Rejection 为被拒绝的订单，账本状态不发生任何变化。
type Rejection struct {
	Reason    Reason
	Signal    order.Signal
	Required  float64
	Available float64
}

// Unwrap 使 errors.Is 可以匹配 ErrInsufficientFunds / ErrInsufficientPosition。
func (r *Rejection) Unwrap() error {
	switch r.Reason {
	case InsufficientFunds:
		return ErrInsufficientFunds
	case InsufficientPosition:
		return ErrInsufficientPosition
	}
	return nil
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("ledger: %s %s %d@%.2f rejected: %s (required=%.2f available=%.2f)",
		r.Signal.Action, r.Signal.Symbol, r.Signal.Quantity, r.Signal.Price, r.Reason, r.Required, r.Available)
}

// AsRejection 判断错误是否为订单拒绝。
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// Account 为账户资金快照。
type Account struct {
	InitialCapital float64 `json:"initial_capital"`
	Cash           float64 `json:"cash"`
	FrozenCash     float64 `json:"frozen_cash"`
	MarketValue    float64 `json:"market_value"`
	TotalAsset     float64 `json:"total_asset"`
}

// Position 为单一标的持仓。
type Position struct {
	Symbol       string  `json:"symbol"`
	Quantity     int64   `json:"quantity"`
	Available    int64   `json:"available"`
	AvgPrice     float64 `json:"avg_price"`
	CurrentPrice float64 `json:"current_price"`
	MarketValue  float64 `json:"market_value"`
	Profit       float64 `json:"profit"`
	LastBuyDate  string  `json:"last_buy_date,omitempty"`
}

// Snapshot 为账本的只读深拷贝。
type Snapshot struct {
	Date      string              `json:"date"`
	Account   Account             `json:"account"`
	Positions map[string]Position `json:"positions"`
}
