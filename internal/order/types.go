package order

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Side 表示买卖方向。
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// ParseSide 解析策略返回的方向字段，兼容大小写及中文写法。
func ParseSide(value string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "buy", "b", "long", "买", "买入":
		return Buy, true
	case "sell", "s", "short", "卖", "卖出":
		return Sell, true
	}
	return "", false
}

// Signal 为策略发出的一条交易意图，只被消费一次。
type Signal struct {
	Symbol    string  `json:"symbol"`
	Action    Side    `json:"action"`
	Price     float64 `json:"price"`
	Quantity  int64   `json:"quantity"`
	OrderType string  `json:"order_type,omitempty"`
	Remark    string  `json:"remark,omitempty"`
}

// Validate 只校验信号的形状，不关心策略逻辑。数量是否为正由账本处理。
func (s Signal) Validate() error {
	if strings.TrimSpace(s.Symbol) == "" {
		return errors.New("order: signal symbol 不能为空")
	}
	if s.Action != Buy && s.Action != Sell {
		return fmt.Errorf("order: signal action 非法: %q", s.Action)
	}
	if s.Price <= 0 {
		return fmt.Errorf("order: signal price 必须为正: %v", s.Price)
	}
	return nil
}

// Fees 为一笔成交的分项费用。
type Fees struct {
	Commission  float64 `json:"commission"`
	StampTax    float64 `json:"stamp_tax"`
	TransferFee float64 `json:"transfer_fee"`
	FlowFee     float64 `json:"flow_fee"`
	Total       float64 `json:"total"`
}

// Fill 为已执行信号的不可变成交记录。
type Fill struct {
	Time            time.Time `json:"time"`
	Symbol          string    `json:"symbol"`
	Side            Side      `json:"side"`
	RequestPrice    float64   `json:"request_price"`
	Price           float64   `json:"price"`
	Quantity        int64     `json:"quantity"`
	Amount          float64   `json:"amount"`
	Fees            Fees      `json:"fees"`
	CashAfter       float64   `json:"cash_after"`
	PositionAfter   int64     `json:"position_after"`
	TotalAssetAfter float64   `json:"total_asset_after"`
	OrderType       string    `json:"order_type,omitempty"`
	Remark          string    `json:"remark,omitempty"`
}
