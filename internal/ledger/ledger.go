package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"quantdesk/internal/cost"
	"quantdesk/internal/order"
)

// Ledger 维护现金、持仓与资产合计。所有现金变动以 decimal 计算并保留两位小数。
// 单次回测独占使用，不支持并发访问。
type Ledger struct {
	initial   decimal.Decimal
	cash      decimal.Decimal
	positions map[string]*Position
	settled   string
}

// New 以初始资金创建账本。
func New(initialCapital float64) *Ledger {
	capital := decimal.NewFromFloat(initialCapital).Round(2)
	return &Ledger{
		initial:   capital,
		cash:      capital,
		positions: make(map[string]*Position),
	}
}

// Apply 按成本模型结果执行信号。数量非正返回 ErrNoop；资金或可卖数量不足返回
// *Rejection，且不修改任何状态。
func (l *Ledger) Apply(sig order.Signal, b cost.Breakdown, ts time.Time, tradingDate string) (order.Fill, error) {
	if sig.Quantity <= 0 {
		return order.Fill{}, ErrNoop
	}

	price := decimal.NewFromFloat(cost.Round2(b.ActualPrice))
	qty := decimal.NewFromInt(sig.Quantity)
	amount := price.Mul(qty).Round(2)
	fees := decimal.NewFromFloat(b.Total).Round(2)

	pos := l.positions[sig.Symbol]

	switch sig.Action {
	case order.Buy:
		required := amount.Add(fees)
		if l.cash.LessThan(required) {
			return order.Fill{}, &Rejection{
				Reason:    InsufficientFunds,
				Signal:    sig,
				Required:  required.InexactFloat64(),
				Available: l.cash.InexactFloat64(),
			}
		}
		l.cash = l.cash.Sub(required)
		if pos == nil {
			pos = &Position{Symbol: sig.Symbol}
			l.positions[sig.Symbol] = pos
		}
		oldQty := decimal.NewFromInt(pos.Quantity)
		oldCost := decimal.NewFromFloat(pos.AvgPrice).Mul(oldQty)
		newQty := oldQty.Add(qty)
		pos.AvgPrice = oldCost.Add(price.Mul(qty)).Div(newQty).InexactFloat64()
		pos.Quantity += sig.Quantity
		pos.LastBuyDate = tradingDate
	case order.Sell:
		var available int64
		if pos != nil {
			available = pos.Available
		}
		if available < sig.Quantity {
			return order.Fill{}, &Rejection{
				Reason:    InsufficientPosition,
				Signal:    sig,
				Required:  float64(sig.Quantity),
				Available: float64(available),
			}
		}
		l.cash = l.cash.Add(amount.Sub(fees))
		pos.Quantity -= sig.Quantity
		pos.Available -= sig.Quantity
	default:
		return order.Fill{}, ErrNoop
	}

	var positionAfter int64
	if pos.Quantity == 0 {
		delete(l.positions, sig.Symbol)
	} else {
		pos.CurrentPrice = price.InexactFloat64()
		pos.revalue()
		positionAfter = pos.Quantity
	}

	account := l.Account()
	return order.Fill{
		Time:            ts,
		Symbol:          sig.Symbol,
		Side:            sig.Action,
		RequestPrice:    cost.Round2(sig.Price),
		Price:           price.InexactFloat64(),
		Quantity:        sig.Quantity,
		Amount:          amount.InexactFloat64(),
		Fees:            b.Fees(),
		CashAfter:       account.Cash,
		PositionAfter:   positionAfter,
		TotalAssetAfter: account.TotalAsset,
		OrderType:       sig.OrderType,
		Remark:          sig.Remark,
	}, nil
}

// Settle 进入新交易日时调用，前一日及更早买入的持仓全部转为可卖（T+1）。
// 同一交易日重复调用无效。
func (l *Ledger) Settle(date string) {
	if date != "" && date == l.settled {
		return
	}
	l.settled = date
	for _, pos := range l.positions {
		pos.Available = pos.Quantity
	}
}

// Snapshot 返回账户与持仓的深拷贝。
func (l *Ledger) Snapshot() Snapshot {
	return Snapshot{
		Date:      l.settled,
		Account:   l.Account(),
		Positions: l.PositionMap(),
	}
}

// Mark 按给定价格盯市，价格缺失或非正时保留原价格。
func (l *Ledger) Mark(prices map[string]float64) Account {
	for symbol, pos := range l.positions {
		if p, ok := prices[symbol]; ok && p > 0 {
			pos.CurrentPrice = p
		}
		pos.revalue()
	}
	return l.Account()
}

// Account 返回当前资金快照，市值按最新盯市价格计算。
func (l *Ledger) Account() Account {
	marketValue := decimal.Zero
	for _, pos := range l.positions {
		marketValue = marketValue.Add(decimal.NewFromFloat(pos.MarketValue))
	}
	marketValue = marketValue.Round(2)
	return Account{
		InitialCapital: l.initial.InexactFloat64(),
		Cash:           l.cash.InexactFloat64(),
		FrozenCash:     0,
		MarketValue:    marketValue.InexactFloat64(),
		TotalAsset:     l.cash.Add(marketValue).InexactFloat64(),
	}
}

// Cash 返回可用现金。
func (l *Ledger) Cash() float64 {
	return l.cash.InexactFloat64()
}

// Position 返回持仓副本。
func (l *Ledger) Position(symbol string) (Position, bool) {
	pos, ok := l.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Positions 返回按代码排序的持仓副本。
func (l *Ledger) Positions() []Position {
	out := make([]Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// PositionMap 返回持仓副本映射，供只读视图使用。
func (l *Ledger) PositionMap() map[string]Position {
	out := make(map[string]Position, len(l.positions))
	for symbol, pos := range l.positions {
		out[symbol] = *pos
	}
	return out
}

func (p *Position) revalue() {
	if p.CurrentPrice <= 0 {
		p.CurrentPrice = p.AvgPrice
	}
	price := decimal.NewFromFloat(p.CurrentPrice)
	qty := decimal.NewFromInt(p.Quantity)
	p.MarketValue = price.Mul(qty).Round(2).InexactFloat64()
	p.Profit = price.Sub(decimal.NewFromFloat(p.AvgPrice)).Mul(qty).Round(2).InexactFloat64()
}
