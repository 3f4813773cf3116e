package strategy

import (
	"time"

	"quantdesk/internal/ledger"
	"quantdesk/internal/market"
)

// Quote 为某标的在当前 tick 的最新已知观测，Empty 表示当日尚无数据。
type Quote struct {
	market.Row
	Empty bool `json:"empty"`
}

// Session 记录当日交易统计，供风控与策略读取。
type Session struct {
	InitialCapital float64 `json:"initial_capital"`
	DayStartAsset  float64 `json:"day_start_asset"`
	TradesToday    int     `json:"trades_today"`
}

// View 为每个 tick 传入策略的只读快照。
// 所有字段均为副本，策略对其修改不会影响引擎状态，下单只能通过返回信号。
type View struct {
	Time      time.Time                  `json:"time"`
	Date      string                     `json:"date"`
	Quotes    map[string]Quote           `json:"quotes"`
	Account   ledger.Account             `json:"account"`
	Positions map[string]ledger.Position `json:"positions"`
	Universe  []string                   `json:"universe"`
	Session   Session                    `json:"session"`
}

// Quote 返回非空的报价。
func (v View) Quote(symbol string) (Quote, bool) {
	q, ok := v.Quotes[symbol]
	if !ok || q.Empty {
		return Quote{}, false
	}
	return q, true
}

// Price 返回标的参考价，无数据时为 0。
func (v View) Price(symbol string) float64 {
	q, ok := v.Quote(symbol)
	if !ok {
		return 0
	}
	return q.Price()
}

// Prices 返回全部有数据标的的参考价。
func (v View) Prices() map[string]float64 {
	out := make(map[string]float64, len(v.Quotes))
	for symbol, q := range v.Quotes {
		if q.Empty {
			continue
		}
		if p := q.Price(); p > 0 {
			out[symbol] = p
		}
	}
	return out
}

// Position 返回持仓副本。
func (v View) Position(symbol string) (ledger.Position, bool) {
	p, ok := v.Positions[symbol]
	return p, ok
}

// AllEmpty 当所有标的均无观测时返回 true。
func (v View) AllEmpty() bool {
	for _, q := range v.Quotes {
		if !q.Empty {
			return false
		}
	}
	return true
}
