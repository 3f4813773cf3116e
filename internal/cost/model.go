package cost

import (
	"strings"

	"github.com/shopspring/decimal"

	"quantdesk/internal/order"
)

// SlippageMode 滑点模式。
type SlippageMode string

const (
	SlippageNone  SlippageMode = "none"
	SlippageTick  SlippageMode = "tick"
	SlippageRatio SlippageMode = "ratio"
)

// DefaultTransferFeeRate 为沪市过户费率。
const DefaultTransferFeeRate = 0.00001

// Config 为交易成本参数。
type Config struct {
	CommissionRate  float64
	MinCommission   float64
	StampTaxRate    float64
	TransferFeeRate float64
	FlowFee         float64
	SlippageMode    SlippageMode
	// SlippageValue 在 tick 模式下为跳数，在 ratio 模式下为双边比例。
	SlippageValue float64
	TickSize      float64
}

// Breakdown 为一笔成交的价格与分项费用。
type Breakdown struct {
	ActualPrice float64
	Commission  float64
	StampTax    float64
	TransferFee float64
	FlowFee     float64
	Total       float64
}

// Fees 转换为成交记录中的费用结构。
func (b Breakdown) Fees() order.Fees {
	return order.Fees{
		Commission:  b.Commission,
		StampTax:    b.StampTax,
		TransferFee: b.TransferFee,
		FlowFee:     b.FlowFee,
		Total:       b.Total,
	}
}

// Model 无状态的成本计算。
type Model struct {
	cfg Config
}

// New 创建成本模型。
func New(cfg Config) *Model {
	if cfg.TransferFeeRate <= 0 {
		cfg.TransferFeeRate = DefaultTransferFeeRate
	}
	if cfg.TickSize <= 0 {
		cfg.TickSize = 0.01
	}
	if cfg.SlippageMode == "" {
		cfg.SlippageMode = SlippageNone
	}
	return &Model{cfg: cfg}
}

// Config 返回生效的参数。
func (m *Model) Config() Config {
	return m.cfg
}

// Round2 四舍五入到两位小数（远离零方向）。
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// SlippagePrice 计算滑点后的成交价。买入向上、卖出向下。
func (m *Model) SlippagePrice(price float64, side order.Side) float64 {
	p := decimal.NewFromFloat(Round2(price))
	if !p.IsPositive() {
		return 0
	}

	sign := decimal.NewFromInt(1)
	if side == order.Sell {
		sign = sign.Neg()
	}

	var actual decimal.Decimal
	switch m.cfg.SlippageMode {
	case SlippageTick:
		offset := decimal.NewFromFloat(m.cfg.TickSize).Mul(decimal.NewFromFloat(m.cfg.SlippageValue))
		actual = p.Add(offset.Mul(sign))
	case SlippageRatio:
		half := decimal.NewFromFloat(m.cfg.SlippageValue).Div(decimal.NewFromInt(2))
		actual = p.Mul(decimal.NewFromInt(1).Add(half.Mul(sign)))
	default:
		actual = p
	}

	actual = actual.Round(2)
	minPrice := decimal.New(1, -2)
	if actual.LessThan(minPrice) {
		actual = minPrice
	}
	return actual.InexactFloat64()
}

// Commission 佣金，不足最低佣金按最低收取。
func (m *Model) Commission(price float64, quantity int64) float64 {
	if quantity <= 0 {
		return 0
	}
	fee := notional(price, quantity).Mul(decimal.NewFromFloat(m.cfg.CommissionRate))
	minFee := decimal.NewFromFloat(m.cfg.MinCommission)
	if fee.LessThan(minFee) {
		fee = minFee
	}
	return fee.Round(2).InexactFloat64()
}

// StampTax 印花税，仅卖出收取。
func (m *Model) StampTax(price float64, quantity int64, side order.Side) float64 {
	if side != order.Sell || quantity <= 0 {
		return 0
	}
	return notional(price, quantity).Mul(decimal.NewFromFloat(m.cfg.StampTaxRate)).Round(2).InexactFloat64()
}

// TransferFee 过户费，仅对沪市标的收取。
func (m *Model) TransferFee(price float64, quantity int64, symbol string) float64 {
	if quantity <= 0 || !IsShanghai(symbol) {
		return 0
	}
	return notional(price, quantity).Mul(decimal.NewFromFloat(m.cfg.TransferFeeRate)).Round(2).InexactFloat64()
}

// FlowFee 每笔固定的流量费。
func (m *Model) FlowFee() float64 {
	return Round2(m.cfg.FlowFee)
}

// Calculate 返回滑点后价格与全部分项费用。
func (m *Model) Calculate(price float64, quantity int64, side order.Side, symbol string) Breakdown {
	actual := m.SlippagePrice(price, side)
	b := Breakdown{
		ActualPrice: actual,
		Commission:  m.Commission(actual, quantity),
		StampTax:    m.StampTax(actual, quantity, side),
		TransferFee: m.TransferFee(actual, quantity, symbol),
		FlowFee:     m.FlowFee(),
	}
	b.Total = decimal.NewFromFloat(b.Commission).
		Add(decimal.NewFromFloat(b.StampTax)).
		Add(decimal.NewFromFloat(b.TransferFee)).
		Add(decimal.NewFromFloat(b.FlowFee)).
		Round(2).InexactFloat64()
	return b
}

// CalculateTradeCost 返回 (成交价, 总费用)。
func (m *Model) CalculateTradeCost(price float64, quantity int64, side order.Side, symbol string) (float64, float64) {
	b := m.Calculate(price, quantity, side, symbol)
	return b.ActualPrice, b.Total
}

// IsShanghai 根据代码前缀或交易所标记判断是否为上交所标的。
func IsShanghai(symbol string) bool {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	switch {
	case strings.HasSuffix(s, ".SH"), strings.HasSuffix(s, ".SS"), strings.HasSuffix(s, ".XSHG"):
		return true
	case strings.HasPrefix(s, "SH"):
		return true
	case strings.HasSuffix(s, ".SZ"), strings.HasSuffix(s, ".XSHE"), strings.HasPrefix(s, "SZ"),
		strings.HasSuffix(s, ".BJ"), strings.HasPrefix(s, "BJ"):
		return false
	}
	if s == "" {
		return false
	}
	switch s[0] {
	case '6', '5', '9':
		return true
	}
	return false
}

func notional(price float64, quantity int64) decimal.Decimal {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromInt(quantity))
}
