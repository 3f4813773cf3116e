package strategy

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"quantdesk/internal/indicator"
	"quantdesk/internal/order"
)

// 内置策略名。
const (
	BuyAndHoldName   = "buy_and_hold"
	SMACrossName     = "sma_cross"
	RSIReversionName = "rsi_reversion"
)

const defaultLot = 100

// sizing 为内置策略共用的下单规模计算。
type sizing struct {
	lot     int64
	weight  float64
	reserve float64
}

func newSizing(params Params, symbols int) sizing {
	weight := 1.0
	if symbols > 0 {
		weight = 1.0 / float64(symbols)
	}
	s := sizing{
		lot:     int64(params.Int("lot", defaultLot)),
		weight:  params.Float("weight", weight),
		reserve: params.Float("reserve", 0.01),
	}
	if s.lot <= 0 {
		s.lot = defaultLot
	}
	if s.weight <= 0 || s.weight > 1 {
		s.weight = weight
	}
	if s.reserve < 0 || s.reserve >= 1 {
		s.reserve = 0.01
	}
	return s
}

// buyQuantity 按整手计算可买数量，预留部分资金覆盖费用。
func (s sizing) buyQuantity(view View, price float64) int64 {
	if price <= 0 {
		return 0
	}
	budget := math.Min(view.Account.Cash, view.Account.TotalAsset*s.weight) * (1 - s.reserve)
	lots := math.Floor(budget / (price * float64(s.lot)))
	if lots <= 0 {
		return 0
	}
	return int64(lots) * s.lot
}

// BuyAndHold 首次有行情时按权重买入并一直持有。
type BuyAndHold struct {
	params  Params
	symbols []string
	size    sizing
	bought  map[string]bool
	logger  *zap.Logger
}

// NewBuyAndHold 构建买入持有策略。
func NewBuyAndHold(params Params) (Strategy, error) {
	return &BuyAndHold{params: params}, nil
}

func (s *BuyAndHold) Name() string { return BuyAndHoldName }

func (s *BuyAndHold) Init(symbols []string, data InitData) error {
	if len(symbols) == 0 {
		return fmt.Errorf("strategy: %s 需要至少一个标的", BuyAndHoldName)
	}
	s.symbols = append([]string(nil), symbols...)
	s.size = newSizing(s.params, len(symbols))
	s.bought = make(map[string]bool, len(symbols))
	s.logger = loggerOrNop(data.Logger)
	return nil
}

func (s *BuyAndHold) OnTick(view View) ([]order.Signal, error) {
	var signals []order.Signal
	for _, symbol := range s.symbols {
		if s.bought[symbol] {
			continue
		}
		if _, ok := view.Position(symbol); ok {
			s.bought[symbol] = true
			continue
		}
		price := view.Price(symbol)
		qty := s.size.buyQuantity(view, price)
		if qty <= 0 {
			continue
		}
		signals = append(signals, order.Signal{
			Symbol:   symbol,
			Action:   order.Buy,
			Price:    price,
			Quantity: qty,
			Remark:   "buy and hold",
		})
	}
	return signals, nil
}

// SMACross 快慢均线交叉。bar=daily 时在盘后以日收盘价判断，次日首个 tick 下单。
type SMACross struct {
	params  Params
	fast    int
	slow    int
	daily   bool
	size    sizing
	symbols []string
	windows map[string]*indicator.Window
	pending map[string]order.Side
	logger  *zap.Logger
}

// NewSMACross 构建均线交叉策略。
func NewSMACross(params Params) (Strategy, error) {
	fast := params.Int("fast", 5)
	slow := params.Int("slow", 20)
	if fast <= 0 || slow <= fast {
		return nil, fmt.Errorf("strategy: %s 参数非法 fast=%d slow=%d", SMACrossName, fast, slow)
	}
	return &SMACross{
		params: params,
		fast:   fast,
		slow:   slow,
		daily:  params.String("bar", "tick") == "daily",
	}, nil
}

func (s *SMACross) Name() string { return SMACrossName }

func (s *SMACross) Init(symbols []string, data InitData) error {
	if len(symbols) == 0 {
		return fmt.Errorf("strategy: %s 需要至少一个标的", SMACrossName)
	}
	s.symbols = append([]string(nil), symbols...)
	s.size = newSizing(s.params, len(symbols))
	s.windows = make(map[string]*indicator.Window, len(symbols))
	s.pending = make(map[string]order.Side)
	for _, symbol := range symbols {
		s.windows[symbol] = indicator.NewWindow(s.slow + 1)
	}
	s.logger = loggerOrNop(data.Logger)
	return nil
}

func (s *SMACross) OnTick(view View) ([]order.Signal, error) {
	var signals []order.Signal
	for _, symbol := range s.symbols {
		price := view.Price(symbol)
		if price <= 0 {
			continue
		}
		side, ok := s.pending[symbol]
		if s.daily {
			delete(s.pending, symbol)
		} else {
			s.windows[symbol].Push(view.Time, price)
			side, ok = s.cross(symbol)
		}
		if !ok {
			continue
		}
		if sig, ok := s.signal(view, symbol, side, price); ok {
			s.logger.Debug("均线交叉信号",
				zap.String("symbol", symbol),
				zap.String("action", string(sig.Action)),
				zap.Float64("price", price),
				zap.Int64("quantity", sig.Quantity),
			)
			signals = append(signals, sig)
		}
	}
	return signals, nil
}

// PostMarket 在日线模式下记录收盘价并计算交叉，信号留到次日首个 tick 以开盘后价格下单。
func (s *SMACross) PostMarket(view View) ([]order.Signal, error) {
	if !s.daily {
		return nil, nil
	}
	for _, symbol := range s.symbols {
		price := view.Price(symbol)
		if price <= 0 {
			continue
		}
		s.windows[symbol].Push(view.Time, price)
		if side, ok := s.cross(symbol); ok {
			s.pending[symbol] = side
		}
	}
	return nil, nil
}

func (s *SMACross) cross(symbol string) (order.Side, bool) {
	values := s.windows[symbol].Values()
	prevFast, lastFast := indicator.SMASeries(values, s.fast)
	prevSlow, lastSlow := indicator.SMASeries(values, s.slow)
	switch {
	case prevFast <= prevSlow && lastFast > lastSlow:
		return order.Buy, true
	case prevFast >= prevSlow && lastFast < lastSlow:
		return order.Sell, true
	}
	return "", false
}

func (s *SMACross) signal(view View, symbol string, side order.Side, price float64) (order.Signal, bool) {
	pos, holding := view.Position(symbol)
	switch side {
	case order.Buy:
		if holding {
			return order.Signal{}, false
		}
		qty := s.size.buyQuantity(view, price)
		if qty <= 0 {
			return order.Signal{}, false
		}
		return order.Signal{Symbol: symbol, Action: order.Buy, Price: price, Quantity: qty, Remark: "golden cross"}, true
	case order.Sell:
		if !holding || pos.Available <= 0 {
			return order.Signal{}, false
		}
		return order.Signal{Symbol: symbol, Action: order.Sell, Price: price, Quantity: pos.Available, Remark: "death cross"}, true
	}
	return order.Signal{}, false
}

// RSIReversion RSI 超卖买入、超买卖出。
type RSIReversion struct {
	params  Params
	period  int
	lower   float64
	upper   float64
	size    sizing
	symbols []string
	windows map[string]*indicator.Window
	logger  *zap.Logger
}

// NewRSIReversion 构建 RSI 均值回归策略。
func NewRSIReversion(params Params) (Strategy, error) {
	period := params.Int("period", 14)
	lower := params.Float("lower", 30)
	upper := params.Float("upper", 70)
	if period < 2 || lower <= 0 || upper >= 100 || lower >= upper {
		return nil, fmt.Errorf("strategy: %s 参数非法 period=%d lower=%v upper=%v", RSIReversionName, period, lower, upper)
	}
	return &RSIReversion{params: params, period: period, lower: lower, upper: upper}, nil
}

func (s *RSIReversion) Name() string { return RSIReversionName }

func (s *RSIReversion) Init(symbols []string, data InitData) error {
	if len(symbols) == 0 {
		return fmt.Errorf("strategy: %s 需要至少一个标的", RSIReversionName)
	}
	s.symbols = append([]string(nil), symbols...)
	s.size = newSizing(s.params, len(symbols))
	s.windows = make(map[string]*indicator.Window, len(symbols))
	for _, symbol := range symbols {
		s.windows[symbol] = indicator.NewWindow(s.period * 4)
	}
	s.logger = loggerOrNop(data.Logger)
	return nil
}

func (s *RSIReversion) OnTick(view View) ([]order.Signal, error) {
	var signals []order.Signal
	for _, symbol := range s.symbols {
		price := view.Price(symbol)
		if price <= 0 {
			continue
		}
		w := s.windows[symbol]
		w.Push(view.Time, price)
		rsi := indicator.RSI(w.Values(), s.period)
		if math.IsNaN(rsi) {
			continue
		}

		pos, holding := view.Position(symbol)
		switch {
		case rsi < s.lower && !holding:
			if qty := s.size.buyQuantity(view, price); qty > 0 {
				signals = append(signals, order.Signal{
					Symbol: symbol, Action: order.Buy, Price: price, Quantity: qty,
					Remark: fmt.Sprintf("rsi=%.2f", rsi),
				})
			}
		case rsi > s.upper && holding && pos.Available > 0:
			signals = append(signals, order.Signal{
				Symbol: symbol, Action: order.Sell, Price: price, Quantity: pos.Available,
				Remark: fmt.Sprintf("rsi=%.2f", rsi),
			})
		}
	}
	return signals, nil
}

func loggerOrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
