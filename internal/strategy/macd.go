package strategy

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"quantdesk/internal/indicator"
	"quantdesk/internal/order"
)

// MACDTrendName MACD 柱线翻转策略名。
const MACDTrendName = "macd_trend"

// MACDTrend 柱线由负转正且价格未贴近布林上轨时买入，
// 柱线转负或跌破 入场均价-atr_stop*ATR 时卖出。
type MACDTrend struct {
	params  Params
	maxBand float64
	atrStop float64
	calc    *indicator.Calculator
	size    sizing
	symbols []string
	bars    map[string]*indicator.Series
	logger  *zap.Logger
}

// NewMACDTrend 构建 MACD 趋势策略。
func NewMACDTrend(params Params) (Strategy, error) {
	periods := indicator.Periods{
		MACDFast:   params.Int("fast", 12),
		MACDSlow:   params.Int("slow", 26),
		MACDSignal: params.Int("signal", 9),
		BollPeriod: params.Int("boll_period", 20),
		BollDev:    params.Float("boll_dev", 2),
		ATR:        params.Int("atr_period", 14),
	}
	if periods.MACDFast <= 0 || periods.MACDSlow <= periods.MACDFast || periods.MACDSignal <= 0 {
		return nil, fmt.Errorf("strategy: %s 参数非法 fast=%d slow=%d signal=%d",
			MACDTrendName, periods.MACDFast, periods.MACDSlow, periods.MACDSignal)
	}
	maxBand := params.Float("max_band", 0.9)
	if maxBand <= 0 || maxBand > 1 {
		return nil, fmt.Errorf("strategy: %s 参数非法 max_band=%v", MACDTrendName, maxBand)
	}
	return &MACDTrend{
		params:  params,
		maxBand: maxBand,
		atrStop: params.Float("atr_stop", 2),
		calc:    indicator.NewCalculator(periods),
	}, nil
}

func (s *MACDTrend) Name() string { return MACDTrendName }

func (s *MACDTrend) Init(symbols []string, data InitData) error {
	if len(symbols) == 0 {
		return fmt.Errorf("strategy: %s 需要至少一个标的", MACDTrendName)
	}
	s.symbols = append([]string(nil), symbols...)
	s.size = newSizing(s.params, len(symbols))
	s.bars = make(map[string]*indicator.Series, len(symbols))
	for _, symbol := range symbols {
		s.bars[symbol] = &indicator.Series{}
	}
	s.calc.Reset()
	s.logger = loggerOrNop(data.Logger)
	return nil
}

func (s *MACDTrend) OnTick(view View) ([]order.Signal, error) {
	limit := s.calc.MinBars() * 2
	var signals []order.Signal
	for _, symbol := range s.symbols {
		quote, ok := view.Quote(symbol)
		if !ok {
			continue
		}
		bars := s.bars[symbol]
		bars.Append(quote.Row, limit)
		if bars.Len() < s.calc.MinBars() {
			continue
		}
		snap, err := s.calc.Compute(symbol, *bars)
		if err != nil {
			return nil, err
		}
		if !snap.Ready() {
			continue
		}
		if sig, ok := s.decide(view, symbol, snap); ok {
			s.logger.Debug("MACD 信号",
				zap.String("symbol", symbol),
				zap.String("action", string(sig.Action)),
				zap.Float64("histogram", snap.MACD.Histogram),
				zap.Float64("band_position", snap.Bands.Position),
				zap.Float64("atr", snap.ATR),
			)
			signals = append(signals, sig)
		}
	}
	return signals, nil
}

func (s *MACDTrend) decide(view View, symbol string, snap indicator.Snapshot) (order.Signal, bool) {
	price := snap.Close
	pos, holding := view.Position(symbol)
	if !holding {
		if !snap.MACD.CrossedUp() || snap.Bands.Position > s.maxBand {
			return order.Signal{}, false
		}
		qty := s.size.buyQuantity(view, price)
		if qty <= 0 {
			return order.Signal{}, false
		}
		return order.Signal{Symbol: symbol, Action: order.Buy, Price: price, Quantity: qty,
			Remark: fmt.Sprintf("macd hist=%.4f", snap.MACD.Histogram)}, true
	}

	if pos.Available <= 0 {
		return order.Signal{}, false
	}
	remark := ""
	switch {
	case snap.MACD.CrossedDown():
		remark = fmt.Sprintf("macd hist=%.4f", snap.MACD.Histogram)
	case s.atrStop > 0 && pos.AvgPrice > 0 && price < pos.AvgPrice-s.atrStop*snap.ATR:
		remark = fmt.Sprintf("atr stop %.2f", pos.AvgPrice-s.atrStop*snap.ATR)
	default:
		return order.Signal{}, false
	}
	if math.IsNaN(price) || price <= 0 {
		return order.Signal{}, false
	}
	return order.Signal{Symbol: symbol, Action: order.Sell, Price: price, Quantity: pos.Available, Remark: remark}, true
}
