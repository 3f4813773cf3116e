package risk

import (
	"fmt"

	"go.uber.org/zap"

	"quantdesk/internal/config"
	"quantdesk/internal/strategy"
)

// Gate 在调用策略前执行仓位、委托次数与亏损限制检查。
// 阈值为 0 的检查项不启用，默认配置始终放行。
type Gate struct {
	cfg    config.RiskConfig
	logger *zap.Logger

	haltedDate string
}

// NewGate 创建风控闸门。
func NewGate(cfg config.RiskConfig, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{cfg: cfg, logger: logger}
}

// Check 返回是否允许本 tick 调用策略。
func (g *Gate) Check(view strategy.View) bool {
	return g.Evaluate(view).Allowed()
}

// Evaluate 按视图中的账户快照给出评估结果。
// 日内亏损触发后当日剩余 tick 均拒绝，次日自动恢复。
func (g *Gate) Evaluate(view strategy.View) Decision {
	status := DailyStatus{
		TradingDate:   view.Date,
		StartEquity:   view.Session.DayStartAsset,
		CurrentEquity: view.Account.TotalAsset,
	}
	if status.StartEquity > 0 {
		status.LossPercent = (status.StartEquity - status.CurrentEquity) / status.StartEquity
	}

	deny := func(reason string) Decision {
		g.logger.Debug("风控拒绝本次触发",
			zap.String("date", view.Date),
			zap.Time("time", view.Time),
			zap.String("reason", reason),
		)
		return Decision{Status: StatusDeny, Reason: reason, DailyStatus: status}
	}

	if g.haltedDate != "" && g.haltedDate == view.Date {
		status.Halted = true
		return deny("当日已触发日内亏损限制")
	}

	if limit := g.cfg.MaxDailyLoss; limit > 0 && status.LossPercent >= limit {
		g.haltedDate = view.Date
		status.Halted = true
		g.logger.Warn("触发日内亏损限制，当日停止交易",
			zap.String("date", view.Date),
			zap.Float64("start_equity", status.StartEquity),
			zap.Float64("current_equity", status.CurrentEquity),
			zap.Float64("loss_percent", status.LossPercent),
		)
		return deny(fmt.Sprintf("日内亏损 %.2f%% 超过限制 %.2f%%", status.LossPercent*100, limit*100))
	}

	if limit := g.cfg.MaxTotalLoss; limit > 0 {
		initial := view.Session.InitialCapital
		if initial <= 0 {
			initial = view.Account.InitialCapital
		}
		if initial > 0 {
			drawdown := (initial - view.Account.TotalAsset) / initial
			if drawdown >= limit {
				return deny(fmt.Sprintf("累计亏损 %.2f%% 超过限制 %.2f%%", drawdown*100, limit*100))
			}
		}
	}

	if limit := g.cfg.MaxDailyOrders; limit > 0 && view.Session.TradesToday >= limit {
		return deny(fmt.Sprintf("当日成交 %d 笔已达上限 %d", view.Session.TradesToday, limit))
	}

	if limit := g.cfg.MaxPositions; limit > 0 && len(view.Positions) > limit {
		return deny(fmt.Sprintf("持仓数 %d 超过上限 %d", len(view.Positions), limit))
	}

	if limit := g.cfg.MaxPositionRatio; limit > 0 && view.Account.TotalAsset > 0 {
		for symbol, pos := range view.Positions {
			ratio := pos.MarketValue / view.Account.TotalAsset
			if ratio > limit {
				return deny(fmt.Sprintf("%s 仓位占比 %.2f%% 超过上限 %.2f%%", symbol, ratio*100, limit*100))
			}
		}
	}

	return Decision{Status: StatusProceed, DailyStatus: status}
}
