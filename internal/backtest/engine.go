package backtest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"quantdesk/internal/cost"
	"quantdesk/internal/ledger"
	"quantdesk/internal/log"
	"quantdesk/internal/market"
	"quantdesk/internal/metrics"
	"quantdesk/internal/monitor"
	"quantdesk/internal/order"
	"quantdesk/internal/recorder"
	"quantdesk/internal/strategy"
	"quantdesk/internal/trigger"
)

// 前若干个 tick 逐个通知进度，之后约每 1% 通知一次。
const eagerProgressTicks = 5

// Deps 为引擎依赖的组件。Risk、Calendar、Observer、Metrics 可为空。
type Deps struct {
	Provider market.Provider
	Strategy strategy.Strategy
	Trigger  trigger.Trigger
	Risk     RiskChecker
	Cost     *cost.Model
	Calendar *market.Calendar
	Observer monitor.Observer
	Metrics  *metrics.Collector
	Logger   *zap.Logger
}

// Result 汇总回测结果。被中止时只包含已处理部分。
type Result struct {
	RunID        string            `json:"run_id"`
	Strategy     string            `json:"strategy"`
	Period       market.Period     `json:"period"`
	Tables       recorder.Tables   `json:"-"`
	Metrics      Metrics           `json:"metrics"`
	FinalAccount ledger.Account    `json:"final_account"`
	Positions    []ledger.Position `json:"positions"`
	Ticks        int               `json:"ticks"`
	TotalTicks   int               `json:"total_ticks"`
	Interrupted  bool              `json:"interrupted"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
}

// Engine 按时间顺序回放行情，驱动策略、风控、成本与账本。
// 一个 Engine 只执行一次 Run，状态由单个 goroutine 独占。
type Engine struct {
	cfg  Config
	deps Deps

	logger  *zap.Logger
	stopped atomic.Bool
	started atomic.Bool
}

// NewEngine 构建回测引擎。
func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if deps.Provider == nil {
		return nil, fmt.Errorf("backtest: provider 不能为空")
	}
	if deps.Strategy == nil {
		return nil, fmt.Errorf("backtest: strategy 不能为空")
	}
	if deps.Trigger == nil {
		deps.Trigger = trigger.Tick{}
	}
	if deps.Cost == nil {
		deps.Cost = cost.New(cost.Config{})
	}
	if deps.Calendar == nil {
		deps.Calendar = market.NewCalendar(nil)
	}
	if deps.Observer == nil {
		deps.Observer = monitor.ObserverFunc(func(monitor.Event) {})
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	cfg = cfg.normalize()
	if len(cfg.Universe) == 0 {
		return nil, fmt.Errorf("backtest: 股票池不能为空")
	}
	if cfg.Start.IsZero() || cfg.End.IsZero() || cfg.End.Before(cfg.Start) {
		return nil, fmt.Errorf("backtest: 回测区间非法 [%s, %s]", cfg.Start.Format("2006-01-02"), cfg.End.Format("2006-01-02"))
	}

	return &Engine{
		cfg:    cfg,
		deps:   deps,
		logger: log.ForRun(deps.Logger, cfg.RunID, ""),
	}, nil
}

// RunID 返回本次运行标识。
func (e *Engine) RunID() string {
	return e.cfg.RunID
}

// Stop 请求在下一个 tick 边界停止，可在任意 goroutine 调用。
func (e *Engine) Stop() {
	e.stopped.Store(true)
}

// Run 执行完整回测流程。配置类错误在回放前返回；被取消时返回部分结果与 ErrStopped；
// tick 内意外失败返回部分结果与 *TickError。
func (e *Engine) Run(ctx context.Context) (Result, error) {
	if !e.started.CompareAndSwap(false, true) {
		return Result{}, fmt.Errorf("backtest: 引擎不可重复运行")
	}

	r, err := e.prepare(ctx)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ErrStopped, err)
		}
		return Result{RunID: e.cfg.RunID, Strategy: e.deps.Strategy.Name()}, err
	}

	e.logger.Info("开始回测",
		zap.String("strategy", e.deps.Strategy.Name()),
		zap.String("period", string(r.period)),
		zap.Int("symbols", len(e.cfg.Universe)),
		zap.Int("ticks", len(r.timeline)),
	)

	var runErr error
	for i, ts := range r.timeline {
		if e.stopRequested(ctx) {
			r.interrupted = true
			runErr = ErrStopped
			break
		}
		if err := r.step(ctx, i, ts); err != nil {
			r.interrupted = true
			runErr = err
			break
		}
		r.processed = i + 1
	}

	if !r.interrupted {
		if err := r.postMarket(); err != nil {
			runErr = r.tickError(len(r.timeline)-1, r.lastView.Time, err)
		}
	}

	result := r.result()
	switch {
	case errors.Is(runErr, ErrStopped):
		e.logger.Warn("回测已中止", zap.Int("processed", result.Ticks), zap.Int("total", result.TotalTicks))
	case runErr != nil:
		e.logger.Error("回测异常终止", zap.Error(runErr))
		e.deps.Observer.Notify(monitor.Event{
			Type:    monitor.EventError,
			RunID:   e.cfg.RunID,
			Payload: monitor.ErrorPayload{Message: "回测异常终止", Error: runErr.Error()},
		})
	default:
		e.logger.Info("回测完成",
			zap.Float64("total_return", result.Metrics.TotalReturn),
			zap.Float64("max_drawdown", result.Metrics.MaxDrawdown),
			zap.Float64("sharpe", result.Metrics.SharpeRatio),
			zap.Int("trades", result.Metrics.TradeCount),
		)
	}
	return result, runErr
}

func (e *Engine) stopRequested(ctx context.Context) bool {
	return e.stopped.Load() || ctx.Err() != nil
}

// prepare 完成回放前的全部工作：解析周期、加载行情、初始化策略、构建时间轴。
func (e *Engine) prepare(ctx context.Context) (*run, error) {
	startedAt := time.Now()
	loadEnd := e.cfg.loadEnd()

	period := e.deps.Trigger.DataPeriod()
	var lookahead time.Duration
	var filter func(market.Series) market.Series
	custom, isCustom := e.deps.Trigger.(*trigger.Custom)
	if isCustom {
		offsets := custom.Offsets()
		if trigger.AllWholeMinutes(offsets) {
			period = market.Period1m
		}
		lookahead = customLookahead
		filter = func(s market.Series) market.Series {
			rows := make([]market.Row, 0, len(offsets)*4)
			for _, row := range s.Rows {
				if custom.Matches(row.Time, customLookahead) {
					rows = append(rows, row)
				}
			}
			s.Rows = rows
			return s
		}
	}

	if err := e.deps.Strategy.Init(append([]string(nil), e.cfg.Universe...), strategy.InitData{
		Start:          e.cfg.Start,
		End:            e.cfg.End,
		Period:         period,
		InitialCapital: e.cfg.InitialCapital,
		Benchmark:      e.cfg.Benchmark,
		Params:         e.cfg.StrategyParams,
		Logger:         log.ForRun(e.deps.Logger, e.cfg.RunID, e.deps.Strategy.Name()),
	}); err != nil {
		return nil, fmt.Errorf("backtest: 策略 %s 初始化失败: %w", e.deps.Strategy.Name(), err)
	}

	series, err := market.LoadAll(ctx, e.deps.Provider, e.cfg.Universe, market.LoadOptions{
		Period:      period,
		Start:       e.cfg.Start,
		End:         loadEnd,
		Concurrency: e.cfg.Concurrency,
		Filter:      filter,
	}, e.logger)
	if err != nil {
		return nil, fmt.Errorf("backtest: 加载行情失败: %w", err)
	}

	var timeline []time.Time
	if isCustom {
		timeline = clockTimeline(e.deps.Calendar, market.StartOfDay(e.cfg.Start), loadEnd, custom.Offsets())
	} else {
		timeline = unionTimeline(series)
	}
	if len(timeline) == 0 {
		return nil, ErrEmptyTimeline
	}

	closes := recorder.NewDailyCloseCache(e.deps.Provider, e.cfg.Start, loadEnd, e.logger)
	feeds := make(map[string]*feed, len(series))
	for symbol, s := range series {
		feeds[symbol] = newFeed(s)
		if period.Intraday() {
			closes.Seed(s)
		}
	}

	benchmark, err := recorder.LoadBenchmark(ctx, e.deps.Provider, e.cfg.Benchmark, e.cfg.Start, loadEnd, e.logger)
	if err != nil {
		e.logger.Warn("加载基准指数失败，忽略基准", zap.String("benchmark", e.cfg.Benchmark), zap.Error(err))
		benchmark = recorder.NewBenchmarkCache(e.cfg.Benchmark, nil)
	}

	step := len(timeline) / 100
	if step < 1 {
		step = 1
	}

	return &run{
		cfg:       e.cfg,
		deps:      e.deps,
		logger:    e.logger,
		period:    period,
		lookahead: lookahead,
		timeline:  timeline,
		feeds:     feeds,
		ledger:    ledger.New(e.cfg.InitialCapital),
		recorder:  recorder.New(e.cfg.InitialCapital, closes, benchmark, e.logger),
		progress:  step,
		startedAt: startedAt,
	}, nil
}

// run 为单次回放的可变状态。
type run struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger

	period    market.Period
	lookahead time.Duration
	timeline  []time.Time
	feeds     map[string]*feed
	ledger    *ledger.Ledger
	recorder  *recorder.Recorder

	currentDate   string
	dayStartAsset float64
	tradesToday   int
	lastView      strategy.View
	postPending   bool

	progress    int
	processed   int
	interrupted bool
	startedAt   time.Time
}

// step 处理单个 tick。策略错误与 panic 转为 *TickError。
func (r *run) step(ctx context.Context, i int, ts time.Time) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = r.tickError(i, ts, fmt.Errorf("panic: %v", p))
		}
	}()

	date := market.DateKey(ts)
	for _, f := range r.feeds {
		f.advance(ts, r.lookahead)
	}

	if !r.deps.Calendar.IsTradingDay(ts) {
		r.deps.Metrics.Tick(metrics.TickNonTradingDay)
		r.notifyProgress(i, ts)
		return nil
	}

	if date != r.currentDate {
		if err := r.newDay(ts, date); err != nil {
			return r.tickError(i, ts, err)
		}
	}

	view := r.view(ts, date)
	result := r.evaluate(ts, view)
	r.deps.Metrics.Tick(result)

	if result == metrics.TickInvoked {
		signals, err := r.deps.Strategy.OnTick(view)
		if err != nil {
			return r.tickError(i, ts, fmt.Errorf("策略 OnTick 失败: %w", err))
		}
		if len(signals) > 0 {
			if err := r.applySignals(ts, date, signals); err != nil {
				return r.tickError(i, ts, err)
			}
			view = r.view(ts, date)
		}
	}
	r.lastView = view

	if r.lastTickOfDay(i) {
		r.recorder.TakeDailySnapshot(ctx, date, view, r.ledger)
	}
	r.notifyProgress(i, ts)
	return nil
}

// evaluate 依次检查触发器、风控与数据完整性，返回本 tick 的处理结果。
func (r *run) evaluate(ts time.Time, view strategy.View) string {
	if !r.deps.Trigger.ShouldTrigger(ts, view) {
		return metrics.TickNotTriggered
	}
	if r.deps.Risk != nil && !r.deps.Risk.Check(view) {
		return metrics.TickRiskDenied
	}
	if view.AllEmpty() {
		r.warn(ts, "当前时间点所有标的均无行情数据，跳过策略调用", "", "")
		return metrics.TickAllEmpty
	}
	return metrics.TickInvoked
}

// newDay 依次执行：前一交易日盘后回调、T+1 结算、重置当日统计、盘前回调。
func (r *run) newDay(ts time.Time, date string) error {
	if err := r.postMarket(); err != nil {
		return err
	}

	r.ledger.Settle(date)
	r.currentDate = date
	r.tradesToday = 0
	r.dayStartAsset = r.ledger.Mark(r.prices(date)).TotalAsset
	r.postPending = true

	if !r.cfg.EnablePreMarket {
		return nil
	}
	pre, ok := r.deps.Strategy.(strategy.PreMarketer)
	if !ok {
		return nil
	}
	signals, err := pre.PreMarket(r.view(ts, date))
	if err != nil {
		return fmt.Errorf("盘前回调失败: %w", err)
	}
	return r.applySignals(ts, date, signals)
}

// postMarket 以当日最后一个视图调用盘后回调，每个交易日至多一次。
// 回调返回的信号以该视图的时间与日期成交。
func (r *run) postMarket() error {
	if !r.postPending {
		return nil
	}
	r.postPending = false
	if !r.cfg.EnablePostMarket {
		return nil
	}
	post, ok := r.deps.Strategy.(strategy.PostMarketer)
	if !ok {
		return nil
	}
	signals, err := post.PostMarket(r.lastView)
	if err != nil {
		return fmt.Errorf("盘后回调失败: %w", err)
	}
	return r.applySignals(r.lastView.Time, r.lastView.Date, signals)
}

func (r *run) prices(date string) map[string]float64 {
	prices := make(map[string]float64, len(r.feeds))
	for symbol, f := range r.feeds {
		q := f.quote(date)
		if q.Empty {
			continue
		}
		if p := q.Price(); p > 0 {
			prices[symbol] = p
		}
	}
	return prices
}

// view 以最新观测盯市后构建只读视图。
func (r *run) view(ts time.Time, date string) strategy.View {
	quotes := make(map[string]strategy.Quote, len(r.cfg.Universe))
	for _, symbol := range r.cfg.Universe {
		quotes[symbol] = r.feeds[symbol].quote(date)
	}
	view := strategy.View{
		Time:      ts,
		Date:      date,
		Quotes:    quotes,
		Positions: r.ledger.PositionMap(),
		Universe:  append([]string(nil), r.cfg.Universe...),
		Session: strategy.Session{
			InitialCapital: r.cfg.InitialCapital,
			DayStartAsset:  r.dayStartAsset,
			TradesToday:    r.tradesToday,
		},
	}
	view.Account = r.ledger.Mark(view.Prices())
	view.Positions = r.ledger.PositionMap()
	return view
}

// applySignals 按顺序执行信号。被拒绝与非法信号只记录告警，其它账本错误终止回测。
func (r *run) applySignals(ts time.Time, date string, signals []order.Signal) error {
	for _, sig := range signals {
		sig.Price = cost.Round2(sig.Price)
		r.deps.Metrics.Signal(string(sig.Action))

		if err := strategy.ValidateSignal(sig); err != nil {
			r.warn(ts, "策略信号非法，已忽略", sig.Symbol, err.Error())
			continue
		}

		breakdown := r.deps.Cost.Calculate(sig.Price, sig.Quantity, sig.Action, sig.Symbol)
		fill, err := r.ledger.Apply(sig, breakdown, ts, date)
		if errors.Is(err, ledger.ErrNoop) {
			r.logger.Debug("忽略数量为零的信号", zap.String("symbol", sig.Symbol), zap.Time("time", ts))
			continue
		}
		if rej, ok := ledger.AsRejection(err); ok {
			r.reject(ts, rej)
			continue
		}
		if err != nil {
			return fmt.Errorf("执行信号失败: %w", err)
		}

		r.recorder.RecordTrade(fill)
		r.tradesToday++
		r.deps.Metrics.Fill(string(fill.Side))
		r.deps.Observer.Notify(monitor.Event{
			Type:     monitor.EventTrade,
			RunID:    r.cfg.RunID,
			TickTime: ts,
			Payload:  monitor.TradePayload{Fill: fill},
		})
		r.logger.Debug("信号成交",
			zap.String("symbol", fill.Symbol),
			zap.String("side", string(fill.Side)),
			zap.Int64("quantity", fill.Quantity),
			zap.Float64("price", fill.Price),
			zap.Float64("fees", fill.Fees.Total),
			zap.Float64("cash_after", fill.CashAfter),
		)
	}
	return nil
}

func (r *run) reject(ts time.Time, rej *ledger.Rejection) {
	r.deps.Metrics.Rejection(string(rej.Reason))
	r.logger.Warn("订单被拒绝",
		zap.Time("time", ts),
		zap.String("symbol", rej.Signal.Symbol),
		zap.String("side", string(rej.Signal.Action)),
		zap.Int64("quantity", rej.Signal.Quantity),
		zap.String("reason", string(rej.Reason)),
		zap.Float64("required", rej.Required),
		zap.Float64("available", rej.Available),
	)
	r.deps.Observer.Notify(monitor.Event{
		Type:     monitor.EventRejection,
		RunID:    r.cfg.RunID,
		TickTime: ts,
		Payload: monitor.RejectionPayload{
			Signal: rej.Signal,
			Reason: string(rej.Reason),
			Detail: rej.Error(),
		},
	})
}

func (r *run) warn(ts time.Time, message, symbol, detail string) {
	r.logger.Warn(message, zap.Time("time", ts), zap.String("symbol", symbol), zap.String("detail", detail))
	r.deps.Observer.Notify(monitor.Event{
		Type:     monitor.EventWarning,
		RunID:    r.cfg.RunID,
		TickTime: ts,
		Payload:  monitor.WarningPayload{Message: message, Symbol: symbol, Detail: detail},
	})
}

func (r *run) lastTickOfDay(i int) bool {
	if i+1 >= len(r.timeline) {
		return true
	}
	return market.DateKey(r.timeline[i+1]) != market.DateKey(r.timeline[i])
}

func (r *run) notifyProgress(i int, ts time.Time) {
	current := i + 1
	total := len(r.timeline)
	if current > eagerProgressTicks && current%r.progress != 0 && current != total {
		return
	}
	percent := float64(current) / float64(total)
	r.deps.Metrics.Progress(percent)
	r.deps.Observer.Notify(monitor.Event{
		Type:     monitor.EventProgress,
		RunID:    r.cfg.RunID,
		TickTime: ts,
		Payload:  monitor.ProgressPayload{Current: current, Total: total, Percent: percent * 100},
	})
}

func (r *run) tickError(i int, ts time.Time, err error) *TickError {
	return &TickError{
		Timestamp: ts,
		Index:     i,
		Progress:  float64(i) / float64(len(r.timeline)),
		Err:       err,
	}
}

func (r *run) result() Result {
	tables := r.recorder.Tables()
	return Result{
		RunID:        r.cfg.RunID,
		Strategy:     r.deps.Strategy.Name(),
		Period:       r.period,
		Tables:       tables,
		Metrics:      calculateMetrics(r.cfg.InitialCapital, tables),
		FinalAccount: r.ledger.Account(),
		Positions:    r.ledger.Positions(),
		Ticks:        r.processed,
		TotalTicks:   len(r.timeline),
		Interrupted:  r.interrupted,
		StartedAt:    r.startedAt,
		FinishedAt:   time.Now(),
	}
}
