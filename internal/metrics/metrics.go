package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quantdesk"

// tick 处理结果标签
const (
	TickInvoked       = "invoked"
	TickNonTradingDay = "non_trading_day"
	TickNotTriggered  = "not_triggered"
	TickRiskDenied    = "risk_denied"
	TickAllEmpty      = "all_empty"
)

// Collector 持有回测运行的计数器。方法对 nil 接收者安全，未启用指标时可直接传 nil。
type Collector struct {
	registry   *prometheus.Registry
	ticks      *prometheus.CounterVec
	signals    *prometheus.CounterVec
	fills      *prometheus.CounterVec
	rejections *prometheus.CounterVec
	progress   prometheus.Gauge
}

// NewCollector 在独立的 registry 上注册指标，避免多次运行互相污染。
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "ticks_total", Help: "Timeline ticks processed by result"},
			[]string{"result"},
		),
		signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "signals_total", Help: "Signals emitted by the strategy"},
			[]string{"action"},
		),
		fills: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "fills_total", Help: "Signals applied to the ledger"},
			[]string{"action"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "rejections_total", Help: "Signals rejected by the ledger"},
			[]string{"reason"},
		),
		progress: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: namespace, Name: "progress_ratio", Help: "Fraction of the timeline processed"},
		),
	}
	c.registry.MustRegister(c.ticks, c.signals, c.fills, c.rejections, c.progress)
	return c
}

// Registry 返回底层 registry。
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) Tick(result string) {
	if c == nil {
		return
	}
	c.ticks.WithLabelValues(result).Inc()
}

func (c *Collector) Signal(action string) {
	if c == nil {
		return
	}
	c.signals.WithLabelValues(action).Inc()
}

func (c *Collector) Fill(action string) {
	if c == nil {
		return
	}
	c.fills.WithLabelValues(action).Inc()
}

func (c *Collector) Rejection(reason string) {
	if c == nil {
		return
	}
	c.rejections.WithLabelValues(reason).Inc()
}

// Progress 记录进度，取值 [0, 1]。
func (c *Collector) Progress(ratio float64) {
	if c == nil {
		return
	}
	c.progress.Set(ratio)
}

// Handler 返回 /metrics 处理器。
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
