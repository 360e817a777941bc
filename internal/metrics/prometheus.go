package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "spotbot"

// Recorder publishes bot activity as Prometheus series. It satisfies the
// position.Metrics and handlers.Metrics interfaces.
type Recorder struct {
	signals      *prometheus.CounterVec
	sizingReject *prometheus.CounterVec
	entries      *prometheus.CounterVec
	exits        *prometheus.CounterVec
	failures     *prometheus.CounterVec
	dataFailures *prometheus.CounterVec
	realized     *prometheus.GaugeVec
	positionOpen *prometheus.GaugeVec
	lastPrice    *prometheus.GaugeVec
	cycle        *prometheus.HistogramVec
}

// New registers the bot collectors on reg. Passing nil uses the default
// registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signals_total",
				Help:      "Entry signals that passed the score filter",
			},
			[]string{"symbol", "tactic"},
		),
		sizingReject: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sizing_rejections_total",
				Help:      "Signals dropped by the risk sizer",
			},
			[]string{"symbol", "reason"},
		),
		entries: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "entries_total",
				Help:      "Positions opened",
			},
			[]string{"symbol"},
		),
		exits: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exits_total",
				Help:      "Positions closed by exit reason",
			},
			[]string{"symbol", "reason"},
		),
		failures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "execution_failures_total",
				Help:      "Order submissions that failed",
			},
			[]string{"symbol", "side", "kind"},
		),
		dataFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "data_fetch_failures_total",
				Help:      "Cycles skipped because market data was unavailable",
			},
			[]string{"symbol"},
		),
		realized: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "realized_profit_quote",
				Help:      "Running sum of realized profit in quote currency",
			},
			[]string{"symbol"},
		),
		positionOpen: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "position_open",
				Help:      "1 while a position is held for the symbol",
			},
			[]string{"symbol"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_price",
				Help:      "Latest close seen by the bot loop",
			},
			[]string{"symbol"},
		),
		cycle: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "Duration of one bot cycle",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"symbol"},
		),
	}
}

func (r *Recorder) SignalGenerated(symbol, tactic string) {
	r.signals.WithLabelValues(symbol, tactic).Inc()
}

func (r *Recorder) SizingRejected(symbol, reason string) {
	r.sizingReject.WithLabelValues(symbol, reason).Inc()
}

func (r *Recorder) EntryExecuted(symbol string) {
	r.entries.WithLabelValues(symbol).Inc()
}

// ExitExecuted counts the exit and adds its profit, which may be negative,
// to the realized gauge.
func (r *Recorder) ExitExecuted(symbol, reason string, profit float64) {
	r.exits.WithLabelValues(symbol, reason).Inc()
	r.realized.WithLabelValues(symbol).Add(profit)
}

func (r *Recorder) ExecutionFailed(symbol, side, kind string) {
	r.failures.WithLabelValues(symbol, side, kind).Inc()
}

func (r *Recorder) DataFetchFailed(symbol string) {
	r.dataFailures.WithLabelValues(symbol).Inc()
}

func (r *Recorder) SetPositionOpen(symbol string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	r.positionOpen.WithLabelValues(symbol).Set(v)
}

func (r *Recorder) SetLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

func (r *Recorder) ObserveCycle(symbol string, d time.Duration) {
	r.cycle.WithLabelValues(symbol).Observe(d.Seconds())
}
