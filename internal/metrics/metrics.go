package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	"swapguard/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const DefaultNamespace = "swapguard"

// HookMetrics is the Prometheus view of the hook. It doubles as an events sink so every
// signal the hook emits is counted without extra calls in the hook itself.
type HookMetrics struct {
	Signals       *prometheus.CounterVec
	SwapsExecuted *prometheus.CounterVec
	SwapsFailed   *prometheus.CounterVec
	Batches       *prometheus.CounterVec
	Volatility    *prometheus.GaugeVec
	Slippage      *prometheus.GaugeVec

	Notifications     *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	SnapshotSaves     *prometheus.CounterVec
	LastSnapshotSaved prometheus.Gauge
}

// New registers the collectors on reg; a nil reg uses a fresh private registry
func New(namespace string, reg prometheus.Registerer) *HookMetrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &HookMetrics{
		Signals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hook",
			Name:      "signals_total",
			Help:      "Hook signals emitted by kind",
		}, []string{"kind"}),
		SwapsExecuted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "swaps_executed_total",
			Help:      "Queued swaps settled by batch runs",
		}, []string{"pool"}),
		SwapsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "swaps_failed_total",
			Help:      "Queued or revealed swaps that failed, by reason",
		}, []string{"reason"}),
		Batches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "runs_total",
			Help:      "Batch runs per pool",
		}, []string{"pool"}),
		Volatility: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hook",
			Name:      "volatility_bps",
			Help:      "Last computed volatility per pool",
		}, []string{"pool"}),
		Slippage: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hook",
			Name:      "adjusted_slippage_bps",
			Help:      "Last adjusted slippage tolerance per pool",
		}, []string{"pool"}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "notifications_total",
			Help:      "Host notifications by result",
		}, []string{"result"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		SnapshotSaves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "snapshot_saves_total",
			Help:      "Hook snapshot writes by result",
		}, []string{"result"}),
		LastSnapshotSaved: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "last_snapshot_unixtime",
			Help:      "Unix time of the last successful snapshot write",
		}),
	}
}

func (m *HookMetrics) Emit(_ context.Context, ev domain.Event) {
	m.Signals.WithLabelValues(string(ev.Kind)).Inc()

	pool := ev.PoolID.Hex()
	switch ev.Kind {
	case domain.EventSlippageCalculated:
		m.Volatility.WithLabelValues(pool).Set(float64(ev.Volatility))
		m.Slippage.WithLabelValues(pool).Set(float64(ev.Slippage))
	case domain.EventBatchExecuted:
		m.Batches.WithLabelValues(pool).Inc()
		m.SwapsExecuted.WithLabelValues(pool).Add(float64(ev.Executed))
	case domain.EventSwapFailed:
		reason := ev.Reason
		if reason == "" {
			reason = "unknown"
		}
		m.SwapsFailed.WithLabelValues(reason).Inc()
	}
}

func (m *HookMetrics) ObserveNotification(result string) {
	m.Notifications.WithLabelValues(result).Inc()
}

func (m *HookMetrics) ObserveSnapshot(err error) {
	if err != nil {
		m.SnapshotSaves.WithLabelValues("error").Inc()
		return
	}
	m.SnapshotSaves.WithLabelValues("ok").Inc()
	m.LastSnapshotSaved.SetToCurrentTime()
}

// ObserveHTTP records one request; route is the chi pattern, not the raw path
func (m *HookMetrics) ObserveHTTP(route string, code int, took time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	route = strings.TrimSuffix(route, "/")
	m.HTTPRequests.WithLabelValues(route, httpCode(code)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(took.Seconds())
}

func httpCode(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
