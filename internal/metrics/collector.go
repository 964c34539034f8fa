// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/structflow/extraction"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 提取指标收集器，实现 extraction.Observer
type Collector struct {
	attemptsTotal   *prometheus.CounterVec
	runsTotal       *prometheus.CounterVec
	fragmentsTotal  *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec

	logger *zap.Logger
}

var _ extraction.Observer = (*Collector)(nil)

// NewCollector 在 reg 上注册指标。reg 为 nil 时使用独立的新 Registry。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.attemptsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_attempts_total",
			Help:      "Total number of extraction attempts by outcome",
		},
		[]string{"provider", "outcome"},
	)

	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_runs_total",
			Help:      "Total number of extraction runs by outcome",
		},
		[]string{"outcome"},
	)

	c.fragmentsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_fragments_total",
			Help:      "Total number of stream fragments by parse result",
		},
		[]string{"provider", "result"},
	)

	c.attemptDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_attempt_duration_seconds",
			Help:      "Extraction attempt duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)

	c.logger.Debug("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🎯 extraction.Observer
// =============================================================================

// ObserveFragment 记录一个片段的解析结果
func (c *Collector) ObserveFragment(provider string, parsed bool) {
	result := "parsed"
	if !parsed {
		result = "skipped"
	}
	c.fragmentsTotal.WithLabelValues(provider, result).Inc()
}

// ObserveAttempt 记录一次尝试
func (c *Collector) ObserveAttempt(provider string, outcome extraction.Outcome, elapsed time.Duration) {
	c.attemptsTotal.WithLabelValues(provider, string(outcome)).Inc()
	c.attemptDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveRun 记录一次运行的最终结果
func (c *Collector) ObserveRun(outcome extraction.Outcome) {
	c.runsTotal.WithLabelValues(string(outcome)).Inc()
}

// =============================================================================
// 🌐 HTTP 暴露
// =============================================================================

// Handler 返回 g 的 /metrics 处理器
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
