package xmetrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusObserver 把跨度结果记录为 Prometheus 指标：
//
//	{namespace}_operations_total{component,operation,status}
//	{namespace}_operation_duration_seconds{component,operation,status}
type PrometheusObserver struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrometheusObserver 创建 Observer 并把指标注册到 reg。
// reg 为 nil 时使用 prometheus.DefaultRegisterer。
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	labels := []string{"component", "operation", "status"}
	o := &PrometheusObserver{
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total operations grouped by component, operation and status.",
		}, labels),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Operation latency distribution.",
			Buckets:   prometheus.DefBuckets,
		}, labels),
	}
	for _, c := range []prometheus.Collector{o.total, o.duration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("xmetrics: register prometheus collector failed: %w", err)
		}
	}
	return o, nil
}

// Start 实现 Observer。
func (o *PrometheusObserver) Start(ctx context.Context, opts SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx, &promSpan{
		observer:  o,
		component: orUnknown(opts.Component),
		operation: orUnknown(opts.Operation),
		start:     time.Now(),
	}
}

type promSpan struct {
	observer  *PrometheusObserver
	component string
	operation string
	start     time.Time
	endOnce   sync.Once
}

func (s *promSpan) End(result Result) {
	s.endOnce.Do(func() {
		status := string(resolveStatus(result))
		s.observer.total.WithLabelValues(s.component, s.operation, status).Inc()
		s.observer.duration.WithLabelValues(s.component, s.operation, status).Observe(time.Since(s.start).Seconds())
	})
}

var _ Observer = (*PrometheusObserver)(nil)
