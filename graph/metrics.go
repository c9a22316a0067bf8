package graph

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsListener records node executions as Prometheus metrics.
type MetricsListener struct {
	duration   *prometheus.HistogramVec
	results    *prometheus.CounterVec
	interrupts *prometheus.CounterVec
}

// NewMetricsListener registers the node metrics with reg under namespace.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetricsListener(reg prometheus.Registerer, namespace string) *MetricsListener {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &MetricsListener{
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Time spent executing a node, retries included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"node"}),
		results: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_results_total",
			Help:      "Node executions by result.",
		}, []string{"node", "result"}),
		interrupts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_interrupts_total",
			Help:      "Runs suspended by a node interrupt.",
		}, []string{"node"}),
	}
}

// OnNodeEvent implements the NodeListener interface
func (m *MetricsListener) OnNodeEvent(ctx context.Context, event NodeEvent, nodeName string, _ State, _ error) {
	if event == NodeEventStart {
		return
	}

	if info, ok := RunInfoFromContext(ctx); ok {
		m.duration.WithLabelValues(nodeName).Observe(time.Since(info.Started).Seconds())
	}

	switch event {
	case NodeEventComplete:
		m.results.WithLabelValues(nodeName, "success").Inc()
	case NodeEventInterrupt:
		m.results.WithLabelValues(nodeName, "success").Inc()
		m.interrupts.WithLabelValues(nodeName).Inc()
	case NodeEventError:
		m.results.WithLabelValues(nodeName, "error").Inc()
	}
}
