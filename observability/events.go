package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"flashsettle/core/events"
)

type eventMetrics struct {
	committed *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry counting committed settlement events.
// The registry is itself an events.Emitter.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			committed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "flash",
				Subsystem: "events",
				Name:      "committed_total",
				Help:      "Count of committed events segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.committed)
	})
	return eventRegistry
}

// Emit implements events.Emitter.
func (m *eventMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	kind := strings.TrimSpace(evt.EventType())
	if kind == "" {
		kind = "unknown"
	}
	m.committed.WithLabelValues(kind).Inc()
}
