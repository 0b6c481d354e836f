// Package analytics implements a bounded click-ingest pipeline: a
// non-blocking producer queue and a ticker-driven flusher that batches
// events into the shared storage.Storage sorted-set contract.
package analytics

import (
	"github.com/linkforge/shortlink/internal/metrics"
	"github.com/linkforge/shortlink/internal/model"
)

// Queue is a bounded MPSC channel of click events. Enqueue never blocks: a
// full queue drops the event and counts it (when a metrics registry is set)
// rather than backpressuring callers; nothing is logged.
type Queue struct {
	ch      chan model.AnalyticsEvent
	metrics *metrics.Registry
}

// NewQueue builds a Queue with capacity qmax. m may be nil.
func NewQueue(qmax int, m *metrics.Registry) *Queue {
	if qmax <= 0 {
		qmax = 1024
	}
	return &Queue{ch: make(chan model.AnalyticsEvent, qmax), metrics: m}
}

// Enqueue records a click event. It returns false if the queue was full and
// the event was dropped.
func (q *Queue) Enqueue(ev model.AnalyticsEvent) bool {
	select {
	case q.ch <- ev:
		return true
	default:
		if q.metrics != nil {
			q.metrics.AnalyticsDropped.Inc()
		}
		return false
	}
}
