package common

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// --------------------------------------------------------------------------
// Server metrics (Prometheus text format via VictoriaMetrics/metrics)
// --------------------------------------------------------------------------

var (
	sessionsActive   = metrics.NewCounter("dinv_sessions_active")
	sessionsRejected = metrics.NewCounter("dinv_sessions_rejected_total")
	requestDuration  = metrics.NewSummary("dinv_request_duration_seconds")

	queueLength     atomic.Pointer[func() int]
	queueLengthOnce sync.Once
)

// ObserveRequest records a handled request of the given type
func ObserveRequest(t CommandType, ok bool, enqueued time.Time) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`dinv_requests_total{verb=%q}`, t.String())).Inc()
	if !ok {
		metrics.GetOrCreateCounter(fmt.Sprintf(`dinv_failures_total{verb=%q}`, t.String())).Inc()
	}
	if !enqueued.IsZero() {
		requestDuration.UpdateDuration(enqueued)
	}
}

// ObserveReplication records the outcome of a replication attempt
func ObserveReplication(ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	metrics.GetOrCreateCounter(fmt.Sprintf(`dinv_replications_total{result=%q}`, result)).Inc()
}

// SessionOpened increments the active session gauge
func SessionOpened() { sessionsActive.Inc() }

// SessionClosed decrements the active session gauge
func SessionClosed() { sessionsActive.Dec() }

// SessionRejected counts a connection turned away because every session slot was taken
func SessionRejected() { sessionsRejected.Inc() }

// RegisterQueueLength exposes the length of the request mailbox as dinv_queue_length
func RegisterQueueLength(f func() int) {
	queueLength.Store(&f)
	queueLengthOnce.Do(func() {
		metrics.NewGauge("dinv_queue_length", func() float64 {
			return float64((*queueLength.Load())())
		})
	})
}

// WriteMetrics writes all metrics in Prometheus text format
func WriteMetrics(w io.Writer) {
	metrics.WritePrometheus(w, true)
}
