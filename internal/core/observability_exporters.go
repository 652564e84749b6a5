package core

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"shieldcore/internal/collision"
	"shieldcore/pkg/domain"
)

const metricsNamespace = "shieldcore"

// domainMetrics is implemented by recorders that also track staging and
// validation outcomes.
type domainMetrics interface {
	SetPendingChanges(n int)
	ObserveFindings(violations []domain.Violation)
	ObserveCollisions(report collision.Report)
}

// PrometheusMetricsRecorder exports service metrics to a Prometheus registerer.
type PrometheusMetricsRecorder struct {
	duration   *prometheus.HistogramVec
	operations *prometheus.CounterVec
	pending    prometheus.Gauge
	findings   *prometheus.CounterVec
	pairs      *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder registers the service collectors with reg.
// A nil reg uses the default registerer.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) *PrometheusMetricsRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PrometheusMetricsRecorder{
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "service",
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"operation", "status"}),
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "service",
			Name:      "operations_total",
			Help:      "Service operations by outcome",
		}, []string{"operation", "status"}),
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "changelog",
			Name:      "pending_changes",
			Help:      "Changes staged but not yet applied",
		}),
		findings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "validation",
			Name:      "findings_total",
			Help:      "Validation findings by rule and severity",
		}, []string{"rule", "severity"}),
		pairs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "collision",
			Name:      "pairs_total",
			Help:      "Classified zone pairs by status",
		}, []string{"status"}),
	}
}

// Observe records a service operation outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := string(AuditStatusError)
	if success {
		status = string(AuditStatusSuccess)
	}
	r.duration.WithLabelValues(operation, status).Observe(duration.Seconds())
	r.operations.WithLabelValues(operation, status).Inc()
}

// SetPendingChanges sets the pending change gauge.
func (r *PrometheusMetricsRecorder) SetPendingChanges(n int) {
	r.pending.Set(float64(n))
}

// ObserveFindings counts validation findings.
func (r *PrometheusMetricsRecorder) ObserveFindings(violations []domain.Violation) {
	for _, v := range violations {
		r.findings.WithLabelValues(string(v.Rule), string(v.Severity)).Inc()
	}
}

// ObserveCollisions counts classified pairs of one detection run.
func (r *PrometheusMetricsRecorder) ObserveCollisions(report collision.Report) {
	r.pairs.WithLabelValues(string(collision.StatusCollision)).Add(float64(len(report.Collisions)))
	r.pairs.WithLabelValues(string(collision.StatusContact)).Add(float64(len(report.Contacts)))
	r.pairs.WithLabelValues(string(collision.StatusUnknown)).Add(float64(len(report.Unknown)))
}

// JSONTraceEntry is one finished span as written by JSONTraceTracer.
// Rejections by the domain carry the error kind and code.
type JSONTraceEntry struct {
	Operation  string           `json:"operation"`
	Status     string           `json:"status"`
	DurationMS float64          `json:"duration_ms"`
	Error      string           `json:"error,omitempty"`
	Kind       domain.ErrorKind `json:"kind,omitempty"`
	Code       domain.Code      `json:"code,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	EndedAt    time.Time        `json:"ended_at"`
}

func newTraceEntry(op string, started, ended time.Time, err error) JSONTraceEntry {
	e := JSONTraceEntry{
		Operation:  op,
		Status:     string(AuditStatusSuccess),
		DurationMS: float64(ended.Sub(started)) / float64(time.Millisecond),
		StartedAt:  started,
		EndedAt:    ended,
	}
	if err == nil {
		return e
	}
	e.Status = string(AuditStatusError)
	e.Error = err.Error()
	var derr *domain.Error
	if errors.As(err, &derr) {
		e.Kind, e.Code = derr.Kind, derr.Code
	}
	return e
}

// JSONTraceTracer keeps finished spans and, given a writer, emits each one as
// a JSON line.
type JSONTraceTracer struct {
	now func() time.Time

	mu    sync.Mutex
	spans []JSONTraceEntry
	out   *json.Encoder
}

// NewJSONTracer returns a tracer writing to w. A nil w only keeps spans.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	t := &JSONTraceTracer{now: func() time.Time { return time.Now().UTC() }}
	if w != nil {
		t.out = json.NewEncoder(w)
	}
	return t
}

// Entries returns the finished spans in completion order.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]JSONTraceEntry(nil), t.spans...)
}

func (t *JSONTraceTracer) finish(e JSONTraceEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = append(t.spans, e)
	if t.out != nil {
		_ = t.out.Encode(e)
	}
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	started := t.now()
	return ctx, spanFunc(func(err error) {
		t.finish(newTraceEntry(operation, started, t.now(), err))
	})
}

type spanFunc func(error)

func (f spanFunc) End(err error) { f(err) }

// LogAuditRecorder writes audit entries through a Logger.
type LogAuditRecorder struct {
	Logger Logger
}

// Record logs the entry at info level, or warn level for failures.
func (r LogAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	if r.Logger == nil {
		return
	}
	kv := []any{
		"operation", entry.Operation,
		"entity", entry.Entity,
		"name", entry.EntityID,
		"duration", entry.Duration,
	}
	if entry.Status == AuditStatusError {
		r.Logger.Warn("audit", append(kv, "error", entry.Error)...)
		return
	}
	r.Logger.Info("audit", kv...)
}
