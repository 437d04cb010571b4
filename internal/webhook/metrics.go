package webhook

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes per-tenant delivery counters and a running mean response
// time (spec §4.G "Metrics per tenant") as Prometheus collectors, alongside
// a queryable TenantSnapshot for the CLI/operational surface.
type Metrics struct {
	total          *prometheus.CounterVec
	successful     *prometheus.CounterVec
	failed         *prometheus.CounterVec
	deadLetter     *prometheus.CounterVec
	pendingRetries *prometheus.GaugeVec
	responseTime   *prometheus.HistogramVec

	mu      sync.Mutex
	running map[string]*runningMean
}

type runningMean struct {
	count int64
	mean  float64
}

func (r *runningMean) observe(ms float64) {
	r.count++
	r.mean += (ms - r.mean) / float64(r.count)
}

// NewMetrics constructs and registers the webhook dispatcher's Prometheus
// collectors against reg (pass prometheus.DefaultRegisterer in production,
// a fresh prometheus.NewRegistry() in tests).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowbroker_webhook_events_total", Help: "Total webhook events by tenant.",
		}, []string{"tenant_id"}),
		successful: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowbroker_webhook_events_successful_total", Help: "Webhook events delivered successfully.",
		}, []string{"tenant_id"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowbroker_webhook_events_failed_total", Help: "Webhook events that exhausted retries.",
		}, []string{"tenant_id"}),
		deadLetter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowbroker_webhook_dead_letter_total", Help: "Webhook events moved to the dead-letter queue.",
		}, []string{"tenant_id"}),
		pendingRetries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flowbroker_webhook_pending_retries", Help: "Webhook events currently awaiting retry.",
		}, []string{"tenant_id"}),
		responseTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "flowbroker_webhook_response_time_ms", Help: "Webhook delivery attempt response time in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		}, []string{"tenant_id"}),
		running: make(map[string]*runningMean),
	}
	reg.MustRegister(m.total, m.successful, m.failed, m.deadLetter, m.pendingRetries, m.responseTime)
	return m
}

// RecordAttempt updates attempt-boundary metrics (spec §4.G: "Updates occur
// at attempt boundaries"). final marks the event's last attempt, the only
// point successful_events/failed_events increment.
func (m *Metrics) RecordAttempt(tenantID string, responseTimeMs int64, success, final bool) {
	m.total.WithLabelValues(tenantID).Inc()
	m.responseTime.WithLabelValues(tenantID).Observe(float64(responseTimeMs))

	m.mu.Lock()
	rm, ok := m.running[tenantID]
	if !ok {
		rm = &runningMean{}
		m.running[tenantID] = rm
	}
	rm.observe(float64(responseTimeMs))
	m.mu.Unlock()

	if !final {
		return
	}
	if success {
		m.successful.WithLabelValues(tenantID).Inc()
	} else {
		m.failed.WithLabelValues(tenantID).Inc()
	}
}

func (m *Metrics) RecordDeadLetter(tenantID string) {
	m.deadLetter.WithLabelValues(tenantID).Inc()
}

func (m *Metrics) SetPendingRetries(tenantID string, n int) {
	m.pendingRetries.WithLabelValues(tenantID).Set(float64(n))
}

// MeanResponseTimeMs returns the running mean response time observed for a
// tenant, or 0 if none recorded yet.
func (m *Metrics) MeanResponseTimeMs(tenantID string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rm, ok := m.running[tenantID]; ok {
		return rm.mean
	}
	return 0
}
