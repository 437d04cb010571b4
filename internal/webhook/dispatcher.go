package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"

	"github.com/pytake/flowbroker/internal/flowerrors"
)

const maxResponseBodyCapture = 1024 // 1KiB, spec §3 WebhookAttempt.response_body_truncated

// pendingRetry tracks an event awaiting its next delivery attempt.
type pendingRetry struct {
	event       Event
	attempt     int
	nextAttempt time.Time
}

// Dispatcher delivers outbound events to tenant webhook endpoints (spec
// §4.G), grounded on the teacher's gobreaker-wrapped call pattern seen in
// the reference WhatsApp message-delivery service for per-tenant circuit
// breaking, with HTTP built on the same stdlib http.Client idiom the
// teacher uses for every outbound HTTP integration.
type Dispatcher struct {
	mu       sync.RWMutex
	configs  map[string]Config
	breakers map[string]*gobreaker.CircuitBreaker

	pendingMu sync.Mutex
	pending   map[string]*pendingRetry // event_id -> retry state

	httpClient *http.Client
	store      *Store
	metrics    *Metrics
	clock      clockwork.Clock
	log        *slog.Logger
}

// NewDispatcher constructs a Dispatcher. store and metrics may be nil in
// tests that don't exercise persistence/metrics.
func NewDispatcher(store *Store, metrics *Metrics, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		configs:    make(map[string]Config),
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
		pending:    make(map[string]*pendingRetry),
		httpClient: &http.Client{},
		store:      store,
		metrics:    metrics,
		clock:      clockwork.NewRealClock(),
		log:        log,
	}
}

// WithClock overrides the dispatcher's clock, for deterministic retry-timing
// tests (spec §8 S5 expects attempts at t≈0s/1s/3s/7s).
func (d *Dispatcher) WithClock(c clockwork.Clock) *Dispatcher {
	d.clock = c
	return d
}

func (d *Dispatcher) breakerFor(tenantID string) *gobreaker.CircuitBreaker {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cb, ok := d.breakers[tenantID]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "webhook-" + tenantID,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		// At least five requests, so a single event's default schedule (four
		// attempts) always reaches the endpoint before the breaker can open.
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
	})
	d.breakers[tenantID] = cb
	return cb
}

// Configure registers (and persists, if a store is attached) a tenant's
// webhook configuration.
func (d *Dispatcher) Configure(ctx context.Context, cfg Config) error {
	if d.store != nil {
		if err := d.store.PutConfig(ctx, cfg); err != nil {
			return err
		}
	}
	d.mu.Lock()
	d.configs[cfg.TenantID] = cfg
	d.mu.Unlock()
	return nil
}

func (d *Dispatcher) configFor(tenantID string) (Config, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cfg, ok := d.configs[tenantID]
	return cfg, ok
}

// Deliver attempts first delivery of ev (spec §4.G steps 1-3). On failure it
// schedules a retry per the tenant's RetryPolicy, or dead-letters the event
// once retries are exhausted (spec §4.G step 5/6).
func (d *Dispatcher) Deliver(ctx context.Context, ev Event) error {
	cfg, ok := d.configFor(ev.TenantID)
	if !ok || !cfg.Active {
		return flowerrors.New(flowerrors.KindConfiguration, "no active webhook config for tenant "+ev.TenantID)
	}
	if !cfg.IsEventEnabled(ev.EventType) {
		return nil // spec §4.G: disabled event types are silently skipped
	}
	return d.attempt(ctx, cfg, ev, 1)
}

func (d *Dispatcher) attempt(ctx context.Context, cfg Config, ev Event, attemptNumber int) error {
	envelope := BuildEnvelope(ev, d.clock.Now().Unix())
	body, err := MarshalEnvelope(envelope)
	if err != nil {
		return flowerrors.Wrap(flowerrors.KindInternalConsistency, "marshal envelope", err)
	}
	signature := Sign(cfg.SecretKey, body)
	headers := buildHeaders(cfg, ev, signature, envelope)

	url := cfg.BaseURL
	if ev.TargetURL != "" {
		url = ev.TargetURL
	}

	start := d.clock.Now()
	status, respBody, sendErr := d.send(ctx, cfg, url, headers, body)
	elapsedMs := d.clock.Now().Sub(start).Milliseconds()

	success := sendErr == nil && status >= 200 && status < 300
	final := success || attemptNumber > cfg.RetryPolicy.MaxRetries

	rec := Attempt{
		AttemptNumber:          attemptNumber,
		AttemptedAt:            start,
		ResponseStatus:         status,
		ResponseBodyTruncated:  truncate(respBody, maxResponseBodyCapture),
		ResponseTimeMs:         elapsedMs,
		Success:                success,
	}
	if sendErr != nil {
		rec.Error = sendErr.Error()
	}
	ev.Attempts = append(ev.Attempts, rec)

	if d.metrics != nil {
		d.metrics.RecordAttempt(cfg.TenantID, elapsedMs, success, final)
	}

	if success {
		d.clearPending(ev.EventID)
		if d.metrics != nil {
			d.metrics.SetPendingRetries(cfg.TenantID, d.pendingCountFor(cfg.TenantID))
		}
		return nil
	}
	if attemptNumber > cfg.RetryPolicy.MaxRetries {
		return d.deadLetter(ctx, cfg, ev, sendErr, status)
	}

	wait := Delay(attemptNumber, cfg.RetryPolicy)
	d.schedulePending(ev, attemptNumber+1, d.clock.Now().Add(wait))
	if d.metrics != nil {
		d.metrics.SetPendingRetries(cfg.TenantID, d.pendingCountFor(cfg.TenantID))
	}
	d.log.Warn("webhook delivery failed, retry scheduled",
		"tenant_id", cfg.TenantID, "event_id", ev.EventID, "attempt", attemptNumber, "retry_in", wait)
	return flowerrors.Wrap(flowerrors.KindTransientExternal, "webhook delivery failed", sendErr)
}

func (d *Dispatcher) send(ctx context.Context, cfg Config, url string, headers map[string]string, body []byte) (int, []byte, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := d.breakerFor(cfg.TenantID).Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := d.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyCapture))
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return sendOutcome{status: resp.StatusCode, body: respBody}, fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
		}
		return sendOutcome{status: resp.StatusCode, body: respBody}, nil
	})

	if result == nil {
		return 0, nil, err
	}
	out := result.(sendOutcome)
	return out.status, out.body, err
}

type sendOutcome struct {
	status int
	body   []byte
}

func buildHeaders(cfg Config, ev Event, signature string, e Envelope) map[string]string {
	headers := make(map[string]string, len(cfg.DefaultHeaders)+len(ev.CustomHeaders)+6)
	for k, v := range cfg.DefaultHeaders {
		headers[k] = v
	}
	for k, v := range ev.CustomHeaders {
		headers[k] = v
	}
	switch cfg.Auth.Kind {
	case AuthBearer:
		headers["Authorization"] = "Bearer " + cfg.Auth.Token
	case AuthBasic:
		headers["Authorization"] = basicAuthHeader(cfg.Auth.Username, cfg.Auth.Password)
	case AuthAPIKey:
		name := cfg.Auth.HeaderName
		if name == "" {
			name = "X-Api-Key"
		}
		headers[name] = cfg.Auth.Token
	}
	for k, v := range SignatureHeaders(e, signature) {
		headers[k] = v // engine headers always win (spec §4.G step 3 "non-overridable")
	}
	return headers
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}

func (d *Dispatcher) schedulePending(ev Event, nextAttempt int, at time.Time) {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	d.pending[ev.EventID] = &pendingRetry{event: ev, attempt: nextAttempt, nextAttempt: at}
}

func (d *Dispatcher) clearPending(eventID string) {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	delete(d.pending, eventID)
}

func (d *Dispatcher) pendingCountFor(tenantID string) int {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	n := 0
	for _, p := range d.pending {
		if p.event.TenantID == tenantID {
			n++
		}
	}
	return n
}

// ProcessDue attempts every pending retry whose scheduled time has arrived
// (spec §4.H retry-worker tick, ~5s).
func (d *Dispatcher) ProcessDue(ctx context.Context) {
	now := d.clock.Now()
	d.pendingMu.Lock()
	var due []*pendingRetry
	for id, p := range d.pending {
		if !now.Before(p.nextAttempt) {
			due = append(due, p)
			delete(d.pending, id)
		}
	}
	d.pendingMu.Unlock()

	for _, p := range due {
		cfg, ok := d.configFor(p.event.TenantID)
		if !ok {
			continue
		}
		_ = d.attempt(ctx, cfg, p.event, p.attempt)
	}
}

func (d *Dispatcher) deadLetter(ctx context.Context, cfg Config, ev Event, sendErr error, status int) error {
	reason := "max retries exhausted"
	if sendErr != nil {
		reason = sendErr.Error()
	} else if status != 0 {
		reason = fmt.Sprintf("http status %d", status)
	}
	entry := DeadLetterEntry{Event: ev, FailedAt: d.clock.Now(), FailureReason: reason, CanRetry: true}
	if d.metrics != nil {
		d.metrics.RecordDeadLetter(cfg.TenantID)
		d.metrics.SetPendingRetries(cfg.TenantID, d.pendingCountFor(cfg.TenantID))
	}
	if d.store != nil {
		if err := d.store.PutDeadLetter(ctx, entry); err != nil {
			return flowerrors.Wrap(flowerrors.KindInternalConsistency, "persist dead letter", err)
		}
	}
	d.log.Error("webhook event moved to dead-letter queue",
		"tenant_id", cfg.TenantID, "event_id", ev.EventID, "reason", reason)
	return flowerrors.Wrap(flowerrors.KindPermanentExternal, "webhook event dead-lettered", sendErr)
}

// Retry re-attempts a dead-lettered event, preserving its event_id (spec
// §4.G "retry(event_id) re-enqueues ... preserving event_id").
func (d *Dispatcher) Retry(ctx context.Context, tenantID, eventID string) error {
	if d.store == nil {
		return flowerrors.New(flowerrors.KindConfiguration, "no store attached")
	}
	entries, err := d.store.ListDeadLetters(ctx, tenantID)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Event.EventID != eventID {
			continue
		}
		if !entry.CanRetry {
			return flowerrors.New(flowerrors.KindPermanentExternal, "event is not retryable")
		}
		ev := entry.Event
		ev.Attempts = nil
		if err := d.store.DeleteDeadLetter(ctx, eventID); err != nil {
			return err
		}
		return d.Deliver(ctx, ev)
	}
	return flowerrors.New(flowerrors.KindInput, "dead-letter event not found")
}

// Clear wipes a tenant's entire dead-letter queue (spec §6).
func (d *Dispatcher) Clear(ctx context.Context, tenantID string) error {
	if d.store == nil {
		return flowerrors.New(flowerrors.KindConfiguration, "no store attached")
	}
	return d.store.ClearDeadLetters(ctx, tenantID)
}

func basicAuthHeader(username, password string) string {
	req := &http.Request{Header: make(http.Header)}
	req.SetBasicAuth(username, password)
	return req.Header.Get("Authorization")
}
