// Package bus implements the outbound event bus (spec §4.F): an
// intra-process, multi-producer/single-or-multi-consumer queue of events
// the engine enqueues on state transitions tenants have opted into, read
// by the webhook dispatcher. Rewritten from the teacher's MessageBus
// (internal/bus.MessageBus, a single pair of inbound/outbound channels with
// per-channel subscriber callbacks) into per-tenant bounded sub-queues
// drained in round robin, so one noisy tenant cannot starve another's
// webhook deliveries.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pytake/flowbroker/internal/flowerrors"
)

// Event is one outbound occurrence destined for the webhook dispatcher
// (spec §4.F: session.started, node.entered, session.completed,
// session.failed, action.failed, plus call_webhook actions).
type Event struct {
	ID        string
	TenantID  string
	Type      string
	Data      map[string]any
	CreatedAt time.Time
}

const defaultSubQueueCapacity = 256

// Bus is the per-tenant fair, bounded outbound event queue.
type Bus struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	queues   map[string][]Event
	order    []string // tenant ids in round-robin order
	cursor   int
	capacity int
	closed   bool
}

// NewBus constructs a Bus with the given per-tenant sub-queue capacity
// (spec §4.F "bounded size"). capacity <= 0 uses a sane default.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = defaultSubQueueCapacity
	}
	b := &Bus{queues: make(map[string][]Event), capacity: capacity}
	b.notEmpty = sync.NewCond(&b.mu)
	return b
}

// Publish implements engine.EventSink. It blocks until room is available in
// the tenant's sub-queue, the context is cancelled, or a bounded backpressure
// timeout elapses — at which point it fails with KindCapacity (spec §7) and
// the caller's node follows its error_handling policy.
func (b *Bus) Publish(ctx context.Context, tenantID, eventType string, data map[string]any) error {
	return b.PublishEvent(ctx, Event{
		ID: uuid.NewString(), TenantID: tenantID, Type: eventType, Data: data, CreatedAt: time.Now(),
	})
}

// PublishEvent is Publish with full control over the Event, e.g. to
// preserve an existing event_id when replaying from the DLQ (spec §4.G
// "retry(event_id) ... preserving event_id").
func (b *Bus) PublishEvent(ctx context.Context, ev Event) error {
	deadline := time.Now().Add(5 * time.Second)
	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return flowerrors.New(flowerrors.KindCapacity, "event bus is closed")
		}
		if len(b.queues[ev.TenantID]) < b.capacity {
			if _, seen := b.queues[ev.TenantID]; !seen {
				b.order = append(b.order, ev.TenantID)
			}
			b.queues[ev.TenantID] = append(b.queues[ev.TenantID], ev)
			b.notEmpty.Signal()
			b.mu.Unlock()
			return nil
		}
		b.mu.Unlock()

		if time.Now().After(deadline) {
			return flowerrors.New(flowerrors.KindCapacity, "event bus backpressure: tenant queue full")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Consume returns the next event in tenant round-robin order, blocking
// until one is available or ctx is cancelled (spec §4.F "per-tenant
// fairness via round-robin over tenant sub-queues").
func (b *Bus) Consume(ctx context.Context) (Event, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			b.notEmpty.Broadcast()
			b.mu.Unlock()
		case <-done:
		}
	}()

	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		if ev, ok := b.popLocked(); ok {
			return ev, nil
		}
		if err := ctx.Err(); err != nil {
			return Event{}, err
		}
		if b.closed {
			return Event{}, flowerrors.New(flowerrors.KindCapacity, "event bus is closed")
		}
		b.notEmpty.Wait()
	}
}

func (b *Bus) popLocked() (Event, bool) {
	n := len(b.order)
	for i := 0; i < n; i++ {
		idx := (b.cursor + i) % n
		tenantID := b.order[idx]
		q := b.queues[tenantID]
		if len(q) == 0 {
			continue
		}
		ev := q[0]
		b.queues[tenantID] = q[1:]
		b.cursor = (idx + 1) % n
		return ev, true
	}
	return Event{}, false
}

// Close unblocks any pending Consume calls. Subsequent Publish calls fail.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.notEmpty.Broadcast()
	b.mu.Unlock()
}

// Depth returns the number of queued events across every tenant, for metrics.
func (b *Bus) Depth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, q := range b.queues {
		n += len(q)
	}
	return n
}
