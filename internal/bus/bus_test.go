package bus

import (
	"context"
	"testing"
	"time"
)

func TestPublishConsumeRoundTrip(t *testing.T) {
	b := NewBus(4)
	ctx := context.Background()
	if err := b.Publish(ctx, "tenant-a", "session.started", map[string]any{"k": "v"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	ev, err := b.Consume(ctx)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if ev.TenantID != "tenant-a" || ev.Type != "session.started" {
		t.Fatalf("unexpected event: %#v", ev)
	}
}

func TestConsumeRoundRobinsAcrossTenants(t *testing.T) {
	b := NewBus(4)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := b.Publish(ctx, "tenant-a", "e", nil); err != nil {
			t.Fatalf("publish a: %v", err)
		}
	}
	if err := b.Publish(ctx, "tenant-b", "e", nil); err != nil {
		t.Fatalf("publish b: %v", err)
	}

	first, _ := b.Consume(ctx)
	second, _ := b.Consume(ctx)
	third, _ := b.Consume(ctx)

	seen := map[string]int{}
	seen[first.TenantID]++
	seen[second.TenantID]++
	seen[third.TenantID]++
	if seen["tenant-a"] != 2 || seen["tenant-b"] != 1 {
		t.Fatalf("expected 2 events from tenant-a and 1 from tenant-b, got %v", seen)
	}
	// tenant-b's single event must not be starved behind both of
	// tenant-a's: round robin should interleave it ahead of tenant-a's
	// second event.
	if !(first.TenantID == "tenant-a" && second.TenantID == "tenant-b") {
		t.Fatalf("expected round-robin order [a, b, a], got [%s, %s, %s]", first.TenantID, second.TenantID, third.TenantID)
	}
}

func TestPublishBackpressureFailsWhenQueueFull(t *testing.T) {
	b := NewBus(1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := b.Publish(context.Background(), "tenant-a", "e", nil); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if err := b.Publish(ctx, "tenant-a", "e", nil); err == nil {
		t.Fatalf("expected second publish to a full queue to fail")
	}
}

func TestConsumeUnblocksOnContextCancel(t *testing.T) {
	b := NewBus(4)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := b.Consume(ctx); err == nil {
		t.Fatalf("expected Consume on an empty bus to return when context is cancelled")
	}
}
