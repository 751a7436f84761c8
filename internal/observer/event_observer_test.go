package observer

import (
	"context"
	"testing"
	"time"
)

func TestMetricsObserverCounters(t *testing.T) {
	m := NewMetricsObserver()
	ctx := context.Background()

	m.OnEvent(ctx, MeasurementEvent{EventType: MeasurementStarted, ProductID: "p1"})
	m.OnEvent(ctx, MeasurementEvent{EventType: MeasurementCompleted, ProductID: "p1", Success: true, ProcessingTime: 200 * time.Millisecond})
	m.OnEvent(ctx, MeasurementEvent{EventType: MeasurementStarted, ProductID: "p2"})
	m.OnEvent(ctx, MeasurementEvent{EventType: MeasurementFailed, ProductID: "p2", ErrorType: "rate_limited"})

	metrics := m.GetMetrics()

	if got := metrics["total_products"].(int64); got != 2 {
		t.Errorf("total_products = %d, want 2", got)
	}
	if got := metrics["successful_products"].(int64); got != 1 {
		t.Errorf("successful_products = %d, want 1", got)
	}
	if got := metrics["failed_products"].(int64); got != 1 {
		t.Errorf("failed_products = %d, want 1", got)
	}
	failures := metrics["failures_by_type"].(map[string]int64)
	if failures["rate_limited"] != 1 {
		t.Errorf("failures_by_type[rate_limited] = %d, want 1", failures["rate_limited"])
	}
	if got := metrics["avg_processing_time_ms"].(int64); got != 200 {
		t.Errorf("avg_processing_time_ms = %d, want 200", got)
	}
}

type recordingObserver struct {
	name   string
	events []MeasurementEvent
}

func (r *recordingObserver) OnEvent(_ context.Context, event MeasurementEvent) {
	r.events = append(r.events, event)
}

func (r *recordingObserver) GetObserverName() string { return r.name }

func TestEventPublisherSubscribeUnsubscribe(t *testing.T) {
	pub := NewEventPublisher()
	a := &recordingObserver{name: "a"}
	b := &recordingObserver{name: "b"}

	pub.Subscribe(a)
	pub.Subscribe(b)
	pub.NotifyObservers(context.Background(), MeasurementEvent{EventType: MeasurementStarted, ProductID: "p1"})

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("expected both observers notified, got a=%d b=%d", len(a.events), len(b.events))
	}

	pub.Unsubscribe(a)
	pub.NotifyObservers(context.Background(), MeasurementEvent{EventType: MeasurementCompleted, ProductID: "p1"})

	if len(a.events) != 1 {
		t.Errorf("unsubscribed observer still notified, got %d events", len(a.events))
	}
	if len(b.events) != 2 {
		t.Errorf("remaining observer missed event, got %d events", len(b.events))
	}
}
