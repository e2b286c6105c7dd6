package jobs

import (
	"sync"
	"testing"
)

// TestEventBusSince verifies incremental reads resume after the given seq.
func TestEventBusSince(t *testing.T) {
	bus := NewEventBus(3)
	for _, msg := range []string{"1", "2", "3"} {
		bus.Publish(Event{Type: EventTypeStatus, Message: msg})
	}

	events := bus.Since(1)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Seq != 2 || events[1].Seq != 3 {
		t.Fatalf("seqs = %d,%d, want 2,3", events[0].Seq, events[1].Seq)
	}
	if got := bus.Since(3); got != nil {
		t.Fatalf("Since(last) = %+v, want nil", got)
	}
	if got := bus.Since(99); got != nil {
		t.Fatalf("Since(future) = %+v, want nil", got)
	}
}

// TestEventBusOverwritesOldest wraps the ring several times.
func TestEventBusOverwritesOldest(t *testing.T) {
	bus := NewEventBus(2)
	for _, msg := range []string{"1", "2", "3", "4", "5"} {
		bus.Publish(Event{Message: msg})
	}

	events := bus.Since(0)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Message != "4" || events[1].Message != "5" {
		t.Fatalf("messages = %q,%q, want 4,5", events[0].Message, events[1].Message)
	}
	if !bus.Missed(0) || !bus.Missed(2) {
		t.Fatal("expected reader behind the ring to have missed events")
	}
	if bus.Missed(3) || bus.Missed(5) {
		t.Fatal("reader at the ring tail missed nothing")
	}
}

func TestEventBusForProject(t *testing.T) {
	bus := NewEventBus(10)
	bus.Publish(Event{ProjectID: "a", Message: "a1"})
	bus.Publish(Event{ProjectID: "b", Message: "b1"})
	bus.Publish(Event{ProjectID: "a", Message: "a2"})

	events := bus.ForProject("a", 1)
	if len(events) != 1 || events[0].Message != "a2" {
		t.Fatalf("events = %+v, want only a2", events)
	}
	if events[0].Timestamp.IsZero() {
		t.Fatal("expected timestamp to be set")
	}
}

func TestEventBusConcurrentPublishKeepsSequenceContiguous(t *testing.T) {
	bus := NewEventBus(1000)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				bus.Publish(Event{Type: EventTypeLog})
			}
		}()
	}
	wg.Wait()

	events := bus.Since(0)
	if len(events) != 400 {
		t.Fatalf("len = %d, want 400", len(events))
	}
	for i, e := range events {
		if e.Seq != int64(i+1) {
			t.Fatalf("events[%d].Seq = %d, want %d", i, e.Seq, i+1)
		}
	}
}
