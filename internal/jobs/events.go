package jobs

import (
	"sync"
	"time"

	"github.com/samber/lo"

	"transcript-studio/internal/domain"
)

// DefaultEventCapacity bounds the buffer when no capacity is given.
const DefaultEventCapacity = 500

// EventType classifies messages emitted during project execution.
type EventType string

const (
	EventTypeStatus EventType = "status"
	EventTypeLog    EventType = "log"
	EventTypeResult EventType = "result"
	EventTypeError  EventType = "error"
)

// Event is one sequenced record read by polling clients.
type Event struct {
	Seq          int64                `json:"seq"`
	Timestamp    time.Time            `json:"timestamp"`
	ProjectID    string               `json:"projectId"`
	Type         EventType            `json:"type"`
	Status       domain.ProjectStatus `json:"status,omitempty"`
	Stage        string               `json:"stage,omitempty"`
	Message      string               `json:"message,omitempty"`
	Command      string               `json:"command,omitempty"`
	ExitCode     int                  `json:"exitCode,omitempty"`
	Stderr       string               `json:"stderr,omitempty"`
	TranscriptID string               `json:"transcriptId,omitempty"`
}

// EventBus keeps the most recent events in a fixed ring. Sequence numbers
// are contiguous, so a reader resumes from the last seq it saw.
type EventBus struct {
	mu      sync.RWMutex
	ring    []Event
	head    int // index of the oldest retained event
	size    int
	lastSeq int64
	now     func() time.Time
}

// NewEventBus creates a ring holding at most capacity events.
func NewEventBus(capacity int) *EventBus {
	if capacity <= 0 {
		capacity = DefaultEventCapacity
	}
	return &EventBus{
		ring: make([]Event, capacity),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Publish stores event, overwriting the oldest one when the ring is full,
// and returns it with its sequence and timestamp set.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastSeq++
	event.Seq = b.lastSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now()
	}

	if b.size < len(b.ring) {
		b.ring[(b.head+b.size)%len(b.ring)] = event
		b.size++
	} else {
		b.ring[b.head] = event
		b.head = (b.head + 1) % len(b.ring)
	}
	return event
}

// Since returns retained events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.since(seq)
}

// ForProject returns retained events of one project after seq.
func (b *EventBus) ForProject(projectID string, seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return lo.Filter(b.since(seq), func(e Event, _ int) bool {
		return e.ProjectID == projectID
	})
}

// Missed reports whether events after seq were already overwritten.
func (b *EventBus) Missed(seq int64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size > 0 && seq+1 < b.oldestSeq()
}

func (b *EventBus) oldestSeq() int64 {
	return b.lastSeq - int64(b.size) + 1
}

func (b *EventBus) since(seq int64) []Event {
	skip := int64(0)
	if oldest := b.oldestSeq(); seq >= oldest {
		skip = seq - oldest + 1
	}
	if b.size == 0 || skip >= int64(b.size) {
		return nil
	}

	out := make([]Event, 0, b.size-int(skip))
	for i := int(skip); i < b.size; i++ {
		out = append(out, b.ring[(b.head+i)%len(b.ring)])
	}
	return out
}
