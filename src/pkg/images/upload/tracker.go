package upload

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/q-controller/imagestore/src/pkg/metrics"
)

const subscriberBuffer = 16

// BusyEvent is published whenever a session becomes busy or idle.
type BusyEvent struct {
	Busy      bool   `json:"busy"`
	Active    int    `json:"active"`
	SessionID string `json:"session_id,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Tracker aggregates the busy state of upload sessions. The store as a whole
// is busy while at least one session is.
type Tracker struct {
	mu          sync.Mutex
	active      map[string]struct{}
	subscribers map[<-chan BusyEvent]chan BusyEvent
	closed      bool
	// busy is shared by every tracker of the process.
	busy prometheus.Gauge
}

func NewTracker() *Tracker {
	return &Tracker{
		active:      make(map[string]struct{}),
		subscribers: make(map[<-chan BusyEvent]chan BusyEvent),
		busy:        metrics.UploadBusy,
	}
}

func (t *Tracker) Busy() bool {
	return t.Active() > 0
}

func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// Subscribe returns a channel receiving every transition from now on. Slow
// subscribers miss events instead of blocking the tracker.
func (t *Tracker) Subscribe() <-chan BusyEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan BusyEvent, subscriberBuffer)
	if t.closed {
		close(ch)
		return ch
	}
	t.subscribers[ch] = ch
	return ch
}

func (t *Tracker) Unsubscribe(ch <-chan BusyEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if sub, ok := t.subscribers[ch]; ok {
		delete(t.subscribers, ch)
		close(sub)
	}
}

// Close closes every subscriber channel. Later transitions are still counted
// but not published.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	for key, sub := range t.subscribers {
		delete(t.subscribers, key)
		close(sub)
	}
}

func (t *Tracker) begin(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.active[id]; ok {
		return
	}
	t.active[id] = struct{}{}
	t.busy.Inc()
	t.publish(id)
}

func (t *Tracker) end(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.active[id]; !ok {
		return
	}
	delete(t.active, id)
	t.busy.Dec()
	t.publish(id)
}

// publish must be called with mu held.
func (t *Tracker) publish(id string) {
	event := BusyEvent{
		Busy:      len(t.active) > 0,
		Active:    len(t.active),
		SessionID: id,
		Timestamp: time.Now().UnixMilli(),
	}
	for _, sub := range t.subscribers {
		select {
		case sub <- event:
		default:
			// Drop message if subscriber is slow
		}
	}
}
