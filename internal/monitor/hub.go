package monitor

import (
	"sync"
	"time"

	"github.com/SpatiumPortae/logportal/internal/logfetch"
)

// EventType specifies the kind of a monitor event.
type EventType string

const (
	ProgressEvent EventType = "progress"
	StatusEvent   EventType = "status"
	DoneEvent     EventType = "done"
)

const subscriberBuffer = 64

// Event is a single notification streamed to monitor clients.
type Event struct {
	Type     EventType        `json:"type"`
	Time     time.Time        `json:"time"`
	Progress float64          `json:"progress,omitempty"`
	Message  string           `json:"message,omitempty"`
	Result   *logfetch.Result `json:"result,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// Hub is a logfetch.ProgressSink that fans session events out to subscribers. Slow
// subscribers miss events instead of blocking the session.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	last   *Event
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: map[chan Event]struct{}{}}
}

// Subscribe returns a channel of events and a function cancelling the subscription.
// The last result, if any, is delivered first.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan Event, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	if h.last != nil {
		ch <- *h.last
	}
	h.subs[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		close(ch)
	}
	h.subs = map[chan Event]struct{}{}
	h.closed = true
}

func (h *Hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ev.Type == DoneEvent {
		h.last = &ev
	}
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *Hub) Progress(p float64) {
	h.publish(Event{Type: ProgressEvent, Time: time.Now(), Progress: p})
}

func (h *Hub) Status(msg string) {
	h.publish(Event{Type: StatusEvent, Time: time.Now(), Message: msg})
}

func (h *Hub) Done(r logfetch.Result) {
	ev := Event{Type: DoneEvent, Time: time.Now(), Result: &r}
	if r.Err != nil {
		ev.Error = r.Err.Error()
	}
	h.publish(ev)
}
