package api

import "sync"

// PlanFeed is the broker channel carrying events for every planning run,
// so dashboards can follow runs without knowing ids up front. Per-run
// channels use the run id itself.
const PlanFeed = "plans"

// SSEEvent is a single event on a plan-run stream.
type SSEEvent struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// EventBroker fans plan-run events out to live subscribers (SSE, websocket).
type EventBroker interface {
	Subscribe(runID string) chan SSEEvent
	Unsubscribe(runID string, ch chan SSEEvent)
	Publish(runID string, ev SSEEvent)
}

// Broker is the in-memory broker used when no Redis URL is configured.
type Broker struct {
	mu   sync.Mutex
	subs map[string][]chan SSEEvent
}

func NewBroker() *Broker {
	return &Broker{subs: map[string][]chan SSEEvent{}}
}

func (b *Broker) Subscribe(runID string) chan SSEEvent {
	ch := make(chan SSEEvent, 16)
	b.mu.Lock()
	b.subs[runID] = append(b.subs[runID], ch)
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(runID string, ch chan SSEEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[runID]
	for i, c := range list {
		if c == ch {
			b.subs[runID] = append(list[:i], list[i+1:]...)
			close(c)
			break
		}
	}
	if len(b.subs[runID]) == 0 {
		delete(b.subs, runID)
	}
}

func (b *Broker) Publish(runID string, ev SSEEvent) {
	b.mu.Lock()
	list := append([]chan SSEEvent(nil), b.subs[runID]...)
	b.mu.Unlock()
	for _, ch := range list {
		select {
		case ch <- ev:
		default:
			// slow subscriber, drop
		}
	}
}
