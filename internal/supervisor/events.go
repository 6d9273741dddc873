// internal/supervisor/events.go
package supervisor

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
)

// EventBus fans task lifecycle events out to observers (UIs, audit sinks)
// using a pub/sub model with buffered channels. Delivery is best effort: a
// subscriber that stops draining loses events rather than stalling the task
// loop.
type EventBus struct {
	logger *zap.Logger

	mu          sync.RWMutex
	subscribers map[schemas.EventType][]chan schemas.Event
	bufferSize  int
	isShutdown  bool
}

// NewEventBus creates the bus. bufferSize caps each subscriber's backlog.
func NewEventBus(bufferSize int, logger *zap.Logger) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &EventBus{
		logger:      logger.Named("event_bus"),
		subscribers: make(map[schemas.EventType][]chan schemas.Event),
		bufferSize:  bufferSize,
	}
}

// allEventTypes is the subscribe-to-everything set used when Subscribe is
// called with no arguments.
var allEventTypes = []schemas.EventType{
	schemas.EventTaskStarted,
	schemas.EventScreenshotCaptured,
	schemas.EventActionExecuted,
	schemas.EventActionError,
	schemas.EventAIThinking,
	schemas.EventTaskStatusChanged,
	schemas.EventTaskPaused,
	schemas.EventTaskResumed,
	schemas.EventTaskAborted,
	schemas.EventHandoffRequested,
	schemas.EventHandoffResolved,
}

// Publish delivers the event to every subscriber of its type. Never blocks;
// full subscriber buffers drop the event with a warning.
func (b *EventBus) Publish(event schemas.Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.isShutdown {
		return
	}

	for _, ch := range b.subscribers[event.Type] {
		select {
		case ch <- event:
		default:
			b.logger.Warn("Subscriber buffer full; dropping event.",
				zap.String("event_type", string(event.Type)),
				zap.String("task_id", event.TaskID))
		}
	}
}

// Subscribe registers interest in the given event types (all types when none
// are given). The returned function unsubscribes and closes the channel.
func (b *EventBus) Subscribe(types ...schemas.EventType) (<-chan schemas.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan schemas.Event, b.bufferSize)
	if len(types) == 0 {
		types = allEventTypes
	}
	for _, t := range types {
		b.subscribers[t] = append(b.subscribers[t], ch)
	}

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.isShutdown {
			return
		}
		for _, t := range types {
			subs := b.subscribers[t]
			for i, sub := range subs {
				if sub == ch {
					b.subscribers[t] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
		}
		close(ch)
	}
	return ch, unsubscribe
}

// Shutdown closes every subscriber channel and rejects further publishes.
func (b *EventBus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.isShutdown {
		return
	}
	b.isShutdown = true

	unique := make(map[chan schemas.Event]struct{})
	for _, subs := range b.subscribers {
		for _, ch := range subs {
			unique[ch] = struct{}{}
		}
	}
	for ch := range unique {
		close(ch)
	}
	b.subscribers = make(map[schemas.EventType][]chan schemas.Event)
}
