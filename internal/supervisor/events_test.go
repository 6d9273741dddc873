// internal/supervisor/events_test.go
package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
)

func TestEventBusPublishSubscribe(t *testing.T) {
	bus := NewEventBus(10, zap.NewNop())
	defer bus.Shutdown()

	ch, unsubscribe := bus.Subscribe(schemas.EventActionExecuted)
	defer unsubscribe()

	bus.Publish(schemas.Event{Type: schemas.EventActionExecuted, TaskID: "task-1"})
	bus.Publish(schemas.Event{Type: schemas.EventAIThinking, TaskID: "task-1"})

	select {
	case ev := <-ch:
		require.Equal(t, schemas.EventActionExecuted, ev.Type)
		require.Equal(t, "task-1", ev.TaskID)
		require.NotEmpty(t, ev.ID)
		require.False(t, ev.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("expected an event")
	}

	// The thinking event went to no one; nothing else is queued for us.
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %q", ev.Type)
	default:
	}
}

func TestEventBusSubscribeAllTypes(t *testing.T) {
	bus := NewEventBus(10, zap.NewNop())
	defer bus.Shutdown()

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	bus.Publish(schemas.Event{Type: schemas.EventTaskStarted})
	bus.Publish(schemas.Event{Type: schemas.EventHandoffRequested})

	require.Equal(t, schemas.EventTaskStarted, (<-ch).Type)
	require.Equal(t, schemas.EventHandoffRequested, (<-ch).Type)
}

func TestEventBusDropsWhenSubscriberFull(t *testing.T) {
	bus := NewEventBus(1, zap.NewNop())
	defer bus.Shutdown()

	ch, unsubscribe := bus.Subscribe(schemas.EventAIThinking)
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		// Neither publish may block even though nobody is draining.
		bus.Publish(schemas.Event{Type: schemas.EventAIThinking, Payload: "first"})
		bus.Publish(schemas.Event{Type: schemas.EventAIThinking, Payload: "second"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	require.Equal(t, "first", (<-ch).Payload)
	select {
	case ev := <-ch:
		t.Fatalf("overflow event should have been dropped, got %v", ev.Payload)
	default:
	}
}

func TestEventBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewEventBus(10, zap.NewNop())
	defer bus.Shutdown()

	ch, unsubscribe := bus.Subscribe(schemas.EventTaskStarted)
	unsubscribe()

	_, open := <-ch
	require.False(t, open)

	// Publishing to the departed subscriber must not panic.
	bus.Publish(schemas.Event{Type: schemas.EventTaskStarted})
}

func TestEventBusShutdown(t *testing.T) {
	bus := NewEventBus(10, zap.NewNop())

	ch, _ := bus.Subscribe(schemas.EventTaskStarted)
	bus.Shutdown()

	_, open := <-ch
	require.False(t, open)

	// Idempotent, and publishes after shutdown are silently discarded.
	bus.Shutdown()
	bus.Publish(schemas.Event{Type: schemas.EventTaskStarted})
}
