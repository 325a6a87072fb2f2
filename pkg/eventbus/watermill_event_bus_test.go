package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/channels/gochannel"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/eventbus"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/events"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_DeliversHandledEvents(t *testing.T) {
	t.Parallel()

	bus := newBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *events.IntegrationCompleted, 1)

	require.NoError(t, bus.Handle(events.IntegrationCompletedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.IntegrationCompleted)

		return nil
	}))

	require.NoError(t, bus.Publish(ctx, "exec-1", events.IntegrationCompleted{
		BaseEvent: events.NewBaseEvent(bus.GenerateID(), events.IntegrationCompletedEvent, "exec-1", "doc-1", "flow-1"),
		NodeID:    "int-1",
		Status:    "succeeded",
		Output:    map[string]any{"ticket": "ABC-1"},
	}))

	require.NoError(t, bus.Subscribe(ctx))

	select {
	case event := <-received:
		assert.Equal(t, "exec-1", event.ExecutionID)
		assert.Equal(t, "int-1", event.NodeID)
		assert.Equal(t, "ABC-1", event.Output["ticket"])
	case <-time.After(2 * time.Second):
		t.Fatal("integration.completed event was not delivered")
	}
}

func TestWatermillEventBus_IgnoresUnhandledTypes(t *testing.T) {
	t.Parallel()

	bus := newBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan string, 4)

	require.NoError(t, bus.Handle(events.ExecutionCompletedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.ExecutionCompleted).ExecutionID

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	require.NoError(t, bus.Publish(ctx, "exec-2", events.ExecutionStarted{
		BaseEvent: events.NewBaseEvent(bus.GenerateID(), events.ExecutionStartedEvent, "exec-2", "doc-2", "flow-1"),
	}))
	require.NoError(t, bus.Publish(ctx, "exec-3", events.ExecutionCompleted{
		BaseEvent: events.NewBaseEvent(bus.GenerateID(), events.ExecutionCompletedEvent, "exec-3", "doc-3", "flow-1"),
	}))

	select {
	case id := <-received:
		assert.Equal(t, "exec-3", id)
	case <-time.After(2 * time.Second):
		t.Fatal("execution.completed event was not delivered")
	}
}

func TestTopicFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, events.IntegrationTopic, events.TopicFor(events.IntegrationRequestedEvent))
	assert.Equal(t, events.ExecutionTopic, events.TopicFor(events.ExecutionFailedEvent))
}
