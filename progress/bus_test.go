// mediadrop/progress/bus_test.go
package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesEvents(t *testing.T) {
	bus := NewBus()
	tok, ch := bus.Subscribe("job-1")
	defer bus.Unsubscribe(tok)

	bus.Publish(Event{JobID: "job-1", State: StateExtracting})
	bus.Publish(Event{JobID: "job-1", State: StateDownloading, Percent: 42.5})

	ev := <-ch
	assert.Equal(t, StateExtracting, ev.State)
	assert.False(t, ev.Timestamp.IsZero(), "bus stamps events lacking a timestamp")

	ev = <-ch
	assert.Equal(t, StateDownloading, ev.State)
	assert.Equal(t, 42.5, ev.Percent)
}

func TestPublishIsScopedToJob(t *testing.T) {
	bus := NewBus()
	tok, ch := bus.Subscribe("job-a")
	defer bus.Unsubscribe(tok)

	bus.Publish(Event{JobID: "job-b", State: StateFinished})

	select {
	case ev := <-ch:
		t.Fatalf("received event for wrong job: %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestPublishWithoutSubscribersIsDropped(t *testing.T) {
	bus := NewBus()
	// Must not panic or block.
	bus.Publish(Event{JobID: "nobody-home", State: StateFailed})
}

func TestMultipleSubscribers(t *testing.T) {
	bus := NewBus()
	tok1, ch1 := bus.Subscribe("job-1")
	tok2, ch2 := bus.Subscribe("job-1")
	defer bus.Unsubscribe(tok1)
	defer bus.Unsubscribe(tok2)

	bus.Publish(Event{JobID: "job-1", State: StateFinished})

	assert.Equal(t, StateFinished, (<-ch1).State)
	assert.Equal(t, StateFinished, (<-ch2).State)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	tok, ch := bus.Subscribe("job-1")

	bus.Unsubscribe(tok)
	_, open := <-ch
	assert.False(t, open)

	// Double unsubscribe is a no-op.
	bus.Unsubscribe(tok)

	// Publishing after the last subscriber left must not panic.
	bus.Publish(Event{JobID: "job-1", State: StateFinished})
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := NewBus()
	tok, ch := bus.Subscribe("job-1")
	defer bus.Unsubscribe(tok)

	done := make(chan struct{})
	go func() {
		// Overfill the subscriber buffer without ever draining it.
		for i := 0; i < subscriberBuffer*3; i++ {
			bus.Publish(Event{JobID: "job-1", State: StateDownloading, Percent: float64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	// The buffered prefix is still delivered in order.
	first := <-ch
	require.Equal(t, 0.0, first.Percent)
}

func TestStateTerminal(t *testing.T) {
	assert.True(t, StateFinished.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.True(t, StateCancelled.Terminal())
	assert.False(t, StateQueued.Terminal())
	assert.False(t, StateExtracting.Terminal())
	assert.False(t, StateDownloading.Terminal())
}
