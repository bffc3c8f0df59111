package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mymunastore/aretenvi/internal/subscribers"
	"github.com/mymunastore/aretenvi/internal/types"
)

type fakeSubscriber struct {
	name      string
	failUntil int

	mu    sync.Mutex
	calls int
	ch    chan types.Event
}

func (f *fakeSubscriber) Name() string {
	return f.name
}

func (f *fakeSubscriber) Handle(_ context.Context, event types.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failUntil {
		return errors.New("forced failure")
	}
	if f.ch != nil {
		f.ch <- event
	}
	return nil
}

func (f *fakeSubscriber) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatcherRetriesThenSucceeds(t *testing.T) {
	sub := &fakeSubscriber{name: "sub", failUntil: 2, ch: make(chan types.Event, 1)}
	d := New(testLogger(), []subscribers.Subscriber{sub})
	event := types.Event{EventID: "evt_1", EventType: types.EventTypeRegistrationCreated}

	d.Dispatch(context.Background(), event)

	select {
	case got := <-sub.ch:
		assert.Equal(t, event.EventID, got.EventID)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for dispatch")
	}
	assert.Equal(t, 3, sub.Calls())
}

func TestDispatcherStopsAfterRetries(t *testing.T) {
	var mu sync.Mutex
	var failed []string
	sub := &fakeSubscriber{name: "sub", failUntil: 10, ch: make(chan types.Event, 1)}
	d := New(testLogger(), []subscribers.Subscriber{sub},
		WithRetry(3, 10*time.Millisecond),
		WithFailureObserver(func(name string, eventType types.EventType) {
			mu.Lock()
			defer mu.Unlock()
			failed = append(failed, name+":"+string(eventType))
		}),
	)

	d.Dispatch(context.Background(), types.Event{EventID: "evt_2", EventType: types.EventTypeConversationExpired})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Wait(ctx))

	assert.Equal(t, 3, sub.Calls())
	select {
	case <-sub.ch:
		t.Fatalf("did not expect successful dispatch")
	default:
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"sub:conversation.expired"}, failed)
}

func TestDispatcherFansOutToEverySubscriber(t *testing.T) {
	a := &fakeSubscriber{name: "a", ch: make(chan types.Event, 1)}
	b := &fakeSubscriber{name: "b", ch: make(chan types.Event, 1)}
	d := New(testLogger(), []subscribers.Subscriber{a, b})

	d.Dispatch(context.Background(), types.Event{EventID: "evt_3"})
	require.NoError(t, d.Wait(context.Background()))

	assert.Equal(t, 1, a.Calls())
	assert.Equal(t, 1, b.Calls())
}

func TestDispatcherWaitHonorsContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	d := New(testLogger(), []subscribers.Subscriber{blockingSubscriber{block: block}})
	d.Dispatch(context.Background(), types.Event{EventID: "evt_4"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, d.Wait(ctx), context.DeadlineExceeded)
}

type blockingSubscriber struct {
	block chan struct{}
}

func (blockingSubscriber) Name() string { return "blocking" }

func (b blockingSubscriber) Handle(context.Context, types.Event) error {
	<-b.block
	return nil
}
