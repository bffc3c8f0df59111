package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mymunastore/aretenvi/internal/subscribers"
	"github.com/mymunastore/aretenvi/internal/types"
)

// FailureObserver is told when a subscriber gives up on an event.
type FailureObserver func(subscriber string, eventType types.EventType)

type Option func(*Dispatcher)

type Dispatcher struct {
	logger       *slog.Logger
	subscribers  []subscribers.Subscriber
	retryCount   int
	retryBackoff time.Duration
	onFailure    FailureObserver
	wg           sync.WaitGroup
}

func New(logger *slog.Logger, subs []subscribers.Subscriber, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger:       logger,
		subscribers:  subs,
		retryCount:   3,
		retryBackoff: 150 * time.Millisecond,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

func WithRetry(count int, backoff time.Duration) Option {
	return func(d *Dispatcher) {
		if count > 0 {
			d.retryCount = count
		}
		if backoff >= 0 {
			d.retryBackoff = backoff
		}
	}
}

func WithFailureObserver(fn FailureObserver) Option {
	return func(d *Dispatcher) {
		d.onFailure = fn
	}
}

// Dispatch hands event to every subscriber in the background and returns
// immediately.
func (d *Dispatcher) Dispatch(ctx context.Context, event types.Event) {
	for _, sub := range d.subscribers {
		s := sub
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.dispatchOne(ctx, s, event)
		}()
	}
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, sub subscribers.Subscriber, event types.Event) {
	for attempt := 1; attempt <= d.retryCount; attempt++ {
		err := sub.Handle(ctx, event)
		if err == nil {
			return
		}

		d.logger.Warn("subscriber delivery failed",
			"subscriber", sub.Name(),
			"event_id", event.EventID,
			"event_type", event.EventType,
			"attempt", attempt,
			"err", err,
		)
		if attempt == d.retryCount {
			if d.onFailure != nil {
				d.onFailure(sub.Name(), event.EventType)
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(d.retryBackoff):
		}
	}
}
