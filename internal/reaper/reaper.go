// Package reaper closes conversations that have gone quiet for longer than
// the idle timeout.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mymunastore/aretenvi/internal/metrics"
)

var ErrReaperAlreadyStarted = errors.New("reaper already started")

// Expirer is the part of the conversation store the reaper needs.
type Expirer interface {
	ExpireIdle(ctx context.Context, before time.Time) (int, error)
}

type Reaper struct {
	store       Expirer
	idleTimeout time.Duration
	interval    time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	now           func() time.Time
	tickerFactory func(interval time.Duration) reaperTicker
}

func New(store Expirer, idleTimeout, interval time.Duration, logger *slog.Logger, m *metrics.Metrics) (*Reaper, error) {
	if store == nil {
		return nil, fmt.Errorf("reaper: store is required")
	}
	if idleTimeout <= 0 {
		return nil, fmt.Errorf("reaper: idle timeout must be > 0")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("reaper: interval must be > 0")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Reaper{
		store:       store,
		idleTimeout: idleTimeout,
		interval:    interval,
		logger:      logger,
		metrics:     m,
		now: func() time.Time {
			return time.Now().UTC()
		},
		tickerFactory: func(interval time.Duration) reaperTicker {
			return newRealTicker(interval)
		},
	}, nil
}

// Sweep expires every active conversation idle for longer than the timeout
// and returns how many were closed.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	before := r.now().UTC().Add(-r.idleTimeout)
	n, err := r.store.ExpireIdle(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("expire idle conversations: %w", err)
	}
	r.metrics.SessionsExpired("reaper", n)
	if n > 0 {
		r.logger.Info("expired idle conversations", "count", n, "idle_before", before.Format(time.RFC3339))
	}
	return n, nil
}

func (r *Reaper) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrReaperAlreadyStarted
	}
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	ticker := r.tickerFactory(r.interval)
	r.running = true
	r.stopCh = stopCh
	r.doneCh = doneCh
	r.mu.Unlock()

	go r.run(ctx, ticker, stopCh, doneCh)
	return nil
}

func (r *Reaper) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	stopCh := r.stopCh
	doneCh := r.doneCh
	r.running = false
	r.stopCh = nil
	r.doneCh = nil
	r.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (r *Reaper) run(ctx context.Context, ticker reaperTicker, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.Chan():
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Error("idle sweep failed", "err", err)
			}
		}
	}
}

type reaperTicker interface {
	Chan() <-chan time.Time
	Stop()
}

type realTicker struct {
	ticker *time.Ticker
}

func newRealTicker(interval time.Duration) *realTicker {
	return &realTicker{ticker: time.NewTicker(interval)}
}

func (t *realTicker) Chan() <-chan time.Time {
	return t.ticker.C
}

func (t *realTicker) Stop() {
	t.ticker.Stop()
}
