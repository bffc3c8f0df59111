package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var ErrSessionQueueFull = errors.New("session queue full")

type Job func(context.Context)

// Serializer runs jobs for the same correlation key one at a time, in
// arrival order. Keys are independent and run in parallel. A key's worker
// exits once its queue drains.
type Serializer struct {
	logger    *slog.Logger
	queueSize int

	mu      sync.Mutex
	workers map[string]*worker
}

type worker struct {
	ch chan queuedJob
}

type queuedJob struct {
	ctx  context.Context
	run  Job
	done chan struct{}
}

func NewSerializer(logger *slog.Logger, queueSize int) *Serializer {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Serializer{
		logger:    logger,
		queueSize: queueSize,
		workers:   make(map[string]*worker),
	}
}

// Do queues job behind any in-flight work for key and waits for it. If ctx
// ends first Do returns ctx.Err(); the job still runs.
func (s *Serializer) Do(ctx context.Context, key string, job Job) error {
	queued := queuedJob{ctx: ctx, run: job, done: make(chan struct{})}

	s.mu.Lock()
	w, ok := s.workers[key]
	if !ok {
		w = &worker{ch: make(chan queuedJob, s.queueSize)}
		s.workers[key] = w
		go s.run(key, w)
	}
	select {
	case w.ch <- queued:
	default:
		s.mu.Unlock()
		s.logger.Warn("session queue full", "key", key)
		return ErrSessionQueueFull
	}
	s.mu.Unlock()

	select {
	case <-queued.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Serializer) run(key string, w *worker) {
	for {
		s.mu.Lock()
		if len(w.ch) == 0 {
			delete(s.workers, key)
			s.mu.Unlock()
			return
		}
		job := <-w.ch
		s.mu.Unlock()

		s.execute(key, job)
	}
}

func (s *Serializer) execute(key string, job queuedJob) {
	defer close(job.done)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session job panicked", "key", key, "panic", r)
		}
	}()
	job.run(job.ctx)
}

func (s *Serializer) activeWorkers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}
