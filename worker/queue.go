// Package worker provides named task queues backed by bounded pools of
// concurrent workers.
//
// Each queue runs one submitted job per worker at a time, and a job runs to
// completion before the worker picks up further work. Submissions are routed
// by execution id: a queue refuses a second job for an execution whose job is
// still in flight, which is how the single-writer-per-execution invariant is
// enforced without locks around the execution state.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrQueueClosed is returned when submitting to a queue that has shut down.
	ErrQueueClosed = errors.New("queue closed")

	// ErrExecutionBusy is returned when an execution already has a job in
	// flight on the queue.
	ErrExecutionBusy = errors.New("execution already has a job in flight")
)

const defaultBuffer = 64

// Job is one unit of queued work.
type Job func(ctx context.Context)

type submission struct {
	executionID string
	job         Job
}

// Queue is a named task queue with a bounded worker pool.
type Queue struct {
	name    string
	workers int
	logger  *slog.Logger

	jobs  chan submission
	group *errgroup.Group

	mu      sync.Mutex
	senders sync.WaitGroup
	active  map[string]struct{}
	closed  bool
}

// NewQueue creates a queue with the given name and worker count.
func NewQueue(name string, workers int, logger *slog.Logger) *Queue {
	if workers < 1 {
		workers = 1
	}
	return &Queue{
		name:    name,
		workers: workers,
		logger:  logger.With("queue", name),
		jobs:    make(chan submission, defaultBuffer),
		active:  make(map[string]struct{}),
	}
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Start launches the worker pool. Workers exit when the context is cancelled
// or the queue is shut down.
func (q *Queue) Start(ctx context.Context) {
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(q.workers)
	q.group = group

	for i := 0; i < q.workers; i++ {
		group.Go(func() error {
			q.run(ctx)
			return nil
		})
	}

	q.logger.Info("queue started", "workers", q.workers)
}

// Submit enqueues a job for an execution. It returns ErrExecutionBusy while
// a previous job for the same execution is still queued or running, and
// ErrQueueClosed after shutdown.
func (q *Queue) Submit(executionID string, job Job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if _, busy := q.active[executionID]; busy {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s on queue %s", ErrExecutionBusy, executionID, q.name)
	}
	q.active[executionID] = struct{}{}
	// Registered under the same lock as the closed check, so Shutdown
	// waits for this send before closing the channel.
	q.senders.Add(1)
	q.mu.Unlock()

	q.jobs <- submission{executionID: executionID, job: job}
	q.senders.Done()
	return nil
}

// Shutdown stops accepting work and waits for queued jobs to finish.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	// In-flight submissions passed the closed check before it flipped;
	// their sends must land before the channel closes. Workers keep
	// draining while we wait, so the sends cannot block forever.
	q.senders.Wait()
	close(q.jobs)
	if q.group != nil {
		q.group.Wait()
	}
	q.logger.Info("queue stopped")
}

// run is a single worker loop.
func (q *Queue) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sub, ok := <-q.jobs:
			if !ok {
				return
			}
			q.execute(ctx, sub)
		}
	}
}

// execute runs one job and releases its execution slot.
func (q *Queue) execute(ctx context.Context, sub submission) {
	defer func() {
		q.mu.Lock()
		delete(q.active, sub.executionID)
		q.mu.Unlock()
	}()

	q.logger.Debug("job started", "execution_id", sub.executionID)
	sub.job(ctx)
	q.logger.Debug("job finished", "execution_id", sub.executionID)
}
