// Package queue runs tasks one at a time in submission order.
//
// A Queue has a single worker goroutine. The next task starts only after the
// current one has returned, so a read-modify-write sequence inside one task is
// never interleaved with another task's. A task that fails or panics settles
// only its own Handle; the queue keeps going. The backlog is unbounded and
// observable through Len and the logbuf_queue_depth gauge.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/coffersTech/logbuf/internal/apperrors"
	"github.com/coffersTech/logbuf/internal/metrics"
)

// Task is a unit of work. ctx is the context passed to Enqueue.
type Task func(ctx context.Context) (any, error)

// Handle is the pending result of an enqueued task.
type Handle struct {
	done  chan struct{}
	value any
	err   error
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

func (h *Handle) settle(value any, err error) {
	h.value, h.err = value, err
	close(h.done)
}

// Done is closed once the task has settled.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the task settles or ctx is done. Abandoning the wait does
// not cancel a task that is already queued.
func (h *Handle) Wait(ctx context.Context) (any, error) {
	select {
	case <-h.done:
		return h.value, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type item struct {
	ctx    context.Context
	task   Task
	handle *Handle
}

// Queue is a FIFO executor with exactly one task in flight.
type Queue struct {
	name   string
	logger zerolog.Logger

	mu      sync.Mutex
	pending []item
	closed  bool
	wake    chan struct{}
	stopped chan struct{}
}

// New starts a queue. name labels its depth gauge and log lines.
func New(name string, logger zerolog.Logger) *Queue {
	q := &Queue{
		name:    name,
		logger:  logger.With().Str("queue", name).Logger(),
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go q.run()
	return q
}

// Enqueue appends task to the queue. If ctx is already done when the task
// reaches the front, the task is skipped and the handle settles with
// ctx.Err().
func (q *Queue) Enqueue(ctx context.Context, task Task) *Handle {
	h := newHandle()

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		h.settle(nil, fmt.Errorf("queue %s: %w", q.name, apperrors.ErrClosed))
		return h
	}
	q.pending = append(q.pending, item{ctx: ctx, task: task, handle: h})
	metrics.QueueDepth(q.name, len(q.pending))
	// wake is closed under mu, so this send cannot race Close.
	select {
	case q.wake <- struct{}{}:
	default:
	}
	q.mu.Unlock()
	return h
}

// Do enqueues task and waits for its typed result.
func Do[T any](ctx context.Context, q *Queue, task func(ctx context.Context) (T, error)) (T, error) {
	h := q.Enqueue(ctx, func(ctx context.Context) (any, error) {
		return task(ctx)
	})
	var zero T
	v, err := h.Wait(ctx)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	return v.(T), nil
}

// Len returns the number of tasks waiting to start.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Reset rejects every task that has not started yet with ErrClosed. The queue
// stays usable.
func (q *Queue) Reset() {
	q.mu.Lock()
	dropped := q.pending
	q.pending = nil
	q.mu.Unlock()

	metrics.QueueDepth(q.name, 0)
	for _, it := range dropped {
		it.handle.settle(nil, fmt.Errorf("queue %s reset: %w", q.name, apperrors.ErrClosed))
	}
}

// Close stops accepting tasks, lets the backlog drain, and waits for the
// worker to exit or ctx to be done.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.wake)
	}
	q.mu.Unlock()

	select {
	case <-q.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) run() {
	defer close(q.stopped)
	for {
		it, ok := q.next()
		if !ok {
			if _, open := <-q.wake; !open {
				// Closed: drain whatever raced in before exiting.
				for {
					it, ok := q.next()
					if !ok {
						return
					}
					q.execute(it)
				}
			}
			continue
		}
		q.execute(it)
	}
}

func (q *Queue) next() (item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return item{}, false
	}
	it := q.pending[0]
	q.pending[0] = item{}
	q.pending = q.pending[1:]
	metrics.QueueDepth(q.name, len(q.pending))
	return it, true
}

func (q *Queue) execute(it item) {
	if err := it.ctx.Err(); err != nil {
		it.handle.settle(nil, err)
		return
	}

	var (
		value any
		err   error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("queue %s: task panicked: %v", q.name, r)
				q.logger.Error().Interface("panic", r).Msg("task panicked")
			}
		}()
		value, err = it.task(it.ctx)
	}()
	if err != nil {
		q.logger.Debug().Err(err).Msg("task failed")
	}
	it.handle.settle(value, err)
}
