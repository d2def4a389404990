package queue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/apresai/newsletter-podcaster/internal/observability"
)

type envelope struct {
	task Task
	span trace.SpanContext
}

// Local is a bounded in-process queue drained by a fixed set of workers.
type Local struct {
	tasks   chan envelope
	workers int
	log     *slog.Logger

	mu      sync.Mutex
	closed  bool
	cancels map[string]context.CancelFunc
}

func NewLocal(workers, capacity int, logger *slog.Logger) *Local {
	if workers <= 0 {
		workers = 2
	}
	if capacity <= 0 {
		capacity = 32
	}
	return &Local{
		tasks:   make(chan envelope, capacity),
		workers: workers,
		log:     logger,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Enqueue never blocks; it returns ErrQueueFull when the buffer is full.
func (q *Local) Enqueue(ctx context.Context, task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.tasks <- envelope{task: task, span: trace.SpanContextFromContext(ctx)}:
		return nil
	default:
		return fmt.Errorf("%w (capacity %d)", ErrQueueFull, cap(q.tasks))
	}
}

// Run processes tasks until ctx is cancelled. Running tasks see the
// cancellation; tasks still buffered are handed over with an already
// cancelled context so they reach a terminal state.
func (q *Local) Run(ctx context.Context, h Handler) error {
	var wg sync.WaitGroup
	for range q.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case env, ok := <-q.tasks:
					if !ok {
						return
					}
					q.handle(ctx, env, h)
				}
			}
		}()
	}
	wg.Wait()

	q.Close()
	for env := range q.tasks {
		q.handle(ctx, env, h)
	}
	return ctx.Err()
}

func (q *Local) handle(base context.Context, env envelope, h Handler) {
	taskCtx := base
	if env.span.IsValid() {
		taskCtx = trace.ContextWithRemoteSpanContext(base, env.span)
	}
	taskCtx, cancel := context.WithCancel(taskCtx)

	q.mu.Lock()
	q.cancels[env.task.JobID] = cancel
	q.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			q.log.ErrorContext(taskCtx, "job handler panicked",
				"job_id", env.task.JobID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
		cancel()
		q.mu.Lock()
		delete(q.cancels, env.task.JobID)
		q.mu.Unlock()
	}()

	h(observability.WithJobID(taskCtx, env.task.JobID), env.task)
}

// Cancel stops a running job. It reports whether the job was running.
func (q *Local) Cancel(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	cancel, ok := q.cancels[jobID]
	if ok {
		cancel()
	}
	return ok
}

// Close stops accepting tasks. It is safe to call more than once.
func (q *Local) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	return nil
}
