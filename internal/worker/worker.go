package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"nyxstore/internal/transport"
)

var (
	// ErrWorkerFull is returned when the task queue is at capacity.
	ErrWorkerFull = errors.New("worker: queue full")
	// ErrWorkerStopped is returned after Stop.
	ErrWorkerStopped = errors.New("worker: stopped")
	// ErrWorkerStarted is returned by a second Start.
	ErrWorkerStarted = errors.New("worker: already started")
)

// Runnable executes tasks handed over by a Worker, one at a time.
type Runnable[T any] interface {
	Run(ctx context.Context, task T)
}

// RunnableFunc adapts a function to Runnable.
type RunnableFunc[T any] func(ctx context.Context, task T)

func (f RunnableFunc[T]) Run(ctx context.Context, task T) { f(ctx, task) }

// Worker runs tasks sequentially on a dedicated goroutine in FIFO order.
// Tasks may be scheduled before Start; they run once the worker starts.
type Worker[T any] struct {
	name    string
	logger  *zap.Logger
	queue   *transport.SendCh[T]
	pending atomic.Int64

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

// New creates a worker whose queue holds at most capacity tasks.
func New[T any](name string, capacity int, logger *zap.Logger) *Worker[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker[T]{
		name:   name,
		logger: logger.With(zap.String("worker", name)),
		queue:  transport.NewSendCh[T](name, capacity),
		done:   make(chan struct{}),
	}
}

// Name returns the worker name.
func (w *Worker[T]) Name() string { return w.name }

// Start launches the worker loop. Cancelling ctx makes the loop exit after
// the task in flight; queued tasks are then discarded.
func (w *Worker[T]) Start(ctx context.Context, r Runnable[T]) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return fmt.Errorf("%w: %s", ErrWorkerStarted, w.name)
	}
	w.started = true
	w.logger.Info("worker started")
	go w.loop(ctx, r)
	return nil
}

func (w *Worker[T]) loop(ctx context.Context, r Runnable[T]) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker context done", zap.Int64("discarded", w.pending.Load()))
			return
		case task, ok := <-w.queue.Receiver():
			if !ok {
				w.logger.Info("worker stopped")
				return
			}
			w.pending.Add(-1)
			r.Run(ctx, task)
		}
	}
}

// Schedule enqueues task without blocking.
func (w *Worker[T]) Schedule(task T) error {
	w.pending.Add(1)
	err := w.queue.TrySend(task)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, transport.ErrChannelFull):
		w.pending.Add(-1)
		return fmt.Errorf("%w: %s", ErrWorkerFull, w.name)
	default:
		w.pending.Add(-1)
		return fmt.Errorf("%w: %s", ErrWorkerStopped, w.name)
	}
}

// Pending reports the number of tasks waiting to run.
func (w *Worker[T]) Pending() int { return int(w.pending.Load()) }

// IsBusy reports whether tasks are waiting.
func (w *Worker[T]) IsBusy() bool { return w.Pending() > 0 }

// Stop refuses new tasks, lets the worker finish the queued ones and waits
// for the loop to exit. Stopping a worker that never started discards its
// queue.
func (w *Worker[T]) Stop() {
	w.queue.Close()
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if !started {
		return
	}
	<-w.done
}
