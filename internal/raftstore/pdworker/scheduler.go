package pdworker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"nyxstore/internal/pd"
	"nyxstore/internal/raftstore"
	"nyxstore/internal/transport"
	"nyxstore/internal/worker"
)

const (
	DefaultWorkerCount   = 1
	DefaultQueueCapacity = 1024
)

// Config sizes the pd worker pool.
type Config struct {
	// WorkerCount is the number of sequential runners. A slow PD call only
	// stalls the runner it was routed to.
	WorkerCount int
	// QueueCapacity bounds the tasks waiting on each runner.
	QueueCapacity int
}

func (c Config) withDefaults() Config {
	if c.WorkerCount <= 0 {
		c.WorkerCount = DefaultWorkerCount
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	return c
}

// Scheduler accepts pd tasks from any goroutine and hands them to a fixed
// set of runners. Tasks for the same region always land on the same runner,
// so they run in submission order.
type Scheduler struct {
	workers []*worker.Worker[Task]
	runners []*Runner
}

// NewScheduler builds the pool. Every runner shares client and ch; opts are
// applied to each of them.
func NewScheduler(cfg Config, client pd.Client, ch *transport.SendCh[raftstore.Msg], logger *zap.Logger, opts ...Option) *Scheduler {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{}
	for i := 0; i < cfg.WorkerCount; i++ {
		name := fmt.Sprintf("pd-worker-%d", i)
		wlog := logger.With(zap.String("worker", name))
		runnerOpts := append([]Option{WithLogger(wlog)}, opts...)
		s.workers = append(s.workers, worker.New[Task](name, cfg.QueueCapacity, logger))
		s.runners = append(s.runners, NewRunner(client, ch, runnerOpts...))
	}
	return s
}

// Start launches every runner.
func (s *Scheduler) Start(ctx context.Context) error {
	for i, w := range s.workers {
		if err := w.Start(ctx, s.runners[i]); err != nil {
			return err
		}
	}
	return nil
}

// Schedule enqueues task without blocking. It fails when the chosen runner's
// queue is full or the scheduler is stopped; the caller decides whether to
// try again on its next cycle.
func (s *Scheduler) Schedule(task Task) error {
	w := s.workers[task.routingKey()%uint64(len(s.workers))]
	return w.Schedule(task)
}

// Pending reports the number of tasks waiting across all runners.
func (s *Scheduler) Pending() int {
	n := 0
	for _, w := range s.workers {
		n += w.Pending()
	}
	return n
}

// Stop drains all runners and waits for them.
func (s *Scheduler) Stop() {
	for _, w := range s.workers {
		w.Stop()
	}
}
