package server

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultTickInterval  = 100 * time.Millisecond
	DefaultEventCapacity = 4096
)

// ErrLoopStarted is returned by a second call to Run.
var ErrLoopStarted = errors.New("server: loop already started")

// Writer sends the replies produced by Handler.OnRead back to a connection.
type Writer interface {
	Write(token Token, msgs []ConnData) error
}

// Config tunes a Loop.
type Config struct {
	TickInterval  time.Duration
	EventCapacity int
	// Writer receives OnRead replies. Replies are discarded when nil.
	Writer Writer
}

// Loop drives a Handler from a single goroutine. It stands in for the I/O
// layer: ticks come from a ticker, timers and reads from its Sender.
type Loop struct {
	handler Handler
	sender  *Sender
	cfg     Config
	logger  *zap.Logger
	started atomic.Bool
}

// NewLoop creates a loop for h.
func NewLoop(h Handler, cfg Config, logger *zap.Logger) *Loop {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.EventCapacity <= 0 {
		cfg.EventCapacity = DefaultEventCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		handler: h,
		sender:  newSender(cfg.EventCapacity),
		cfg:     cfg,
		logger:  logger,
	}
}

// Sender returns the handle used to feed the loop.
func (l *Loop) Sender() *Sender { return l.sender }

// Run dispatches events until ctx is done or Sender.Stop is processed. It
// calls Handler.OnQuit exactly once before returning.
func (l *Loop) Run(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrLoopStarted
	}
	defer l.quit()

	ticker := time.NewTicker(l.cfg.TickInterval)
	defer ticker.Stop()

	events := l.sender.events.Receiver()
	for {
		select {
		case <-ticker.C:
			if err := l.handler.OnTick(l.sender); err != nil {
				l.logger.Warn("handle tick failed", zap.Error(err))
			}

		case ev := <-events:
			if ev.kind == eventQuit {
				l.logger.Info("event loop stopping")
				return nil
			}
			l.dispatch(ev)

		case <-ctx.Done():
			l.logger.Info("event loop context done")
			return nil
		}
	}
}

func (l *Loop) dispatch(ev event) {
	switch ev.kind {
	case eventRead:
		replies, err := l.handler.OnRead(l.sender, ev.token, ev.msgs)
		if err != nil {
			l.logger.Warn("handle read data failed", zap.Uint64("token", uint64(ev.token)), zap.Error(err))
			return
		}
		if len(replies) == 0 || l.cfg.Writer == nil {
			return
		}
		if err := l.cfg.Writer.Write(ev.token, replies); err != nil {
			l.logger.Warn("write replies failed", zap.Uint64("token", uint64(ev.token)), zap.Error(err))
		}
	case eventTimer:
		if err := l.handler.OnTimer(l.sender, ev.timer); err != nil {
			l.logger.Warn("handle timer failed", zap.Stringer("timer", ev.timer.Kind), zap.Error(err))
		}
	}
}

func (l *Loop) quit() {
	l.handler.OnQuit()
	l.sender.close()
}
