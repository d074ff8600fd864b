package server

import (
	"errors"
	"sync"
	"time"

	"nyxstore/internal/transport"
)

// ErrLoopStopped is returned by Sender once the loop has shut down.
var ErrLoopStopped = errors.New("server: loop stopped")

// ErrLoopBusy is returned when the loop's event queue is full.
var ErrLoopBusy = errors.New("server: event queue full")

type eventKind int

const (
	eventRead eventKind = iota
	eventTimer
	eventQuit
)

type event struct {
	kind  eventKind
	token Token
	msgs  []ConnData
	timer TimerMsg
}

// Sender enqueues work onto a Loop from any goroutine. None of its methods
// block.
type Sender struct {
	events *transport.SendCh[event]

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
}

func newSender(capacity int) *Sender {
	return &Sender{
		events: transport.NewSendCh[event]("server-events", capacity),
		timers: make(map[*time.Timer]struct{}),
	}
}

func (s *Sender) send(ev event) error {
	err := s.events.TrySend(ev)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, transport.ErrChannelFull):
		return ErrLoopBusy
	default:
		return ErrLoopStopped
	}
}

// Deliver hands messages read from token to the loop, which passes them to
// Handler.OnRead.
func (s *Sender) Deliver(token Token, msgs []ConnData) error {
	return s.send(event{kind: eventRead, token: token, msgs: msgs})
}

// Timeout fires msg through Handler.OnTimer after delay. A timer whose event
// cannot be queued when it fires is lost.
func (s *Sender) Timeout(delay time.Duration, msg TimerMsg) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrLoopStopped
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, t)
		s.mu.Unlock()
		_ = s.send(event{kind: eventTimer, timer: msg})
	})
	s.timers[t] = struct{}{}
	return nil
}

// Stop asks the loop to shut down after the events already queued.
func (s *Sender) Stop() error {
	return s.send(event{kind: eventQuit})
}

// close cancels pending timers and refuses further events.
func (s *Sender) close() {
	s.mu.Lock()
	s.closed = true
	for t := range s.timers {
		t.Stop()
	}
	s.timers = nil
	s.mu.Unlock()
	s.events.Close()
}
