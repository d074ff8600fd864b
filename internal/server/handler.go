// Package server defines how the I/O layer hands events to the consensus
// loop. The I/O layer owns sockets and timers; a Handler owns the
// consensus-loop state and is only ever called from a single goroutine.
package server

import "fmt"

// Token identifies a connection.
type Token uint64

// ConnData is one fully decoded application message read from or written to
// a connection.
type ConnData struct {
	MsgID uint64
	Data  []byte
}

// TimerKind tells a handler which timer fired.
type TimerKind int

const (
	// TimerValidatePeers asks the store to check its peers against PD.
	TimerValidatePeers TimerKind = iota + 1
	// TimerCustom carries a handler defined payload.
	TimerCustom
)

func (k TimerKind) String() string {
	switch k {
	case TimerValidatePeers:
		return "validate peers"
	case TimerCustom:
		return "custom"
	default:
		return fmt.Sprintf("timer(%d)", int(k))
	}
}

// TimerMsg is delivered to Handler.OnTimer when a timer set with
// Sender.Timeout fires.
type TimerMsg struct {
	Kind    TimerKind
	Payload any
}

// Handler receives every externally triggered event of the consensus loop.
// Calls never overlap and must not block.
type Handler interface {
	// OnRead handles messages decoded from the connection identified by
	// token and returns the messages to write back to it.
	OnRead(sender *Sender, token Token, msgs []ConnData) ([]ConnData, error)
	// OnTick runs once per tick interval.
	OnTick(sender *Sender) error
	// OnTimer runs when a timer set through sender fires.
	OnTimer(sender *Sender, msg TimerMsg) error
	// OnQuit runs exactly once on shutdown. The sender must not be used
	// after it returns.
	OnQuit()
}

// BaseHandler implements Handler with no-op behaviour. Embed it and override
// what is needed.
type BaseHandler struct{}

var _ Handler = BaseHandler{}

// OnRead echoes msgs back to the connection.
func (BaseHandler) OnRead(_ *Sender, _ Token, msgs []ConnData) ([]ConnData, error) {
	return msgs, nil
}

func (BaseHandler) OnTick(*Sender) error { return nil }

func (BaseHandler) OnTimer(*Sender, TimerMsg) error { return nil }

func (BaseHandler) OnQuit() {}
