package pdworker

import "time"

// Metrics receives counters for PD traffic. They are advisory only.
type Metrics interface {
	IncRequest(kind, status string)
	IncHeartbeatAction(action string)
	IncValidatePeer(result string)
	IncDropped(cmd string)
	ObserveTask(kind string, d time.Duration)
}

const (
	statusAll     = "all"
	statusSuccess = "success"

	actionChangePeer     = "change peer"
	actionTransferLeader = "transfer leader"

	validateEpochError = "region epoch error"
	validatePeerStale  = "peer stale"
	validatePeerValid  = "peer valid"
)

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) IncRequest(string, string)         {}
func (NopMetrics) IncHeartbeatAction(string)         {}
func (NopMetrics) IncValidatePeer(string)            {}
func (NopMetrics) IncDropped(string)                 {}
func (NopMetrics) ObserveTask(string, time.Duration) {}
