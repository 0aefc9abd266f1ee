package metrics

import "time"

// Event names
const (
	EventSendStarted   = "send_started"
	EventSendSucceeded = "send_succeeded"
	EventSendCancelled = "send_cancelled"
	EventSendFailed    = "send_failed"
	EventSendRejected  = "send_rejected" // refused before any wallet interaction
	EventNetworkSwitch = "network_switch"

	OpSend = "send"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) IncCounter(string, map[string]string)                    {}
func (NoopRecorder) ObserveLatency(string, time.Duration, map[string]string) {}
