package types

import "time"

// State is the user-visible phase of a payment attempt.
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateAwaitingWalletConfirmation
	StateSubmitting
	StateSucceeded
	StateCancelled
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:                       "idle",
	StatePreparing:                  "preparing",
	StateAwaitingWalletConfirmation: "awaiting_wallet_confirmation",
	StateSubmitting:                 "submitting",
	StateSucceeded:                  "succeeded",
	StateCancelled:                  "cancelled",
	StateFailed:                     "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Label is the call-to-action text shown for the state.
func (s State) Label() string {
	switch s {
	case StatePreparing:
		return "Preparing tip…"
	case StateAwaitingWalletConfirmation:
		return "Confirm in wallet"
	case StateSubmitting:
		return "Sending…"
	case StateSucceeded:
		return "Send again"
	default:
		return "Send USDC"
	}
}

// InFlight reports whether an attempt is running in this state.
func (s State) InFlight() bool {
	return s == StatePreparing || s == StateAwaitingWalletConfirmation || s == StateSubmitting
}

// DelayPolicy holds the minimum time a state stays visible before the
// pipeline moves on. States without an entry are not delayed.
type DelayPolicy map[State]time.Duration

// DefaultDelays gives the user time to read the intent before the wallet
// prompt appears and a short beat after the wallet accepted the bundle.
func DefaultDelays() DelayPolicy {
	return DelayPolicy{
		StatePreparing:  1200 * time.Millisecond,
		StateSubmitting: 800 * time.Millisecond,
	}
}

// NoDelays disables all artificial delays.
func NoDelays() DelayPolicy {
	return DelayPolicy{}
}

func (p DelayPolicy) For(s State) time.Duration {
	if p == nil {
		return 0
	}
	return p[s]
}
