package tipjar

import (
	"github.com/vitwit/tipjar/attribution"
	"github.com/vitwit/tipjar/clients"
	"github.com/vitwit/tipjar/logger"
	"github.com/vitwit/tipjar/metrics"
	"github.com/vitwit/tipjar/types"
)

type Option func(*Orchestrator)

func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(o *Orchestrator) {
		o.metrics = r
	}
}

// WithDelays replaces the per-state display delays. Use types.NoDelays()
// for non-interactive callers.
func WithDelays(p types.DelayPolicy) Option {
	return func(o *Orchestrator) {
		o.delays = p
	}
}

func WithStateListener(l StateListener) Option {
	return func(o *Orchestrator) {
		o.listener = l
	}
}

// WithAttributionEncoder replaces the ERC-8021 suffix encoder.
func WithAttributionEncoder(e attribution.Encoder) Option {
	return func(o *Orchestrator) {
		o.suffix = e
	}
}

// WithBalanceCheck refuses sends the sender cannot cover, read through r
// after the account is known.
func WithBalanceCheck(r clients.BalanceReader) Option {
	return func(o *Orchestrator) {
		o.balances = r
	}
}
