// Package gateway locates the wallet channel a payment is sent through and
// negotiates the network with it.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/vitwit/tipjar/clients"
	"github.com/vitwit/tipjar/logger"
	"github.com/vitwit/tipjar/metrics"
	"github.com/vitwit/tipjar/types"
)

// Strategy is one way of finding a wallet. Discover returns a nil Provider
// and a nil error when the wallet source is simply not present.
type Strategy interface {
	Name() string
	Discover(ctx context.Context) (clients.Provider, error)
}

type strategyFunc struct {
	name string
	fn   func(ctx context.Context) (clients.Provider, error)
}

func (s strategyFunc) Name() string { return s.name }

func (s strategyFunc) Discover(ctx context.Context) (clients.Provider, error) {
	return s.fn(ctx)
}

// NewStrategy builds a Strategy from a function.
func NewStrategy(name string, fn func(ctx context.Context) (clients.Provider, error)) Strategy {
	return strategyFunc{name: name, fn: fn}
}

// HostStrategy asks the embedding host for its wallet provider.
func HostStrategy(fn func(ctx context.Context) (clients.Provider, error)) Strategy {
	return NewStrategy("host", fn)
}

// InjectedStrategy returns a provider that was handed to the process up front.
func InjectedStrategy(p clients.Provider) Strategy {
	return NewStrategy("injected", func(context.Context) (clients.Provider, error) {
		return p, nil
	})
}

// RPCStrategy dials a wallet JSON-RPC endpoint. An empty url means absent.
// The connection is dialed on first use and reused until Close.
func RPCStrategy(name, url string, headers map[string]string) Strategy {
	return &rpcStrategy{name: name, url: url, headers: headers}
}

type rpcStrategy struct {
	name    string
	url     string
	headers map[string]string

	mu       sync.Mutex
	provider *clients.RPCProvider
}

func (s *rpcStrategy) Name() string { return s.name }

func (s *rpcStrategy) Discover(ctx context.Context) (clients.Provider, error) {
	if s.url == "" {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.provider == nil {
		p, err := clients.DialRPCProvider(ctx, s.url, s.headers)
		if err != nil {
			return nil, err
		}
		s.provider = p
	}
	return s.provider, nil
}

// Close implements io.Closer. A later Discover dials again.
func (s *rpcStrategy) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.provider == nil {
		return nil
	}
	err := s.provider.Close()
	s.provider = nil
	return err
}

type Option func(*Gateway)

func WithLogger(l logger.Logger) Option {
	return func(g *Gateway) {
		g.logger = l
	}
}

// WithMetrics counts network switch requests.
func WithMetrics(r metrics.Recorder) Option {
	return func(g *Gateway) {
		g.metrics = r
	}
}

// Gateway tries its strategies in order; the first provider found wins.
type Gateway struct {
	strategies []Strategy
	logger     logger.Logger
	metrics    metrics.Recorder
}

func New(strategies []Strategy, opts ...Option) *Gateway {
	g := &Gateway{
		strategies: strategies,
		logger:     logger.NoopLogger{},
		metrics:    metrics.NoopRecorder{},
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Discover returns the first wallet channel any strategy provides. Strategy
// errors are logged and skipped, matching a host SDK that throws when the
// app runs outside the host.
func (g *Gateway) Discover(ctx context.Context) (clients.WalletChannel, error) {
	var errs []error
	for _, s := range g.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p, err := s.Discover(ctx)
		if err != nil {
			g.logger.Warn("wallet discovery strategy failed", map[string]any{
				"strategy": s.Name(),
				"error":    err.Error(),
			})
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		if p == nil {
			continue
		}

		g.logger.Debug("wallet provider found", map[string]any{"strategy": s.Name()})
		return clients.NewWallet(p), nil
	}

	return nil, types.NewError(types.ErrNoProviderFound, "",
		"no wallet provider found; open this inside a wallet-enabled host", errors.Join(errs...))
}

// Close releases the connections held by strategies that own one.
func (g *Gateway) Close() error {
	var errs []error
	for _, s := range g.strategies {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// EnsureNetwork makes sure the wallet is on network, asking it to switch if
// it is not. Any failure to read or switch is a WRONG_NETWORK error.
func (g *Gateway) EnsureNetwork(ctx context.Context, w clients.WalletChannel, network types.Network) error {
	chainID := network.ChainID()
	if chainID == nil {
		return types.NewError(types.ErrConfiguration, "", fmt.Sprintf("unsupported network %q", network), nil)
	}

	current, err := w.ChainID(ctx)
	if err != nil {
		return types.NewError(types.ErrWrongNetwork, types.ReasonChainLookupFailed,
			"failed to read the wallet's active network", err)
	}
	if current.Cmp(chainID) == 0 {
		return nil
	}

	g.logger.Info("requesting network switch", map[string]any{
		"from": hexutil.EncodeBig(current),
		"to":   hexutil.EncodeBig(chainID),
	})

	labels := map[string]string{"network": network.String()}
	if err := w.SwitchChain(ctx, chainID); err != nil {
		labels["code"] = types.ErrWrongNetwork
		g.metrics.IncCounter(metrics.EventNetworkSwitch, labels)
		return types.NewError(types.ErrWrongNetwork, types.ReasonNetworkSwitchDenied,
			fmt.Sprintf("please switch your wallet to chain %s to send the tip", hexutil.EncodeBig(chainID)), err)
	}
	g.metrics.IncCounter(metrics.EventNetworkSwitch, labels)

	return nil
}
