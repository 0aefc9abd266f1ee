package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/rpc"
)

var _ Provider = (*RPCProvider)(nil)

// RPCProvider forwards wallet requests to a JSON-RPC endpoint, e.g. a host
// bridge or a local signer exposing the EIP-1193 methods over HTTP or WS.
type RPCProvider struct {
	url    string
	client *rpc.Client
}

// DialRPCProvider connects to a wallet JSON-RPC endpoint.
func DialRPCProvider(ctx context.Context, url string, headers map[string]string) (*RPCProvider, error) {
	opts := []rpc.ClientOption{}
	if len(headers) > 0 {
		h := make(http.Header, len(headers))
		for k, v := range headers {
			h.Set(k, v)
		}
		opts = append(opts, rpc.WithHeaders(h))
	}

	client, err := rpc.DialOptions(ctx, url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to wallet RPC: %w", err)
	}

	return &RPCProvider{url: url, client: client}, nil
}

// NewRPCProvider wraps an existing rpc client.
func NewRPCProvider(client *rpc.Client) *RPCProvider {
	return &RPCProvider{client: client}
}

// Request implements Provider. Errors returned by the endpoint keep their
// JSON-RPC code and are recognised by ClassifyWalletError.
func (p *RPCProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	var result json.RawMessage
	if err := p.client.CallContext(ctx, &result, method, params...); err != nil {
		return nil, err
	}
	return result, nil
}

// URL returns the endpoint the provider was dialed with.
func (p *RPCProvider) URL() string {
	return p.url
}

// Close implements io.Closer.
func (p *RPCProvider) Close() error {
	p.client.Close()
	return nil
}
