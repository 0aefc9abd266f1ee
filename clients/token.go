package clients

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// BalanceReader reads ERC-20 balances from a chain node.
type BalanceReader interface {
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

var _ BalanceReader = (*TokenClient)(nil)

// TokenClient talks to a chain JSON-RPC node, not the wallet, for read-only
// token queries.
type TokenClient struct {
	client *ethclient.Client
}

func DialTokenClient(ctx context.Context, rpcURL string) (*TokenClient, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain RPC: %w", err)
	}
	return &TokenClient{client: client}, nil
}

// NewTokenClient wraps an existing rpc client.
func NewTokenClient(c *rpc.Client) *TokenClient {
	return &TokenClient{client: ethclient.NewClient(c)}
}

// BalanceOf implements BalanceReader.
func (t *TokenClient) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf call: %w", err)
	}

	out, err := t.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s: %w", token.Hex(), err)
	}

	values, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack balanceOf result: %w", err)
	}
	bal, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balance type %T", values[0])
	}
	return bal, nil
}

// ChainID returns the chain id reported by the node.
func (t *TokenClient) ChainID(ctx context.Context) (*big.Int, error) {
	return t.client.ChainID(ctx)
}

func (t *TokenClient) Close() {
	t.client.Close()
}
