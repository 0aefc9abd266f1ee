package clients

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/tipjar/types"
)

// Provider is an EIP-1193 style request channel to a wallet.
type Provider interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// WalletChannel is the typed view of a wallet the payment pipeline needs.
type WalletChannel interface {
	ChainID(ctx context.Context) (*big.Int, error)
	SwitchChain(ctx context.Context, chainID *big.Int) error
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	SendCalls(ctx context.Context, bundle *types.CallBundle) (*types.SendCallsResult, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, method string, params ...any) (json.RawMessage, error)

func (f ProviderFunc) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	return f(ctx, method, params...)
}
