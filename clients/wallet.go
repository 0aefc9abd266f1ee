package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/vitwit/tipjar/types"
)

// Wallet methods
const (
	MethodChainID         = "eth_chainId"
	MethodSwitchChain     = "wallet_switchEthereumChain"
	MethodRequestAccounts = "eth_requestAccounts"
	MethodSendCalls       = "wallet_sendCalls"
)

var _ WalletChannel = (*Wallet)(nil)

// Wallet implements WalletChannel on top of a raw Provider.
type Wallet struct {
	provider Provider
}

func NewWallet(p Provider) *Wallet {
	return &Wallet{provider: p}
}

// SwitchChainParams is the single parameter of wallet_switchEthereumChain.
type SwitchChainParams struct {
	ChainID string `json:"chainId"`
}

// ChainID implements WalletChannel.
func (w *Wallet) ChainID(ctx context.Context) (*big.Int, error) {
	raw, err := w.provider.Request(ctx, MethodChainID)
	if err != nil {
		return nil, err
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var n uint64
		if err2 := json.Unmarshal(raw, &n); err2 != nil {
			return nil, fmt.Errorf("unexpected %s result %s: %w", MethodChainID, raw, err)
		}
		return new(big.Int).SetUint64(n), nil
	}

	id, err := hexutil.DecodeBig(s)
	if err != nil {
		return nil, fmt.Errorf("unexpected %s result %q: %w", MethodChainID, s, err)
	}
	return id, nil
}

// SwitchChain implements WalletChannel.
func (w *Wallet) SwitchChain(ctx context.Context, chainID *big.Int) error {
	_, err := w.provider.Request(ctx, MethodSwitchChain, SwitchChainParams{ChainID: hexutil.EncodeBig(chainID)})
	return err
}

// RequestAccounts implements WalletChannel. Entries that are not addresses
// are dropped.
func (w *Wallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	raw, err := w.provider.Request(ctx, MethodRequestAccounts)
	if err != nil {
		return nil, err
	}

	var list []string
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("unexpected %s result: %w", MethodRequestAccounts, err)
		}
	}

	accounts := make([]common.Address, 0, len(list))
	for _, a := range list {
		if common.IsHexAddress(a) {
			accounts = append(accounts, common.HexToAddress(a))
		}
	}
	return accounts, nil
}

// SendCalls implements WalletChannel.
func (w *Wallet) SendCalls(ctx context.Context, bundle *types.CallBundle) (*types.SendCallsResult, error) {
	raw, err := w.provider.Request(ctx, MethodSendCalls, bundle)
	if err != nil {
		return nil, err
	}

	var res types.SendCallsResult
	if len(raw) == 0 || string(raw) == "null" {
		return &res, nil
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
