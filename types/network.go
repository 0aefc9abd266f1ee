package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Network represents supported EVM networks
type Network string

const (
	NetworkBase        Network = "base"
	NetworkBaseSepolia Network = "base-sepolia" // testnet
)

// TokenInfo contains information about the payment token on one network.
type TokenInfo struct {
	Symbol   string `json:"symbol"`
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
}

// NetworkInfo describes a network the tip can be sent on.
type NetworkInfo struct {
	Network Network
	ChainID *big.Int
	USDC    TokenInfo
}

var networks = map[Network]NetworkInfo{
	NetworkBase: {
		Network: NetworkBase,
		ChainID: big.NewInt(8453),
		USDC: TokenInfo{
			Symbol:   "USDC",
			Address:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			Decimals: 6,
		},
	},
	NetworkBaseSepolia: {
		Network: NetworkBaseSepolia,
		ChainID: big.NewInt(84532),
		USDC: TokenInfo{
			Symbol:   "USDC",
			Address:  "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
			Decimals: 6,
		},
	},
}

// LookupNetwork returns the chain parameters of a known network.
func LookupNetwork(n Network) (NetworkInfo, error) {
	info, ok := networks[n]
	if !ok {
		return NetworkInfo{}, fmt.Errorf("unsupported network: %s", n)
	}
	return info, nil
}

// ChainID returns the numeric chain id, or nil for unknown networks.
func (n Network) ChainID() *big.Int {
	info, ok := networks[n]
	if !ok {
		return nil
	}
	return new(big.Int).Set(info.ChainID)
}

// ChainIDHex returns the chain id as a hex quantity, e.g. "0x2105" for base.
func (n Network) ChainIDHex() string {
	id := n.ChainID()
	if id == nil {
		return ""
	}
	return hexutil.EncodeBig(id)
}

func (n Network) IsTestnet() bool {
	return n == NetworkBaseSepolia
}

func (n Network) String() string {
	return string(n)
}
