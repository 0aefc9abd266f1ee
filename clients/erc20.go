package clients

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const erc20ABIJSON = `
[
  {
    "name": "transfer",
    "type": "function",
    "stateMutability": "nonpayable",
    "inputs": [
      { "name": "to", "type": "address" },
      { "name": "value", "type": "uint256" }
    ],
    "outputs": [
      { "name": "", "type": "bool" }
    ]
  },
  {
    "name": "balanceOf",
    "type": "function",
    "stateMutability": "view",
    "inputs": [
      { "name": "account", "type": "address" }
    ],
    "outputs": [
      { "name": "", "type": "uint256" }
    ]
  }
]
`

// TransferSignature is the canonical signature of the ERC-20 transfer function.
const TransferSignature = "transfer(address,uint256)"

// TransferCallSize is the length of encoded transfer call data:
// 4-byte selector plus two 32-byte words.
const TransferCallSize = 4 + 32 + 32

// TransferSelector is the 4-byte function selector of TransferSignature (a9059cbb).
var TransferSelector = crypto.Keccak256([]byte(TransferSignature))[:4]

var erc20ABI = mustParseABI(erc20ABIJSON)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI: %v", err))
	}
	if !bytes.Equal(parsed.Methods["transfer"].ID, TransferSelector) {
		panic("transfer selector mismatch")
	}
	return parsed
}

// EncodeTransfer builds the call data of transfer(recipient, amount):
// selector ‖ recipient left-padded to 32 bytes ‖ amount big-endian left-padded
// to 32 bytes. Encoding is pure; it only fails for amounts outside uint256.
func EncodeTransfer(recipient common.Address, amount *big.Int) (hexutil.Bytes, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("transfer amount must be a non-negative integer")
	}
	if amount.BitLen() > 256 {
		return nil, fmt.Errorf("transfer amount overflows uint256")
	}

	data, err := erc20ABI.Pack("transfer", recipient, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack transfer call: %w", err)
	}
	return data, nil
}

// DecodeTransfer is the inverse of EncodeTransfer.
func DecodeTransfer(data []byte) (common.Address, *big.Int, error) {
	if len(data) != TransferCallSize {
		return common.Address{}, nil, fmt.Errorf("transfer call must be %d bytes, got %d", TransferCallSize, len(data))
	}
	if !bytes.Equal(data[:4], TransferSelector) {
		return common.Address{}, nil, fmt.Errorf("not a transfer call: selector %x", data[:4])
	}

	values, err := erc20ABI.Methods["transfer"].Inputs.Unpack(data[4:])
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("failed to unpack transfer call: %w", err)
	}

	to, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, nil, fmt.Errorf("unexpected recipient type %T", values[0])
	}
	amount, ok := values[1].(*big.Int)
	if !ok {
		return common.Address{}, nil, fmt.Errorf("unexpected amount type %T", values[1])
	}
	return to, amount, nil
}
