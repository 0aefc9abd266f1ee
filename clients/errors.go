package clients

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/ethereum/go-ethereum/rpc"
)

// EIP-1193 provider error codes
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeChainDisconnected = 4901
	CodeUnrecognizedChain = 4902
)

// ProviderError is an error reported by a wallet channel.
type ProviderError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("wallet error %d: %s", e.Code, e.Message)
}

// ErrorCode lets ProviderError double as an rpc.Error.
func (e *ProviderError) ErrorCode() int {
	return e.Code
}

// WalletErrorClass is the outcome of classifying a wallet error.
type WalletErrorClass int

const (
	WalletErrorOther WalletErrorClass = iota
	WalletErrorUserRejected
)

func (c WalletErrorClass) String() string {
	if c == WalletErrorUserRejected {
		return "user_rejected"
	}
	return "other"
}

// rejectionSignature matches one shape of "user declined" error.
type rejectionSignature struct {
	code    int
	pattern *regexp.Regexp
}

// rejectionSignatures lists the known ways wallets report a declined prompt.
var rejectionSignatures = []rejectionSignature{
	{code: CodeUserRejected},
	{pattern: regexp.MustCompile(`(?i)user rejected|rejected`)},
}

// ClassifyWalletError maps any error returned through a wallet channel to a
// WalletErrorClass. The numeric code is read from rpc.Error implementations,
// which includes ProviderError and errors of a go-ethereum rpc.Client.
func ClassifyWalletError(err error) WalletErrorClass {
	if err == nil {
		return WalletErrorOther
	}

	code, hasCode := ErrorCode(err)
	msg := err.Error()

	for _, sig := range rejectionSignatures {
		if sig.pattern == nil && hasCode && sig.code == code {
			return WalletErrorUserRejected
		}
		if sig.pattern != nil && sig.pattern.MatchString(msg) {
			return WalletErrorUserRejected
		}
	}

	return WalletErrorOther
}

// ErrorCode extracts the wallet error code from err, if it carries one.
func ErrorCode(err error) (int, bool) {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode(), true
	}
	return 0, false
}
