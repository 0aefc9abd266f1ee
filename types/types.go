package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// SendCallsVersion is the EIP-5792 request version the bundle is built for.
const SendCallsVersion = "2.0.0"

// placeholderMarker flags configuration values that were never filled in.
const placeholderMarker = "TODO"

// TipConfig is the immutable setup of a tip jar. It is injected into the
// orchestrator at construction and never mutated afterwards.
type TipConfig struct {
	// Network the tip is sent on. Determines the required chain id.
	Network Network `json:"network" mapstructure:"network" validate:"required,oneof=base base-sepolia"`

	// Token contract to call. Empty selects the network's USDC deployment.
	TokenAddress string `json:"tokenAddress,omitempty" mapstructure:"token_address" validate:"omitempty,eth_addr"`

	// Decimal places of TokenAddress. Required with it, ignored without it.
	TokenDecimals int `json:"tokenDecimals,omitempty" mapstructure:"token_decimals" validate:"gte=0,lte=36"`

	// Account receiving the tip.
	Recipient string `json:"recipient" mapstructure:"recipient"`

	// ERC-8021 attribution code of the integrating application.
	AttributionCode string `json:"attributionCode" mapstructure:"attribution_code"`

	// StrictChecksum rejects mixed-case recipients with a bad EIP-55 checksum.
	StrictChecksum bool `json:"strictChecksum,omitempty" mapstructure:"strict_checksum"`
}

// Token resolves the token the transfer call targets.
func (c TipConfig) Token() (TokenInfo, error) {
	if c.TokenAddress != "" {
		return TokenInfo{Address: c.TokenAddress, Decimals: c.TokenDecimals}, nil
	}
	info, err := LookupNetwork(c.Network)
	if err != nil {
		return TokenInfo{}, err
	}
	return info.USDC, nil
}

// SendingDisabledReason reports why sending is administratively disabled,
// or an empty string when the configuration allows sending.
func (c TipConfig) SendingDisabledReason() string {
	switch {
	case strings.TrimSpace(c.AttributionCode) == "":
		return "attribution code is missing"
	case strings.Contains(c.AttributionCode, placeholderMarker):
		return "attribution code is a placeholder"
	case strings.TrimSpace(c.Recipient) == "":
		return "recipient is missing"
	case strings.Contains(c.Recipient, placeholderMarker):
		return "recipient is a placeholder"
	case !common.IsHexAddress(c.Recipient) || !strings.HasPrefix(c.Recipient, "0x"):
		return "recipient is not a valid address"
	}
	if _, err := LookupNetwork(c.Network); err != nil {
		return err.Error()
	}
	return ""
}

// Call is a single instruction of a bundle.
type Call struct {
	To    common.Address `json:"to"`
	Value *hexutil.Big   `json:"value"`
	Data  hexutil.Bytes  `json:"data"`
}

// Capabilities carries side-channel data next to the calls. DataSuffix is
// appended by the wallet to the transaction data it produces.
type Capabilities struct {
	DataSuffix hexutil.Bytes `json:"dataSuffix,omitempty"`
}

// CallBundle is the wallet_sendCalls request submitted to the wallet.
type CallBundle struct {
	Version        string         `json:"version"`
	From           common.Address `json:"from"`
	ChainID        *hexutil.Big   `json:"chainId"`
	AtomicRequired bool           `json:"atomicRequired"`
	Calls          []Call         `json:"calls"`
	Capabilities   Capabilities   `json:"capabilities"`
}

// SendCallsResult is the wallet's answer to wallet_sendCalls.
type SendCallsResult struct {
	ID           string                     `json:"id"`
	Capabilities map[string]json.RawMessage `json:"capabilities,omitempty"`
}

// UnmarshalJSON accepts both the object form and the bare bundle id some
// wallets still return.
func (r *SendCallsResult) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		r.ID = id
		return nil
	}
	type plain SendCallsResult
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("unexpected wallet_sendCalls result: %w", err)
	}
	*r = SendCallsResult(p)
	return nil
}

// SendReceipt describes the outcome of one send attempt.
type SendReceipt struct {
	AttemptID string         `json:"attemptId"`
	State     State          `json:"state"`
	Amount    *big.Int       `json:"amount,omitempty"`
	From      common.Address `json:"from"`
	Bundle    *CallBundle    `json:"bundle,omitempty"`
	BundleID  string         `json:"bundleId,omitempty"`
	Notice    string         `json:"notice,omitempty"`
}

// PaymentSession is a snapshot of the orchestrator's per-attempt state.
type PaymentSession struct {
	State     State
	Amount    *big.Int
	Attempt   uint64
	AttemptID string
	LastError error
	Notice    string
}

// Error types
type TipError struct {
	Code    string `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *TipError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *TipError) Unwrap() error {
	return e.Err
}

// Is matches on Code, and on Reason when the target sets one.
func (e *TipError) Is(target error) bool {
	t, ok := target.(*TipError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Reason == "" || t.Reason == e.Reason)
}

// NewError builds a TipError.
func NewError(code, reason, message string, cause error) *TipError {
	return &TipError{Code: code, Reason: reason, Message: message, Err: cause}
}

// CodeOf returns the TipError code carried by err, or "" if there is none.
func CodeOf(err error) string {
	var te *TipError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// ReasonOf returns the TipError reason carried by err, or "".
func ReasonOf(err error) string {
	var te *TipError
	if errors.As(err, &te) {
		return te.Reason
	}
	return ""
}

// Error codes
const (
	ErrConfiguration     = "CONFIGURATION_ERROR"
	ErrValidation        = "VALIDATION_ERROR"
	ErrNoProviderFound   = "NO_PROVIDER_FOUND"
	ErrNoAccount         = "NO_ACCOUNT"
	ErrWrongNetwork      = "WRONG_NETWORK"
	ErrUserCancelled     = "USER_CANCELLED"
	ErrSubmission        = "SUBMISSION_ERROR"
	ErrInsufficientFunds = "INSUFFICIENT_FUNDS"
	ErrSessionBusy       = "SESSION_BUSY"
	ErrSessionAbandoned  = "SESSION_ABANDONED"
)

// Error reasons
const (
	ReasonInvalidFormat       = "INVALID_FORMAT"
	ReasonNonPositiveAmount   = "NON_POSITIVE_AMOUNT"
	ReasonMalformedAddress    = "MALFORMED_ADDRESS"
	ReasonZeroAddress         = "ZERO_ADDRESS"
	ReasonBadChecksum         = "BAD_CHECKSUM"
	ReasonChainLookupFailed   = "CHAIN_LOOKUP_FAILED"
	ReasonNetworkSwitchDenied = "NETWORK_SWITCH_DENIED"
	ReasonUserRejected        = "USER_REJECTED"
)
