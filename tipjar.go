// Package tipjar sends a single stablecoin tip through the user's own wallet.
//
// The Orchestrator validates the amount and recipient, encodes an ERC-20
// transfer, tags it with an ERC-8021 attribution suffix and submits it as an
// atomic EIP-5792 wallet_sendCalls bundle, reporting every step through a
// small user-visible state machine.
package tipjar

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/vitwit/tipjar/attribution"
	"github.com/vitwit/tipjar/clients"
	"github.com/vitwit/tipjar/gateway"
	"github.com/vitwit/tipjar/logger"
	"github.com/vitwit/tipjar/metrics"
	"github.com/vitwit/tipjar/types"
	"github.com/vitwit/tipjar/utils"
)

// StateListener receives a snapshot of the session after every transition.
// It runs synchronously and must not call back into the Orchestrator.
type StateListener func(types.PaymentSession)

// Orchestrator drives one payment attempt at a time.
type Orchestrator struct {
	config   types.TipConfig
	gateway  *gateway.Gateway
	suffix   attribution.Encoder
	delays   types.DelayPolicy
	listener StateListener
	balances clients.BalanceReader
	logger   logger.Logger
	metrics  metrics.Recorder

	mu      sync.Mutex
	session types.PaymentSession
	cancel  context.CancelFunc
}

// New creates an Orchestrator for the given configuration. The configuration
// is checked on every send, so a disabled config still yields a usable
// Orchestrator that reports CONFIGURATION_ERROR.
func New(config types.TipConfig, gw *gateway.Gateway, opts ...Option) *Orchestrator {
	if gw == nil {
		gw = gateway.New(nil)
	}

	o := &Orchestrator{
		config:  config,
		gateway: gw,
		suffix:  attribution.ERC8021{},
		delays:  types.DefaultDelays(),
		logger:  logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// sendRequest is everything derived from user input and configuration
// before the wallet is involved.
type sendRequest struct {
	amount    *big.Int
	decimals  int
	recipient common.Address
	token     common.Address
	chainID   *big.Int
	callData  hexutil.Bytes
	suffix    hexutil.Bytes
}

// CanSend reports whether the configuration allows sending at all.
func (o *Orchestrator) CanSend() bool {
	return o.config.SendingDisabledReason() == ""
}

// Config returns the configuration the Orchestrator was built with.
func (o *Orchestrator) Config() types.TipConfig {
	return o.config
}

// Session returns a snapshot of the current session.
func (o *Orchestrator) Session() types.PaymentSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshot()
}

// State returns the current state.
func (o *Orchestrator) State() types.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session.State
}

// InitiateSend runs one payment attempt for amountText.
//
// Configuration and input errors are returned before any state change or
// wallet interaction. A wallet rejection ends in Cancelled and is not an
// error: the receipt carries the notice. Every other failure ends in Failed
// and returns a *types.TipError wrapping the original error. While an attempt
// is in flight further calls fail with SESSION_BUSY.
func (o *Orchestrator) InitiateSend(ctx context.Context, amountText string) (*types.SendReceipt, error) {
	start := time.Now()

	o.mu.Lock()
	if o.session.State.InFlight() {
		o.mu.Unlock()
		return nil, types.NewError(types.ErrSessionBusy, "", "a tip is already in progress", nil)
	}

	req, err := o.prepare(amountText)
	if err != nil {
		o.session.LastError = err
		o.session.Notice = ""
		if o.session.State != types.StateIdle {
			o.setState(types.StateIdle)
		}
		o.mu.Unlock()

		o.logger.Warn("tip refused", map[string]any{"code": types.CodeOf(err), "error": err.Error()})
		o.metrics.IncCounter(metrics.EventSendRejected, o.labels(types.CodeOf(err)))
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.session.Attempt++
	attempt := o.session.Attempt
	attemptID := uuid.NewString()
	o.session.AttemptID = attemptID
	o.session.Amount = req.amount
	o.session.LastError = nil
	o.session.Notice = ""
	o.cancel = cancel
	o.setState(types.StatePreparing)
	o.mu.Unlock()

	o.logger.Info("tip send started", map[string]any{
		"attempt":   attempt,
		"attemptId": attemptID,
		"amount":    utils.FormatUnitsDisplay(req.amount, req.decimals),
		"recipient": req.recipient.Hex(),
		"network":   o.config.Network.String(),
	})
	o.metrics.IncCounter(metrics.EventSendStarted, o.labels(""))

	receipt, err := o.run(ctx, attempt, req)
	return o.finish(attempt, req, receipt, err, start)
}

// Preview validates amountText and returns the bundle InitiateSend would
// submit from the given account, without touching the session or a wallet.
func (o *Orchestrator) Preview(amountText string, from common.Address) (*types.CallBundle, error) {
	o.mu.Lock()
	req, err := o.prepare(amountText)
	o.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return buildBundle(from, req), nil
}

// Abandon drops the in-flight attempt, if any, and returns the session to
// Idle. A wallet request that was already sent cannot be recalled; its
// result is discarded.
func (o *Orchestrator) Abandon() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.session.State.InFlight() {
		return
	}

	// bumping the attempt marks the running one as stale
	o.session.Attempt++
	o.session.Amount = nil
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.setState(types.StateIdle)

	o.logger.Info("tip abandoned", map[string]any{"attempt": o.session.Attempt - 1})
}

// prepare validates configuration and input and encodes everything that does
// not need the wallet. Called with o.mu held.
func (o *Orchestrator) prepare(amountText string) (*sendRequest, error) {
	if reason := o.config.SendingDisabledReason(); reason != "" {
		return nil, types.NewError(types.ErrConfiguration, "", "sending is disabled: "+reason, nil)
	}

	token, err := o.config.Token()
	if err != nil || !common.IsHexAddress(token.Address) {
		return nil, types.NewError(types.ErrConfiguration, "", "token contract is not configured", err)
	}

	amount, err := utils.ParseUnits(amountText, token.Decimals)
	if err != nil {
		return nil, err
	}

	recipient, err := utils.ValidateRecipient(o.config.Recipient)
	if err != nil {
		return nil, err
	}
	if o.config.StrictChecksum {
		if err := utils.ValidateChecksum(o.config.Recipient); err != nil {
			return nil, err
		}
	}

	callData, err := clients.EncodeTransfer(recipient, amount)
	if err != nil {
		return nil, types.NewError(types.ErrValidation, types.ReasonInvalidFormat, "amount cannot be encoded", err)
	}

	suffix, err := o.suffix.ToDataSuffix([]string{o.config.AttributionCode})
	if err != nil {
		return nil, types.NewError(types.ErrConfiguration, "", "attribution code cannot be encoded", err)
	}

	return &sendRequest{
		amount:    amount,
		decimals:  token.Decimals,
		recipient: recipient,
		token:     common.HexToAddress(token.Address),
		chainID:   o.config.Network.ChainID(),
		callData:  callData,
		suffix:    suffix,
	}, nil
}

// run performs the wallet side of the attempt. The four wallet requests are
// strictly sequential.
func (o *Orchestrator) run(ctx context.Context, attempt uint64, req *sendRequest) (*types.SendReceipt, error) {
	wallet, err := o.gateway.Discover(ctx)
	if err != nil {
		return nil, err
	}
	if err := o.hold(ctx, types.StatePreparing); err != nil {
		return nil, err
	}

	if !o.transition(attempt, types.StateAwaitingWalletConfirmation) {
		return nil, errAbandoned
	}

	if err := o.gateway.EnsureNetwork(ctx, wallet, o.config.Network); err != nil {
		return nil, err
	}

	accounts, err := wallet.RequestAccounts(ctx)
	if err != nil {
		return nil, classify(err, "failed to request wallet accounts")
	}
	if len(accounts) == 0 {
		return nil, types.NewError(types.ErrNoAccount, "", "no account connected", nil)
	}
	if err := o.checkBalance(ctx, accounts[0], req); err != nil {
		return nil, err
	}

	bundle := buildBundle(accounts[0], req)
	res, err := wallet.SendCalls(ctx, bundle)
	if err != nil {
		return nil, classify(err, "wallet_sendCalls failed")
	}

	if !o.transition(attempt, types.StateSubmitting) {
		return nil, errAbandoned
	}
	// the wallet owns the bundle now; cancellation only cuts the pause short
	if err := o.hold(ctx, types.StateSubmitting); err != nil {
		o.logger.Debug("submitting pause interrupted", map[string]any{"attempt": attempt, "error": err.Error()})
	}

	return &types.SendReceipt{
		State:    types.StateSucceeded,
		Amount:   req.amount,
		From:     accounts[0],
		Bundle:   bundle,
		BundleID: res.ID,
	}, nil
}

// finish maps the attempt's outcome onto the state machine.
func (o *Orchestrator) finish(
	attempt uint64,
	req *sendRequest,
	receipt *types.SendReceipt,
	err error,
	start time.Time,
) (*types.SendReceipt, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session.Attempt != attempt {
		return nil, types.NewError(types.ErrSessionAbandoned, "", "tip was abandoned", err)
	}
	o.cancel = nil

	amount := utils.FormatUnitsDisplay(req.amount, req.decimals)

	switch {
	case err == nil:
		o.session.Notice = fmt.Sprintf("Tip sent: $%s USDC", amount)
		o.setState(types.StateSucceeded)
		receipt.Notice = o.session.Notice
		receipt.AttemptID = o.session.AttemptID

		o.logger.Info("tip submitted", map[string]any{
			"attemptId": receipt.AttemptID,
			"amount":    amount,
			"from":      receipt.From.Hex(),
			"bundleId":  receipt.BundleID,
		})
		o.observe(metrics.EventSendSucceeded, "", "succeeded", start)
		return receipt, nil

	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		o.session.Amount = nil
		o.setState(types.StateIdle)

		o.logger.Info("tip abandoned by caller", map[string]any{"attempt": attempt, "error": err.Error()})
		o.observe(metrics.EventSendCancelled, types.ErrSessionAbandoned, "abandoned", start)
		return nil, types.NewError(types.ErrSessionAbandoned, "", "tip was abandoned", err)

	case types.CodeOf(err) == types.ErrUserCancelled:
		o.session.Notice = "Tip cancelled (user rejected)."
		o.setState(types.StateCancelled)
		o.session.Amount = nil
		o.setState(types.StateIdle)

		o.logger.Warn("tip cancelled by user", map[string]any{"attempt": attempt})
		o.observe(metrics.EventSendCancelled, types.ErrUserCancelled, "cancelled", start)
		return &types.SendReceipt{
			AttemptID: o.session.AttemptID,
			State:     types.StateCancelled,
			Amount:    req.amount,
			Notice:    o.session.Notice,
		}, nil

	default:
		if types.CodeOf(err) == "" {
			err = types.NewError(types.ErrSubmission, "", "tip failed", err)
		}
		o.session.LastError = err
		o.setState(types.StateFailed)
		o.session.Amount = nil
		o.setState(types.StateIdle)

		o.logger.Error("tip failed", map[string]any{
			"attemptId": o.session.AttemptID,
			"code":      types.CodeOf(err),
			"error":     err.Error(),
		})
		o.observe(metrics.EventSendFailed, types.CodeOf(err), "failed", start)
		return nil, err
	}
}

var errAbandoned = errors.New("attempt superseded")

// checkBalance refuses the send when a balance reader is configured and the
// sender holds less than the amount. A failed lookup does not block the send.
func (o *Orchestrator) checkBalance(ctx context.Context, from common.Address, req *sendRequest) error {
	if o.balances == nil {
		return nil
	}

	bal, err := o.balances.BalanceOf(ctx, req.token, from)
	if err == nil && bal == nil {
		err = errors.New("empty balance")
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.logger.Warn("balance lookup failed, continuing", map[string]any{
			"from":  from.Hex(),
			"error": err.Error(),
		})
		return nil
	}

	if bal.Cmp(req.amount) < 0 {
		return types.NewError(types.ErrInsufficientFunds, "", fmt.Sprintf("balance of %s USDC is below the tip of %s USDC",
			utils.FormatUnitsDisplay(bal, req.decimals), utils.FormatUnitsDisplay(req.amount, req.decimals)), nil)
	}
	return nil
}

// transition moves an attempt to s unless the attempt was abandoned.
func (o *Orchestrator) transition(attempt uint64, s types.State) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session.Attempt != attempt {
		return false
	}
	o.setState(s)
	return true
}

// setState must be called with o.mu held.
func (o *Orchestrator) setState(s types.State) {
	o.session.State = s
	o.logger.Debug("tip state changed", map[string]any{"state": s.String(), "attempt": o.session.Attempt})
	if o.listener != nil {
		o.listener(o.snapshot())
	}
}

func (o *Orchestrator) snapshot() types.PaymentSession {
	s := o.session
	if s.Amount != nil {
		s.Amount = new(big.Int).Set(s.Amount)
	}
	return s
}

// hold keeps state s visible for its configured delay.
func (o *Orchestrator) hold(ctx context.Context, s types.State) error {
	d := o.delays.For(s)
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (o *Orchestrator) labels(code string) map[string]string {
	return map[string]string{"network": o.config.Network.String(), "code": code}
}

func (o *Orchestrator) observe(event, code, outcome string, start time.Time) {
	o.metrics.IncCounter(event, o.labels(code))
	o.metrics.ObserveLatency(metrics.OpSend, time.Since(start), map[string]string{
		"network": o.config.Network.String(),
		"outcome": outcome,
	})
}

// classify turns a wallet error into USER_CANCELLED or SUBMISSION_ERROR.
func classify(err error, msg string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if clients.ClassifyWalletError(err) == clients.WalletErrorUserRejected {
		return types.NewError(types.ErrUserCancelled, types.ReasonUserRejected, "tip cancelled by user", err)
	}
	if types.CodeOf(err) != "" {
		return err
	}
	return types.NewError(types.ErrSubmission, "", msg, err)
}

func buildBundle(from common.Address, req *sendRequest) *types.CallBundle {
	return &types.CallBundle{
		Version:        types.SendCallsVersion,
		From:           from,
		ChainID:        (*hexutil.Big)(new(big.Int).Set(req.chainID)),
		AtomicRequired: true,
		Calls: []types.Call{{
			To:    req.token,
			Value: (*hexutil.Big)(new(big.Int)),
			Data:  append(hexutil.Bytes(nil), req.callData...),
		}},
		Capabilities: types.Capabilities{
			DataSuffix: append(hexutil.Bytes(nil), req.suffix...),
		},
	}
}
