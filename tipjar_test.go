package tipjar

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/tipjar/attribution"
	"github.com/vitwit/tipjar/clients"
	"github.com/vitwit/tipjar/gateway"
	"github.com/vitwit/tipjar/types"
)

const (
	testRecipient = "0x5eC6AF0798b25C563B102d3469971f1a8d598121"
	testSender    = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	testCode      = "bc_4tcf5clw"
	baseUSDC      = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
)

// fakeWallet is an in-memory EIP-1193 wallet.
type fakeWallet struct {
	mu sync.Mutex

	chainID     string
	accounts    []string
	switchErr   error
	accountsErr error
	sendErr     error
	sendResult  string

	// when set, wallet_sendCalls waits for release (or ctx if honourCtx)
	release   chan struct{}
	honourCtx bool

	calls   []string
	bundles []types.CallBundle
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{
		chainID:    "0x2105",
		accounts:   []string{testSender},
		sendResult: `{"id":"0xbundle"}`,
	}
}

func (f *fakeWallet) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, method)
	f.mu.Unlock()

	switch method {
	case clients.MethodChainID:
		f.mu.Lock()
		defer f.mu.Unlock()
		return json.Marshal(f.chainID)

	case clients.MethodSwitchChain:
		if f.switchErr != nil {
			return nil, f.switchErr
		}
		p := params[0].(clients.SwitchChainParams)
		f.mu.Lock()
		f.chainID = p.ChainID
		f.mu.Unlock()
		return json.RawMessage(`null`), nil

	case clients.MethodRequestAccounts:
		if f.accountsErr != nil {
			return nil, f.accountsErr
		}
		return json.Marshal(f.accounts)

	case clients.MethodSendCalls:
		if f.release != nil {
			if f.honourCtx {
				select {
				case <-f.release:
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			} else {
				<-f.release
			}
		}
		if f.sendErr != nil {
			return nil, f.sendErr
		}
		b := params[0].(*types.CallBundle)
		f.mu.Lock()
		f.bundles = append(f.bundles, *b)
		f.mu.Unlock()
		return json.RawMessage(f.sendResult), nil
	}

	return nil, &clients.ProviderError{Code: clients.CodeUnsupportedMethod, Message: method}
}

func (f *fakeWallet) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type stateLog struct {
	mu     sync.Mutex
	states []types.State
}

func (l *stateLog) listen(s types.PaymentSession) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s.State)
}

func (l *stateLog) all() []types.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.State(nil), l.states...)
}

func testConfig() types.TipConfig {
	return types.TipConfig{
		Network:         types.NetworkBase,
		Recipient:       testRecipient,
		AttributionCode: testCode,
	}
}

func newTestOrchestrator(cfg types.TipConfig, w clients.Provider, opts ...Option) (*Orchestrator, *stateLog) {
	log := &stateLog{}
	var strategies []gateway.Strategy
	if w != nil {
		strategies = append(strategies, gateway.InjectedStrategy(w))
	}
	opts = append([]Option{WithDelays(types.NoDelays()), WithStateListener(log.listen)}, opts...)
	return New(cfg, gateway.New(strategies), opts...), log
}

func TestInitiateSend_Success(t *testing.T) {
	w := newFakeWallet()
	o, log := newTestOrchestrator(testConfig(), w)

	receipt, err := o.InitiateSend(context.Background(), "5")
	require.NoError(t, err)

	assert.Equal(t, []types.State{
		types.StatePreparing,
		types.StateAwaitingWalletConfirmation,
		types.StateSubmitting,
		types.StateSucceeded,
	}, log.all())
	assert.Equal(t, types.StateSucceeded, o.State())
	assert.Equal(t, "Send again", o.State().Label())

	assert.Equal(t, []string{clients.MethodChainID, clients.MethodRequestAccounts, clients.MethodSendCalls}, w.methods())

	assert.Equal(t, types.StateSucceeded, receipt.State)
	assert.Equal(t, "0xbundle", receipt.BundleID)
	assert.Equal(t, common.HexToAddress(testSender), receipt.From)
	assert.Equal(t, "Tip sent: $5 USDC", receipt.Notice)
	_, err = uuid.Parse(receipt.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, receipt.AttemptID, o.Session().AttemptID)

	require.Len(t, w.bundles, 1)
	b := w.bundles[0]
	assert.Equal(t, types.SendCallsVersion, b.Version)
	assert.Equal(t, common.HexToAddress(testSender), b.From)
	assert.Equal(t, int64(8453), b.ChainID.ToInt().Int64())
	assert.True(t, b.AtomicRequired)
	require.Len(t, b.Calls, 1)
	assert.Equal(t, common.HexToAddress(baseUSDC), b.Calls[0].To)
	assert.Equal(t, 0, b.Calls[0].Value.ToInt().Sign())

	data := b.Calls[0].Data
	require.Len(t, data, clients.TransferCallSize)
	assert.Equal(t, "a9059cbb", hex.EncodeToString(data[:4]))
	assert.Equal(t, common.LeftPadBytes(common.HexToAddress(testRecipient).Bytes(), 32), []byte(data[4:36]))
	assert.Equal(t, math.U256Bytes(big.NewInt(5_000_000)), []byte(data[36:]))

	wantSuffix, err := attribution.ToDataSuffix([]string{testCode})
	require.NoError(t, err)
	assert.Equal(t, wantSuffix, b.Capabilities.DataSuffix)

	raw, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"chainId":"0x2105"`)
	assert.Contains(t, string(raw), `"atomicRequired":true`)
	assert.Contains(t, string(raw), `"value":"0x0"`)
}

func TestInitiateSend_ConfigurationError(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.TipConfig)
	}{
		{"missing code", func(c *types.TipConfig) { c.AttributionCode = "" }},
		{"placeholder code", func(c *types.TipConfig) { c.AttributionCode = "TODO" }},
		{"missing recipient", func(c *types.TipConfig) { c.Recipient = "" }},
		{"invalid recipient", func(c *types.TipConfig) { c.Recipient = "0xnothex" }},
		{"unencodable code", func(c *types.TipConfig) { c.AttributionCode = "bad code" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)

			w := newFakeWallet()
			o, log := newTestOrchestrator(cfg, w)

			_, err := o.InitiateSend(context.Background(), "5")
			require.Error(t, err)
			assert.Equal(t, types.ErrConfiguration, types.CodeOf(err))
			assert.Equal(t, types.StateIdle, o.State())
			assert.Empty(t, log.all())
			assert.Empty(t, w.methods())
			assert.Equal(t, err, o.Session().LastError)
		})
	}
}

func TestInitiateSend_ValidationError(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		mutate func(*types.TipConfig)
		reason string
	}{
		{"empty", "", nil, types.ReasonInvalidFormat},
		{"letters", "abc", nil, types.ReasonInvalidFormat},
		{"too precise", "1.2345678", nil, types.ReasonInvalidFormat},
		{"zero", "0", nil, types.ReasonNonPositiveAmount},
		{"zero recipient", "5", func(c *types.TipConfig) { c.Recipient = "0x0000000000000000000000000000000000000000" }, types.ReasonZeroAddress},
		{"bad checksum", "5", func(c *types.TipConfig) {
			c.Recipient = "0x5Ec6AF0798b25C563B102d3469971f1a8d598121"
			c.StrictChecksum = true
		}, types.ReasonBadChecksum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}

			w := newFakeWallet()
			o, log := newTestOrchestrator(cfg, w)

			_, err := o.InitiateSend(context.Background(), tt.amount)
			require.Error(t, err)
			assert.Equal(t, types.ErrValidation, types.CodeOf(err))
			assert.Equal(t, tt.reason, types.ReasonOf(err))
			assert.Equal(t, types.StateIdle, o.State())
			assert.Empty(t, log.all())
			assert.Empty(t, w.methods())
		})
	}
}

func TestInitiateSend_UserRejected(t *testing.T) {
	for _, rejection := range []error{
		&clients.ProviderError{Code: clients.CodeUserRejected, Message: "denied"},
		&clients.ProviderError{Code: -32000, Message: "User rejected the request."},
	} {
		w := newFakeWallet()
		w.sendErr = rejection
		o, log := newTestOrchestrator(testConfig(), w)

		receipt, err := o.InitiateSend(context.Background(), "5")
		require.NoError(t, err)
		require.NotNil(t, receipt)
		assert.Equal(t, types.StateCancelled, receipt.State)
		assert.Equal(t, "Tip cancelled (user rejected).", receipt.Notice)

		assert.Equal(t, []types.State{
			types.StatePreparing,
			types.StateAwaitingWalletConfirmation,
			types.StateCancelled,
			types.StateIdle,
		}, log.all())
		assert.Nil(t, o.Session().LastError)
		assert.Equal(t, types.StateIdle, o.State())
	}
}

func TestInitiateSend_AccountRequestRejected(t *testing.T) {
	w := newFakeWallet()
	w.accountsErr = &clients.ProviderError{Code: clients.CodeUserRejected, Message: "denied"}
	o, _ := newTestOrchestrator(testConfig(), w)

	receipt, err := o.InitiateSend(context.Background(), "5")
	require.NoError(t, err)
	assert.Equal(t, types.StateCancelled, receipt.State)
	assert.NotContains(t, w.methods(), clients.MethodSendCalls)
}

func TestInitiateSend_SubmissionError(t *testing.T) {
	original := &clients.ProviderError{Code: -32603, Message: "insufficient funds for transfer"}
	w := newFakeWallet()
	w.sendErr = original
	o, log := newTestOrchestrator(testConfig(), w)

	receipt, err := o.InitiateSend(context.Background(), "5")
	require.Error(t, err)
	assert.Nil(t, receipt)
	assert.Equal(t, types.ErrSubmission, types.CodeOf(err))
	assert.ErrorIs(t, err, original)
	assert.ErrorContains(t, err, "insufficient funds for transfer")

	assert.Equal(t, []types.State{
		types.StatePreparing,
		types.StateAwaitingWalletConfirmation,
		types.StateFailed,
		types.StateIdle,
	}, log.all())
	assert.Equal(t, err, o.Session().LastError)
}

func TestInitiateSend_WrongNetworkSwitchDeclined(t *testing.T) {
	w := newFakeWallet()
	w.chainID = "0x1"
	w.switchErr = &clients.ProviderError{Code: clients.CodeUserRejected, Message: "User rejected the request."}
	o, log := newTestOrchestrator(testConfig(), w)

	_, err := o.InitiateSend(context.Background(), "5")
	require.Error(t, err)
	assert.Equal(t, types.ErrWrongNetwork, types.CodeOf(err))

	assert.Equal(t, []types.State{
		types.StatePreparing,
		types.StateAwaitingWalletConfirmation,
		types.StateFailed,
		types.StateIdle,
	}, log.all())
	assert.Equal(t, []string{clients.MethodChainID, clients.MethodSwitchChain}, w.methods())
	assert.Empty(t, w.bundles)
}

func TestInitiateSend_SwitchesNetwork(t *testing.T) {
	w := newFakeWallet()
	w.chainID = "0x14a34"
	o, _ := newTestOrchestrator(testConfig(), w)

	_, err := o.InitiateSend(context.Background(), "1.5")
	require.NoError(t, err)
	assert.Equal(t, []string{
		clients.MethodChainID,
		clients.MethodSwitchChain,
		clients.MethodRequestAccounts,
		clients.MethodSendCalls,
	}, w.methods())
	assert.Equal(t, "0x2105", w.chainID)
}

func TestInitiateSend_NoProvider(t *testing.T) {
	o, log := newTestOrchestrator(testConfig(), nil)

	_, err := o.InitiateSend(context.Background(), "5")
	require.Error(t, err)
	assert.Equal(t, types.ErrNoProviderFound, types.CodeOf(err))
	assert.Equal(t, []types.State{types.StatePreparing, types.StateFailed, types.StateIdle}, log.all())
}

func TestInitiateSend_NoAccount(t *testing.T) {
	w := newFakeWallet()
	w.accounts = nil
	o, _ := newTestOrchestrator(testConfig(), w)

	_, err := o.InitiateSend(context.Background(), "5")
	require.Error(t, err)
	assert.Equal(t, types.ErrNoAccount, types.CodeOf(err))
	assert.NotContains(t, w.methods(), clients.MethodSendCalls)
}

func TestInitiateSend_RejectsConcurrentSend(t *testing.T) {
	w := newFakeWallet()
	w.release = make(chan struct{})
	o, _ := newTestOrchestrator(testConfig(), w)

	type result struct {
		receipt *types.SendReceipt
		err     error
	}
	done := make(chan result, 1)
	go func() {
		r, err := o.InitiateSend(context.Background(), "5")
		done <- result{r, err}
	}()

	require.Eventually(t, func() bool {
		return o.State() == types.StateAwaitingWalletConfirmation
	}, time.Second, time.Millisecond)

	_, err := o.InitiateSend(context.Background(), "1")
	require.Error(t, err)
	assert.Equal(t, types.ErrSessionBusy, types.CodeOf(err))

	close(w.release)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, types.StateSucceeded, res.receipt.State)

	// a finished session accepts the next send
	_, err = o.InitiateSend(context.Background(), "1")
	require.NoError(t, err)
	assert.Len(t, w.bundles, 2)
}

func TestAbandon_DiscardsInFlightAttempt(t *testing.T) {
	for _, honourCtx := range []bool{true, false} {
		w := newFakeWallet()
		w.release = make(chan struct{})
		w.honourCtx = honourCtx
		o, log := newTestOrchestrator(testConfig(), w)

		done := make(chan error, 1)
		go func() {
			_, err := o.InitiateSend(context.Background(), "5")
			done <- err
		}()

		require.Eventually(t, func() bool {
			return o.State() == types.StateAwaitingWalletConfirmation
		}, time.Second, time.Millisecond)

		o.Abandon()
		assert.Equal(t, types.StateIdle, o.State())
		close(w.release)

		err := <-done
		require.Error(t, err)
		assert.Equal(t, types.ErrSessionAbandoned, types.CodeOf(err))
		assert.Equal(t, types.StateIdle, o.State())

		assert.Equal(t, []types.State{
			types.StatePreparing,
			types.StateAwaitingWalletConfirmation,
			types.StateIdle,
		}, log.all())
	}
}

func TestInitiateSend_CallerCancelsDuringPreparing(t *testing.T) {
	w := newFakeWallet()
	o, log := newTestOrchestrator(testConfig(), w,
		WithDelays(types.DelayPolicy{types.StatePreparing: time.Hour}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := o.InitiateSend(ctx, "5")
	require.Error(t, err)
	assert.Equal(t, types.ErrSessionAbandoned, types.CodeOf(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	assert.Equal(t, []types.State{types.StatePreparing, types.StateIdle}, log.all())
	assert.Empty(t, w.methods())
}

func TestInitiateSend_CallerCancelsAfterWalletAccepted(t *testing.T) {
	w := newFakeWallet()
	o, log := newTestOrchestrator(testConfig(), w,
		WithDelays(types.DelayPolicy{types.StateSubmitting: time.Hour}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	receipt, err := o.InitiateSend(ctx, "5")
	require.NoError(t, err)
	assert.Equal(t, types.StateSucceeded, receipt.State)
	assert.Equal(t, "0xbundle", receipt.BundleID)
	assert.Equal(t, types.StateSucceeded, o.State())
	assert.Len(t, w.bundles, 1)

	assert.Equal(t, []types.State{
		types.StatePreparing,
		types.StateAwaitingWalletConfirmation,
		types.StateSubmitting,
		types.StateSucceeded,
	}, log.all())
}

type recordingRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingRecorder) IncCounter(name string, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, name)
}

func (r *recordingRecorder) ObserveLatency(string, time.Duration, map[string]string) {}

func TestInitiateSend_RecordsMetrics(t *testing.T) {
	rec := &recordingRecorder{}
	w := newFakeWallet()
	o, _ := newTestOrchestrator(testConfig(), w, WithMetrics(rec))

	_, err := o.InitiateSend(context.Background(), "5")
	require.NoError(t, err)
	_, err = o.InitiateSend(context.Background(), "nope")
	require.Error(t, err)

	assert.Equal(t, []string{"send_started", "send_succeeded", "send_rejected"}, rec.events)
}

func TestPreview(t *testing.T) {
	w := newFakeWallet()
	o, log := newTestOrchestrator(testConfig(), w)

	from := common.HexToAddress(testSender)
	b, err := o.Preview("0.25", from)
	require.NoError(t, err)
	assert.Equal(t, from, b.From)
	assert.Equal(t, math.U256Bytes(big.NewInt(250_000)), []byte(b.Calls[0].Data[36:]))

	codes, ok := attribution.FromData(append(append([]byte(nil), b.Calls[0].Data...), b.Capabilities.DataSuffix...))
	require.True(t, ok)
	assert.Equal(t, []string{testCode}, codes)

	_, err = o.Preview("-1", from)
	assert.Equal(t, types.ErrValidation, types.CodeOf(err))

	assert.Empty(t, w.methods())
	assert.Empty(t, log.all())
	assert.Equal(t, types.StateIdle, o.State())
}

type fixedBalance struct {
	balance *big.Int
	err     error
	token   common.Address
}

func (f *fixedBalance) BalanceOf(_ context.Context, token, _ common.Address) (*big.Int, error) {
	f.token = token
	return f.balance, f.err
}

func TestInitiateSend_BalanceCheck(t *testing.T) {
	t.Run("insufficient", func(t *testing.T) {
		w := newFakeWallet()
		bal := &fixedBalance{balance: big.NewInt(4_990_000)}
		o, log := newTestOrchestrator(testConfig(), w, WithBalanceCheck(bal))

		_, err := o.InitiateSend(context.Background(), "5")
		require.Error(t, err)
		assert.Equal(t, types.ErrInsufficientFunds, types.CodeOf(err))
		assert.ErrorContains(t, err, "4.99 USDC")
		assert.Equal(t, common.HexToAddress(baseUSDC), bal.token)
		assert.Empty(t, w.bundles)
		assert.Equal(t, []types.State{
			types.StatePreparing,
			types.StateAwaitingWalletConfirmation,
			types.StateFailed,
			types.StateIdle,
		}, log.all())
	})

	t.Run("sufficient", func(t *testing.T) {
		w := newFakeWallet()
		o, _ := newTestOrchestrator(testConfig(), w, WithBalanceCheck(&fixedBalance{balance: big.NewInt(5_000_000)}))

		_, err := o.InitiateSend(context.Background(), "5")
		require.NoError(t, err)
	})

	t.Run("nil balance does not block", func(t *testing.T) {
		w := newFakeWallet()
		o, _ := newTestOrchestrator(testConfig(), w, WithBalanceCheck(&fixedBalance{}))

		_, err := o.InitiateSend(context.Background(), "5")
		require.NoError(t, err)
		assert.Len(t, w.bundles, 1)
	})

	t.Run("lookup failure does not block", func(t *testing.T) {
		w := newFakeWallet()
		o, _ := newTestOrchestrator(testConfig(), w, WithBalanceCheck(&fixedBalance{err: errors.New("node down")}))

		_, err := o.InitiateSend(context.Background(), "5")
		require.NoError(t, err)
		assert.Len(t, w.bundles, 1)
	})
}
