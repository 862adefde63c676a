package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"near-intents/pkg/bridge"
	"near-intents/pkg/intent"
	"near-intents/pkg/logger"
)

// StatusSource answers status queries for a handle.
type StatusSource interface {
	Status(ctx context.Context, handle string) (intent.StatusReport, error)
}

// SettlementWaiter resolves the NEAR transaction hash of a published intent.
type SettlementWaiter interface {
	WaitForIntentSettlement(ctx context.Context, intentHash string) (string, error)
}

// DepositNotifier is told about the transaction that funded a deposit address.
type DepositNotifier interface {
	SubmitDepositTx(ctx context.Context, depositAddress, txHash string) error
}

// BridgeService reports the progress of a withdrawal's bridge leg.
type BridgeService interface {
	WithdrawalStatus(ctx context.Context, req bridge.Request) (bridge.Status, error)
}

// EventKind names the notifications a tracker emits on success.
type EventKind string

const (
	EventSettled         EventKind = "SETTLED"
	EventOneClickSettled EventKind = "ONE_CLICK_SETTLED"
)

// Event is sent upward exactly once when a tracker succeeds.
type Event struct {
	Kind              EventKind
	Handle            intent.Handle
	Operation         intent.OperationKind
	TokenIn           string
	TokenOut          string
	TxHash            string
	DestinationTxHash string
}

// Params describe what is tracked.
type Params struct {
	Handle    intent.Handle
	Operation intent.OperationKind
	TokenIn   string
	TokenOut  string
	// IntentHash of the transfer that funded a 1Click deposit address.
	IntentHash string
	// BridgeChain is set for withdrawals leaving NEAR.
	BridgeChain string
}

// Snapshot is an immutable view of a tracker.
type Snapshot struct {
	Handle            intent.Handle
	State             State
	Status            string
	TxHash            string
	DestinationTxHash string
	RetryCount        int
	Err               error
}

// Tracker polls a status source until the operation settles or is rejected.
type Tracker struct {
	params   Params
	source   StatusSource
	classify Classifier

	waiter       SettlementWaiter
	notifier     DepositNotifier
	bridge       BridgeService
	backoff      BackoffPolicy
	pollInterval time.Duration
	maxFailures  int
	onEvent      func(Event)
	observer     func(Snapshot)
	log          *slog.Logger

	retry chan struct{}

	mu               sync.Mutex
	snap             Snapshot
	failures         int
	depositSubmitted bool
	emitted          bool
}

// Option configures a Tracker.
type Option func(*Tracker)

func WithPollInterval(d time.Duration) Option {
	return func(t *Tracker) { t.pollInterval = d }
}

// WithMaxFailures sets how many consecutive status errors are tolerated before entering error.
func WithMaxFailures(n int) Option {
	return func(t *Tracker) { t.maxFailures = n }
}

// WithSettlementWaiter enables the submitting_tx_hash phase for 1Click handles.
func WithSettlementWaiter(w SettlementWaiter) Option {
	return func(t *Tracker) { t.waiter = w }
}

// WithDepositNotifier forwards the settlement tx hash to 1Click once, best effort.
func WithDepositNotifier(n DepositNotifier) Option {
	return func(t *Tracker) { t.notifier = n }
}

// WithBridge enables the waiting_for_bridge phase for withdrawals.
func WithBridge(b BridgeService, policy BackoffPolicy) Option {
	return func(t *Tracker) {
		t.bridge = b
		t.backoff = policy
	}
}

// WithEventHandler receives the success event.
func WithEventHandler(fn func(Event)) Option {
	return func(t *Tracker) { t.onEvent = fn }
}

// WithObserver receives every snapshot after a transition.
func WithObserver(fn func(Snapshot)) Option {
	return func(t *Tracker) { t.observer = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.log = l }
}

// New creates a tracker in the pending state. Run drives it.
func New(params Params, source StatusSource, classify Classifier, opts ...Option) *Tracker {
	t := &Tracker{
		params:       params,
		source:       source,
		classify:     classify,
		backoff:      DefaultBridgeBackoff,
		pollInterval: 500 * time.Millisecond,
		maxFailures:  3,
		retry:        make(chan struct{}, 1),
		snap:         Snapshot{Handle: params.Handle, State: StatePending},
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		t.log = logger.Named("tracker").With(slog.String("handle", params.Handle.Value))
	}
	return t
}

// Snapshot returns the current view.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

// Retry restarts a tracker sitting in error. It is ignored in every other state.
func (t *Tracker) Retry() bool {
	t.mu.Lock()
	if t.snap.State != StateError {
		t.mu.Unlock()
		return false
	}
	t.snap.State = StatePending
	t.snap.Err = nil
	t.failures = 0
	snap := t.snap
	t.mu.Unlock()

	t.publish(snap)
	select {
	case t.retry <- struct{}{}:
	default:
	}
	return true
}

// Run drives the tracker until it reaches a final state or ctx ends.
func (t *Tracker) Run(ctx context.Context) error {
	state := StatePending
	for {
		if state != t.Snapshot().State {
			t.update(func(s *Snapshot) { s.State = state })
		}

		next, err := t.step(ctx, state)
		if err != nil {
			return err
		}
		if state.Final() {
			return nil
		}
		state = next
	}
}

// step performs the work of one state and returns the next one.
func (t *Tracker) step(ctx context.Context, state State) (State, error) {
	switch state {
	case StatePending:
		if t.waiter != nil && t.params.IntentHash != "" && t.Snapshot().TxHash == "" {
			return StateSubmittingTxHash, nil
		}
		return StateChecking, nil

	case StateSubmittingTxHash:
		return t.resolveTxHash(ctx)

	case StateChecking:
		return t.check(ctx)

	case StateWaiting:
		return StatePolling, nil

	case StatePolling:
		if err := sleep(ctx, t.pollInterval); err != nil {
			return state, err
		}
		return StateChecking, nil

	case StateSettled:
		if t.params.Operation.NeedsBridgeWait() && t.bridge != nil && t.params.BridgeChain != "" {
			return StateWaitingForBridge, nil
		}
		return StateSuccess, nil

	case StateWaitingForBridge:
		return t.awaitBridge(ctx)

	case StateSuccess:
		t.emitSuccess()
		return state, nil

	case StateNotValid:
		t.log.Info("operation rejected", slog.String("status", t.Snapshot().Status))
		return state, nil

	case StateError:
		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-t.retry:
			return StatePending, nil
		}
	}
	return state, fmt.Errorf("unknown tracker state %q", state)
}

func (t *Tracker) resolveTxHash(ctx context.Context) (State, error) {
	txHash, err := t.waiter.WaitForIntentSettlement(ctx, t.params.IntentHash)
	if err != nil {
		if ctx.Err() != nil {
			return StateSubmittingTxHash, ctx.Err()
		}
		t.fail(fmt.Errorf("failed to resolve settlement transaction: %w", err))
		return StateError, nil
	}
	t.update(func(s *Snapshot) { s.TxHash = txHash })

	t.mu.Lock()
	first := !t.depositSubmitted
	t.depositSubmitted = true
	t.mu.Unlock()

	if first && t.notifier != nil {
		if err := t.notifier.SubmitDepositTx(ctx, t.params.Handle.Value, txHash); err != nil {
			t.log.Warn("deposit tx notification failed", slog.String("tx_hash", txHash), slog.Any("err", err))
		}
	}
	return StateChecking, nil
}

func (t *Tracker) check(ctx context.Context) (State, error) {
	report, err := t.source.Status(ctx, t.params.Handle.Value)
	if err != nil {
		if ctx.Err() != nil {
			return StateChecking, ctx.Err()
		}
		t.mu.Lock()
		t.failures++
		failures := t.failures
		t.mu.Unlock()

		t.log.Debug("status check failed", slog.Int("failures", failures), slog.Any("err", err))
		if failures >= t.maxFailures {
			t.fail(fmt.Errorf("status check failed %d times: %w", failures, err))
			return StateError, nil
		}
		return StatePolling, nil
	}

	t.mu.Lock()
	t.failures = 0
	t.mu.Unlock()

	class := t.classify(report.Status)
	t.update(func(s *Snapshot) {
		s.Status = report.Status
		if report.TxHash != "" {
			s.TxHash = report.TxHash
		}
		if report.DestinationTxHash != "" {
			s.DestinationTxHash = report.DestinationTxHash
		}
	})
	t.log.Debug("status checked", slog.String("status", report.Status), slog.String("class", class.String()))

	switch class {
	case ClassSettled:
		return StateSettled, nil
	case ClassInvalid:
		return StateNotValid, nil
	case ClassBroadcasted:
		return StateWaiting, nil
	default:
		return StatePolling, nil
	}
}

func (t *Tracker) awaitBridge(ctx context.Context) (State, error) {
	st, err := t.bridge.WithdrawalStatus(ctx, bridge.Request{
		NearTxHash: t.Snapshot().TxHash,
		Chain:      t.params.BridgeChain,
	})
	if err != nil {
		if ctx.Err() != nil {
			return StateWaitingForBridge, ctx.Err()
		}
		t.fail(fmt.Errorf("bridge status failed: %w", err))
		return StateError, nil
	}

	switch {
	case st.Completed:
		t.update(func(s *Snapshot) { s.DestinationTxHash = st.DestinationTxHash })
		return StateSuccess, nil
	case st.Failed:
		t.fail(errors.New("bridge transfer failed"))
		return StateError, nil
	}

	var attempt int
	t.update(func(s *Snapshot) {
		s.RetryCount++
		attempt = s.RetryCount
	})
	if err := sleep(ctx, t.backoff.Delay(t.params.Handle.Value, attempt-1)); err != nil {
		return StateWaitingForBridge, err
	}
	return StateWaitingForBridge, nil
}

func (t *Tracker) emitSuccess() {
	t.mu.Lock()
	if t.emitted {
		t.mu.Unlock()
		return
	}
	t.emitted = true
	snap := t.snap
	t.mu.Unlock()

	kind := EventSettled
	if t.params.Handle.Kind == intent.HandleDepositAddress {
		kind = EventOneClickSettled
	}
	t.log.Info("operation settled", slog.String("tx_hash", snap.TxHash), slog.String("destination_tx_hash", snap.DestinationTxHash))
	if t.onEvent != nil {
		t.onEvent(Event{
			Kind:              kind,
			Handle:            t.params.Handle,
			Operation:         t.params.Operation,
			TokenIn:           t.params.TokenIn,
			TokenOut:          t.params.TokenOut,
			TxHash:            snap.TxHash,
			DestinationTxHash: snap.DestinationTxHash,
		})
	}
}

func (t *Tracker) fail(err error) {
	t.log.Warn("tracker entered error state", slog.Any("err", err))
	t.update(func(s *Snapshot) {
		s.State = StateError
		s.Err = err
	})
}

func (t *Tracker) update(fn func(*Snapshot)) {
	t.mu.Lock()
	fn(&t.snap)
	snap := t.snap
	t.mu.Unlock()
	t.publish(snap)
}

func (t *Tracker) publish(snap Snapshot) {
	if t.observer != nil {
		t.observer(snap)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
