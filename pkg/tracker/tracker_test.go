package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"near-intents/pkg/bridge"
	"near-intents/pkg/intent"
)

type scriptedSource struct {
	mu      sync.Mutex
	reports []intent.StatusReport
	errs    []error
	calls   int
}

func (s *scriptedSource) Status(context.Context, string) (intent.StatusReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return intent.StatusReport{}, s.errs[i]
	}
	if i >= len(s.reports) {
		i = len(s.reports) - 1
	}
	return s.reports[i], nil
}

type recorder struct {
	mu     sync.Mutex
	snaps  []Snapshot
	events []Event
}

func (r *recorder) observe(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) event(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, 0, len(r.snaps))
	for _, s := range r.snaps {
		if len(out) == 0 || out[len(out)-1] != s.State {
			out = append(out, s.State)
		}
	}
	return out
}

func run(t *testing.T, tr *Tracker) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestIntentTrackerSettles(t *testing.T) {
	src := &scriptedSource{reports: []intent.StatusReport{
		{Status: "PENDING"},
		{Status: "TX_BROADCASTED", TxHash: "tx1"},
		{Status: "SETTLED", TxHash: "tx1"},
	}}
	rec := &recorder{}
	tr := New(Params{
		Handle:    intent.Handle{Kind: intent.HandleIntentHash, Value: "H1"},
		Operation: intent.KindSwap,
		TokenIn:   "a",
		TokenOut:  "b",
	}, src, ClassifyIntentStatus,
		WithPollInterval(time.Millisecond),
		WithObserver(rec.observe),
		WithEventHandler(rec.event),
	)

	_, done := run(t, tr)
	require.NoError(t, <-done)

	assert.Equal(t, []State{
		StateChecking, StatePolling, StateChecking, StateWaiting,
		StatePolling, StateChecking, StateSettled, StateSuccess,
	}, rec.states())
	require.Len(t, rec.events, 1)
	assert.Equal(t, EventSettled, rec.events[0].Kind)
	assert.Equal(t, "H1", rec.events[0].Handle.Value)
	assert.Equal(t, "tx1", rec.events[0].TxHash)
	assert.Equal(t, "a", rec.events[0].TokenIn)
	assert.False(t, tr.Retry(), "success is final")
}

type fakeWaiter struct{ hash string }

func (w fakeWaiter) WaitForIntentSettlement(context.Context, string) (string, error) {
	return w.hash, nil
}

type countingNotifier struct {
	mu    sync.Mutex
	calls [][2]string
	err   error
}

func (n *countingNotifier) SubmitDepositTx(_ context.Context, addr, hash string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, [2]string{addr, hash})
	return n.err
}

func TestOneClickTrackerForwardsTxHashOnce(t *testing.T) {
	src := &scriptedSource{reports: []intent.StatusReport{
		{Status: "PROCESSING"},
		{Status: "SUCCESS", DestinationTxHash: "dst1"},
	}}
	notifier := &countingNotifier{err: errors.New("1click unavailable")}
	rec := &recorder{}
	tr := New(Params{
		Handle:     intent.Handle{Kind: intent.HandleDepositAddress, Value: "dep1"},
		Operation:  intent.KindSwap,
		IntentHash: "H1",
	}, src, ClassifyOneClickStatus,
		WithPollInterval(time.Millisecond),
		WithSettlementWaiter(fakeWaiter{hash: "tx1"}),
		WithDepositNotifier(notifier),
		WithObserver(rec.observe),
		WithEventHandler(rec.event),
	)

	_, done := run(t, tr)
	require.NoError(t, <-done, "notifier failure is best effort")

	assert.Equal(t, [][2]string{{"dep1", "tx1"}}, notifier.calls)
	assert.Equal(t, []State{
		StateSubmittingTxHash, StateChecking, StatePolling, StateChecking, StateSettled, StateSuccess,
	}, rec.states())
	require.Len(t, rec.events, 1)
	assert.Equal(t, EventOneClickSettled, rec.events[0].Kind)
	assert.Equal(t, "tx1", rec.events[0].TxHash)
	assert.Equal(t, "dst1", rec.events[0].DestinationTxHash)
}

func TestRefundedIsFinalNotValid(t *testing.T) {
	src := &scriptedSource{reports: []intent.StatusReport{{Status: "REFUNDED"}}}
	rec := &recorder{}
	tr := New(Params{Handle: intent.Handle{Kind: intent.HandleDepositAddress, Value: "dep1"}},
		src, ClassifyOneClickStatus, WithEventHandler(rec.event))

	_, done := run(t, tr)
	require.NoError(t, <-done)
	assert.Equal(t, StateNotValid, tr.Snapshot().State)
	assert.False(t, tr.Retry())
	assert.Empty(t, rec.events)
}

func TestErrorStateAcceptsRetry(t *testing.T) {
	boom := errors.New("relay down")
	src := &scriptedSource{
		errs:    []error{boom, boom},
		reports: []intent.StatusReport{{}, {}, {Status: "SETTLED", TxHash: "tx9"}},
	}
	rec := &recorder{}
	tr := New(Params{Handle: intent.Handle{Kind: intent.HandleIntentHash, Value: "H2"}},
		src, ClassifyIntentStatus,
		WithPollInterval(time.Millisecond),
		WithMaxFailures(2),
		WithEventHandler(rec.event),
	)

	assert.False(t, tr.Retry(), "retry outside error is ignored")
	_, done := run(t, tr)

	require.Eventually(t, func() bool { return tr.Snapshot().State == StateError }, time.Second, time.Millisecond)
	assert.ErrorIs(t, tr.Snapshot().Err, boom)
	require.True(t, tr.Retry())
	assert.False(t, tr.Retry(), "second retry is not queued")

	require.NoError(t, <-done)
	assert.Equal(t, StateSuccess, tr.Snapshot().State)
	require.Len(t, rec.events, 1)
	assert.Equal(t, "tx9", rec.events[0].TxHash)
}

type slowBridge struct {
	mu      sync.Mutex
	pending int
	calls   int
}

func (b *slowBridge) WithdrawalStatus(_ context.Context, req bridge.Request) (bridge.Status, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if req.NearTxHash != "tx1" {
		return bridge.Status{}, errors.New("unexpected near tx hash")
	}
	if b.calls <= b.pending {
		return bridge.Status{}, nil
	}
	return bridge.Status{Completed: true, DestinationTxHash: "0xdst"}, nil
}

func TestWithdrawWaitsForBridgeWithRetryCount(t *testing.T) {
	src := &scriptedSource{reports: []intent.StatusReport{{Status: "SETTLED", TxHash: "tx1"}}}
	rec := &recorder{}
	tr := New(Params{
		Handle:      intent.Handle{Kind: intent.HandleIntentHash, Value: "H3"},
		Operation:   intent.KindWithdraw,
		BridgeChain: "eth",
	}, src, ClassifyIntentStatus,
		WithBridge(&slowBridge{pending: 3}, BackoffPolicy{Base: time.Millisecond, Max: 2 * time.Millisecond}),
		WithObserver(rec.observe),
		WithEventHandler(rec.event),
	)

	_, done := run(t, tr)
	require.NoError(t, <-done)

	var counts []int
	for _, s := range rec.snaps {
		if s.State == StateWaitingForBridge {
			counts = append(counts, s.RetryCount)
		}
	}
	assert.Contains(t, counts, 3)
	assert.Equal(t, 3, tr.Snapshot().RetryCount)
	require.Len(t, rec.events, 1)
	assert.Equal(t, "0xdst", rec.events[0].DestinationTxHash)
}

func TestBridgeErrorRetryResumesFromSettlement(t *testing.T) {
	src := &scriptedSource{reports: []intent.StatusReport{{Status: "SETTLED", TxHash: "tx1"}}}
	b := &failingOnceBridge{}
	tr := New(Params{
		Handle:      intent.Handle{Kind: intent.HandleIntentHash, Value: "H4"},
		Operation:   intent.KindWithdraw,
		BridgeChain: "eth",
	}, src, ClassifyIntentStatus, WithBridge(b, BackoffPolicy{Base: time.Millisecond, Max: time.Millisecond}))

	_, done := run(t, tr)
	require.Eventually(t, func() bool { return tr.Snapshot().State == StateError }, time.Second, time.Millisecond)
	require.True(t, tr.Retry())
	require.NoError(t, <-done)
	assert.Equal(t, StateSuccess, tr.Snapshot().State)
	assert.Equal(t, 2, src.calls, "intent status re-checked after retry")
}

type failingOnceBridge struct {
	mu     sync.Mutex
	failed bool
}

func (b *failingOnceBridge) WithdrawalStatus(context.Context, bridge.Request) (bridge.Status, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.failed {
		b.failed = true
		return bridge.Status{}, errors.New("bridge rpc down")
	}
	return bridge.Status{Completed: true}, nil
}

func TestRunStopsOnCancel(t *testing.T) {
	src := &scriptedSource{reports: []intent.StatusReport{{Status: "PENDING"}}}
	tr := New(Params{Handle: intent.Handle{Kind: intent.HandleIntentHash, Value: "H5"}},
		src, ClassifyIntentStatus, WithPollInterval(time.Millisecond))

	cancel, done := run(t, tr)
	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.calls > 2
	}, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
