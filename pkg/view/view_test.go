package view

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"near-intents/pkg/intent"
	"near-intents/pkg/orchestrator"
	"near-intents/pkg/tracker"
)

const (
	eth  = "nep141:eth.omft.near"
	usdc = "nep141:usdc.near"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func readySnapshot() orchestrator.Snapshot {
	amount := big.NewInt(1_000_000)
	return orchestrator.Snapshot{
		State: orchestrator.StateWaitingQuote,
		Form:  orchestrator.Form{Kind: intent.KindSwap},
		Request: intent.QuoteRequest{
			TokenIn:  usdc,
			TokenOut: eth,
			AmountIn: amount,
		},
		Quote: intent.Ok(intent.Quote{
			TokenIn:    usdc,
			TokenOut:   eth,
			AmountIn:   amount,
			AmountOut:  big.NewInt(500_000_000_000_000),
			Expiration: now.Add(30 * time.Second),
			Source:     intent.SourceSolverRelay,
		}),
	}
}

func TestSubmitButton(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*orchestrator.Snapshot)
		want   string
	}{
		{"ready", func(*orchestrator.Snapshot) {}, ""},
		{"no token", func(s *orchestrator.Snapshot) { s.Request.TokenOut = "" }, ReasonSelectToken},
		{"zero amount", func(s *orchestrator.Snapshot) {
			s.State = orchestrator.StateIdle
			s.Request.AmountIn = nil
		}, ReasonEnterAmount},
		{"insufficient", func(s *orchestrator.Snapshot) { s.InsufficientBalance = true }, ReasonInsufficient},
		{"quote error", func(s *orchestrator.Snapshot) {
			s.Quote = intent.QuoteFailure(intent.CodeNoQuotes, "")
		}, "no quotes available"},
		{"no quote yet", func(s *orchestrator.Snapshot) { s.Quote = intent.QuoteResult{} }, ReasonFetching},
		{"expired", func(s *orchestrator.Snapshot) {
			q, _ := s.Quote.Value()
			q.Expiration = now.Add(-time.Second)
			s.Quote = intent.Ok(q)
		}, ReasonExpired},
		{"submitting", func(s *orchestrator.Snapshot) { s.State = orchestrator.StateSubmitting }, ReasonSubmitting},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := readySnapshot()
			tt.mutate(&s)
			b := SubmitButton(s, now)
			assert.Equal(t, tt.want == "", b.Enabled)
			assert.Equal(t, tt.want, b.Reason)
			assert.Equal(t, "Swap", b.Label)
		})
	}
}

func TestQuoteView(t *testing.T) {
	tokens := intent.NewTokenList(
		intent.Token{AssetID: eth, Symbol: "ETH", Decimals: 18},
		intent.Token{AssetID: usdc, Symbol: "USDC", Decimals: 6},
	)
	d, ok := QuoteView(readySnapshot().Quote, tokens, now)
	require.True(t, ok)
	assert.Equal(t, "1", d.SourceAmount)
	assert.Equal(t, "USDC", d.SourceToken)
	assert.Equal(t, "0.0005", d.DestAmount)
	assert.Equal(t, "ETH", d.DestToken)
	assert.Equal(t, "0.0005", d.Rate)
	assert.Equal(t, "30s", d.ExpiresIn)
	assert.Equal(t, "solver_relay", d.Source)

	_, ok = QuoteView(intent.QuoteFailure(intent.CodeNoQuotes, ""), tokens, now)
	assert.False(t, ok)
}

func TestTrackerLabelShowsBridgeRetriesOnlyWhileWaiting(t *testing.T) {
	waiting := tracker.Snapshot{State: tracker.StateWaitingForBridge, RetryCount: 3}
	assert.Equal(t, "long-running bridge (3)", TrackerLabel(waiting))
	assert.Equal(t, "waiting for bridge", TrackerLabel(tracker.Snapshot{State: tracker.StateWaitingForBridge}))

	done := tracker.Snapshot{State: tracker.StateSuccess, RetryCount: 3}
	assert.Equal(t, "completed", TrackerLabel(done))
	assert.Equal(t, "checking status", TrackerLabel(tracker.Snapshot{State: tracker.StateChecking}))
}

func TestTrackerStatusRetry(t *testing.T) {
	transient := tracker.Snapshot{
		Handle: intent.Handle{Kind: intent.HandleIntentHash, Value: "0xabc"},
		State:  tracker.StateError,
		Err:    errors.New("timeout"),
	}
	st := TrackerStatus(transient)
	assert.True(t, st.CanRetry)
	assert.False(t, st.Final)
	assert.Equal(t, "intent_hash:0xabc", st.Handle)

	crashed := transient
	crashed.Err = intent.NewError(intent.CodeActorCrashed, "")
	assert.False(t, TrackerStatus(crashed).CanRetry)

	invalid := tracker.Snapshot{State: tracker.StateNotValid}
	st = TrackerStatus(invalid)
	assert.True(t, st.Final)
	assert.False(t, st.CanRetry)
	assert.Equal(t, "rejected", st.Label)
}

func TestErrorBanner(t *testing.T) {
	assert.Nil(t, ErrorBanner(nil))

	b := ErrorBanner(intent.NewError(intent.CodePopupBlocked, ""))
	require.NotNil(t, b)
	assert.Equal(t, "WALLET_POPUP_BLOCKED", b.Code)
	assert.Equal(t, intent.Remediation(intent.CodePopupBlocked), b.Remediation)

	s := readySnapshot()
	assert.Nil(t, SubmissionBanner(s))
	s.Result = intent.Err[orchestrator.Submission](intent.NewError(intent.CodeUserDidntSign, ""))
	assert.Equal(t, "USER_DIDNT_SIGN", SubmissionBanner(s).Code)
}
