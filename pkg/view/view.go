// Package view projects orchestrator and tracker snapshots into display models.
package view

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"near-intents/pkg/intent"
	"near-intents/pkg/orchestrator"
	"near-intents/pkg/parser"
	"near-intents/pkg/tracker"
	"near-intents/pkg/types"
)

// Reasons shown on a disabled submit button.
const (
	ReasonSelectToken  = "select a token"
	ReasonEnterAmount  = "enter an amount"
	ReasonInsufficient = "insufficient balance"
	ReasonFetching     = "fetching quote"
	ReasonExpired      = "waiting for a fresh quote"
	ReasonSubmitting   = "submitting"
)

// SubmitButton decides whether submit is offered and why not.
func SubmitButton(s orchestrator.Snapshot, now time.Time) types.SubmitButton {
	label := actionLabel(s.Form.Kind)
	disabled := func(reason string) types.SubmitButton {
		return types.SubmitButton{Label: label, Reason: reason}
	}

	switch {
	case !s.State.Editing():
		return disabled(ReasonSubmitting)
	case s.Request.TokenIn == "" || s.Request.TokenOut == "":
		return disabled(ReasonSelectToken)
	case !s.Request.Ready():
		return disabled(ReasonEnterAmount)
	case s.InsufficientBalance:
		return disabled(ReasonInsufficient)
	case s.Quote.IsErr():
		return disabled(intent.AttributesOf(s.Quote.Error().Code()).Message)
	}

	q, ok := s.Quote.Value()
	if !ok {
		return disabled(ReasonFetching)
	}
	if q.Source != intent.SourceOneClick && q.Expired(now) {
		return disabled(ReasonExpired)
	}
	return types.SubmitButton{Enabled: true, Label: label}
}

func actionLabel(kind intent.OperationKind) string {
	switch kind {
	case intent.KindWithdraw:
		return "Withdraw"
	case intent.KindDeposit:
		return "Deposit"
	case intent.KindGift:
		return "Create gift"
	case intent.KindOTCFill:
		return "Fill deal"
	default:
		return "Swap"
	}
}

// QuoteView formats an ok quote. It returns false for anything else.
func QuoteView(res intent.QuoteResult, tokens intent.TokenList, now time.Time) (types.QuoteDisplay, bool) {
	q, ok := res.Value()
	if !ok {
		return types.QuoteDisplay{}, false
	}
	in, out := tokens[q.TokenIn], tokens[q.TokenOut]

	d := types.QuoteDisplay{
		SourceAmount:   parser.FormatAmount(q.AmountIn, in.Decimals),
		SourceToken:    symbol(in, q.TokenIn),
		DestAmount:     parser.FormatAmount(q.AmountOut, out.Decimals),
		DestToken:      symbol(out, q.TokenOut),
		Rate:           rate(q.AmountIn, in.Decimals, q.AmountOut, out.Decimals),
		DepositAddress: q.DepositAddress,
		Source:         string(q.Source),
	}
	if !q.Expiration.IsZero() {
		left := q.Expiration.Sub(now).Round(time.Second)
		if left < 0 {
			left = 0
		}
		d.ExpiresIn = left.String()
	}
	return d, true
}

func symbol(t intent.Token, asset string) string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return asset
}

// rate is the amount of output per unit of input, in display units.
func rate(amountIn *big.Int, decIn int32, amountOut *big.Int, decOut int32) string {
	if amountIn == nil || amountOut == nil || amountIn.Sign() == 0 {
		return ""
	}
	in := decimal.NewFromBigInt(amountIn, -decIn)
	out := decimal.NewFromBigInt(amountOut, -decOut)
	return out.DivRound(in, 6).String()
}

// TrackerLabel is the status line for a tracker.
func TrackerLabel(s tracker.Snapshot) string {
	switch s.State {
	case tracker.StatePending:
		return "pending"
	case tracker.StateSubmittingTxHash:
		return "confirming transfer"
	case tracker.StateChecking:
		return "checking status"
	case tracker.StateWaiting:
		return "settling on NEAR"
	case tracker.StatePolling:
		return "waiting for settlement"
	case tracker.StateSettled:
		return "settled"
	case tracker.StateWaitingForBridge:
		if s.RetryCount > 0 {
			return fmt.Sprintf("long-running bridge (%d)", s.RetryCount)
		}
		return "waiting for bridge"
	case tracker.StateSuccess:
		return "completed"
	case tracker.StateError:
		return "status check failed"
	case tracker.StateNotValid:
		return "rejected"
	}
	return string(s.State)
}

// TrackerStatus is the full row for a tracker.
func TrackerStatus(s tracker.Snapshot) types.SwapStatus {
	return types.SwapStatus{
		Handle:            s.Handle.String(),
		State:             string(s.State),
		Label:             TrackerLabel(s),
		TxHash:            s.TxHash,
		DestinationTxHash: s.DestinationTxHash,
		Final:             s.State.Final(),
		// A crashed tracker has left the arena and cannot take RETRY.
		CanRetry: s.State == tracker.StateError && intent.CodeOf(s.Err) != intent.CodeActorCrashed,
	}
}

// ErrorBanner returns nil when there is nothing to show.
func ErrorBanner(err *intent.Error) *types.ErrorBanner {
	if err == nil {
		return nil
	}
	attr := intent.AttributesOf(err.Code())
	return &types.ErrorBanner{
		Code:        string(err.Code()),
		Title:       attr.Message,
		Remediation: attr.Remediation,
	}
}

// SubmissionBanner shows the last failed submission, if any.
func SubmissionBanner(s orchestrator.Snapshot) *types.ErrorBanner {
	return ErrorBanner(s.Result.Error())
}
