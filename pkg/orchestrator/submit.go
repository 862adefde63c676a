package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"near-intents/pkg/intent"
	"near-intents/pkg/signer"
	"near-intents/pkg/tracker"
)

// poaSuffix marks tokens bridged by the POA service. Their withdrawals go
// to the token contract with the destination address in the memo.
const poaSuffix = ".omft.near"

// job is the frozen input of one submission.
type job struct {
	id        string
	kind      intent.OperationKind
	request   intent.QuoteRequest
	quote     intent.Quote
	recipient string
	destChain string
	oneClick  bool
}

func (o *Orchestrator) onSubmit(ctx context.Context) bool {
	if !o.state.Editing() || o.state == StateValidating {
		return false
	}
	q, ok := o.quote.Value()
	if !ok || o.insufficient {
		return false
	}
	oneClick := o.cfg.Mode == ModeOneClick && o.form.Kind == intent.KindSwap && o.cfg.OneClick != nil
	if !oneClick && q.Expired(o.cfg.Now()) {
		o.log.Debug("refusing to submit expired quote")
		return false
	}

	j := job{
		id:        uuid.NewString(),
		kind:      o.form.Kind,
		request:   o.request,
		quote:     q,
		recipient: o.form.Recipient,
		destChain: o.form.DestChain,
		oneClick:  oneClick,
	}
	if err := o.submissions.Spawn(ctx, j.id, j.id, func(ctx context.Context) error {
		o.mailbox.Send(submissionDoneMsg{id: j.id, result: o.runSubmission(ctx, j)})
		return nil
	}); err != nil {
		o.log.Error("failed to start submission", slog.Any("err", err))
		return false
	}

	o.activeSubmit = j.id
	o.quoter.Pause()
	if oneClick {
		o.state = StateSubmitting1CS
	} else {
		o.state = StateSubmitting
	}
	o.log.Info("submitting", slog.String("id", j.id), slog.String("kind", string(j.kind)), slog.Bool("one_click", oneClick))
	return true
}

func (o *Orchestrator) runSubmission(ctx context.Context, j job) intent.Result[Submission] {
	var (
		sub Submission
		err *intent.Error
	)
	if j.oneClick {
		sub, err = o.submitOneClick(ctx, j)
	} else {
		sub, err = o.submitIntents(ctx, j)
	}
	if err != nil {
		return intent.Err[Submission](err)
	}
	sub.ID = j.id
	sub.Kind = j.kind
	sub.TokenIn = j.request.TokenIn
	sub.TokenOut = j.request.TokenOut
	sub.SubmittedAt = o.cfg.Now()
	if j.kind == intent.KindWithdraw {
		sub.BridgeChain = j.destChain
	}
	return intent.Ok(sub)
}

func (o *Orchestrator) submitIntents(ctx context.Context, j job) (Submission, *intent.Error) {
	if j.quote.Expired(o.cfg.Now()) {
		return Submission{}, intent.NewError(intent.CodeQuoteExpired, "quote expired before signing")
	}

	req := signer.Request{Deltas: j.quote.Deltas, Referral: o.cfg.Referral}
	if j.kind == intent.KindWithdraw {
		req.Actions = withdrawActions(j, o.cfg.Referral)
	}
	payload, err := o.sign(ctx, req)
	if err != nil {
		return Submission{}, err
	}

	hashes, perr := o.publishPayload(ctx, payload, j.quote.QuoteHashes)
	if perr != nil {
		return Submission{}, perr
	}
	return Submission{
		Handle:       intent.Handle{Kind: intent.HandleIntentHash, Value: hashes[0]},
		IntentHashes: hashes,
		Quote:        j.quote,
		Nonce:        payload.Nonce,
	}, nil
}

// submitOneClick asks 1Click for an executable quote and transfers the input
// to its deposit address from the intents balance.
func (o *Orchestrator) submitOneClick(ctx context.Context, j job) (Submission, *intent.Error) {
	res := o.cfg.OneClick.ExecutableQuote(ctx, j.request)
	q, ok := res.Value()
	if !ok {
		if res.Error() != nil {
			return Submission{}, res.Error()
		}
		return Submission{}, intent.NewError(intent.CodeNoQuotes, "no executable quote")
	}
	if q.DepositAddress == "" {
		return Submission{}, intent.NewError(intent.CodeQuoteProviderError, "executable quote has no deposit address")
	}

	amount := q.AmountIn
	if amount == nil {
		amount = j.request.AmountIn
	}
	payload, err := o.sign(ctx, signer.Request{Actions: []intent.Action{intent.Transfer{
		ReceiverID: q.DepositAddress,
		Tokens:     intent.TokenDeltas{j.request.TokenIn: amount},
		Memo:       q.DepositMemo,
	}}})
	if err != nil {
		return Submission{}, err
	}

	hashes, perr := o.publishPayload(ctx, payload, nil)
	if perr != nil {
		return Submission{}, perr
	}
	return Submission{
		Handle:       intent.Handle{Kind: intent.HandleDepositAddress, Value: q.DepositAddress},
		IntentHashes: hashes,
		Quote:        q,
		Nonce:        payload.Nonce,
	}, nil
}

func (o *Orchestrator) sign(ctx context.Context, req signer.Request) (intent.SignedPayload, *intent.Error) {
	res := o.cfg.Signer.Sign(ctx, req)
	payload, ok := res.Value()
	if !ok {
		if res.Error() != nil {
			return intent.SignedPayload{}, res.Error()
		}
		return intent.SignedPayload{}, intent.NewError(intent.CodeSigningFailed, "signer returned nothing")
	}
	return payload, nil
}

func (o *Orchestrator) publishPayload(ctx context.Context, payload intent.SignedPayload, quoteHashes []string) ([]string, *intent.Error) {
	hashes, err := o.cfg.Publisher.PublishIntents(ctx, []intent.SignedPayload{payload}, quoteHashes)
	if err != nil {
		var coded *intent.Error
		if errors.As(err, &coded) {
			return nil, coded
		}
		return nil, intent.WrapError(intent.CodePublishFailed, err, "failed to publish intent")
	}
	if len(hashes) == 0 {
		return nil, intent.NewError(intent.CodePublishFailed, "relay returned no intent hash")
	}
	return hashes, nil
}

// withdrawActions swaps into the output token when needed and releases it
// to the recipient.
func withdrawActions(j job, referral string) []intent.Action {
	var actions []intent.Action
	if len(j.quote.Deltas) > 0 {
		actions = append(actions, intent.TokenDiff{Diff: j.quote.Deltas, Referral: referral})
	}

	contract := strings.TrimPrefix(j.quote.TokenOut, "nep141:")
	withdraw := intent.FtWithdraw{
		Token:      contract,
		ReceiverID: j.recipient,
		Amount:     j.quote.AmountOut.String(),
	}
	if strings.HasSuffix(contract, poaSuffix) {
		withdraw.ReceiverID = contract
		withdraw.Memo = "WITHDRAW_TO:" + j.recipient
	}
	return append(actions, withdraw)
}

func (o *Orchestrator) onSubmissionDone(ctx context.Context, id string, res intent.Result[Submission]) {
	if id != o.activeSubmit {
		return
	}
	o.activeSubmit = ""
	o.result = res
	if err := res.Error(); err != nil {
		o.cfg.Metrics.ObserveSubmission(err)
	} else {
		o.cfg.Metrics.ObserveSubmission(nil)
	}

	switch {
	case o.request.Ready():
		o.state = StateWaitingQuote
	default:
		o.state = StateIdle
	}

	sub, ok := res.Value()
	if !ok {
		err := res.Error()
		o.log.Info("submission failed", slog.String("code", string(err.Code())), slog.String("err", err.Message()))
		if c := err.Code(); c == intent.CodePublishFailed || c == intent.CodeQuoteExpired {
			o.quote = intent.QuoteResult{}
		}
		o.cfg.Notify(Notification{Kind: NotifySubmitFailed, Err: err})
		o.resumeQuoting()
		return
	}

	o.log.Info("published", slog.String("handle", sub.Handle.String()))
	// The spent quote is not reused; the next submit waits for a fresh one.
	if !o.localQuote {
		o.quote = intent.QuoteResult{}
	}
	o.track(ctx, sub, nil)
	o.resumeQuoting()
}

// track spawns the tracker for sub and records it. A nil source selects the
// default one for the handle kind.
func (o *Orchestrator) track(ctx context.Context, sub Submission, source tracker.StatusSource) {
	o.startTracker(ctx, sub, source)
	if o.cfg.History != nil {
		if err := o.cfg.History.Put(ctx, o.cfg.UserID, historyRecord(sub, "published", o.cfg.Now())); err != nil {
			o.log.Warn("failed to record submission", slog.Any("err", err))
		}
	}
	o.cfg.Notify(Notification{Kind: NotifyPublished, Submission: &sub})
}

func (o *Orchestrator) resumeQuoting() {
	if o.localQuote || !o.request.Ready() {
		return
	}
	o.quoter.Resume()
}

func (o *Orchestrator) startTracker(ctx context.Context, sub Submission, source tracker.StatusSource) {
	params := tracker.Params{
		Handle:      sub.Handle,
		Operation:   sub.Kind,
		TokenIn:     sub.TokenIn,
		TokenOut:    sub.TokenOut,
		BridgeChain: sub.BridgeChain,
	}
	opts := []tracker.Option{
		tracker.WithEventHandler(func(e tracker.Event) { o.mailbox.Send(trackerEventMsg{event: e}) }),
		tracker.WithObserver(func(s tracker.Snapshot) { o.mailbox.Send(trackerUpdateMsg{snap: s}) }),
	}
	if o.cfg.PollInterval > 0 {
		opts = append(opts, tracker.WithPollInterval(o.cfg.PollInterval))
	}
	if o.cfg.MaxPollFailures > 0 {
		opts = append(opts, tracker.WithMaxFailures(o.cfg.MaxPollFailures))
	}

	var classify tracker.Classifier
	switch sub.Handle.Kind {
	case intent.HandleDepositTx:
		classify = tracker.ClassifyDepositStatus
	case intent.HandleDepositAddress:
		if source == nil {
			source = o.cfg.OneClick
		}
		classify = tracker.ClassifyOneClickStatus
		params.IntentHash = sub.IntentHashes[0]
		opts = append(opts, tracker.WithDepositNotifier(o.cfg.OneClick))
		if o.cfg.Waiter != nil {
			opts = append(opts, tracker.WithSettlementWaiter(o.cfg.Waiter))
		}
	default:
		if source == nil {
			source = o.cfg.IntentStatus
		}
		classify = tracker.ClassifyIntentStatus
		if o.cfg.Bridge != nil {
			opts = append(opts, tracker.WithBridge(o.cfg.Bridge, o.cfg.BridgeBackoff))
		}
	}

	t := tracker.New(params, countingSource{source: source, metrics: o.cfg.Metrics}, classify, opts...)
	if err := o.trackers.Spawn(ctx, sub.Handle.Value, t, t.Run); err != nil {
		o.log.Error("failed to start tracker", slog.String("handle", sub.Handle.String()), slog.Any("err", err))
		return
	}
	o.published[sub.Handle.Value] = sub
	o.trackerSnaps[sub.Handle.Value] = t.Snapshot()
	o.cfg.Metrics.TrackerStarted()
}
