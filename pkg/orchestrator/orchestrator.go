// Package orchestrator drives an operation from form input through quoting,
// signing and publishing, and supervises the settlement trackers it spawns.
package orchestrator

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"near-intents/pkg/actor"
	"near-intents/pkg/balance"
	"near-intents/pkg/bridge"
	"near-intents/pkg/history"
	"near-intents/pkg/intent"
	"near-intents/pkg/logger"
	"near-intents/pkg/metrics"
	"near-intents/pkg/parser"
	"near-intents/pkg/quoter"
	"near-intents/pkg/signer"
	"near-intents/pkg/tracker"
)

// State is the orchestrator's machine state.
type State string

const (
	StateIdle          State = "editing.idle"
	StateValidating    State = "editing.validating"
	StateWaitingQuote  State = "editing.waiting_quote"
	StateSubmitting    State = "submitting"
	StateSubmitting1CS State = "submitting_1cs"
)

// Editing reports whether the machine accepts input and submit.
func (s State) Editing() bool {
	return s == StateIdle || s == StateValidating || s == StateWaitingQuote
}

// Mode selects the execution path for swaps.
type Mode string

const (
	// ModeIntents signs the solver relay quote and publishes it.
	ModeIntents Mode = "intents"
	// ModeOneClick transfers to a 1Click deposit address.
	ModeOneClick Mode = "one_click"
)

// Signer signs a request; *signer.Actor satisfies it.
type Signer interface {
	Sign(ctx context.Context, req signer.Request) intent.Result[intent.SignedPayload]
}

// Publisher submits signed payloads to the solver relay.
type Publisher interface {
	PublishIntents(ctx context.Context, payloads []intent.SignedPayload, quoteHashes []string) ([]string, error)
}

// OneClick is the fast execution service.
type OneClick interface {
	ExecutableQuote(ctx context.Context, req intent.QuoteRequest) intent.QuoteResult
	tracker.StatusSource
	tracker.DepositNotifier
}

// Balances is the balance actor as seen by the orchestrator.
type Balances interface {
	Snapshot() balance.Snapshot
	Refresh(extra ...string)
}

type keyConfirmer interface {
	ConfirmPublicKey()
}

// Config wires collaborators. Provider, Signer, Publisher and IntentStatus are required.
type Config struct {
	Mode         Mode
	UserID       string
	Referral     string
	AppFees      []intent.AppFee
	Tokens       intent.TokenList
	Provider     quoter.Provider
	Signer       Signer
	Publisher    Publisher
	IntentStatus tracker.StatusSource
	Waiter       tracker.SettlementWaiter
	OneClick     OneClick
	Bridge       tracker.BridgeService
	POA          *bridge.POAClient
	Depositor    Depositor
	Balances     Balances
	History      history.Store
	Metrics      *metrics.Registry
	Notify       func(Notification)

	QuoteInterval   time.Duration
	PollInterval    time.Duration
	MaxPollFailures int
	BridgeBackoff   tracker.BackoffPolicy
	Now             func() time.Time
}

// Form is the merged user input.
type Form struct {
	Kind      intent.OperationKind
	TokenIn   string
	TokenOut  string
	Amount    string
	Recipient string
	DestChain string
}

// FormPatch carries the fields being changed; nil fields are kept.
type FormPatch struct {
	Kind      *intent.OperationKind
	TokenIn   *string
	TokenOut  *string
	Amount    *string
	Recipient *string
	DestChain *string
}

func (f Form) merge(p FormPatch) Form {
	if p.Kind != nil {
		f.Kind = *p.Kind
	}
	if p.TokenIn != nil {
		f.TokenIn = *p.TokenIn
	}
	if p.TokenOut != nil {
		f.TokenOut = *p.TokenOut
	}
	if p.Amount != nil {
		f.Amount = *p.Amount
	}
	if p.Recipient != nil {
		f.Recipient = *p.Recipient
	}
	if p.DestChain != nil {
		f.DestChain = *p.DestChain
	}
	return f
}

// Submission is the outcome of a successful publish.
type Submission struct {
	ID           string
	Kind         intent.OperationKind
	Handle       intent.Handle
	IntentHashes []string
	TokenIn      string
	TokenOut     string
	BridgeChain  string
	Quote        intent.Quote
	Nonce        intent.Nonce
	SubmittedAt  time.Time
}

// NotificationKind is the closed set of events sent to the host.
type NotificationKind string

const (
	NotifyPublished       NotificationKind = "PUBLISHED"
	NotifySettled         NotificationKind = "SETTLED"
	NotifyOneClickSettled NotificationKind = "ONE_CLICK_SETTLED"
	NotifySubmitFailed    NotificationKind = "SUBMIT_FAILED"
	NotifyTrackerUpdated  NotificationKind = "TRACKER_UPDATED"
)

type Notification struct {
	Kind       NotificationKind
	Submission *Submission
	Event      *tracker.Event
	Tracker    *tracker.Snapshot
	Err        *intent.Error
}

// Snapshot is a consistent copy of the orchestrator for rendering.
type Snapshot struct {
	State   State
	Form    Form
	Request intent.QuoteRequest
	Quote   intent.QuoteResult
	// Result is the last submission outcome, zero until the first one ends.
	Result intent.Result[Submission]
	// InsufficientBalance is set when known balances do not cover the amount.
	InsufficientBalance bool
	Trackers            map[string]tracker.Snapshot
	Balances            balance.Snapshot
}

type message interface{ orchestratorMessage() }

type inputMsg struct{ patch FormPatch }
type submitMsg struct{ reply chan bool }
type validatedMsg struct{ gen uint64 }
type quoteMsg struct{ em quoter.Emission }
type submissionDoneMsg struct {
	id     string
	result intent.Result[Submission]
}
type trackerEventMsg struct{ event tracker.Event }
type trackerUpdateMsg struct{ snap tracker.Snapshot }
type trackerExitMsg struct {
	key string
	err error
}

func (inputMsg) orchestratorMessage()          {}
func (submitMsg) orchestratorMessage()         {}
func (validatedMsg) orchestratorMessage()      {}
func (quoteMsg) orchestratorMessage()          {}
func (submissionDoneMsg) orchestratorMessage() {}
func (trackerEventMsg) orchestratorMessage()   {}
func (trackerUpdateMsg) orchestratorMessage()  {}
func (trackerExitMsg) orchestratorMessage()    {}

// Orchestrator is the root actor. All state below mailbox is owned by Run.
type Orchestrator struct {
	cfg Config
	log *slog.Logger

	quoter      *quoter.Quoter
	submissions *actor.Supervisor[string]
	trackers    *actor.Supervisor[*tracker.Tracker]
	mailbox     *actor.Mailbox[message]

	state        State
	form         Form
	request      intent.QuoteRequest
	quote        intent.QuoteResult
	result       intent.Result[Submission]
	insufficient bool
	localQuote   bool
	inputGen     uint64
	activeSubmit string
	published    map[string]Submission
	trackerSnaps map[string]tracker.Snapshot

	mu   sync.Mutex
	snap Snapshot
}

func New(cfg Config) *Orchestrator {
	if cfg.Mode == "" {
		cfg.Mode = ModeIntents
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Notify == nil {
		cfg.Notify = func(Notification) {}
	}
	if cfg.BridgeBackoff == (tracker.BackoffPolicy{}) {
		cfg.BridgeBackoff = tracker.DefaultBridgeBackoff
	}

	o := &Orchestrator{
		cfg:          cfg,
		log:          logger.Named("orchestrator"),
		mailbox:      actor.NewMailbox[message](),
		state:        StateIdle,
		form:         Form{Kind: intent.KindSwap},
		published:    make(map[string]Submission),
		trackerSnaps: make(map[string]tracker.Snapshot),
	}

	qopts := []quoter.Option{quoter.WithResultObserver(cfg.Metrics.ObserveQuote)}
	if cfg.QuoteInterval > 0 {
		qopts = append(qopts, quoter.WithInterval(cfg.QuoteInterval))
	}
	o.quoter = quoter.New(cfg.Provider, func(em quoter.Emission) {
		o.mailbox.Send(quoteMsg{em: em})
	}, qopts...)

	o.submissions = actor.NewSupervisor[string]("submission", func(key string, err error) {
		if err != nil {
			o.mailbox.Send(submissionDoneMsg{id: key, result: intent.Err[Submission](intent.AsError(err))})
		}
	})
	o.trackers = actor.NewSupervisor[*tracker.Tracker]("trackers", func(key string, err error) {
		o.mailbox.Send(trackerExitMsg{key: key, err: err})
	})

	o.publish()
	return o
}

// Input merges patch into the form. It never blocks. Input that arrives
// while a submission is in flight is dropped.
func (o *Orchestrator) Input(patch FormPatch) {
	o.mailbox.Send(inputMsg{patch: patch})
}

// Submit asks for a submission and reports whether the guard accepted it.
func (o *Orchestrator) Submit(ctx context.Context) bool {
	reply := make(chan bool, 1)
	o.mailbox.Send(submitMsg{reply: reply})
	select {
	case <-ctx.Done():
		return false
	case ok := <-reply:
		return ok
	}
}

// RetryTracker sends RETRY to the tracker for handle. Only trackers in error accept it.
func (o *Orchestrator) RetryTracker(handle string) bool {
	t, ok := o.trackers.Get(handle)
	if !ok {
		return false
	}
	return t.Retry()
}

// ConfirmPublicKey resumes a signer waiting for on-chain key registration.
func (o *Orchestrator) ConfirmPublicKey() {
	if c, ok := o.cfg.Signer.(keyConfirmer); ok {
		c.ConfirmPublicKey()
	}
}

// RefreshBalances asks the balance actor for a new read of the form tokens.
func (o *Orchestrator) RefreshBalances() {
	if o.cfg.Balances == nil {
		return
	}
	form := o.Snapshot().Form
	o.cfg.Balances.Refresh(nonEmpty(form.TokenIn, form.TokenOut)...)
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	snap := o.snap
	snap.Trackers = make(map[string]tracker.Snapshot, len(o.snap.Trackers))
	for k, v := range o.snap.Trackers {
		snap.Trackers[k] = v
	}
	if o.cfg.Balances != nil {
		snap.Balances = o.cfg.Balances.Snapshot()
	}
	return snap
}

// Run processes messages until ctx is done. Children are stopped with ctx.
func (o *Orchestrator) Run(ctx context.Context) error {
	quoterDone := make(chan struct{})
	go func() {
		defer close(quoterDone)
		_ = o.quoter.Run(ctx)
	}()
	defer func() {
		o.mailbox.Close()
		<-quoterDone
		o.submissions.Wait()
		o.trackers.Wait()
	}()

	for {
		msg, ok := o.mailbox.Receive(ctx)
		if !ok {
			return ctx.Err()
		}
		o.handle(ctx, msg)
		o.publish()
	}
}

func (o *Orchestrator) handle(ctx context.Context, msg message) {
	switch m := msg.(type) {
	case inputMsg:
		o.onInput(m.patch)
	case validatedMsg:
		o.onValidated(m.gen)
	case quoteMsg:
		o.onQuote(m.em)
	case submitMsg:
		m.reply <- o.onSubmit(ctx)
	case submissionDoneMsg:
		o.onSubmissionDone(ctx, m.id, m.result)
	case trackerUpdateMsg:
		snap := m.snap
		o.trackerSnaps[snap.Handle.Value] = snap
		o.cfg.Notify(Notification{Kind: NotifyTrackerUpdated, Tracker: &snap})
	case trackerEventMsg:
		o.onSettled(ctx, m.event)
	case trackerExitMsg:
		o.onTrackerExit(m.key, m.err)
	case trackMsg:
		o.track(ctx, m.sub, m.source)
	}
}

func (o *Orchestrator) onInput(patch FormPatch) {
	// The frozen submission keeps going; input waits for editing.
	if !o.state.Editing() {
		o.log.Debug("ignoring input while submitting")
		return
	}
	o.form = o.form.merge(patch)
	o.request = o.parse(o.form)
	o.quote = intent.QuoteResult{}
	o.localQuote = false
	o.inputGen++

	if !o.request.Ready() {
		o.state = StateIdle
		o.insufficient = false
		o.quoter.NewQuoteInput(o.request)
		return
	}
	o.state = StateValidating
	o.quoter.Pause()
	o.mailbox.Send(validatedMsg{gen: o.inputGen})
}

func (o *Orchestrator) onValidated(gen uint64) {
	if gen != o.inputGen || o.state != StateValidating {
		return
	}
	o.insufficient = o.checkInsufficient()
	o.state = StateWaitingQuote

	// A withdrawal of the held token needs no price.
	if o.form.Kind == intent.KindWithdraw && o.request.TokenIn == o.request.TokenOut {
		o.localQuote = true
		o.quote = intent.Ok(intent.Quote{
			TokenIn:   o.request.TokenIn,
			TokenOut:  o.request.TokenOut,
			AmountIn:  new(big.Int).Set(o.request.AmountIn),
			AmountOut: new(big.Int).Set(o.request.AmountIn),
			Deltas:    intent.TokenDeltas{},
		})
		o.quoter.NewQuoteInput(intent.QuoteRequest{})
		return
	}
	o.quoter.NewQuoteInput(o.request)
}

func (o *Orchestrator) onQuote(em quoter.Emission) {
	if o.localQuote || !em.Params.SameTarget(o.request) {
		o.log.Debug("dropping stale quote", slog.String("token_in", em.Params.TokenIn), slog.String("token_out", em.Params.TokenOut))
		return
	}
	o.quote = intent.PreferQuote(o.quote, em.Result)
}

func (o *Orchestrator) checkInsufficient() bool {
	if o.cfg.Balances == nil {
		return false
	}
	snap := o.cfg.Balances.Snapshot()
	if snap.UpdatedAt.IsZero() {
		return false
	}
	return !snap.Covers(o.request.TokenIn, o.request.AmountIn)
}

func (o *Orchestrator) parse(f Form) intent.QuoteRequest {
	req := intent.QuoteRequest{
		TokenIn:   f.TokenIn,
		TokenOut:  f.TokenOut,
		UserID:    o.cfg.UserID,
		Recipient: o.cfg.UserID,
		AppFees:   o.cfg.AppFees,
	}
	if decimals, ok := o.cfg.Tokens.Decimals(f.TokenIn); ok {
		req.AmountIn = parser.ParseAmount(f.Amount, decimals)
	}
	return req
}

func (o *Orchestrator) onSettled(ctx context.Context, e tracker.Event) {
	kind := NotifySettled
	if e.Kind == tracker.EventOneClickSettled {
		kind = NotifyOneClickSettled
	}
	o.cfg.Metrics.ObserveSettlement(string(tracker.StateSuccess))

	if o.cfg.Balances != nil {
		o.cfg.Balances.Refresh(nonEmpty(e.TokenIn, e.TokenOut)...)
	}
	if sub, ok := o.published[e.Handle.Value]; ok && o.cfg.History != nil {
		rec := historyRecord(sub, "settled", o.cfg.Now())
		rec.TxHash = e.TxHash
		if err := o.cfg.History.Put(ctx, o.cfg.UserID, rec); err != nil {
			o.log.Warn("failed to record settlement", slog.String("handle", e.Handle.Value), slog.Any("err", err))
		}
	}
	o.cfg.Notify(Notification{Kind: kind, Event: &e})
}

func (o *Orchestrator) onTrackerExit(key string, err error) {
	o.cfg.Metrics.TrackerStopped()
	delete(o.published, key)
	snap, ok := o.trackerSnaps[key]
	if !ok {
		return
	}
	if coded := intent.AsError(err); coded != nil && coded.Code() == intent.CodeActorCrashed {
		snap.State = tracker.StateError
		snap.Err = coded
		o.trackerSnaps[key] = snap
		o.cfg.Metrics.ObserveSettlement("crashed")
		return
	}
	if snap.State == tracker.StateNotValid {
		o.cfg.Metrics.ObserveSettlement(string(tracker.StateNotValid))
	}
}

func (o *Orchestrator) publish() {
	snap := Snapshot{
		State:               o.state,
		Form:                o.form,
		Request:             o.request,
		Quote:               o.quote,
		Result:              o.result,
		InsufficientBalance: o.insufficient,
		Trackers:            make(map[string]tracker.Snapshot, len(o.trackerSnaps)),
	}
	for k, v := range o.trackerSnaps {
		snap.Trackers[k] = v
	}
	o.mu.Lock()
	o.snap = snap
	o.mu.Unlock()
}

func nonEmpty(values ...string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func historyRecord(sub Submission, status string, now time.Time) history.Record {
	return history.Record{
		TradeID:   sub.ID,
		Kind:      recordKind(sub.Kind),
		Handle:    sub.Handle.String(),
		TokenIn:   sub.TokenIn,
		TokenOut:  sub.TokenOut,
		Status:    status,
		UpdatedAt: now.UTC(),
	}
}

func recordKind(kind intent.OperationKind) history.Kind {
	switch kind {
	case intent.KindWithdraw:
		return history.KindWithdraw
	case intent.KindDeposit:
		return history.KindDeposit
	case intent.KindGift:
		return history.KindGift
	case intent.KindOTCFill:
		return history.KindOTC
	}
	return history.KindSwap
}
