// Package quoter keeps a fresh quote flowing for the current form input.
package quoter

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"near-intents/pkg/actor"
	"near-intents/pkg/intent"
	"near-intents/pkg/logger"
)

// Provider returns a quote for a request. Failures are err results, not errors.
type Provider interface {
	GetQuote(ctx context.Context, req intent.QuoteRequest) intent.QuoteResult
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req intent.QuoteRequest) intent.QuoteResult

func (f ProviderFunc) GetQuote(ctx context.Context, req intent.QuoteRequest) intent.QuoteResult {
	return f(ctx, req)
}

// Emission is a quote pushed to the parent, tagged with the request it answers.
// Results for superseded requests are still emitted; the parent drops them.
type Emission struct {
	Params intent.QuoteRequest
	Result intent.QuoteResult
	Seq    uint64
}

// DefaultInterval is the pause between a quote arriving and the next request.
const DefaultInterval = time.Second

type message interface{ quoterMessage() }

type inputMsg struct{ params intent.QuoteRequest }
type pauseMsg struct{}
type resumeMsg struct{}
type tickMsg struct{ gen uint64 }
type arrivedMsg struct {
	gen    uint64
	params intent.QuoteRequest
	result intent.QuoteResult
}

func (inputMsg) quoterMessage()   {}
func (pauseMsg) quoterMessage()   {}
func (resumeMsg) quoterMessage()  {}
func (tickMsg) quoterMessage()    {}
func (arrivedMsg) quoterMessage() {}

// Quoter is the background quoting actor. Send it input with NewQuoteInput
// and drive it with Run.
type Quoter struct {
	provider Provider
	emit     func(Emission)
	interval time.Duration
	limiter  *rate.Limiter
	observe  func(intent.QuoteResult)
	log      *slog.Logger

	mailbox *actor.Mailbox[message]
	seq     atomic.Uint64
	calls   atomic.Int64

	// owned by Run
	params   intent.QuoteRequest
	gen      uint64
	active   bool
	inflight bool
}

type Option func(*Quoter)

// WithInterval sets the fixed delay between quote requests.
func WithInterval(d time.Duration) Option {
	return func(q *Quoter) { q.interval = d }
}

// WithRateLimit caps provider calls across input changes.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(q *Quoter) { q.limiter = rate.NewLimiter(r, burst) }
}

// WithResultObserver sees every quote before it is emitted.
func WithResultObserver(fn func(intent.QuoteResult)) Option {
	return func(q *Quoter) { q.observe = fn }
}

func New(provider Provider, emit func(Emission), opts ...Option) *Quoter {
	q := &Quoter{
		provider: provider,
		emit:     emit,
		interval: DefaultInterval,
		limiter:  rate.NewLimiter(rate.Inf, 1),
		log:      logger.Named("quoter"),
		mailbox:  actor.NewMailbox[message](),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// NewQuoteInput restarts the loop for params. Unready params stop it.
func (q *Quoter) NewQuoteInput(params intent.QuoteRequest) {
	q.mailbox.Send(inputMsg{params: params})
}

// Pause stops requesting quotes but keeps the current params.
func (q *Quoter) Pause() {
	q.mailbox.Send(pauseMsg{})
}

// Resume restarts the loop with the params held before Pause.
func (q *Quoter) Resume() {
	q.mailbox.Send(resumeMsg{})
}

// Calls returns how many provider calls were made.
func (q *Quoter) Calls() int64 {
	return q.calls.Load()
}

// Run processes messages until ctx is done.
func (q *Quoter) Run(ctx context.Context) error {
	defer q.mailbox.Close()
	for {
		msg, ok := q.mailbox.Receive(ctx)
		if !ok {
			return ctx.Err()
		}
		q.handle(ctx, msg)
	}
}

func (q *Quoter) handle(ctx context.Context, msg message) {
	switch m := msg.(type) {
	case inputMsg:
		q.gen++
		q.params = m.params
		q.active = m.params.Ready()
		if !q.active {
			q.log.Debug("quote input not ready, idling")
			return
		}
		q.request(ctx)

	case pauseMsg:
		q.gen++
		q.active = false

	case resumeMsg:
		if q.active || !q.params.Ready() {
			return
		}
		q.gen++
		q.active = true
		q.request(ctx)

	case tickMsg:
		if m.gen == q.gen && q.active && !q.inflight {
			q.request(ctx)
		}

	case arrivedMsg:
		if m.gen == q.gen {
			q.inflight = false
		}
		if q.observe != nil {
			q.observe(m.result)
		}
		q.emit(Emission{Params: m.params, Result: m.result, Seq: q.seq.Add(1)})
		if m.gen == q.gen && q.active {
			gen := m.gen
			time.AfterFunc(q.interval, func() { q.mailbox.Send(tickMsg{gen: gen}) })
		}
	}
}

// request starts one provider call for the current generation. The result
// comes back through the mailbox.
func (q *Quoter) request(ctx context.Context) {
	gen, params := q.gen, q.params
	q.inflight = true
	go func() {
		if err := q.limiter.Wait(ctx); err != nil {
			return
		}
		q.calls.Add(1)
		q.mailbox.Send(arrivedMsg{gen: gen, params: params, result: q.fetch(ctx, params)})
	}()
}

func (q *Quoter) fetch(ctx context.Context, params intent.QuoteRequest) (res intent.QuoteResult) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("quote provider panicked", slog.Any("panic", r))
			res = intent.QuoteFailure(intent.CodeQuoteProviderError, fmt.Sprintf("quote provider panicked: %v", r))
		}
	}()
	res = q.provider.GetQuote(ctx, params)
	if res.IsZero() {
		res = intent.QuoteFailure(intent.CodeNoQuotes, "")
	}
	return res
}
