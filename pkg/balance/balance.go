// Package balance owns the user's deposited balances for one orchestrator.
package balance

import (
	"context"
	"log/slog"
	"math/big"
	"sync/atomic"
	"time"

	"near-intents/pkg/actor"
	"near-intents/pkg/logger"
)

// Oracle reports deposited balances of an account.
type Oracle interface {
	DepositedBalances(ctx context.Context, accountID string, tokenIDs []string) (map[string]*big.Int, error)
}

// Snapshot is immutable once published. Readers must not modify Balances.
type Snapshot struct {
	AccountID string
	Balances  map[string]*big.Int
	UpdatedAt time.Time
	// Err is the last refresh failure; Balances still hold the last good read.
	Err error
}

// Get returns a copy of the balance of token, zero when unknown.
func (s Snapshot) Get(token string) *big.Int {
	if v, ok := s.Balances[token]; ok && v != nil {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// Covers reports whether the balance of token is at least amount.
func (s Snapshot) Covers(token string, amount *big.Int) bool {
	if amount == nil {
		return true
	}
	return s.Get(token).Cmp(amount) >= 0
}

type refresh struct {
	tokens []string
	done   chan Snapshot
}

// Actor serializes refreshes and publishes snapshots atomically.
type Actor struct {
	oracle    Oracle
	accountID string
	tokens    []string
	onUpdate  func(Snapshot)
	log       *slog.Logger

	mailbox  *actor.Mailbox[refresh]
	snapshot atomic.Pointer[Snapshot]
}

func New(oracle Oracle, accountID string, tokens []string, onUpdate func(Snapshot)) *Actor {
	a := &Actor{
		oracle:    oracle,
		accountID: accountID,
		tokens:    tokens,
		onUpdate:  onUpdate,
		log:       logger.Named("balance").With(slog.String("account", accountID)),
		mailbox:   actor.NewMailbox[refresh](),
	}
	a.snapshot.Store(&Snapshot{AccountID: accountID, Balances: map[string]*big.Int{}})
	return a
}

func (a *Actor) Snapshot() Snapshot {
	return *a.snapshot.Load()
}

// Refresh asks for a new read of the tracked tokens plus extra. It never blocks.
func (a *Actor) Refresh(extra ...string) {
	a.mailbox.Send(refresh{tokens: extra})
}

// RefreshAndWait refreshes and returns the resulting snapshot.
func (a *Actor) RefreshAndWait(ctx context.Context, extra ...string) (Snapshot, error) {
	done := make(chan Snapshot, 1)
	if !a.mailbox.Send(refresh{tokens: extra, done: done}) {
		return a.Snapshot(), context.Canceled
	}
	select {
	case <-ctx.Done():
		return a.Snapshot(), ctx.Err()
	case snap := <-done:
		return snap, nil
	}
}

// Run serves refresh requests until ctx is done.
func (a *Actor) Run(ctx context.Context) error {
	defer a.mailbox.Close()
	for {
		req, ok := a.mailbox.Receive(ctx)
		if !ok {
			return ctx.Err()
		}
		snap := a.refresh(ctx, req.tokens)
		if req.done != nil {
			req.done <- snap
		}
	}
}

func (a *Actor) refresh(ctx context.Context, extra []string) Snapshot {
	for _, token := range extra {
		if !contains(a.tokens, token) {
			a.tokens = append(a.tokens, token)
		}
	}

	prev := a.Snapshot()
	next := Snapshot{AccountID: a.accountID, Balances: prev.Balances, UpdatedAt: prev.UpdatedAt}

	if len(a.tokens) > 0 {
		balances, err := a.oracle.DepositedBalances(ctx, a.accountID, a.tokens)
		if err != nil {
			a.log.Warn("balance refresh failed", slog.Any("err", err))
			next.Err = err
		} else {
			next.Balances = balances
			next.UpdatedAt = time.Now()
		}
	}

	a.snapshot.Store(&next)
	if a.onUpdate != nil {
		a.onUpdate(next)
	}
	return next
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
