// Package signer builds intent messages, asks a wallet to sign them and
// validates what comes back.
package signer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"near-intents/pkg/actor"
	"near-intents/pkg/intent"
	"near-intents/pkg/logger"
)

// Wallet is the external signing capability. A nil result with a nil error
// means the user declined.
type Wallet interface {
	Identity() intent.Identity
	SignMessage(ctx context.Context, msg intent.WalletMessage) (*intent.SignatureResult, error)
}

// KeyRegistry answers whether a public key may sign for an account.
type KeyRegistry interface {
	HasPublicKey(ctx context.Context, accountID string, publicKey []byte) (bool, error)
}

// State is the sign actor's top-level state.
type State string

const (
	StateIdle               State = "idle"
	StateSigning            State = "signing"
	StateVerifyingSignature State = "verifying_signature"
	StateVerifyingPublicKey State = "verifying_public_key"
	StateDone               State = "done"
)

// KeyState is the nested public key verification state.
type KeyState string

const (
	KeyChecking             KeyState = "checking"
	KeyAwaitingRegistration KeyState = "awaiting_registration"
)

// Snapshot is what a host renders while signing is in progress.
type Snapshot struct {
	State     State
	KeyState  KeyState
	PublicKey string
	Err       *intent.Error
}

type keyCommand int

const (
	cmdConfirmKey keyCommand = iota
	cmdAbort
)

// Actor signs one request at a time for a single wallet.
type Actor struct {
	wallet   Wallet
	registry KeyRegistry
	contract string
	ttl      time.Duration
	now      func() time.Time
	observer func(Snapshot)
	log      *slog.Logger

	commands *actor.Mailbox[keyCommand]

	mu   sync.Mutex
	snap Snapshot
}

// Option configures an Actor.
type Option func(*Actor)

// WithKeyRegistry enables the public key verification step for NEAR accounts.
func WithKeyRegistry(r KeyRegistry) Option {
	return func(a *Actor) { a.registry = r }
}

func WithVerifyingContract(contract string) Option {
	return func(a *Actor) { a.contract = contract }
}

// WithDeadline sets how long a signed message stays valid when the request has no deadline.
func WithDeadline(ttl time.Duration) Option {
	return func(a *Actor) { a.ttl = ttl }
}

func WithClock(now func() time.Time) Option {
	return func(a *Actor) { a.now = now }
}

// WithObserver receives every state change.
func WithObserver(fn func(Snapshot)) Option {
	return func(a *Actor) { a.observer = fn }
}

func New(wallet Wallet, opts ...Option) *Actor {
	a := &Actor{
		wallet:   wallet,
		contract: DefaultVerifyingContract,
		ttl:      intent.DefaultDeadline,
		now:      time.Now,
		log:      logger.Named("signer"),
		commands: actor.NewMailbox[keyCommand](),
		snap:     Snapshot{State: StateIdle},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Actor) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snap
}

// ConfirmPublicKey tells an actor awaiting registration that the host has
// registered the key on-chain. Signing resumes after a re-check.
func (a *Actor) ConfirmPublicKey() {
	a.commands.Send(cmdConfirmKey)
}

// Abort gives up on a pending public key registration.
func (a *Actor) Abort() {
	a.commands.Send(cmdAbort)
}

// Sign builds the message for req, has the wallet sign it and verifies the
// signature. A fresh nonce is drawn unless req carries one.
func (a *Actor) Sign(ctx context.Context, req Request) intent.Result[intent.SignedPayload] {
	payload, err := a.sign(ctx, req)
	a.update(func(s *Snapshot) {
		s.State = StateDone
		s.KeyState = ""
		s.Err = err
	})
	if err != nil {
		a.log.Info("signing failed", slog.String("code", string(err.Code())), slog.String("err", err.Message()))
		return intent.Err[intent.SignedPayload](err)
	}
	return intent.Ok(payload)
}

func (a *Actor) sign(ctx context.Context, req Request) (intent.SignedPayload, *intent.Error) {
	a.drainCommands()
	id := a.wallet.Identity()

	if req.Nonce.IsZero() {
		nonce, err := intent.NewNonce()
		if err != nil {
			return intent.SignedPayload{}, intent.WrapError(intent.CodeSigningFailed, err, "failed to draw nonce")
		}
		req.Nonce = nonce
	}
	if req.Deadline.IsZero() {
		req.Deadline = intent.Deadline(a.now(), a.ttl)
	}

	msg, err := BuildMessage(id, a.contract, req)
	if err != nil {
		return intent.SignedPayload{}, intent.WrapError(intent.CodeSigningFailed, err, "failed to build message")
	}

	a.update(func(s *Snapshot) { *s = Snapshot{State: StateSigning} })
	res, err := a.wallet.SignMessage(ctx, msg.Wallet)
	switch {
	case errors.Is(err, intent.ErrPopupBlocked):
		return intent.SignedPayload{}, intent.WrapError(intent.CodePopupBlocked, err, "wallet window blocked")
	case err != nil:
		var coded *intent.Error
		if errors.As(err, &coded) {
			return intent.SignedPayload{}, coded
		}
		return intent.SignedPayload{}, intent.WrapError(intent.CodeSigningFailed, err, "wallet failed to sign")
	case res == nil:
		return intent.SignedPayload{}, intent.NewError(intent.CodeUserDidntSign, "user declined to sign")
	}

	a.update(func(s *Snapshot) { s.State = StateVerifyingSignature })
	if verr := Verify(id, msg, *res); verr != nil {
		return intent.SignedPayload{}, verr
	}

	if a.needsKeyCheck(id) {
		if kerr := a.verifyPublicKey(ctx, id.SignerID, res.PublicKey); kerr != nil {
			return intent.SignedPayload{}, kerr
		}
	}

	out := intent.SignedPayload{
		Standard:  msg.Wallet.Standard,
		SignerID:  id.SignerID,
		Message:   string(msg.Wallet.Bytes),
		Nonce:     msg.Nonce,
		PublicKey: res.PublicKey,
		Signature: res.Signature,
	}
	if msg.Wallet.NEP413 != nil {
		out.Recipient = msg.Wallet.NEP413.Recipient
	}
	return out, nil
}

// needsKeyCheck is true for named NEAR accounts, whose keys live on-chain.
// EVM and Solana signer ids are derived from the key itself.
func (a *Actor) needsKeyCheck(id intent.Identity) bool {
	return a.registry != nil && id.Chain == intent.ChainNEAR
}

func (a *Actor) verifyPublicKey(ctx context.Context, accountID string, pub []byte) *intent.Error {
	encoded := intent.EncodeEd25519(pub)
	for {
		a.update(func(s *Snapshot) {
			s.State = StateVerifyingPublicKey
			s.KeyState = KeyChecking
			s.PublicKey = encoded
		})

		ok, err := a.registry.HasPublicKey(ctx, accountID, pub)
		if err != nil {
			return intent.WrapError(intent.CodePublicKeyNotVerified, err, "failed to check public key")
		}
		if ok {
			return nil
		}

		a.log.Info("public key not registered", slog.String("account", accountID), slog.String("public_key", encoded))
		a.update(func(s *Snapshot) { s.KeyState = KeyAwaitingRegistration })

		cmd, received := a.commands.Receive(ctx)
		if !received {
			return intent.WrapError(intent.CodePublicKeyNotVerified, ctx.Err(), "public key registration abandoned")
		}
		if cmd == cmdAbort {
			return intent.NewError(intent.CodePublicKeyNotVerified, "public key registration aborted")
		}
	}
}

// drainCommands drops confirmations left over from an earlier request.
func (a *Actor) drainCommands() {
	for a.commands.Len() > 0 {
		if _, ok := a.commands.Receive(context.Background()); !ok {
			return
		}
	}
}

func (a *Actor) update(fn func(*Snapshot)) {
	a.mu.Lock()
	fn(&a.snap)
	snap := a.snap
	a.mu.Unlock()
	if a.observer != nil {
		a.observer(snap)
	}
}
