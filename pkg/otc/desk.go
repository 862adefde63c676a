// Package otc creates, fills and cancels peer-to-peer deals and gifts. A deal
// is a maker-signed token_diff that a taker completes with the opposite diff.
package otc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"near-intents/pkg/history"
	"near-intents/pkg/intent"
	"near-intents/pkg/logger"
	"near-intents/pkg/signer"
)

// Signer signs a request for one account; *signer.Actor satisfies it.
type Signer interface {
	Sign(ctx context.Context, req signer.Request) intent.Result[intent.SignedPayload]
}

// Publisher submits signed payloads to the solver relay.
type Publisher interface {
	PublishIntents(ctx context.Context, payloads []intent.SignedPayload, quoteHashes []string) ([]string, error)
}

// NonceChecker reports whether a signer's nonce was already consumed on-chain.
type NonceChecker interface {
	IsNonceUsed(ctx context.Context, accountID string, nonce intent.Nonce) (bool, error)
}

// DefaultDealTTL is how long a shared deal or gift stays fillable.
const DefaultDealTTL = 7 * 24 * time.Hour

// Offer describes a new deal. A nil AmountOut makes it a gift: the maker only gives.
type Offer struct {
	TokenIn   string
	AmountIn  *big.Int
	TokenOut  string
	AmountOut *big.Int
	Memo      string
	// Expiry is how long the signed offer stays fillable; zero uses the desk default.
	Expiry    time.Duration
}

func (o Offer) kind() history.Kind {
	if o.AmountOut == nil || o.AmountOut.Sign() == 0 {
		return history.KindGift
	}
	return history.KindOTC
}

func (o Offer) deltas() intent.TokenDeltas {
	d := intent.TokenDeltas{o.TokenIn: new(big.Int).Neg(o.AmountIn)}
	if o.kind() == history.KindOTC {
		d = d.Add(intent.TokenDeltas{o.TokenOut: new(big.Int).Set(o.AmountOut)})
	}
	return d
}

// Deal is an opened share.
type Deal struct {
	TradeID  string
	Kind     history.Kind
	Maker    string
	Diff     intent.TokenDeltas
	Deadline time.Time
	Payload  intent.SignedPayload
}

// Status values stored on records.
const (
	StatusOpen      = "open"
	StatusFilled    = "filled"
	StatusCancelled = "cancelled"
)

type Desk struct {
	store     history.Store
	publisher Publisher
	nonces    NonceChecker
	ttl       time.Duration
	now       func() time.Time
	log       *slog.Logger
}

type Option func(*Desk)

// WithDealTTL sets the expiry used for offers that do not carry one.
func WithDealTTL(d time.Duration) Option {
	return func(desk *Desk) {
		if d > 0 {
			desk.ttl = d
		}
	}
}

func NewDesk(store history.Store, publisher Publisher, nonces NonceChecker, opts ...Option) *Desk {
	d := &Desk{
		store:     store,
		publisher: publisher,
		nonces:    nonces,
		ttl:       DefaultDealTTL,
		now:       time.Now,
		log:       logger.Named("otc"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Create signs offer as the maker, seals the payload and records it.
func (d *Desk) Create(ctx context.Context, maker Signer, userID string, offer Offer) (Share, error) {
	if offer.AmountIn == nil || offer.AmountIn.Sign() <= 0 || offer.TokenIn == "" {
		return Share{}, errors.New("offer needs a positive amount of a token to give")
	}

	expiry := offer.Expiry
	if expiry <= 0 {
		expiry = d.ttl
	}
	res := maker.Sign(ctx, signer.Request{
		Deltas:   offer.deltas(),
		Memo:     offer.Memo,
		Deadline: d.now().Add(expiry),
	})
	payload, ok := res.Value()
	if !ok {
		return Share{}, res.Error()
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Share{}, fmt.Errorf("failed to encode payload: %w", err)
	}
	sealed, pkey, iv, err := seal(raw)
	if err != nil {
		return Share{}, err
	}

	share := Share{TradeID: uuid.NewString(), MultiPayload: sealed, PKey: pkey, IV: iv}
	rec := history.Record{
		TradeID:      share.TradeID,
		Kind:         offer.kind(),
		MultiPayload: sealed,
		PKey:         pkey,
		IV:           iv,
		TokenIn:      offer.TokenIn,
		TokenOut:     offer.TokenOut,
		Status:       StatusOpen,
		UpdatedAt:    d.now().UTC(),
	}
	if err := d.store.Put(ctx, userID, rec); err != nil {
		return Share{}, err
	}

	d.log.Info("deal created", slog.String("trade_id", share.TradeID), slog.String("kind", string(rec.Kind)))
	return share, nil
}

// Open decrypts a share and reads the maker's diff.
func (d *Desk) Open(share Share) (Deal, error) {
	raw, err := open(share)
	if err != nil {
		return Deal{}, err
	}

	var payload intent.SignedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Deal{}, fmt.Errorf("invalid deal payload: %w", err)
	}
	msg, err := readMessage(payload.Message)
	if err != nil {
		return Deal{}, err
	}
	if payload.SignerID == "" {
		payload.SignerID = msg.signerID
	}

	kind := history.KindOTC
	if len(msg.diff) == 1 {
		kind = history.KindGift
	}
	return Deal{
		TradeID:  share.TradeID,
		Kind:     kind,
		Maker:    payload.SignerID,
		Diff:     msg.diff,
		Deadline: msg.deadline,
		Payload:  payload,
	}, nil
}

// Fill completes a deal as taker. The maker's deadline and nonce are checked
// first since the cached payload is worthless once either is spent.
func (d *Desk) Fill(ctx context.Context, taker Signer, userID string, share Share) ([]string, error) {
	deal, err := d.Open(share)
	if err != nil {
		return nil, err
	}

	if !deal.Deadline.IsZero() && !d.now().Before(deal.Deadline) {
		return nil, intent.NewError(intent.CodeDealExpired, "deal expired at "+deal.Deadline.UTC().Format(time.RFC3339))
	}

	used, err := d.nonces.IsNonceUsed(ctx, deal.Maker, deal.Payload.Nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to check maker nonce: %w", err)
	}
	if used {
		return nil, intent.NewError(intent.CodeNonceAlreadyUsed, "deal was already filled or cancelled")
	}

	res := taker.Sign(ctx, signer.Request{Deltas: deal.Diff.Negate()})
	counter, ok := res.Value()
	if !ok {
		return nil, res.Error()
	}

	hashes, err := d.publisher.PublishIntents(ctx, []intent.SignedPayload{deal.Payload, counter}, nil)
	if err != nil {
		return nil, err
	}

	rec := history.Record{
		TradeID:   deal.TradeID,
		Kind:      deal.Kind,
		Status:    StatusFilled,
		UpdatedAt: d.now().UTC(),
	}
	if len(hashes) > 0 {
		rec.Handle = hashes[len(hashes)-1]
	}
	if err := d.store.Put(ctx, userID, rec); err != nil {
		d.log.Warn("failed to record filled deal", slog.String("trade_id", deal.TradeID), slog.Any("err", err))
	}
	return hashes, nil
}

// Cancel consumes the maker's nonce with an empty diff so the shared payload
// can no longer be filled.
func (d *Desk) Cancel(ctx context.Context, maker Signer, userID, tradeID string) error {
	rec, err := d.store.Get(ctx, userID, tradeID)
	if err != nil {
		return err
	}
	if rec.Status != StatusOpen {
		return fmt.Errorf("deal %s is %s", tradeID, rec.Status)
	}

	deal, err := d.Open(Share{TradeID: tradeID, MultiPayload: rec.MultiPayload, PKey: rec.PKey, IV: rec.IV})
	if err != nil {
		return err
	}

	res := maker.Sign(ctx, signer.Request{Deltas: intent.TokenDeltas{}, Nonce: deal.Payload.Nonce})
	payload, ok := res.Value()
	if !ok {
		return res.Error()
	}
	if _, err := d.publisher.PublishIntents(ctx, []intent.SignedPayload{payload}, nil); err != nil {
		return err
	}

	rec.Status = StatusCancelled
	rec.UpdatedAt = d.now().UTC()
	return d.store.Put(ctx, userID, rec)
}

// List returns the user's deals and gifts, newest first.
func (d *Desk) List(ctx context.Context, userID string) ([]history.Record, error) {
	all, err := d.store.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, rec := range all {
		if rec.Kind == history.KindOTC || rec.Kind == history.KindGift {
			out = append(out, rec)
		}
	}
	return out, nil
}

type signedMessage struct {
	SignerID string `json:"signer_id"`
	Deadline string `json:"deadline"`
	Intents  []struct {
		Intent string            `json:"intent"`
		Diff   map[string]string `json:"diff"`
	} `json:"intents"`
}

type makerMessage struct {
	signerID string
	deadline time.Time
	diff     intent.TokenDeltas
}

func readMessage(message string) (makerMessage, error) {
	var msg signedMessage
	if err := json.Unmarshal([]byte(message), &msg); err != nil {
		return makerMessage{}, fmt.Errorf("invalid signed message: %w", err)
	}

	out := makerMessage{signerID: msg.SignerID}
	if msg.Deadline != "" {
		deadline, err := time.Parse(time.RFC3339Nano, msg.Deadline)
		if err != nil {
			return makerMessage{}, fmt.Errorf("invalid deadline %q: %w", msg.Deadline, err)
		}
		out.deadline = deadline
	}

	diff := intent.TokenDeltas{}
	for _, in := range msg.Intents {
		if in.Intent != "token_diff" {
			continue
		}
		for asset, amount := range in.Diff {
			v, ok := new(big.Int).SetString(amount, 10)
			if !ok {
				return makerMessage{}, fmt.Errorf("invalid amount %q for %s", amount, asset)
			}
			diff = diff.Add(intent.TokenDeltas{asset: v})
		}
	}
	if len(diff) == 0 {
		return makerMessage{}, errors.New("signed message has no token diff")
	}
	out.diff = diff
	return out, nil
}
