package signer

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gowebpki/jcs"

	"near-intents/pkg/intent"
)

// DefaultVerifyingContract is the intents contract every message is bound to.
const DefaultVerifyingContract = "intents.near"

// MinMessageBytes is the shortest canonical message some ed25519 signer
// firmware accepts. Shorter messages get a message_padding field.
const MinMessageBytes = 256

const paddingText = "This field pads the message to the minimum length accepted by the signing device and carries no meaning. "

// Request is what a caller asks to have signed.
type Request struct {
	// Deltas become a single token_diff intent unless Actions is set.
	Deltas   intent.TokenDeltas
	Referral string
	Memo     string
	Actions  []intent.Action

	// Nonce is reused when set, e.g. to cancel an OTC offer.
	Nonce    intent.Nonce
	Deadline time.Time
}

func (r Request) actions() []intent.Action {
	if len(r.Actions) > 0 {
		return r.Actions
	}
	return []intent.Action{intent.TokenDiff{Diff: r.Deltas, Referral: r.Referral, Memo: r.Memo}}
}

// Message is a built, not yet signed, intent message.
type Message struct {
	Wallet   intent.WalletMessage
	SignerID string
	Nonce    intent.Nonce
	Deadline time.Time
}

type messageBody struct {
	SignerID          string           `json:"signer_id"`
	VerifyingContract string           `json:"verifying_contract,omitempty"`
	Deadline          string           `json:"deadline"`
	Nonce             string           `json:"nonce,omitempty"`
	Intents           []map[string]any `json:"intents"`
	Padding           string           `json:"message_padding,omitempty"`
}

// BuildMessage renders the canonical message for id. It is pure: the same
// identity, contract, nonce, deadline and actions always give the same bytes.
// req.Nonce and req.Deadline must be set.
func BuildMessage(id intent.Identity, contract string, req Request) (Message, error) {
	if req.Nonce.IsZero() {
		return Message{}, fmt.Errorf("message nonce is required")
	}
	if req.Deadline.IsZero() {
		return Message{}, fmt.Errorf("message deadline is required")
	}
	if contract == "" {
		contract = DefaultVerifyingContract
	}

	actions := req.actions()
	intents := make([]map[string]any, 0, len(actions))
	for _, a := range actions {
		intents = append(intents, a.Body())
	}

	standard := id.Chain.Standard()
	body := messageBody{
		SignerID: id.SignerID,
		Deadline: req.Deadline.UTC().Format("2006-01-02T15:04:05.000Z"),
		Intents:  intents,
	}
	// NEP-413 carries nonce and recipient outside the message.
	if standard != intent.StandardNEP413 {
		body.VerifyingContract = contract
		body.Nonce = req.Nonce.String()
	}

	raw, err := canonical(body)
	if err != nil {
		return Message{}, err
	}
	if floor := minBytes(standard); len(raw) < floor {
		body.Padding = padding(floor - len(raw) - len(`,"message_padding":""`))
		if raw, err = canonical(body); err != nil {
			return Message{}, err
		}
	}

	msg := Message{
		Wallet:   intent.WalletMessage{Standard: standard, Bytes: raw},
		SignerID: id.SignerID,
		Nonce:    req.Nonce,
		Deadline: req.Deadline.UTC(),
	}
	if standard == intent.StandardNEP413 {
		msg.Wallet.NEP413 = &intent.NEP413Payload{
			Message:   string(raw),
			Nonce:     req.Nonce,
			Recipient: contract,
		}
	}
	return msg, nil
}

func canonical(body messageBody) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode intent message: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize intent message: %w", err)
	}
	return out, nil
}

func minBytes(standard intent.Standard) int {
	if standard == intent.StandardRawEd25519 {
		return MinMessageBytes
	}
	return 0
}

func padding(n int) string {
	if n < 1 {
		n = 1
	}
	text := strings.Repeat(paddingText, n/len(paddingText)+1)[:n]
	if strings.HasSuffix(text, " ") {
		text = text[:n-1] + "."
	}
	return text
}
