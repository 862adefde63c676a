package intent

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// Standard is the signature scheme a wallet family signs with.
type Standard string

const (
	StandardNEP413     Standard = "nep413"
	StandardERC191     Standard = "erc191"
	StandardRawEd25519 Standard = "raw_ed25519"
)

// Chain is the wallet family of a signer.
type Chain string

const (
	ChainNEAR   Chain = "near"
	ChainEVM    Chain = "evm"
	ChainSolana Chain = "solana"
)

// Standard returns the signing standard used by wallets of chain c.
func (c Chain) Standard() Standard {
	switch c {
	case ChainEVM:
		return StandardERC191
	case ChainSolana:
		return StandardRawEd25519
	default:
		return StandardNEP413
	}
}

// Identity describes the account a wallet signs for.
type Identity struct {
	Chain     Chain
	SignerID  string
	PublicKey []byte
}

// nep413Tag is 2^31 + 413, the NEP-413 domain separator prefix.
const nep413Tag uint32 = 2147484061

// NEP413Payload is the structured payload NEAR wallets sign.
type NEP413Payload struct {
	Message     string
	Nonce       Nonce
	Recipient   string
	CallbackURL string
}

// Hash returns sha256(borsh(tag) || borsh(payload)).
func (p NEP413Payload) Hash() [32]byte {
	buf := make([]byte, 0, 64+len(p.Message)+len(p.Recipient))
	buf = binary.LittleEndian.AppendUint32(buf, nep413Tag)
	buf = appendBorshString(buf, p.Message)
	buf = append(buf, p.Nonce[:]...)
	buf = appendBorshString(buf, p.Recipient)
	if p.CallbackURL == "" {
		buf = append(buf, 0)
	} else {
		buf = append(buf, 1)
		buf = appendBorshString(buf, p.CallbackURL)
	}
	return sha256.Sum256(buf)
}

func appendBorshString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// WalletMessage is what a wallet is asked to sign. Bytes is the canonical
// message; NEP413 is set for NEAR wallets.
type WalletMessage struct {
	Standard Standard
	Bytes    []byte
	NEP413   *NEP413Payload
}

// SignatureResult is a wallet's answer. A nil *SignatureResult means the user declined.
type SignatureResult struct {
	Standard  Standard
	Signature []byte
	PublicKey []byte
	// SignerAddress is what the wallet claims to have signed with, e.g. an EVM address.
	SignerAddress string
}

// SignedPayload is the multi-payload published to the solver relay.
type SignedPayload struct {
	Standard  Standard
	SignerID  string
	Message   string
	Nonce     Nonce
	Recipient string
	PublicKey []byte
	Signature []byte
}

type signedPayloadJSON struct {
	Standard  Standard        `json:"standard"`
	Payload   json.RawMessage `json:"payload"`
	PublicKey string          `json:"public_key,omitempty"`
	Signature string          `json:"signature"`
}

type nep413PayloadJSON struct {
	Message   string `json:"message"`
	Nonce     string `json:"nonce"`
	Recipient string `json:"recipient"`
}

func (p SignedPayload) MarshalJSON() ([]byte, error) {
	out := signedPayloadJSON{Standard: p.Standard}
	var err error
	switch p.Standard {
	case StandardNEP413:
		out.Payload, err = json.Marshal(nep413PayloadJSON{
			Message:   p.Message,
			Nonce:     p.Nonce.String(),
			Recipient: p.Recipient,
		})
		out.PublicKey = EncodeEd25519(p.PublicKey)
		out.Signature = EncodeEd25519(p.Signature)
	case StandardRawEd25519:
		out.Payload, err = json.Marshal(p.Message)
		out.PublicKey = EncodeEd25519(p.PublicKey)
		out.Signature = EncodeEd25519(p.Signature)
	case StandardERC191:
		out.Payload, err = json.Marshal(p.Message)
		out.Signature = "secp256k1:" + base58.Encode(p.Signature)
	default:
		return nil, fmt.Errorf("unsupported standard %q", p.Standard)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

func (p *SignedPayload) UnmarshalJSON(data []byte) error {
	var in signedPayloadJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	p.Standard = in.Standard
	switch in.Standard {
	case StandardNEP413:
		var body nep413PayloadJSON
		if err := json.Unmarshal(in.Payload, &body); err != nil {
			return fmt.Errorf("invalid nep413 payload: %w", err)
		}
		nonce, err := ParseNonce(body.Nonce)
		if err != nil {
			return err
		}
		p.Message, p.Nonce, p.Recipient = body.Message, nonce, body.Recipient
	case StandardRawEd25519, StandardERC191:
		if err := json.Unmarshal(in.Payload, &p.Message); err != nil {
			return fmt.Errorf("invalid %s payload: %w", in.Standard, err)
		}
	default:
		return fmt.Errorf("unsupported standard %q", in.Standard)
	}

	var err error
	if in.PublicKey != "" {
		if p.PublicKey, err = DecodeEd25519(in.PublicKey); err != nil {
			return err
		}
	}
	sig := in.Signature
	if i := strings.IndexByte(sig, ':'); i >= 0 {
		sig = sig[i+1:]
	}
	p.Signature, err = base58.Decode(sig)
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}
	return nil
}

// EncodeEd25519 renders key material as "ed25519:<base58>".
func EncodeEd25519(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return "ed25519:" + base58.Encode(b)
}

// DecodeEd25519 parses "ed25519:<base58>" or bare base58.
func DecodeEd25519(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "ed25519:")
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid ed25519 key encoding: %w", err)
	}
	return b, nil
}
