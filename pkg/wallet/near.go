package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"near-intents/pkg/intent"
)

// NearWallet signs NEP-413 payloads with a full access key of a NEAR account.
type NearWallet struct {
	accountID  string
	privateKey ed25519.PrivateKey
}

// NewNearWallet parses an "ed25519:<base58>" secret key. An empty accountID
// selects the implicit account of the key.
func NewNearWallet(accountID, secretKey string) (*NearWallet, error) {
	raw, err := intent.DecodeEd25519(secretKey)
	if err != nil {
		return nil, err
	}

	var privateKey ed25519.PrivateKey
	switch len(raw) {
	case ed25519.PrivateKeySize:
		privateKey = ed25519.PrivateKey(raw)
	case ed25519.SeedSize:
		privateKey = ed25519.NewKeyFromSeed(raw)
	default:
		return nil, fmt.Errorf("invalid ed25519 secret key length %d", len(raw))
	}

	if accountID == "" {
		accountID = hex.EncodeToString(privateKey.Public().(ed25519.PublicKey))
	}
	return &NearWallet{accountID: accountID, privateKey: privateKey}, nil
}

func (w *NearWallet) Identity() intent.Identity {
	return intent.Identity{
		Chain:     intent.ChainNEAR,
		SignerID:  w.accountID,
		PublicKey: w.publicKey(),
	}
}

func (w *NearWallet) SignMessage(_ context.Context, msg intent.WalletMessage) (*intent.SignatureResult, error) {
	if msg.Standard != intent.StandardNEP413 || msg.NEP413 == nil {
		return nil, fmt.Errorf("near wallet cannot sign %s messages", msg.Standard)
	}

	hash := msg.NEP413.Hash()
	return &intent.SignatureResult{
		Standard:      intent.StandardNEP413,
		Signature:     ed25519.Sign(w.privateKey, hash[:]),
		PublicKey:     w.publicKey(),
		SignerAddress: w.accountID,
	}, nil
}

func (w *NearWallet) publicKey() []byte {
	return []byte(w.privateKey.Public().(ed25519.PublicKey))
}
