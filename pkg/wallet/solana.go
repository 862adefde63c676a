package wallet

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"near-intents/pkg/intent"
)

// SolanaWallet signs raw ed25519 messages with a Solana keypair. Its intents
// account is the hex encoded public key.
type SolanaWallet struct {
	privateKey solana.PrivateKey
}

// NewSolanaWallet parses a base58 keypair as exported by Solana wallets.
func NewSolanaWallet(privateKeyBase58 string) (*SolanaWallet, error) {
	privateKey, err := solana.PrivateKeyFromBase58(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &SolanaWallet{privateKey: privateKey}, nil
}

func (w *SolanaWallet) Identity() intent.Identity {
	pub := w.privateKey.PublicKey()
	return intent.Identity{
		Chain:     intent.ChainSolana,
		SignerID:  hex.EncodeToString(pub.Bytes()),
		PublicKey: pub.Bytes(),
	}
}

// Address returns the base58 Solana address.
func (w *SolanaWallet) Address() string {
	return w.privateKey.PublicKey().String()
}

func (w *SolanaWallet) SignMessage(_ context.Context, msg intent.WalletMessage) (*intent.SignatureResult, error) {
	if msg.Standard != intent.StandardRawEd25519 {
		return nil, fmt.Errorf("solana wallet cannot sign %s messages", msg.Standard)
	}

	signature, err := w.privateKey.Sign(msg.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	return &intent.SignatureResult{
		Standard:  intent.StandardRawEd25519,
		Signature: signature[:],
		PublicKey: w.privateKey.PublicKey().Bytes(),
	}, nil
}
