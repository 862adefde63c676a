package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"

	"near-intents/pkg/intent"
)

// EVMWallet signs ERC-191 personal messages with a local secp256k1 key.
// Its intents account is the lowercase 0x address.
type EVMWallet struct {
	privateKey *ecdsa.PrivateKey
	address    string
}

// NewEVMWallet parses a hex private key, with or without the 0x prefix.
func NewEVMWallet(privateKeyHex string) (*EVMWallet, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &EVMWallet{
		privateKey: privateKey,
		address:    strings.ToLower(crypto.PubkeyToAddress(privateKey.PublicKey).Hex()),
	}, nil
}

func (w *EVMWallet) Identity() intent.Identity {
	return intent.Identity{
		Chain:     intent.ChainEVM,
		SignerID:  w.address,
		PublicKey: crypto.FromECDSAPub(&w.privateKey.PublicKey),
	}
}

func (w *EVMWallet) SignMessage(_ context.Context, msg intent.WalletMessage) (*intent.SignatureResult, error) {
	if msg.Standard != intent.StandardERC191 {
		return nil, fmt.Errorf("evm wallet cannot sign %s messages", msg.Standard)
	}

	signature, err := crypto.Sign(accounts.TextHash(msg.Bytes), w.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	// Recovery id 0/1 -> 27/28
	signature[crypto.RecoveryIDOffset] += 27

	return &intent.SignatureResult{
		Standard:      intent.StandardERC191,
		Signature:     signature,
		SignerAddress: w.address,
	}, nil
}
