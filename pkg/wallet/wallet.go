// Package wallet provides key-backed signers for the wallet families the
// intents contract accepts.
package wallet

import (
	"fmt"
	"os"

	"near-intents/config"
	"near-intents/pkg/intent"
	"near-intents/pkg/signer"
)

var (
	_ signer.Wallet = (*EVMWallet)(nil)
	_ signer.Wallet = (*SolanaWallet)(nil)
	_ signer.Wallet = (*NearWallet)(nil)
	_ signer.Wallet = (*Confirming)(nil)
)

// FromConfig builds the wallet selected by cfg.Chain.
func FromConfig(cfg config.SignerConfig) (signer.Wallet, error) {
	if cfg.PrivateKey == "" {
		return nil, fmt.Errorf("signer.private_key is required")
	}

	var (
		w   signer.Wallet
		err error
	)
	switch intent.Chain(cfg.Chain) {
	case intent.ChainEVM:
		w, err = NewEVMWallet(cfg.PrivateKey)
	case intent.ChainSolana:
		w, err = NewSolanaWallet(cfg.PrivateKey)
	case intent.ChainNEAR, "":
		w, err = NewNearWallet(cfg.AccountID, cfg.PrivateKey)
	default:
		return nil, fmt.Errorf("unsupported signer chain %q", cfg.Chain)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Confirm {
		w = NewConfirming(w, os.Stdin, os.Stdout)
	}
	return w, nil
}
