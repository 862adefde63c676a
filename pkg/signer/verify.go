package signer

import (
	"bytes"
	"crypto/ed25519"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"

	"near-intents/pkg/intent"
)

// Verify checks that res is a valid signature of msg by id.
func Verify(id intent.Identity, msg Message, res intent.SignatureResult) *intent.Error {
	if res.Standard != "" && res.Standard != msg.Wallet.Standard {
		return intent.NewError(intent.CodeCannotVerifySignature, "wallet answered with standard "+string(res.Standard))
	}

	switch msg.Wallet.Standard {
	case intent.StandardERC191:
		return verifyERC191(id, msg.Wallet.Bytes, res)
	case intent.StandardRawEd25519:
		if len(id.PublicKey) > 0 && !bytes.Equal(id.PublicKey, res.PublicKey) {
			return intent.NewError(intent.CodeSignedDifferentAccount, "signed with key "+intent.EncodeEd25519(res.PublicKey))
		}
		return verifyEd25519(res.PublicKey, msg.Wallet.Bytes, res.Signature)
	case intent.StandardNEP413:
		if msg.Wallet.NEP413 == nil {
			return intent.NewError(intent.CodeCannotVerifySignature, "missing nep413 payload")
		}
		if res.SignerAddress != "" && res.SignerAddress != id.SignerID {
			return intent.NewError(intent.CodeSignedDifferentAccount, "signed by "+res.SignerAddress)
		}
		hash := msg.Wallet.NEP413.Hash()
		return verifyEd25519(res.PublicKey, hash[:], res.Signature)
	}
	return intent.NewError(intent.CodeCannotVerifySignature, "unsupported standard "+string(msg.Wallet.Standard))
}

func verifyERC191(id intent.Identity, message []byte, res intent.SignatureResult) *intent.Error {
	if len(res.Signature) != crypto.SignatureLength {
		return intent.NewError(intent.CodeCannotVerifySignature, "malformed secp256k1 signature")
	}
	sig := make([]byte, len(res.Signature))
	copy(sig, res.Signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash(message), sig)
	if err != nil {
		return intent.WrapError(intent.CodeCannotVerifySignature, err, "failed to recover signer")
	}
	recovered := strings.ToLower(crypto.PubkeyToAddress(*pub).Hex())
	if recovered != strings.ToLower(id.SignerID) {
		return intent.NewError(intent.CodeSignedDifferentAccount, "signed by "+recovered)
	}
	return nil
}

func verifyEd25519(pub, message, sig []byte) *intent.Error {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return intent.NewError(intent.CodeCannotVerifySignature, "malformed ed25519 signature")
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), message, sig) {
		return intent.NewError(intent.CodeCannotVerifySignature, "ed25519 signature mismatch")
	}
	return nil
}
