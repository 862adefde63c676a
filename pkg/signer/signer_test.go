package signer_test

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"near-intents/pkg/intent"
	"near-intents/pkg/signer"
	"near-intents/pkg/wallet"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func deltas() intent.TokenDeltas {
	return intent.DeltasFromAmounts("nep141:wrap.near", big.NewInt(1000), "nep141:usdc.near", big.NewInt(2500))
}

func evmWallet(t *testing.T) *wallet.EVMWallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	w, err := wallet.NewEVMWallet(hex.EncodeToString(crypto.FromECDSA(key)))
	require.NoError(t, err)
	return w
}

func nearWallet(t *testing.T, account string) *wallet.NearWallet {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	w, err := wallet.NewNearWallet(account, intent.EncodeEd25519(priv))
	require.NoError(t, err)
	return w
}

func TestSignEVM(t *testing.T) {
	w := evmWallet(t)
	a := signer.New(w, signer.WithClock(func() time.Time { return fixedNow }))

	res := a.Sign(context.Background(), signer.Request{Deltas: deltas(), Referral: "near-intents"})
	payload, ok := res.Value()
	require.True(t, ok, "sign failed: %v", res.Error())

	assert.Equal(t, intent.StandardERC191, payload.Standard)
	assert.Equal(t, w.Identity().SignerID, payload.SignerID)
	assert.False(t, payload.Nonce.IsZero())
	assert.Contains(t, payload.Message, `"deadline":"2026-03-01T12:05:00.000Z"`)
	assert.Contains(t, payload.Message, `"referral":"near-intents"`)
	assert.Equal(t, signer.StateDone, a.Snapshot().State)

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"signature":"secp256k1:`)
}

// rawEd25519Wallet signs raw bytes for an arbitrary identity and keeps what it saw.
type rawEd25519Wallet struct {
	signerID string
	priv     ed25519.PrivateKey
	signed   []byte
}

func (w *rawEd25519Wallet) Identity() intent.Identity {
	return intent.Identity{
		Chain:     intent.ChainSolana,
		SignerID:  w.signerID,
		PublicKey: w.priv.Public().(ed25519.PublicKey),
	}
}

func (w *rawEd25519Wallet) SignMessage(_ context.Context, msg intent.WalletMessage) (*intent.SignatureResult, error) {
	w.signed = append([]byte(nil), msg.Bytes...)
	return &intent.SignatureResult{
		Standard:  intent.StandardRawEd25519,
		Signature: ed25519.Sign(w.priv, msg.Bytes),
		PublicKey: w.priv.Public().(ed25519.PublicKey),
	}, nil
}

func TestSignRawEd25519PadsShortMessages(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	w := &rawEd25519Wallet{signerID: "s1", priv: priv}

	res := signer.New(w).Sign(context.Background(), signer.Request{
		Deltas: intent.TokenDeltas{"a": big.NewInt(-1), "b": big.NewInt(1)},
	})
	payload, ok := res.Value()
	require.True(t, ok, "sign failed: %v", res.Error())

	assert.Len(t, payload.Message, signer.MinMessageBytes)
	assert.Contains(t, payload.Message, `"message_padding":`)
	assert.Equal(t, payload.Message, string(w.signed))
	assert.True(t, ed25519.Verify(payload.PublicKey, w.signed, payload.Signature))
}

func TestSignSolanaIdentityNeedsNoPadding(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	w, err := wallet.NewSolanaWallet(key.String())
	require.NoError(t, err)

	res := signer.New(w).Sign(context.Background(), signer.Request{
		Deltas: intent.TokenDeltas{"a": big.NewInt(-1), "b": big.NewInt(1)},
	})
	payload, ok := res.Value()
	require.True(t, ok, "sign failed: %v", res.Error())

	assert.GreaterOrEqual(t, len(payload.Message), signer.MinMessageBytes)
	assert.NotContains(t, payload.Message, "message_padding")
	assert.True(t, ed25519.Verify(payload.PublicKey, []byte(payload.Message), payload.Signature))
}

func TestSignNEAR(t *testing.T) {
	w := nearWallet(t, "alice.near")
	res := signer.New(w).Sign(context.Background(), signer.Request{Deltas: deltas()})
	payload, ok := res.Value()
	require.True(t, ok, "sign failed: %v", res.Error())

	assert.Equal(t, intent.StandardNEP413, payload.Standard)
	assert.Equal(t, signer.DefaultVerifyingContract, payload.Recipient)
	assert.NotContains(t, payload.Message, "verifying_contract")
}

func TestExternalNonceIsReused(t *testing.T) {
	nonce, err := intent.NewNonce()
	require.NoError(t, err)

	a := signer.New(evmWallet(t))
	res := a.Sign(context.Background(), signer.Request{Deltas: deltas(), Nonce: nonce})
	payload, ok := res.Value()
	require.True(t, ok)
	assert.Equal(t, nonce, payload.Nonce)
}

type stubWallet struct {
	id  intent.Identity
	res *intent.SignatureResult
	err error
}

func (w stubWallet) Identity() intent.Identity { return w.id }

func (w stubWallet) SignMessage(context.Context, intent.WalletMessage) (*intent.SignatureResult, error) {
	return w.res, w.err
}

func TestWalletFailuresAreTyped(t *testing.T) {
	id := intent.Identity{Chain: intent.ChainEVM, SignerID: "0xabc"}
	cases := []struct {
		name string
		w    stubWallet
		code intent.Code
	}{
		{"declined", stubWallet{id: id}, intent.CodeUserDidntSign},
		{"popup", stubWallet{id: id, err: intent.ErrPopupBlocked}, intent.CodePopupBlocked},
		{"wallet error", stubWallet{id: id, err: errors.New("ledger locked")}, intent.CodeSigningFailed},
		{"garbage signature", stubWallet{id: id, res: &intent.SignatureResult{Signature: []byte{1, 2}}}, intent.CodeCannotVerifySignature},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := signer.New(tc.w)
			res := a.Sign(context.Background(), signer.Request{Deltas: deltas()})
			require.True(t, res.IsErr())
			assert.Equal(t, tc.code, res.Error().Code())
			assert.Equal(t, tc.code, a.Snapshot().Err.Code())
		})
	}
}

// impostor claims one EVM account but signs with another key.
type impostor struct {
	claimed intent.Identity
	inner   signer.Wallet
}

func (w impostor) Identity() intent.Identity { return w.claimed }

func (w impostor) SignMessage(ctx context.Context, msg intent.WalletMessage) (*intent.SignatureResult, error) {
	return w.inner.SignMessage(ctx, msg)
}

func TestSignedByDifferentAccount(t *testing.T) {
	claimed := evmWallet(t).Identity()
	res := signer.New(impostor{claimed: claimed, inner: evmWallet(t)}).
		Sign(context.Background(), signer.Request{Deltas: deltas()})
	require.True(t, res.IsErr())
	assert.Equal(t, intent.CodeSignedDifferentAccount, res.Error().Code())
}

type tamper struct{ signer.Wallet }

func (w tamper) SignMessage(ctx context.Context, msg intent.WalletMessage) (*intent.SignatureResult, error) {
	res, err := w.Wallet.SignMessage(ctx, msg)
	if err == nil {
		res.Signature[0] ^= 0xff
	}
	return res, err
}

func TestTamperedSignatureFailsVerification(t *testing.T) {
	res := signer.New(tamper{nearWallet(t, "alice.near")}).Sign(context.Background(), signer.Request{Deltas: deltas()})
	require.True(t, res.IsErr())
	assert.Equal(t, intent.CodeCannotVerifySignature, res.Error().Code())
}

type registry struct {
	mu         sync.Mutex
	registered bool
	checks     int
}

func (r *registry) HasPublicKey(context.Context, string, []byte) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks++
	return r.registered, nil
}

func (r *registry) register() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered = true
}

func TestPublicKeyRegistrationResumesSigning(t *testing.T) {
	reg := &registry{}
	awaiting := make(chan struct{}, 1)
	a := signer.New(nearWallet(t, "alice.near"),
		signer.WithKeyRegistry(reg),
		signer.WithObserver(func(s signer.Snapshot) {
			if s.KeyState == signer.KeyAwaitingRegistration {
				select {
				case awaiting <- struct{}{}:
				default:
				}
			}
		}),
	)

	done := make(chan intent.Result[intent.SignedPayload], 1)
	go func() { done <- a.Sign(context.Background(), signer.Request{Deltas: deltas()}) }()

	select {
	case <-awaiting:
	case <-time.After(2 * time.Second):
		t.Fatal("actor never asked for key registration")
	}
	snap := a.Snapshot()
	assert.Equal(t, signer.StateVerifyingPublicKey, snap.State)
	assert.Contains(t, snap.PublicKey, "ed25519:")

	reg.register()
	a.ConfirmPublicKey()

	res := <-done
	assert.True(t, res.IsOk(), "sign failed: %v", res.Error())
	assert.Equal(t, 2, reg.checks)
}

func TestPublicKeyRegistrationAbort(t *testing.T) {
	var a *signer.Actor
	a = signer.New(nearWallet(t, "alice.near"),
		signer.WithKeyRegistry(&registry{}),
		signer.WithObserver(func(s signer.Snapshot) {
			if s.KeyState == signer.KeyAwaitingRegistration {
				a.Abort()
			}
		}),
	)

	res := a.Sign(context.Background(), signer.Request{Deltas: deltas()})
	require.True(t, res.IsErr())
	assert.Equal(t, intent.CodePublicKeyNotVerified, res.Error().Code())
}

func TestStaleKeyCommandsAreDropped(t *testing.T) {
	a := signer.New(nearWallet(t, "alice.near"), signer.WithKeyRegistry(&registry{}))
	a.Abort()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res := a.Sign(ctx, signer.Request{Deltas: deltas()})
	require.True(t, res.IsErr())
	assert.Equal(t, intent.CodePublicKeyNotVerified, res.Error().Code())
	assert.ErrorIs(t, res.Error(), context.DeadlineExceeded)
}
