package signer

import (
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"near-intents/pkg/intent"
)

func testNonce(b byte) intent.Nonce {
	var n intent.Nonce
	for i := range n {
		n[i] = b + byte(i)
	}
	return n
}

func TestBuildMessageIsCanonical(t *testing.T) {
	id := intent.Identity{Chain: intent.ChainEVM, SignerID: "0xabc"}
	req := Request{
		Deltas:   intent.TokenDeltas{"nep141:b": big.NewInt(5), "nep141:a": big.NewInt(-7)},
		Nonce:    testNonce(1),
		Deadline: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	msg, err := BuildMessage(id, "", req)
	require.NoError(t, err)
	assert.Equal(t,
		`{"deadline":"2026-01-02T03:04:05.000Z","intents":[{"diff":{"nep141:a":"-7","nep141:b":"5"},"intent":"token_diff"}],"nonce":"`+
			testNonce(1).String()+`","signer_id":"0xabc","verifying_contract":"intents.near"}`,
		string(msg.Wallet.Bytes))
	assert.Nil(t, msg.Wallet.NEP413)
}

func TestBuildMessageRequiresNonceAndDeadline(t *testing.T) {
	id := intent.Identity{Chain: intent.ChainNEAR, SignerID: "alice.near"}
	_, err := BuildMessage(id, "", Request{Deadline: time.Now()})
	assert.Error(t, err)
	_, err = BuildMessage(id, "", Request{Nonce: testNonce(2)})
	assert.Error(t, err)
}

func TestBuildMessageNEP413(t *testing.T) {
	id := intent.Identity{Chain: intent.ChainNEAR, SignerID: "alice.near"}
	msg, err := BuildMessage(id, "intents.testnet", Request{
		Actions:  []intent.Action{intent.FtWithdraw{Token: "usdc.near", ReceiverID: "bob.near", Amount: "10"}},
		Nonce:    testNonce(3),
		Deadline: time.Unix(0, 0),
	})
	require.NoError(t, err)
	require.NotNil(t, msg.Wallet.NEP413)
	assert.Equal(t, "intents.testnet", msg.Wallet.NEP413.Recipient)
	assert.Equal(t, testNonce(3), msg.Wallet.NEP413.Nonce)
	assert.Equal(t, string(msg.Wallet.Bytes), msg.Wallet.NEP413.Message)
	assert.NotContains(t, msg.Wallet.NEP413.Message, "nonce")
}

func TestPaddingReachesExactMinimum(t *testing.T) {
	id := intent.Identity{Chain: intent.ChainSolana, SignerID: "ab"}
	msg, err := BuildMessage(id, "", Request{
		Deltas:   intent.TokenDeltas{"x": big.NewInt(1)},
		Nonce:    testNonce(4),
		Deadline: time.Unix(0, 0),
	})
	require.NoError(t, err)
	assert.Len(t, msg.Wallet.Bytes, MinMessageBytes)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Wallet.Bytes, &decoded))
	assert.Contains(t, decoded["message_padding"], "pads the message")
}

func TestBuildMessageDeterministic(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("identical inputs give identical bytes", prop.ForAll(
		func(signerID string, amount int64, seed uint8, chain string) bool {
			id := intent.Identity{Chain: intent.Chain(chain), SignerID: signerID}
			req := Request{
				Deltas:   intent.TokenDeltas{"nep141:in": big.NewInt(-amount), "nep141:out": big.NewInt(amount)},
				Nonce:    testNonce(seed | 1),
				Deadline: time.Unix(int64(seed)*1000, 0),
			}
			a, err := BuildMessage(id, "", req)
			if err != nil {
				return false
			}
			b, err := BuildMessage(id, "", req)
			if err != nil {
				return false
			}
			return string(a.Wallet.Bytes) == string(b.Wallet.Bytes) && len(a.Wallet.Bytes) >= minBytes(id.Chain.Standard())
		},
		gen.AlphaString(),
		gen.Int64Range(1, 1<<40),
		gen.UInt8(),
		gen.OneConstOf("near", "evm", "solana"),
	))

	properties.TestingRun(t)
}
