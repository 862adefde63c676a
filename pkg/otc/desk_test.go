package otc

import (
	"context"
	"crypto/ed25519"
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"near-intents/pkg/history"
	"near-intents/pkg/intent"
	"near-intents/pkg/signer"
	"near-intents/pkg/wallet"
)

type relay struct {
	mu        sync.Mutex
	published [][]intent.SignedPayload
	used      map[string]bool
}

func newRelay() *relay { return &relay{used: map[string]bool{}} }

func (r *relay) PublishIntents(_ context.Context, payloads []intent.SignedPayload, _ []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, payloads)
	hashes := make([]string, len(payloads))
	for i, p := range payloads {
		r.used[p.Nonce.String()] = true
		hashes[i] = "hash-" + p.Nonce.String()[:6]
	}
	return hashes, nil
}

func (r *relay) IsNonceUsed(_ context.Context, _ string, nonce intent.Nonce) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.used[nonce.String()], nil
}

func nearSigner(t *testing.T, account string) *signer.Actor {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	w, err := wallet.NewNearWallet(account, intent.EncodeEd25519(priv))
	require.NoError(t, err)
	return signer.New(w)
}

func newDesk(t *testing.T) (*Desk, *relay) {
	store, err := history.NewFileStore(filepath.Join(t.TempDir(), "history.json"))
	require.NoError(t, err)
	r := newRelay()
	return NewDesk(store, r, r), r
}

func TestCreateAndFillDeal(t *testing.T) {
	desk, r := newDesk(t)
	ctx := context.Background()

	share, err := desk.Create(ctx, nearSigner(t, "maker.near"), "maker", Offer{
		TokenIn: "nep141:wrap.near", AmountIn: big.NewInt(100),
		TokenOut: "nep141:usdc.near", AmountOut: big.NewInt(300),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, share.TradeID)

	deal, err := desk.Open(share)
	require.NoError(t, err)
	assert.Equal(t, history.KindOTC, deal.Kind)
	assert.Equal(t, "maker.near", deal.Maker)
	assert.Equal(t, int64(-100), deal.Diff.Get("nep141:wrap.near").Int64())

	hashes, err := desk.Fill(ctx, nearSigner(t, "taker.near"), "taker", share)
	require.NoError(t, err)
	require.Len(t, hashes, 2)
	require.Len(t, r.published, 1)
	assert.Equal(t, deal.Payload.Nonce, r.published[0][0].Nonce)
	assert.Contains(t, r.published[0][1].Message, `"nep141:usdc.near":"-300"`)

	records, err := desk.List(ctx, "maker")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, StatusOpen, records[0].Status)

	_, err = desk.Fill(ctx, nearSigner(t, "late.near"), "late", share)
	assert.Equal(t, intent.CodeNonceAlreadyUsed, intent.CodeOf(err))
}

func TestGiftIsOneSided(t *testing.T) {
	desk, _ := newDesk(t)
	share, err := desk.Create(context.Background(), nearSigner(t, "santa.near"), "santa", Offer{
		TokenIn: "nep141:wrap.near", AmountIn: big.NewInt(5),
	})
	require.NoError(t, err)

	deal, err := desk.Open(share)
	require.NoError(t, err)
	assert.Equal(t, history.KindGift, deal.Kind)
	assert.Len(t, deal.Diff, 1)
}

func TestCancelConsumesMakerNonce(t *testing.T) {
	desk, r := newDesk(t)
	ctx := context.Background()
	maker := nearSigner(t, "maker.near")

	share, err := desk.Create(ctx, maker, "maker", Offer{TokenIn: "a", AmountIn: big.NewInt(1), TokenOut: "b", AmountOut: big.NewInt(2)})
	require.NoError(t, err)

	require.NoError(t, desk.Cancel(ctx, maker, "maker", share.TradeID))
	records, err := desk.List(ctx, "maker")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, records[0].Status)

	deal, err := desk.Open(share)
	require.NoError(t, err)
	assert.Equal(t, deal.Payload.Nonce, r.published[0][0].Nonce, "cancel reuses the maker nonce")

	_, err = desk.Fill(ctx, nearSigner(t, "taker.near"), "taker", share)
	assert.Equal(t, intent.CodeNonceAlreadyUsed, intent.CodeOf(err))
	assert.Error(t, desk.Cancel(ctx, maker, "maker", share.TradeID))
}

func TestTamperedShareIsRejected(t *testing.T) {
	desk, _ := newDesk(t)
	share, err := desk.Create(context.Background(), nearSigner(t, "maker.near"), "maker", Offer{TokenIn: "a", AmountIn: big.NewInt(1)})
	require.NoError(t, err)

	other, err := desk.Create(context.Background(), nearSigner(t, "maker.near"), "maker", Offer{TokenIn: "a", AmountIn: big.NewInt(1)})
	require.NoError(t, err)

	share.PKey = other.PKey
	_, err = desk.Open(share)
	assert.Error(t, err)
}

func TestCreateRejectsEmptyOffer(t *testing.T) {
	desk, _ := newDesk(t)
	_, err := desk.Create(context.Background(), nearSigner(t, "maker.near"), "maker", Offer{TokenIn: "a"})
	assert.Error(t, err)
}

func TestDealStaysFillableUntilItsExpiry(t *testing.T) {
	desk, _ := newDesk(t)
	start := time.Now().UTC().Truncate(time.Millisecond)
	desk.now = func() time.Time { return start }

	share, err := desk.Create(context.Background(), nearSigner(t, "santa.near"), "santa", Offer{
		TokenIn: "nep141:wrap.near", AmountIn: big.NewInt(5),
	})
	require.NoError(t, err)

	deal, err := desk.Open(share)
	require.NoError(t, err)
	assert.True(t, deal.Deadline.Equal(start.Add(DefaultDealTTL)), "deadline %s", deal.Deadline)

	custom := NewDesk(nil, nil, nil, WithDealTTL(time.Hour))
	assert.Equal(t, time.Hour, custom.ttl)
}

func TestExpiredDealIsNotPublished(t *testing.T) {
	desk, r := newDesk(t)
	start := time.Now()
	desk.now = func() time.Time { return start }

	share, err := desk.Create(context.Background(), nearSigner(t, "santa.near"), "santa", Offer{
		TokenIn: "nep141:wrap.near", AmountIn: big.NewInt(5), Expiry: time.Minute,
	})
	require.NoError(t, err)

	desk.now = func() time.Time { return start.Add(time.Hour) }
	_, err = desk.Fill(context.Background(), nearSigner(t, "taker.near"), "taker", share)
	assert.Equal(t, intent.CodeDealExpired, intent.CodeOf(err))
	assert.Empty(t, r.published)
}
