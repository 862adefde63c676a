package relay

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"near-intents/pkg/intent"
)

type fakeCaller struct {
	mu        sync.Mutex
	responses map[string][]string
	errs      map[string]error
	calls     []string
	params    []interface{}
}

func (f *fakeCaller) CallContext(_ context.Context, result interface{}, method string, args ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)
	if len(args) > 0 {
		f.params = append(f.params, args[0])
	}
	if err := f.errs[method]; err != nil {
		return err
	}
	queue := f.responses[method]
	if len(queue) == 0 {
		return errors.New("no canned response")
	}
	raw := queue[0]
	if len(queue) > 1 {
		f.responses[method] = queue[1:]
	}
	return json.Unmarshal([]byte(raw), result)
}

func quoteRequest() intent.QuoteRequest {
	return intent.QuoteRequest{TokenIn: "nep141:wrap.near", TokenOut: "nep141:usdc.near", AmountIn: big.NewInt(1000)}
}

func TestGetQuotePicksBestOffer(t *testing.T) {
	f := &fakeCaller{responses: map[string][]string{"quote": {`[
		{"quote_hash":"h1","amount_in":"1000","amount_out":"90","expiration_time":"2030-01-01T00:00:00Z"},
		{"quote_hash":"h2","amount_in":"1000","amount_out":"95","expiration_time":"2030-01-01T00:00:05Z"}
	]`}}}
	c := New(f)

	res := c.GetQuote(context.Background(), quoteRequest())
	q, ok := res.Value()
	require.True(t, ok)
	assert.Equal(t, "95", q.AmountOut.String())
	assert.Equal(t, []string{"h2"}, q.QuoteHashes)
	assert.Equal(t, "-1000", q.Deltas.Get("nep141:wrap.near").String())
	assert.Equal(t, "95", q.Deltas.Get("nep141:usdc.near").String())
	assert.Equal(t, time.Date(2030, 1, 1, 0, 0, 5, 0, time.UTC), q.Expiration.UTC())

	params := f.params[0].(quoteParams)
	assert.Equal(t, "1000", params.ExactAmountIn)
	assert.Equal(t, int64(60000), params.MinDeadlineMs)
}

func TestGetQuoteFailuresAreData(t *testing.T) {
	c := New(&fakeCaller{responses: map[string][]string{"quote": {`null`}}})
	assert.Equal(t, intent.CodeNoQuotes, c.GetQuote(context.Background(), quoteRequest()).Error().Code())

	c = New(&fakeCaller{errs: map[string]error{"quote": errors.New("Insufficient amount")}})
	assert.Equal(t, intent.CodeInsufficientAmount, c.GetQuote(context.Background(), quoteRequest()).Error().Code())

	c = New(&fakeCaller{errs: map[string]error{"quote": errors.New("502 bad gateway")}})
	assert.Equal(t, intent.CodeQuoteProviderError, c.GetQuote(context.Background(), quoteRequest()).Error().Code())
}

func TestGetQuoteSkipsNetworkForZeroAmount(t *testing.T) {
	f := &fakeCaller{}
	res := New(f).GetQuote(context.Background(), intent.QuoteRequest{TokenIn: "a", TokenOut: "b", AmountIn: big.NewInt(0)})
	assert.True(t, res.IsErr())
	assert.Empty(t, f.calls)
}

func TestPublishIntents(t *testing.T) {
	f := &fakeCaller{responses: map[string][]string{"publish_intents": {
		`{"status":"OK","intent_hashes":["ih1"]}`,
		`{"status":"FAILED","reason":"invalid signature"}`,
	}}}
	c := New(f)
	payload := intent.SignedPayload{Standard: intent.StandardERC191, Message: "{}", Signature: make([]byte, 65)}

	hashes, err := c.PublishIntents(context.Background(), []intent.SignedPayload{payload}, []string{"q1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ih1"}, hashes)

	_, err = c.PublishIntents(context.Background(), []intent.SignedPayload{payload}, nil)
	require.Error(t, err)
	assert.Equal(t, intent.CodePublishFailed, intent.CodeOf(err))
}

func TestWaitForIntentSettlement(t *testing.T) {
	f := &fakeCaller{responses: map[string][]string{"get_status": {
		`{"intent_hash":"ih1","status":"PENDING"}`,
		`{"intent_hash":"ih1","status":"TX_BROADCASTED","data":{"hash":"tx1"}}`,
		`{"intent_hash":"ih1","status":"SETTLED","data":{"hash":"tx1"}}`,
	}}}
	c := New(f, WithPollInterval(time.Millisecond))

	hash, err := c.WaitForIntentSettlement(context.Background(), "ih1")
	require.NoError(t, err)
	assert.Equal(t, "tx1", hash)
}

func TestWaitForIntentSettlementRejected(t *testing.T) {
	f := &fakeCaller{responses: map[string][]string{"get_status": {`{"status":"NOT_FOUND_OR_NOT_VALID"}`}}}
	_, err := New(f, WithPollInterval(time.Millisecond)).WaitForIntentSettlement(context.Background(), "ih1")
	assert.Error(t, err)
}
