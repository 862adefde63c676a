package intent

import (
	"math/big"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func okQuote(out int64) QuoteResult {
	return Ok(Quote{TokenIn: "a", TokenOut: "b", AmountIn: big.NewInt(1), AmountOut: big.NewInt(out)})
}

func TestPreferQuoteKeepsOkOverErr(t *testing.T) {
	held := okQuote(10)
	got := PreferQuote(held, QuoteFailure(CodeNoQuotes, ""))

	q, ok := got.Value()
	assert.True(t, ok)
	assert.Equal(t, int64(10), q.AmountOut.Int64())
}

func TestPreferQuoteReplacesErrAndOk(t *testing.T) {
	got := PreferQuote(QuoteFailure(CodeNoQuotes, ""), QuoteFailure(CodeInsufficientAmount, ""))
	assert.Equal(t, CodeInsufficientAmount, got.Error().Code())

	got = PreferQuote(okQuote(1), okQuote(2))
	q, _ := got.Value()
	assert.Equal(t, int64(2), q.AmountOut.Int64())

	got = PreferQuote(QuoteResult{}, QuoteFailure(CodeNoQuotes, ""))
	assert.True(t, got.IsErr())
}

// An ok quote once held is never replaced by an err, whatever sequence follows.
func TestPreferQuoteMonotonicProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("ok quote never downgraded to err", prop.ForAll(
		func(seq []bool) bool {
			held := QuoteResult{}
			sawOk := false
			for i, isOk := range seq {
				var next QuoteResult
				if isOk {
					next = okQuote(int64(i + 1))
				} else {
					next = QuoteFailure(CodeNoQuotes, "")
				}
				held = PreferQuote(held, next)
				if isOk {
					sawOk = true
				}
				if sawOk && !held.IsOk() {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}

func TestQuoteExpired(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	q := Quote{Expiration: now.Add(time.Second)}

	assert.False(t, q.Expired(now))
	assert.True(t, q.Expired(now.Add(time.Second)))
	assert.False(t, Quote{}.Expired(now))
}

func TestResultMatch(t *testing.T) {
	var gotOk, gotErr bool
	okQuote(1).Match(func(Quote) { gotOk = true }, func(*Error) { gotErr = true })
	assert.True(t, gotOk)
	assert.False(t, gotErr)

	gotOk = false
	QuoteFailure(CodeNoQuotes, "").Match(func(Quote) { gotOk = true }, func(e *Error) {
		gotErr = e.Code() == CodeNoQuotes
	})
	assert.False(t, gotOk)
	assert.True(t, gotErr)

	assert.True(t, QuoteResult{}.IsZero())
}
