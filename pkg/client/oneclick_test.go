package client

import (
	"context"
	"errors"
	"io"
	"math/big"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"near-intents/pkg/intent"
)

func TestClassifyQuoteError(t *testing.T) {
	cases := map[string]intent.Code{
		"API error (status 400): Amount is too low for bridge, try at least 1000": intent.CodeInsufficientAmount,
		"API error (status 400): Failed to get quote":                             intent.CodeNoQuotes,
		"API error (status 502): upstream unavailable":                            intent.CodeQuoteProviderError,
	}
	for msg, want := range cases {
		assert.Equal(t, want, classifyQuoteError(errors.New(msg)).Code(), msg)
	}
}

func TestAPIErrorReadsMessage(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusBadRequest,
		Body:       io.NopCloser(strings.NewReader(`{"message":"Amount is too low"}`)),
	}
	err := apiError(resp, errors.New("400 Bad Request"))
	assert.EqualError(t, err, "API error (status 400): Amount is too low")

	err = apiError(nil, errors.New("dial tcp: refused"))
	assert.Contains(t, err.Error(), "dial tcp")
}

func TestQuoteRejectsUnreadyRequests(t *testing.T) {
	c := NewOneClickClient("", "http://127.0.0.1:1")

	res := c.GetQuote(context.Background(), intent.QuoteRequest{TokenIn: "a", TokenOut: "b"})
	assert.Equal(t, intent.CodeInsufficientAmount, res.Error().Code())

	res = c.ExecutableQuote(context.Background(), intent.QuoteRequest{TokenIn: "a", TokenOut: "b", AmountIn: big.NewInt(1)})
	assert.Equal(t, intent.CodeQuoteProviderError, res.Error().Code())
}
