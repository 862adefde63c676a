package intent

import (
	"math/big"
	"time"
)

// QuoteSource names the provider that produced a quote.
type QuoteSource string

const (
	SourceSolverRelay QuoteSource = "solver_relay"
	SourceOneClick    QuoteSource = "one_click"
)

// AppFee is a fee taken by the integrating application, in basis points of amount in.
type AppFee struct {
	Recipient string `json:"recipient"`
	FeeBps    int    `json:"fee"`
}

// Quote is an ok quote answer.
type Quote struct {
	TokenIn        string
	TokenOut       string
	AmountIn       *big.Int
	AmountOut      *big.Int
	Deltas         TokenDeltas
	QuoteHashes    []string
	Expiration     time.Time
	AppFees        []AppFee
	DepositAddress string
	DepositMemo    string
	Source         QuoteSource
}

// Expired reports whether the quote can no longer be signed at now.
// Quotes without an expiration never expire.
func (q Quote) Expired(now time.Time) bool {
	if q.Expiration.IsZero() {
		return false
	}
	return !now.Before(q.Expiration)
}

// QuoteFailure builds an err quote result.
func QuoteFailure(code Code, message string) QuoteResult {
	return Err[Quote](NewError(code, message))
}

// PreferQuote applies the monotonic hold rule: an incoming err never replaces a
// held ok quote. Everything else replaces the held value.
func PreferQuote(held, incoming QuoteResult) QuoteResult {
	if incoming.IsErr() && held.IsOk() {
		return held
	}
	if incoming.IsZero() {
		return held
	}
	return incoming
}

// QuoteRequest is what the quoter asks providers for. AmountIn is in minimal units.
type QuoteRequest struct {
	TokenIn   string
	TokenOut  string
	AmountIn  *big.Int
	UserID    string
	Recipient string
	AppFees   []AppFee
}

// Ready reports whether the request carries enough to be worth a network call.
func (r QuoteRequest) Ready() bool {
	return r.TokenIn != "" && r.TokenOut != "" && r.AmountIn != nil && r.AmountIn.Sign() > 0
}

// SameTarget reports whether two requests ask for the same pair and amount.
func (r QuoteRequest) SameTarget(other QuoteRequest) bool {
	if r.TokenIn != other.TokenIn || r.TokenOut != other.TokenOut {
		return false
	}
	if r.AmountIn == nil || other.AmountIn == nil {
		return r.AmountIn == other.AmountIn
	}
	return r.AmountIn.Cmp(other.AmountIn) == 0
}
