package relay

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"time"

	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"near-intents/pkg/intent"
	"near-intents/pkg/logger"
)

// DefaultURL is the public solver relay endpoint.
const DefaultURL = "https://solver-relay-v2.chaindefuser.com/rpc"

// Intent statuses reported by get_status.
const (
	StatusPending            = "PENDING"
	StatusTxBroadcasted      = "TX_BROADCASTED"
	StatusSettled            = "SETTLED"
	StatusNotFoundOrNotValid = "NOT_FOUND_OR_NOT_VALID"
)

// Caller is the subset of the go-ethereum RPC client the relay needs.
type Caller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// Client talks JSON-RPC to the solver relay.
type Client struct {
	rpc          Caller
	minDeadline  time.Duration
	pollInterval time.Duration
	log          *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithMinDeadline sets how long solvers must keep a quote valid.
func WithMinDeadline(d time.Duration) Option {
	return func(c *Client) { c.minDeadline = d }
}

// WithPollInterval sets the WaitForIntentSettlement polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// Dial connects to the relay at url.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	if url == "" {
		url = DefaultURL
	}
	rpcClient, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial solver relay: %w", err)
	}
	return New(rpcClient, opts...), nil
}

// New wraps an existing caller.
func New(rpc Caller, opts ...Option) *Client {
	c := &Client{
		rpc:          rpc,
		minDeadline:  time.Minute,
		pollInterval: 500 * time.Millisecond,
		log:          logger.Named("relay"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type quoteParams struct {
	AssetIn       string `json:"defuse_asset_identifier_in"`
	AssetOut      string `json:"defuse_asset_identifier_out"`
	ExactAmountIn string `json:"exact_amount_in"`
	MinDeadlineMs int64  `json:"min_deadline_ms"`
}

type quoteAnswer struct {
	QuoteHash      string `json:"quote_hash"`
	AssetIn        string `json:"defuse_asset_identifier_in"`
	AssetOut       string `json:"defuse_asset_identifier_out"`
	AmountIn       string `json:"amount_in"`
	AmountOut      string `json:"amount_out"`
	ExpirationTime string `json:"expiration_time"`
}

// GetQuote asks solvers for req and returns the best offer. Failures are
// reported as err results, never as Go errors.
func (c *Client) GetQuote(ctx context.Context, req intent.QuoteRequest) intent.QuoteResult {
	if !req.Ready() {
		return intent.QuoteFailure(intent.CodeInsufficientAmount, "amount must be positive")
	}
	params := quoteParams{
		AssetIn:       req.TokenIn,
		AssetOut:      req.TokenOut,
		ExactAmountIn: req.AmountIn.String(),
		MinDeadlineMs: c.minDeadline.Milliseconds(),
	}

	var answers []quoteAnswer
	if err := c.rpc.CallContext(ctx, &answers, "quote", params); err != nil {
		if isInsufficientAmount(err) {
			return intent.Err[intent.Quote](intent.WrapError(intent.CodeInsufficientAmount, err, ""))
		}
		c.log.Warn("quote request failed", slog.String("token_in", req.TokenIn), slog.String("token_out", req.TokenOut), slog.Any("err", err))
		return intent.Err[intent.Quote](intent.WrapError(intent.CodeQuoteProviderError, err, "solver relay quote failed"))
	}
	return bestQuote(req, answers)
}

func bestQuote(req intent.QuoteRequest, answers []quoteAnswer) intent.QuoteResult {
	type parsed struct {
		hash       string
		amountOut  *big.Int
		expiration time.Time
	}
	offers := make([]parsed, 0, len(answers))
	for _, a := range answers {
		out, ok := new(big.Int).SetString(a.AmountOut, 10)
		if !ok || out.Sign() <= 0 {
			continue
		}
		exp, _ := time.Parse(time.RFC3339Nano, a.ExpirationTime)
		offers = append(offers, parsed{hash: a.QuoteHash, amountOut: out, expiration: exp})
	}
	if len(offers) == 0 {
		return intent.QuoteFailure(intent.CodeNoQuotes, "")
	}
	sort.SliceStable(offers, func(i, j int) bool {
		return offers[i].amountOut.Cmp(offers[j].amountOut) > 0
	})
	best := offers[0]

	return intent.Ok(intent.Quote{
		TokenIn:     req.TokenIn,
		TokenOut:    req.TokenOut,
		AmountIn:    new(big.Int).Set(req.AmountIn),
		AmountOut:   best.amountOut,
		Deltas:      intent.DeltasFromAmounts(req.TokenIn, req.AmountIn, req.TokenOut, best.amountOut),
		QuoteHashes: []string{best.hash},
		Expiration:  best.expiration,
		AppFees:     req.AppFees,
		Source:      intent.SourceSolverRelay,
	})
}

func isInsufficientAmount(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "insufficient amount") || strings.Contains(msg, "amount is too low")
}

type publishParams struct {
	QuoteHashes []string               `json:"quote_hashes"`
	SignedDatas []intent.SignedPayload `json:"signed_datas"`
}

type publishAnswer struct {
	Status       string   `json:"status"`
	Reason       string   `json:"reason"`
	IntentHashes []string `json:"intent_hashes"`
}

// PublishIntents submits signed payloads. On success it returns one intent hash per payload.
func (c *Client) PublishIntents(ctx context.Context, payloads []intent.SignedPayload, quoteHashes []string) ([]string, error) {
	if quoteHashes == nil {
		quoteHashes = []string{}
	}
	var answer publishAnswer
	err := c.rpc.CallContext(ctx, &answer, "publish_intents", publishParams{QuoteHashes: quoteHashes, SignedDatas: payloads})
	if err != nil {
		return nil, intent.WrapError(intent.CodePublishFailed, err, "failed to publish intents")
	}
	if answer.Status != "OK" {
		return nil, intent.NewError(intent.CodePublishFailed, fmt.Sprintf("relay rejected intents: %s", answer.Reason))
	}
	if len(answer.IntentHashes) != len(payloads) {
		return nil, intent.NewError(intent.CodePublishFailed, fmt.Sprintf("relay returned %d intent hashes for %d payloads", len(answer.IntentHashes), len(payloads)))
	}
	c.log.Info("intents published", slog.Any("intent_hashes", answer.IntentHashes))
	return answer.IntentHashes, nil
}

type statusParams struct {
	IntentHash string `json:"intent_hash"`
}

type statusAnswer struct {
	IntentHash string `json:"intent_hash"`
	Status     string `json:"status"`
	Data       struct {
		Hash string `json:"hash"`
	} `json:"data"`
}

// Status returns the relay status of intentHash and, once broadcast, the NEAR transaction hash.
func (c *Client) Status(ctx context.Context, intentHash string) (intent.StatusReport, error) {
	var answer statusAnswer
	if err := c.rpc.CallContext(ctx, &answer, "get_status", statusParams{IntentHash: intentHash}); err != nil {
		return intent.StatusReport{}, fmt.Errorf("failed to get intent status: %w", err)
	}
	return intent.StatusReport{Status: answer.Status, TxHash: answer.Data.Hash}, nil
}

// WaitForIntentSettlement polls until the intent is settled and returns its
// transaction hash. It fails when the intent is rejected or ctx ends.
func (c *Client) WaitForIntentSettlement(ctx context.Context, intentHash string) (string, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		report, err := c.Status(ctx, intentHash)
		if err != nil {
			c.log.Debug("status poll failed", slog.String("intent_hash", intentHash), slog.Any("err", err))
		} else {
			switch report.Status {
			case StatusSettled:
				return report.TxHash, nil
			case StatusNotFoundOrNotValid:
				return "", fmt.Errorf("intent %s not found or not valid", intentHash)
			}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}
