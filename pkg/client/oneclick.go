package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	oneclick "github.com/defuse-protocol/one-click-sdk-go"

	"near-intents/pkg/intent"
	"near-intents/pkg/logger"
)

// slippageToleranceBps is passed to every quote request (1%).
const slippageToleranceBps = 100

// Swap statuses reported by the 1Click execution status endpoint.
const (
	StatusKnownDepositTx    = "KNOWN_DEPOSIT_TX"
	StatusPendingDeposit    = "PENDING_DEPOSIT"
	StatusIncompleteDeposit = "INCOMPLETE_DEPOSIT"
	StatusProcessing        = "PROCESSING"
	StatusSuccess           = "SUCCESS"
	StatusRefunded          = "REFUNDED"
	StatusFailed            = "FAILED"
)

// OneClickClient wraps the 1Click SDK
type OneClickClient struct {
	client   *oneclick.APIClient
	jwtToken string
	quoteTTL time.Duration
	log      *slog.Logger
}

// NewOneClickClient creates a new 1Click API client. baseURL may be empty to use the SDK default.
func NewOneClickClient(jwtToken, baseURL string) *OneClickClient {
	config := oneclick.NewConfiguration()
	if baseURL != "" {
		config.Servers = oneclick.ServerConfigurations{{URL: baseURL}}
	}

	return &OneClickClient{
		client:   oneclick.NewAPIClient(config),
		jwtToken: jwtToken,
		quoteTTL: 10 * time.Minute,
		log:      logger.Named("oneclick"),
	}
}

func (c *OneClickClient) authContext(ctx context.Context) context.Context {
	if c.jwtToken == "" {
		return ctx
	}
	return context.WithValue(ctx, oneclick.ContextAccessToken, c.jwtToken)
}

// GetSupportedTokens retrieves all supported tokens
func (c *OneClickClient) GetSupportedTokens(ctx context.Context) ([]oneclick.TokenResponse, error) {
	resp, httpResp, err := c.client.OneClickAPI.GetTokens(c.authContext(ctx)).Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to get tokens: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status code %d", httpResp.StatusCode)
	}

	return resp, nil
}

// Tokens returns the supported tokens indexed by asset id.
func (c *OneClickClient) Tokens(ctx context.Context) (intent.TokenList, error) {
	tokens, err := c.GetSupportedTokens(ctx)
	if err != nil {
		return nil, err
	}
	list := make(intent.TokenList, len(tokens))
	for _, t := range tokens {
		list[t.GetAssetId()] = intent.Token{
			AssetID:    t.GetAssetId(),
			Symbol:     t.GetSymbol(),
			Blockchain: t.GetBlockchain(),
			Decimals:   int32(t.GetDecimals()),
		}
	}
	return list, nil
}

// GetQuote requests an indicative (dry) quote. It never returns a Go error;
// failures are err results so the quoter can keep its loop going.
func (c *OneClickClient) GetQuote(ctx context.Context, req intent.QuoteRequest) intent.QuoteResult {
	return c.quote(ctx, req, true)
}

// ExecutableQuote requests a binding quote with a deposit address.
func (c *OneClickClient) ExecutableQuote(ctx context.Context, req intent.QuoteRequest) intent.QuoteResult {
	return c.quote(ctx, req, false)
}

func (c *OneClickClient) quote(ctx context.Context, req intent.QuoteRequest, dry bool) intent.QuoteResult {
	if !req.Ready() {
		return intent.QuoteFailure(intent.CodeInsufficientAmount, "amount must be positive")
	}
	if req.Recipient == "" {
		return intent.QuoteFailure(intent.CodeQuoteProviderError, "recipient is required")
	}

	deadline := time.Now().Add(c.quoteTTL)
	quoteReq := oneclick.NewQuoteRequest(
		dry,
		"EXACT_INPUT",
		slippageToleranceBps,
		req.TokenIn,
		"INTENTS",
		req.TokenOut,
		req.AmountIn.String(),
		req.Recipient,
		"INTENTS",
		req.Recipient,
		"INTENTS",
		deadline,
	)

	resp, httpResp, err := c.client.OneClickAPI.GetQuote(c.authContext(ctx)).QuoteRequest(*quoteReq).Execute()
	if err != nil {
		apiErr := apiError(httpResp, err)
		c.log.Warn("quote request failed", slog.Bool("dry", dry), slog.Any("err", apiErr))
		return intent.Err[intent.Quote](classifyQuoteError(apiErr))
	}
	defer httpResp.Body.Close()

	if resp == nil {
		return intent.QuoteFailure(intent.CodeNoQuotes, "empty quote response")
	}

	q := resp.GetQuote()
	amountOut, ok := new(big.Int).SetString(q.GetAmountOut(), 10)
	if !ok || amountOut.Sign() <= 0 {
		return intent.QuoteFailure(intent.CodeNoQuotes, "")
	}

	out := intent.Quote{
		TokenIn:    req.TokenIn,
		TokenOut:   req.TokenOut,
		AmountIn:   new(big.Int).Set(req.AmountIn),
		AmountOut:  amountOut,
		Deltas:     intent.DeltasFromAmounts(req.TokenIn, req.AmountIn, req.TokenOut, amountOut),
		Expiration: deadline,
		AppFees:    req.AppFees,
		Source:     intent.SourceOneClick,
	}
	if !dry {
		out.DepositAddress = q.GetDepositAddress()
		if q.HasDepositMemo() {
			out.DepositMemo = q.GetDepositMemo()
		}
		if out.DepositAddress == "" {
			return intent.QuoteFailure(intent.CodeQuoteProviderError, "quote has no deposit address")
		}
	}
	return intent.Ok(out)
}

// apiError extracts the message from a failed SDK call's response body.
func apiError(httpResp *http.Response, err error) error {
	if httpResp == nil {
		return fmt.Errorf("failed to get quote from API: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, readErr := io.ReadAll(httpResp.Body)
	if readErr != nil || len(bodyBytes) == 0 {
		return fmt.Errorf("failed to get quote from API (status: %d): %w", httpResp.StatusCode, err)
	}
	var errorResp map[string]interface{}
	if jsonErr := json.Unmarshal(bodyBytes, &errorResp); jsonErr == nil {
		if message, ok := errorResp["message"].(string); ok {
			return fmt.Errorf("API error (status %d): %s", httpResp.StatusCode, message)
		}
	}
	return fmt.Errorf("API error (status %d): %s", httpResp.StatusCode, string(bodyBytes))
}

func classifyQuoteError(err error) *intent.Error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "too low"), strings.Contains(msg, "insufficient"):
		return intent.WrapError(intent.CodeInsufficientAmount, err, "")
	case strings.Contains(msg, "no quote"), strings.Contains(msg, "failed to get quote"):
		return intent.WrapError(intent.CodeNoQuotes, err, "")
	default:
		return intent.WrapError(intent.CodeQuoteProviderError, err, "1click quote failed")
	}
}

// GetSwapStatus checks the execution status of a swap
func (c *OneClickClient) GetSwapStatus(ctx context.Context, depositAddress string) (*oneclick.GetExecutionStatusResponse, error) {
	resp, httpResp, err := c.client.OneClickAPI.GetExecutionStatus(c.authContext(ctx)).DepositAddress(depositAddress).Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status code %d", httpResp.StatusCode)
	}

	return resp, nil
}

// Status reports the 1Click execution status for depositAddress.
func (c *OneClickClient) Status(ctx context.Context, depositAddress string) (intent.StatusReport, error) {
	resp, err := c.GetSwapStatus(ctx, depositAddress)
	if err != nil {
		return intent.StatusReport{}, err
	}
	report := intent.StatusReport{Status: resp.GetStatus()}
	details := resp.GetSwapDetails()
	if hashes := details.GetOriginChainTxHashes(); len(hashes) > 0 {
		report.TxHash = hashes[0].GetHash()
	}
	if hashes := details.GetDestinationChainTxHashes(); len(hashes) > 0 {
		report.DestinationTxHash = hashes[0].GetHash()
	}
	return report, nil
}

// SubmitDepositTx submits the deposit transaction hash
func (c *OneClickClient) SubmitDepositTx(ctx context.Context, depositAddress, txHash string) error {
	req := oneclick.NewSubmitDepositTxRequest(depositAddress, txHash)

	_, httpResp, err := c.client.OneClickAPI.SubmitDepositTx(c.authContext(ctx)).SubmitDepositTxRequest(*req).Execute()
	if err != nil {
		return fmt.Errorf("failed to submit deposit: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusCreated {
		return fmt.Errorf("API returned status code %d", httpResp.StatusCode)
	}

	return nil
}
