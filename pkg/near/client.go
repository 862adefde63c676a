// Package near performs read-only view calls against the intents contract.
package near

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"near-intents/pkg/intent"
)

const (
	DefaultRPCURL   = "https://rpc.mainnet.near.org"
	DefaultContract = "intents.near"
)

// Client issues call_function queries through NEAR JSON-RPC.
type Client struct {
	endpoint   string
	contract   string
	httpClient *http.Client
}

func NewClient(endpoint, contract string) *Client {
	if endpoint == "" {
		endpoint = DefaultRPCURL
	}
	if contract == "" {
		contract = DefaultContract
	}
	return &Client{
		endpoint:   endpoint,
		contract:   contract,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      string         `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
}

type rpcResponse struct {
	Result *struct {
		Result []byte `json:"result"`
		Error  string `json:"error"`
	} `json:"result"`
	Error *struct {
		Name    string          `json:"name"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	} `json:"error"`
}

// View calls a view method and decodes its JSON return value into out.
func (c *Client) View(ctx context.Context, method string, args any, out any) error {
	rawArgs, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to encode args: %w", err)
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      "dontcare",
		Method:  "query",
		Params: map[string]any{
			"request_type": "call_function",
			"finality":     "optimistic",
			"account_id":   c.contract,
			"method_name":  method,
			"args_base64":  base64.StdEncoding.EncodeToString(rawArgs),
		},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", method, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned HTTP %d: %s", method, resp.StatusCode, bytes.TrimSpace(payload))
	}

	var decoded rpcResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if decoded.Error != nil {
		return fmt.Errorf("%s failed: %s %s", method, decoded.Error.Name, decoded.Error.Message)
	}
	if decoded.Result == nil {
		return fmt.Errorf("%s returned no result", method)
	}
	if decoded.Result.Error != "" {
		return fmt.Errorf("%s failed: %s", method, decoded.Result.Error)
	}
	if err := json.Unmarshal(decoded.Result.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s return value: %w", method, err)
	}
	return nil
}

// DepositedBalances returns the user's balances held by the intents contract.
func (c *Client) DepositedBalances(ctx context.Context, accountID string, tokenIDs []string) (map[string]*big.Int, error) {
	if len(tokenIDs) == 0 {
		return map[string]*big.Int{}, nil
	}
	var amounts []string
	args := map[string]any{"account_id": accountID, "token_ids": tokenIDs}
	if err := c.View(ctx, "mt_batch_balance_of", args, &amounts); err != nil {
		return nil, err
	}
	if len(amounts) != len(tokenIDs) {
		return nil, fmt.Errorf("mt_batch_balance_of returned %d balances for %d tokens", len(amounts), len(tokenIDs))
	}
	out := make(map[string]*big.Int, len(tokenIDs))
	for i, id := range tokenIDs {
		v, ok := new(big.Int).SetString(amounts[i], 10)
		if !ok {
			return nil, fmt.Errorf("invalid balance %q for %s", amounts[i], id)
		}
		out[id] = v
	}
	return out, nil
}

// IsNonceUsed reports whether nonce was already consumed for accountID.
func (c *Client) IsNonceUsed(ctx context.Context, accountID string, nonce intent.Nonce) (bool, error) {
	var used bool
	args := map[string]any{"account_id": accountID, "nonce": nonce.String()}
	if err := c.View(ctx, "is_nonce_used", args, &used); err != nil {
		return false, err
	}
	return used, nil
}

// HasPublicKey reports whether publicKey is registered for accountID.
func (c *Client) HasPublicKey(ctx context.Context, accountID string, publicKey []byte) (bool, error) {
	var has bool
	args := map[string]any{"account_id": accountID, "public_key": intent.EncodeEd25519(publicKey)}
	if err := c.View(ctx, "has_public_key", args, &has); err != nil {
		return false, err
	}
	return has, nil
}
