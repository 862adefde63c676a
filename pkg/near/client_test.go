package near

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"near-intents/pkg/intent"
)

// viewServer answers call_function queries with handler(method, args).
func viewServer(t *testing.T, handler func(method string, args map[string]any) any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "query", req.Method)
		assert.Equal(t, "intents.near", req.Params["account_id"])

		rawArgs, err := base64.StdEncoding.DecodeString(req.Params["args_base64"].(string))
		require.NoError(t, err)
		var args map[string]any
		require.NoError(t, json.Unmarshal(rawArgs, &args))

		ret, err := json.Marshal(handler(req.Params["method_name"].(string), args))
		require.NoError(t, err)
		// NEAR returns the view result as an array of bytes.
		resultBytes := make([]int, len(ret))
		for i, b := range ret {
			resultBytes[i] = int(b)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  map[string]any{"result": resultBytes},
		})
	}))
}

func TestDepositedBalances(t *testing.T) {
	srv := viewServer(t, func(method string, args map[string]any) any {
		assert.Equal(t, "mt_batch_balance_of", method)
		assert.Equal(t, "alice.near", args["account_id"])
		return []string{"100", "0"}
	})
	defer srv.Close()

	c := NewClient(srv.URL, "")
	got, err := c.DepositedBalances(context.Background(), "alice.near", []string{"nep141:a", "nep141:b"})
	require.NoError(t, err)
	assert.Equal(t, "100", got["nep141:a"].String())
	assert.Equal(t, "0", got["nep141:b"].String())
}

func TestIsNonceUsedAndHasPublicKey(t *testing.T) {
	nonce, err := intent.NewNonce()
	require.NoError(t, err)

	srv := viewServer(t, func(method string, args map[string]any) any {
		switch method {
		case "is_nonce_used":
			return args["nonce"] == nonce.String()
		case "has_public_key":
			return args["public_key"] == intent.EncodeEd25519([]byte{1, 2, 3})
		}
		return nil
	})
	defer srv.Close()

	c := NewClient(srv.URL, "")
	used, err := c.IsNonceUsed(context.Background(), "alice.near", nonce)
	require.NoError(t, err)
	assert.True(t, used)

	has, err := c.HasPublicKey(context.Background(), "alice.near", []byte{1, 2, 3})
	require.NoError(t, err)
	assert.True(t, has)

	has, err = c.HasPublicKey(context.Background(), "alice.near", []byte{9})
	require.NoError(t, err)
	assert.False(t, has)
}

func TestViewReportsRPCErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"dontcare","error":{"name":"HANDLER_ERROR","message":"unknown account"}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").IsNonceUsed(context.Background(), "x", intent.Nonce{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HANDLER_ERROR")
}
