package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"near-intents/pkg/intent"
)

func TestParseSwapCommand(t *testing.T) {
	req, err := ParseSwapCommand("swap 1.5 weth to usdc")
	require.NoError(t, err)
	assert.Equal(t, intent.KindSwap, req.Kind)
	assert.Equal(t, "1.5", req.Amount)
	assert.Equal(t, "ETH", req.SourceToken)
	assert.Equal(t, "USDC", req.DestToken)

	_, err = ParseSwapCommand("swap SOL to USDC")
	assert.Error(t, err)
}

func TestParseWithdrawCommand(t *testing.T) {
	req, err := ParseWithdrawCommand("withdraw 10 USDC to 0xAbCdEf0123 on eth")
	require.NoError(t, err)
	assert.Equal(t, intent.KindWithdraw, req.Kind)
	assert.Equal(t, "10", req.Amount)
	assert.Equal(t, "USDC", req.SourceToken)
	assert.Equal(t, "0xAbCdEf0123", req.RecipientAddr)
	assert.Equal(t, "eth", req.DestChain)
	require.NoError(t, ValidateOperationRequest(req))

	req, err = ParseWithdrawCommand("5 NEAR to alice.near")
	require.NoError(t, err)
	assert.Equal(t, "alice.near", req.RecipientAddr)
	assert.Empty(t, req.DestChain)
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in       string
		decimals int32
		want     string
	}{
		{"1", 6, "1000000"},
		{"1.5", 18, "1500000000000000000"},
		{"0.000001", 6, "1"},
		{" 42 ", 0, "42"},
	}
	for _, tc := range cases {
		got := ParseAmount(tc.in, tc.decimals)
		require.NotNil(t, got, tc.in)
		assert.Equal(t, tc.want, got.String(), tc.in)
	}

	for _, bad := range []string{"", "0", "0.000", "-1", "abc", "1e", "0.0000001"} {
		assert.Nil(t, ParseAmount(bad, 6), bad)
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "1.5", FormatAmount(ParseAmount("1.5", 24), 24))
	assert.Equal(t, "0", FormatAmount(nil, 6))
}
