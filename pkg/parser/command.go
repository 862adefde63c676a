package parser

import (
	"fmt"
	"regexp"
	"strings"

	"near-intents/pkg/intent"
	"near-intents/pkg/types"
)

var (
	swapPattern     = regexp.MustCompile(`^(\d+\.?\d*)\s+([A-Z0-9.\-]+)\s+TO\s+([A-Z0-9.\-]+)$`)
	withdrawPattern = regexp.MustCompile(`^(\d+\.?\d*)\s+([A-Z0-9.\-]+)\s+TO\s+(\S+?)(?:\s+ON\s+([A-Z0-9]+))?$`)
)

// ParseSwapCommand parses a natural language swap command
// Examples:
//   - "swap 1 SOL to USDC"
//   - "1.5 ETH to BTC"
func ParseSwapCommand(command string) (*types.OperationRequest, error) {
	command = strings.TrimSpace(strings.ToUpper(command))
	command = strings.TrimPrefix(command, "SWAP ")

	matches := swapPattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("invalid swap command format. Expected: 'swap <amount> <token> to <token>' (e.g., 'swap 1 SOL to USDC')")
	}

	return &types.OperationRequest{
		Kind:        intent.KindSwap,
		Amount:      matches[1],
		SourceToken: NormalizeTokenSymbol(matches[2]),
		DestToken:   NormalizeTokenSymbol(matches[3]),
	}, nil
}

// ParseWithdrawCommand parses "withdraw <amount> <token> to <address> [on <chain>]".
// The recipient keeps its original case since EVM and Solana addresses are case sensitive.
func ParseWithdrawCommand(command string) (*types.OperationRequest, error) {
	trimmed := strings.TrimSpace(command)
	if strings.HasPrefix(strings.ToUpper(trimmed), "WITHDRAW ") {
		trimmed = strings.TrimSpace(trimmed[len("WITHDRAW "):])
	}

	// Match on an uppercased copy, then slice the recipient out of the original.
	upper := strings.ToUpper(trimmed)
	idx := withdrawPattern.FindStringSubmatchIndex(upper)
	if idx == nil {
		return nil, fmt.Errorf("invalid withdraw command format. Expected: 'withdraw <amount> <token> to <address> [on <chain>]'")
	}

	req := &types.OperationRequest{
		Kind:          intent.KindWithdraw,
		Amount:        upper[idx[2]:idx[3]],
		SourceToken:   NormalizeTokenSymbol(upper[idx[4]:idx[5]]),
		RecipientAddr: trimmed[idx[6]:idx[7]],
	}
	req.DestToken = req.SourceToken
	if idx[8] >= 0 {
		req.DestChain = strings.ToLower(upper[idx[8]:idx[9]])
	}
	return req, nil
}

// ValidateOperationRequest validates that a request has all required fields
func ValidateOperationRequest(req *types.OperationRequest) error {
	if req.Amount == "" {
		return fmt.Errorf("amount is required")
	}
	if req.SourceToken == "" {
		return fmt.Errorf("source token is required")
	}
	if req.DestToken == "" {
		return fmt.Errorf("destination token is required")
	}
	if req.Kind == intent.KindWithdraw && req.RecipientAddr == "" {
		return fmt.Errorf("recipient address is required for withdrawals")
	}
	return nil
}

// NormalizeTokenSymbol normalizes token symbols to standard format
func NormalizeTokenSymbol(symbol string) string {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))

	aliases := map[string]string{
		"WBTC": "BTC",
		"WETH": "ETH",
		"WSOL": "SOL",
	}
	if normalized, exists := aliases[symbol]; exists {
		return normalized
	}
	return symbol
}
