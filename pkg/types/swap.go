package types

import "near-intents/pkg/intent"

// OperationRequest represents a user's command before token resolution.
type OperationRequest struct {
	Kind          intent.OperationKind
	Amount        string
	SourceToken   string
	DestToken     string
	SourceChain   string
	DestChain     string
	RecipientAddr string
	RefundAddr    string
}

// QuoteDisplay holds formatted quote information for display
type QuoteDisplay struct {
	SourceAmount   string
	SourceToken    string
	DestAmount     string
	DestToken      string
	Rate           string
	ExpiresIn      string
	DepositAddress string
	Source         string
}

// SubmitButton is the projected state of the submit control.
type SubmitButton struct {
	Enabled bool
	Label   string
	// Reason explains why the button is disabled.
	Reason string
}

// ErrorBanner is a user-facing failure with a remediation sentence.
type ErrorBanner struct {
	Code        string
	Title       string
	Remediation string
}

// SwapStatus represents the current status of a tracked operation
type SwapStatus struct {
	Handle            string
	State             string
	Label             string
	TxHash            string
	DestinationTxHash string
	Final             bool
	CanRetry          bool
}
