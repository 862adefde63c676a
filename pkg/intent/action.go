package intent

// Action is one entry of the "intents" array of a signed message.
type Action interface {
	// Body returns the JSON-ready representation including the "intent" tag.
	Body() map[string]any
}

// TokenDiff asks solvers to settle the given deltas against the signer.
type TokenDiff struct {
	Diff     TokenDeltas
	Referral string
	Memo     string
}

func (a TokenDiff) Body() map[string]any {
	body := map[string]any{
		"intent": "token_diff",
		"diff":   a.Diff.Diff(),
	}
	if a.Referral != "" {
		body["referral"] = a.Referral
	}
	if a.Memo != "" {
		body["memo"] = a.Memo
	}
	return body
}

// Transfer moves deposited tokens to another intents account, e.g. a 1Click deposit address.
type Transfer struct {
	ReceiverID string
	Tokens     TokenDeltas
	Memo       string
}

func (a Transfer) Body() map[string]any {
	body := map[string]any{
		"intent":      "transfer",
		"receiver_id": a.ReceiverID,
		"tokens":      a.Tokens.Diff(),
	}
	if a.Memo != "" {
		body["memo"] = a.Memo
	}
	return body
}

// FtWithdraw releases a fungible token from the intents contract to an external receiver.
type FtWithdraw struct {
	Token      string
	ReceiverID string
	Amount     string
	Memo       string
}

func (a FtWithdraw) Body() map[string]any {
	body := map[string]any{
		"intent":      "ft_withdraw",
		"token":       a.Token,
		"receiver_id": a.ReceiverID,
		"amount":      a.Amount,
	}
	if a.Memo != "" {
		body["memo"] = a.Memo
	}
	return body
}
