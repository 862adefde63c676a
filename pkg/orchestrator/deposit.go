package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/google/uuid"

	"near-intents/pkg/bridge"
	"near-intents/pkg/deposit"
	"near-intents/pkg/intent"
	"near-intents/pkg/tracker"
)

// Depositor sends origin-chain transfers; *deposit.Manager satisfies it.
type Depositor interface {
	SendDeposit(ctx context.Context, chain string, t deposit.Transfer) (string, error)
}

// DepositRequest funds the intents account from an external chain.
type DepositRequest struct {
	Chain string
	// AssetID is the intents asset credited by the deposit.
	AssetID string
	// Token is the origin-chain contract or mint, empty for the native coin.
	Token  string
	Amount *big.Int
}

type trackMsg struct {
	sub    Submission
	source tracker.StatusSource
}

func (trackMsg) orchestratorMessage() {}

// Deposit sends req to the user's POA deposit address and tracks the
// origin-chain transaction until the bridge credits it.
func (o *Orchestrator) Deposit(ctx context.Context, req DepositRequest) (Submission, error) {
	if o.cfg.Depositor == nil || o.cfg.POA == nil {
		return Submission{}, errors.New("deposits are not configured")
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return Submission{}, fmt.Errorf("deposit amount must be positive")
	}

	address, err := o.cfg.POA.DepositAddress(ctx, o.cfg.UserID, req.Chain)
	if err != nil {
		return Submission{}, err
	}
	txHash, err := o.cfg.Depositor.SendDeposit(ctx, req.Chain, deposit.Transfer{
		Recipient: address,
		Token:     req.Token,
		Amount:    req.Amount,
	})
	if err != nil {
		return Submission{}, fmt.Errorf("failed to send deposit: %w", err)
	}
	o.log.Info("deposit sent", slog.String("chain", req.Chain), slog.String("tx_hash", txHash), slog.String("address", address))

	sub := Submission{
		ID:          uuid.NewString(),
		Kind:        intent.KindDeposit,
		Handle:      intent.Handle{Kind: intent.HandleDepositTx, Value: txHash},
		TokenIn:     req.AssetID,
		TokenOut:    req.AssetID,
		SubmittedAt: o.cfg.Now(),
	}
	o.mailbox.Send(trackMsg{sub: sub, source: bridge.NewDepositSource(o.cfg.POA, o.cfg.UserID, req.Chain)})
	return sub, nil
}
