package bridge

import (
	"context"
	"log/slog"

	"near-intents/pkg/deposit"
	"near-intents/pkg/logger"
)

// Request identifies a withdrawal whose bridge leg is awaited.
type Request struct {
	// NearTxHash is the settlement transaction that executed ft_withdraw.
	NearTxHash string
	// Chain is the destination chain, used for optional confirmation.
	Chain string
}

// Status is the combined bridge and destination-chain view of a withdrawal.
type Status struct {
	Completed         bool
	Failed            bool
	DestinationTxHash string
}

// Confirmer checks a transaction on the destination chain.
type Confirmer interface {
	IsEnabledForChain(chain string) bool
	Confirm(ctx context.Context, chain, txHash string) (deposit.Confirmation, error)
}

// Service answers "has the bridge delivered this withdrawal yet?".
type Service struct {
	poa       *POAClient
	confirmer Confirmer
	log       *slog.Logger
}

// NewService builds a Service. confirmer may be nil, in which case the bridge's
// COMPLETED status is trusted as is.
func NewService(poa *POAClient, confirmer Confirmer) *Service {
	return &Service{poa: poa, confirmer: confirmer, log: logger.Named("bridge")}
}

// WithdrawalStatus implements the tracker's bridge dependency.
func (s *Service) WithdrawalStatus(ctx context.Context, req Request) (Status, error) {
	w, err := s.poa.WithdrawalStatus(ctx, req.NearTxHash)
	if err != nil {
		return Status{}, err
	}

	switch w.Status {
	case StatusFailed:
		return Status{Failed: true}, nil
	case StatusCompleted:
	default:
		return Status{}, nil
	}

	chain := req.Chain
	if chain == "" {
		chain = w.Chain
	}
	if s.confirmer == nil || w.TransferTxHash == "" || !s.confirmer.IsEnabledForChain(chain) {
		return Status{Completed: true, DestinationTxHash: w.TransferTxHash}, nil
	}

	conf, err := s.confirmer.Confirm(ctx, chain, w.TransferTxHash)
	if err != nil {
		// Stays pending until the destination RPC answers.
		s.log.Warn("destination confirmation failed", slog.String("tx_hash", w.TransferTxHash), slog.Any("err", err))
		return Status{}, nil
	}
	switch {
	case !conf.Found:
		return Status{}, nil
	case !conf.Success:
		return Status{Failed: true, DestinationTxHash: w.TransferTxHash}, nil
	default:
		return Status{Completed: true, DestinationTxHash: w.TransferTxHash}, nil
	}
}
