package deposit

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	"near-intents/config"
)

// lamportsPerSignature is reserved for fees when checking native balance.
const lamportsPerSignature = 5000

// SolanaDepositor handles deposits on Solana. Without a private key it can
// only confirm transactions.
type SolanaDepositor struct {
	config     config.SolanaConfig
	client     *rpc.Client
	privateKey solana.PrivateKey
	publicKey  solana.PublicKey
}

// NewSolanaDepositor creates a new Solana depositor
func NewSolanaDepositor(cfg config.SolanaConfig) (*SolanaDepositor, error) {
	if cfg.RPCUrl == "" {
		return nil, fmt.Errorf("RPC URL not configured for Solana")
	}

	s := &SolanaDepositor{config: cfg, client: rpc.New(cfg.RPCUrl)}
	if cfg.PrivateKey != "" {
		privateKey, err := solana.PrivateKeyFromBase58(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		s.privateKey = privateKey
		s.publicKey = privateKey.PublicKey()
	}
	return s, nil
}

// SendDeposit transfers native SOL, or the SPL token t.Token, to t.Recipient
func (s *SolanaDepositor) SendDeposit(ctx context.Context, t Transfer) (string, error) {
	if s.privateKey == nil {
		return "", fmt.Errorf("private key not configured for Solana")
	}
	recipient, err := solana.PublicKeyFromBase58(t.Recipient)
	if err != nil {
		return "", fmt.Errorf("invalid recipient address: %w", err)
	}
	if !t.Amount.IsUint64() {
		return "", fmt.Errorf("amount %s out of range", t.Amount)
	}
	amount := t.Amount.Uint64()

	var instructions []solana.Instruction
	if t.Token == "" {
		instructions, err = s.nativeTransfer(ctx, recipient, amount)
	} else {
		instructions, err = s.splTransfer(ctx, recipient, t.Token, amount)
	}
	if err != nil {
		return "", err
	}

	sig, err := s.send(ctx, instructions)
	if err != nil {
		return "", err
	}
	return sig.String(), nil
}

func (s *SolanaDepositor) nativeTransfer(ctx context.Context, recipient solana.PublicKey, lamports uint64) ([]solana.Instruction, error) {
	balance, err := s.client.GetBalance(ctx, s.publicKey, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	if balance.Value < lamports+lamportsPerSignature {
		return nil, fmt.Errorf("insufficient balance: have %d lamports, need %d (including fees)", balance.Value, lamports+lamportsPerSignature)
	}
	return []solana.Instruction{
		system.NewTransferInstruction(lamports, s.publicKey, recipient).Build(),
	}, nil
}

func (s *SolanaDepositor) splTransfer(ctx context.Context, recipient solana.PublicKey, mintStr string, amount uint64) ([]solana.Instruction, error) {
	mint, err := solana.PublicKeyFromBase58(mintStr)
	if err != nil {
		return nil, fmt.Errorf("invalid token mint address: %w", err)
	}

	source, _, err := solana.FindAssociatedTokenAddress(s.publicKey, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive source token account: %w", err)
	}
	balance, err := s.tokenBalance(ctx, source)
	if err != nil {
		return nil, err
	}
	if balance < amount {
		return nil, fmt.Errorf("insufficient token balance: have %d, need %d", balance, amount)
	}

	dest, _, err := solana.FindAssociatedTokenAddress(recipient, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive destination token account: %w", err)
	}
	exists, err := s.accountExists(ctx, dest)
	if err != nil {
		return nil, fmt.Errorf("failed to check destination account: %w", err)
	}

	var instructions []solana.Instruction
	if !exists {
		instructions = append(instructions, associatedtokenaccount.NewCreateInstruction(s.publicKey, recipient, mint).Build())
	}
	instructions = append(instructions, token.NewTransferInstruction(
		amount,
		source,
		dest,
		s.publicKey,
		[]solana.PublicKey{},
	).Build())
	return instructions, nil
}

func (s *SolanaDepositor) send(ctx context.Context, instructions []solana.Instruction) (solana.Signature, error) {
	recent, err := s.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to get recent blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(instructions, recent.Value.Blockhash, solana.TransactionPayer(s.publicKey))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to create transaction: %w", err)
	}
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(s.publicKey) {
			return &s.privateKey
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := s.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       s.config.SkipPreflight,
		PreflightCommitment: s.commitment(),
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	return sig, nil
}

func (s *SolanaDepositor) tokenBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	info, err := s.client.GetTokenAccountBalance(ctx, account, rpc.CommitmentFinalized)
	if err != nil {
		return 0, fmt.Errorf("failed to get token balance: %w", err)
	}
	amount, err := strconv.ParseUint(info.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token balance: %w", err)
	}
	return amount, nil
}

func (s *SolanaDepositor) accountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	info, err := s.client.GetAccountInfo(ctx, account)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return false, nil
		}
		return false, err
	}
	return info.Value != nil, nil
}

func (s *SolanaDepositor) commitment() rpc.CommitmentType {
	switch strings.ToLower(s.config.Commitment) {
	case "finalized":
		return rpc.CommitmentFinalized
	case "processed":
		return rpc.CommitmentProcessed
	default:
		return rpc.CommitmentConfirmed
	}
}

// Confirm reports whether the transaction signature landed and succeeded
func (s *SolanaDepositor) Confirm(ctx context.Context, txSignature string) (Confirmation, error) {
	sig, err := solana.SignatureFromBase58(txSignature)
	if err != nil {
		return Confirmation{}, fmt.Errorf("invalid transaction signature: %w", err)
	}

	out, err := s.client.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return Confirmation{}, fmt.Errorf("failed to get signature status: %w", err)
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return Confirmation{}, nil
	}
	status := out.Value[0]
	return Confirmation{
		Found:   true,
		Success: status.Err == nil,
		Block:   status.Slot,
	}, nil
}

// Close is a no-op; the Solana RPC client holds no connection.
func (s *SolanaDepositor) Close() {}
