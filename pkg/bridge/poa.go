// Package bridge follows transfers between the intents contract and external chains.
package bridge

import (
	"context"
	"fmt"

	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"near-intents/pkg/intent"
)

// DefaultURL is the public POA bridge endpoint.
const DefaultURL = "https://bridge.chaindefuser.com/rpc"

// Transfer statuses reported by the POA bridge.
const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// Caller is the subset of the go-ethereum RPC client used here.
type Caller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// POAClient queries the POA bridge service.
type POAClient struct {
	rpc Caller
}

// Dial connects to the bridge at url.
func Dial(ctx context.Context, url string) (*POAClient, error) {
	if url == "" {
		url = DefaultURL
	}
	c, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial bridge: %w", err)
	}
	return NewPOAClient(c), nil
}

func NewPOAClient(rpc Caller) *POAClient {
	return &POAClient{rpc: rpc}
}

// Withdrawal is the bridge's record of a withdrawal started by a NEAR transaction.
type Withdrawal struct {
	Status         string `json:"status"`
	Chain          string `json:"chain"`
	TransferTxHash string `json:"transfer_tx_hash"`
	WithdrawalHash string `json:"withdrawal_hash"`
	Amount         string `json:"amount"`
}

type withdrawalStatusParams struct {
	WithdrawalHash string `json:"withdrawal_hash"`
}

type withdrawalStatusAnswer struct {
	Withdrawals []struct {
		Status string `json:"status"`
		Data   struct {
			Chain          string `json:"chain"`
			TransferTxHash string `json:"transfer_tx_hash"`
			WithdrawalHash string `json:"withdrawal_hash"`
			Amount         string `json:"amount"`
		} `json:"data"`
	} `json:"withdrawals"`
}

// WithdrawalStatus looks up the withdrawal started by nearTxHash. A missing
// record is reported as PENDING since the bridge indexes withdrawals lazily.
func (c *POAClient) WithdrawalStatus(ctx context.Context, nearTxHash string) (Withdrawal, error) {
	var answer withdrawalStatusAnswer
	if err := c.rpc.CallContext(ctx, &answer, "withdrawal_status", withdrawalStatusParams{WithdrawalHash: nearTxHash}); err != nil {
		return Withdrawal{}, fmt.Errorf("failed to get withdrawal status: %w", err)
	}
	if len(answer.Withdrawals) == 0 {
		return Withdrawal{Status: StatusPending, WithdrawalHash: nearTxHash}, nil
	}
	w := answer.Withdrawals[0]
	return Withdrawal{
		Status:         w.Status,
		Chain:          w.Data.Chain,
		TransferTxHash: w.Data.TransferTxHash,
		WithdrawalHash: w.Data.WithdrawalHash,
		Amount:         w.Data.Amount,
	}, nil
}

type depositAddressParams struct {
	AccountID string `json:"account_id"`
	Chain     string `json:"chain"`
}

type depositAddressAnswer struct {
	Address string `json:"address"`
	Chain   string `json:"chain"`
}

// DepositAddress returns the external-chain address that credits accountID on deposit.
func (c *POAClient) DepositAddress(ctx context.Context, accountID, chain string) (string, error) {
	var answer depositAddressAnswer
	if err := c.rpc.CallContext(ctx, &answer, "deposit_address", depositAddressParams{AccountID: accountID, Chain: chain}); err != nil {
		return "", fmt.Errorf("failed to get deposit address: %w", err)
	}
	if answer.Address == "" {
		return "", fmt.Errorf("bridge returned no deposit address for %s", chain)
	}
	return answer.Address, nil
}

// Deposit is one entry from recent_deposits.
type Deposit struct {
	TxHash  string `json:"tx_hash"`
	Chain   string `json:"chain"`
	AssetID string `json:"defuse_asset_identifier"`
	Amount  string `json:"amount"`
	Status  string `json:"status"`
}

type recentDepositsAnswer struct {
	Deposits []Deposit `json:"deposits"`
}

// RecentDeposits lists the latest deposits credited to accountID from chain.
func (c *POAClient) RecentDeposits(ctx context.Context, accountID, chain string) ([]Deposit, error) {
	var answer recentDepositsAnswer
	if err := c.rpc.CallContext(ctx, &answer, "recent_deposits", depositAddressParams{AccountID: accountID, Chain: chain}); err != nil {
		return nil, fmt.Errorf("failed to get recent deposits: %w", err)
	}
	return answer.Deposits, nil
}

// DepositSource reports deposit progress keyed by the external transaction hash.
type DepositSource struct {
	client    *POAClient
	accountID string
	chain     string
}

func NewDepositSource(client *POAClient, accountID, chain string) *DepositSource {
	return &DepositSource{client: client, accountID: accountID, chain: chain}
}

// Status implements the tracker status source for deposits. Unknown hashes are pending.
func (s *DepositSource) Status(ctx context.Context, txHash string) (intent.StatusReport, error) {
	deposits, err := s.client.RecentDeposits(ctx, s.accountID, s.chain)
	if err != nil {
		return intent.StatusReport{}, err
	}
	for _, d := range deposits {
		if d.TxHash == txHash {
			return intent.StatusReport{Status: d.Status, DestinationTxHash: d.TxHash}, nil
		}
	}
	return intent.StatusReport{Status: StatusPending}, nil
}
