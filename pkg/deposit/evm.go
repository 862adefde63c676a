package deposit

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"near-intents/config"
)

// ERC20 transfer and balanceOf ABI
const erc20ABI = `[
	{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"}
]`

// EVMDepositor handles deposits on EVM-compatible blockchains. Without a
// private key it can only confirm transactions.
type EVMDepositor struct {
	network    config.EVMNetwork
	client     *ethclient.Client
	privateKey *ecdsa.PrivateKey
	erc20      abi.ABI
}

// NewEVMDepositor connects to network's RPC endpoint
func NewEVMDepositor(ctx context.Context, network config.EVMNetwork) (*EVMDepositor, error) {
	if network.RPCUrl == "" {
		return nil, fmt.Errorf("RPC URL not configured")
	}

	parsedABI, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}

	d := &EVMDepositor{network: network, erc20: parsedABI}
	if network.PrivateKey != "" {
		d.privateKey, err = crypto.HexToECDSA(strings.TrimPrefix(network.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
	}

	d.client, err = ethclient.DialContext(ctx, network.RPCUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}
	return d, nil
}

// SendDeposit signs and broadcasts t, returning the transaction hash
func (e *EVMDepositor) SendDeposit(ctx context.Context, t Transfer) (string, error) {
	if e.privateKey == nil {
		return "", fmt.Errorf("private key not configured")
	}
	if !common.IsHexAddress(t.Recipient) {
		return "", fmt.Errorf("invalid recipient address: %s", t.Recipient)
	}
	fromAddress := crypto.PubkeyToAddress(e.privateKey.PublicKey)

	nonce, err := e.client.PendingNonceAt(ctx, fromAddress)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := e.getGasPrice(ctx)
	if err != nil {
		return "", err
	}

	var tx *types.Transaction
	if t.Token == "" {
		tx, err = e.nativeTransfer(ctx, fromAddress, common.HexToAddress(t.Recipient), t.Amount, nonce, gasPrice)
	} else {
		tx, err = e.erc20Transfer(ctx, fromAddress, common.HexToAddress(t.Recipient), t.Token, t.Amount, nonce, gasPrice)
	}
	if err != nil {
		return "", err
	}

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(big.NewInt(e.network.ChainID)), e.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := e.client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}
	return signedTx.Hash().Hex(), nil
}

func (e *EVMDepositor) nativeTransfer(ctx context.Context, from, to common.Address, amount *big.Int, nonce uint64, gasPrice *big.Int) (*types.Transaction, error) {
	balance, err := e.client.BalanceAt(ctx, from, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	if balance.Cmp(amount) < 0 {
		return nil, fmt.Errorf("insufficient balance: have %s wei, need %s wei", balance.String(), amount.String())
	}

	gasLimit := uint64(21000)
	if e.network.GasLimit != nil {
		gasLimit = *e.network.GasLimit
	}
	return types.NewTransaction(nonce, to, amount, gasLimit, gasPrice, nil), nil
}

func (e *EVMDepositor) erc20Transfer(ctx context.Context, from, to common.Address, tokenContract string, amount *big.Int, nonce uint64, gasPrice *big.Int) (*types.Transaction, error) {
	if !common.IsHexAddress(tokenContract) {
		return nil, fmt.Errorf("invalid token contract address: %s", tokenContract)
	}
	tokenAddress := common.HexToAddress(tokenContract)

	balance, err := e.erc20Balance(ctx, tokenAddress, from)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(amount) < 0 {
		return nil, fmt.Errorf("insufficient token balance: have %s, need %s", balance.String(), amount.String())
	}

	data, err := e.erc20.Pack("transfer", to, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack transfer data: %w", err)
	}

	gasLimit := uint64(100000)
	if e.network.GasLimit != nil {
		gasLimit = *e.network.GasLimit
	} else if estimated, err := e.client.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &tokenAddress, Data: data}); err == nil {
		gasLimit = estimated * 120 / 100
	}
	return types.NewTransaction(nonce, tokenAddress, big.NewInt(0), gasLimit, gasPrice, data), nil
}

func (e *EVMDepositor) getGasPrice(ctx context.Context) (*big.Int, error) {
	if e.network.GasPrice != nil {
		return big.NewInt(*e.network.GasPrice), nil
	}
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	return gasPrice, nil
}

func (e *EVMDepositor) erc20Balance(ctx context.Context, token, account common.Address) (*big.Int, error) {
	data, err := e.erc20.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf data: %w", err)
	}
	result, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call balanceOf: %w", err)
	}
	return new(big.Int).SetBytes(result), nil
}

// Confirm reports whether txHash is mined and succeeded
func (e *EVMDepositor) Confirm(ctx context.Context, txHash string) (Confirmation, error) {
	receipt, err := e.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if errors.Is(err, ethereum.NotFound) {
		return Confirmation{}, nil
	}
	if err != nil {
		return Confirmation{}, fmt.Errorf("failed to get transaction receipt: %w", err)
	}
	return Confirmation{
		Found:   true,
		Success: receipt.Status == types.ReceiptStatusSuccessful,
		Block:   receipt.BlockNumber.Uint64(),
	}, nil
}

// Close closes the client connection
func (e *EVMDepositor) Close() {
	if e.client != nil {
		e.client.Close()
	}
}
