package deposit

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
)

// Transfer describes an on-chain payment to a deposit address.
type Transfer struct {
	Recipient string
	// Token is the ERC-20 contract or SPL mint. Empty means the native coin.
	Token string
	// Amount is in the token's smallest unit.
	Amount *big.Int
}

// Confirmation is the on-chain state of a transaction.
type Confirmation struct {
	Found   bool
	Success bool
	Block   uint64
}

// Depositor sends and confirms transactions on one blockchain.
type Depositor interface {
	SendDeposit(ctx context.Context, t Transfer) (string, error)
	Confirm(ctx context.Context, txHash string) (Confirmation, error)
	Close()
}

// Manager routes deposits and confirmations to the depositor registered for a chain.
type Manager struct {
	mu         sync.RWMutex
	depositors map[string]Depositor
}

// NewManager creates an empty deposit manager
func NewManager() *Manager {
	return &Manager{depositors: make(map[string]Depositor)}
}

// Register adds d for chain, replacing any previous depositor.
func (m *Manager) Register(chain string, d Depositor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chain = normalizeChain(chain)
	if prev, ok := m.depositors[chain]; ok {
		prev.Close()
	}
	m.depositors[chain] = d
}

// IsEnabledForChain returns whether a depositor is registered for chain
func (m *Manager) IsEnabledForChain(chain string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.depositors[normalizeChain(chain)]
	return ok
}

func (m *Manager) depositor(chain string) (Depositor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.depositors[normalizeChain(chain)]
	if !ok {
		return nil, fmt.Errorf("deposits not configured for chain: %s", chain)
	}
	return d, nil
}

// SendDeposit sends a deposit for the specified chain
func (m *Manager) SendDeposit(ctx context.Context, chain string, t Transfer) (string, error) {
	if t.Amount == nil || t.Amount.Sign() <= 0 {
		return "", fmt.Errorf("deposit amount must be positive")
	}
	d, err := m.depositor(chain)
	if err != nil {
		return "", err
	}
	return d.SendDeposit(ctx, t)
}

// Confirm looks txHash up on chain.
func (m *Manager) Confirm(ctx context.Context, chain, txHash string) (Confirmation, error) {
	d, err := m.depositor(chain)
	if err != nil {
		return Confirmation{}, err
	}
	return d.Confirm(ctx, txHash)
}

// GetSupportedChains returns the chains with a registered depositor
func (m *Manager) GetSupportedChains() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	supported := make([]string, 0, len(m.depositors))
	for chain := range m.depositors {
		supported = append(supported, chain)
	}
	sort.Strings(supported)
	return supported
}

// Close releases every depositor.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for chain, d := range m.depositors {
		d.Close()
		delete(m.depositors, chain)
	}
}

func normalizeChain(chain string) string {
	chain = strings.ToLower(strings.TrimSpace(chain))
	switch chain {
	case "ethereum":
		return "eth"
	case "sol":
		return "solana"
	}
	return chain
}
