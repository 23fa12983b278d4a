// Package approval ensures the router holds a sufficient ERC-20 allowance
// before a mint transaction is submitted.
package approval

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/stakestore/stakestore/internal/chain"
)

// Result reports what EnsureAllowance did.
type Result struct {
	// TxHash is the approval transaction hash, empty when no transaction
	// was needed.
	TxHash string
	// Approved is true when a new approval transaction was mined.
	Approved bool
}

// Manager checks and grants token allowances through the chain gateway.
type Manager struct {
	gateway chain.Gateway
	spender string
	logger  *slog.Logger
}

// NewManager creates an approval manager granting allowances to spender.
func NewManager(gateway chain.Gateway, spender string, logger *slog.Logger) *Manager {
	return &Manager{
		gateway: gateway,
		spender: spender,
		logger:  logger.With("component", "approval"),
	}
}

// EnsureAllowance guarantees the configured spender can move at least amount
// of token from the operator wallet. When the existing allowance already
// covers amount it returns immediately with Approved=false. Otherwise it
// submits an exact-amount approve and waits for it to mine; a reverted
// approval is an error.
func (m *Manager) EnsureAllowance(ctx context.Context, token string, amount *big.Int) (Result, error) {
	owner := m.gateway.SignerAddress()
	if owner == "" {
		return Result{}, fmt.Errorf("approval: gateway has no signing key")
	}

	current, err := m.gateway.TokenAllowance(ctx, token, owner, m.spender)
	if err != nil {
		return Result{}, fmt.Errorf("approval: checking allowance: %w", err)
	}

	if current.Cmp(amount) >= 0 {
		m.logger.Debug("allowance sufficient",
			"token", token,
			"current", current.String(),
			"required", amount.String())
		return Result{}, nil
	}

	// Approvals are exact-amount, never unlimited.
	data, err := chain.ERC20ApproveData(m.spender, amount)
	if err != nil {
		return Result{}, fmt.Errorf("approval: encoding approve: %w", err)
	}

	txHash, err := m.gateway.Submit(ctx, chain.TxRequest{To: token, Data: data})
	if err != nil {
		return Result{}, fmt.Errorf("approval: submitting approve: %w", err)
	}

	m.logger.Info("approval submitted",
		"token", token,
		"spender", m.spender,
		"amount", amount.String(),
		"tx_hash", txHash)

	receipt, err := m.gateway.WaitMined(ctx, txHash)
	if err != nil {
		return Result{TxHash: txHash}, fmt.Errorf("approval: waiting for approve %s: %w", txHash, err)
	}
	if !receipt.Success {
		return Result{TxHash: txHash}, fmt.Errorf("approval: approve %s reverted", txHash)
	}

	return Result{TxHash: txHash, Approved: true}, nil
}
