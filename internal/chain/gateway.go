// Package chain wraps an EVM JSON-RPC endpoint behind a small gateway used
// for ERC-20 reads and signed transaction submission.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/stakestore/stakestore/internal/domain"
)

// receiptPollInterval is how often WaitMined polls for a receipt.
const receiptPollInterval = 2 * time.Second

// TxRequest describes a transaction to sign and submit.
type TxRequest struct {
	To       string
	Data     []byte
	Value    *big.Int
	GasLimit uint64 // 0 means estimate
}

// Receipt is the confirmation result of a mined transaction.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
	Success     bool
}

// Gateway abstracts the chain operations the workflow needs. Implementations
// must be safe for concurrent use.
type Gateway interface {
	SignerAddress() string
	Submit(ctx context.Context, req TxRequest) (string, error)
	WaitMined(ctx context.Context, txHash string) (Receipt, error)
	TokenBalance(ctx context.Context, token, owner string) (*big.Int, error)
	TokenAllowance(ctx context.Context, token, owner, spender string) (*big.Int, error)
}

// EthGateway implements Gateway on top of go-ethereum's ethclient.
type EthGateway struct {
	client         *ethclient.Client
	privateKey     *ecdsa.PrivateKey
	signerAddr     common.Address
	chainID        *big.Int
	confirmTimeout time.Duration
	logger         *slog.Logger

	// nonceMu serialises nonce fetch and send so concurrent submissions do
	// not race on the pending nonce.
	nonceMu sync.Mutex
}

// NewEthGateway dials the RPC endpoint and prepares a signing gateway.
// privateKeyHex may carry an optional 0x prefix; pass "" for a read-only
// gateway (Submit will fail).
func NewEthGateway(ctx context.Context, rpcURL, privateKeyHex string, chainID int64, confirmTimeout time.Duration, logger *slog.Logger) (*EthGateway, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dialing %s: %w", rpcURL, err)
	}

	g := &EthGateway{
		client:         client,
		chainID:        big.NewInt(chainID),
		confirmTimeout: confirmTimeout,
		logger:         logger.With("component", "chain"),
	}

	if privateKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("chain: parsing private key: %w", err)
		}
		g.privateKey = key
		g.signerAddr = crypto.PubkeyToAddress(key.PublicKey)
	}

	return g, nil
}

// Close releases the underlying RPC connection.
func (g *EthGateway) Close() {
	g.client.Close()
}

// SignerAddress returns the checksummed address of the signing key, or ""
// when the gateway is read-only.
func (g *EthGateway) SignerAddress() string {
	if g.privateKey == nil {
		return ""
	}
	return g.signerAddr.Hex()
}

// Submit signs req with the gateway key and broadcasts it, returning the
// transaction hash. It does not wait for the transaction to mine.
func (g *EthGateway) Submit(ctx context.Context, req TxRequest) (string, error) {
	if g.privateKey == nil {
		return "", fmt.Errorf("chain: submit: no signing key configured")
	}
	if !common.IsHexAddress(req.To) {
		return "", fmt.Errorf("chain: submit: invalid to address %q", req.To)
	}
	to := common.HexToAddress(req.To)

	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}

	g.nonceMu.Lock()
	defer g.nonceMu.Unlock()

	nonce, err := g.client.PendingNonceAt(ctx, g.signerAddr)
	if err != nil {
		return "", fmt.Errorf("chain: fetching nonce: %w", err)
	}

	gasPrice, err := g.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("chain: suggesting gas price: %w", err)
	}

	gasLimit := req.GasLimit
	if gasLimit == 0 {
		gasLimit, err = g.client.EstimateGas(ctx, ethereum.CallMsg{
			From:     g.signerAddr,
			To:       &to,
			Value:    value,
			Data:     req.Data,
			GasPrice: gasPrice,
		})
		if err != nil {
			return "", fmt.Errorf("chain: estimating gas: %w", err)
		}
		// Headroom over the estimate; underestimation reverts the tx.
		gasLimit = gasLimit + gasLimit/5
	}

	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, req.Data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(g.chainID), g.privateKey)
	if err != nil {
		return "", fmt.Errorf("chain: signing transaction: %w", err)
	}

	if err := g.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("chain: sending transaction: %w", err)
	}

	hash := signed.Hash().Hex()
	g.logger.Info("transaction submitted",
		"tx_hash", hash,
		"to", req.To,
		"nonce", nonce,
		"gas_limit", gasLimit)
	return hash, nil
}

// WaitMined polls for the receipt of txHash until it lands or the configured
// confirmation timeout elapses. A timeout returns domain.ErrChainTimeout; the
// transaction may still mine later.
func (g *EthGateway) WaitMined(ctx context.Context, txHash string) (Receipt, error) {
	hash := common.HexToHash(txHash)

	waitCtx, cancel := context.WithTimeout(ctx, g.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := g.client.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			out := Receipt{
				TxHash:      txHash,
				BlockNumber: receipt.BlockNumber.Uint64(),
				GasUsed:     receipt.GasUsed,
				Success:     receipt.Status == types.ReceiptStatusSuccessful,
			}
			g.logger.Info("transaction mined",
				"tx_hash", txHash,
				"block", out.BlockNumber,
				"success", out.Success)
			return out, nil
		}
		// "not found" just means not mined yet; keep polling.

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return Receipt{}, ctx.Err()
			}
			return Receipt{}, fmt.Errorf("chain: waiting for %s: %w", txHash, domain.ErrChainTimeout)
		case <-ticker.C:
		}
	}
}

// TokenBalance returns the ERC-20 balance of owner on token.
func (g *EthGateway) TokenBalance(ctx context.Context, token, owner string) (*big.Int, error) {
	data, err := packBalanceOf(owner)
	if err != nil {
		return nil, err
	}
	out, err := g.callToken(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("chain: balanceOf %s on %s: %w", owner, token, err)
	}
	return unpackBigInt("balanceOf", out)
}

// TokenAllowance returns the ERC-20 allowance granted by owner to spender on
// token.
func (g *EthGateway) TokenAllowance(ctx context.Context, token, owner, spender string) (*big.Int, error) {
	data, err := packAllowance(owner, spender)
	if err != nil {
		return nil, err
	}
	out, err := g.callToken(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("chain: allowance %s->%s on %s: %w", owner, spender, token, err)
	}
	return unpackBigInt("allowance", out)
}

func (g *EthGateway) callToken(ctx context.Context, token string, data []byte) ([]byte, error) {
	if !common.IsHexAddress(token) {
		return nil, fmt.Errorf("invalid token address %q", token)
	}
	addr := common.HexToAddress(token)
	return g.client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
}
