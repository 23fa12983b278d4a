// Package feed subscribes to on-chain stake intent events and turns them
// into stake requests. Request ids derived from the event log position make
// redelivered events idempotent downstream.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/stakestore/stakestore/internal/domain"
)

// stakeInitiatedSignature is the event emitted by the intake contract:
// StakeInitiated(address indexed user, address indexed token, uint256 amount,
// address indexed market).
const stakeInitiatedSignature = "StakeInitiated(address,address,uint256,address)"

// reconnectBackoff is the wait between subscription attempts after a drop.
const reconnectBackoff = 5 * time.Second

// IntentListener converts StakeInitiated logs into stake requests on a sink
// channel.
type IntentListener struct {
	wsURL    string
	contract common.Address
	slippage float64
	sink     chan<- domain.StakeRequest
	logger   *slog.Logger

	topic common.Hash
}

// NewIntentListener creates a listener on the intake contract at
// contractAddr, reachable over the websocket endpoint wsURL. Requests are
// emitted with the given default slippage.
func NewIntentListener(wsURL, contractAddr string, slippage float64, sink chan<- domain.StakeRequest, logger *slog.Logger) (*IntentListener, error) {
	if !common.IsHexAddress(contractAddr) {
		return nil, fmt.Errorf("feed: invalid contract address %q", contractAddr)
	}
	return &IntentListener{
		wsURL:    wsURL,
		contract: common.HexToAddress(contractAddr),
		slippage: slippage,
		sink:     sink,
		logger:   logger.With("component", "intent_listener"),
		topic:    crypto.Keccak256Hash([]byte(stakeInitiatedSignature)),
	}, nil
}

// Run subscribes to StakeInitiated logs and forwards decoded requests until
// ctx is cancelled. Dropped subscriptions reconnect with backoff.
func (l *IntentListener) Run(ctx context.Context) error {
	for {
		err := l.subscribeOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.logger.Warn("subscription dropped, reconnecting",
			"error", err,
			"backoff", reconnectBackoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectBackoff):
		}
	}
}

func (l *IntentListener) subscribeOnce(ctx context.Context) error {
	client, err := ethclient.DialContext(ctx, l.wsURL)
	if err != nil {
		return fmt.Errorf("feed: dialing %s: %w", l.wsURL, err)
	}
	defer client.Close()

	query := ethereum.FilterQuery{
		Addresses: []common.Address{l.contract},
		Topics:    [][]common.Hash{{l.topic}},
	}

	logs := make(chan types.Log, 64)
	sub, err := client.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return fmt.Errorf("feed: subscribing to logs: %w", err)
	}
	defer sub.Unsubscribe()

	l.logger.Info("listening for stake intents", "contract", l.contract.Hex())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("feed: subscription error: %w", err)
		case lg := <-logs:
			req, err := l.decode(lg)
			if err != nil {
				l.logger.Warn("skipping malformed intent log",
					"tx_hash", lg.TxHash.Hex(),
					"error", err)
				continue
			}
			select {
			case l.sink <- req:
				l.logger.Info("stake intent received",
					"request_id", req.RequestID,
					"user", req.UserAddress,
					"amount", req.InputAmount.String())
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// decode unpacks one StakeInitiated log. The request id is derived from the
// transaction hash and log index, so the same event always produces the same
// id.
func (l *IntentListener) decode(lg types.Log) (domain.StakeRequest, error) {
	if len(lg.Topics) != 4 {
		return domain.StakeRequest{}, fmt.Errorf("expected 4 topics, got %d", len(lg.Topics))
	}
	if len(lg.Data) != 32 {
		return domain.StakeRequest{}, fmt.Errorf("expected 32-byte data, got %d", len(lg.Data))
	}

	user := common.BytesToAddress(lg.Topics[1].Bytes())
	token := common.BytesToAddress(lg.Topics[2].Bytes())
	market := common.BytesToAddress(lg.Topics[3].Bytes())
	amount := new(big.Int).SetBytes(lg.Data)

	if amount.Sign() <= 0 {
		return domain.StakeRequest{}, fmt.Errorf("non-positive amount %s", amount)
	}

	return domain.StakeRequest{
		RequestID:     fmt.Sprintf("evt-%s-%d", lg.TxHash.Hex(), lg.Index),
		UserAddress:   user.Hex(),
		InputToken:    token.Hex(),
		InputAmount:   amount,
		MarketAddress: market.Hex(),
		Slippage:      l.slippage,
		CreatedAt:     time.Now().UTC(),
	}, nil
}
