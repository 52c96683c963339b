// Package evm implements the txtracker chain-client capability for
// EVM-compatible, confirmation-count chains (Moonbeam and friends) on top
// of go-ethereum's ethclient. Inclusion is detected by polling for the
// transaction receipt; each new chain head after inclusion is reported as
// a confirmation, leaving the success threshold to the tracker.
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/KyberNetwork/logger"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	txtracker "github.com/uliana1one/keypass-txtracker"
)

const (
	// DefaultPollInterval between receipt/head polls.
	DefaultPollInterval = 3 * time.Second

	// maxConsecutivePollErrors before the subscription reports failure.
	maxConsecutivePollErrors = 10
)

// Client implements txtracker.ChainClient for an EVM chain.
type Client struct {
	ec           *ethclient.Client
	chainID      *big.Int
	pollInterval time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithPollInterval overrides the receipt/head poll interval.
func WithPollInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// NewClient wraps an existing ethclient for the given chain ID.
func NewClient(ec *ethclient.Client, chainID *big.Int, opts ...ClientOption) *Client {
	c := &Client{
		ec:           ec,
		chainID:      chainID,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to an EVM node, queries its chain ID and returns a client.
func Dial(ctx context.Context, rawurl string, opts ...ClientOption) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rawurl)
	if err != nil {
		return nil, fmt.Errorf("couldn't dial evm node %s: %w", rawurl, err)
	}
	chainID, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("couldn't query chain id from %s: %w", rawurl, err)
	}
	return NewClient(ec, chainID, opts...), nil
}

// ChainID returns the chain ID the client was configured with.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.ec.Close()
}

// Kind reports the confirmation-count chain family.
func (c *Client) Kind() txtracker.ChainKind {
	return txtracker.ChainKindConfirmationCount
}

// SubmitSigned signs the prepared transaction with the EVM signer and
// sends it, returning the transaction hash.
func (c *Client) SubmitSigned(ctx context.Context, tx txtracker.PreparedTx, signer txtracker.Signer) (string, error) {
	ptx, ok := tx.(*Tx)
	if !ok {
		return "", fmt.Errorf("evm client got a %T, want *evm.Tx", tx)
	}
	s, ok := signer.(*Signer)
	if !ok {
		return "", fmt.Errorf("evm client got a %T, want *evm.Signer", signer)
	}

	signed, err := types.SignTx(ptx.Inner, types.LatestSignerForChainID(c.chainID), s.key)
	if err != nil {
		return "", fmt.Errorf("couldn't sign tx: %w", err)
	}
	if err := c.ec.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("couldn't send tx: %w", err)
	}

	hash := signed.Hash().Hex()
	logger.WithFields(logger.Fields{
		"tx_hash":  hash,
		"chain_id": c.chainID.String(),
		"nonce":    signed.Nonce(),
		"signer":   s.ID(),
	}).Debug("evm transaction sent")
	return hash, nil
}

// SubscribeStatus polls for the receipt and, after inclusion, for new
// chain heads, translating both into status events.
func (c *Client) SubscribeStatus(ctx context.Context, hash string) (txtracker.StatusSubscription, error) {
	if !strings.HasPrefix(hash, "0x") || len(hash) != 66 {
		return nil, fmt.Errorf("malformed evm tx hash %q", hash)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		events: make(chan txtracker.StatusEvent, 8),
		errs:   make(chan error, 1),
		cancel: cancel,
	}
	go c.watch(watchCtx, common.HexToHash(hash), sub)
	return sub, nil
}

type subscription struct {
	events chan txtracker.StatusEvent
	errs   chan error
	cancel context.CancelFunc
	once   sync.Once
}

func (s *subscription) Events() <-chan txtracker.StatusEvent { return s.events }
func (s *subscription) Err() <-chan error                    { return s.errs }
func (s *subscription) Unsubscribe()                         { s.once.Do(s.cancel) }

func (s *subscription) emit(ctx context.Context, ev txtracker.StatusEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *subscription) fail(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

func (c *Client) watch(ctx context.Context, hash common.Hash, sub *subscription) {
	defer close(sub.events)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	var (
		included  bool
		lastSeen  uint64
		pollFails int
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !included {
			receipt, err := c.ec.TransactionReceipt(ctx, hash)
			if err != nil {
				if errors.Is(err, ethereum.NotFound) {
					continue
				}
				pollFails++
				if pollFails >= maxConsecutivePollErrors {
					sub.fail(fmt.Errorf("receipt polling for %s kept failing: %w", hash.Hex(), err))
					return
				}
				continue
			}
			pollFails = 0
			included = true
			lastSeen = receipt.BlockNumber.Uint64()

			if receipt.Status == types.ReceiptStatusFailed {
				sub.emit(ctx, txtracker.FailedEvent{
					Reason:      "execution reverted",
					BlockNumber: receipt.BlockNumber.Uint64(),
					BlockHash:   receipt.BlockHash.Hex(),
					GasUsed:     receipt.GasUsed,
					Fee:         receiptFee(receipt),
				})
				return
			}
			if !sub.emit(ctx, txtracker.InBlockEvent{
				BlockNumber: receipt.BlockNumber.Uint64(),
				BlockHash:   receipt.BlockHash.Hex(),
				GasUsed:     receipt.GasUsed,
				Fee:         receiptFee(receipt),
				Events:      logsToChainEvents(receipt.Logs),
			}) {
				return
			}
			continue
		}

		head, err := c.ec.BlockNumber(ctx)
		if err != nil {
			pollFails++
			if pollFails >= maxConsecutivePollErrors {
				sub.fail(fmt.Errorf("head polling for %s kept failing: %w", hash.Hex(), err))
				return
			}
			continue
		}
		pollFails = 0

		for h := lastSeen + 1; h <= head; h++ {
			if !sub.emit(ctx, txtracker.NewConfirmationEvent{Height: h}) {
				return
			}
		}
		if head > lastSeen {
			lastSeen = head
		}
	}
}

// QueryFeeEstimate estimates gas for the call and multiplies by the
// suggested gas price.
func (c *Client) QueryFeeEstimate(ctx context.Context, tx txtracker.PreparedTx, signer txtracker.Signer) (*txtracker.FeeEstimate, error) {
	ptx, ok := tx.(*Tx)
	if !ok {
		return nil, fmt.Errorf("evm client got a %T, want *evm.Tx", tx)
	}

	msg := ethereum.CallMsg{
		From:  ptx.From,
		To:    ptx.Inner.To(),
		Value: ptx.Inner.Value(),
		Data:  ptx.Inner.Data(),
	}
	gas, err := c.ec.EstimateGas(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("couldn't estimate gas: %w", err)
	}
	price, err := c.ec.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("couldn't get suggested gas price: %w", err)
	}

	amount := new(big.Int).Mul(new(big.Int).SetUint64(gas), price)
	return &txtracker.FeeEstimate{Amount: amount, Unit: "wei"}, nil
}

// QueryBlock returns metadata for a block referenced by decimal number or
// 0x-prefixed hash.
func (c *Client) QueryBlock(ctx context.Context, ref string) (*txtracker.BlockInfo, error) {
	var (
		header *types.Header
		err    error
	)
	if strings.HasPrefix(ref, "0x") {
		header, err = c.ec.HeaderByHash(ctx, common.HexToHash(ref))
	} else {
		var n uint64
		n, err = strconv.ParseUint(ref, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed block reference %q: %w", ref, err)
		}
		header, err = c.ec.HeaderByNumber(ctx, new(big.Int).SetUint64(n))
	}
	if err != nil {
		return nil, fmt.Errorf("couldn't query block %s: %w", ref, err)
	}
	return &txtracker.BlockInfo{
		Number: header.Number.Uint64(),
		Hash:   header.Hash().Hex(),
		Time:   time.Unix(int64(header.Time), 0),
	}, nil
}

func receiptFee(receipt *types.Receipt) *big.Int {
	if receipt.EffectiveGasPrice == nil {
		return nil
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), receipt.EffectiveGasPrice)
}

func logsToChainEvents(logs []*types.Log) []txtracker.ChainEvent {
	if len(logs) == 0 {
		return nil
	}
	events := make([]txtracker.ChainEvent, 0, len(logs))
	for _, l := range logs {
		name := "log"
		if len(l.Topics) > 0 {
			name = l.Topics[0].Hex()
		}
		events = append(events, txtracker.ChainEvent{
			Name: name,
			Data: l.Address.Hex(),
		})
	}
	return events
}
