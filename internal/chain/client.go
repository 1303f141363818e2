// Package chain wraps JSON-RPC access to the venue chain. All reads go
// through a bounded retry with doubling backoff; broadcasts are never
// retried because a resend with the same nonce is not idempotent from the
// caller's point of view.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/driftline/ate/internal/logger"
)

var (
	ErrChainRead   = errors.New("chain read failed after retries")
	ErrChainWrite  = errors.New("transaction broadcast failed")
	ErrTxNotMined  = errors.New("transaction was not mined within the wait budget")
)

const (
	readAttempts     = 3
	readBackoffStart = 500 * time.Millisecond
	receiptPollEvery = 3 * time.Second
)

// Client is the engine's chain access point.
type Client struct {
	eth     *ethclient.Client
	chainID int64
	logger  zerolog.Logger
}

// NewClient dials the RPC endpoint and verifies the chain id matches the
// configured one.
func NewClient(ctx context.Context, rpcURL string, expectedChainID int64) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc endpoint: %w", err)
	}
	onChainID, err := eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query chain id: %w", err)
	}
	if onChainID.Int64() != expectedChainID {
		return nil, fmt.Errorf("rpc endpoint serves chain %d, configured chain is %d", onChainID.Int64(), expectedChainID)
	}
	return &Client{
		eth:     eth,
		chainID: expectedChainID,
		logger:  logger.GetForComponent("chain_client"),
	}, nil
}

// ChainID is the verified chain id of the connected endpoint.
func (c *Client) ChainID() int64 {
	return c.chainID
}

// withRetry runs a read with bounded retries and doubling backoff.
func (c *Client) withRetry(ctx context.Context, what string, fn func() error) error {
	backoff := readBackoffStart
	var lastErr error
	for attempt := 1; attempt <= readAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt < readAttempts {
			c.logger.Warn().Err(lastErr).Str("operation", what).Int("attempt", attempt).Msg("Chain read failed, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
	}
	return errors.Join(ErrChainRead, fmt.Errorf("%s: %w", what, lastErr))
}

// CallContract performs an eth_call against the latest block.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	var out []byte
	err := c.withRetry(ctx, "eth_call", func() error {
		var callErr error
		out, callErr = c.eth.CallContract(ctx, msg, nil)
		return callErr
	})
	return out, err
}

// ERC20Balance reads balanceOf(holder) on the given token.
func (c *Client) ERC20Balance(ctx context.Context, token, holder common.Address) (sdkmath.Int, error) {
	data, err := PackBalanceOf(holder)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	raw, err := c.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data})
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to read balance of %s on token %s: %w", holder.Hex(), token.Hex(), err)
	}
	balance, err := UnpackBalanceOf(raw)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to decode balance of %s on token %s: %w", holder.Hex(), token.Hex(), err)
	}
	return balance, nil
}

// ERC20Allowance reads allowance(owner, spender) on the given token.
func (c *Client) ERC20Allowance(ctx context.Context, token, owner, spender common.Address) (sdkmath.Int, error) {
	data, err := PackAllowance(owner, spender)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	raw, err := c.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data})
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to read allowance on token %s: %w", token.Hex(), err)
	}
	allowance, err := UnpackBalanceOf(raw)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to decode allowance on token %s: %w", token.Hex(), err)
	}
	return allowance, nil
}

// NativeBalance reads the gas currency balance of an address.
func (c *Client) NativeBalance(ctx context.Context, address common.Address) (sdkmath.Int, error) {
	var out *big.Int
	err := c.withRetry(ctx, "eth_getBalance", func() error {
		var callErr error
		out, callErr = c.eth.BalanceAt(ctx, address, nil)
		return callErr
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return sdkmath.NewIntFromBigInt(out), nil
}

// PendingNonceAt reads the next usable nonce for an address, including
// transactions still in the mempool.
func (c *Client) PendingNonceAt(ctx context.Context, address common.Address) (uint64, error) {
	var nonce uint64
	err := c.withRetry(ctx, "eth_getTransactionCount", func() error {
		var callErr error
		nonce, callErr = c.eth.PendingNonceAt(ctx, address)
		return callErr
	})
	return nonce, err
}

// SuggestGasFees returns the current base fee ceiling and priority tip.
func (c *Client) SuggestGasFees(ctx context.Context) (feeCap, tipCap sdkmath.Int, err error) {
	var header *coretypes.Header
	var tip *big.Int
	err = c.withRetry(ctx, "gas fee suggestion", func() error {
		var callErr error
		header, callErr = c.eth.HeaderByNumber(ctx, nil)
		if callErr != nil {
			return callErr
		}
		tip, callErr = c.eth.SuggestGasTipCap(ctx)
		return callErr
	})
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	if header.BaseFee == nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("chain %d does not report a base fee", c.chainID)
	}
	// Fee cap covers two full base fee doublings plus the tip.
	ceiling := new(big.Int).Mul(header.BaseFee, big.NewInt(2))
	ceiling = ceiling.Add(ceiling, tip)
	return sdkmath.NewIntFromBigInt(ceiling), sdkmath.NewIntFromBigInt(tip), nil
}

// BlockNumber reads the latest block height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var number uint64
	err := c.withRetry(ctx, "eth_blockNumber", func() error {
		var callErr error
		number, callErr = c.eth.BlockNumber(ctx)
		return callErr
	})
	return number, err
}

// HeaderTimestamp reads the timestamp of a block.
func (c *Client) HeaderTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	var header *coretypes.Header
	err := c.withRetry(ctx, "eth_getBlockByNumber", func() error {
		var callErr error
		header, callErr = c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
		return callErr
	})
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil
}

// FilterLogs queries event logs. Used by the treasury scan for ERC-20
// Transfer events against the vault address.
func (c *Client) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]coretypes.Log, error) {
	var logs []coretypes.Log
	err := c.withRetry(ctx, "eth_getLogs", func() error {
		var callErr error
		logs, callErr = c.eth.FilterLogs(ctx, query)
		return callErr
	})
	return logs, err
}

// SendTransaction broadcasts a signed transaction. Not retried.
func (c *Client) SendTransaction(ctx context.Context, tx *coretypes.Transaction) error {
	if err := c.eth.SendTransaction(ctx, tx); err != nil {
		return errors.Join(ErrChainWrite, fmt.Errorf("broadcast of %s: %w", tx.Hash().Hex(), err))
	}
	return nil
}

// WaitMined polls for the receipt of a broadcast transaction until the
// context expires.
func (c *Client) WaitMined(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error) {
	ticker := time.NewTicker(receiptPollEvery)
	defer ticker.Stop()
	for {
		receipt, err := c.eth.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			c.logger.Warn().Err(err).Str("tx_hash", txHash.Hex()).Msg("Receipt poll failed")
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, errors.Join(ErrTxNotMined, fmt.Errorf("tx %s: %w", txHash.Hex(), ctx.Err()))
		}
	}
}
