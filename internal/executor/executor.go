// Package executor owns the trade lifecycle from routing through broadcast
// to settlement. Transactions broadcast strictly in nonce order; the first
// revert fails the owning trade and halts its remaining transactions.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/driftline/ate/internal/chain"
	"github.com/driftline/ate/internal/logger"
	"github.com/driftline/ate/internal/portfolio"
	"github.com/driftline/ate/internal/routing"
	"github.com/driftline/ate/internal/types"
	"github.com/driftline/ate/internal/universe"
	"github.com/driftline/ate/internal/utils"
)

var ErrTransactionRevert = errors.New("transaction reverted on-chain")

// Network is the chain access execution needs.
type Network interface {
	SendTransaction(ctx context.Context, tx *coretypes.Transaction) error
	WaitMined(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error)
}

// Executor routes, broadcasts and settles trades against one venue.
type Executor struct {
	router  *routing.Router
	network Network
	logger  zerolog.Logger
}

// NewExecutor wires the executor.
func NewExecutor(router *routing.Router, network Network) (*Executor, error) {
	if router == nil {
		return nil, fmt.Errorf("router is required")
	}
	if network == nil {
		return nil, fmt.Errorf("network access is required")
	}
	return &Executor{
		router:  router,
		network: network,
		logger:  logger.GetForComponent("executor"),
	}, nil
}

// ExecuteTrades runs every trade through route, broadcast and settle.
// Routing and pre-flight failures skip the trade and the cycle continues;
// signing configuration failures abort the whole pass.
func (e *Executor) ExecuteTrades(
	ctx context.Context,
	state *routing.RoutingState,
	u *universe.PairUniverse,
	ledger *portfolio.Portfolio,
	trades []*types.Trade,
	maxSlippageFraction float64,
	checkBalances bool,
	report *CycleReport,
) error {
	for _, trade := range trades {
		log := e.logger.With().Int64("trade_id", trade.ID).Str("pair", trade.Pair.String()).Logger()

		if err := e.routeTrade(ctx, state, u, trade, maxSlippageFraction, checkBalances); err != nil {
			if errors.Is(err, routing.ErrCannotRouteTrade) || errors.Is(err, routing.ErrInsufficientBalance) {
				log.Warn().Err(err).Msg("Skipping unroutable trade")
				report.Skip(trade.ID, trade.Pair.String(), err.Error())
				continue
			}
			// Anything else at signing time is cycle-fatal.
			return fmt.Errorf("routing trade %d: %w", trade.ID, err)
		}

		if err := e.broadcastAndSettle(ctx, ledger, trade, state.Holder(), report); err != nil {
			if errors.Is(err, ErrTransactionRevert) {
				log.Error().Err(err).Msg("Trade failed on-chain")
				report.FailedTradeIDs = append(report.FailedTradeIDs, trade.ID)
				continue
			}
			return fmt.Errorf("executing trade %d: %w", trade.ID, err)
		}
		report.ExecutedTradeIDs = append(report.ExecutedTradeIDs, trade.ID)
	}
	return nil
}

// routeTrade builds and attaches the transaction sequence. A failed route
// leaves the trade without transactions.
func (e *Executor) routeTrade(
	ctx context.Context,
	state *routing.RoutingState,
	u *universe.PairUniverse,
	trade *types.Trade,
	maxSlippageFraction float64,
	checkBalances bool,
) error {
	if trade.HasTransactions() {
		return fmt.Errorf("%w: trade %d", types.ErrTradeAlreadyRouted, trade.ID)
	}

	var intent routing.SwapIntent
	if trade.IsBuy() {
		// Planned reserve amounts are denominated in the strategy reserve
		// asset, also for multihop pairs that quote in something else.
		rawReserve := utils.DecToRaw(trade.PlannedReserve, e.router.ReserveAsset().Decimals)
		intent = e.router.BuyIntent(trade.Pair, rawReserve)
	} else {
		var err error
		intent, err = e.router.InvertForSell(trade.Pair, trade.PlannedQuantity)
		if err != nil {
			return err
		}
	}

	if trade.SlippageTolerance > 0 {
		maxSlippageFraction = trade.SlippageTolerance
	}
	sequence, err := e.router.BuildSwap(ctx, state, u, intent, maxSlippageFraction, checkBalances)
	if err != nil {
		return err
	}
	return trade.SetTransactions(sequence)
}

// broadcastAndSettle submits the trade's transactions in nonce order and
// settles the ledger from the receipts.
func (e *Executor) broadcastAndSettle(
	ctx context.Context,
	ledger *portfolio.Portfolio,
	trade *types.Trade,
	holder common.Address,
	report *CycleReport,
) error {
	now := time.Now()
	if err := trade.MarkBroadcasted(now); err != nil {
		return err
	}

	var swapReceipt *coretypes.Receipt
	for _, tx := range trade.Transactions {
		receipt, err := e.broadcastOne(ctx, tx)
		if err != nil {
			reason := fmt.Sprintf("transaction %s: %v", tx.TxHash.Hex(), err)
			if failErr := trade.MarkFailed(reason, time.Now()); failErr != nil {
				return failErr
			}
			return err
		}
		report.TxHashes = append(report.TxHashes, tx.TxHash.Hex())
		swapReceipt = receipt
	}

	executedQuantity, executedReserve := e.settledAmounts(trade, swapReceipt, holder)
	if err := trade.MarkSuccess(executedQuantity, executedReserve, time.Now()); err != nil {
		return err
	}
	if err := ledger.SettleTrade(trade, e.router.ReserveAsset().Address, time.Now()); err != nil {
		return err
	}
	e.logger.Info().
		Int64("trade_id", trade.ID).
		Str("executed_quantity", executedQuantity.String()).
		Str("executed_reserve", executedReserve.String()).
		Msg("Trade settled")
	return nil
}

// broadcastOne submits a single signed transaction and waits for its
// receipt. Broadcasts are never retried.
func (e *Executor) broadcastOne(ctx context.Context, tx *types.BlockchainTransaction) (*coretypes.Receipt, error) {
	signed := new(coretypes.Transaction)
	if err := signed.UnmarshalBinary(tx.SignedBytes); err != nil {
		return nil, fmt.Errorf("failed to decode signed payload of %s: %w", tx.TxHash.Hex(), err)
	}
	if err := e.network.SendTransaction(ctx, signed); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	tx.BroadcastedAt = &now

	receipt, err := e.network.WaitMined(ctx, tx.TxHash)
	if err != nil {
		return nil, err
	}
	tx.BlockNumber = receipt.BlockNumber.Uint64()
	tx.GasUsed = receipt.GasUsed
	if receipt.Status != coretypes.ReceiptStatusSuccessful {
		tx.Outcome = types.OutcomeReverted
		tx.RevertReason = "execution reverted"
		return nil, fmt.Errorf("%w: %s nonce %d", ErrTransactionRevert, tx.TxHash.Hex(), tx.Nonce)
	}
	tx.Outcome = types.OutcomeSuccess
	return receipt, nil
}

// settledAmounts reads the actual token movements out of the swap receipt's
// Transfer logs. Falls back to the planned amounts when the receipt carries
// no usable logs, which keeps backtest style fakes working.
func (e *Executor) settledAmounts(trade *types.Trade, receipt *coretypes.Receipt, holder common.Address) (sdkmath.LegacyDec, sdkmath.LegacyDec) {
	reserve := e.router.ReserveAsset()
	base := trade.Pair.Base

	rawBase := sdkmath.ZeroInt()
	rawReserve := sdkmath.ZeroInt()
	seen := false
	if receipt != nil {
		for _, logEntry := range receipt.Logs {
			transfer, ok := chain.ParseTransferLog(*logEntry)
			if !ok {
				continue
			}
			switch {
			case transfer.Token == base.Address && transfer.To == holder:
				rawBase = rawBase.Add(transfer.RawAmount)
				seen = true
			case transfer.Token == base.Address && transfer.From == holder:
				rawBase = rawBase.Sub(transfer.RawAmount)
				seen = true
			case transfer.Token == reserve.Address && transfer.To == holder:
				rawReserve = rawReserve.Add(transfer.RawAmount)
				seen = true
			case transfer.Token == reserve.Address && transfer.From == holder:
				rawReserve = rawReserve.Sub(transfer.RawAmount)
				seen = true
			}
		}
	}
	if !seen {
		return trade.PlannedQuantity, trade.PlannedReserve
	}
	// Quantity keeps the trade sign; reserve is reported unsigned.
	executedQuantity := utils.RawToDec(rawBase, base.Decimals)
	executedReserve := utils.RawToDec(rawReserve.Abs(), reserve.Decimals)
	return executedQuantity, executedReserve
}
