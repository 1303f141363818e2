/*

This file contains the trade record: one execution attempt against a venue,
owning its ordered transaction sequence and its lifecycle state.

*/

package types

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
)

// TradeDirection tells whether the trade acquires or disposes the base asset.
type TradeDirection string

const (
	TradeBuy  TradeDirection = "buy"
	TradeSell TradeDirection = "sell"
)

// TradeStatus is the lifecycle state of a trade.
//
// started -> has_transactions -> broadcasted -> success | failed
type TradeStatus string

const (
	TradeStarted         TradeStatus = "started"
	TradeHasTransactions TradeStatus = "has_transactions"
	TradeBroadcasted     TradeStatus = "broadcasted"
	TradeSuccess         TradeStatus = "success"
	TradeFailed          TradeStatus = "failed"
)

var (
	ErrTradeAlreadyRouted = errors.New("trade already has transactions attached")
	ErrBadTradeTransition = errors.New("invalid trade status transition")
)

// Trade is one execution attempt. Exactly one trade owns its transactions;
// a trade is never re-routed once transactions are attached.
type Trade struct {
	ID         int64                 `json:"id"`
	PositionID int64                 `json:"position_id"`
	Pair       TradingPairIdentifier `json:"pair"`
	Direction  TradeDirection        `json:"direction"`

	// Planned amounts are exact decimals in token units. Quantities are
	// signed: positive for buys, negative for sells. Reserve amounts and
	// prices are always positive.
	PlannedQuantity   sdkmath.LegacyDec `json:"planned_quantity"`
	PlannedReserve    sdkmath.LegacyDec `json:"planned_reserve"`
	PlannedPrice      sdkmath.LegacyDec `json:"planned_price"`
	SlippageTolerance float64           `json:"slippage_tolerance"`

	Transactions []*BlockchainTransaction `json:"transactions"`
	Status       TradeStatus              `json:"status"`

	// Settled amounts, recorded from on-chain results only. Partial fills are
	// recorded as reported by the venue.
	ExecutedQuantity sdkmath.LegacyDec `json:"executed_quantity"`
	ExecutedReserve  sdkmath.LegacyDec `json:"executed_reserve"`
	ExecutedPrice    sdkmath.LegacyDec `json:"executed_price"`

	CreatedAt     time.Time  `json:"created_at"`
	BroadcastedAt *time.Time `json:"broadcasted_at,omitempty"`
	SettledAt     *time.Time `json:"settled_at,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
}

// NewTrade creates a trade in the started state.
func NewTrade(
	id int64,
	positionID int64,
	pair TradingPairIdentifier,
	direction TradeDirection,
	plannedQuantity sdkmath.LegacyDec,
	plannedReserve sdkmath.LegacyDec,
	plannedPrice sdkmath.LegacyDec,
	slippageTolerance float64,
) *Trade {
	// Normalize the quantity sign to the direction.
	quantity := plannedQuantity.Abs()
	if direction == TradeSell {
		quantity = quantity.Neg()
	}
	return &Trade{
		ID:                id,
		PositionID:        positionID,
		Pair:              pair,
		Direction:         direction,
		PlannedQuantity:   quantity,
		PlannedReserve:    plannedReserve,
		PlannedPrice:      plannedPrice,
		SlippageTolerance: slippageTolerance,
		Status:            TradeStarted,
		ExecutedQuantity:  sdkmath.LegacyZeroDec(),
		ExecutedReserve:   sdkmath.LegacyZeroDec(),
		ExecutedPrice:     sdkmath.LegacyZeroDec(),
		CreatedAt:         time.Now().UTC(),
	}
}

// IsBuy reports whether the trade acquires the base asset.
func (t *Trade) IsBuy() bool {
	return t.Direction == TradeBuy
}

// HasTransactions reports whether routing already attached transactions.
func (t *Trade) HasTransactions() bool {
	return len(t.Transactions) > 0
}

// SetTransactions attaches the routed transaction sequence and moves the
// trade to has_transactions. Re-routing an already routed trade is refused.
func (t *Trade) SetTransactions(txs []*BlockchainTransaction) error {
	if t.HasTransactions() {
		return fmt.Errorf("%w: trade %d", ErrTradeAlreadyRouted, t.ID)
	}
	if t.Status != TradeStarted {
		return fmt.Errorf("%w: trade %d is %s, expected %s", ErrBadTradeTransition, t.ID, t.Status, TradeStarted)
	}
	if len(txs) == 0 {
		return fmt.Errorf("trade %d: cannot attach an empty transaction list", t.ID)
	}
	t.Transactions = txs
	t.Status = TradeHasTransactions
	return nil
}

// MarkBroadcasted moves the trade to broadcasted once its first transaction
// has been handed to the network.
func (t *Trade) MarkBroadcasted(at time.Time) error {
	if t.Status != TradeHasTransactions {
		return fmt.Errorf("%w: trade %d is %s, expected %s", ErrBadTradeTransition, t.ID, t.Status, TradeHasTransactions)
	}
	t.Status = TradeBroadcasted
	ts := at.UTC()
	t.BroadcastedAt = &ts
	return nil
}

// MarkSuccess records the settled amounts and moves the trade to success.
// All owned transactions must have succeeded on-chain.
func (t *Trade) MarkSuccess(executedQuantity, executedReserve sdkmath.LegacyDec, at time.Time) error {
	if t.Status != TradeBroadcasted {
		return fmt.Errorf("%w: trade %d is %s, expected %s", ErrBadTradeTransition, t.ID, t.Status, TradeBroadcasted)
	}
	for _, tx := range t.Transactions {
		if !tx.IsSuccess() {
			return fmt.Errorf("trade %d: transaction %s did not succeed, cannot mark trade successful", t.ID, tx.TxHash.Hex())
		}
	}
	t.ExecutedQuantity = executedQuantity
	t.ExecutedReserve = executedReserve
	if !executedQuantity.IsZero() {
		t.ExecutedPrice = executedReserve.Quo(executedQuantity.Abs())
	}
	t.Status = TradeSuccess
	ts := at.UTC()
	t.SettledAt = &ts
	return nil
}

// MarkFailed moves the trade to failed. Remaining transactions in the
// sequence must not be broadcast after this.
func (t *Trade) MarkFailed(reason string, at time.Time) error {
	switch t.Status {
	case TradeBroadcasted, TradeHasTransactions:
		// A trade can fail before broadcast (preflight) or after (revert).
	default:
		return fmt.Errorf("%w: trade %d is %s, cannot fail", ErrBadTradeTransition, t.ID, t.Status)
	}
	t.Status = TradeFailed
	t.FailureReason = reason
	ts := at.UTC()
	t.SettledAt = &ts
	return nil
}

func (t *Trade) String() string {
	return fmt.Sprintf("<trade #%d %s %s %s>", t.ID, t.Direction, t.PlannedQuantity.String(), t.Pair.String())
}
