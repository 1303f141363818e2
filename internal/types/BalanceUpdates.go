/*

This file contains balance update events: external balance changes detected
by reconciliation (deposits, redemptions, interest, corrections) that are
applied exactly once to the portfolio ledger.

*/

package types

import (
	"errors"
	"fmt"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// BalanceUpdateCause tells what produced a balance update event.
type BalanceUpdateCause string

const (
	// CauseDeposit is an external inflow with no matching internal expectation.
	CauseDeposit BalanceUpdateCause = "deposit"
	// CauseRedemption is an external outflow with no matching trade settlement.
	CauseRedemption BalanceUpdateCause = "redemption"
	// CauseInterest is a periodic revaluation of an interest-bearing reserve.
	CauseInterest BalanceUpdateCause = "interest"
	// CauseCorrection is an explicitly triggered manual fix-up.
	CauseCorrection BalanceUpdateCause = "correction"
)

// BalanceUpdatePositionType tells which ledger balance the event modifies.
type BalanceUpdatePositionType string

const (
	PositionTypeReserve      BalanceUpdatePositionType = "reserve"
	PositionTypeOpenPosition BalanceUpdatePositionType = "open_position"
)

var (
	ErrZeroQuantityUpdate = errors.New("balance update quantity delta cannot be zero")
	ErrMissingEventID     = errors.New("balance update requires an idempotency event id")
)

// BalanceUpdate is one processed external balance change. Every event
// carries an explicit EventID used for deduplication regardless of cause:
// deposits and redemptions derive theirs from the on-chain log, interest and
// correction events must be constructed with a caller-supplied key.
type BalanceUpdate struct {
	ID int64 `json:"id"`

	// EventID is the idempotency key. Applying two events with the same key
	// changes the ledger exactly once.
	EventID string `json:"event_id"`

	Cause        BalanceUpdateCause        `json:"cause"`
	PositionType BalanceUpdatePositionType `json:"position_type"`
	Asset        AssetIdentifier           `json:"asset"`

	// BlockMinedAt is the block timestamp of the on-chain event.
	BlockMinedAt time.Time `json:"block_mined_at"`

	// StrategyCycleIncludedAt is the cycle timestamp that picked the event
	// up. Nil for corrections applied outside a cycle.
	StrategyCycleIncludedAt *time.Time `json:"strategy_cycle_included_at,omitempty"`

	// Quantity is the signed exact decimal delta. Never zero.
	Quantity sdkmath.LegacyDec `json:"quantity"`
	// OldBalance is the ledger balance before this event was applied.
	OldBalance sdkmath.LegacyDec `json:"old_balance"`
	// USDValue is a display value only and may use floating point.
	USDValue float64 `json:"usd_value"`

	TxHash      *common.Hash `json:"tx_hash,omitempty"`
	LogIndex    *uint        `json:"log_index,omitempty"`
	PositionID  *int64       `json:"position_id,omitempty"`
	BlockNumber uint64       `json:"block_number,omitempty"`

	Notes string `json:"notes,omitempty"`
}

// NewBalanceUpdate validates the event invariants: non-zero delta and a
// present idempotency key.
func NewBalanceUpdate(
	eventID string,
	cause BalanceUpdateCause,
	positionType BalanceUpdatePositionType,
	asset AssetIdentifier,
	blockMinedAt time.Time,
	quantity sdkmath.LegacyDec,
	oldBalance sdkmath.LegacyDec,
) (*BalanceUpdate, error) {
	if quantity.IsNil() || quantity.IsZero() {
		return nil, fmt.Errorf("%w: %s %s", ErrZeroQuantityUpdate, cause, asset.String())
	}
	if strings.TrimSpace(eventID) == "" {
		return nil, fmt.Errorf("%w: %s %s", ErrMissingEventID, cause, asset.String())
	}
	return &BalanceUpdate{
		EventID:      eventID,
		Cause:        cause,
		PositionType: positionType,
		Asset:        asset,
		BlockMinedAt: blockMinedAt.UTC(),
		Quantity:     quantity,
		OldBalance:   oldBalance,
	}, nil
}

// DepositEventID derives the dedup key for a deposit observed on-chain.
func DepositEventID(chainID int64, txHash common.Hash, logIndex uint) string {
	return fmt.Sprintf("deposit-%d-%s-%d", chainID, strings.ToLower(txHash.Hex()), logIndex)
}

// RedemptionEventID derives the dedup key for a redemption observed on-chain.
// Redemptions are additionally keyed by asset because one redemption
// transaction can pay out multiple tokens.
func RedemptionEventID(chainID int64, txHash common.Hash, logIndex uint, asset AssetIdentifier) string {
	return fmt.Sprintf("redemption-%d-%s-%d-%s", chainID, strings.ToLower(txHash.Hex()), logIndex, strings.ToLower(asset.Address.Hex()))
}

// IsReserveUpdate reports whether the event updates a reserve balance rather
// than an open position.
func (b *BalanceUpdate) IsReserveUpdate() bool {
	return b.PositionType == PositionTypeReserve
}

func (b *BalanceUpdate) String() string {
	target := "strategy reserves"
	if b.PositionID != nil {
		target = fmt.Sprintf("position #%d", *b.PositionID)
	}
	return fmt.Sprintf("<balance update #%d %s %s for %s>", b.ID, b.Cause, b.Quantity.String(), target)
}
