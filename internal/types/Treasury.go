/*

This file contains the treasury sync bookkeeping: the deployment record,
lightweight references to processed balance events, and the treasury
watermark state carried between reconciliation cycles.

*/

package types

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// Deployment records where and when the executing entity (vault or hot
// wallet) came to exist on-chain. Set once during initial sync.
type Deployment struct {
	ChainID      int64          `json:"chain_id"`
	Address      common.Address `json:"address"`
	BlockNumber  uint64         `json:"block_number"`
	TxHash       common.Hash    `json:"tx_hash"`
	BlockMinedAt time.Time      `json:"block_mined_at"`

	// VaultName and VaultSymbol are informational, populated for vault
	// deployments only.
	VaultName   string `json:"vault_name,omitempty"`
	VaultSymbol string `json:"vault_symbol,omitempty"`
}

func (d Deployment) String() string {
	return fmt.Sprintf("<deployment %s on chain %d at block %d>", d.Address.Hex(), d.ChainID, d.BlockNumber)
}

// BalanceEventRef is a compact pointer to a processed balance update. The
// treasury keeps refs instead of full events so net flow summaries stay O(refs)
// without loading event bodies.
type BalanceEventRef struct {
	BalanceUpdateID int64                     `json:"balance_update_id"`
	EventID         string                    `json:"event_id"`
	Cause           BalanceUpdateCause        `json:"cause"`
	PositionType    BalanceUpdatePositionType `json:"position_type"`
	Asset           common.Address            `json:"asset"`
	Quantity        sdkmath.LegacyDec         `json:"quantity"`
	USDValue        float64                   `json:"usd_value"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

// NewBalanceEventRef builds the ref for one processed update.
func NewBalanceEventRef(update *BalanceUpdate) BalanceEventRef {
	return BalanceEventRef{
		BalanceUpdateID: update.ID,
		EventID:         update.EventID,
		Cause:           update.Cause,
		PositionType:    update.PositionType,
		Asset:           update.Asset.Address,
		Quantity:        update.Quantity,
		USDValue:        update.USDValue,
		UpdatedAt:       update.BlockMinedAt,
	}
}

// Treasury is the reconciliation watermark state persisted between cycles.
type Treasury struct {
	// LastUpdatedAt is when the treasury scan last completed.
	LastUpdatedAt *time.Time `json:"last_updated_at,omitempty"`
	// LastCycleAt is the timestamp of the strategy cycle that ran the scan.
	LastCycleAt *time.Time `json:"last_cycle_at,omitempty"`
	// LastBlockScanned is the highest block the event scan has covered.
	LastBlockScanned uint64 `json:"last_block_scanned"`

	// Refs lists processed events in processing order.
	Refs []BalanceEventRef `json:"balance_update_refs"`

	// ProcessedKeys maps event id to the balance update that consumed it.
	// Replays hit this map and are dropped before touching the ledger.
	ProcessedKeys map[string]int64 `json:"processed_keys"`

	// PendingRedemptions counts redemption requests observed but not yet
	// paid out, for vault venues that settle redemptions asynchronously.
	PendingRedemptions int `json:"pending_redemptions,omitempty"`
}

// NewTreasury returns empty treasury state for a fresh deployment.
func NewTreasury() Treasury {
	return Treasury{
		Refs:          []BalanceEventRef{},
		ProcessedKeys: map[string]int64{},
	}
}

// Seen reports whether an event id has already been processed.
func (t *Treasury) Seen(eventID string) bool {
	_, ok := t.ProcessedKeys[eventID]
	return ok
}

// Record marks an update as processed and appends its ref.
func (t *Treasury) Record(update *BalanceUpdate) {
	if t.ProcessedKeys == nil {
		t.ProcessedKeys = map[string]int64{}
	}
	t.ProcessedKeys[update.EventID] = update.ID
	t.Refs = append(t.Refs, NewBalanceEventRef(update))
}

// MarkScanned advances the watermark after a completed scan.
func (t *Treasury) MarkScanned(block uint64, scannedAt, cycleAt time.Time) {
	if block > t.LastBlockScanned {
		t.LastBlockScanned = block
	}
	s := scannedAt.UTC()
	c := cycleAt.UTC()
	t.LastUpdatedAt = &s
	t.LastCycleAt = &c
}

// NetFlow sums deposits minus redemptions in USD from the refs alone.
func (t *Treasury) NetFlow() float64 {
	var total float64
	for _, ref := range t.Refs {
		switch ref.Cause {
		case CauseDeposit:
			total += ref.USDValue
		case CauseRedemption:
			total -= ref.USDValue
		}
	}
	return total
}

func (t *Treasury) String() string {
	return fmt.Sprintf("<treasury %d events, scanned to block %d>", len(t.Refs), t.LastBlockScanned)
}
