/*

This file contains the structured cycle report: what was executed, what was
skipped and why. A cycle never fails silently; every planned trade ends up
either in Executed or in Skipped with a reason.

*/

package executor

import (
	"fmt"
	"time"
)

// SkippedTrade records one trade the cycle could not execute.
type SkippedTrade struct {
	TradeID int64  `json:"trade_id"`
	Pair    string `json:"pair"`
	Reason  string `json:"reason"`
}

// CycleReport summarizes one execution pass.
type CycleReport struct {
	CycleID   string        `json:"cycle_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	ExecutedTradeIDs []int64        `json:"executed_trade_ids"`
	FailedTradeIDs   []int64        `json:"failed_trade_ids"`
	Skipped          []SkippedTrade `json:"skipped"`
	TxHashes         []string       `json:"tx_hashes"`

	BalanceUpdateCount  int      `json:"balance_update_count"`
	DuplicateEventCount int      `json:"duplicate_event_count"`
	UncheckedAssets     []string `json:"unchecked_assets,omitempty"`
}

// NewCycleReport starts a report for one cycle.
func NewCycleReport(cycleID string, startedAt time.Time) *CycleReport {
	return &CycleReport{
		CycleID:          cycleID,
		StartedAt:        startedAt.UTC(),
		ExecutedTradeIDs: []int64{},
		FailedTradeIDs:   []int64{},
		Skipped:          []SkippedTrade{},
		TxHashes:         []string{},
	}
}

// Skip records a trade the cycle rejected, with its reason.
func (r *CycleReport) Skip(tradeID int64, pair string, reason string) {
	r.Skipped = append(r.Skipped, SkippedTrade{TradeID: tradeID, Pair: pair, Reason: reason})
}

func (r *CycleReport) String() string {
	return fmt.Sprintf("<cycle %s: %d executed, %d failed, %d skipped, %d balance updates>",
		r.CycleID, len(r.ExecutedTradeIDs), len(r.FailedTradeIDs), len(r.Skipped), r.BalanceUpdateCount)
}
