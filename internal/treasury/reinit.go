/*

This file contains the reinit procedure: rebuild treasury state with a full
event rescan from the deployment block. Only legal when the ledger holds no
open positions, because per-trade cost basis cannot be reconstructed from
balance deltas alone.

*/

package treasury

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/driftline/ate/internal/portfolio"
	"github.com/driftline/ate/internal/types"
	"github.com/driftline/ate/internal/universe"
)

var (
	ErrOpenPositions      = errors.New("cannot reinitialize state while positions are open")
	ErrNoDepositsObserved = errors.New("full resync observed no deposits")
)

// Reinit builds a fresh state document and replays the full on-chain event
// history from startBlock (zero means the recorded deployment block). The
// old state is read, never mutated; backing it up is the caller's job.
func (e *Engine) Reinit(
	ctx context.Context,
	scanner LogScanner,
	u *universe.PairUniverse,
	oldState *portfolio.State,
	startBlock uint64,
) (*portfolio.State, error) {
	if open := oldState.Portfolio.OpenPositions(); len(open) > 0 {
		return nil, fmt.Errorf("%w: %d open", ErrOpenPositions, len(open))
	}
	if startBlock == 0 {
		if oldState.Sync.Deployment == nil {
			return nil, fmt.Errorf("no deployment record and no explicit start block, cannot resync")
		}
		startBlock = oldState.Sync.Deployment.BlockNumber
	}

	fresh := portfolio.NewState()
	fresh.Sync.Deployment = oldState.Sync.Deployment
	reserves := e.reserves
	fresh.Portfolio.InitReserves(reserves)
	if startBlock > 0 {
		fresh.Sync.Treasury.LastBlockScanned = startBlock - 1
	}

	e.logger.Info().Uint64("start_block", startBlock).Msg("Starting full treasury resync")
	_, report, err := e.ScanTransferEvents(ctx, scanner, u, fresh, time.Now())
	if err != nil {
		return nil, fmt.Errorf("full resync from block %d: %w", startBlock, err)
	}

	deposits := 0
	for _, ref := range fresh.Sync.Treasury.Refs {
		if ref.Cause == types.CauseDeposit {
			deposits++
		}
	}
	if deposits == 0 {
		return nil, fmt.Errorf("%w: scanned blocks %d..%d", ErrNoDepositsObserved, startBlock, report.ScannedToBlock)
	}
	e.logger.Info().
		Int("deposits", deposits).
		Int("events", report.NewEvents).
		Uint64("scanned_to", report.ScannedToBlock).
		Msg("Full treasury resync complete")
	return fresh, nil
}
