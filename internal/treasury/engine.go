// Package treasury reconciles the internal ledger against on-chain reality:
// external deposits, redemptions, interest accrual and manual corrections
// become BalanceUpdate events applied exactly once.
package treasury

import (
	"context"
	"fmt"
	"math/big"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/driftline/ate/internal/chain"
	"github.com/driftline/ate/internal/logger"
	"github.com/driftline/ate/internal/portfolio"
	"github.com/driftline/ate/internal/types"
	"github.com/driftline/ate/internal/universe"
	"github.com/driftline/ate/internal/utils"
)

// Universes larger than this are treated as open-ended: only bases of open
// positions are scanned, not every pair in the universe.
const openEndedUniverseThreshold = 20

// BalanceScanner is the chain access the balance-diff scan needs.
type BalanceScanner interface {
	ERC20Balance(ctx context.Context, token, holder common.Address) (sdkmath.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// LogScanner is the chain access the event-log scan needs.
type LogScanner interface {
	BalanceScanner
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]coretypes.Log, error)
	HeaderTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error)
}

// ScanReport tells the caller what one reconciliation pass did, including
// which assets could not be checked.
type ScanReport struct {
	NewEvents       int
	DuplicateEvents int
	UncheckedAssets []string
	ScannedToBlock  uint64
}

// Engine reconciles one holder address against the ledger.
type Engine struct {
	chainID  int64
	holder   common.Address
	reserves []types.AssetIdentifier
	logger   zerolog.Logger
}

// NewEngine wires a reconciliation engine for one signing authority.
func NewEngine(chainID int64, holder common.Address, reserves []types.AssetIdentifier) (*Engine, error) {
	if holder == (common.Address{}) {
		return nil, fmt.Errorf("treasury engine needs a holder address")
	}
	if len(reserves) == 0 {
		return nil, fmt.Errorf("treasury engine needs at least one reserve asset")
	}
	return &Engine{
		chainID:  chainID,
		holder:   holder,
		reserves: reserves,
		logger:   logger.GetForComponent("treasury"),
	}, nil
}

// RelevantAssets is the scan set: always the reserve assets, plus every pair
// base for small closed universes, or only bases of open positions when the
// universe is open-ended.
func (e *Engine) RelevantAssets(u *universe.PairUniverse, ledger *portfolio.Portfolio) []types.AssetIdentifier {
	seen := map[common.Address]bool{}
	var assets []types.AssetIdentifier
	add := func(asset types.AssetIdentifier) {
		if !seen[asset.Address] {
			seen[asset.Address] = true
			assets = append(assets, asset)
		}
	}
	for _, reserve := range e.reserves {
		add(reserve)
	}
	if u == nil {
		return assets
	}
	if u.Count() > openEndedUniverseThreshold {
		for _, position := range ledger.OpenPositions() {
			add(position.Pair.Base)
		}
		return assets
	}
	_ = u.IteratePairs(func(pair types.TradingPairIdentifier) error {
		add(pair.Base)
		return nil
	})
	return assets
}

// ScanBalanceDeltas compares on-chain balances of the relevant assets
// against the ledger and turns non-zero differences into balance updates.
// A failed read skips that asset for the cycle and is reported, never
// guessed. Used by the hot wallet sync model where no event log anchors
// exist; event ids derive from the scan block so replaying the same block
// cannot double-apply.
func (e *Engine) ScanBalanceDeltas(
	ctx context.Context,
	scanner BalanceScanner,
	u *universe.PairUniverse,
	state *portfolio.State,
	cycleAt time.Time,
) ([]*types.BalanceUpdate, *ScanReport, error) {
	report := &ScanReport{}
	block, err := scanner.BlockNumber(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot determine scan block: %w", err)
	}
	report.ScannedToBlock = block

	var updates []*types.BalanceUpdate
	for _, asset := range e.RelevantAssets(u, state.Portfolio) {
		onChain, err := scanner.ERC20Balance(ctx, asset.Address, e.holder)
		if err != nil {
			e.logger.Warn().Err(err).Str("asset", asset.String()).Msg("Balance read failed, skipping asset this cycle")
			report.UncheckedAssets = append(report.UncheckedAssets, asset.Symbol)
			continue
		}
		update, err := e.diffToUpdate(asset, onChain, block, state, cycleAt)
		if err != nil {
			return nil, nil, err
		}
		if update == nil {
			continue
		}
		applied, err := e.apply(state, update, cycleAt, report)
		if err != nil {
			return nil, nil, err
		}
		if applied {
			updates = append(updates, update)
		}
	}
	state.Sync.Treasury.MarkScanned(block, time.Now(), cycleAt)
	e.logger.Info().
		Int("new_events", report.NewEvents).
		Int("duplicates", report.DuplicateEvents).
		Strs("unchecked", report.UncheckedAssets).
		Uint64("block", block).
		Msg("Treasury balance scan complete")
	return updates, report, nil
}

// classify resolves which ledger balance a delta in the asset belongs to:
// reserve assets hit the reserve position, anything else hits the open
// position holding the asset as base.
func (e *Engine) classify(asset types.AssetIdentifier, ledger *portfolio.Portfolio) (types.BalanceUpdatePositionType, *int64, sdkmath.LegacyDec) {
	for _, reserve := range e.reserves {
		if reserve.Equal(asset) {
			return types.PositionTypeReserve, nil, ledger.ReserveBalance(asset.Address)
		}
	}
	for _, position := range ledger.OpenPositions() {
		if position.Pair.Base.Equal(asset) {
			id := position.ID
			return types.PositionTypeOpenPosition, &id, position.Quantity
		}
	}
	return types.PositionTypeOpenPosition, nil, sdkmath.LegacyZeroDec()
}

// diffToUpdate classifies one asset's balance difference. Reserve assets
// update the reserve position, pair bases update their open position.
func (e *Engine) diffToUpdate(
	asset types.AssetIdentifier,
	onChain sdkmath.Int,
	block uint64,
	state *portfolio.State,
	cycleAt time.Time,
) (*types.BalanceUpdate, error) {
	observed := utils.RawToDec(onChain, asset.Decimals)

	positionType, positionID, tracked := e.classify(asset, state.Portfolio)
	if positionType == types.PositionTypeOpenPosition && positionID == nil && onChain.IsZero() {
		// Flat pair with no balance; nothing to reconcile.
		return nil, nil
	}

	delta := observed.Sub(tracked)
	if delta.IsZero() {
		return nil, nil
	}

	cause := types.CauseDeposit
	if delta.IsNegative() {
		cause = types.CauseRedemption
	}
	eventID := fmt.Sprintf("scan-%d-%s-%d", e.chainID, asset.Address.Hex(), block)
	update, err := types.NewBalanceUpdate(eventID, cause, positionType, asset, cycleAt, delta, tracked)
	if err != nil {
		return nil, err
	}
	update.PositionID = positionID
	update.BlockNumber = block
	return update, nil
}

// ScanTransferEvents walks ERC-20 Transfer logs touching the holder since
// the last scanned block. Used by the vault sync model where every deposit
// and redemption is anchored to a log and deduplicated by its id. Transfers
// belonging to our own trades are excluded.
func (e *Engine) ScanTransferEvents(
	ctx context.Context,
	scanner LogScanner,
	u *universe.PairUniverse,
	state *portfolio.State,
	cycleAt time.Time,
) ([]*types.BalanceUpdate, *ScanReport, error) {
	report := &ScanReport{}
	head, err := scanner.BlockNumber(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot determine scan head: %w", err)
	}
	from := state.Sync.Treasury.LastBlockScanned + 1
	if from > head {
		report.ScannedToBlock = state.Sync.Treasury.LastBlockScanned
		return nil, report, nil
	}
	report.ScannedToBlock = head

	assets := e.RelevantAssets(u, state.Portfolio)
	assetByAddress := map[common.Address]types.AssetIdentifier{}
	tokenAddresses := make([]common.Address, 0, len(assets))
	for _, asset := range assets {
		assetByAddress[asset.Address] = asset
		tokenAddresses = append(tokenAddresses, asset.Address)
	}

	logs, err := scanner.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: tokenAddresses,
		Topics:    [][]common.Hash{{chain.TransferTopic}},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("transfer log scan %d..%d: %w", from, head, err)
	}

	ownTxs := e.ownTransactionHashes(state.Portfolio)
	var updates []*types.BalanceUpdate
	for _, logEntry := range logs {
		transfer, ok := chain.ParseTransferLog(logEntry)
		if !ok {
			continue
		}
		if transfer.To != e.holder && transfer.From != e.holder {
			continue
		}
		if ownTxs[transfer.TxHash] {
			continue
		}
		asset, ok := assetByAddress[transfer.Token]
		if !ok || transfer.RawAmount.IsZero() {
			continue
		}

		positionType, positionID, tracked := e.classify(asset, state.Portfolio)
		if positionType == types.PositionTypeOpenPosition && positionID == nil {
			e.logger.Warn().
				Str("asset", asset.String()).
				Str("tx", transfer.TxHash.Hex()).
				Msg("Transfer touches a pair base with no open position, skipping")
			continue
		}

		minedAt, err := scanner.HeaderTimestamp(ctx, transfer.BlockNumber)
		if err != nil {
			e.logger.Warn().Err(err).Uint64("block", transfer.BlockNumber).Msg("Block timestamp read failed, using cycle time")
			minedAt = cycleAt
		}

		quantity := utils.RawToDec(transfer.RawAmount, asset.Decimals)
		var update *types.BalanceUpdate
		if transfer.To == e.holder {
			update, err = types.NewBalanceUpdate(
				types.DepositEventID(e.chainID, transfer.TxHash, transfer.LogIndex),
				types.CauseDeposit,
				positionType,
				asset,
				minedAt,
				quantity,
				tracked,
			)
		} else {
			update, err = types.NewBalanceUpdate(
				types.RedemptionEventID(e.chainID, transfer.TxHash, transfer.LogIndex, asset),
				types.CauseRedemption,
				positionType,
				asset,
				minedAt,
				quantity.Neg(),
				tracked,
			)
		}
		if err != nil {
			return nil, nil, err
		}
		update.PositionID = positionID
		hash := transfer.TxHash
		index := transfer.LogIndex
		update.TxHash = &hash
		update.LogIndex = &index
		update.BlockNumber = transfer.BlockNumber

		applied, err := e.apply(state, update, cycleAt, report)
		if err != nil {
			return nil, nil, err
		}
		if applied {
			updates = append(updates, update)
		}
	}

	state.Sync.Treasury.MarkScanned(head, time.Now(), cycleAt)
	e.logger.Info().
		Int("new_events", report.NewEvents).
		Int("duplicates", report.DuplicateEvents).
		Uint64("from", from).
		Uint64("to", head).
		Msg("Treasury transfer scan complete")
	return updates, report, nil
}

// AccrueInterest revalues an interest-bearing reserve to its observed
// balance. The caller supplies the idempotency key.
func (e *Engine) AccrueInterest(
	eventID string,
	asset types.AssetIdentifier,
	observedBalance sdkmath.LegacyDec,
	state *portfolio.State,
	at time.Time,
) (*types.BalanceUpdate, error) {
	tracked := state.Portfolio.ReserveBalance(asset.Address)
	delta := observedBalance.Sub(tracked)
	if delta.IsZero() {
		return nil, nil
	}
	update, err := types.NewBalanceUpdate(eventID, types.CauseInterest, types.PositionTypeReserve, asset, at, delta, tracked)
	if err != nil {
		return nil, err
	}
	report := &ScanReport{}
	applied, err := e.apply(state, update, at, report)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, nil
	}
	return update, nil
}

// ApplyCorrection applies an operator-triggered manual fix-up. Corrections
// are never auto-detected and always carry an explicit idempotency key.
func (e *Engine) ApplyCorrection(
	eventID string,
	asset types.AssetIdentifier,
	positionType types.BalanceUpdatePositionType,
	positionID *int64,
	delta sdkmath.LegacyDec,
	state *portfolio.State,
	at time.Time,
) (*types.BalanceUpdate, error) {
	update, err := types.NewBalanceUpdate(eventID, types.CauseCorrection, positionType, asset, at, delta, sdkmath.LegacyZeroDec())
	if err != nil {
		return nil, err
	}
	update.PositionID = positionID
	report := &ScanReport{}
	applied, err := e.apply(state, update, at, report)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, fmt.Errorf("correction %s was already applied", eventID)
	}
	return update, nil
}

// apply runs one event through dedup and the ledger. Duplicates are counted
// and dropped, never an error.
func (e *Engine) apply(state *portfolio.State, update *types.BalanceUpdate, cycleAt time.Time, report *ScanReport) (bool, error) {
	treasury := &state.Sync.Treasury
	if treasury.Seen(update.EventID) {
		report.DuplicateEvents++
		e.logger.Debug().Str("event_id", update.EventID).Msg("Dropping already processed balance event")
		return false, nil
	}
	update.ID = int64(len(treasury.Refs)) + 1
	cycle := cycleAt.UTC()
	update.StrategyCycleIncludedAt = &cycle
	if err := state.Portfolio.ApplyBalanceUpdate(update); err != nil {
		return false, fmt.Errorf("applying balance update %s: %w", update.EventID, err)
	}
	treasury.Record(update)
	report.NewEvents++
	e.logger.Info().
		Str("event_id", update.EventID).
		Str("cause", string(update.Cause)).
		Str("asset", update.Asset.Symbol).
		Str("quantity", update.Quantity.String()).
		Msg("Applied balance update")
	return true, nil
}

// ownTransactionHashes collects tx hashes of every transaction the engine
// itself broadcast, so trade settlements are not misread as deposits.
func (e *Engine) ownTransactionHashes(ledger *portfolio.Portfolio) map[common.Hash]bool {
	own := map[common.Hash]bool{}
	for _, trade := range ledger.Trades {
		for _, tx := range trade.Transactions {
			own[tx.TxHash] = true
		}
	}
	return own
}
