/*

This file contains the hot wallet sync model: direct signing from the
wallet address and balance-diff reconciliation against it.

*/

package syncmodel

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/driftline/ate/internal/logger"
	"github.com/driftline/ate/internal/portfolio"
	"github.com/driftline/ate/internal/treasury"
	"github.com/driftline/ate/internal/types"
	"github.com/driftline/ate/internal/universe"
	"github.com/driftline/ate/internal/wallet"
)

// HotWalletSyncModel signs straight from the wallet and reconciles the
// wallet's own balances.
type HotWalletSyncModel struct {
	wallet          *wallet.HotWallet
	chain           ChainAccess
	engine          *treasury.Engine
	reserves        []types.AssetIdentifier
	defaultGasLimit uint64
	logger          zerolog.Logger
}

// NewHotWalletSyncModel wires the direct signing mode.
func NewHotWalletSyncModel(
	hotWallet *wallet.HotWallet,
	chain ChainAccess,
	reserves []types.AssetIdentifier,
	defaultGasLimit uint64,
) (*HotWalletSyncModel, error) {
	if hotWallet == nil {
		return nil, fmt.Errorf("hot wallet sync model needs a wallet")
	}
	engine, err := treasury.NewEngine(hotWallet.ChainID(), hotWallet.Address(), reserves)
	if err != nil {
		return nil, err
	}
	return &HotWalletSyncModel{
		wallet:          hotWallet,
		chain:           chain,
		engine:          engine,
		reserves:        reserves,
		defaultGasLimit: defaultGasLimit,
		logger:          logger.GetForComponent("hot_wallet_sync"),
	}, nil
}

func (m *HotWalletSyncModel) Kind() Kind {
	return KindHotWallet
}

// SyncInitial records the wallet as the deployment and seeds reserves.
func (m *HotWalletSyncModel) SyncInitial(ctx context.Context, state *portfolio.State) error {
	state.Portfolio.InitReserves(m.reserves)
	if state.Sync.Deployment != nil {
		return nil
	}
	block, err := m.chain.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("initial sync cannot read block height: %w", err)
	}
	minedAt, err := m.chain.HeaderTimestamp(ctx, block)
	if err != nil {
		minedAt = time.Now().UTC()
	}
	state.Sync.Deployment = &types.Deployment{
		ChainID:      m.wallet.ChainID(),
		Address:      m.wallet.Address(),
		BlockNumber:  block,
		BlockMinedAt: minedAt,
	}
	state.Sync.Treasury.LastBlockScanned = block
	m.logger.Info().Str("address", m.wallet.Address().Hex()).Uint64("block", block).Msg("Initial hot wallet sync complete")
	return nil
}

func (m *HotWalletSyncModel) SyncTreasury(ctx context.Context, cycleAt time.Time, state *portfolio.State, u *universe.PairUniverse) ([]*types.BalanceUpdate, *treasury.ScanReport, error) {
	return m.engine.ScanBalanceDeltas(ctx, m.chain, u, state, cycleAt)
}

func (m *HotWalletSyncModel) CreateTransactionBuilder(ctx context.Context) (wallet.TransactionBuilder, error) {
	return wallet.NewHotWalletTransactionBuilder(m.wallet, m.chain, m.defaultGasLimit)
}

func (m *HotWalletSyncModel) VaultAddress() *common.Address {
	return nil
}

func (m *HotWalletSyncModel) HolderAddress() common.Address {
	return m.wallet.Address()
}

func (m *HotWalletSyncModel) ResyncNonce(ctx context.Context) error {
	return m.wallet.ResyncNonce(ctx, m.chain)
}

// TreasuryEngine exposes the reconciliation engine for corrections and
// interest accrual triggered outside the cycle loop.
func (m *HotWalletSyncModel) TreasuryEngine() *treasury.Engine {
	return m.engine
}
