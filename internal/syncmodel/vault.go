/*

This file contains the vault sync model: signing through the vault's
callOnExtension envelope and event-log reconciliation against the vault
address, where every deposit and redemption is anchored to a Transfer log.

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

// VaultConfig is the on-chain wiring of the managed fund.
type VaultConfig struct {
	Vault              common.Address
	Comptroller        common.Address
	IntegrationManager common.Address
	GenericAdapter     common.Address
	// SlippageToleranceFraction shrinks incoming delta bounds, e.g. 0.9999.
	SlippageToleranceFraction float64
	// DeploymentBlock anchors full resyncs. Zero means unknown.
	DeploymentBlock uint64
}

// VaultSyncModel signs through the vault and reconciles the vault's
// balances.
type VaultSyncModel struct {
	wallet          *wallet.HotWallet
	chain           ChainAccess
	engine          *treasury.Engine
	reserves        []types.AssetIdentifier
	config          VaultConfig
	defaultGasLimit uint64
	logger          zerolog.Logger
}

// NewVaultSyncModel wires the vault-mediated signing mode.
func NewVaultSyncModel(
	hotWallet *wallet.HotWallet,
	chain ChainAccess,
	reserves []types.AssetIdentifier,
	config VaultConfig,
	defaultGasLimit uint64,
) (*VaultSyncModel, error) {
	if hotWallet == nil {
		return nil, fmt.Errorf("vault sync model needs a wallet")
	}
	if config.Vault == (common.Address{}) {
		return nil, fmt.Errorf("vault sync model needs the vault address")
	}
	engine, err := treasury.NewEngine(hotWallet.ChainID(), config.Vault, reserves)
	if err != nil {
		return nil, err
	}
	return &VaultSyncModel{
		wallet:          hotWallet,
		chain:           chain,
		engine:          engine,
		reserves:        reserves,
		config:          config,
		defaultGasLimit: defaultGasLimit,
		logger:          logger.GetForComponent("vault_sync"),
	}, nil
}

func (m *VaultSyncModel) Kind() Kind {
	return KindVault
}

// SyncInitial records the vault deployment and seeds reserves.
func (m *VaultSyncModel) SyncInitial(ctx context.Context, state *portfolio.State) error {
	state.Portfolio.InitReserves(m.reserves)
	if state.Sync.Deployment != nil {
		return nil
	}
	block := m.config.DeploymentBlock
	if block == 0 {
		head, err := m.chain.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("initial sync cannot read block height: %w", err)
		}
		block = head
	}
	minedAt, err := m.chain.HeaderTimestamp(ctx, block)
	if err != nil {
		minedAt = time.Now().UTC()
	}
	state.Sync.Deployment = &types.Deployment{
		ChainID:      m.wallet.ChainID(),
		Address:      m.config.Vault,
		BlockNumber:  block,
		BlockMinedAt: minedAt,
	}
	if block > 0 {
		state.Sync.Treasury.LastBlockScanned = block - 1
	}
	m.logger.Info().Str("vault", m.config.Vault.Hex()).Uint64("block", block).Msg("Initial vault sync complete")
	return nil
}

func (m *VaultSyncModel) SyncTreasury(ctx context.Context, cycleAt time.Time, state *portfolio.State, u *universe.PairUniverse) ([]*types.BalanceUpdate, *treasury.ScanReport, error) {
	return m.engine.ScanTransferEvents(ctx, m.chain, u, state, cycleAt)
}

func (m *VaultSyncModel) CreateTransactionBuilder(ctx context.Context) (wallet.TransactionBuilder, error) {
	return wallet.NewVaultTransactionBuilder(
		m.wallet,
		m.chain,
		m.defaultGasLimit,
		m.config.Comptroller,
		m.config.IntegrationManager,
		m.config.GenericAdapter,
		m.config.SlippageToleranceFraction,
	)
}

func (m *VaultSyncModel) VaultAddress() *common.Address {
	vault := m.config.Vault
	return &vault
}

func (m *VaultSyncModel) HolderAddress() common.Address {
	return m.config.Vault
}

func (m *VaultSyncModel) ResyncNonce(ctx context.Context) error {
	return m.wallet.ResyncNonce(ctx, m.chain)
}

// TreasuryEngine exposes the reconciliation engine for reinit and manual
// corrections.
func (m *VaultSyncModel) TreasuryEngine() *treasury.Engine {
	return m.engine
}
