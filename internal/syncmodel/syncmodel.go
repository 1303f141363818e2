// Package syncmodel selects how reconciliation and signing are performed.
// Exactly three modes exist: hot wallet, vault-mediated and no-op. Adding a
// mode is a closed decision, not an extension point.
package syncmodel

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/driftline/ate/internal/portfolio"
	"github.com/driftline/ate/internal/treasury"
	"github.com/driftline/ate/internal/types"
	"github.com/driftline/ate/internal/universe"
	"github.com/driftline/ate/internal/wallet"
)

// Kind tags the concrete sync model.
type Kind string

const (
	KindHotWallet Kind = "hot_wallet"
	KindVault     Kind = "vault"
	KindNoop      Kind = "noop"
)

// ChainAccess is everything a live sync model needs from the chain layer.
type ChainAccess interface {
	treasury.LogScanner
	wallet.NonceReader
	wallet.GasOracle
}

// SyncModel is the strategy for reconciliation and signing. The engine core
// never talks to a signer or chain endpoint except through this interface
// and the transaction builder it returns.
type SyncModel interface {
	Kind() Kind

	// SyncInitial records the deployment and seeds the reserve positions.
	SyncInitial(ctx context.Context, state *portfolio.State) error

	// SyncTreasury runs the per-cycle reconciliation scan.
	SyncTreasury(ctx context.Context, cycleAt time.Time, state *portfolio.State, u *universe.PairUniverse) ([]*types.BalanceUpdate, *treasury.ScanReport, error)

	// CreateTransactionBuilder starts a sequencing pass. Nil for models that
	// cannot sign (no-op).
	CreateTransactionBuilder(ctx context.Context) (wallet.TransactionBuilder, error)

	// VaultAddress is the managed fund address, nil outside vault mode.
	VaultAddress() *common.Address

	// HolderAddress is whose balances fund and settle trades.
	HolderAddress() common.Address

	// ResyncNonce refreshes the signer's nonce counter at cycle start.
	ResyncNonce(ctx context.Context) error
}

// NoopSyncModel is the backtest stand-in: no chain, no signing, no
// reconciliation.
type NoopSyncModel struct{}

// NewNoopSyncModel returns the inert sync model.
func NewNoopSyncModel() *NoopSyncModel {
	return &NoopSyncModel{}
}

func (m *NoopSyncModel) Kind() Kind {
	return KindNoop
}

func (m *NoopSyncModel) SyncInitial(ctx context.Context, state *portfolio.State) error {
	return nil
}

func (m *NoopSyncModel) SyncTreasury(ctx context.Context, cycleAt time.Time, state *portfolio.State, u *universe.PairUniverse) ([]*types.BalanceUpdate, *treasury.ScanReport, error) {
	return nil, &treasury.ScanReport{}, nil
}

func (m *NoopSyncModel) CreateTransactionBuilder(ctx context.Context) (wallet.TransactionBuilder, error) {
	return nil, nil
}

func (m *NoopSyncModel) VaultAddress() *common.Address {
	return nil
}

func (m *NoopSyncModel) HolderAddress() common.Address {
	return common.Address{}
}

func (m *NoopSyncModel) ResyncNonce(ctx context.Context) error {
	return nil
}
