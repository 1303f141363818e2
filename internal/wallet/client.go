// Package wallet owns signing: the hot wallet key, the per-signer nonce
// sequence and the transaction builders that turn prepared contract calls
// into signed transactions.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/driftline/ate/internal/logger"
)

var (
	ErrBadPrivateKey = errors.New("failed to load hot wallet private key")
	ErrNonceResync   = errors.New("failed to resync nonce from chain")
)

// NonceReader is the chain access nonce resync needs.
type NonceReader interface {
	PendingNonceAt(ctx context.Context, address common.Address) (uint64, error)
}

// BalanceReader is the chain access the gas preflight needs.
type BalanceReader interface {
	NativeBalance(ctx context.Context, address common.Address) (sdkmath.Int, error)
}

// HotWallet is one signing authority: a private key plus its strictly
// increasing nonce counter. The counter only moves forward; out-of-band use
// of the same key is tolerated by resyncing at cycle start.
type HotWallet struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    int64
	nonce      uint64
	synced     bool
	logger     zerolog.Logger
}

// NewHotWallet derives the wallet from a hex private key.
func NewHotWallet(privateKeyHex string, chainID int64) (*HotWallet, error) {
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, errors.Join(ErrBadPrivateKey, err)
	}
	address := crypto.PubkeyToAddress(key.PublicKey)
	return &HotWallet{
		privateKey: key,
		address:    address,
		chainID:    chainID,
		logger:     logger.GetForComponent("hot_wallet"),
	}, nil
}

// Address is the wallet's account address.
func (w *HotWallet) Address() common.Address {
	return w.address
}

// ChainID is the chain this wallet signs for.
func (w *HotWallet) ChainID() int64 {
	return w.chainID
}

// ResyncNonce re-reads the pending nonce from the chain. Called at the
// start of every cycle so transactions sent outside the engine do not stall
// the sequence.
func (w *HotWallet) ResyncNonce(ctx context.Context, reader NonceReader) error {
	nonce, err := reader.PendingNonceAt(ctx, w.address)
	if err != nil {
		return errors.Join(ErrNonceResync, err)
	}
	if w.synced && nonce < w.nonce {
		// The chain can briefly report a lower pending nonce right after a
		// broadcast. Never move the counter backwards.
		w.logger.Warn().Uint64("chain_nonce", nonce).Uint64("local_nonce", w.nonce).Msg("Chain reports lower nonce than local counter, keeping local")
		return nil
	}
	w.nonce = nonce
	w.synced = true
	w.logger.Debug().Uint64("nonce", nonce).Str("address", w.address.Hex()).Msg("Nonce resynced from chain")
	return nil
}

// NextNonce hands out the next nonce and advances the counter. The wallet
// must have been resynced at least once.
func (w *HotWallet) NextNonce() (uint64, error) {
	if !w.synced {
		return 0, fmt.Errorf("nonce counter for %s has never been synced from chain", w.address.Hex())
	}
	nonce := w.nonce
	w.nonce++
	return nonce, nil
}

// GasBalance reads the wallet's native currency balance for the gas tank
// preflight.
func (w *HotWallet) GasBalance(ctx context.Context, reader BalanceReader) (sdkmath.Int, error) {
	return reader.NativeBalance(ctx, w.address)
}
