/*

This file contains the transaction builders: hot wallet calls signed
straight against the target contract, and vault-mediated calls wrapped into
the vault's callOnExtension envelope with shrunk incoming delta bounds.

*/

package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/driftline/ate/internal/logger"
	"github.com/driftline/ate/internal/types"
	"github.com/driftline/ate/internal/utils"
)

var (
	ErrSigningConfiguration = errors.New("signing configuration error")
	ErrGasOracle            = errors.New("failed to fetch gas fee suggestion")
)

// GasOracle supplies the fee suggestion a builder snapshots once.
type GasOracle interface {
	SuggestGasFees(ctx context.Context) (feeCap, tipCap sdkmath.Int, err error)
}

// ContractCall is a prepared, unsigned call against one contract.
type ContractCall struct {
	Contract         common.Address
	FunctionSelector string
	CallData         []byte
	// GasLimit zero means apply the builder's default ceiling.
	GasLimit uint64
	// AssetDeltas are the expected raw token movements of this call.
	AssetDeltas []types.AssetDelta
}

// TransactionBuilder turns prepared calls into signed, nonce-stamped
// transactions. One builder lives for one sequencing pass; its gas fee
// snapshot is fetched once and reused for every transaction it signs.
type TransactionBuilder interface {
	BuildAndSign(ctx context.Context, call ContractCall) (*types.BlockchainTransaction, error)
	FromAddress() common.Address
}

// signCall is the shared signing path of both builders.
func signCall(
	wallet *HotWallet,
	target common.Address,
	callData []byte,
	gasLimit uint64,
	feeCap, tipCap sdkmath.Int,
) (*coretypes.Transaction, uint64, error) {
	nonce, err := wallet.NextNonce()
	if err != nil {
		return nil, 0, errors.Join(ErrSigningConfiguration, err)
	}
	tx := coretypes.NewTx(&coretypes.DynamicFeeTx{
		ChainID:   big.NewInt(wallet.ChainID()),
		Nonce:     nonce,
		GasTipCap: tipCap.BigInt(),
		GasFeeCap: feeCap.BigInt(),
		Gas:       gasLimit,
		To:        &target,
		Value:     big.NewInt(0),
		Data:      callData,
	})
	signed, err := coretypes.SignTx(tx, coretypes.LatestSignerForChainID(big.NewInt(wallet.ChainID())), wallet.privateKey)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to sign transaction with nonce %d: %w", nonce, err)
	}
	return signed, nonce, nil
}

// gasFees lazily fetches and caches the fee suggestion for a builder pass.
type gasFees struct {
	oracle  GasOracle
	fetched bool
	feeCap  sdkmath.Int
	tipCap  sdkmath.Int
}

func (g *gasFees) get(ctx context.Context) (sdkmath.Int, sdkmath.Int, error) {
	if !g.fetched {
		feeCap, tipCap, err := g.oracle.SuggestGasFees(ctx)
		if err != nil {
			return sdkmath.ZeroInt(), sdkmath.ZeroInt(), errors.Join(ErrGasOracle, err)
		}
		g.feeCap = feeCap
		g.tipCap = tipCap
		g.fetched = true
	}
	return g.feeCap, g.tipCap, nil
}

// HotWalletTransactionBuilder signs calls straight from the wallet address.
type HotWalletTransactionBuilder struct {
	wallet          *HotWallet
	fees            gasFees
	defaultGasLimit uint64
	logger          zerolog.Logger
}

// NewHotWalletTransactionBuilder builds a sequencing pass for direct calls.
func NewHotWalletTransactionBuilder(wallet *HotWallet, oracle GasOracle, defaultGasLimit uint64) (*HotWalletTransactionBuilder, error) {
	if wallet == nil {
		return nil, fmt.Errorf("%w: hot wallet is required", ErrSigningConfiguration)
	}
	if defaultGasLimit == 0 {
		return nil, fmt.Errorf("%w: default gas limit must be positive", ErrSigningConfiguration)
	}
	return &HotWalletTransactionBuilder{
		wallet:          wallet,
		fees:            gasFees{oracle: oracle},
		defaultGasLimit: defaultGasLimit,
		logger:          logger.GetForComponent("hot_wallet_tx_builder"),
	}, nil
}

func (b *HotWalletTransactionBuilder) FromAddress() common.Address {
	return b.wallet.Address()
}

// BuildAndSign signs the call as-is against the target contract.
func (b *HotWalletTransactionBuilder) BuildAndSign(ctx context.Context, call ContractCall) (*types.BlockchainTransaction, error) {
	feeCap, tipCap, err := b.fees.get(ctx)
	if err != nil {
		return nil, err
	}
	gasLimit := call.GasLimit
	if gasLimit == 0 {
		gasLimit = b.defaultGasLimit
	}
	signed, nonce, err := signCall(b.wallet, call.Contract, call.CallData, gasLimit, feeCap, tipCap)
	if err != nil {
		return nil, err
	}
	rawSigned, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize signed transaction: %w", err)
	}
	b.logger.Debug().
		Uint64("nonce", nonce).
		Str("contract", call.Contract.Hex()).
		Str("function", call.FunctionSelector).
		Msg("Signed hot wallet transaction")
	return &types.BlockchainTransaction{
		Type:             types.TxHotWallet,
		ChainID:          b.wallet.ChainID(),
		FromAddress:      b.wallet.Address(),
		ContractAddress:  call.Contract,
		FunctionSelector: call.FunctionSelector,
		CallData:         call.CallData,
		SignedBytes:      rawSigned,
		TxHash:           signed.Hash(),
		Nonce:            nonce,
		GasLimit:         gasLimit,
		GasFeeCap:        feeCap,
		GasTipCap:        tipCap,
		AssetDeltas:      call.AssetDeltas,
		Outcome:          types.OutcomePending,
	}, nil
}

// callOnExtension(address _extension, uint256 _actionId, bytes _callArgs)
// where _callArgs carries (adapter, inner selector, inner calldata).
var (
	addressType, _ = abi.NewType("address", "", nil)
	uint256Type, _ = abi.NewType("uint256", "", nil)
	bytes4Type, _  = abi.NewType("bytes4", "", nil)
	bytesType, _   = abi.NewType("bytes", "", nil)

	callArgsArguments = abi.Arguments{
		{Name: "adapter", Type: addressType},
		{Name: "selector", Type: bytes4Type},
		{Name: "integrationData", Type: bytesType},
	}
	callOnExtensionArguments = abi.Arguments{
		{Name: "extension", Type: addressType},
		{Name: "actionId", Type: uint256Type},
		{Name: "callArgs", Type: bytesType},
	}
	callOnExtensionSelector = common.Hex2Bytes("2050fac6")
)

const callOnExtensionActionID = 0

// VaultTransactionBuilder wraps calls into the vault's generic adapter
// envelope. Incoming asset deltas are shrunk by the vault slippage tolerance
// so the vault's own rounding check does not spuriously revert; outgoing
// deltas are attached untouched.
type VaultTransactionBuilder struct {
	wallet             *HotWallet
	fees               gasFees
	defaultGasLimit    uint64
	comptroller        common.Address
	integrationManager common.Address
	genericAdapter     common.Address
	slippageTolerance  sdkmath.LegacyDec
	logger             zerolog.Logger
}

// NewVaultTransactionBuilder validates the vault wiring up front. A missing
// generic adapter fails here, before any signing is attempted.
func NewVaultTransactionBuilder(
	wallet *HotWallet,
	oracle GasOracle,
	defaultGasLimit uint64,
	comptroller, integrationManager, genericAdapter common.Address,
	slippageToleranceFraction float64,
) (*VaultTransactionBuilder, error) {
	if wallet == nil {
		return nil, fmt.Errorf("%w: hot wallet is required", ErrSigningConfiguration)
	}
	if comptroller == (common.Address{}) {
		return nil, fmt.Errorf("%w: vault comptroller address is not configured", ErrSigningConfiguration)
	}
	if integrationManager == (common.Address{}) {
		return nil, fmt.Errorf("%w: vault integration manager address is not configured", ErrSigningConfiguration)
	}
	if genericAdapter == (common.Address{}) {
		return nil, fmt.Errorf("%w: vault generic adapter is not configured, cannot route venue calls through the vault", ErrSigningConfiguration)
	}
	tolerance, err := utils.FractionToDec(slippageToleranceFraction)
	if err != nil {
		return nil, errors.Join(ErrSigningConfiguration, err)
	}
	if tolerance.IsZero() {
		return nil, fmt.Errorf("%w: vault slippage tolerance must be positive", ErrSigningConfiguration)
	}
	return &VaultTransactionBuilder{
		wallet:             wallet,
		fees:               gasFees{oracle: oracle},
		defaultGasLimit:    defaultGasLimit,
		comptroller:        comptroller,
		integrationManager: integrationManager,
		genericAdapter:     genericAdapter,
		slippageTolerance:  tolerance,
		logger:             logger.GetForComponent("vault_tx_builder"),
	}, nil
}

func (b *VaultTransactionBuilder) FromAddress() common.Address {
	return b.wallet.Address()
}

// BuildAndSign wraps the inner call and signs the envelope against the
// comptroller. The wrapped call advances the same nonce sequence as direct
// calls from this wallet.
func (b *VaultTransactionBuilder) BuildAndSign(ctx context.Context, call ContractCall) (*types.BlockchainTransaction, error) {
	feeCap, tipCap, err := b.fees.get(ctx)
	if err != nil {
		return nil, err
	}
	envelope, err := b.wrapCall(call)
	if err != nil {
		return nil, err
	}
	gasLimit := call.GasLimit
	if gasLimit == 0 {
		gasLimit = b.defaultGasLimit
	}
	signed, nonce, err := signCall(b.wallet, b.comptroller, envelope, gasLimit, feeCap, tipCap)
	if err != nil {
		return nil, err
	}
	rawSigned, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize signed transaction: %w", err)
	}
	b.logger.Debug().
		Uint64("nonce", nonce).
		Str("comptroller", b.comptroller.Hex()).
		Str("wrapped_function", call.FunctionSelector).
		Msg("Signed vault transaction")
	return &types.BlockchainTransaction{
		Type:                    types.TxVault,
		ChainID:                 b.wallet.ChainID(),
		FromAddress:             b.wallet.Address(),
		ContractAddress:         b.comptroller,
		FunctionSelector:        "callOnExtension",
		CallData:                envelope,
		WrappedFunctionSelector: call.FunctionSelector,
		WrappedCallData:         call.CallData,
		SignedBytes:             rawSigned,
		TxHash:                  signed.Hash(),
		Nonce:                   nonce,
		GasLimit:                gasLimit,
		GasFeeCap:               feeCap,
		GasTipCap:               tipCap,
		AssetDeltas:             b.scaleDeltas(call.AssetDeltas),
		Outcome:                 types.OutcomePending,
	}, nil
}

// wrapCall encodes the callOnExtension envelope around the inner call.
func (b *VaultTransactionBuilder) wrapCall(call ContractCall) ([]byte, error) {
	if len(call.CallData) < 4 {
		return nil, fmt.Errorf("%w: inner calldata for %s is shorter than a function selector", ErrSigningConfiguration, call.FunctionSelector)
	}
	var innerSelector [4]byte
	copy(innerSelector[:], call.CallData[:4])
	callArgs, err := callArgsArguments.Pack(b.genericAdapter, innerSelector, call.CallData)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode adapter call args: %w", ErrSigningConfiguration, err)
	}
	packed, err := callOnExtensionArguments.Pack(b.integrationManager, big.NewInt(callOnExtensionActionID), callArgs)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode callOnExtension envelope: %w", ErrSigningConfiguration, err)
	}
	return append(append([]byte{}, callOnExtensionSelector...), packed...), nil
}

// scaleDeltas shrinks incoming deltas by the tolerance, truncating toward
// the conservative side. Outgoing deltas pass through bit for bit.
func (b *VaultTransactionBuilder) scaleDeltas(deltas []types.AssetDelta) []types.AssetDelta {
	if len(deltas) == 0 {
		return nil
	}
	scaled := make([]types.AssetDelta, 0, len(deltas))
	for _, delta := range deltas {
		if delta.IsIncoming() {
			shrunk := b.slippageTolerance.MulInt(delta.RawAmount).TruncateInt()
			scaled = append(scaled, types.NewAssetDelta(delta.Asset, shrunk))
			continue
		}
		scaled = append(scaled, delta)
	}
	return scaled
}
