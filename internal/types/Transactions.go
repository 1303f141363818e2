/*

This file contains the signed transaction record and the expected asset
delta attached to it for slippage bound checks.

*/

package types

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// TransactionType tells which signing authority produced a transaction.
type TransactionType string

const (
	// TxHotWallet is a transaction sent straight from the hot wallet address.
	TxHotWallet TransactionType = "hot_wallet"
	// TxVault is a transaction wrapped into the vault's call-on-extension envelope.
	TxVault TransactionType = "vault"
)

// TransactionOutcome is the on-chain result of a broadcast transaction.
type TransactionOutcome string

const (
	OutcomePending  TransactionOutcome = "pending"
	OutcomeSuccess  TransactionOutcome = "success"
	OutcomeReverted TransactionOutcome = "reverted"
)

// AssetDelta is the signed expected raw token amount moving during one
// transaction. Negative is outgoing from the wallet/vault, positive incoming.
type AssetDelta struct {
	Asset     common.Address `json:"asset"`
	RawAmount sdkmath.Int    `json:"raw_amount"`
}

// NewAssetDelta builds a delta; amount must not be nil.
func NewAssetDelta(asset common.Address, rawAmount sdkmath.Int) AssetDelta {
	return AssetDelta{Asset: asset, RawAmount: rawAmount}
}

// IsIncoming reports whether the delta describes tokens arriving to us.
func (d AssetDelta) IsIncoming() bool {
	return !d.RawAmount.IsNil() && d.RawAmount.IsPositive()
}

func (d AssetDelta) String() string {
	return fmt.Sprintf("%s %s", d.RawAmount.String(), d.Asset.Hex())
}

// BlockchainTransaction is one signed venue transaction owned by exactly one
// trade. All fields except the broadcast/outcome block are immutable after
// signing.
type BlockchainTransaction struct {
	Type        TransactionType `json:"type"`
	ChainID     int64           `json:"chain_id"`
	FromAddress common.Address  `json:"from_address"`

	// Target contract and calldata as signed. For vault transactions this is
	// the vault comptroller and the call-on-extension calldata.
	ContractAddress  common.Address `json:"contract_address"`
	FunctionSelector string         `json:"function_selector"`
	CallData         hexutil.Bytes  `json:"call_data"`

	// The inner call for vault transactions: what the vault will execute on
	// our behalf. Empty for hot wallet transactions.
	WrappedFunctionSelector string        `json:"wrapped_function_selector,omitempty"`
	WrappedCallData         hexutil.Bytes `json:"wrapped_call_data,omitempty"`

	SignedBytes hexutil.Bytes `json:"signed_bytes"`
	TxHash      common.Hash   `json:"tx_hash"`
	Nonce       uint64        `json:"nonce"`
	GasLimit    uint64        `json:"gas_limit"`
	GasFeeCap   sdkmath.Int   `json:"gas_fee_cap"`
	GasTipCap   sdkmath.Int   `json:"gas_tip_cap"`

	// Expected raw token movements, used to bound acceptable slippage.
	AssetDeltas []AssetDelta `json:"asset_deltas"`

	// Broadcast / outcome block, mutated by the executor only.
	BroadcastedAt *time.Time         `json:"broadcasted_at,omitempty"`
	Outcome       TransactionOutcome `json:"outcome"`
	BlockNumber   uint64             `json:"block_number,omitempty"`
	GasUsed       uint64             `json:"gas_used,omitempty"`
	RevertReason  string             `json:"revert_reason,omitempty"`
}

// IsBroadcast reports whether the transaction has been handed to the network.
func (tx *BlockchainTransaction) IsBroadcast() bool {
	return tx.BroadcastedAt != nil
}

// IsSuccess reports whether the transaction is confirmed successful on-chain.
func (tx *BlockchainTransaction) IsSuccess() bool {
	return tx.Outcome == OutcomeSuccess
}

func (tx *BlockchainTransaction) String() string {
	return fmt.Sprintf("<%s tx %s nonce %d to %s %s()>", tx.Type, tx.TxHash.Hex(), tx.Nonce, tx.ContractAddress.Hex(), tx.FunctionSelector)
}
