/*

This file contains the identity value types for assets and trading pairs.
Both are immutable once created and safe to copy by value.

*/

package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// AssetIdentifier identifies an ERC-20 token on one chain.
// Identity is (chain id, contract address); the address is checksum-normalized
// on construction so mixed-case inputs compare equal.
type AssetIdentifier struct {
	ChainID    int64          `json:"chain_id"`
	Address    common.Address `json:"address"`
	Symbol     string         `json:"symbol"`
	Decimals   uint8          `json:"decimals"`
	InternalID int64          `json:"internal_id,omitempty"` // Optional id from the pair universe feed
}

// NewAssetIdentifier normalizes the contract address and returns the identifier.
func NewAssetIdentifier(chainID int64, address string, symbol string, decimals uint8) AssetIdentifier {
	return AssetIdentifier{
		ChainID:  chainID,
		Address:  common.HexToAddress(address),
		Symbol:   symbol,
		Decimals: decimals,
	}
}

// Equal reports identity equality: same chain, same contract.
func (a AssetIdentifier) Equal(other AssetIdentifier) bool {
	return a.ChainID == other.ChainID && a.Address == other.Address
}

// IsZero reports whether the identifier is the empty value.
func (a AssetIdentifier) IsZero() bool {
	return a.ChainID == 0 && a.Address == (common.Address{})
}

func (a AssetIdentifier) String() string {
	return fmt.Sprintf("%s (%s, chain %d)", a.Symbol, a.Address.Hex(), a.ChainID)
}

// TradingPairIdentifier identifies one pool on one exchange.
// Identity is the pool contract address. Fee is the pool fee tier in the
// venue's raw unit (hundredths of a basis point, e.g. 3000 = 0.30%).
type TradingPairIdentifier struct {
	Base            AssetIdentifier `json:"base"`
	Quote           AssetIdentifier `json:"quote"`
	PoolAddress     common.Address  `json:"pool_address"`
	ExchangeAddress common.Address  `json:"exchange_address"`
	Fee             uint32          `json:"fee"`
	InternalID      int64           `json:"internal_id,omitempty"`
}

// Equal reports identity equality: same pool contract.
func (p TradingPairIdentifier) Equal(other TradingPairIdentifier) bool {
	return p.PoolAddress == other.PoolAddress
}

// FeeFraction converts the raw fee tier to a fraction, e.g. 3000 -> 0.003.
func (p TradingPairIdentifier) FeeFraction() float64 {
	return float64(p.Fee) / 1_000_000
}

func (p TradingPairIdentifier) String() string {
	return fmt.Sprintf("%s/%s (pool %s, fee %d)", p.Base.Symbol, p.Quote.Symbol, p.PoolAddress.Hex(), p.Fee)
}
