/*

This file contains the pair universe file loader. The universe is provided
externally as a JSON document listing the tradeable pairs; the engine treats
it as immutable for the lifetime of a run.

*/

package universe

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"github.com/driftline/ate/internal/types"
)

type pairRecord struct {
	Base struct {
		ChainID  int64  `json:"chain_id"`
		Address  string `json:"address"`
		Symbol   string `json:"symbol"`
		Decimals uint8  `json:"decimals"`
	} `json:"base"`
	Quote struct {
		ChainID  int64  `json:"chain_id"`
		Address  string `json:"address"`
		Symbol   string `json:"symbol"`
		Decimals uint8  `json:"decimals"`
	} `json:"quote"`
	PoolAddress     string `json:"pool_address"`
	ExchangeAddress string `json:"exchange_address"`
	Fee             uint32 `json:"fee"`
	InternalID      int64  `json:"internal_id,omitempty"`
}

// LoadPairsFile reads a pair universe JSON document and indexes it.
func LoadPairsFile(path string) (*PairUniverse, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read universe file %s: %w", path, err)
	}
	var records []pairRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("failed to parse universe file %s: %w", path, err)
	}
	pairs := make([]types.TradingPairIdentifier, 0, len(records))
	for i, record := range records {
		if !common.IsHexAddress(record.PoolAddress) {
			return nil, fmt.Errorf("universe entry %d has a malformed pool address: %s", i, record.PoolAddress)
		}
		pair := types.TradingPairIdentifier{
			Base:            types.NewAssetIdentifier(record.Base.ChainID, record.Base.Address, record.Base.Symbol, record.Base.Decimals),
			Quote:           types.NewAssetIdentifier(record.Quote.ChainID, record.Quote.Address, record.Quote.Symbol, record.Quote.Decimals),
			PoolAddress:     common.HexToAddress(record.PoolAddress),
			ExchangeAddress: common.HexToAddress(record.ExchangeAddress),
			Fee:             record.Fee,
			InternalID:      record.InternalID,
		}
		pairs = append(pairs, pair)
	}
	return NewPairUniverse(pairs)
}
