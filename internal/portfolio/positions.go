/*

This file contains the two position kinds the ledger tracks: reserve
balances held in cash assets and open trading positions in pair base assets.

*/

package portfolio

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/driftline/ate/internal/types"
)

// ReservePosition is a cash balance in one reserve asset. Only
// reconciliation mutates reserve quantities directly; trade settlement goes
// through the portfolio.
type ReservePosition struct {
	Asset    types.AssetIdentifier `json:"asset"`
	Quantity sdkmath.LegacyDec     `json:"quantity"`

	// LastUnitPriceUSD is display data from the most recent valuation.
	LastUnitPriceUSD float64    `json:"last_unit_price_usd"`
	LastPricedAt     *time.Time `json:"last_priced_at,omitempty"`
}

// NewReservePosition starts an empty reserve balance.
func NewReservePosition(asset types.AssetIdentifier) *ReservePosition {
	return &ReservePosition{
		Asset:    asset,
		Quantity: sdkmath.LegacyZeroDec(),
	}
}

func (r *ReservePosition) String() string {
	return fmt.Sprintf("<reserve %s %s>", r.Quantity.String(), r.Asset.Symbol)
}

// TradingPosition is an open or closed holding in one pair's base asset.
// The position closes when its running quantity returns to zero.
type TradingPosition struct {
	ID       int64                       `json:"id"`
	Pair     types.TradingPairIdentifier `json:"pair"`
	Quantity sdkmath.LegacyDec           `json:"quantity"`
	TradeIDs []int64                     `json:"trade_ids"`
	OpenedAt time.Time                   `json:"opened_at"`
	ClosedAt *time.Time                  `json:"closed_at,omitempty"`
}

// NewTradingPosition opens a position with zero quantity; the opening trade
// settlement fills it.
func NewTradingPosition(id int64, pair types.TradingPairIdentifier, openedAt time.Time) *TradingPosition {
	return &TradingPosition{
		ID:       id,
		Pair:     pair,
		Quantity: sdkmath.LegacyZeroDec(),
		TradeIDs: []int64{},
		OpenedAt: openedAt.UTC(),
	}
}

// IsOpen reports whether the position still holds base tokens.
func (p *TradingPosition) IsOpen() bool {
	return p.ClosedAt == nil
}

// RecordTrade appends a trade id to the position's history.
func (p *TradingPosition) RecordTrade(tradeID int64) {
	p.TradeIDs = append(p.TradeIDs, tradeID)
}

// AdjustQuantity applies a signed base quantity delta and closes the
// position when the quantity returns to zero.
func (p *TradingPosition) AdjustQuantity(delta sdkmath.LegacyDec, at time.Time) {
	p.Quantity = p.Quantity.Add(delta)
	if p.Quantity.IsZero() {
		ts := at.UTC()
		p.ClosedAt = &ts
	} else if p.ClosedAt != nil {
		// A correction can reopen a closed position.
		p.ClosedAt = nil
	}
}

func (p *TradingPosition) String() string {
	state := "open"
	if !p.IsOpen() {
		state = "closed"
	}
	return fmt.Sprintf("<position #%d %s %s %s>", p.ID, state, p.Quantity.String(), p.Pair.String())
}
