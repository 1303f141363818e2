// Package portfolio is the accounting ledger: reserve balances, trading
// positions and their trade history. One execution sequence owns and mutates
// a portfolio; nothing here is safe for concurrent writers.
package portfolio

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/driftline/ate/internal/types"
)

var (
	ErrUnknownPosition = errors.New("position not found in portfolio")
	ErrUnknownReserve  = errors.New("reserve asset not tracked in portfolio")
)

// Portfolio aggregates reserves and positions. Map keys are lowercase-free
// because common.Address is already normalized at construction.
type Portfolio struct {
	Reserves  map[common.Address]*ReservePosition `json:"reserves"`
	Positions map[int64]*TradingPosition          `json:"positions"`
	Trades    map[int64]*types.Trade              `json:"trades"`

	NextPositionID int64 `json:"next_position_id"`
	NextTradeID    int64 `json:"next_trade_id"`
}

// NewPortfolio starts an empty ledger.
func NewPortfolio() *Portfolio {
	return &Portfolio{
		Reserves:       map[common.Address]*ReservePosition{},
		Positions:      map[int64]*TradingPosition{},
		Trades:         map[int64]*types.Trade{},
		NextPositionID: 1,
		NextTradeID:    1,
	}
}

// InitReserves ensures a reserve position exists for each configured reserve
// asset so scans always have a last known balance to compare against.
func (p *Portfolio) InitReserves(assets []types.AssetIdentifier) {
	for _, asset := range assets {
		if _, ok := p.Reserves[asset.Address]; !ok {
			p.Reserves[asset.Address] = NewReservePosition(asset)
		}
	}
}

// GetReserve returns the tracked reserve position for an asset.
func (p *Portfolio) GetReserve(asset common.Address) (*ReservePosition, error) {
	reserve, ok := p.Reserves[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownReserve, asset.Hex())
	}
	return reserve, nil
}

// ReserveBalance returns the tracked quantity for a reserve asset, zero when
// untracked.
func (p *Portfolio) ReserveBalance(asset common.Address) sdkmath.LegacyDec {
	if reserve, ok := p.Reserves[asset]; ok {
		return reserve.Quantity
	}
	return sdkmath.LegacyZeroDec()
}

// GetPosition returns a position by id.
func (p *Portfolio) GetPosition(id int64) (*TradingPosition, error) {
	position, ok := p.Positions[id]
	if !ok {
		return nil, fmt.Errorf("%w: #%d", ErrUnknownPosition, id)
	}
	return position, nil
}

// OpenPositions returns all positions that still hold base tokens.
func (p *Portfolio) OpenPositions() []*TradingPosition {
	var open []*TradingPosition
	for _, position := range p.Positions {
		if position.IsOpen() {
			open = append(open, position)
		}
	}
	return open
}

// OpenPositionForPair finds the open position for a pair, nil when flat.
func (p *Portfolio) OpenPositionForPair(pair types.TradingPairIdentifier) *TradingPosition {
	for _, position := range p.Positions {
		if position.IsOpen() && position.Pair.Equal(pair) {
			return position
		}
	}
	return nil
}

// OpenPosition creates a new position for a pair.
func (p *Portfolio) OpenPosition(pair types.TradingPairIdentifier, at time.Time) *TradingPosition {
	position := NewTradingPosition(p.NextPositionID, pair, at)
	p.Positions[position.ID] = position
	p.NextPositionID++
	return position
}

// CreateTrade mints a trade in the started state attached to a position,
// opening the position first when the pair is flat.
func (p *Portfolio) CreateTrade(
	pair types.TradingPairIdentifier,
	direction types.TradeDirection,
	plannedQuantity, plannedReserve, plannedPrice sdkmath.LegacyDec,
	slippageTolerance float64,
	at time.Time,
) *types.Trade {
	position := p.OpenPositionForPair(pair)
	if position == nil {
		position = p.OpenPosition(pair, at)
	}
	trade := types.NewTrade(p.NextTradeID, position.ID, pair, direction, plannedQuantity, plannedReserve, plannedPrice, slippageTolerance)
	p.Trades[trade.ID] = trade
	p.NextTradeID++
	position.RecordTrade(trade.ID)
	return trade
}

// SettleTrade applies a successful trade's executed amounts to the ledger:
// base quantity to the owning position, reserve movement to the strategy
// reserve balance. Executed reserve amounts are denominated in the strategy
// reserve asset even when the pair quotes in something else, so the caller
// names the reserve to settle against. Buys consume reserve, sells return it.
func (p *Portfolio) SettleTrade(trade *types.Trade, reserveAsset common.Address, at time.Time) error {
	if trade.Status != types.TradeSuccess {
		return fmt.Errorf("trade %d is %s, only successful trades settle into the ledger", trade.ID, trade.Status)
	}
	position, err := p.GetPosition(trade.PositionID)
	if err != nil {
		return err
	}
	reserve, err := p.GetReserve(reserveAsset)
	if err != nil {
		return err
	}
	// Executed quantity carries the trade's sign: positive buys add base,
	// negative sells remove it.
	position.AdjustQuantity(trade.ExecutedQuantity, at)
	if trade.IsBuy() {
		reserve.Quantity = reserve.Quantity.Sub(trade.ExecutedReserve)
	} else {
		reserve.Quantity = reserve.Quantity.Add(trade.ExecutedReserve)
	}
	return nil
}

// ApplyBalanceUpdate adds the event's signed delta to the target balance.
// Deduplication happens upstream in the treasury engine; the ledger applies
// whatever it is handed.
func (p *Portfolio) ApplyBalanceUpdate(update *types.BalanceUpdate) error {
	if update.IsReserveUpdate() {
		reserve, ok := p.Reserves[update.Asset.Address]
		if !ok {
			reserve = NewReservePosition(update.Asset)
			p.Reserves[update.Asset.Address] = reserve
		}
		update.OldBalance = reserve.Quantity
		reserve.Quantity = reserve.Quantity.Add(update.Quantity)
		return nil
	}
	if update.PositionID == nil {
		return fmt.Errorf("open position balance update %s has no position id", update.EventID)
	}
	position, err := p.GetPosition(*update.PositionID)
	if err != nil {
		return err
	}
	update.OldBalance = position.Quantity
	position.AdjustQuantity(update.Quantity, update.BlockMinedAt)
	return nil
}

func (p *Portfolio) String() string {
	return fmt.Sprintf("<portfolio %d reserves, %d positions (%d open), %d trades>",
		len(p.Reserves), len(p.Positions), len(p.OpenPositions()), len(p.Trades))
}
