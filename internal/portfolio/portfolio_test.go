package portfolio

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/ate/internal/types"
)

var (
	usdc = types.NewAssetIdentifier(1, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "USDC", 6)
	weth = types.NewAssetIdentifier(1, "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", "WETH", 18)
	xmpl = types.NewAssetIdentifier(1, "0x1111111111111111111111111111111111111111", "XMPL", 18)
)

func wethUsdcPair() types.TradingPairIdentifier {
	return types.TradingPairIdentifier{
		Base: weth, Quote: usdc,
		PoolAddress:     common.HexToAddress("0x8ad599c3A0ff1De082011EFDDc58f1908eb6e6D8"),
		ExchangeAddress: common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564"),
		Fee:             3000,
	}
}

func fundedPortfolio(t *testing.T, reserve string) *Portfolio {
	t.Helper()
	p := NewPortfolio()
	p.InitReserves([]types.AssetIdentifier{usdc})
	p.Reserves[usdc.Address].Quantity = sdkmath.LegacyMustNewDecFromStr(reserve)
	return p
}

func settle(t *testing.T, trade *types.Trade, executedQuantity, executedReserve string) {
	t.Helper()
	tx := &types.BlockchainTransaction{
		TxHash:  common.BigToHash(sdkmath.NewInt(trade.ID).BigInt()),
		Outcome: types.OutcomeSuccess,
	}
	require.NoError(t, trade.SetTransactions([]*types.BlockchainTransaction{tx}))
	require.NoError(t, trade.MarkBroadcasted(time.Now()))
	require.NoError(t, trade.MarkSuccess(
		sdkmath.LegacyMustNewDecFromStr(executedQuantity),
		sdkmath.LegacyMustNewDecFromStr(executedReserve),
		time.Now(),
	))
}

func TestCreateTradeOpensPositionWhenFlat(t *testing.T) {
	p := fundedPortfolio(t, "1000")

	trade := p.CreateTrade(wethUsdcPair(), types.TradeBuy,
		sdkmath.LegacyMustNewDecFromStr("0.25"),
		sdkmath.LegacyMustNewDecFromStr("500"),
		sdkmath.LegacyMustNewDecFromStr("2000"),
		0.005, time.Now())

	require.Len(t, p.Positions, 1)
	position, err := p.GetPosition(trade.PositionID)
	require.NoError(t, err)
	assert.Equal(t, []int64{trade.ID}, position.TradeIDs)
	assert.Equal(t, int64(2), p.NextTradeID)
	assert.Equal(t, int64(2), p.NextPositionID)
}

func TestBuyThenSellClosesPositionAndReturnsReserve(t *testing.T) {
	p := fundedPortfolio(t, "1000")
	pair := wethUsdcPair()

	buy := p.CreateTrade(pair, types.TradeBuy,
		sdkmath.LegacyMustNewDecFromStr("0.25"),
		sdkmath.LegacyMustNewDecFromStr("500"),
		sdkmath.LegacyMustNewDecFromStr("2000"),
		0.005, time.Now())
	settle(t, buy, "0.25", "500")
	require.NoError(t, p.SettleTrade(buy, usdc.Address, time.Now()))

	assert.Equal(t, "500.000000000000000000", p.ReserveBalance(usdc.Address).String())
	position := p.OpenPositionForPair(pair)
	require.NotNil(t, position)
	assert.Equal(t, "0.250000000000000000", position.Quantity.String())

	sell := p.CreateTrade(pair, types.TradeSell,
		sdkmath.LegacyMustNewDecFromStr("0.25"),
		sdkmath.LegacyMustNewDecFromStr("510"),
		sdkmath.LegacyMustNewDecFromStr("2040"),
		0.005, time.Now())
	// The sell attaches to the existing position, not a new one.
	assert.Equal(t, buy.PositionID, sell.PositionID)
	settle(t, sell, "-0.25", "510")
	require.NoError(t, p.SettleTrade(sell, usdc.Address, time.Now()))

	assert.Equal(t, "1010.000000000000000000", p.ReserveBalance(usdc.Address).String())
	assert.Nil(t, p.OpenPositionForPair(pair), "position must close when base returns to zero")
	assert.Empty(t, p.OpenPositions())
}

func TestSettleTradeUsesExecutedNotPlannedAmounts(t *testing.T) {
	p := fundedPortfolio(t, "1000")
	buy := p.CreateTrade(wethUsdcPair(), types.TradeBuy,
		sdkmath.LegacyMustNewDecFromStr("0.25"),
		sdkmath.LegacyMustNewDecFromStr("500"),
		sdkmath.LegacyMustNewDecFromStr("2000"),
		0.005, time.Now())
	// Settled short of plan.
	settle(t, buy, "0.248", "499.2")
	require.NoError(t, p.SettleTrade(buy, usdc.Address, time.Now()))

	assert.Equal(t, "500.800000000000000000", p.ReserveBalance(usdc.Address).String())
	position, err := p.GetPosition(buy.PositionID)
	require.NoError(t, err)
	assert.Equal(t, "0.248000000000000000", position.Quantity.String())
}

func TestSettleTradeUsesStrategyReserveNotPairQuote(t *testing.T) {
	p := fundedPortfolio(t, "1000")
	// A multihop pair quotes in WETH; the reserve movement still happens in
	// the strategy reserve.
	pair := types.TradingPairIdentifier{
		Base: xmpl, Quote: weth,
		PoolAddress:     common.HexToAddress("0x2222222222222222222222222222222222222222"),
		ExchangeAddress: common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564"),
		Fee:             10000,
	}
	buy := p.CreateTrade(pair, types.TradeBuy,
		sdkmath.LegacyMustNewDecFromStr("10"),
		sdkmath.LegacyMustNewDecFromStr("100"),
		sdkmath.LegacyMustNewDecFromStr("10"),
		0.005, time.Now())
	settle(t, buy, "9.9", "100")
	require.NoError(t, p.SettleTrade(buy, usdc.Address, time.Now()))

	assert.Equal(t, "900.000000000000000000", p.ReserveBalance(usdc.Address).String())
	assert.NotContains(t, p.Reserves, weth.Address)
	position, err := p.GetPosition(buy.PositionID)
	require.NoError(t, err)
	assert.Equal(t, "9.900000000000000000", position.Quantity.String())
}

func TestSettleTradeRequiresSuccessStatus(t *testing.T) {
	p := fundedPortfolio(t, "1000")
	trade := p.CreateTrade(wethUsdcPair(), types.TradeBuy,
		sdkmath.LegacyMustNewDecFromStr("0.25"),
		sdkmath.LegacyMustNewDecFromStr("500"),
		sdkmath.LegacyMustNewDecFromStr("2000"),
		0.005, time.Now())

	require.Error(t, p.SettleTrade(trade, usdc.Address, time.Now()))
	assert.Equal(t, "1000.000000000000000000", p.ReserveBalance(usdc.Address).String())
}

func TestApplyBalanceUpdateToReserve(t *testing.T) {
	p := fundedPortfolio(t, "100")
	update, err := types.NewBalanceUpdate("evt-1", types.CauseDeposit, types.PositionTypeReserve, usdc,
		time.Now(), sdkmath.LegacyMustNewDecFromStr("50"), sdkmath.LegacyZeroDec())
	require.NoError(t, err)

	require.NoError(t, p.ApplyBalanceUpdate(update))
	assert.Equal(t, "150.000000000000000000", p.ReserveBalance(usdc.Address).String())
	assert.Equal(t, "100.000000000000000000", update.OldBalance.String(), "old balance is stamped at apply time")
}

func TestApplyBalanceUpdateCreatesUntrackedReserve(t *testing.T) {
	p := NewPortfolio()
	update, err := types.NewBalanceUpdate("evt-2", types.CauseDeposit, types.PositionTypeReserve, weth,
		time.Now(), sdkmath.LegacyMustNewDecFromStr("1.5"), sdkmath.LegacyZeroDec())
	require.NoError(t, err)

	require.NoError(t, p.ApplyBalanceUpdate(update))
	assert.Equal(t, "1.500000000000000000", p.ReserveBalance(weth.Address).String())
}

func TestApplyBalanceUpdateToOpenPosition(t *testing.T) {
	p := fundedPortfolio(t, "1000")
	position := p.OpenPosition(wethUsdcPair(), time.Now())
	position.AdjustQuantity(sdkmath.LegacyMustNewDecFromStr("0.5"), time.Now())

	update, err := types.NewBalanceUpdate("evt-3", types.CauseCorrection, types.PositionTypeOpenPosition, weth,
		time.Now(), sdkmath.LegacyMustNewDecFromStr("-0.1"), sdkmath.LegacyZeroDec())
	require.NoError(t, err)
	update.PositionID = &position.ID

	require.NoError(t, p.ApplyBalanceUpdate(update))
	assert.Equal(t, "0.400000000000000000", position.Quantity.String())
}

func TestApplyBalanceUpdateRejectsPositionUpdateWithoutID(t *testing.T) {
	p := fundedPortfolio(t, "1000")
	update, err := types.NewBalanceUpdate("evt-4", types.CauseCorrection, types.PositionTypeOpenPosition, weth,
		time.Now(), sdkmath.LegacyMustNewDecFromStr("1"), sdkmath.LegacyZeroDec())
	require.NoError(t, err)

	require.Error(t, p.ApplyBalanceUpdate(update))
}

func TestCorrectionReopensClosedPosition(t *testing.T) {
	p := fundedPortfolio(t, "1000")
	position := p.OpenPosition(wethUsdcPair(), time.Now())
	position.AdjustQuantity(sdkmath.LegacyMustNewDecFromStr("0.5"), time.Now())
	position.AdjustQuantity(sdkmath.LegacyMustNewDecFromStr("-0.5"), time.Now())
	require.False(t, position.IsOpen())

	position.AdjustQuantity(sdkmath.LegacyMustNewDecFromStr("0.01"), time.Now())
	assert.True(t, position.IsOpen())
}

func TestStateMarkCycle(t *testing.T) {
	s := NewState()
	require.Nil(t, s.LastCycleAt)
	at := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	s.MarkCycle(at)
	require.NotNil(t, s.LastCycleAt)
	assert.Equal(t, at, *s.LastCycleAt)
	assert.Equal(t, int64(1), s.CycleCounter)
}
