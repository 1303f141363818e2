package engine

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/ate/internal/portfolio"
	"github.com/driftline/ate/internal/syncmodel"
	"github.com/driftline/ate/internal/types"
	"github.com/driftline/ate/internal/universe"
)

var (
	usdc = types.NewAssetIdentifier(1, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "USDC", 6)
	weth = types.NewAssetIdentifier(1, "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", "WETH", 18)
)

func wethUsdcPair() types.TradingPairIdentifier {
	return types.TradingPairIdentifier{
		Base: weth, Quote: usdc,
		PoolAddress:     common.HexToAddress("0x8ad599c3A0ff1De082011EFDDc58f1908eb6e6D8"),
		ExchangeAddress: common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564"),
		Fee:             3000,
	}
}

type fixedPricing struct {
	price sdkmath.LegacyDec
}

func (f *fixedPricing) GetBuyPrice(ctx context.Context, pair types.TradingPairIdentifier, quantity *sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	return f.price, nil
}

func (f *fixedPricing) GetSellPrice(ctx context.Context, pair types.TradingPairIdentifier, quantity *sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	return f.price, nil
}

type scriptedStrategy struct {
	instructions []TradeInstruction
}

func (s *scriptedStrategy) DecideTrades(ctx context.Context, st *portfolio.State, u *universe.PairUniverse, pricing universe.PricingModel, at time.Time) ([]TradeInstruction, error) {
	return s.instructions, nil
}

func testEngine(t *testing.T, strategy Strategy) *Engine {
	t.Helper()
	u, err := universe.NewPairUniverse([]types.TradingPairIdentifier{wethUsdcPair()})
	require.NoError(t, err)
	st := portfolio.NewState()
	st.Portfolio.InitReserves([]types.AssetIdentifier{usdc})

	eng, err := NewEngine(
		syncmodel.NewNoopSyncModel(),
		nil, nil, u,
		&fixedPricing{price: sdkmath.LegacyMustNewDecFromStr("2000")},
		strategy, nil, st,
		Options{MaxSlippageFraction: 0.005, CycleInterval: time.Second},
	)
	require.NoError(t, err)
	return eng
}

func TestRunCycleReconciliationOnlyWithoutStrategy(t *testing.T) {
	eng := testEngine(t, nil)

	report, err := eng.RunCycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.NotEmpty(t, report.CycleID)
	assert.Empty(t, report.ExecutedTradeIDs)
	assert.Empty(t, report.Skipped)
	assert.Equal(t, int64(1), eng.State().CycleCounter)
	assert.Same(t, report, eng.LastReport)
}

func TestRunCycleDerivesBuyQuantityFromPrice(t *testing.T) {
	strategy := &scriptedStrategy{instructions: []TradeInstruction{{
		Pair:          wethUsdcPair(),
		Direction:     types.TradeBuy,
		ReserveAmount: sdkmath.LegacyMustNewDecFromStr("500"),
	}}}
	eng := testEngine(t, strategy)

	report, err := eng.RunCycle(context.Background())
	require.NoError(t, err)

	require.Len(t, eng.State().Portfolio.Trades, 1)
	trade := eng.State().Portfolio.Trades[1]
	// 500 reserve at price 2000 buys 0.25 base.
	assert.Equal(t, "0.250000000000000000", trade.PlannedQuantity.String())
	assert.Equal(t, "500.000000000000000000", trade.PlannedReserve.String())
	assert.Equal(t, "2000.000000000000000000", trade.PlannedPrice.String())

	// The no-op model cannot sign, so the trade is recorded and skipped.
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, trade.ID, report.Skipped[0].TradeID)
	assert.Equal(t, types.TradeStarted, trade.Status)
}

func TestRunCycleDerivesSellReserveFromPrice(t *testing.T) {
	strategy := &scriptedStrategy{instructions: []TradeInstruction{{
		Pair:      wethUsdcPair(),
		Direction: types.TradeSell,
		Quantity:  sdkmath.LegacyMustNewDecFromStr("0.25"),
	}}}
	eng := testEngine(t, strategy)

	_, err := eng.RunCycle(context.Background())
	require.NoError(t, err)

	require.Len(t, eng.State().Portfolio.Trades, 1)
	trade := eng.State().Portfolio.Trades[1]
	assert.Equal(t, "-0.250000000000000000", trade.PlannedQuantity.String())
	assert.Equal(t, "500.000000000000000000", trade.PlannedReserve.String())
}

func TestRunCycleSkipsMalformedInstructions(t *testing.T) {
	strategy := &scriptedStrategy{instructions: []TradeInstruction{
		{Pair: wethUsdcPair(), Direction: types.TradeBuy},                                                  // no reserve amount
		{Pair: wethUsdcPair(), Direction: types.TradeSell, Quantity: sdkmath.LegacyZeroDec()},              // zero quantity
		{Pair: wethUsdcPair(), Direction: types.TradeBuy, ReserveAmount: sdkmath.LegacyMustNewDecFromStr("-5")}, // negative
	}}
	eng := testEngine(t, strategy)

	report, err := eng.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Skipped, 3)
	assert.Empty(t, eng.State().Portfolio.Trades)
}

func TestRunCycleAdvancesCycleCounter(t *testing.T) {
	eng := testEngine(t, nil)
	for i := 0; i < 3; i++ {
		_, err := eng.RunCycle(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int64(3), eng.State().CycleCounter)
	require.NotNil(t, eng.State().LastCycleAt)
}
