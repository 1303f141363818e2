package types

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPair() TradingPairIdentifier {
	return TradingPairIdentifier{
		Base:            NewAssetIdentifier(1, "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", "WETH", 18),
		Quote:           NewAssetIdentifier(1, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "USDC", 6),
		PoolAddress:     common.HexToAddress("0x8ad599c3A0ff1De082011EFDDc58f1908eb6e6D8"),
		ExchangeAddress: common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564"),
		Fee:             3000,
	}
}

func testTrade(direction TradeDirection) *Trade {
	return NewTrade(
		1, 1, testPair(), direction,
		sdkmath.LegacyMustNewDecFromStr("0.25"),
		sdkmath.LegacyMustNewDecFromStr("500"),
		sdkmath.LegacyMustNewDecFromStr("2000"),
		0.005,
	)
}

func successfulTx(seed int64) *BlockchainTransaction {
	return &BlockchainTransaction{
		TxHash:  common.BigToHash(sdkmath.NewInt(seed).BigInt()),
		Outcome: OutcomeSuccess,
	}
}

func TestNewTradeNormalizesQuantitySign(t *testing.T) {
	buy := testTrade(TradeBuy)
	assert.Equal(t, "0.250000000000000000", buy.PlannedQuantity.String())

	sell := testTrade(TradeSell)
	assert.Equal(t, "-0.250000000000000000", sell.PlannedQuantity.String())

	// An already negative sell quantity stays negative, not double-negated.
	sell2 := NewTrade(2, 1, testPair(), TradeSell,
		sdkmath.LegacyMustNewDecFromStr("-0.25"),
		sdkmath.LegacyMustNewDecFromStr("500"),
		sdkmath.LegacyMustNewDecFromStr("2000"),
		0.005,
	)
	assert.Equal(t, "-0.250000000000000000", sell2.PlannedQuantity.String())
}

func TestTradeLifecycleHappyPath(t *testing.T) {
	trade := testTrade(TradeBuy)
	assert.Equal(t, TradeStarted, trade.Status)

	txs := []*BlockchainTransaction{successfulTx(1), successfulTx(2)}
	require.NoError(t, trade.SetTransactions(txs))
	assert.Equal(t, TradeHasTransactions, trade.Status)

	require.NoError(t, trade.MarkBroadcasted(time.Now()))
	assert.Equal(t, TradeBroadcasted, trade.Status)
	require.NotNil(t, trade.BroadcastedAt)

	executed := sdkmath.LegacyMustNewDecFromStr("0.249")
	reserve := sdkmath.LegacyMustNewDecFromStr("499.1")
	require.NoError(t, trade.MarkSuccess(executed, reserve, time.Now()))
	assert.Equal(t, TradeSuccess, trade.Status)
	assert.Equal(t, executed, trade.ExecutedQuantity)
	// Price derives from the settled amounts, per unit of base.
	assert.Equal(t, reserve.Quo(executed), trade.ExecutedPrice)
	require.NotNil(t, trade.SettledAt)
}

func TestTradeRefusesRerouting(t *testing.T) {
	trade := testTrade(TradeBuy)
	require.NoError(t, trade.SetTransactions([]*BlockchainTransaction{successfulTx(1)}))
	err := trade.SetTransactions([]*BlockchainTransaction{successfulTx(2)})
	require.ErrorIs(t, err, ErrTradeAlreadyRouted)
}

func TestTradeRefusesEmptyTransactionList(t *testing.T) {
	trade := testTrade(TradeBuy)
	require.Error(t, trade.SetTransactions(nil))
}

func TestTradeCannotBroadcastBeforeRouting(t *testing.T) {
	trade := testTrade(TradeBuy)
	err := trade.MarkBroadcasted(time.Now())
	require.ErrorIs(t, err, ErrBadTradeTransition)
}

func TestTradeSuccessRequiresAllTransactionsSuccessful(t *testing.T) {
	trade := testTrade(TradeBuy)
	reverted := &BlockchainTransaction{
		TxHash:  common.BigToHash(sdkmath.NewInt(3).BigInt()),
		Outcome: OutcomeReverted,
	}
	require.NoError(t, trade.SetTransactions([]*BlockchainTransaction{successfulTx(1), reverted}))
	require.NoError(t, trade.MarkBroadcasted(time.Now()))

	err := trade.MarkSuccess(sdkmath.LegacyOneDec(), sdkmath.LegacyOneDec(), time.Now())
	require.Error(t, err)
	assert.Equal(t, TradeBroadcasted, trade.Status)
}

func TestTradeCanFailBeforeAndAfterBroadcast(t *testing.T) {
	preflight := testTrade(TradeSell)
	require.NoError(t, preflight.SetTransactions([]*BlockchainTransaction{successfulTx(1)}))
	require.NoError(t, preflight.MarkFailed("insufficient gas", time.Now()))
	assert.Equal(t, TradeFailed, preflight.Status)
	assert.Equal(t, "insufficient gas", preflight.FailureReason)

	reverted := testTrade(TradeSell)
	require.NoError(t, reverted.SetTransactions([]*BlockchainTransaction{successfulTx(2)}))
	require.NoError(t, reverted.MarkBroadcasted(time.Now()))
	require.NoError(t, reverted.MarkFailed("transaction reverted", time.Now()))
	assert.Equal(t, TradeFailed, reverted.Status)

	// Terminal states cannot fail again.
	require.ErrorIs(t, reverted.MarkFailed("again", time.Now()), ErrBadTradeTransition)
}

func TestTradeCannotFailFromStarted(t *testing.T) {
	trade := testTrade(TradeBuy)
	require.ErrorIs(t, trade.MarkFailed("nope", time.Now()), ErrBadTradeTransition)
}
