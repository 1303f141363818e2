package executor

import (
	"context"
	"math/big"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/ate/internal/chain"
	"github.com/driftline/ate/internal/portfolio"
	"github.com/driftline/ate/internal/routing"
	"github.com/driftline/ate/internal/types"
	"github.com/driftline/ate/internal/universe"
	"github.com/driftline/ate/internal/wallet"
)

var (
	usdc = types.NewAssetIdentifier(1, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "USDC", 6)
	weth = types.NewAssetIdentifier(1, "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", "WETH", 18)
	xmpl = types.NewAssetIdentifier(1, "0x1111111111111111111111111111111111111111", "XMPL", 18)

	routerAddr = common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564")
	quoterAddr = common.HexToAddress("0xb27308f9F90D607463bb33eA1BeBb41C27CE5AB6")
	holderAddr = common.HexToAddress("0x00000000000000000000000000000000000000AA")
	poolAddr   = common.HexToAddress("0x8ad599c3A0ff1De082011EFDDc58f1908eb6e6D8")
	ghostPool  = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func wethUsdcPair() types.TradingPairIdentifier {
	return types.TradingPairIdentifier{
		Base: weth, Quote: usdc,
		PoolAddress: poolAddr, ExchangeAddress: routerAddr, Fee: 3000,
	}
}

func xmplWethPair() types.TradingPairIdentifier {
	return types.TradingPairIdentifier{
		Base: xmpl, Quote: weth,
		PoolAddress: ghostPool, ExchangeAddress: routerAddr, Fee: 10000,
	}
}

// fakeBuilder signs nothing but produces decodable payloads so the broadcast
// path can run end to end.
type fakeBuilder struct {
	nonce uint64
}

func (b *fakeBuilder) BuildAndSign(ctx context.Context, call wallet.ContractCall) (*types.BlockchainTransaction, error) {
	to := call.Contract
	signed := coretypes.NewTx(&coretypes.LegacyTx{
		Nonce:    b.nonce,
		GasPrice: big.NewInt(1),
		Gas:      500_000,
		To:       &to,
		Data:     call.CallData,
		V:        big.NewInt(27),
		R:        big.NewInt(1),
		S:        big.NewInt(1),
	})
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, err
	}
	tx := &types.BlockchainTransaction{
		Type:             types.TxHotWallet,
		ChainID:          1,
		FromAddress:      holderAddr,
		ContractAddress:  call.Contract,
		FunctionSelector: call.FunctionSelector,
		CallData:         call.CallData,
		SignedBytes:      raw,
		TxHash:           signed.Hash(),
		Nonce:            b.nonce,
		AssetDeltas:      call.AssetDeltas,
		Outcome:          types.OutcomePending,
	}
	b.nonce++
	return tx, nil
}

func (b *fakeBuilder) FromAddress() common.Address {
	return holderAddr
}

type fakeCaller struct {
	amountOut *big.Int
}

func (c *fakeCaller) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return common.LeftPadBytes(c.amountOut.Bytes(), 32), nil
}

type fakeBalances struct {
	balance sdkmath.Int
}

func (f *fakeBalances) ERC20Balance(ctx context.Context, token, holder common.Address) (sdkmath.Int, error) {
	return f.balance, nil
}

// fakeNetwork accepts everything and mines a canned receipt per send. Swap
// receipts can carry Transfer logs; revertAfter fails the nth send onward.
type fakeNetwork struct {
	sent        []common.Hash
	swapLogs    []*coretypes.Log
	revertFrom  int
	receiptsFor map[common.Hash]*coretypes.Receipt
}

func (n *fakeNetwork) SendTransaction(ctx context.Context, tx *coretypes.Transaction) error {
	n.sent = append(n.sent, tx.Hash())
	return nil
}

func (n *fakeNetwork) WaitMined(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error) {
	status := coretypes.ReceiptStatusSuccessful
	if n.revertFrom > 0 && len(n.sent) >= n.revertFrom {
		status = coretypes.ReceiptStatusFailed
	}
	return &coretypes.Receipt{
		Status:      status,
		BlockNumber: big.NewInt(int64(100 + len(n.sent))),
		GasUsed:     120_000,
		Logs:        n.swapLogs,
	}, nil
}

func transferLog(token, from, to common.Address, rawAmount *big.Int) *coretypes.Log {
	return &coretypes.Log{
		Address: token,
		Topics: []common.Hash{
			chain.TransferTopic,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: common.LeftPadBytes(rawAmount.Bytes(), 32),
	}
}

type harness struct {
	executor *Executor
	state    *routing.RoutingState
	universe *universe.PairUniverse
	ledger   *portfolio.Portfolio
	network  *fakeNetwork
	report   *CycleReport
}

func newHarness(t *testing.T, quoted *big.Int, network *fakeNetwork) *harness {
	t.Helper()
	u, err := universe.NewPairUniverse([]types.TradingPairIdentifier{wethUsdcPair(), xmplWethPair()})
	require.NoError(t, err)
	router, err := routing.NewRouter(usdc, routerAddr, quoterAddr, &fakeCaller{amountOut: quoted}, nil)
	require.NoError(t, err)
	exec, err := NewExecutor(router, network)
	require.NoError(t, err)

	ledger := portfolio.NewPortfolio()
	ledger.InitReserves([]types.AssetIdentifier{usdc})
	ledger.Reserves[usdc.Address].Quantity = sdkmath.LegacyMustNewDecFromStr("1000")

	return &harness{
		executor: exec,
		state:    routing.NewRoutingState(&fakeBuilder{}, &fakeBalances{balance: sdkmath.NewInt(1_000_000_000)}, holderAddr),
		universe: u,
		ledger:   ledger,
		network:  network,
		report:   NewCycleReport("test-cycle", time.Now()),
	}
}

func plannedBuy(h *harness) *types.Trade {
	return h.ledger.CreateTrade(wethUsdcPair(), types.TradeBuy,
		sdkmath.LegacyMustNewDecFromStr("0.25"),
		sdkmath.LegacyMustNewDecFromStr("500"),
		sdkmath.LegacyMustNewDecFromStr("2000"),
		0, time.Now())
}

func TestExecuteTradesSettlesFromReceiptLogs(t *testing.T) {
	quoted := new(big.Int)
	quoted.SetString("250000000000000000", 10)
	executedBase := new(big.Int)
	executedBase.SetString("249000000000000000", 10)

	network := &fakeNetwork{swapLogs: []*coretypes.Log{
		transferLog(usdc.Address, holderAddr, poolAddr, big.NewInt(500_000_000)),
		transferLog(weth.Address, poolAddr, holderAddr, executedBase),
	}}
	h := newHarness(t, quoted, network)
	trade := plannedBuy(h)

	err := h.executor.ExecuteTrades(context.Background(), h.state, h.universe, h.ledger,
		[]*types.Trade{trade}, 0.005, true, h.report)
	require.NoError(t, err)

	assert.Equal(t, []int64{trade.ID}, h.report.ExecutedTradeIDs)
	assert.Equal(t, types.TradeSuccess, trade.Status)
	// Approval plus swap both broadcast, in nonce order.
	require.Len(t, network.sent, 2)
	assert.Len(t, h.report.TxHashes, 2)

	// Settled from the logs, not the plan: 0.249 WETH for 500 USDC.
	assert.Equal(t, "0.249000000000000000", trade.ExecutedQuantity.String())
	assert.Equal(t, "500.000000000000000000", trade.ExecutedReserve.String())
	assert.Equal(t, "500.000000000000000000", h.ledger.ReserveBalance(usdc.Address).String())
	position := h.ledger.OpenPositionForPair(wethUsdcPair())
	require.NotNil(t, position)
	assert.Equal(t, "0.249000000000000000", position.Quantity.String())
}

func TestExecuteTradesSettlesMultihopAgainstStrategyReserve(t *testing.T) {
	quoted := new(big.Int)
	quoted.SetString("10000000000000000000", 10)
	executedBase := new(big.Int)
	executedBase.SetString("9900000000000000000", 10)

	network := &fakeNetwork{swapLogs: []*coretypes.Log{
		transferLog(usdc.Address, holderAddr, poolAddr, big.NewInt(100_000_000)),
		transferLog(xmpl.Address, ghostPool, holderAddr, executedBase),
	}}
	h := newHarness(t, quoted, network)
	// Whitelist the WETH/USDC pool as the hop toward the reserve so the
	// XMPL pair routes.
	router, err := routing.NewRouter(usdc, routerAddr, quoterAddr, &fakeCaller{amountOut: quoted},
		map[common.Address]common.Address{weth.Address: poolAddr})
	require.NoError(t, err)
	h.executor, err = NewExecutor(router, network)
	require.NoError(t, err)

	trade := h.ledger.CreateTrade(xmplWethPair(), types.TradeBuy,
		sdkmath.LegacyMustNewDecFromStr("10"),
		sdkmath.LegacyMustNewDecFromStr("100"),
		sdkmath.LegacyMustNewDecFromStr("10"),
		0, time.Now())

	err = h.executor.ExecuteTrades(context.Background(), h.state, h.universe, h.ledger,
		[]*types.Trade{trade}, 0.005, true, h.report)
	require.NoError(t, err)

	assert.Equal(t, types.TradeSuccess, trade.Status)
	assert.Equal(t, "9.900000000000000000", trade.ExecutedQuantity.String())
	assert.Equal(t, "100.000000000000000000", trade.ExecutedReserve.String())
	// The reserve leg settles in the strategy reserve, not the pair's WETH
	// quote; no phantom WETH reserve appears.
	assert.Equal(t, "900.000000000000000000", h.ledger.ReserveBalance(usdc.Address).String())
	assert.NotContains(t, h.ledger.Reserves, weth.Address)
	position := h.ledger.OpenPositionForPair(xmplWethPair())
	require.NotNil(t, position)
	assert.Equal(t, "9.900000000000000000", position.Quantity.String())
}

func TestExecuteTradesFallsBackToPlannedAmounts(t *testing.T) {
	quoted := new(big.Int)
	quoted.SetString("250000000000000000", 10)
	h := newHarness(t, quoted, &fakeNetwork{})
	trade := plannedBuy(h)

	err := h.executor.ExecuteTrades(context.Background(), h.state, h.universe, h.ledger,
		[]*types.Trade{trade}, 0.005, true, h.report)
	require.NoError(t, err)
	assert.Equal(t, types.TradeSuccess, trade.Status)
	assert.Equal(t, "0.250000000000000000", trade.ExecutedQuantity.String())
	assert.Equal(t, "500.000000000000000000", trade.ExecutedReserve.String())
}

func TestExecuteTradesSkipsUnroutableAndContinues(t *testing.T) {
	quoted := new(big.Int)
	quoted.SetString("250000000000000000", 10)
	h := newHarness(t, quoted, &fakeNetwork{})

	// No whitelist entry for WETH, so the XMPL pair cannot be routed.
	unroutable := h.ledger.CreateTrade(xmplWethPair(), types.TradeBuy,
		sdkmath.LegacyMustNewDecFromStr("10"),
		sdkmath.LegacyMustNewDecFromStr("100"),
		sdkmath.LegacyMustNewDecFromStr("10"),
		0, time.Now())
	routable := plannedBuy(h)

	err := h.executor.ExecuteTrades(context.Background(), h.state, h.universe, h.ledger,
		[]*types.Trade{unroutable, routable}, 0.005, true, h.report)
	require.NoError(t, err)

	require.Len(t, h.report.Skipped, 1)
	assert.Equal(t, unroutable.ID, h.report.Skipped[0].TradeID)
	assert.Equal(t, types.TradeStarted, unroutable.Status, "a skipped trade keeps no transactions")
	assert.False(t, unroutable.HasTransactions())
	assert.Equal(t, []int64{routable.ID}, h.report.ExecutedTradeIDs)
}

func TestExecuteTradesRevertFailsTradeAndContinues(t *testing.T) {
	quoted := new(big.Int)
	quoted.SetString("250000000000000000", 10)

	// Every receipt reverts, so both trades fail and the loop continues past
	// each of them.
	network := &fakeNetwork{revertFrom: 1}
	h := newHarness(t, quoted, network)
	first := plannedBuy(h)
	second := plannedBuy(h)

	err := h.executor.ExecuteTrades(context.Background(), h.state, h.universe, h.ledger,
		[]*types.Trade{first, second}, 0.005, true, h.report)
	require.NoError(t, err, "a revert fails the trade, not the cycle")

	assert.Equal(t, []int64{first.ID, second.ID}, h.report.FailedTradeIDs)
	assert.Empty(t, h.report.ExecutedTradeIDs)
	assert.Equal(t, types.TradeFailed, first.Status)
	assert.NotEmpty(t, first.FailureReason)
	// The reverted approval halts the sequence: the swap never broadcasts.
	require.Len(t, first.Transactions, 2)
	assert.Equal(t, types.OutcomeReverted, first.Transactions[0].Outcome)
	assert.Equal(t, types.OutcomePending, first.Transactions[1].Outcome)
	// Nothing settled into the ledger.
	assert.Equal(t, "1000.000000000000000000", h.ledger.ReserveBalance(usdc.Address).String())
}

func TestExecuteTradesSkipsOnInsufficientBalance(t *testing.T) {
	quoted := new(big.Int)
	quoted.SetString("250000000000000000", 10)
	h := newHarness(t, quoted, &fakeNetwork{})
	h.state = routing.NewRoutingState(&fakeBuilder{}, &fakeBalances{balance: sdkmath.NewInt(100)}, holderAddr)
	trade := plannedBuy(h)

	err := h.executor.ExecuteTrades(context.Background(), h.state, h.universe, h.ledger,
		[]*types.Trade{trade}, 0.005, true, h.report)
	require.NoError(t, err)
	require.Len(t, h.report.Skipped, 1)
	assert.Empty(t, h.network.sent)
}

func TestExecuteTradesRefusesReroutedTrade(t *testing.T) {
	quoted := new(big.Int)
	quoted.SetString("250000000000000000", 10)
	h := newHarness(t, quoted, &fakeNetwork{})
	trade := plannedBuy(h)
	require.NoError(t, trade.SetTransactions([]*types.BlockchainTransaction{{
		TxHash: common.HexToHash("0x01"), Outcome: types.OutcomePending,
	}}))

	err := h.executor.ExecuteTrades(context.Background(), h.state, h.universe, h.ledger,
		[]*types.Trade{trade}, 0.005, true, h.report)
	require.ErrorIs(t, err, types.ErrTradeAlreadyRouted)
}
