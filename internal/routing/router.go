// Package routing maps trade intents onto executable venue transaction
// sequences: a direct pool swap when the pair quotes in the reserve asset,
// or a two hop path through a whitelisted intermediary pool otherwise.
// Deeper paths are unsupported and fail fast.
package routing

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/driftline/ate/internal/chain"
	"github.com/driftline/ate/internal/logger"
	"github.com/driftline/ate/internal/types"
	"github.com/driftline/ate/internal/universe"
	"github.com/driftline/ate/internal/utils"
	"github.com/driftline/ate/internal/wallet"
)

var ErrCannotRouteTrade = errors.New("no direct or whitelisted intermediary path for trade")

const swapDeadline = 20 * time.Minute

// ContractCaller is the read-only chain access the expected-output quote
// needs.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

// SwapIntent is a resolved swap direction: which token is spent, which is
// received, and how much goes in. RawAmountIn is always positive.
type SwapIntent struct {
	Pair        types.TradingPairIdentifier
	InputAsset  types.AssetIdentifier
	OutputAsset types.AssetIdentifier
	RawAmountIn sdkmath.Int
	IsSell      bool
}

// Router builds swap transaction sequences against one venue.
type Router struct {
	reserve    types.AssetIdentifier
	swapRouter common.Address
	quoter     common.Address
	caller     ContractCaller

	// whitelist maps a pair's quote token address to the single pool
	// allowed as the hop toward the reserve asset.
	whitelist map[common.Address]common.Address

	logger zerolog.Logger
}

// NewRouter validates the venue wiring.
func NewRouter(
	reserve types.AssetIdentifier,
	swapRouter, quoter common.Address,
	caller ContractCaller,
	whitelist map[common.Address]common.Address,
) (*Router, error) {
	if reserve.IsZero() {
		return nil, fmt.Errorf("reserve asset is required")
	}
	if swapRouter == (common.Address{}) {
		return nil, fmt.Errorf("swap router address is required")
	}
	if quoter == (common.Address{}) {
		return nil, fmt.Errorf("quoter address is required")
	}
	if whitelist == nil {
		whitelist = map[common.Address]common.Address{}
	}
	return &Router{
		reserve:    reserve,
		swapRouter: swapRouter,
		quoter:     quoter,
		caller:     caller,
		whitelist:  whitelist,
		logger:     logger.GetForComponent("router"),
	}, nil
}

// ReserveAsset is the cash asset all routes start or end in.
func (r *Router) ReserveAsset() types.AssetIdentifier {
	return r.reserve
}

// Route decides the path for a pair: direct when the pair quotes in the
// reserve asset, otherwise through the whitelisted intermediary pool for the
// pair's quote token. At most two hops; anything else is ErrCannotRouteTrade.
func (r *Router) Route(u *universe.PairUniverse, pair types.TradingPairIdentifier) (types.TradingPairIdentifier, *types.TradingPairIdentifier, error) {
	if pair.Quote.Equal(r.reserve) {
		return pair, nil, nil
	}
	pool, ok := r.whitelist[pair.Quote.Address]
	if !ok {
		return types.TradingPairIdentifier{}, nil, fmt.Errorf(
			"%w: quote token %s has no whitelisted intermediary pool", ErrCannotRouteTrade, pair.Quote.String())
	}
	intermediary, err := u.GetPairByContract(pool)
	if err != nil {
		return types.TradingPairIdentifier{}, nil, fmt.Errorf(
			"%w: whitelisted intermediary pool %s is not in the trading universe", ErrCannotRouteTrade, pool.Hex())
	}
	return pair, &intermediary, nil
}

// BuyIntent spends the reserve asset to acquire the pair's base token.
func (r *Router) BuyIntent(pair types.TradingPairIdentifier, rawReserveAmount sdkmath.Int) SwapIntent {
	return SwapIntent{
		Pair:        pair,
		InputAsset:  r.reserve,
		OutputAsset: pair.Base,
		RawAmountIn: rawReserveAmount,
	}
}

// InvertForSell is the explicit sell transformation: the trade's negated
// base quantity becomes the swap input and the reserve asset becomes the
// output. The planned quantity must carry the sell sign (negative).
func (r *Router) InvertForSell(pair types.TradingPairIdentifier, plannedQuantity sdkmath.LegacyDec) (SwapIntent, error) {
	if plannedQuantity.IsNil() || !plannedQuantity.IsNegative() {
		return SwapIntent{}, fmt.Errorf("sell inversion needs a negative planned quantity, got %s", plannedQuantity.String())
	}
	return SwapIntent{
		Pair:        pair,
		InputAsset:  pair.Base,
		OutputAsset: r.reserve,
		RawAmountIn: utils.DecToRaw(plannedQuantity.Neg(), pair.Base.Decimals),
		IsSell:      true,
	}, nil
}

// BuildSwap turns an intent into the ordered signed transaction sequence:
// an approval for the input token when this routing state has not approved
// it yet, then the swap with a slippage-bounded minimum output. On any error
// no partial sequence is returned.
func (r *Router) BuildSwap(
	ctx context.Context,
	state *RoutingState,
	u *universe.PairUniverse,
	intent SwapIntent,
	maxSlippageFraction float64,
	checkBalances bool,
) ([]*types.BlockchainTransaction, error) {
	if intent.RawAmountIn.IsNil() || !intent.RawAmountIn.IsPositive() {
		return nil, fmt.Errorf("swap input amount must be positive, got %s", intent.RawAmountIn.String())
	}
	slippageBps, err := fractionToBps(maxSlippageFraction)
	if err != nil {
		return nil, err
	}

	target, intermediary, err := r.Route(u, intent.Pair)
	if err != nil {
		return nil, err
	}
	// The whitelist is re-validated at call time; a route resolved earlier
	// in the cycle is not trusted across configuration changes.
	if intermediary != nil {
		if pool, ok := r.whitelist[intent.Pair.Quote.Address]; !ok || pool != intermediary.PoolAddress {
			return nil, fmt.Errorf("%w: intermediary pool %s is no longer whitelisted", ErrCannotRouteTrade, intermediary.PoolAddress.Hex())
		}
	}

	if checkBalances {
		if err := state.CheckBalance(ctx, intent.InputAsset.Address, intent.RawAmountIn); err != nil {
			return nil, err
		}
	}

	expectedOut, err := r.quoteExpectedOut(ctx, intent, target, intermediary)
	if err != nil {
		return nil, fmt.Errorf("expected output quote for %s: %w", intent.Pair.String(), err)
	}
	minOut := applySlippageBps(expectedOut, slippageBps)
	if !minOut.IsPositive() {
		return nil, fmt.Errorf("slippage-bounded minimum output for %s is not positive", intent.Pair.String())
	}

	var sequence []*types.BlockchainTransaction

	if !state.IsApproved(intent.InputAsset.Address, r.swapRouter) {
		approveTx, err := r.buildApproval(ctx, state, intent)
		if err != nil {
			return nil, err
		}
		sequence = append(sequence, approveTx)
	}

	swapTx, err := r.buildSwapTx(ctx, state, intent, target, intermediary, minOut)
	if err != nil {
		return nil, err
	}
	sequence = append(sequence, swapTx)

	r.logger.Info().
		Str("pair", intent.Pair.String()).
		Bool("multihop", intermediary != nil).
		Bool("sell", intent.IsSell).
		Str("amount_in", intent.RawAmountIn.String()).
		Str("min_out", minOut.String()).
		Int("transactions", len(sequence)).
		Msg("Built swap transaction sequence")
	return sequence, nil
}

// quoteExpectedOut asks the venue quoter what the swap should return before
// slippage.
func (r *Router) quoteExpectedOut(
	ctx context.Context,
	intent SwapIntent,
	target types.TradingPairIdentifier,
	intermediary *types.TradingPairIdentifier,
) (sdkmath.Int, error) {
	var data []byte
	var method string
	var err error
	if intermediary == nil {
		method = "quoteExactInputSingle"
		data, err = chain.PackQuoteExactInputSingle(intent.InputAsset.Address, intent.OutputAsset.Address, target.Fee, intent.RawAmountIn)
	} else {
		method = "quoteExactInput"
		var path []byte
		path, err = r.encodeRoutePath(intent, target, *intermediary)
		if err == nil {
			data, err = chain.PackQuoteExactInput(path, intent.RawAmountIn)
		}
	}
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	raw, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.quoter, Data: data})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return chain.UnpackQuote(method, raw)
}

// encodeRoutePath lays out the two hop packed path in swap direction.
func (r *Router) encodeRoutePath(
	intent SwapIntent,
	target types.TradingPairIdentifier,
	intermediary types.TradingPairIdentifier,
) ([]byte, error) {
	if intent.IsSell {
		// base -> quote -> reserve
		return chain.EncodePath(
			[]common.Address{intent.Pair.Base.Address, intent.Pair.Quote.Address, r.reserve.Address},
			[]uint32{target.Fee, intermediary.Fee},
		)
	}
	// reserve -> quote -> base
	return chain.EncodePath(
		[]common.Address{r.reserve.Address, intent.Pair.Quote.Address, intent.Pair.Base.Address},
		[]uint32{intermediary.Fee, target.Fee},
	)
}

func (r *Router) buildApproval(ctx context.Context, state *RoutingState, intent SwapIntent) (*types.BlockchainTransaction, error) {
	callData, err := chain.PackApprove(r.swapRouter, intent.RawAmountIn)
	if err != nil {
		return nil, err
	}
	tx, err := state.builder.BuildAndSign(ctx, wallet.ContractCall{
		Contract:         intent.InputAsset.Address,
		FunctionSelector: "approve",
		CallData:         callData,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign approval for %s: %w", intent.InputAsset.String(), err)
	}
	state.MarkApproved(intent.InputAsset.Address, r.swapRouter)
	return tx, nil
}

func (r *Router) buildSwapTx(
	ctx context.Context,
	state *RoutingState,
	intent SwapIntent,
	target types.TradingPairIdentifier,
	intermediary *types.TradingPairIdentifier,
	minOut sdkmath.Int,
) (*types.BlockchainTransaction, error) {
	deadline := big.NewInt(time.Now().Add(swapDeadline).Unix())
	recipient := state.Holder()

	var callData []byte
	var selector string
	var err error
	if intermediary == nil {
		selector = "exactInputSingle"
		callData, err = chain.PackExactInputSingle(chain.ExactInputSingleParams{
			TokenIn:           intent.InputAsset.Address,
			TokenOut:          intent.OutputAsset.Address,
			Fee:               big.NewInt(int64(target.Fee)),
			Recipient:         recipient,
			Deadline:          deadline,
			AmountIn:          intent.RawAmountIn.BigInt(),
			AmountOutMinimum:  minOut.BigInt(),
			SqrtPriceLimitX96: big.NewInt(0),
		})
	} else {
		selector = "exactInput"
		var path []byte
		path, err = r.encodeRoutePath(intent, target, *intermediary)
		if err == nil {
			callData, err = chain.PackExactInput(chain.ExactInputParams{
				Path:             path,
				Recipient:        recipient,
				Deadline:         deadline,
				AmountIn:         intent.RawAmountIn.BigInt(),
				AmountOutMinimum: minOut.BigInt(),
			})
		}
	}
	if err != nil {
		return nil, err
	}

	deltas := []types.AssetDelta{
		types.NewAssetDelta(intent.InputAsset.Address, intent.RawAmountIn.Neg()),
		types.NewAssetDelta(intent.OutputAsset.Address, minOut),
	}
	tx, err := state.builder.BuildAndSign(ctx, wallet.ContractCall{
		Contract:         r.swapRouter,
		FunctionSelector: selector,
		CallData:         callData,
		AssetDeltas:      deltas,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign swap for %s: %w", intent.Pair.String(), err)
	}
	return tx, nil
}

// fractionToBps converts a slippage fraction to basis points at the call
// boundary.
func fractionToBps(fraction float64) (int64, error) {
	if fraction <= 0 || fraction >= 1 {
		return 0, fmt.Errorf("slippage fraction must be within (0, 1), got %f", fraction)
	}
	return int64(fraction*10000 + 0.5), nil
}

// applySlippageBps shrinks an expected output by the slippage bound,
// truncating toward the conservative side.
func applySlippageBps(amount sdkmath.Int, bps int64) sdkmath.Int {
	keep := sdkmath.NewInt(10000 - bps)
	return amount.Mul(keep).Quo(sdkmath.NewInt(10000))
}
