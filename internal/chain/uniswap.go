/*

This file contains the Uniswap v3 calldata layer: swap router pack helpers,
quoter pack/unpack helpers and the packed multihop path encoding.

*/

package chain

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const swapRouterABIJSON = `[
	{"name":"exactInputSingle","type":"function","inputs":[{"name":"params","type":"tuple","components":[
		{"name":"tokenIn","type":"address"},
		{"name":"tokenOut","type":"address"},
		{"name":"fee","type":"uint24"},
		{"name":"recipient","type":"address"},
		{"name":"deadline","type":"uint256"},
		{"name":"amountIn","type":"uint256"},
		{"name":"amountOutMinimum","type":"uint256"},
		{"name":"sqrtPriceLimitX96","type":"uint160"}]}],
	"outputs":[{"name":"amountOut","type":"uint256"}]},
	{"name":"exactInput","type":"function","inputs":[{"name":"params","type":"tuple","components":[
		{"name":"path","type":"bytes"},
		{"name":"recipient","type":"address"},
		{"name":"deadline","type":"uint256"},
		{"name":"amountIn","type":"uint256"},
		{"name":"amountOutMinimum","type":"uint256"}]}],
	"outputs":[{"name":"amountOut","type":"uint256"}]}
]`

const quoterABIJSON = `[
	{"name":"quoteExactInputSingle","type":"function","inputs":[
		{"name":"tokenIn","type":"address"},
		{"name":"tokenOut","type":"address"},
		{"name":"fee","type":"uint24"},
		{"name":"amountIn","type":"uint256"},
		{"name":"sqrtPriceLimitX96","type":"uint160"}],
	"outputs":[{"name":"amountOut","type":"uint256"}]},
	{"name":"quoteExactInput","type":"function","inputs":[
		{"name":"path","type":"bytes"},
		{"name":"amountIn","type":"uint256"}],
	"outputs":[{"name":"amountOut","type":"uint256"}]}
]`

var (
	uniswapOnce   sync.Once
	swapRouterABI abi.ABI
	quoterABI     abi.ABI
)

func loadUniswapABIs() {
	uniswapOnce.Do(func() {
		var err error
		swapRouterABI, err = abi.JSON(strings.NewReader(swapRouterABIJSON))
		if err != nil {
			panic(fmt.Sprintf("swap router abi does not parse: %v", err))
		}
		quoterABI, err = abi.JSON(strings.NewReader(quoterABIJSON))
		if err != nil {
			panic(fmt.Sprintf("quoter abi does not parse: %v", err))
		}
	})
}

// ExactInputSingleParams mirrors the router's single hop swap parameters.
type ExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// ExactInputParams mirrors the router's multihop swap parameters.
type ExactInputParams struct {
	Path             []byte
	Recipient        common.Address
	Deadline         *big.Int
	AmountIn         *big.Int
	AmountOutMinimum *big.Int
}

// PackExactInputSingle builds exactInputSingle calldata.
func PackExactInputSingle(params ExactInputSingleParams) ([]byte, error) {
	loadUniswapABIs()
	data, err := swapRouterABI.Pack("exactInputSingle", params)
	if err != nil {
		return nil, fmt.Errorf("failed to pack exactInputSingle calldata: %w", err)
	}
	return data, nil
}

// PackExactInput builds exactInput calldata for a multihop swap.
func PackExactInput(params ExactInputParams) ([]byte, error) {
	loadUniswapABIs()
	data, err := swapRouterABI.Pack("exactInput", params)
	if err != nil {
		return nil, fmt.Errorf("failed to pack exactInput calldata: %w", err)
	}
	return data, nil
}

// EncodePath builds the packed multihop path: token addresses interleaved
// with 3-byte big-endian fee tiers, one fee per hop.
func EncodePath(tokens []common.Address, fees []uint32) ([]byte, error) {
	if len(tokens) < 2 {
		return nil, fmt.Errorf("path needs at least two tokens, got %d", len(tokens))
	}
	if len(fees) != len(tokens)-1 {
		return nil, fmt.Errorf("path with %d tokens needs %d fees, got %d", len(tokens), len(tokens)-1, len(fees))
	}
	path := make([]byte, 0, len(tokens)*20+len(fees)*3)
	for i, token := range tokens {
		path = append(path, token.Bytes()...)
		if i < len(fees) {
			fee := fees[i]
			path = append(path, byte(fee>>16), byte(fee>>8), byte(fee))
		}
	}
	return path, nil
}

// PackQuoteExactInputSingle builds single hop quoter calldata.
func PackQuoteExactInputSingle(tokenIn, tokenOut common.Address, fee uint32, amountIn sdkmath.Int) ([]byte, error) {
	loadUniswapABIs()
	data, err := quoterABI.Pack("quoteExactInputSingle", tokenIn, tokenOut, big.NewInt(int64(fee)), amountIn.BigInt(), big.NewInt(0))
	if err != nil {
		return nil, fmt.Errorf("failed to pack quoteExactInputSingle calldata: %w", err)
	}
	return data, nil
}

// PackQuoteExactInput builds multihop quoter calldata over a packed path.
func PackQuoteExactInput(path []byte, amountIn sdkmath.Int) ([]byte, error) {
	loadUniswapABIs()
	data, err := quoterABI.Pack("quoteExactInput", path, amountIn.BigInt())
	if err != nil {
		return nil, fmt.Errorf("failed to pack quoteExactInput calldata: %w", err)
	}
	return data, nil
}

// UnpackQuote decodes the single uint256 amountOut a quoter call returns.
func UnpackQuote(method string, raw []byte) (sdkmath.Int, error) {
	loadUniswapABIs()
	values, err := quoterABI.Unpack(method, raw)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to decode %s return: %w", method, err)
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("unexpected %s return type %T", method, values[0])
	}
	return sdkmath.NewIntFromBigInt(amount), nil
}
