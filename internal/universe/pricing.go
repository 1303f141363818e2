/*

This file contains the pricing model abstraction and the live quoter-backed
implementation. Prices are expressed in quote tokens per one base token.

*/

package universe

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/driftline/ate/internal/chain"
	"github.com/driftline/ate/internal/logger"
	"github.com/driftline/ate/internal/types"
	"github.com/driftline/ate/internal/utils"
)

// ContractCaller is the read-only chain access pricing needs.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

// PricingModel quotes execution prices for a pair before a trade is planned.
// Implementations may hit the venue live or replay recorded data.
type PricingModel interface {
	// GetBuyPrice quotes the price paid per base token when buying with the
	// given reserve quantity. A nil quantity uses the probe default.
	GetBuyPrice(ctx context.Context, pair types.TradingPairIdentifier, reserveQuantity *sdkmath.LegacyDec) (sdkmath.LegacyDec, error)
	// GetSellPrice quotes the price received per base token when selling the
	// given base quantity. A nil quantity uses the probe default.
	GetSellPrice(ctx context.Context, pair types.TradingPairIdentifier, baseQuantity *sdkmath.LegacyDec) (sdkmath.LegacyDec, error)
}

// LivePricing quotes through the venue's quoter contract with eth_call.
type LivePricing struct {
	caller ContractCaller
	quoter common.Address
	// probeQuantity is the default quote-token amount used when the caller
	// does not supply one. Small enough to ignore depth, large enough to
	// survive integer truncation on low-decimal tokens.
	probeQuantity sdkmath.LegacyDec
	logger        zerolog.Logger
}

// NewLivePricing builds a quoter-backed pricing model.
func NewLivePricing(caller ContractCaller, quoter common.Address, probeQuantity sdkmath.LegacyDec) (*LivePricing, error) {
	if quoter == (common.Address{}) {
		return nil, fmt.Errorf("quoter contract address is required for live pricing")
	}
	if probeQuantity.IsNil() || !probeQuantity.IsPositive() {
		return nil, fmt.Errorf("probe quantity must be positive")
	}
	return &LivePricing{
		caller:        caller,
		quoter:        quoter,
		probeQuantity: probeQuantity,
		logger:        logger.GetForComponent("live_pricing"),
	}, nil
}

// GetBuyPrice quotes quote->base and converts the output to a per-token price.
func (p *LivePricing) GetBuyPrice(ctx context.Context, pair types.TradingPairIdentifier, reserveQuantity *sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	reserve := p.probeQuantity
	if reserveQuantity != nil {
		reserve = *reserveQuantity
	}
	rawIn := utils.DecToRaw(reserve, pair.Quote.Decimals)
	rawOut, err := p.quoteSingle(ctx, pair.Quote.Address, pair.Base.Address, pair.Fee, rawIn)
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("buy quote for %s: %w", pair.String(), err)
	}
	baseOut := utils.RawToDec(rawOut, pair.Base.Decimals)
	if baseOut.IsZero() {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("buy quote for %s returned zero output", pair.String())
	}
	return reserve.Quo(baseOut), nil
}

// GetSellPrice quotes base->quote and converts the output to a per-token price.
func (p *LivePricing) GetSellPrice(ctx context.Context, pair types.TradingPairIdentifier, baseQuantity *sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	var base sdkmath.LegacyDec
	if baseQuantity != nil {
		base = *baseQuantity
	} else {
		// Convert the quote-token probe into base units with a rough first
		// quote so both directions probe a similar trade size.
		buyPrice, err := p.GetBuyPrice(ctx, pair, nil)
		if err != nil {
			return sdkmath.LegacyZeroDec(), err
		}
		base = p.probeQuantity.Quo(buyPrice)
	}
	rawIn := utils.DecToRaw(base, pair.Base.Decimals)
	rawOut, err := p.quoteSingle(ctx, pair.Base.Address, pair.Quote.Address, pair.Fee, rawIn)
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("sell quote for %s: %w", pair.String(), err)
	}
	quoteOut := utils.RawToDec(rawOut, pair.Quote.Decimals)
	if base.IsZero() {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("sell quote for %s probed zero input", pair.String())
	}
	return quoteOut.Quo(base), nil
}

func (p *LivePricing) quoteSingle(ctx context.Context, tokenIn, tokenOut common.Address, fee uint32, amountIn sdkmath.Int) (sdkmath.Int, error) {
	if amountIn.IsZero() {
		return sdkmath.ZeroInt(), fmt.Errorf("quote input amount truncated to zero")
	}
	data, err := chain.PackQuoteExactInputSingle(tokenIn, tokenOut, fee, amountIn)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	raw, err := p.caller.CallContract(ctx, ethereum.CallMsg{To: &p.quoter, Data: data})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return chain.UnpackQuote("quoteExactInputSingle", raw)
}
