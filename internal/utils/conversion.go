package utils

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// Token amounts cross two representations in the engine: raw on-chain
// integers (what contracts see) and exact decimals (what the ledger keeps).
// All conversions truncate rather than round so we never overstate a balance.

// DecToRaw converts an exact decimal token quantity to the raw integer
// representation with the given number of token decimals.
func DecToRaw(quantity sdkmath.LegacyDec, decimals uint8) sdkmath.Int {
	if quantity.IsNil() {
		return sdkmath.ZeroInt()
	}
	multiplier := sdkmath.NewIntWithDecimal(1, int(decimals))
	return quantity.MulInt(multiplier).TruncateInt()
}

// RawToDec converts a raw on-chain integer amount to an exact decimal
// quantity with the given number of token decimals.
func RawToDec(raw sdkmath.Int, decimals uint8) sdkmath.LegacyDec {
	if raw.IsNil() {
		return sdkmath.LegacyZeroDec()
	}
	multiplier := sdkmath.NewIntWithDecimal(1, int(decimals))
	return sdkmath.LegacyNewDecFromInt(raw).QuoInt(multiplier)
}

// FractionToDec converts a float fraction (e.g. a slippage tolerance) to an
// exact decimal. The fraction must be finite and within [0, 1].
func FractionToDec(fraction float64) (sdkmath.LegacyDec, error) {
	if fraction < 0 || fraction > 1 {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("fraction must be within [0, 1], got %f", fraction)
	}
	dec, err := sdkmath.LegacyNewDecFromStr(fmt.Sprintf("%.18f", fraction))
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("failed to convert fraction %f: %w", fraction, err)
	}
	return dec, nil
}
