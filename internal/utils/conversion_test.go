package utils

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecToRawTruncates(t *testing.T) {
	// 1.2345678 USDC at 6 decimals loses the trailing digits, never rounds up.
	quantity := sdkmath.LegacyMustNewDecFromStr("1.2345678")
	assert.Equal(t, "1234567", DecToRaw(quantity, 6).String())

	assert.Equal(t, "1500000000000000000", DecToRaw(sdkmath.LegacyMustNewDecFromStr("1.5"), 18).String())
	assert.Equal(t, "0", DecToRaw(sdkmath.LegacyDec{}, 18).String())
}

func TestRawToDec(t *testing.T) {
	assert.Equal(t, "500.000000000000000000", RawToDec(sdkmath.NewInt(500_000_000), 6).String())
	assert.Equal(t, "0.000000000000000001", RawToDec(sdkmath.NewInt(1), 18).String())
	assert.True(t, RawToDec(sdkmath.Int{}, 18).IsZero())
}

func TestRoundTripLosesAtMostOneRawUnit(t *testing.T) {
	raw := sdkmath.NewInt(123_456_789)
	back := DecToRaw(RawToDec(raw, 6), 6)
	assert.Equal(t, raw.String(), back.String())
}

func TestFractionToDec(t *testing.T) {
	dec, err := FractionToDec(0.005)
	require.NoError(t, err)
	assert.Equal(t, "0.005000000000000000", dec.String())

	_, err = FractionToDec(-0.1)
	require.Error(t, err)
	_, err = FractionToDec(1.1)
	require.Error(t, err)
}
