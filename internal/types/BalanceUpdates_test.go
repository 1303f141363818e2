package types

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBalanceUpdateRejectsZeroQuantity(t *testing.T) {
	asset := NewAssetIdentifier(1, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "USDC", 6)
	_, err := NewBalanceUpdate("evt-1", CauseDeposit, PositionTypeReserve, asset, time.Now(), sdkmath.LegacyZeroDec(), sdkmath.LegacyZeroDec())
	require.ErrorIs(t, err, ErrZeroQuantityUpdate)

	_, err = NewBalanceUpdate("evt-1", CauseDeposit, PositionTypeReserve, asset, time.Now(), sdkmath.LegacyDec{}, sdkmath.LegacyZeroDec())
	require.ErrorIs(t, err, ErrZeroQuantityUpdate, "a nil decimal is not a usable delta")
}

func TestNewBalanceUpdateRequiresEventID(t *testing.T) {
	asset := NewAssetIdentifier(1, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "USDC", 6)
	_, err := NewBalanceUpdate("", CauseInterest, PositionTypeReserve, asset, time.Now(), sdkmath.LegacyOneDec(), sdkmath.LegacyZeroDec())
	require.ErrorIs(t, err, ErrMissingEventID)

	_, err = NewBalanceUpdate("   ", CauseInterest, PositionTypeReserve, asset, time.Now(), sdkmath.LegacyOneDec(), sdkmath.LegacyZeroDec())
	require.ErrorIs(t, err, ErrMissingEventID)
}

func TestNewBalanceUpdateNormalizesTimestampToUTC(t *testing.T) {
	asset := NewAssetIdentifier(1, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "USDC", 6)
	local := time.Date(2026, 8, 29, 10, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	update, err := NewBalanceUpdate("evt-2", CauseDeposit, PositionTypeReserve, asset, local, sdkmath.LegacyOneDec(), sdkmath.LegacyZeroDec())
	require.NoError(t, err)
	assert.Equal(t, time.UTC, update.BlockMinedAt.Location())
	assert.True(t, update.BlockMinedAt.Equal(local))
}

func TestEventIDDerivations(t *testing.T) {
	txHash := common.HexToHash("0xABCDEF0000000000000000000000000000000000000000000000000000000001")
	asset := NewAssetIdentifier(137, "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", "WETH", 18)

	deposit := DepositEventID(137, txHash, 4)
	assert.Equal(t, "deposit-137-0xabcdef0000000000000000000000000000000000000000000000000000000001-4", deposit)

	redemption := RedemptionEventID(137, txHash, 4, asset)
	assert.Equal(t, "redemption-137-0xabcdef0000000000000000000000000000000000000000000000000000000001-4-0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", redemption)

	// Two assets paid out by the same redemption log range must not collide.
	other := NewAssetIdentifier(137, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "USDC", 6)
	assert.NotEqual(t, redemption, RedemptionEventID(137, txHash, 4, other))
}

func TestIsReserveUpdate(t *testing.T) {
	asset := NewAssetIdentifier(1, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "USDC", 6)
	reserve, err := NewBalanceUpdate("evt-3", CauseDeposit, PositionTypeReserve, asset, time.Now(), sdkmath.LegacyOneDec(), sdkmath.LegacyZeroDec())
	require.NoError(t, err)
	assert.True(t, reserve.IsReserveUpdate())

	position, err := NewBalanceUpdate("evt-4", CauseCorrection, PositionTypeOpenPosition, asset, time.Now(), sdkmath.LegacyOneDec(), sdkmath.LegacyZeroDec())
	require.NoError(t, err)
	assert.False(t, position.IsReserveUpdate())
}
