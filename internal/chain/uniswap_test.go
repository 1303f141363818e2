package chain

import (
	"math/big"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tokenIn  = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	tokenMid = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	tokenOut = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func TestEncodePathByteLayout(t *testing.T) {
	path, err := EncodePath([]common.Address{tokenIn, tokenMid, tokenOut}, []uint32{3000, 10000})
	require.NoError(t, err)
	require.Len(t, path, 20+3+20+3+20)

	assert.Equal(t, tokenIn.Bytes(), path[:20])
	// 3000 = 0x000BB8 big-endian in three bytes.
	assert.Equal(t, []byte{0x00, 0x0b, 0xb8}, path[20:23])
	assert.Equal(t, tokenMid.Bytes(), path[23:43])
	// 10000 = 0x002710.
	assert.Equal(t, []byte{0x00, 0x27, 0x10}, path[43:46])
	assert.Equal(t, tokenOut.Bytes(), path[46:66])
}

func TestEncodePathValidation(t *testing.T) {
	_, err := EncodePath([]common.Address{tokenIn}, nil)
	require.Error(t, err)

	_, err = EncodePath([]common.Address{tokenIn, tokenOut}, []uint32{3000, 500})
	require.Error(t, err, "one fee per hop")
}

func TestPackExactInputSingleSelector(t *testing.T) {
	data, err := PackExactInputSingle(ExactInputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		Fee:               big.NewInt(3000),
		Recipient:         tokenMid,
		Deadline:          big.NewInt(1_700_000_000),
		AmountIn:          big.NewInt(500_000_000),
		AmountOutMinimum:  big.NewInt(1),
		SqrtPriceLimitX96: big.NewInt(0),
	})
	require.NoError(t, err)
	// exactInputSingle((address,address,uint24,address,uint256,uint256,uint256,uint160))
	assert.Equal(t, []byte{0x41, 0x4b, 0xf3, 0x89}, data[:4])
}

func TestPackExactInputEmbedsPath(t *testing.T) {
	path, err := EncodePath([]common.Address{tokenIn, tokenMid, tokenOut}, []uint32{3000, 10000})
	require.NoError(t, err)

	data, err := PackExactInput(ExactInputParams{
		Path:             path,
		Recipient:        tokenMid,
		Deadline:         big.NewInt(1_700_000_000),
		AmountIn:         big.NewInt(500_000_000),
		AmountOutMinimum: big.NewInt(1),
	})
	require.NoError(t, err)
	// exactInput((bytes,address,uint256,uint256,uint256))
	assert.Equal(t, []byte{0xc0, 0x4b, 0x8d, 0x59}, data[:4])
	assert.Contains(t, string(data), string(path))
}

func TestQuoteRoundTrip(t *testing.T) {
	data, err := PackQuoteExactInputSingle(tokenIn, tokenOut, 3000, sdkmath.NewInt(500_000_000))
	require.NoError(t, err)
	// quoteExactInputSingle(address,address,uint24,uint256,uint160)
	assert.Equal(t, []byte{0xf7, 0x72, 0x9d, 0x43}, data[:4])

	out := common.LeftPadBytes(big.NewInt(250_000_000_000_000_000).Bytes(), 32)
	amount, err := UnpackQuote("quoteExactInputSingle", out)
	require.NoError(t, err)
	assert.Equal(t, "250000000000000000", amount.String())
}
