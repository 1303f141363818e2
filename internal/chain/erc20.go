package chain

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const erc20ABIJSON = `[
	{"name":"approve","type":"function","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"Transfer","type":"event","inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]}
]`

var (
	erc20Once sync.Once
	erc20ABI  abi.ABI

	// TransferTopic is keccak256("Transfer(address,address,uint256)").
	TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
)

func getERC20ABI() abi.ABI {
	erc20Once.Do(func() {
		parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
		if err != nil {
			panic(fmt.Sprintf("erc20 abi does not parse: %v", err))
		}
		erc20ABI = parsed
	})
	return erc20ABI
}

// PackApprove builds approve(spender, amount) calldata.
func PackApprove(spender common.Address, amount sdkmath.Int) ([]byte, error) {
	data, err := getERC20ABI().Pack("approve", spender, amount.BigInt())
	if err != nil {
		return nil, fmt.Errorf("failed to pack approve calldata: %w", err)
	}
	return data, nil
}

// PackBalanceOf builds balanceOf(account) calldata.
func PackBalanceOf(account common.Address) ([]byte, error) {
	data, err := getERC20ABI().Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf calldata: %w", err)
	}
	return data, nil
}

// PackAllowance builds allowance(owner, spender) calldata.
func PackAllowance(owner, spender common.Address) ([]byte, error) {
	data, err := getERC20ABI().Pack("allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("failed to pack allowance calldata: %w", err)
	}
	return data, nil
}

// UnpackBalanceOf decodes a single uint256 return value.
func UnpackBalanceOf(raw []byte) (sdkmath.Int, error) {
	values, err := getERC20ABI().Unpack("balanceOf", raw)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("unexpected balanceOf return type %T", values[0])
	}
	return sdkmath.NewIntFromBigInt(amount), nil
}

// TransferEvent is a decoded ERC-20 Transfer log.
type TransferEvent struct {
	Token       common.Address
	From        common.Address
	To          common.Address
	RawAmount   sdkmath.Int
	TxHash      common.Hash
	LogIndex    uint
	BlockNumber uint64
}

// ParseTransferLog decodes one Transfer log. Returns false when the log is
// not a well-formed Transfer event.
func ParseTransferLog(log coretypes.Log) (TransferEvent, bool) {
	if len(log.Topics) != 3 || log.Topics[0] != TransferTopic || len(log.Data) != 32 {
		return TransferEvent{}, false
	}
	return TransferEvent{
		Token:       log.Address,
		From:        common.BytesToAddress(log.Topics[1].Bytes()),
		To:          common.BytesToAddress(log.Topics[2].Bytes()),
		RawAmount:   sdkmath.NewIntFromBigInt(new(big.Int).SetBytes(log.Data)),
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
		BlockNumber: log.BlockNumber,
	}, true
}
