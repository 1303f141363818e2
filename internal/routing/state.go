/*

This file contains the per-cycle routing state: the approval cache and the
pre-flight balance check. One RoutingState lives for one strategy cycle and
is passed explicitly into every routing call, never held as process state.

*/

package routing

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/driftline/ate/internal/wallet"
)

var ErrInsufficientBalance = errors.New("input token balance is insufficient for the planned swap")

// BalanceReader is the chain access the pre-flight balance check needs.
type BalanceReader interface {
	ERC20Balance(ctx context.Context, token, holder common.Address) (sdkmath.Int, error)
}

type approvalKey struct {
	token   common.Address
	spender common.Address
}

// RoutingState scopes approval caching and balance reads to one cycle.
type RoutingState struct {
	builder  wallet.TransactionBuilder
	balances BalanceReader

	// holder is whose balances fund the swaps: the vault address for
	// vault-mediated signing, the wallet address otherwise.
	holder common.Address

	approved map[approvalKey]bool
}

// NewRoutingState starts a fresh cycle context with an empty approval cache.
func NewRoutingState(builder wallet.TransactionBuilder, balances BalanceReader, holder common.Address) *RoutingState {
	return &RoutingState{
		builder:  builder,
		balances: balances,
		holder:   holder,
		approved: map[approvalKey]bool{},
	}
}

// Holder is the address whose token balances fund swaps this cycle.
func (s *RoutingState) Holder() common.Address {
	return s.holder
}

// IsApproved reports whether the token was already approved for the spender
// during this routing state's lifetime.
func (s *RoutingState) IsApproved(token, spender common.Address) bool {
	return s.approved[approvalKey{token: token, spender: spender}]
}

// MarkApproved records an emitted approval so the same cycle does not
// produce a redundant approve call.
func (s *RoutingState) MarkApproved(token, spender common.Address) {
	s.approved[approvalKey{token: token, spender: spender}] = true
}

// CheckBalance reads the holder's on-chain balance of the input token and
// fails when it cannot fund the swap.
func (s *RoutingState) CheckBalance(ctx context.Context, token common.Address, required sdkmath.Int) error {
	balance, err := s.balances.ERC20Balance(ctx, token, s.holder)
	if err != nil {
		return fmt.Errorf("pre-flight balance read for %s: %w", token.Hex(), err)
	}
	if balance.LT(required) {
		return fmt.Errorf("%w: token %s holder %s has %s, needs %s",
			ErrInsufficientBalance, token.Hex(), s.holder.Hex(), balance.String(), required.String())
	}
	return nil
}
