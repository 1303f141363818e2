// Package universe holds the tradeable pair set the engine operates on and
// the pricing abstraction used to value trades before execution.
package universe

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/driftline/ate/internal/types"
)

var (
	ErrUnknownPair  = errors.New("pair is not part of the trading universe")
	ErrUnknownToken = errors.New("token is not part of the trading universe")
)

// PairUniverse is the immutable set of pairs the engine may trade during one
// run. Lookups are by contract address; construction indexes pools and tokens
// once so per-cycle access is map reads only.
type PairUniverse struct {
	pairs  map[common.Address]types.TradingPairIdentifier
	tokens map[common.Address]types.AssetIdentifier
	order  []common.Address
}

// NewPairUniverse indexes the given pairs. Duplicate pool addresses are
// rejected; base and quote tokens of every pair become resolvable.
func NewPairUniverse(pairs []types.TradingPairIdentifier) (*PairUniverse, error) {
	u := &PairUniverse{
		pairs:  make(map[common.Address]types.TradingPairIdentifier, len(pairs)),
		tokens: make(map[common.Address]types.AssetIdentifier),
	}
	for _, pair := range pairs {
		if pair.PoolAddress == (common.Address{}) {
			return nil, fmt.Errorf("pair %s has no pool address", pair.String())
		}
		if _, exists := u.pairs[pair.PoolAddress]; exists {
			return nil, fmt.Errorf("duplicate pool address %s in universe", pair.PoolAddress.Hex())
		}
		u.pairs[pair.PoolAddress] = pair
		u.tokens[pair.Base.Address] = pair.Base
		u.tokens[pair.Quote.Address] = pair.Quote
		u.order = append(u.order, pair.PoolAddress)
	}
	return u, nil
}

// GetPairByContract resolves a pair by its pool address.
func (u *PairUniverse) GetPairByContract(pool common.Address) (types.TradingPairIdentifier, error) {
	pair, ok := u.pairs[pool]
	if !ok {
		return types.TradingPairIdentifier{}, fmt.Errorf("%w: pool %s", ErrUnknownPair, pool.Hex())
	}
	return pair, nil
}

// GetToken resolves a token that appears as base or quote of any pair.
func (u *PairUniverse) GetToken(address common.Address) (types.AssetIdentifier, error) {
	token, ok := u.tokens[address]
	if !ok {
		return types.AssetIdentifier{}, fmt.Errorf("%w: token %s", ErrUnknownToken, address.Hex())
	}
	return token, nil
}

// IteratePairs calls fn for every pair in insertion order. Iteration stops on
// the first error.
func (u *PairUniverse) IteratePairs(fn func(types.TradingPairIdentifier) error) error {
	for _, pool := range u.order {
		if err := fn(u.pairs[pool]); err != nil {
			return err
		}
	}
	return nil
}

// Count is the number of pairs in the universe.
func (u *PairUniverse) Count() int {
	return len(u.pairs)
}

// Tokens returns all distinct tokens sorted by address for deterministic
// scans.
func (u *PairUniverse) Tokens() []types.AssetIdentifier {
	out := make([]types.AssetIdentifier, 0, len(u.tokens))
	for _, token := range u.tokens {
		out = append(out, token)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Address.Hex()) < strings.ToLower(out[j].Address.Hex())
	})
	return out
}

func (u *PairUniverse) String() string {
	return fmt.Sprintf("<universe of %d pairs, %d tokens>", len(u.pairs), len(u.tokens))
}
