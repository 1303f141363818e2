/*

This file contains the top-level persisted state document: the portfolio
ledger plus the sync bookkeeping (deployment record and treasury state).

*/

package portfolio

import (
	"time"

	"github.com/driftline/ate/internal/types"
)

// Sync is the reconciliation side of the state document.
type Sync struct {
	Deployment *types.Deployment `json:"deployment,omitempty"`
	Treasury   types.Treasury    `json:"treasury"`
}

// State is the full persisted document for one strategy instance. It
// serializes to JSON with all quantities as exact decimal strings.
type State struct {
	Portfolio *Portfolio `json:"portfolio"`
	Sync      Sync       `json:"sync"`

	CreatedAt    time.Time  `json:"created_at"`
	LastCycleAt  *time.Time `json:"last_cycle_at,omitempty"`
	CycleCounter int64      `json:"cycle_counter"`
}

// NewState creates fresh state for a new deployment.
func NewState() *State {
	return &State{
		Portfolio: NewPortfolio(),
		Sync: Sync{
			Treasury: types.NewTreasury(),
		},
		CreatedAt: time.Now().UTC(),
	}
}

// MarkCycle stamps the completion of one strategy cycle.
func (s *State) MarkCycle(at time.Time) {
	ts := at.UTC()
	s.LastCycleAt = &ts
	s.CycleCounter++
}
