// Package admin holds the process-wide administrative state of a remit
// deployment: the admin principal, the settlement asset, the fee rate,
// counters, the pause switch and the agent registry.
package admin

import (
	"time"

	"github.com/xraph/remit/types"
)

// State is written once by initialization and afterwards only through
// admin operations and settlement bookkeeping.
type State struct {
	Admin             types.Address `json:"admin"`
	Asset             string        `json:"asset"`
	FeeBps            uint32        `json:"fee_bps"`
	RemittanceCounter uint64        `json:"remittance_counter"`
	AccumulatedFees   types.Amount  `json:"accumulated_fees"`
	Paused            bool          `json:"paused"`
	InitializedAt     time.Time     `json:"initialized_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// Clone returns a copy of s.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Agent is a payout agent registration flag.
type Agent struct {
	Address    types.Address `json:"address"`
	Registered bool          `json:"registered"`
	UpdatedAt  time.Time     `json:"updated_at"`
}
