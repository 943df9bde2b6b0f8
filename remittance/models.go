package remittance

import (
	"time"

	"github.com/xraph/remit/types"
)

// Status is the lifecycle state of a remittance.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether s may move to next. Only Pending has
// outgoing edges.
func (s Status) CanTransition(next Status) bool {
	return s == StatusPending && next.IsTerminal()
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Remittance is a transfer order from Sender to Agent. Amount is the gross
// value held in custody; Fee is fixed at creation.
type Remittance struct {
	types.Entity
	ID       uint64        `json:"id"`
	Sender   types.Address `json:"sender"`
	Agent    types.Address `json:"agent"`
	Amount   types.Amount  `json:"amount"`
	Fee      types.Amount  `json:"fee"`
	Currency string        `json:"currency"`
	Country  string        `json:"country"`
	Status   Status        `json:"status"`
	Expiry   *time.Time    `json:"expiry,omitempty"`
}

// Payout is the amount released to the agent on settlement.
func (r *Remittance) Payout() (types.Amount, error) {
	return r.Amount.CheckedSub(r.Fee)
}

// Expired reports whether settlement at now is past the expiry. Settlement
// exactly at the expiry instant is still allowed.
func (r *Remittance) Expired(now time.Time) bool {
	return r.Expiry != nil && now.After(*r.Expiry)
}

// Clone returns a deep copy.
func (r *Remittance) Clone() *Remittance {
	if r == nil {
		return nil
	}
	c := *r
	if r.Expiry != nil {
		exp := *r.Expiry
		c.Expiry = &exp
	}
	return &c
}

// CreateParams describes a remittance creation request.
type CreateParams struct {
	Sender   types.Address `json:"sender"`
	Agent    types.Address `json:"agent"`
	Amount   types.Amount  `json:"amount"`
	Currency string        `json:"currency"`
	Country  string        `json:"country"`
	Expiry   *time.Time    `json:"expiry,omitempty"`
}
