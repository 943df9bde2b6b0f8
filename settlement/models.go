package settlement

import (
	"time"

	"github.com/xraph/remit/id"
	"github.com/xraph/remit/types"
)

// MaxBatchSize bounds the number of entries accepted by one batch
// settlement call.
const MaxBatchSize = 100

// Mark records that the payout of a remittance has executed. It is written
// once and never cleared, and it is consulted independently of the
// remittance status.
type Mark struct {
	RemittanceID uint64     `json:"remittance_id"`
	BatchID      id.BatchID `json:"batch_id,omitempty"`
	SettledAt    time.Time  `json:"settled_at"`
}

// Entry is one line of a batch settlement request.
type Entry struct {
	RemittanceID uint64 `json:"remittance_id"`
}

// Entries builds a request from remittance ids.
func Entries(ids ...uint64) []Entry {
	out := make([]Entry, len(ids))
	for i, v := range ids {
		out[i] = Entry{RemittanceID: v}
	}
	return out
}

// Result describes a successful batch settlement.
type Result struct {
	BatchID     id.BatchID   `json:"batch_id"`
	SettledIDs  []uint64     `json:"settled_ids"`
	TotalFees   types.Amount `json:"total_fees"`
	TotalPayout types.Amount `json:"total_payout"`
}
