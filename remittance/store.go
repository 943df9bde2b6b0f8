package remittance

import (
	"context"

	"github.com/xraph/remit/types"
)

type Store interface {
	GetRemittance(ctx context.Context, id uint64) (*Remittance, error)
	ListRemittances(ctx context.Context, opts ListOpts) ([]*Remittance, error)
}

// ListOpts filters ListRemittances. Zero fields do not filter. Results are
// ordered by id ascending.
type ListOpts struct {
	Sender types.Address
	Agent  types.Address
	Status Status
	Limit  int
	Offset int
}

// Matches reports whether r passes the filters in o, ignoring paging.
func (o ListOpts) Matches(r *Remittance) bool {
	if o.Sender != "" && r.Sender != o.Sender {
		return false
	}
	if o.Agent != "" && r.Agent != o.Agent {
		return false
	}
	if o.Status != "" && r.Status != o.Status {
		return false
	}
	return true
}
