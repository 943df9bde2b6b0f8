// Package store defines the persistence contract of remit. Reads are served
// per entity; writes are applied as one ChangeSet per invocation so a
// backend can make them durable together.
package store

import (
	"context"

	"github.com/xraph/remit/admin"
	"github.com/xraph/remit/limit"
	"github.com/xraph/remit/remittance"
	"github.com/xraph/remit/settlement"
)

// Store is the unified storage interface for all remit entities.
type Store interface {
	admin.Store
	remittance.Store
	settlement.Store
	limit.Store

	// Apply persists every write staged by one invocation. Implementations
	// must apply all of it or none of it.
	Apply(ctx context.Context, cs *ChangeSet) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Kind names the persisted entity kinds. Together with a discriminator
// (remittance id, corridor, history key) it addresses a record.
type Kind string

const (
	KindState          Kind = "state"
	KindAgent          Kind = "agent"
	KindRemittance     Kind = "remittance"
	KindSettlementMark Kind = "settlement_mark"
	KindDailyLimit     Kind = "daily_limit"
	KindTransferRecord Kind = "transfer_record"
)

// ChangeSet is the write set of one invocation. Records are upserts except
// Marks and Transfers, which are append-only.
type ChangeSet struct {
	State       *admin.State
	Agents      []*admin.Agent
	Remittances []*remittance.Remittance
	Marks       []*settlement.Mark
	Limits      []*limit.DailyLimit
	Transfers   []*limit.TransferRecord
}

// Empty reports whether the change set carries no writes.
func (cs *ChangeSet) Empty() bool {
	return cs == nil ||
		(cs.State == nil &&
			len(cs.Agents) == 0 &&
			len(cs.Remittances) == 0 &&
			len(cs.Marks) == 0 &&
			len(cs.Limits) == 0 &&
			len(cs.Transfers) == 0)
}

// Kinds lists the entity kinds touched by the change set.
func (cs *ChangeSet) Kinds() []Kind {
	if cs.Empty() {
		return nil
	}
	var kinds []Kind
	if cs.State != nil {
		kinds = append(kinds, KindState)
	}
	if len(cs.Agents) > 0 {
		kinds = append(kinds, KindAgent)
	}
	if len(cs.Remittances) > 0 {
		kinds = append(kinds, KindRemittance)
	}
	if len(cs.Marks) > 0 {
		kinds = append(kinds, KindSettlementMark)
	}
	if len(cs.Limits) > 0 {
		kinds = append(kinds, KindDailyLimit)
	}
	if len(cs.Transfers) > 0 {
		kinds = append(kinds, KindTransferRecord)
	}
	return kinds
}
