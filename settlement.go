package remit

import (
	"context"
	"time"

	"github.com/xraph/remit/admin"
	"github.com/xraph/remit/custody"
	"github.com/xraph/remit/event"
	"github.com/xraph/remit/id"
	"github.com/xraph/remit/remittance"
	"github.com/xraph/remit/settlement"
	"github.com/xraph/remit/types"
)

// ConfirmPayout releases amount minus fee to the agent of a pending
// remittance and books the fee. The agent must approve the call.
//
// Checks run in a fixed order: pause, existence, agent approval, status,
// settlement mark, expiry, agent address. Nothing changes on failure.
func (e *Engine) ConfirmPayout(ctx context.Context, rid uint64) error {
	return e.invoke(ctx, "confirm_payout", func(inv *invocation) error {
		st, err := inv.loadState()
		if err != nil {
			return err
		}
		if st.Paused {
			return ErrContractPaused
		}

		r, err := inv.remittance(rid)
		if err != nil {
			return err
		}
		if err := e.authorize(ctx, r.Agent); err != nil {
			return err
		}
		if err := inv.validateSettlement(r); err != nil {
			return err
		}

		fee, _, err := inv.settle(st, r, id.BatchID{})
		if err != nil {
			return err
		}
		if st.AccumulatedFees, err = st.AccumulatedFees.CheckedAdd(fee); err != nil {
			return mapArith(err)
		}
		inv.touchState()
		return nil
	})
}

// BatchSettle confirms up to settlement.MaxBatchSize payouts at once. Every
// entry is validated before anything executes; if one fails the whole batch
// is rejected with a *BatchError and nothing changes. Batch settlement does
// not require agent approval.
func (e *Engine) BatchSettle(ctx context.Context, entries []settlement.Entry) (*settlement.Result, error) {
	var (
		res      *settlement.Result
		batchID  id.BatchID
		started  bool
		reported bool
		now      time.Time
	)

	err := e.invoke(ctx, "batch_settle", func(inv *invocation) error {
		now = inv.now

		st, err := inv.loadState()
		if err != nil {
			return err
		}
		if st.Paused {
			return ErrContractPaused
		}
		if len(entries) == 0 {
			return ErrEmptyBatchSettlement
		}
		if len(entries) > settlement.MaxBatchSize {
			return ErrBatchTooLarge
		}

		batchID = id.NewBatchID()
		inv.publishNow(event.BatchStarted{BatchID: batchID, Size: len(entries)})
		started = true

		// Validate only.
		validated := make([]*remittance.Remittance, 0, len(entries))
		seen := make(map[uint64]struct{}, len(entries))
		for i, entry := range entries {
			r, err := inv.validateBatchEntry(entry.RemittanceID, seen)
			if err != nil {
				// Store failures are not a verdict on the entry.
				if KindOf(err) == KindUnknown {
					return err
				}
				inv.publishNow(event.BatchFailed{
					BatchID:      batchID,
					Reason:       KindBatchValidationFailed.Code(),
					Index:        i,
					RemittanceID: entry.RemittanceID,
					Detail:       KindOf(err).String(),
				})
				reported = true
				return &BatchError{Index: i, RemittanceID: entry.RemittanceID, Reason: err}
			}
			validated = append(validated, r)
		}

		// Execute.
		totalFees, totalPayout := types.Zero(), types.Zero()
		settled := make([]uint64, 0, len(validated))
		for _, r := range validated {
			fee, payout, err := inv.settle(st, r, batchID)
			if err != nil {
				return err
			}
			if totalFees, err = totalFees.CheckedAdd(fee); err != nil {
				return mapArith(err)
			}
			if totalPayout, err = totalPayout.CheckedAdd(payout); err != nil {
				return mapArith(err)
			}
			settled = append(settled, r.ID)
		}

		if st.AccumulatedFees, err = st.AccumulatedFees.CheckedAdd(totalFees); err != nil {
			return mapArith(err)
		}
		inv.touchState()

		inv.emit(event.BatchCompleted{BatchID: batchID, Count: len(settled), Reason: 0})

		res = &settlement.Result{
			BatchID:     batchID,
			SettledIDs:  settled,
			TotalFees:   totalFees,
			TotalPayout: totalPayout,
		}
		return nil
	})
	if err != nil {
		if started && !reported {
			e.plugins.Emit(ctx, event.New(now, event.BatchFailed{
				BatchID: batchID,
				Reason:  KindOf(err).Code(),
				Index:   -1,
				Detail:  err.Error(),
			}))
		}
		return nil, err
	}

	e.logger.Info("remit batch settled",
		"batch_id", res.BatchID.String(),
		"count", len(res.SettledIDs),
		"total_fees", res.TotalFees.String(),
	)
	return res, nil
}

// validateSettlement runs the checks shared by single and batch settlement
// on a loaded remittance.
func (inv *invocation) validateSettlement(r *remittance.Remittance) error {
	if r.Status != remittance.StatusPending {
		return ErrInvalidStatus
	}
	settled, err := inv.marked(r.ID)
	if err != nil {
		return err
	}
	if settled {
		return ErrDuplicateSettlement
	}
	if r.Expired(inv.now) {
		return ErrSettlementExpired
	}
	if err := r.Agent.Validate(); err != nil {
		return invalidAddress("agent", err)
	}
	return nil
}

func (inv *invocation) validateBatchEntry(rid uint64, seen map[uint64]struct{}) (*remittance.Remittance, error) {
	if _, dup := seen[rid]; dup {
		return nil, ErrDuplicateSettlement
	}
	seen[rid] = struct{}{}

	r, err := inv.remittance(rid)
	if err != nil {
		return nil, err
	}
	if err := inv.validateSettlement(r); err != nil {
		return nil, err
	}
	return r, nil
}

// settle stages the payout of a validated remittance and returns its fee
// and payout. The caller books the fee.
func (inv *invocation) settle(st *admin.State, r *remittance.Remittance, batchID id.BatchID) (fee, payout types.Amount, err error) {
	payout, err = r.Payout()
	if err != nil {
		return types.Amount{}, types.Amount{}, mapArith(err)
	}

	// A 100% fee leaves nothing to move.
	if payout.IsPositive() {
		inv.move(inv.e.custody, r.Agent, payout, custody.ReasonPayout)
	}

	r.Status = remittance.StatusCompleted
	r.Touch(inv.now)
	inv.putRemittance(r)
	inv.putMark(&settlement.Mark{RemittanceID: r.ID, BatchID: batchID, SettledAt: inv.now})

	inv.emit(event.RemittanceCompleted{
		RemittanceID: r.ID,
		Sender:       r.Sender,
		Agent:        r.Agent,
		Asset:        st.Asset,
		Payout:       payout,
		Fee:          r.Fee,
		BatchID:      batchID,
	})
	inv.emit(event.SettlementCompleted{
		Sender: r.Sender,
		Agent:  r.Agent,
		Asset:  st.Asset,
		Payout: payout,
	})
	return r.Fee, payout, nil
}
