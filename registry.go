package remit

import (
	"context"
	"math"

	"github.com/xraph/remit/custody"
	"github.com/xraph/remit/event"
	"github.com/xraph/remit/limit"
	"github.com/xraph/remit/remittance"
	"github.com/xraph/remit/settlement"
	"github.com/xraph/remit/types"
)

// CreateRemittance moves the gross amount from the sender into custody and
// records a pending remittance. It returns the new remittance id.
func (e *Engine) CreateRemittance(ctx context.Context, p remittance.CreateParams) (uint64, error) {
	var rid uint64
	err := e.invoke(ctx, "create_remittance", func(inv *invocation) error {
		st, err := inv.loadState()
		if err != nil {
			return err
		}
		if err := e.authorize(ctx, p.Sender); err != nil {
			return err
		}
		if err := p.Sender.Validate(); err != nil {
			return invalidAddress("sender", err)
		}
		if !p.Amount.IsPositive() {
			return ErrInvalidAmount
		}

		registered, err := inv.agentRegistered(p.Agent)
		if err != nil {
			return err
		}
		if !registered {
			return ErrAgentNotRegistered
		}

		fee, err := settlement.Fee(p.Amount, st.FeeBps)
		if err != nil {
			return mapArith(err)
		}

		hk := limit.NewHistoryKey(p.Sender, p.Currency, p.Country)
		if err := inv.checkAndRecord(hk, p.Amount); err != nil {
			return err
		}

		if st.RemittanceCounter == math.MaxUint64 {
			return ErrOverflow
		}
		rid = st.RemittanceCounter + 1

		inv.move(p.Sender, e.custody, p.Amount, custody.ReasonDeposit)

		r := &remittance.Remittance{
			Entity:   types.NewEntity(inv.now),
			ID:       rid,
			Sender:   p.Sender,
			Agent:    p.Agent,
			Amount:   p.Amount,
			Fee:      fee,
			Currency: hk.Currency,
			Country:  hk.Country,
			Status:   remittance.StatusPending,
		}
		if p.Expiry != nil {
			exp := p.Expiry.UTC()
			r.Expiry = &exp
		}
		inv.putRemittance(r)

		st.RemittanceCounter = rid
		inv.touchState()

		inv.emit(event.RemittanceCreated{
			RemittanceID: rid,
			Sender:       r.Sender,
			Agent:        r.Agent,
			Asset:        st.Asset,
			Amount:       r.Amount,
			Fee:          r.Fee,
			Currency:     r.Currency,
			Country:      r.Country,
			Expiry:       r.Expiry,
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rid, nil
}

// CancelRemittance refunds the full gross amount of a pending remittance to
// its sender. No fee is charged.
func (e *Engine) CancelRemittance(ctx context.Context, rid uint64) error {
	return e.invoke(ctx, "cancel_remittance", func(inv *invocation) error {
		st, err := inv.loadState()
		if err != nil {
			return err
		}
		r, err := inv.remittance(rid)
		if err != nil {
			return err
		}
		if err := e.authorize(ctx, r.Sender); err != nil {
			return err
		}
		if r.Status != remittance.StatusPending {
			return ErrInvalidStatus
		}
		// A marked remittance has paid out even if its status says otherwise.
		settled, err := inv.marked(rid)
		if err != nil {
			return err
		}
		if settled {
			return ErrInvalidStatus
		}

		inv.move(e.custody, r.Sender, r.Amount, custody.ReasonRefund)

		r.Status = remittance.StatusCancelled
		r.Touch(inv.now)
		inv.putRemittance(r)

		inv.emit(event.RemittanceCancelled{
			RemittanceID: rid,
			Sender:       r.Sender,
			Agent:        r.Agent,
			Asset:        st.Asset,
			Refund:       r.Amount,
		})
		return nil
	})
}

// GetRemittance returns remittance rid.
func (e *Engine) GetRemittance(ctx context.Context, rid uint64) (*remittance.Remittance, error) {
	if _, err := e.state(ctx); err != nil {
		return nil, err
	}
	return e.store.GetRemittance(ctx, rid)
}

// GetSettlement is an alias of GetRemittance.
func (e *Engine) GetSettlement(ctx context.Context, rid uint64) (*remittance.Remittance, error) {
	return e.GetRemittance(ctx, rid)
}

// ListRemittances returns remittances matching opts, ordered by id.
func (e *Engine) ListRemittances(ctx context.Context, opts remittance.ListOpts) ([]*remittance.Remittance, error) {
	if _, err := e.state(ctx); err != nil {
		return nil, err
	}
	return e.store.ListRemittances(ctx, opts)
}
