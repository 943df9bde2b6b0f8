package remit

import (
	"context"
	"errors"
	"strings"

	"github.com/xraph/remit/admin"
	"github.com/xraph/remit/custody"
	"github.com/xraph/remit/event"
	"github.com/xraph/remit/settlement"
	"github.com/xraph/remit/types"
)

// ──────────────────────────────────────────────────
// Control plane
// ──────────────────────────────────────────────────

// Initialize sets the administrative state. It succeeds exactly once.
func (e *Engine) Initialize(ctx context.Context, adminAddr types.Address, asset string, feeBps uint32) error {
	return e.invoke(ctx, "initialize", func(inv *invocation) error {
		_, err := inv.loadState()
		switch {
		case err == nil:
			return ErrAlreadyInitialized
		case !errors.Is(err, ErrNotInitialized):
			return err
		}

		if !settlement.ValidFeeBps(feeBps) {
			return ErrInvalidFeeBps
		}
		if err := adminAddr.Validate(); err != nil {
			return invalidAddress("admin", err)
		}
		asset = strings.TrimSpace(asset)
		if asset == "" {
			return ValidationError{Field: "asset", Message: "must not be empty"}
		}

		inv.initState(&admin.State{
			Admin:             adminAddr,
			Asset:             asset,
			FeeBps:            feeBps,
			RemittanceCounter: 0,
			AccumulatedFees:   types.Zero(),
			InitializedAt:     inv.now,
			UpdatedAt:         inv.now,
		})
		inv.emit(event.Initialized{Admin: adminAddr, Asset: asset, FeeBps: feeBps})
		return nil
	})
}

// RegisterAgent marks agent as an eligible payout agent.
func (e *Engine) RegisterAgent(ctx context.Context, agent types.Address) error {
	return e.setAgent(ctx, "register_agent", agent, true)
}

// RemoveAgent revokes agent's registration. Pending remittances addressed
// to the agent are unaffected.
func (e *Engine) RemoveAgent(ctx context.Context, agent types.Address) error {
	return e.setAgent(ctx, "remove_agent", agent, false)
}

func (e *Engine) setAgent(ctx context.Context, op string, agent types.Address, registered bool) error {
	return e.invoke(ctx, op, func(inv *invocation) error {
		st, err := inv.requireAdmin()
		if err != nil {
			return err
		}
		if registered {
			if err := agent.Validate(); err != nil {
				return invalidAddress("agent", err)
			}
		}

		inv.setAgent(agent, registered)
		inv.emit(event.AgentChanged{Agent: agent, Admin: st.Admin, Registered: registered})
		return nil
	})
}

// UpdateFee changes the platform fee applied to remittances created from
// now on.
func (e *Engine) UpdateFee(ctx context.Context, feeBps uint32) error {
	return e.invoke(ctx, "update_fee", func(inv *invocation) error {
		st, err := inv.requireAdmin()
		if err != nil {
			return err
		}
		if !settlement.ValidFeeBps(feeBps) {
			return ErrInvalidFeeBps
		}

		old := st.FeeBps
		st.FeeBps = feeBps
		inv.touchState()
		inv.emit(event.FeeUpdated{Admin: st.Admin, OldBps: old, NewBps: feeBps})
		return nil
	})
}

// Pause stops payout confirmation and batch settlement.
func (e *Engine) Pause(ctx context.Context) error {
	return e.setPaused(ctx, "pause", true)
}

// Unpause resumes payout confirmation and batch settlement.
func (e *Engine) Unpause(ctx context.Context) error {
	return e.setPaused(ctx, "unpause", false)
}

func (e *Engine) setPaused(ctx context.Context, op string, paused bool) error {
	return e.invoke(ctx, op, func(inv *invocation) error {
		st, err := inv.requireAdmin()
		if err != nil {
			return err
		}

		st.Paused = paused
		inv.touchState()
		inv.emit(event.PauseChanged{Admin: st.Admin, Paused: paused})
		return nil
	})
}

// WithdrawFees transfers the whole fee balance to the given principal and
// returns the amount withdrawn.
func (e *Engine) WithdrawFees(ctx context.Context, to types.Address) (types.Amount, error) {
	var withdrawn types.Amount
	err := e.invoke(ctx, "withdraw_fees", func(inv *invocation) error {
		st, err := inv.requireAdmin()
		if err != nil {
			return err
		}
		if err := to.Validate(); err != nil {
			return invalidAddress("to", err)
		}
		if !st.AccumulatedFees.IsPositive() {
			return ErrNoFeesToWithdraw
		}

		withdrawn = st.AccumulatedFees
		inv.move(inv.e.custody, to, withdrawn, custody.ReasonFeeWithdraw)
		st.AccumulatedFees = types.Zero()
		inv.touchState()
		inv.emit(event.FeesWithdrawn{Admin: st.Admin, To: to, Asset: st.Asset, Amount: withdrawn})
		return nil
	})
	if err != nil {
		return types.Amount{}, err
	}
	return withdrawn, nil
}

// ──────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────

func (e *Engine) state(ctx context.Context) (*admin.State, error) {
	st, err := e.store.GetState(ctx)
	if errors.Is(err, ErrStateNotFound) {
		return nil, ErrNotInitialized
	}
	return st, err
}

// GetAccumulatedFees returns the fee balance awaiting withdrawal.
func (e *Engine) GetAccumulatedFees(ctx context.Context) (types.Amount, error) {
	st, err := e.state(ctx)
	if err != nil {
		return types.Amount{}, err
	}
	return st.AccumulatedFees, nil
}

// GetPlatformFeeBps returns the current fee rate in basis points.
func (e *Engine) GetPlatformFeeBps(ctx context.Context) (uint32, error) {
	st, err := e.state(ctx)
	if err != nil {
		return 0, err
	}
	return st.FeeBps, nil
}

// IsAgentRegistered reports whether agent may receive payouts.
func (e *Engine) IsAgentRegistered(ctx context.Context, agent types.Address) (bool, error) {
	return e.store.IsAgentRegistered(ctx, agent)
}

// IsPaused reports the pause switch. An uninitialized ledger is not paused.
func (e *Engine) IsPaused(ctx context.Context) (bool, error) {
	st, err := e.state(ctx)
	if errors.Is(err, ErrNotInitialized) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return st.Paused, nil
}

// Admin returns the admin principal.
func (e *Engine) Admin(ctx context.Context) (types.Address, error) {
	st, err := e.state(ctx)
	if err != nil {
		return "", err
	}
	return st.Admin, nil
}

// Asset returns the settlement asset identifier.
func (e *Engine) Asset(ctx context.Context) (string, error) {
	st, err := e.state(ctx)
	if err != nil {
		return "", err
	}
	return st.Asset, nil
}

// State returns a snapshot of the administrative state.
func (e *Engine) State(ctx context.Context) (*admin.State, error) {
	return e.state(ctx)
}

// ListAgents returns every agent ever registered, including removed ones.
func (e *Engine) ListAgents(ctx context.Context) ([]*admin.Agent, error) {
	if _, err := e.state(ctx); err != nil {
		return nil, err
	}
	return e.store.ListAgents(ctx)
}
