package remit

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/xraph/remit/admin"
	"github.com/xraph/remit/custody"
	"github.com/xraph/remit/event"
	"github.com/xraph/remit/limit"
	"github.com/xraph/remit/remittance"
	"github.com/xraph/remit/settlement"
	"github.com/xraph/remit/store"
	"github.com/xraph/remit/types"
)

// invocation stages every effect of one operation. Reads see staged writes
// first. Nothing reaches the store, the custody ledger or plugins until
// commit.
type invocation struct {
	ctx context.Context
	e   *Engine
	op  string
	now time.Time

	state      *admin.State
	stateDirty bool

	agents      map[types.Address]*admin.Agent
	agentOrder  []types.Address
	remittances map[uint64]*remittance.Remittance
	remitOrder  []uint64
	marks       map[uint64]*settlement.Mark
	markOrder   []uint64
	limits      map[limit.Key]*limit.DailyLimit
	limitOrder  []limit.Key
	transfers   []*limit.TransferRecord

	moves  []custody.Move
	events []event.Event
}

func newInvocation(ctx context.Context, e *Engine, op string, now time.Time) *invocation {
	return &invocation{
		ctx:         ctx,
		e:           e,
		op:          op,
		now:         now.UTC(),
		agents:      make(map[types.Address]*admin.Agent),
		remittances: make(map[uint64]*remittance.Remittance),
		marks:       make(map[uint64]*settlement.Mark),
		limits:      make(map[limit.Key]*limit.DailyLimit),
	}
}

// ──────────────────────────────────────────────────
// Administrative state
// ──────────────────────────────────────────────────

// loadState returns the staged administrative state, reading it once from
// the store. Callers mutate the returned value and then call touchState.
func (inv *invocation) loadState() (*admin.State, error) {
	if inv.state != nil {
		return inv.state, nil
	}
	st, err := inv.e.store.GetState(inv.ctx)
	if errors.Is(err, ErrStateNotFound) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("remit: load state: %w", err)
	}
	inv.state = st.Clone()
	return inv.state, nil
}

// initState stages the first administrative state.
func (inv *invocation) initState(st *admin.State) {
	inv.state = st
	inv.stateDirty = true
}

func (inv *invocation) touchState() {
	inv.state.UpdatedAt = inv.now
	inv.stateDirty = true
}

// requireAdmin loads the state and checks the admin approved the call.
func (inv *invocation) requireAdmin() (*admin.State, error) {
	st, err := inv.loadState()
	if err != nil {
		return nil, err
	}
	if err := inv.e.authorize(inv.ctx, st.Admin); err != nil {
		return nil, err
	}
	return st, nil
}

// ──────────────────────────────────────────────────
// Agents
// ──────────────────────────────────────────────────

func (inv *invocation) agentRegistered(addr types.Address) (bool, error) {
	if a, ok := inv.agents[addr]; ok {
		return a.Registered, nil
	}
	ok, err := inv.e.store.IsAgentRegistered(inv.ctx, addr)
	if err != nil {
		return false, fmt.Errorf("remit: load agent %s: %w", addr, err)
	}
	return ok, nil
}

func (inv *invocation) setAgent(addr types.Address, registered bool) {
	if _, ok := inv.agents[addr]; !ok {
		inv.agentOrder = append(inv.agentOrder, addr)
	}
	inv.agents[addr] = &admin.Agent{Address: addr, Registered: registered, UpdatedAt: inv.now}
}

// ──────────────────────────────────────────────────
// Remittances and settlement marks
// ──────────────────────────────────────────────────

// remittance returns a private copy of remittance rid. Changes are staged
// with putRemittance.
func (inv *invocation) remittance(rid uint64) (*remittance.Remittance, error) {
	if r, ok := inv.remittances[rid]; ok {
		return r.Clone(), nil
	}
	r, err := inv.e.store.GetRemittance(inv.ctx, rid)
	if errors.Is(err, ErrRemittanceNotFound) {
		return nil, ErrRemittanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("remit: load remittance %d: %w", rid, err)
	}
	return r.Clone(), nil
}

func (inv *invocation) putRemittance(r *remittance.Remittance) {
	if _, ok := inv.remittances[r.ID]; !ok {
		inv.remitOrder = append(inv.remitOrder, r.ID)
	}
	inv.remittances[r.ID] = r.Clone()
}

func (inv *invocation) marked(rid uint64) (bool, error) {
	if _, ok := inv.marks[rid]; ok {
		return true, nil
	}
	ok, err := inv.e.store.HasSettlementMark(inv.ctx, rid)
	if err != nil {
		return false, fmt.Errorf("remit: load settlement mark %d: %w", rid, err)
	}
	return ok, nil
}

func (inv *invocation) putMark(m *settlement.Mark) {
	if _, ok := inv.marks[m.RemittanceID]; !ok {
		inv.markOrder = append(inv.markOrder, m.RemittanceID)
	}
	inv.marks[m.RemittanceID] = m
}

// ──────────────────────────────────────────────────
// Limits
// ──────────────────────────────────────────────────

// dailyLimit returns the cap of key, or nil when the corridor is uncapped.
func (inv *invocation) dailyLimit(key limit.Key) (*limit.DailyLimit, error) {
	if l, ok := inv.limits[key]; ok {
		return l, nil
	}
	l, err := inv.e.store.GetDailyLimit(inv.ctx, key)
	if errors.Is(err, ErrDailyLimitNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("remit: load daily limit %s: %w", key, err)
	}
	return l, nil
}

func (inv *invocation) putLimit(l *limit.DailyLimit) {
	if _, ok := inv.limits[l.Key]; !ok {
		inv.limitOrder = append(inv.limitOrder, l.Key)
	}
	inv.limits[l.Key] = l
}

// volume sums the window ending at now for key, staged records included.
func (inv *invocation) volume(key limit.HistoryKey) (types.Amount, error) {
	records, err := inv.e.store.ListTransferRecords(inv.ctx, key, limit.WindowStart(inv.now))
	if err != nil {
		return types.Amount{}, fmt.Errorf("remit: load transfer history %s: %w", key, err)
	}
	for _, r := range inv.transfers {
		if r.HistoryKey() == key {
			records = append(records, r)
		}
	}
	used, err := limit.Volume(records, inv.now)
	return used, mapArith(err)
}

func (inv *invocation) recordTransfer(r *limit.TransferRecord) {
	inv.transfers = append(inv.transfers, r)
}

// ──────────────────────────────────────────────────
// Effects
// ──────────────────────────────────────────────────

// move stages a value transfer of the configured asset.
func (inv *invocation) move(from, to types.Address, amount types.Amount, reason custody.Reason) custody.Move {
	m := custody.NewMove(inv.state.Asset, from, to, amount, reason)
	inv.moves = append(inv.moves, m)
	return m
}

// emit stages an event for publication after commit.
func (inv *invocation) emit(p event.Payload) {
	inv.events = append(inv.events, event.New(inv.now, p))
}

// publishNow delivers an event immediately, outside the staged set. Used
// for events that describe the attempt rather than its outcome.
func (inv *invocation) publishNow(p event.Payload) {
	inv.e.plugins.Emit(inv.ctx, event.New(inv.now, p))
}

func (inv *invocation) changeSet() *store.ChangeSet {
	cs := &store.ChangeSet{Transfers: inv.transfers}
	if inv.stateDirty {
		cs.State = inv.state
	}
	for _, a := range inv.agentOrder {
		cs.Agents = append(cs.Agents, inv.agents[a])
	}
	for _, rid := range inv.remitOrder {
		cs.Remittances = append(cs.Remittances, inv.remittances[rid])
	}
	for _, rid := range inv.markOrder {
		cs.Marks = append(cs.Marks, inv.marks[rid])
	}
	for _, k := range inv.limitOrder {
		cs.Limits = append(cs.Limits, inv.limits[k])
	}
	return cs
}

// commit executes the staged moves and persists the staged writes. If a
// move or the store write fails, the moves already executed are reversed.
func (inv *invocation) commit() error {
	executed := make([]custody.Move, 0, len(inv.moves))
	for _, m := range inv.moves {
		if err := inv.e.transferer.Transfer(inv.ctx, m); err != nil {
			inv.compensate(executed)
			return fmt.Errorf("%w: %s %s %s -> %s: %w",
				ErrTransferFailed, m.Reason, m.Amount, m.From, m.To, err)
		}
		executed = append(executed, m)
	}

	if cs := inv.changeSet(); !cs.Empty() {
		if err := inv.e.store.Apply(inv.ctx, cs); err != nil {
			inv.compensate(executed)
			return fmt.Errorf("remit: apply %v: %w", cs.Kinds(), err)
		}
	}

	for _, m := range executed {
		inv.e.plugins.EmitTransfer(inv.ctx, m)
	}
	return nil
}

// compensate reverses executed moves, newest first. A failed reversal
// leaves custody out of step with the ledger and is logged for
// reconciliation.
func (inv *invocation) compensate(executed []custody.Move) {
	ctx := context.WithoutCancel(inv.ctx)
	reverser := inv.e.reverser
	if reverser == nil {
		reverser = inv.e.transferer
	}
	for _, m := range slices.Backward(executed) {
		rev := m.Reverse()
		if err := reverser.Transfer(ctx, rev); err != nil {
			inv.e.logger.Error("remit compensation failed; custody requires reconciliation",
				"op", inv.op,
				"move", m.ID.String(),
				"asset", m.Asset,
				"from", rev.From,
				"to", rev.To,
				"amount", rev.Amount.String(),
				"error", err,
			)
			continue
		}
		inv.e.plugins.EmitTransfer(ctx, rev)
	}
}

func (inv *invocation) publish() {
	for _, ev := range inv.events {
		inv.e.plugins.Emit(inv.ctx, ev)
	}
}
