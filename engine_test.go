package remit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/remit"
	"github.com/xraph/remit/auth"
	"github.com/xraph/remit/custody"
	"github.com/xraph/remit/event"
	"github.com/xraph/remit/remittance"
	"github.com/xraph/remit/settlement"
	"github.com/xraph/remit/store"
	"github.com/xraph/remit/store/memory"
	"github.com/xraph/remit/types"
)

const (
	adminAddr types.Address = "admin"
	sender    types.Address = "alice"
	agent     types.Address = "agent-1"
	asset                   = "USDC"
)

// eventLog records every committed event.
type eventLog struct {
	mu     sync.Mutex
	events []event.Event
}

func (l *eventLog) Name() string { return "event-log" }

func (l *eventLog) OnEvent(_ context.Context, ev event.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) topics() []event.Topic {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]event.Topic, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Topic
	}
	return out
}

func (l *eventLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

type harness struct {
	t       *testing.T
	engine  *remit.Engine
	store   store.Store
	custody *custody.Memory
	log     *eventLog
	now     time.Time
}

func newHarness(t *testing.T, feeBps uint32) *harness {
	return newHarnessWithStore(t, memory.New(), feeBps)
}

// newHarnessWithStore builds a harness over s. Each extra callback receives
// the harness custody and returns an engine option applied after the defaults.
func newHarnessWithStore(t *testing.T, s store.Store, feeBps uint32, extra ...func(*custody.Memory) remit.Option) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		store:   s,
		custody: custody.NewMemory(),
		log:     &eventLog{},
		now:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	opts := []remit.Option{
		remit.WithTransferer(h.custody),
		remit.WithClock(func() time.Time { return h.now }),
		remit.WithPlugin(h.log),
	}
	for _, fn := range extra {
		opts = append(opts, fn(h.custody))
	}
	h.engine = remit.New(s, opts...)

	ctx := context.Background()
	if err := h.engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.engine.Initialize(ctx, adminAddr, asset, feeBps); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := h.engine.RegisterAgent(h.as(adminAddr), agent); err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}
	h.log.reset()
	return h
}

func (h *harness) as(principals ...types.Address) context.Context {
	return auth.WithPrincipals(context.Background(), principals...)
}

func (h *harness) fund(who types.Address, amount int64) {
	h.t.Helper()
	if err := h.custody.Mint(asset, who, types.NewAmount(amount)); err != nil {
		h.t.Fatalf("Mint: %v", err)
	}
}

func (h *harness) create(amount int64) uint64 {
	h.t.Helper()
	rid, err := h.engine.CreateRemittance(h.as(sender), remittance.CreateParams{
		Sender:   sender,
		Agent:    agent,
		Amount:   types.NewAmount(amount),
		Currency: "USD",
		Country:  "PH",
	})
	if err != nil {
		h.t.Fatalf("CreateRemittance(%d): %v", amount, err)
	}
	return rid
}

func (h *harness) balance(who types.Address) types.Amount {
	return h.custody.Balance(asset, who)
}

func (h *harness) status(rid uint64) remittance.Status {
	h.t.Helper()
	r, err := h.engine.GetRemittance(context.Background(), rid)
	if err != nil {
		h.t.Fatalf("GetRemittance(%d): %v", rid, err)
	}
	return r.Status
}

func (h *harness) fees() types.Amount {
	h.t.Helper()
	f, err := h.engine.GetAccumulatedFees(context.Background())
	if err != nil {
		h.t.Fatalf("GetAccumulatedFees: %v", err)
	}
	return f
}

func wantAmount(t *testing.T, what string, got types.Amount, want int64) {
	t.Helper()
	if !got.Equal(types.NewAmount(want)) {
		t.Errorf("%s: got %s, want %d", what, got, want)
	}
}

func wantErr(t *testing.T, what string, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Errorf("%s: got %v, want %v", what, err, want)
	}
}

// ──────────────────────────────────────────────────
// Control plane
// ──────────────────────────────────────────────────

func TestInitialize(t *testing.T) {
	ctx := context.Background()

	t.Run("not initialized", func(t *testing.T) {
		e := remit.New(memory.New())
		_, err := e.GetAccumulatedFees(ctx)
		wantErr(t, "GetAccumulatedFees", err, remit.ErrNotInitialized)
		wantErr(t, "Pause", e.Pause(ctx), remit.ErrNotInitialized)
		_, err = e.CreateRemittance(auth.WithPrincipals(ctx, sender), remittance.CreateParams{
			Sender: sender, Agent: agent, Amount: types.NewAmount(1),
		})
		wantErr(t, "CreateRemittance", err, remit.ErrNotInitialized)
		_, err = e.GetRemittance(ctx, 1)
		wantErr(t, "GetRemittance", err, remit.ErrNotInitialized)
		_, err = e.GetSettlement(ctx, 1)
		wantErr(t, "GetSettlement", err, remit.ErrNotInitialized)
		_, err = e.ListRemittances(ctx, remittance.ListOpts{})
		wantErr(t, "ListRemittances", err, remit.ErrNotInitialized)
		_, err = e.ListAgents(ctx)
		wantErr(t, "ListAgents", err, remit.ErrNotInitialized)

		paused, err := e.IsPaused(ctx)
		if err != nil || paused {
			t.Errorf("IsPaused: got %v, %v, want false, nil", paused, err)
		}
		registered, err := e.IsAgentRegistered(ctx, agent)
		if err != nil || registered {
			t.Errorf("IsAgentRegistered: got %v, %v, want false, nil", registered, err)
		}
	})

	t.Run("invalid fee", func(t *testing.T) {
		e := remit.New(memory.New())
		wantErr(t, "Initialize", e.Initialize(ctx, adminAddr, asset, 10001), remit.ErrInvalidFeeBps)
		if err := e.Initialize(ctx, adminAddr, asset, 10000); err != nil {
			t.Errorf("Initialize at 10000: %v", err)
		}
	})

	t.Run("twice", func(t *testing.T) {
		h := newHarness(t, 250)
		wantErr(t, "second Initialize", h.engine.Initialize(ctx, adminAddr, asset, 100), remit.ErrAlreadyInitialized)

		bps, err := h.engine.GetPlatformFeeBps(ctx)
		if err != nil || bps != 250 {
			t.Errorf("GetPlatformFeeBps: got %d, %v, want 250", bps, err)
		}
		got, _ := h.engine.Admin(ctx)
		if got != adminAddr {
			t.Errorf("Admin: got %s, want %s", got, adminAddr)
		}
		a, _ := h.engine.Asset(ctx)
		if a != asset {
			t.Errorf("Asset: got %s, want %s", a, asset)
		}
		wantAmount(t, "fees", h.fees(), 0)
	})

	t.Run("invalid admin address", func(t *testing.T) {
		e := remit.New(memory.New())
		err := e.Initialize(ctx, "bad address", asset, 0)
		wantErr(t, "Initialize", err, remit.ErrInvalidAddress)
		if k := remit.KindOf(err); k != remit.KindInvalidAddress {
			t.Errorf("KindOf: got %s, want InvalidAddress", k)
		}
	})
}

func TestAdminOperationsRequireAdmin(t *testing.T) {
	h := newHarness(t, 250)
	stranger := h.as("mallory")

	tests := []struct {
		name string
		call func(ctx context.Context) error
	}{
		{"RegisterAgent", func(ctx context.Context) error { return h.engine.RegisterAgent(ctx, "agent-2") }},
		{"RemoveAgent", func(ctx context.Context) error { return h.engine.RemoveAgent(ctx, agent) }},
		{"UpdateFee", func(ctx context.Context) error { return h.engine.UpdateFee(ctx, 100) }},
		{"Pause", func(ctx context.Context) error { return h.engine.Pause(ctx) }},
		{"Unpause", func(ctx context.Context) error { return h.engine.Unpause(ctx) }},
		{"SetDailyLimit", func(ctx context.Context) error {
			return h.engine.SetDailyLimit(ctx, "USD", "PH", types.NewAmount(1))
		}},
		{"WithdrawFees", func(ctx context.Context) error {
			_, err := h.engine.WithdrawFees(ctx, "treasury")
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantErr(t, tt.name, tt.call(stranger), remit.ErrUnauthorized)
		})
	}

	if got := h.log.topics(); len(got) != 0 {
		t.Errorf("events after rejected calls: got %v, want none", got)
	}
}

func TestAgentRegistry(t *testing.T) {
	h := newHarness(t, 250)
	ctx := h.as(adminAddr)

	if err := h.engine.RegisterAgent(ctx, "agent-2"); err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}
	ok, _ := h.engine.IsAgentRegistered(ctx, "agent-2")
	if !ok {
		t.Error("agent-2 should be registered")
	}

	if err := h.engine.RemoveAgent(ctx, "agent-2"); err != nil {
		t.Fatalf("RemoveAgent: %v", err)
	}
	ok, _ = h.engine.IsAgentRegistered(ctx, "agent-2")
	if ok {
		t.Error("agent-2 should be removed")
	}

	want := []event.Topic{event.TopicAgentRegistered, event.TopicAgentRemoved}
	got := h.log.topics()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("topics: got %v, want %v", got, want)
	}
}

func TestUpdateFee(t *testing.T) {
	h := newHarness(t, 250)
	ctx := h.as(adminAddr)

	wantErr(t, "UpdateFee(10001)", h.engine.UpdateFee(ctx, 10001), remit.ErrInvalidFeeBps)
	if err := h.engine.UpdateFee(ctx, 500); err != nil {
		t.Fatalf("UpdateFee: %v", err)
	}

	bps, _ := h.engine.GetPlatformFeeBps(ctx)
	if bps != 500 {
		t.Errorf("fee bps: got %d, want 500", bps)
	}

	if len(h.log.events) != 1 {
		t.Fatalf("events: got %d, want 1", len(h.log.events))
	}
	fu, ok := h.log.events[0].Payload.(event.FeeUpdated)
	if !ok {
		t.Fatalf("payload: got %T, want event.FeeUpdated", h.log.events[0].Payload)
	}
	if fu.OldBps != 250 || fu.NewBps != 500 {
		t.Errorf("fee event: got %d->%d, want 250->500", fu.OldBps, fu.NewBps)
	}
}

func TestWithdrawFees(t *testing.T) {
	h := newHarness(t, 500)
	ctx := h.as(adminAddr)

	_, err := h.engine.WithdrawFees(ctx, "treasury")
	wantErr(t, "WithdrawFees with no fees", err, remit.ErrNoFeesToWithdraw)

	h.fund(sender, 10000)
	rid := h.create(10000)
	if err := h.engine.ConfirmPayout(h.as(agent), rid); err != nil {
		t.Fatalf("ConfirmPayout: %v", err)
	}

	_, err = h.engine.WithdrawFees(ctx, "not a principal")
	wantErr(t, "WithdrawFees to invalid address", err, remit.ErrInvalidAddress)

	got, err := h.engine.WithdrawFees(ctx, "treasury")
	if err != nil {
		t.Fatalf("WithdrawFees: %v", err)
	}
	wantAmount(t, "withdrawn", got, 500)
	wantAmount(t, "treasury balance", h.balance("treasury"), 500)
	wantAmount(t, "fees after withdrawal", h.fees(), 0)
	wantAmount(t, "custody after withdrawal", h.balance(h.engine.CustodyAccount()), 0)

	_, err = h.engine.WithdrawFees(ctx, "treasury")
	wantErr(t, "second WithdrawFees", err, remit.ErrNoFeesToWithdraw)
}

// ──────────────────────────────────────────────────
// Remittance registry
// ──────────────────────────────────────────────────

func TestCreateRemittance(t *testing.T) {
	h := newHarness(t, 250)
	h.fund(sender, 5000)

	rid := h.create(1000)
	if rid != 1 {
		t.Errorf("first id: got %d, want 1", rid)
	}
	if next := h.create(1000); next != 2 {
		t.Errorf("second id: got %d, want 2", next)
	}

	r, err := h.engine.GetRemittance(context.Background(), rid)
	if err != nil {
		t.Fatalf("GetRemittance: %v", err)
	}
	if r.Status != remittance.StatusPending {
		t.Errorf("status: got %s, want pending", r.Status)
	}
	wantAmount(t, "fee", r.Fee, 25)
	wantAmount(t, "sender balance", h.balance(sender), 3000)
	wantAmount(t, "custody balance", h.balance(h.engine.CustodyAccount()), 2000)

	s, err := h.engine.GetSettlement(context.Background(), rid)
	if err != nil || s.ID != rid {
		t.Errorf("GetSettlement: got %v, %v", s, err)
	}

	_, err = h.engine.GetRemittance(context.Background(), 99)
	wantErr(t, "GetRemittance(99)", err, remit.ErrRemittanceNotFound)
}

func TestCreateRemittanceRejects(t *testing.T) {
	h := newHarness(t, 250)
	h.fund(sender, 5000)

	tests := []struct {
		name   string
		ctx    context.Context
		params remittance.CreateParams
		want   error
	}{
		{
			name:   "zero amount",
			ctx:    h.as(sender),
			params: remittance.CreateParams{Sender: sender, Agent: agent, Amount: types.Zero()},
			want:   remit.ErrInvalidAmount,
		},
		{
			name:   "negative amount",
			ctx:    h.as(sender),
			params: remittance.CreateParams{Sender: sender, Agent: agent, Amount: types.NewAmount(-5)},
			want:   remit.ErrInvalidAmount,
		},
		{
			name:   "unregistered agent",
			ctx:    h.as(sender),
			params: remittance.CreateParams{Sender: sender, Agent: "agent-9", Amount: types.NewAmount(10)},
			want:   remit.ErrAgentNotRegistered,
		},
		{
			name:   "sender did not approve",
			ctx:    h.as("mallory"),
			params: remittance.CreateParams{Sender: sender, Agent: agent, Amount: types.NewAmount(10)},
			want:   remit.ErrUnauthorized,
		},
		{
			name:   "fee overflow",
			ctx:    h.as(sender),
			params: remittance.CreateParams{Sender: sender, Agent: agent, Amount: types.MaxAmount()},
			want:   remit.ErrOverflow,
		},
		{
			name:   "insufficient sender funds",
			ctx:    h.as(sender),
			params: remittance.CreateParams{Sender: sender, Agent: agent, Amount: types.NewAmount(5001)},
			want:   remit.ErrTransferFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.CreateRemittance(tt.ctx, tt.params)
			wantErr(t, "CreateRemittance", err, tt.want)
		})
	}

	// Nothing was persisted or moved.
	list, _ := h.engine.ListRemittances(context.Background(), remittance.ListOpts{})
	if len(list) != 0 {
		t.Errorf("remittances: got %d, want 0", len(list))
	}
	wantAmount(t, "sender balance", h.balance(sender), 5000)
	vol, _ := h.engine.RollingVolume(context.Background(), sender, "USD", "PH")
	wantAmount(t, "rolling volume", vol, 0)
	if rid := h.create(1); rid != 1 {
		t.Errorf("id after rejects: got %d, want 1", rid)
	}
}

func TestCreateRemittanceCounterOverflow(t *testing.T) {
	h := newHarness(t, 0)
	h.fund(sender, 10)

	st, err := h.store.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	st.RemittanceCounter = ^uint64(0)
	if err := h.store.Apply(context.Background(), &store.ChangeSet{State: st}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	_, err = h.engine.CreateRemittance(h.as(sender), remittance.CreateParams{
		Sender: sender, Agent: agent, Amount: types.NewAmount(1),
	})
	wantErr(t, "CreateRemittance at max counter", err, remit.ErrOverflow)
	wantAmount(t, "sender balance", h.balance(sender), 10)
}

func TestCancelRefundsFullAmount(t *testing.T) {
	h := newHarness(t, 250)
	h.fund(sender, 1000)
	rid := h.create(1000)

	wantErr(t, "cancel by stranger", h.engine.CancelRemittance(h.as("mallory"), rid), remit.ErrUnauthorized)
	wantErr(t, "cancel missing", h.engine.CancelRemittance(h.as(sender), 42), remit.ErrRemittanceNotFound)

	if err := h.engine.CancelRemittance(h.as(sender), rid); err != nil {
		t.Fatalf("CancelRemittance: %v", err)
	}

	wantAmount(t, "sender balance", h.balance(sender), 1000)
	wantAmount(t, "custody balance", h.balance(h.engine.CustodyAccount()), 0)
	wantAmount(t, "fees", h.fees(), 0)
	if s := h.status(rid); s != remittance.StatusCancelled {
		t.Errorf("status: got %s, want cancelled", s)
	}

	wantErr(t, "second cancel", h.engine.CancelRemittance(h.as(sender), rid), remit.ErrInvalidStatus)
	wantErr(t, "confirm cancelled", h.engine.ConfirmPayout(h.as(agent), rid), remit.ErrInvalidStatus)
}

func TestListRemittances(t *testing.T) {
	h := newHarness(t, 0)
	h.fund(sender, 100)
	for range 5 {
		h.create(10)
	}
	if err := h.engine.ConfirmPayout(h.as(agent), 2); err != nil {
		t.Fatalf("ConfirmPayout: %v", err)
	}

	ctx := context.Background()
	all, _ := h.engine.ListRemittances(ctx, remittance.ListOpts{Sender: sender})
	if len(all) != 5 || all[0].ID != 1 || all[4].ID != 5 {
		t.Errorf("list by sender: got %d entries", len(all))
	}

	pending, _ := h.engine.ListRemittances(ctx, remittance.ListOpts{Status: remittance.StatusPending})
	if len(pending) != 4 {
		t.Errorf("pending: got %d, want 4", len(pending))
	}

	page, _ := h.engine.ListRemittances(ctx, remittance.ListOpts{Limit: 2, Offset: 3})
	if len(page) != 2 || page[0].ID != 4 {
		t.Errorf("page: got %d entries", len(page))
	}
}

// ──────────────────────────────────────────────────
// Settlement
// ──────────────────────────────────────────────────

func TestConfirmPayoutFeeMath(t *testing.T) {
	h := newHarness(t, 500)
	h.fund(sender, 10000)
	rid := h.create(10000)

	if err := h.engine.ConfirmPayout(h.as(agent), rid); err != nil {
		t.Fatalf("ConfirmPayout: %v", err)
	}

	wantAmount(t, "agent balance", h.balance(agent), 9500)
	wantAmount(t, "accumulated fees", h.fees(), 500)
	wantAmount(t, "custody balance", h.balance(h.engine.CustodyAccount()), 500)
	if s := h.status(rid); s != remittance.StatusCompleted {
		t.Errorf("status: got %s, want completed", s)
	}

	mark, err := h.store.GetSettlementMark(context.Background(), rid)
	if err != nil {
		t.Fatalf("GetSettlementMark: %v", err)
	}
	if !mark.SettledAt.Equal(h.now) {
		t.Errorf("mark time: got %v, want %v", mark.SettledAt, h.now)
	}

	want := []event.Topic{event.TopicRemittanceCreated, event.TopicRemittanceCompleted, event.TopicSettlementCompleted}
	got := h.log.topics()
	if len(got) != len(want) {
		t.Fatalf("topics: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("topic %d: got %s, want %s", i, got[i], want[i])
		}
	}
	sc := h.log.events[2].Payload.(event.SettlementCompleted)
	wantAmount(t, "settled payout", sc.Payout, 9500)
	if sc.Sender != sender || sc.Agent != agent || sc.Asset != asset {
		t.Errorf("settled event: got %+v", sc)
	}
}

func TestConfirmPayoutFullFee(t *testing.T) {
	h := newHarness(t, 10000)
	h.fund(sender, 100)
	rid := h.create(100)

	if err := h.engine.ConfirmPayout(h.as(agent), rid); err != nil {
		t.Fatalf("ConfirmPayout: %v", err)
	}
	wantAmount(t, "agent balance", h.balance(agent), 0)
	wantAmount(t, "fees", h.fees(), 100)
}

func TestConfirmPayoutValidationOrder(t *testing.T) {
	h := newHarness(t, 250)
	h.fund(sender, 1000)
	rid := h.create(1000)

	wantErr(t, "missing", h.engine.ConfirmPayout(h.as(agent), 7), remit.ErrRemittanceNotFound)
	wantErr(t, "wrong agent", h.engine.ConfirmPayout(h.as(sender), rid), remit.ErrUnauthorized)

	if err := h.engine.Pause(h.as(adminAddr)); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	// Pause is checked before existence.
	wantErr(t, "paused missing", h.engine.ConfirmPayout(h.as(agent), 7), remit.ErrContractPaused)
	wantErr(t, "paused", h.engine.ConfirmPayout(h.as(agent), rid), remit.ErrContractPaused)
}

func TestConfirmPayoutIdempotentUnderStatusReset(t *testing.T) {
	h := newHarness(t, 250)
	h.fund(sender, 2000)
	rid := h.create(1000)

	if err := h.engine.ConfirmPayout(h.as(agent), rid); err != nil {
		t.Fatalf("ConfirmPayout: %v", err)
	}
	wantErr(t, "second confirm", h.engine.ConfirmPayout(h.as(agent), rid), remit.ErrInvalidStatus)

	// Force the status back to pending behind the engine's back.
	r, _ := h.store.GetRemittance(context.Background(), rid)
	r.Status = remittance.StatusPending
	if err := h.store.Apply(context.Background(), &store.ChangeSet{Remittances: []*remittance.Remittance{r}}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	agentBefore := h.balance(agent)
	feesBefore := h.fees()

	wantErr(t, "confirm after reset", h.engine.ConfirmPayout(h.as(agent), rid), remit.ErrDuplicateSettlement)

	_, err := h.engine.BatchSettle(context.Background(), settlement.Entries(rid))
	wantErr(t, "batch after reset", err, remit.ErrBatchValidationFailed)
	var berr *remit.BatchError
	if !errors.As(err, &berr) || berr.ReasonKind() != remit.KindDuplicateSettlement {
		t.Errorf("batch reason: got %v, want DuplicateSettlement", err)
	}

	wantErr(t, "cancel after reset", h.engine.CancelRemittance(h.as(sender), rid), remit.ErrInvalidStatus)

	if !h.balance(agent).Equal(agentBefore) {
		t.Errorf("agent balance changed: got %s, want %s", h.balance(agent), agentBefore)
	}
	if !h.fees().Equal(feesBefore) {
		t.Errorf("fees changed: got %s, want %s", h.fees(), feesBefore)
	}
}

func TestExpiryBoundary(t *testing.T) {
	h := newHarness(t, 0)
	h.fund(sender, 100)

	expiry := h.now.Add(time.Hour)
	create := func() uint64 {
		rid, err := h.engine.CreateRemittance(h.as(sender), remittance.CreateParams{
			Sender: sender, Agent: agent, Amount: types.NewAmount(10), Expiry: &expiry,
		})
		if err != nil {
			t.Fatalf("CreateRemittance: %v", err)
		}
		return rid
	}
	onTime := create()
	late := create()

	h.now = expiry
	if err := h.engine.ConfirmPayout(h.as(agent), onTime); err != nil {
		t.Errorf("confirm at expiry: %v", err)
	}

	h.now = expiry.Add(time.Second)
	wantErr(t, "confirm after expiry", h.engine.ConfirmPayout(h.as(agent), late), remit.ErrSettlementExpired)

	// An expired remittance can still be cancelled.
	if err := h.engine.CancelRemittance(h.as(sender), late); err != nil {
		t.Errorf("cancel expired: %v", err)
	}
}

func TestPauseAsymmetry(t *testing.T) {
	h := newHarness(t, 250)
	h.fund(sender, 3000)
	a := h.create(1000)

	if err := h.engine.Pause(h.as(adminAddr)); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	paused, _ := h.engine.IsPaused(context.Background())
	if !paused {
		t.Fatal("IsPaused: got false, want true")
	}

	wantErr(t, "confirm while paused", h.engine.ConfirmPayout(h.as(agent), a), remit.ErrContractPaused)
	_, err := h.engine.BatchSettle(context.Background(), settlement.Entries(a))
	wantErr(t, "batch while paused", err, remit.ErrContractPaused)

	b := h.create(1000)
	if err := h.engine.CancelRemittance(h.as(sender), b); err != nil {
		t.Errorf("cancel while paused: %v", err)
	}

	if err := h.engine.Unpause(h.as(adminAddr)); err != nil {
		t.Fatalf("Unpause: %v", err)
	}
	if err := h.engine.ConfirmPayout(h.as(agent), a); err != nil {
		t.Errorf("confirm after unpause: %v", err)
	}
}

func TestConservation(t *testing.T) {
	h := newHarness(t, 250)
	h.fund(sender, 100000)

	var ids []uint64
	for i := int64(1); i <= 10; i++ {
		ids = append(ids, h.create(1000*i))
	}

	if err := h.engine.ConfirmPayout(h.as(agent), ids[0]); err != nil {
		t.Fatalf("ConfirmPayout: %v", err)
	}
	if _, err := h.engine.BatchSettle(context.Background(), settlement.Entries(ids[1], ids[2], ids[3])); err != nil {
		t.Fatalf("BatchSettle: %v", err)
	}
	if err := h.engine.CancelRemittance(h.as(sender), ids[4]); err != nil {
		t.Fatalf("CancelRemittance: %v", err)
	}

	pending := types.Zero()
	list, _ := h.engine.ListRemittances(context.Background(), remittance.ListOpts{Status: remittance.StatusPending})
	for _, r := range list {
		pending, _ = pending.CheckedAdd(r.Amount)
	}
	want, _ := pending.CheckedAdd(h.fees())
	if got := h.balance(h.engine.CustodyAccount()); !got.Equal(want) {
		t.Errorf("custody: got %s, want pending %s + fees %s", got, pending, h.fees())
	}

	// 1000+2000+3000+4000 settled at 2.5%.
	wantAmount(t, "fees", h.fees(), 250)
	total, _ := types.Sum(h.balance(sender), h.balance(agent), h.balance(h.engine.CustodyAccount()))
	wantAmount(t, "total supply", total, 100000)
}

// ──────────────────────────────────────────────────
// Batch settlement
// ──────────────────────────────────────────────────

func TestBatchSettle(t *testing.T) {
	h := newHarness(t, 250)
	h.fund(sender, 100000)

	var ids []uint64
	for i := int64(1); i <= 10; i++ {
		ids = append(ids, h.create(1000*i))
	}
	h.log.reset()

	res, err := h.engine.BatchSettle(context.Background(), settlement.Entries(ids...))
	if err != nil {
		t.Fatalf("BatchSettle: %v", err)
	}
	if len(res.SettledIDs) != 10 {
		t.Fatalf("settled: got %d, want 10", len(res.SettledIDs))
	}
	for i, rid := range res.SettledIDs {
		if rid != ids[i] {
			t.Errorf("settled[%d]: got %d, want %d", i, rid, ids[i])
		}
		if s := h.status(rid); s != remittance.StatusCompleted {
			t.Errorf("status %d: got %s, want completed", rid, s)
		}
	}
	wantAmount(t, "fees", h.fees(), 1375)
	wantAmount(t, "result fees", res.TotalFees, 1375)
	wantAmount(t, "result payout", res.TotalPayout, 55000-1375)
	wantAmount(t, "agent balance", h.balance(agent), 55000-1375)

	topics := h.log.topics()
	if topics[0] != event.TopicBatchStarted {
		t.Errorf("first topic: got %s, want batch_st", topics[0])
	}
	if last := topics[len(topics)-1]; last != event.TopicBatchCompleted {
		t.Errorf("last topic: got %s, want batch_ok", last)
	}
	done := h.log.events[len(h.log.events)-1].Payload.(event.BatchCompleted)
	if done.Count != 10 || done.Reason != 0 || done.BatchID != res.BatchID {
		t.Errorf("batch completed event: got %+v", done)
	}

	mark, _ := h.store.GetSettlementMark(context.Background(), ids[0])
	if mark.BatchID != res.BatchID {
		t.Errorf("mark batch id: got %s, want %s", mark.BatchID, res.BatchID)
	}
}

func TestBatchSettleBounds(t *testing.T) {
	h := newHarness(t, 250)
	h.fund(sender, int64(1000*(settlement.MaxBatchSize+1)))

	ids := make([]uint64, 0, settlement.MaxBatchSize+1)
	for range settlement.MaxBatchSize + 1 {
		ids = append(ids, h.create(1000))
	}

	_, err := h.engine.BatchSettle(context.Background(), nil)
	wantErr(t, "empty batch", err, remit.ErrEmptyBatchSettlement)

	_, err = h.engine.BatchSettle(context.Background(), settlement.Entries(ids...))
	wantErr(t, "oversized batch", err, remit.ErrBatchTooLarge)
	if k := remit.KindOf(err); k.Code() != 15 {
		t.Errorf("oversized code: got %d, want 15", k.Code())
	}

	res, err := h.engine.BatchSettle(context.Background(), settlement.Entries(ids[:settlement.MaxBatchSize]...))
	if err != nil {
		t.Fatalf("max batch: %v", err)
	}
	if len(res.SettledIDs) != settlement.MaxBatchSize {
		t.Errorf("settled: got %d, want %d", len(res.SettledIDs), settlement.MaxBatchSize)
	}
}

func TestBatchSettleAtomicity(t *testing.T) {
	h := newHarness(t, 250)
	h.fund(sender, 10000)
	a := h.create(1000)
	b := h.create(1000)
	if err := h.engine.ConfirmPayout(h.as(agent), b); err != nil {
		t.Fatalf("ConfirmPayout: %v", err)
	}

	custodyBefore := h.balance(h.engine.CustodyAccount())
	agentBefore := h.balance(agent)
	feesBefore := h.fees()
	h.log.reset()

	_, err := h.engine.BatchSettle(context.Background(), settlement.Entries(a, b))
	wantErr(t, "BatchSettle", err, remit.ErrBatchValidationFailed)
	if k := remit.KindOf(err); k != remit.KindBatchValidationFailed {
		t.Errorf("KindOf: got %s, want BatchValidationFailed", k)
	}
	var berr *remit.BatchError
	if !errors.As(err, &berr) {
		t.Fatalf("error type: got %T, want *BatchError", err)
	}
	if berr.Index != 1 || berr.RemittanceID != b || berr.ReasonKind() != remit.KindInvalidStatus {
		t.Errorf("batch error: got index %d id %d reason %s", berr.Index, berr.RemittanceID, berr.ReasonKind())
	}

	if s := h.status(a); s != remittance.StatusPending {
		t.Errorf("A status: got %s, want pending", s)
	}
	if ok, _ := h.store.HasSettlementMark(context.Background(), a); ok {
		t.Error("A should not be marked")
	}
	if !h.balance(h.engine.CustodyAccount()).Equal(custodyBefore) {
		t.Errorf("custody changed: got %s, want %s", h.balance(h.engine.CustodyAccount()), custodyBefore)
	}
	if !h.balance(agent).Equal(agentBefore) {
		t.Errorf("agent changed: got %s, want %s", h.balance(agent), agentBefore)
	}
	if !h.fees().Equal(feesBefore) {
		t.Errorf("fees changed: got %s, want %s", h.fees(), feesBefore)
	}

	topics := h.log.topics()
	if len(topics) != 2 || topics[0] != event.TopicBatchStarted || topics[1] != event.TopicBatchFailed {
		t.Fatalf("topics: got %v, want [batch_st batch_err]", topics)
	}
	failed := h.log.events[1].Payload.(event.BatchFailed)
	if failed.Reason != 16 {
		t.Errorf("failed reason: got %d, want 16", failed.Reason)
	}
}

func TestBatchSettleRejectsEntries(t *testing.T) {
	h := newHarness(t, 250)
	h.fund(sender, 10000)
	a := h.create(1000)

	expiry := h.now.Add(time.Minute)
	expiring, err := h.engine.CreateRemittance(h.as(sender), remittance.CreateParams{
		Sender: sender, Agent: agent, Amount: types.NewAmount(10), Expiry: &expiry,
	})
	if err != nil {
		t.Fatalf("CreateRemittance: %v", err)
	}

	tests := []struct {
		name    string
		entries []settlement.Entry
		advance time.Duration
		reason  remit.Kind
		index   int
	}{
		{"duplicate ids", settlement.Entries(a, a), 0, remit.KindDuplicateSettlement, 1},
		{"unknown id", settlement.Entries(a, 999), 0, remit.KindRemittanceNotFound, 1},
		{"expired entry", settlement.Entries(a, expiring), 2 * time.Minute, remit.KindSettlementExpired, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.now = h.now.Add(tt.advance)
			_, err := h.engine.BatchSettle(context.Background(), tt.entries)
			var berr *remit.BatchError
			if !errors.As(err, &berr) {
				t.Fatalf("got %v, want *BatchError", err)
			}
			if !errors.Is(err, remit.ErrBatchValidationFailed) {
				t.Errorf("errors.Is BatchValidationFailed: got false")
			}
			if berr.ReasonKind() != tt.reason || berr.Index != tt.index {
				t.Errorf("got reason %s index %d, want %s index %d", berr.ReasonKind(), berr.Index, tt.reason, tt.index)
			}
			if s := h.status(a); s != remittance.StatusPending {
				t.Errorf("A status: got %s, want pending", s)
			}
		})
	}
}

// ──────────────────────────────────────────────────
// Limits
// ──────────────────────────────────────────────────

func TestRollingDailyLimit(t *testing.T) {
	h := newHarness(t, 0)
	h.fund(sender, 100000)
	ctx := context.Background()

	wantErr(t, "negative limit",
		h.engine.SetDailyLimit(h.as(adminAddr), "usd", "ph", types.NewAmount(-1)), remit.ErrInvalidAmount)
	if err := h.engine.SetDailyLimit(h.as(adminAddr), "usd", "ph", types.NewAmount(10000)); err != nil {
		t.Fatalf("SetDailyLimit: %v", err)
	}
	l, err := h.engine.GetDailyLimit(ctx, "USD", "PH")
	if err != nil {
		t.Fatalf("GetDailyLimit: %v", err)
	}
	wantAmount(t, "limit", l.Limit, 10000)

	send := func(amount int64) error {
		_, err := h.engine.CreateRemittance(h.as(sender), remittance.CreateParams{
			Sender: sender, Agent: agent, Amount: types.NewAmount(amount), Currency: "USD", Country: "PH",
		})
		return err
	}

	if err := send(6000); err != nil {
		t.Fatalf("6000: %v", err)
	}
	wantErr(t, "5000 within window", send(5000), remit.ErrDailyLimitExceeded)

	vol, _ := h.engine.RollingVolume(ctx, sender, "USD", "PH")
	wantAmount(t, "volume after reject", vol, 6000)

	// Other corridors are uncapped.
	if _, err := h.engine.CreateRemittance(h.as(sender), remittance.CreateParams{
		Sender: sender, Agent: agent, Amount: types.NewAmount(50000), Currency: "USD", Country: "MX",
	}); err != nil {
		t.Errorf("uncapped corridor: %v", err)
	}

	// Exactly one window later the first transfer no longer counts.
	h.now = h.now.Add(24 * time.Hour)
	if err := send(9000); err != nil {
		t.Errorf("9000 after window: %v", err)
	}
	if err := send(1000); err != nil {
		t.Errorf("exactly at cap: %v", err)
	}
	wantErr(t, "one over cap", send(1), remit.ErrDailyLimitExceeded)

	n, err := h.engine.PruneTransferHistory(ctx)
	if err != nil {
		t.Fatalf("PruneTransferHistory: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned: got %d, want 2", n)
	}
	vol, _ = h.engine.RollingVolume(ctx, sender, "USD", "PH")
	wantAmount(t, "volume after prune", vol, 10000)
}

func TestGetDailyLimitUncapped(t *testing.T) {
	h := newHarness(t, 0)
	_, err := h.engine.GetDailyLimit(context.Background(), "EUR", "DE")
	wantErr(t, "GetDailyLimit", err, remit.ErrDailyLimitNotFound)
	if !remit.IsNotFound(err) {
		t.Error("IsNotFound: got false, want true")
	}
}

// ──────────────────────────────────────────────────
// Invocation atomicity
// ──────────────────────────────────────────────────

// failingStore rejects every Apply after the first n.
type failingStore struct {
	store.Store
	allow int
}

func (s *failingStore) Apply(ctx context.Context, cs *store.ChangeSet) error {
	if s.allow <= 0 {
		return errors.New("disk full")
	}
	s.allow--
	return s.Store.Apply(ctx, cs)
}

func TestStoreFailureCompensatesMoves(t *testing.T) {
	fs := &failingStore{Store: memory.New(), allow: 3}
	h := newHarnessWithStore(t, fs, 250)
	h.fund(sender, 1000)

	rid := h.create(1000)
	h.log.reset()

	err := h.engine.ConfirmPayout(h.as(agent), rid)
	if err == nil {
		t.Fatal("ConfirmPayout: got nil error")
	}
	wantAmount(t, "agent balance", h.balance(agent), 0)
	wantAmount(t, "custody balance", h.balance(h.engine.CustodyAccount()), 1000)
	if s := h.status(rid); s != remittance.StatusPending {
		t.Errorf("status: got %s, want pending", s)
	}
	if got := h.log.topics(); len(got) != 0 {
		t.Errorf("events: got %v, want none", got)
	}
}

func TestTransferFailureRollsBackEarlierMoves(t *testing.T) {
	h := newHarness(t, 0)
	h.fund(sender, 100)
	a := h.create(60)
	b := h.create(40)

	// Drain custody behind the engine's back so the second payout fails.
	drain := custody.NewMove(asset, h.engine.CustodyAccount(), "thief", types.NewAmount(40), custody.ReasonPayout)
	if err := h.custody.Transfer(context.Background(), drain); err != nil {
		t.Fatalf("drain: %v", err)
	}

	_, err := h.engine.BatchSettle(context.Background(), settlement.Entries(a, b))
	wantErr(t, "BatchSettle", err, remit.ErrTransferFailed)
	if !remit.IsRetryable(err) {
		t.Error("IsRetryable: got false, want true")
	}

	wantAmount(t, "agent balance", h.balance(agent), 0)
	wantAmount(t, "custody balance", h.balance(h.engine.CustodyAccount()), 60)
	if s := h.status(a); s != remittance.StatusPending {
		t.Errorf("A status: got %s, want pending", s)
	}
	topics := h.log.topics()
	if len(topics) == 0 || topics[len(topics)-1] != event.TopicBatchFailed {
		t.Errorf("topics: got %v, want trailing batch_err", topics)
	}
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		err  error
		code uint32
	}{
		{remit.ErrAlreadyInitialized, 1},
		{remit.ErrInvalidAmount, 3},
		{remit.ErrInvalidFeeBps, 4},
		{remit.ErrAgentNotRegistered, 5},
		{remit.ErrRemittanceNotFound, 6},
		{remit.ErrInvalidStatus, 7},
		{remit.ErrOverflow, 8},
		{remit.ErrNoFeesToWithdraw, 9},
		{remit.ErrSettlementExpired, 11},
		{remit.ErrDuplicateSettlement, 12},
		{remit.ErrContractPaused, 13},
		{remit.ErrEmptyBatchSettlement, 14},
		{remit.ErrBatchTooLarge, 15},
		{remit.ErrBatchValidationFailed, 16},
		{remit.ErrDailyLimitExceeded, 17},
	}

	for _, tt := range tests {
		if got := remit.KindOf(tt.err).Code(); got != tt.code {
			t.Errorf("%v: got code %d, want %d", tt.err, got, tt.code)
		}
	}

	if remit.KindOf(errors.New("other")) != remit.KindUnknown {
		t.Error("KindOf(foreign error): want KindUnknown")
	}
}

type brokenReads struct {
	store.Store
	rid uint64
}

func (s *brokenReads) GetRemittance(ctx context.Context, rid uint64) (*remittance.Remittance, error) {
	if rid == s.rid {
		return nil, errors.New("connection reset")
	}
	return s.Store.GetRemittance(ctx, rid)
}

func TestBatchSettleStoreFailureIsNotAValidationError(t *testing.T) {
	bs := &brokenReads{Store: memory.New()}
	h := newHarnessWithStore(t, bs, 0)
	h.fund(sender, 100)
	a := h.create(60)
	b := h.create(40)
	h.log.reset()
	bs.rid = b

	_, err := h.engine.BatchSettle(context.Background(), settlement.Entries(a, b))
	if err == nil {
		t.Fatal("BatchSettle: got nil error")
	}
	if errors.Is(err, remit.ErrBatchValidationFailed) {
		t.Errorf("BatchSettle: got %v, want a store error", err)
	}
	var be *remit.BatchError
	if errors.As(err, &be) {
		t.Errorf("BatchSettle: got BatchError at index %d, want unwrapped store error", be.Index)
	}
	if k := remit.KindOf(err); k != remit.KindUnknown {
		t.Errorf("kind: got %s, want %s", k, remit.KindUnknown)
	}

	topics := h.log.topics()
	if len(topics) == 0 || topics[len(topics)-1] != event.TopicBatchFailed {
		t.Errorf("topics: got %v, want trailing batch_err", topics)
	}
	wantAmount(t, "agent balance", h.balance(agent), 0)
}

// flakyTransferer fails every transfer once its allowance is spent.
type flakyTransferer struct {
	next  custody.Transferer
	allow int
}

func (f *flakyTransferer) Transfer(ctx context.Context, m custody.Move) error {
	if f.allow <= 0 {
		return errors.New("custody timeout")
	}
	f.allow--
	return f.next.Transfer(ctx, m)
}

func TestCompensationBypassesOpenBreaker(t *testing.T) {
	flaky := &flakyTransferer{allow: 1 << 30}
	var breaker *custody.Breaker
	h := newHarnessWithStore(t, memory.New(), 0,
		func(m *custody.Memory) remit.Option {
			flaky.next = m
			breaker = custody.NewBreaker(flaky, custody.BreakerConfig{ConsecutiveFailures: 1, Timeout: time.Hour}, nil)
			return remit.WithTransferer(breaker)
		},
		func(m *custody.Memory) remit.Option { return remit.WithCompensationTransferer(m) },
	)
	h.fund(sender, 100)
	a := h.create(60)
	b := h.create(40)

	// The first payout goes through; the second trips the breaker open.
	flaky.allow = 1
	_, err := h.engine.BatchSettle(context.Background(), settlement.Entries(a, b))
	wantErr(t, "BatchSettle", err, remit.ErrTransferFailed)
	if got := breaker.State(); got != "open" {
		t.Errorf("breaker: got %s, want open", got)
	}

	wantAmount(t, "agent balance", h.balance(agent), 0)
	wantAmount(t, "custody balance", h.balance(h.engine.CustodyAccount()), 100)
	if s := h.status(a); s != remittance.StatusPending {
		t.Errorf("A status: got %s, want pending", s)
	}
}
