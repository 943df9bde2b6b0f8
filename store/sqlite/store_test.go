package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/remit"
	"github.com/xraph/remit/admin"
	"github.com/xraph/remit/id"
	"github.com/xraph/remit/limit"
	"github.com/xraph/remit/remittance"
	"github.com/xraph/remit/settlement"
	"github.com/xraph/remit/store"
	"github.com/xraph/remit/store/sqlite"
	"github.com/xraph/remit/types"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	ctx := context.Background()

	drv := sqlitedriver.New()
	if err := drv.Open(ctx, filepath.Join(t.TempDir(), "remit.db")); err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db, err := grove.Open(drv)
	if err != nil {
		t.Fatalf("grove.Open: %v", err)
	}

	s := sqlite.New(db)
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func pending(rid uint64, now time.Time) *remittance.Remittance {
	return &remittance.Remittance{
		Entity:   types.NewEntity(now),
		ID:       rid,
		Sender:   "alice",
		Agent:    "agent-1",
		Amount:   types.NewAmount(1000),
		Fee:      types.NewAmount(25),
		Currency: "USD",
		Country:  "PH",
		Status:   remittance.StatusPending,
	}
}

func TestApplyAndRead(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 123456789, time.UTC)
	exp := now.Add(time.Hour)

	r := pending(1, now)
	r.Expiry = &exp
	batch := id.NewBatchID()

	cs := &store.ChangeSet{
		State: &admin.State{
			Admin:             "admin",
			Asset:             "USDC",
			FeeBps:            250,
			RemittanceCounter: 1,
			AccumulatedFees:   types.NewAmount(25),
			Paused:            true,
			InitializedAt:     now,
			UpdatedAt:         now,
		},
		Agents:      []*admin.Agent{{Address: "agent-1", Registered: true, UpdatedAt: now}},
		Remittances: []*remittance.Remittance{r},
		Marks:       []*settlement.Mark{{RemittanceID: 1, BatchID: batch, SettledAt: now}},
		Limits: []*limit.DailyLimit{{
			Entity: types.NewEntity(now),
			Key:    limit.NewKey("USD", "PH"),
			Limit:  types.NewAmount(10000),
		}},
		Transfers: []*limit.TransferRecord{{
			ID:        id.NewTransferID(),
			Sender:    "alice",
			Currency:  "USD",
			Country:   "PH",
			Amount:    types.NewAmount(1000),
			Timestamp: now,
		}},
	}
	if err := s.Apply(ctx, cs); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	st, err := s.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if !st.AccumulatedFees.Equal(types.NewAmount(25)) || !st.Paused || st.FeeBps != 250 {
		t.Errorf("state: got %+v", st)
	}
	if !st.InitializedAt.Equal(now) {
		t.Errorf("initialized_at: got %v, want %v", st.InitializedAt, now)
	}

	ok, err := s.IsAgentRegistered(ctx, "agent-1")
	if err != nil || !ok {
		t.Errorf("IsAgentRegistered: got %v, %v, want true", ok, err)
	}

	got, err := s.GetRemittance(ctx, 1)
	if err != nil {
		t.Fatalf("GetRemittance: %v", err)
	}
	if got.Expiry == nil || !got.Expiry.Equal(exp) {
		t.Errorf("expiry: got %v, want %v", got.Expiry, exp)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("created_at: got %v, want %v", got.CreatedAt, now)
	}

	mark, err := s.GetSettlementMark(ctx, 1)
	if err != nil {
		t.Fatalf("GetSettlementMark: %v", err)
	}
	if mark.BatchID.String() != batch.String() {
		t.Errorf("mark batch: got %s, want %s", mark.BatchID, batch)
	}

	l, err := s.GetDailyLimit(ctx, limit.NewKey("USD", "PH"))
	if err != nil {
		t.Fatalf("GetDailyLimit: %v", err)
	}
	if !l.Limit.Equal(types.NewAmount(10000)) {
		t.Errorf("limit: got %s, want 10000", l.Limit)
	}
}

func TestFailedApplyLeavesNothingBehind(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	first := &store.ChangeSet{
		State: &admin.State{
			Admin: "admin", Asset: "USDC", RemittanceCounter: 1,
			InitializedAt: now, UpdatedAt: now,
		},
		Remittances: []*remittance.Remittance{pending(1, now)},
		Marks:       []*settlement.Mark{{RemittanceID: 1, SettledAt: now}},
	}
	if err := s.Apply(ctx, first); err != nil {
		t.Fatalf("Apply(first): %v", err)
	}

	// The repeated mark violates its primary key after the state and the
	// new remittance were written.
	second := &store.ChangeSet{
		State: &admin.State{
			Admin: "admin", Asset: "USDC", RemittanceCounter: 2,
			AccumulatedFees: types.NewAmount(999),
			InitializedAt:   now, UpdatedAt: now,
		},
		Remittances: []*remittance.Remittance{pending(2, now)},
		Marks:       []*settlement.Mark{{RemittanceID: 1, SettledAt: now}},
	}
	if err := s.Apply(ctx, second); err == nil {
		t.Fatal("Apply(second): got nil error, want mark conflict")
	}

	st, err := s.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if !st.AccumulatedFees.IsZero() {
		t.Errorf("accumulated fees: got %s, want 0", st.AccumulatedFees)
	}
	if st.RemittanceCounter != 1 {
		t.Errorf("counter: got %d, want 1", st.RemittanceCounter)
	}
	if _, err := s.GetRemittance(ctx, 2); !errors.Is(err, remit.ErrRemittanceNotFound) {
		t.Errorf("GetRemittance(2): got %v, want ErrRemittanceNotFound", err)
	}
}

func TestTransferRecordWindow(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	record := func(at time.Time, amount int64) *limit.TransferRecord {
		return &limit.TransferRecord{
			ID:        id.NewTransferID(),
			Sender:    "alice",
			Currency:  "USD",
			Country:   "PH",
			Amount:    types.NewAmount(amount),
			Timestamp: at,
		}
	}
	cs := &store.ChangeSet{Transfers: []*limit.TransferRecord{
		record(now.Add(-25*time.Hour), 100),
		record(now.Add(-24*time.Hour), 200),
		record(now.Add(-time.Second), 300),
		record(now, 400),
	}}
	if err := s.Apply(ctx, cs); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	key := limit.NewHistoryKey("alice", "USD", "PH")
	got, err := s.ListTransferRecords(ctx, key, limit.WindowStart(now))
	if err != nil {
		t.Fatalf("ListTransferRecords: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("records in window: got %d, want 2", len(got))
	}
	if !got[0].Timestamp.Before(got[1].Timestamp) {
		t.Errorf("order: got %v then %v, want ascending", got[0].Timestamp, got[1].Timestamp)
	}

	pruned, err := s.PruneTransferRecords(ctx, limit.WindowStart(now))
	if err != nil {
		t.Fatalf("PruneTransferRecords: %v", err)
	}
	if pruned != 2 {
		t.Errorf("pruned: got %d, want 2", pruned)
	}
}
