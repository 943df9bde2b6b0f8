package audithook

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/remit"
	"github.com/xraph/remit/custody"
	"github.com/xraph/remit/event"
	"github.com/xraph/remit/types"
)

type captured struct {
	events []*AuditEvent
}

func (c *captured) Record(_ context.Context, ev *AuditEvent) error {
	c.events = append(c.events, ev)
	return nil
}

func TestRemittanceCreatedIsRecorded(t *testing.T) {
	rec := &captured{}
	ext := New(rec)

	err := ext.OnRemittanceCreated(context.Background(), event.RemittanceCreated{
		RemittanceID: 7,
		Sender:       "alice",
		Agent:        "agent-1",
		Amount:       types.NewAmount(10000),
		Fee:          types.NewAmount(250),
		Currency:     "USD",
		Country:      "PH",
	})
	if err != nil {
		t.Fatalf("OnRemittanceCreated: %v", err)
	}
	if len(rec.events) != 1 {
		t.Fatalf("events: got %d, want 1", len(rec.events))
	}
	ev := rec.events[0]
	if ev.Action != ActionRemittanceCreated {
		t.Errorf("action: got %q, want %q", ev.Action, ActionRemittanceCreated)
	}
	if ev.ResourceID != "7" {
		t.Errorf("resource id: got %q, want %q", ev.ResourceID, "7")
	}
	if ev.Metadata["amount"] != "10000" {
		t.Errorf("amount: got %v, want 10000", ev.Metadata["amount"])
	}
}

func TestEnabledActionsFilter(t *testing.T) {
	rec := &captured{}
	ext := New(rec, WithDisabledActions(ActionFeeUpdated))
	ctx := context.Background()

	_ = ext.OnFeeUpdated(ctx, event.FeeUpdated{Admin: "admin", OldBps: 100, NewBps: 200})
	_ = ext.OnPauseChanged(ctx, event.PauseChanged{Admin: "admin", Paused: true})

	if len(rec.events) != 1 {
		t.Fatalf("events: got %d, want 1", len(rec.events))
	}
	if rec.events[0].Action != ActionPaused {
		t.Errorf("action: got %q, want %q", rec.events[0].Action, ActionPaused)
	}
	if rec.events[0].Severity != SeverityWarning {
		t.Errorf("severity: got %q, want %q", rec.events[0].Severity, SeverityWarning)
	}
}

func TestCustodyMovesRecording(t *testing.T) {
	ctx := context.Background()
	deposit := custody.NewMove("USDC", "alice", "remit:custody", types.NewAmount(5), custody.ReasonDeposit)

	rec := &captured{}
	ext := New(rec)
	_ = ext.OnTransfer(ctx, deposit)
	_ = ext.OnTransfer(ctx, deposit.Reverse())
	if len(rec.events) != 1 {
		t.Fatalf("default: got %d events, want 1 (compensation only)", len(rec.events))
	}
	if rec.events[0].Severity != SeverityCritical {
		t.Errorf("compensation severity: got %q, want %q", rec.events[0].Severity, SeverityCritical)
	}

	rec = &captured{}
	ext = New(rec, WithCustodyMoves())
	_ = ext.OnTransfer(ctx, deposit)
	if len(rec.events) != 1 {
		t.Errorf("WithCustodyMoves: got %d events, want 1", len(rec.events))
	}
}

func TestInvocationFailedCarriesCode(t *testing.T) {
	rec := &captured{}
	ext := New(rec)

	_ = ext.OnInvocationFailed(context.Background(), "confirm_payout", remit.ErrSettlementExpired)

	if len(rec.events) != 1 {
		t.Fatalf("events: got %d, want 1", len(rec.events))
	}
	ev := rec.events[0]
	if ev.Outcome != OutcomeFailure {
		t.Errorf("outcome: got %q, want %q", ev.Outcome, OutcomeFailure)
	}
	if ev.Metadata["code"] != remit.KindSettlementExpired.Code() {
		t.Errorf("code: got %v, want %d", ev.Metadata["code"], remit.KindSettlementExpired.Code())
	}
	if ev.Reason == "" {
		t.Error("reason: want error text, got empty")
	}
}

func TestRecorderErrorIsSwallowed(t *testing.T) {
	ext := New(RecorderFunc(func(context.Context, *AuditEvent) error {
		return errors.New("backend down")
	}))

	err := ext.OnBatchStarted(context.Background(), event.BatchStarted{Size: 3})
	if err != nil {
		t.Errorf("OnBatchStarted: got %v, want nil", err)
	}
}
