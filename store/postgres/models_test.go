package postgres

import (
	"testing"
	"time"

	"github.com/xraph/remit/id"
	"github.com/xraph/remit/remittance"
	"github.com/xraph/remit/settlement"
	"github.com/xraph/remit/types"
)

func TestRemittanceModelRoundTrip(t *testing.T) {
	exp := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		amount types.Amount
		expiry *time.Time
	}{
		{"no expiry", types.NewAmount(10000), nil},
		{"with expiry", types.NewAmount(1000), &exp},
		{"max amount", types.MaxAmount(), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := &remittance.Remittance{
				ID:       7,
				Sender:   "alice",
				Agent:    "agent-1",
				Amount:   tt.amount,
				Fee:      types.NewAmount(25),
				Currency: "USD",
				Country:  "PH",
				Status:   remittance.StatusPending,
				Expiry:   tt.expiry,
			}

			m := toRemittanceModel(in)
			if m.Amount != tt.amount.String() {
				t.Errorf("stored amount: got %q, want %q", m.Amount, tt.amount.String())
			}

			out, err := fromRemittanceModel(m)
			if err != nil {
				t.Fatalf("fromRemittanceModel: %v", err)
			}
			if out.ID != 7 {
				t.Errorf("id: got %d, want 7", out.ID)
			}
			if !out.Amount.Equal(tt.amount) {
				t.Errorf("amount: got %s, want %s", out.Amount, tt.amount)
			}
			if (out.Expiry == nil) != (tt.expiry == nil) {
				t.Fatalf("expiry: got %v, want %v", out.Expiry, tt.expiry)
			}
			if tt.expiry != nil && !out.Expiry.Equal(*tt.expiry) {
				t.Errorf("expiry: got %v, want %v", out.Expiry, tt.expiry)
			}
		})
	}
}

func TestRemittanceModelBadAmount(t *testing.T) {
	m := &remittanceModel{ID: 1, Amount: "ten", Fee: "0"}
	if _, err := fromRemittanceModel(m); err == nil {
		t.Error("fromRemittanceModel: got nil error for non-numeric amount")
	}
}

func TestMarkModelBatchID(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	single := toMarkModel(&settlement.Mark{RemittanceID: 3, SettledAt: now})
	if single.BatchID != "" {
		t.Errorf("single confirm batch id: got %q, want empty", single.BatchID)
	}
	got, err := fromMarkModel(single)
	if err != nil {
		t.Fatalf("fromMarkModel: %v", err)
	}
	if !got.BatchID.IsNil() {
		t.Errorf("batch id: got %s, want nil", got.BatchID)
	}

	batch := id.NewBatchID()
	m := toMarkModel(&settlement.Mark{RemittanceID: 4, BatchID: batch, SettledAt: now})
	got, err = fromMarkModel(m)
	if err != nil {
		t.Fatalf("fromMarkModel: %v", err)
	}
	if got.BatchID.String() != batch.String() {
		t.Errorf("batch id: got %s, want %s", got.BatchID, batch)
	}
	if got.RemittanceID != 4 {
		t.Errorf("remittance id: got %d, want 4", got.RemittanceID)
	}
}
