package sqlite

import (
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/remit/admin"
	"github.com/xraph/remit/id"
	"github.com/xraph/remit/limit"
	"github.com/xraph/remit/remittance"
	"github.com/xraph/remit/settlement"
	"github.com/xraph/remit/types"
)

// stateRowID is the primary key of the single remit_state row.
const stateRowID = 1

// timeLayout is the TEXT encoding of every timestamp column. It is fixed
// width and always UTC, so string order is time order and the rolling
// window can be queried with plain comparisons.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(col, s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("remit/sqlite: decode %s %q: %w", col, s, err)
	}
	return t, nil
}

// ==================== State models ====================

type stateModel struct {
	grove.BaseModel `grove:"table:remit_state"`

	ID                int    `grove:"id,pk"`
	Admin             string `grove:"admin"`
	Asset             string `grove:"asset"`
	FeeBps            int64  `grove:"fee_bps"`
	RemittanceCounter int64  `grove:"remittance_counter"`
	AccumulatedFees   string `grove:"accumulated_fees"`
	Paused            bool   `grove:"paused"`
	InitializedAt     string `grove:"initialized_at"`
	UpdatedAt         string `grove:"updated_at"`
}

func toStateModel(s *admin.State) *stateModel {
	return &stateModel{
		ID:                stateRowID,
		Admin:             string(s.Admin),
		Asset:             s.Asset,
		FeeBps:            int64(s.FeeBps),
		RemittanceCounter: int64(s.RemittanceCounter), //nolint:gosec // counter is far below MaxInt64
		AccumulatedFees:   s.AccumulatedFees.String(),
		Paused:            s.Paused,
		InitializedAt:     formatTime(s.InitializedAt),
		UpdatedAt:         formatTime(s.UpdatedAt),
	}
}

func fromStateModel(m *stateModel) (*admin.State, error) {
	fees, err := types.ParseAmount(m.AccumulatedFees)
	if err != nil {
		return nil, err
	}
	initialized, err := parseTime("initialized_at", m.InitializedAt)
	if err != nil {
		return nil, err
	}
	updated, err := parseTime("updated_at", m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &admin.State{
		Admin:             types.Address(m.Admin),
		Asset:             m.Asset,
		FeeBps:            uint32(m.FeeBps), //nolint:gosec // validated at write
		RemittanceCounter: uint64(m.RemittanceCounter),
		AccumulatedFees:   fees,
		Paused:            m.Paused,
		InitializedAt:     initialized,
		UpdatedAt:         updated,
	}, nil
}

// ==================== Agent models ====================

type agentModel struct {
	grove.BaseModel `grove:"table:remit_agents"`

	Address    string `grove:"address,pk"`
	Registered bool   `grove:"registered"`
	UpdatedAt  string `grove:"updated_at"`
}

func toAgentModel(a *admin.Agent) *agentModel {
	return &agentModel{
		Address:    string(a.Address),
		Registered: a.Registered,
		UpdatedAt:  formatTime(a.UpdatedAt),
	}
}

func fromAgentModel(m *agentModel) (*admin.Agent, error) {
	updated, err := parseTime("updated_at", m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &admin.Agent{
		Address:    types.Address(m.Address),
		Registered: m.Registered,
		UpdatedAt:  updated,
	}, nil
}

// ==================== Remittance models ====================

type remittanceModel struct {
	grove.BaseModel `grove:"table:remit_remittances"`

	ID        int64   `grove:"id,pk"`
	Sender    string  `grove:"sender"`
	Agent     string  `grove:"agent"`
	Amount    string  `grove:"amount"`
	Fee       string  `grove:"fee"`
	Currency  string  `grove:"currency"`
	Country   string  `grove:"country"`
	Status    string  `grove:"status"`
	Expiry    *string `grove:"expiry"`
	CreatedAt string  `grove:"created_at"`
	UpdatedAt string  `grove:"updated_at"`
}

func toRemittanceModel(r *remittance.Remittance) *remittanceModel {
	m := &remittanceModel{
		ID:        int64(r.ID), //nolint:gosec // ids are allocated sequentially from 1
		Sender:    string(r.Sender),
		Agent:     string(r.Agent),
		Amount:    r.Amount.String(),
		Fee:       r.Fee.String(),
		Currency:  r.Currency,
		Country:   r.Country,
		Status:    string(r.Status),
		CreatedAt: formatTime(r.CreatedAt),
		UpdatedAt: formatTime(r.UpdatedAt),
	}
	if r.Expiry != nil {
		exp := formatTime(*r.Expiry)
		m.Expiry = &exp
	}
	return m
}

func fromRemittanceModel(m *remittanceModel) (*remittance.Remittance, error) {
	amount, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, err
	}
	fee, err := types.ParseAmount(m.Fee)
	if err != nil {
		return nil, err
	}
	created, err := parseTime("created_at", m.CreatedAt)
	if err != nil {
		return nil, err
	}
	updated, err := parseTime("updated_at", m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	var expiry *time.Time
	if m.Expiry != nil {
		exp, err := parseTime("expiry", *m.Expiry)
		if err != nil {
			return nil, err
		}
		expiry = &exp
	}
	return &remittance.Remittance{
		Entity: types.Entity{
			CreatedAt: created,
			UpdatedAt: updated,
		},
		ID:       uint64(m.ID), //nolint:gosec // never negative
		Sender:   types.Address(m.Sender),
		Agent:    types.Address(m.Agent),
		Amount:   amount,
		Fee:      fee,
		Currency: m.Currency,
		Country:  m.Country,
		Status:   remittance.Status(m.Status),
		Expiry:   expiry,
	}, nil
}

// ==================== Settlement mark models ====================

type markModel struct {
	grove.BaseModel `grove:"table:remit_settlement_marks"`

	RemittanceID int64  `grove:"remittance_id,pk"`
	BatchID      string `grove:"batch_id"`
	SettledAt    string `grove:"settled_at"`
}

func toMarkModel(m *settlement.Mark) *markModel {
	var batch string
	if !m.BatchID.IsNil() {
		batch = m.BatchID.String()
	}
	return &markModel{
		RemittanceID: int64(m.RemittanceID), //nolint:gosec // see remittanceModel
		BatchID:      batch,
		SettledAt:    formatTime(m.SettledAt),
	}
}

func fromMarkModel(m *markModel) (*settlement.Mark, error) {
	settled, err := parseTime("settled_at", m.SettledAt)
	if err != nil {
		return nil, err
	}
	mark := &settlement.Mark{
		RemittanceID: uint64(m.RemittanceID), //nolint:gosec // never negative
		SettledAt:    settled,
	}
	if m.BatchID != "" {
		batch, err := id.ParseBatchID(m.BatchID)
		if err != nil {
			return nil, err
		}
		mark.BatchID = batch
	}
	return mark, nil
}

// ==================== Daily limit models ====================

type dailyLimitModel struct {
	grove.BaseModel `grove:"table:remit_daily_limits"`

	Currency  string `grove:"currency,pk"`
	Country   string `grove:"country,pk"`
	Limit     string `grove:"cap"`
	CreatedAt string `grove:"created_at"`
	UpdatedAt string `grove:"updated_at"`
}

func toDailyLimitModel(l *limit.DailyLimit) *dailyLimitModel {
	return &dailyLimitModel{
		Currency:  l.Currency,
		Country:   l.Country,
		Limit:     l.Limit.String(),
		CreatedAt: formatTime(l.CreatedAt),
		UpdatedAt: formatTime(l.UpdatedAt),
	}
}

func fromDailyLimitModel(m *dailyLimitModel) (*limit.DailyLimit, error) {
	capAmount, err := types.ParseAmount(m.Limit)
	if err != nil {
		return nil, err
	}
	created, err := parseTime("created_at", m.CreatedAt)
	if err != nil {
		return nil, err
	}
	updated, err := parseTime("updated_at", m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &limit.DailyLimit{
		Entity: types.Entity{
			CreatedAt: created,
			UpdatedAt: updated,
		},
		Key:   limit.Key{Currency: m.Currency, Country: m.Country},
		Limit: capAmount,
	}, nil
}

// ==================== Transfer record models ====================

type transferRecordModel struct {
	grove.BaseModel `grove:"table:remit_transfer_records"`

	ID        string `grove:"id,pk"`
	Sender    string `grove:"sender"`
	Currency  string `grove:"currency"`
	Country   string `grove:"country"`
	Amount    string `grove:"amount"`
	Timestamp string `grove:"timestamp"`
}

func toTransferRecordModel(r *limit.TransferRecord) *transferRecordModel {
	return &transferRecordModel{
		ID:        r.ID.String(),
		Sender:    string(r.Sender),
		Currency:  r.Currency,
		Country:   r.Country,
		Amount:    r.Amount.String(),
		Timestamp: formatTime(r.Timestamp),
	}
}

func fromTransferRecordModel(m *transferRecordModel) (*limit.TransferRecord, error) {
	recID, err := id.ParseTransferID(m.ID)
	if err != nil {
		return nil, err
	}
	amount, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, err
	}
	ts, err := parseTime("timestamp", m.Timestamp)
	if err != nil {
		return nil, err
	}
	return &limit.TransferRecord{
		ID:        recID,
		Sender:    types.Address(m.Sender),
		Currency:  m.Currency,
		Country:   m.Country,
		Amount:    amount,
		Timestamp: ts,
	}, nil
}
