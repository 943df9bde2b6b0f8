package mongo

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

// stateDocID is the _id of the single state document.
const stateDocID = "state"

// ==================== State models ====================

type stateModel struct {
	grove.BaseModel `grove:"table:remit_state"`

	ID                string    `grove:"id,pk"              bson:"_id"`
	Admin             string    `grove:"admin"              bson:"admin"`
	Asset             string    `grove:"asset"              bson:"asset"`
	FeeBps            int64     `grove:"fee_bps"            bson:"fee_bps"`
	RemittanceCounter int64     `grove:"remittance_counter" bson:"remittance_counter"`
	AccumulatedFees   string    `grove:"accumulated_fees"   bson:"accumulated_fees"`
	Paused            bool      `grove:"paused"             bson:"paused"`
	InitializedAt     time.Time `grove:"initialized_at"     bson:"initialized_at"`
	UpdatedAt         time.Time `grove:"updated_at"         bson:"updated_at"`
}

func toStateModel(s *admin.State) *stateModel {
	return &stateModel{
		ID:                stateDocID,
		Admin:             string(s.Admin),
		Asset:             s.Asset,
		FeeBps:            int64(s.FeeBps),
		RemittanceCounter: int64(s.RemittanceCounter), //nolint:gosec // counter is far below MaxInt64
		AccumulatedFees:   s.AccumulatedFees.String(),
		Paused:            s.Paused,
		InitializedAt:     s.InitializedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

func fromStateModel(m *stateModel) (*admin.State, error) {
	fees, err := types.ParseAmount(m.AccumulatedFees)
	if err != nil {
		return nil, fmt.Errorf("remit/mongo: parse accumulated fees: %w", err)
	}
	return &admin.State{
		Admin:             types.Address(m.Admin),
		Asset:             m.Asset,
		FeeBps:            uint32(m.FeeBps), //nolint:gosec // validated at write
		RemittanceCounter: uint64(m.RemittanceCounter),
		AccumulatedFees:   fees,
		Paused:            m.Paused,
		InitializedAt:     m.InitializedAt.UTC(),
		UpdatedAt:         m.UpdatedAt.UTC(),
	}, nil
}

// ==================== Agent models ====================

type agentModel struct {
	grove.BaseModel `grove:"table:remit_agents"`

	Address    string    `grove:"address,pk" bson:"_id"`
	Registered bool      `grove:"registered" bson:"registered"`
	UpdatedAt  time.Time `grove:"updated_at" bson:"updated_at"`
}

func toAgentModel(a *admin.Agent) *agentModel {
	return &agentModel{
		Address:    string(a.Address),
		Registered: a.Registered,
		UpdatedAt:  a.UpdatedAt,
	}
}

func fromAgentModel(m *agentModel) *admin.Agent {
	return &admin.Agent{
		Address:    types.Address(m.Address),
		Registered: m.Registered,
		UpdatedAt:  m.UpdatedAt.UTC(),
	}
}

// ==================== Remittance models ====================

type remittanceModel struct {
	grove.BaseModel `grove:"table:remit_remittances"`

	ID        int64      `grove:"id,pk"      bson:"_id"`
	Sender    string     `grove:"sender"     bson:"sender"`
	Agent     string     `grove:"agent"      bson:"agent"`
	Amount    string     `grove:"amount"     bson:"amount"`
	Fee       string     `grove:"fee"        bson:"fee"`
	Currency  string     `grove:"currency"   bson:"currency"`
	Country   string     `grove:"country"    bson:"country"`
	Status    string     `grove:"status"     bson:"status"`
	Expiry    *time.Time `grove:"expiry"     bson:"expiry,omitempty"`
	CreatedAt time.Time  `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time  `grove:"updated_at" bson:"updated_at"`
}

func toRemittanceModel(r *remittance.Remittance) *remittanceModel {
	return &remittanceModel{
		ID:        int64(r.ID), //nolint:gosec // ids are allocated sequentially from 1
		Sender:    string(r.Sender),
		Agent:     string(r.Agent),
		Amount:    r.Amount.String(),
		Fee:       r.Fee.String(),
		Currency:  r.Currency,
		Country:   r.Country,
		Status:    string(r.Status),
		Expiry:    r.Expiry,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func fromRemittanceModel(m *remittanceModel) (*remittance.Remittance, error) {
	amount, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, fmt.Errorf("remit/mongo: parse remittance %d amount: %w", m.ID, err)
	}
	fee, err := types.ParseAmount(m.Fee)
	if err != nil {
		return nil, fmt.Errorf("remit/mongo: parse remittance %d fee: %w", m.ID, err)
	}
	var expiry *time.Time
	if m.Expiry != nil {
		exp := m.Expiry.UTC()
		expiry = &exp
	}
	return &remittance.Remittance{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
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

	RemittanceID int64     `grove:"remittance_id,pk" bson:"_id"`
	BatchID      string    `grove:"batch_id"         bson:"batch_id,omitempty"`
	SettledAt    time.Time `grove:"settled_at"       bson:"settled_at"`
}

func toMarkModel(m *settlement.Mark) *markModel {
	var batch string
	if !m.BatchID.IsNil() {
		batch = m.BatchID.String()
	}
	return &markModel{
		RemittanceID: int64(m.RemittanceID), //nolint:gosec // see remittanceModel
		BatchID:      batch,
		SettledAt:    m.SettledAt,
	}
}

func fromMarkModel(m *markModel) (*settlement.Mark, error) {
	mark := &settlement.Mark{
		RemittanceID: uint64(m.RemittanceID), //nolint:gosec // never negative
		SettledAt:    m.SettledAt.UTC(),
	}
	if m.BatchID != "" {
		batch, err := id.ParseBatchID(m.BatchID)
		if err != nil {
			return nil, fmt.Errorf("remit/mongo: parse batch id: %w", err)
		}
		mark.BatchID = batch
	}
	return mark, nil
}

// ==================== Daily limit models ====================

type dailyLimitModel struct {
	grove.BaseModel `grove:"table:remit_daily_limits"`

	Key       string    `grove:"key,pk"     bson:"_id"`
	Currency  string    `grove:"currency"   bson:"currency"`
	Country   string    `grove:"country"    bson:"country"`
	Limit     string    `grove:"cap"        bson:"cap"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

func toDailyLimitModel(l *limit.DailyLimit) *dailyLimitModel {
	return &dailyLimitModel{
		Key:       l.Key.String(),
		Currency:  l.Currency,
		Country:   l.Country,
		Limit:     l.Limit.String(),
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
}

func fromDailyLimitModel(m *dailyLimitModel) (*limit.DailyLimit, error) {
	capAmount, err := types.ParseAmount(m.Limit)
	if err != nil {
		return nil, fmt.Errorf("remit/mongo: parse daily limit %s: %w", m.Key, err)
	}
	return &limit.DailyLimit{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		Key:   limit.Key{Currency: m.Currency, Country: m.Country},
		Limit: capAmount,
	}, nil
}

// ==================== Transfer record models ====================

type transferRecordModel struct {
	grove.BaseModel `grove:"table:remit_transfer_records"`

	ID        string    `grove:"id,pk"     bson:"_id"`
	Sender    string    `grove:"sender"    bson:"sender"`
	Currency  string    `grove:"currency"  bson:"currency"`
	Country   string    `grove:"country"   bson:"country"`
	Amount    string    `grove:"amount"    bson:"amount"`
	Timestamp time.Time `grove:"timestamp" bson:"timestamp"`
}

func toTransferRecordModel(r *limit.TransferRecord) *transferRecordModel {
	return &transferRecordModel{
		ID:        r.ID.String(),
		Sender:    string(r.Sender),
		Currency:  r.Currency,
		Country:   r.Country,
		Amount:    r.Amount.String(),
		Timestamp: r.Timestamp,
	}
}

func fromTransferRecordModel(m *transferRecordModel) (*limit.TransferRecord, error) {
	recID, err := id.ParseTransferID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("remit/mongo: parse transfer id: %w", err)
	}
	amount, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, fmt.Errorf("remit/mongo: parse transfer %s amount: %w", m.ID, err)
	}
	return &limit.TransferRecord{
		ID:        recID,
		Sender:    types.Address(m.Sender),
		Currency:  m.Currency,
		Country:   m.Country,
		Amount:    amount,
		Timestamp: m.Timestamp.UTC(),
	}, nil
}
