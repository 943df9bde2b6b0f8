// Package event defines the domain events remit emits. Every event kind has
// a fixed topic and a fixed payload shape; events are append-only records
// handed to plugins after the invocation that produced them commits.
package event

import (
	"time"

	"github.com/xraph/remit/id"
	"github.com/xraph/remit/types"
)

// Topic names an event kind.
type Topic string

const (
	TopicInitialized         Topic = "init"
	TopicAgentRegistered     Topic = "agent_reg"
	TopicAgentRemoved        Topic = "agent_rem"
	TopicFeeUpdated          Topic = "fee_upd"
	TopicPaused              Topic = "paused"
	TopicUnpaused            Topic = "unpaused"
	TopicFeesWithdrawn       Topic = "fees_wd"
	TopicRemittanceCreated   Topic = "created"
	TopicRemittanceCompleted Topic = "completed"
	TopicRemittanceCancelled Topic = "cancelled"
	TopicSettlementCompleted Topic = "settled"
	TopicBatchStarted        Topic = "batch_st"
	TopicBatchCompleted      Topic = "batch_ok"
	TopicBatchFailed         Topic = "batch_err"
	TopicDailyLimitSet       Topic = "limit_set"
)

// Payload is implemented by every event payload.
type Payload interface {
	Topic() Topic
}

// Event is the envelope delivered to plugins and publishers.
type Event struct {
	ID      id.EventID `json:"id"`
	Topic   Topic      `json:"topic"`
	Time    time.Time  `json:"time"`
	Payload Payload    `json:"payload"`
}

// New wraps payload in an envelope stamped at now.
func New(now time.Time, payload Payload) Event {
	return Event{
		ID:      id.NewEventID(),
		Topic:   payload.Topic(),
		Time:    now.UTC(),
		Payload: payload,
	}
}

// ──────────────────────────────────────────────────
// Control plane payloads
// ──────────────────────────────────────────────────

type Initialized struct {
	Admin  types.Address `json:"admin"`
	Asset  string        `json:"asset"`
	FeeBps uint32        `json:"fee_bps"`
}

func (Initialized) Topic() Topic { return TopicInitialized }

// AgentChanged reports a registration flip. Registered selects the topic.
type AgentChanged struct {
	Agent      types.Address `json:"agent"`
	Admin      types.Address `json:"admin"`
	Registered bool          `json:"registered"`
}

func (p AgentChanged) Topic() Topic {
	if p.Registered {
		return TopicAgentRegistered
	}
	return TopicAgentRemoved
}

type FeeUpdated struct {
	Admin  types.Address `json:"admin"`
	OldBps uint32        `json:"old_bps"`
	NewBps uint32        `json:"new_bps"`
}

func (FeeUpdated) Topic() Topic { return TopicFeeUpdated }

type PauseChanged struct {
	Admin  types.Address `json:"admin"`
	Paused bool          `json:"paused"`
}

func (p PauseChanged) Topic() Topic {
	if p.Paused {
		return TopicPaused
	}
	return TopicUnpaused
}

type FeesWithdrawn struct {
	Admin  types.Address `json:"admin"`
	To     types.Address `json:"to"`
	Asset  string        `json:"asset"`
	Amount types.Amount  `json:"amount"`
}

func (FeesWithdrawn) Topic() Topic { return TopicFeesWithdrawn }

type DailyLimitSet struct {
	Admin    types.Address `json:"admin"`
	Currency string        `json:"currency"`
	Country  string        `json:"country"`
	Limit    types.Amount  `json:"limit"`
}

func (DailyLimitSet) Topic() Topic { return TopicDailyLimitSet }

// ──────────────────────────────────────────────────
// Remittance payloads
// ──────────────────────────────────────────────────

type RemittanceCreated struct {
	RemittanceID uint64        `json:"remittance_id"`
	Sender       types.Address `json:"sender"`
	Agent        types.Address `json:"agent"`
	Asset        string        `json:"asset"`
	Amount       types.Amount  `json:"amount"`
	Fee          types.Amount  `json:"fee"`
	Currency     string        `json:"currency"`
	Country      string        `json:"country"`
	Expiry       *time.Time    `json:"expiry,omitempty"`
}

func (RemittanceCreated) Topic() Topic { return TopicRemittanceCreated }

type RemittanceCompleted struct {
	RemittanceID uint64        `json:"remittance_id"`
	Sender       types.Address `json:"sender"`
	Agent        types.Address `json:"agent"`
	Asset        string        `json:"asset"`
	Payout       types.Amount  `json:"payout"`
	Fee          types.Amount  `json:"fee"`
	BatchID      id.BatchID    `json:"batch_id,omitempty"`
}

func (RemittanceCompleted) Topic() Topic { return TopicRemittanceCompleted }

type RemittanceCancelled struct {
	RemittanceID uint64        `json:"remittance_id"`
	Sender       types.Address `json:"sender"`
	Agent        types.Address `json:"agent"`
	Asset        string        `json:"asset"`
	Refund       types.Amount  `json:"refund"`
}

func (RemittanceCancelled) Topic() Topic { return TopicRemittanceCancelled }

// SettlementCompleted carries the values of the executed payout move.
type SettlementCompleted struct {
	Sender types.Address `json:"sender"`
	Agent  types.Address `json:"agent"`
	Asset  string        `json:"asset"`
	Payout types.Amount  `json:"payout"`
}

func (SettlementCompleted) Topic() Topic { return TopicSettlementCompleted }

// ──────────────────────────────────────────────────
// Batch payloads
// ──────────────────────────────────────────────────

type BatchStarted struct {
	BatchID id.BatchID `json:"batch_id"`
	Size    int        `json:"size"`
}

func (BatchStarted) Topic() Topic { return TopicBatchStarted }

// BatchCompleted reports a settled batch. Reason is reserved and 0 on
// success.
type BatchCompleted struct {
	BatchID id.BatchID `json:"batch_id"`
	Count   int        `json:"count"`
	Reason  uint32     `json:"reason"`
}

func (BatchCompleted) Topic() Topic { return TopicBatchCompleted }

// BatchFailed reports a rejected batch. Reason is the error code of the
// failure; Index and RemittanceID locate the offending entry.
type BatchFailed struct {
	BatchID      id.BatchID `json:"batch_id"`
	Reason       uint32     `json:"reason"`
	Index        int        `json:"index"`
	RemittanceID uint64     `json:"remittance_id"`
	Detail       string     `json:"detail,omitempty"`
}

func (BatchFailed) Topic() Topic { return TopicBatchFailed }
