// Package audithook bridges remit domain events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import an
// audit backend directly. Callers inject a RecorderFunc adapter at wiring
// time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/xraph/remit"
	"github.com/xraph/remit/custody"
	"github.com/xraph/remit/event"
	"github.com/xraph/remit/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnInitialized         = (*Extension)(nil)
	_ plugin.OnAgentChanged        = (*Extension)(nil)
	_ plugin.OnFeeUpdated          = (*Extension)(nil)
	_ plugin.OnPauseChanged        = (*Extension)(nil)
	_ plugin.OnFeesWithdrawn       = (*Extension)(nil)
	_ plugin.OnDailyLimitSet       = (*Extension)(nil)
	_ plugin.OnRemittanceCreated   = (*Extension)(nil)
	_ plugin.OnRemittanceCompleted = (*Extension)(nil)
	_ plugin.OnRemittanceCancelled = (*Extension)(nil)
	_ plugin.OnBatchStarted        = (*Extension)(nil)
	_ plugin.OnBatchCompleted      = (*Extension)(nil)
	_ plugin.OnBatchFailed         = (*Extension)(nil)
	_ plugin.OnTransfer            = (*Extension)(nil)
	_ plugin.OnInvocationFailed    = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges remit domain events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	moves    bool
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Control plane hooks
// ──────────────────────────────────────────────────

// OnInitialized implements plugin.OnInitialized.
func (e *Extension) OnInitialized(ctx context.Context, ev event.Initialized) error {
	return e.record(ctx, ActionInitialized, SeverityInfo, OutcomeSuccess,
		ResourceLedger, ev.Asset, CategoryAdmin, nil,
		"admin", ev.Admin.String(),
		"fee_bps", ev.FeeBps,
	)
}

// OnAgentChanged implements plugin.OnAgentChanged.
func (e *Extension) OnAgentChanged(ctx context.Context, ev event.AgentChanged) error {
	action := ActionAgentRemoved
	if ev.Registered {
		action = ActionAgentRegistered
	}
	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceAgent, ev.Agent.String(), CategoryAdmin, nil,
		"admin", ev.Admin.String(),
	)
}

// OnFeeUpdated implements plugin.OnFeeUpdated.
func (e *Extension) OnFeeUpdated(ctx context.Context, ev event.FeeUpdated) error {
	return e.record(ctx, ActionFeeUpdated, SeverityInfo, OutcomeSuccess,
		ResourceLedger, "", CategoryAdmin, nil,
		"admin", ev.Admin.String(),
		"old_bps", ev.OldBps,
		"new_bps", ev.NewBps,
	)
}

// OnPauseChanged implements plugin.OnPauseChanged.
func (e *Extension) OnPauseChanged(ctx context.Context, ev event.PauseChanged) error {
	action, severity := ActionUnpaused, SeverityInfo
	if ev.Paused {
		action, severity = ActionPaused, SeverityWarning
	}
	return e.record(ctx, action, severity, OutcomeSuccess,
		ResourceLedger, "", CategoryAdmin, nil,
		"admin", ev.Admin.String(),
	)
}

// OnFeesWithdrawn implements plugin.OnFeesWithdrawn.
func (e *Extension) OnFeesWithdrawn(ctx context.Context, ev event.FeesWithdrawn) error {
	return e.record(ctx, ActionFeesWithdrawn, SeverityInfo, OutcomeSuccess,
		ResourceLedger, "", CategoryFunds, nil,
		"admin", ev.Admin.String(),
		"to", ev.To.String(),
		"asset", ev.Asset,
		"amount", ev.Amount.String(),
	)
}

// OnDailyLimitSet implements plugin.OnDailyLimitSet.
func (e *Extension) OnDailyLimitSet(ctx context.Context, ev event.DailyLimitSet) error {
	return e.record(ctx, ActionDailyLimitSet, SeverityInfo, OutcomeSuccess,
		ResourceDailyLimit, ev.Currency+":"+ev.Country, CategoryCompliance, nil,
		"admin", ev.Admin.String(),
		"limit", ev.Limit.String(),
	)
}

// ──────────────────────────────────────────────────
// Remittance lifecycle hooks
// ──────────────────────────────────────────────────

// OnRemittanceCreated implements plugin.OnRemittanceCreated.
func (e *Extension) OnRemittanceCreated(ctx context.Context, ev event.RemittanceCreated) error {
	return e.record(ctx, ActionRemittanceCreated, SeverityInfo, OutcomeSuccess,
		ResourceRemittance, formatID(ev.RemittanceID), CategoryRemittance, nil,
		"sender", ev.Sender.String(),
		"agent", ev.Agent.String(),
		"amount", ev.Amount.String(),
		"fee", ev.Fee.String(),
		"currency", ev.Currency,
		"country", ev.Country,
	)
}

// OnRemittanceCompleted implements plugin.OnRemittanceCompleted.
func (e *Extension) OnRemittanceCompleted(ctx context.Context, ev event.RemittanceCompleted) error {
	kv := []any{
		"sender", ev.Sender.String(),
		"agent", ev.Agent.String(),
		"payout", ev.Payout.String(),
		"fee", ev.Fee.String(),
	}
	if !ev.BatchID.IsNil() {
		kv = append(kv, "batch_id", ev.BatchID.String())
	}
	return e.record(ctx, ActionRemittanceCompleted, SeverityInfo, OutcomeSuccess,
		ResourceRemittance, formatID(ev.RemittanceID), CategorySettlement, nil,
		kv...,
	)
}

// OnRemittanceCancelled implements plugin.OnRemittanceCancelled.
func (e *Extension) OnRemittanceCancelled(ctx context.Context, ev event.RemittanceCancelled) error {
	return e.record(ctx, ActionRemittanceCancelled, SeverityInfo, OutcomeSuccess,
		ResourceRemittance, formatID(ev.RemittanceID), CategoryRemittance, nil,
		"sender", ev.Sender.String(),
		"refund", ev.Refund.String(),
	)
}

// ──────────────────────────────────────────────────
// Batch hooks
// ──────────────────────────────────────────────────

// OnBatchStarted implements plugin.OnBatchStarted.
func (e *Extension) OnBatchStarted(ctx context.Context, ev event.BatchStarted) error {
	return e.record(ctx, ActionBatchStarted, SeverityInfo, OutcomeSuccess,
		ResourceBatch, ev.BatchID.String(), CategorySettlement, nil,
		"size", ev.Size,
	)
}

// OnBatchCompleted implements plugin.OnBatchCompleted.
func (e *Extension) OnBatchCompleted(ctx context.Context, ev event.BatchCompleted) error {
	return e.record(ctx, ActionBatchCompleted, SeverityInfo, OutcomeSuccess,
		ResourceBatch, ev.BatchID.String(), CategorySettlement, nil,
		"count", ev.Count,
	)
}

// OnBatchFailed implements plugin.OnBatchFailed.
func (e *Extension) OnBatchFailed(ctx context.Context, ev event.BatchFailed) error {
	kind := remit.Kind(ev.Reason)
	return e.record(ctx, ActionBatchFailed, SeverityError, OutcomeFailure,
		ResourceBatch, ev.BatchID.String(), CategorySettlement, nil,
		"reason", kind.String(),
		"code", ev.Reason,
		"index", ev.Index,
		"remittance_id", ev.RemittanceID,
		"detail", ev.Detail,
	)
}

// ──────────────────────────────────────────────────
// Custody and failure hooks
// ──────────────────────────────────────────────────

// OnTransfer implements plugin.OnTransfer. Moves are recorded only with
// WithCustodyMoves; compensating moves are always recorded.
func (e *Extension) OnTransfer(ctx context.Context, m custody.Move) error {
	compensation := m.Reason == custody.ReasonCompensation
	if !e.moves && !compensation {
		return nil
	}
	severity := SeverityInfo
	if compensation {
		severity = SeverityCritical
	}
	return e.record(ctx, ActionCustodyMove, severity, OutcomeSuccess,
		ResourceCustody, m.ID.String(), CategoryFunds, nil,
		"asset", m.Asset,
		"from", m.From.String(),
		"to", m.To.String(),
		"amount", m.Amount.String(),
		"reason", string(m.Reason),
	)
}

// OnInvocationFailed implements plugin.OnInvocationFailed.
func (e *Extension) OnInvocationFailed(ctx context.Context, op string, err error) error {
	kind := remit.KindOf(err)
	severity := SeverityWarning
	if kind == remit.KindUnknown || kind == remit.KindTransferFailed {
		severity = SeverityError
	}
	return e.record(ctx, ActionInvocationFailed, severity, OutcomeFailure,
		ResourceLedger, op, CategoryAdmin, err,
		"code", kind.Code(),
		"kind", kind.String(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}

func formatID(v uint64) string {
	return strconv.FormatUint(v, 10)
}
