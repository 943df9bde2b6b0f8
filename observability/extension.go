// Package observability provides a metrics extension for remit that records
// domain event counts and settlement values through a MetricFactory.
package observability

import (
	"context"
	"strings"
	"sync"

	"github.com/xraph/remit"
	"github.com/xraph/remit/custody"
	"github.com/xraph/remit/event"
	"github.com/xraph/remit/plugin"
	"github.com/xraph/remit/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnAgentChanged        = (*MetricsExtension)(nil)
	_ plugin.OnFeeUpdated          = (*MetricsExtension)(nil)
	_ plugin.OnPauseChanged        = (*MetricsExtension)(nil)
	_ plugin.OnFeesWithdrawn       = (*MetricsExtension)(nil)
	_ plugin.OnDailyLimitSet       = (*MetricsExtension)(nil)
	_ plugin.OnRemittanceCreated   = (*MetricsExtension)(nil)
	_ plugin.OnRemittanceCompleted = (*MetricsExtension)(nil)
	_ plugin.OnRemittanceCancelled = (*MetricsExtension)(nil)
	_ plugin.OnBatchStarted        = (*MetricsExtension)(nil)
	_ plugin.OnBatchCompleted      = (*MetricsExtension)(nil)
	_ plugin.OnBatchFailed         = (*MetricsExtension)(nil)
	_ plugin.OnTransfer            = (*MetricsExtension)(nil)
	_ plugin.OnInvocationFailed    = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide remittance metrics.
// Register it as a remit plugin to track volumes, settlements and failures.
type MetricsExtension struct {
	factory MetricFactory

	// Control plane metrics
	AgentRegistered     Counter
	AgentRemoved        Counter
	FeeUpdated          Counter
	Paused              Counter
	Unpaused            Counter
	FeesWithdrawn       Counter
	FeesWithdrawnAmount Histogram
	DailyLimitSet       Counter

	// Remittance metrics
	RemittanceCreated   Counter
	RemittanceAmount    Histogram
	RemittanceCompleted Counter
	PayoutAmount        Histogram
	FeeAmount           Histogram
	RemittanceCancelled Counter

	// Batch metrics
	BatchStarted   Counter
	BatchCompleted Counter
	BatchFailed    Counter
	BatchSize      Histogram

	// Custody metrics
	CustodyMoves        Counter
	CustodyCompensation Counter

	// Error metrics
	InvocationFailures Counter

	mu      sync.Mutex
	byKind  map[remit.Kind]Counter
	byBatch map[remit.Kind]Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions, or NewPrometheusFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Control plane metrics
		AgentRegistered:     factory.Counter("remit.agent.registered"),
		AgentRemoved:        factory.Counter("remit.agent.removed"),
		FeeUpdated:          factory.Counter("remit.fee.updated"),
		Paused:              factory.Counter("remit.paused"),
		Unpaused:            factory.Counter("remit.unpaused"),
		FeesWithdrawn:       factory.Counter("remit.fees.withdrawn"),
		FeesWithdrawnAmount: factory.Histogram("remit.fees.withdrawn.amount"),
		DailyLimitSet:       factory.Counter("remit.daily_limit.set"),

		// Remittance metrics
		RemittanceCreated:   factory.Counter("remit.remittance.created"),
		RemittanceAmount:    factory.Histogram("remit.remittance.amount"),
		RemittanceCompleted: factory.Counter("remit.remittance.completed"),
		PayoutAmount:        factory.Histogram("remit.remittance.payout"),
		FeeAmount:           factory.Histogram("remit.remittance.fee"),
		RemittanceCancelled: factory.Counter("remit.remittance.cancelled"),

		// Batch metrics
		BatchStarted:   factory.Counter("remit.batch.started"),
		BatchCompleted: factory.Counter("remit.batch.completed"),
		BatchFailed:    factory.Counter("remit.batch.failed"),
		BatchSize:      factory.Histogram("remit.batch.size"),

		// Custody metrics
		CustodyMoves:        factory.Counter("remit.custody.moves"),
		CustodyCompensation: factory.Counter("remit.custody.compensations"),

		// Error metrics
		InvocationFailures: factory.Counter("remit.invocation.failures"),

		byKind:  make(map[remit.Kind]Counter),
		byBatch: make(map[remit.Kind]Counter),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Control plane hooks
// ──────────────────────────────────────────────────

// OnAgentChanged implements plugin.OnAgentChanged.
func (m *MetricsExtension) OnAgentChanged(_ context.Context, e event.AgentChanged) error {
	if e.Registered {
		m.AgentRegistered.Inc()
	} else {
		m.AgentRemoved.Inc()
	}
	return nil
}

// OnFeeUpdated implements plugin.OnFeeUpdated.
func (m *MetricsExtension) OnFeeUpdated(_ context.Context, _ event.FeeUpdated) error {
	m.FeeUpdated.Inc()
	return nil
}

// OnPauseChanged implements plugin.OnPauseChanged.
func (m *MetricsExtension) OnPauseChanged(_ context.Context, e event.PauseChanged) error {
	if e.Paused {
		m.Paused.Inc()
	} else {
		m.Unpaused.Inc()
	}
	return nil
}

// OnFeesWithdrawn implements plugin.OnFeesWithdrawn.
func (m *MetricsExtension) OnFeesWithdrawn(_ context.Context, e event.FeesWithdrawn) error {
	m.FeesWithdrawn.Inc()
	m.FeesWithdrawnAmount.Observe(toFloat(e.Amount))
	return nil
}

// OnDailyLimitSet implements plugin.OnDailyLimitSet.
func (m *MetricsExtension) OnDailyLimitSet(_ context.Context, _ event.DailyLimitSet) error {
	m.DailyLimitSet.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Remittance lifecycle hooks
// ──────────────────────────────────────────────────

// OnRemittanceCreated implements plugin.OnRemittanceCreated.
func (m *MetricsExtension) OnRemittanceCreated(_ context.Context, e event.RemittanceCreated) error {
	m.RemittanceCreated.Inc()
	m.RemittanceAmount.Observe(toFloat(e.Amount))
	return nil
}

// OnRemittanceCompleted implements plugin.OnRemittanceCompleted.
func (m *MetricsExtension) OnRemittanceCompleted(_ context.Context, e event.RemittanceCompleted) error {
	m.RemittanceCompleted.Inc()
	m.PayoutAmount.Observe(toFloat(e.Payout))
	m.FeeAmount.Observe(toFloat(e.Fee))
	return nil
}

// OnRemittanceCancelled implements plugin.OnRemittanceCancelled.
func (m *MetricsExtension) OnRemittanceCancelled(_ context.Context, _ event.RemittanceCancelled) error {
	m.RemittanceCancelled.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Batch hooks
// ──────────────────────────────────────────────────

// OnBatchStarted implements plugin.OnBatchStarted.
func (m *MetricsExtension) OnBatchStarted(_ context.Context, e event.BatchStarted) error {
	m.BatchStarted.Inc()
	m.BatchSize.Observe(float64(e.Size))
	return nil
}

// OnBatchCompleted implements plugin.OnBatchCompleted.
func (m *MetricsExtension) OnBatchCompleted(_ context.Context, _ event.BatchCompleted) error {
	m.BatchCompleted.Inc()
	return nil
}

// OnBatchFailed implements plugin.OnBatchFailed.
func (m *MetricsExtension) OnBatchFailed(_ context.Context, e event.BatchFailed) error {
	m.BatchFailed.Inc()
	m.kindCounter(m.byBatch, "remit.batch.failed.", remit.Kind(e.Reason)).Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Custody and failure hooks
// ──────────────────────────────────────────────────

// OnTransfer implements plugin.OnTransfer.
func (m *MetricsExtension) OnTransfer(_ context.Context, mv custody.Move) error {
	if mv.Reason == custody.ReasonCompensation {
		m.CustodyCompensation.Inc()
		return nil
	}
	m.CustodyMoves.Inc()
	return nil
}

// OnInvocationFailed implements plugin.OnInvocationFailed.
func (m *MetricsExtension) OnInvocationFailed(_ context.Context, _ string, err error) error {
	m.InvocationFailures.Inc()
	m.kindCounter(m.byKind, "remit.invocation.failures.", remit.KindOf(err)).Inc()
	return nil
}

// kindCounter returns the per-kind counter under prefix, creating it on
// first use.
func (m *MetricsExtension) kindCounter(set map[remit.Kind]Counter, prefix string, kind remit.Kind) Counter {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := set[kind]
	if !ok {
		c = m.factory.Counter(prefix + strings.ToLower(kind.String()))
		set[kind] = c
	}
	return c
}

// toFloat converts an amount for histogram observation. Precision loss
// above 2^53 is acceptable for metrics.
func toFloat(a types.Amount) float64 {
	if v, ok := a.Int64(); ok {
		return float64(v)
	}
	f, _ := a.BigInt().Float64()
	return f
}
