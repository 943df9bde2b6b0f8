// Package plugin provides an extensible plugin system for remit.
// Plugins hook into lifecycle and domain events to extend functionality.
// Events reach plugins only after the invocation that produced them has
// committed; a failing plugin never affects the ledger.
package plugin

import (
	"context"

	"github.com/xraph/remit/custody"
	"github.com/xraph/remit/event"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Event stream
// ──────────────────────────────────────────────────

// OnEvent receives every committed event envelope, in order.
type OnEvent interface {
	Plugin
	OnEvent(ctx context.Context, ev event.Event) error
}

// OnTransfer is called for every executed custody move, including
// compensating moves.
type OnTransfer interface {
	Plugin
	OnTransfer(ctx context.Context, m custody.Move) error
}

// OnInvocationFailed is called when an operation aborts.
type OnInvocationFailed interface {
	Plugin
	OnInvocationFailed(ctx context.Context, op string, err error) error
}

// ──────────────────────────────────────────────────
// Control plane hooks
// ──────────────────────────────────────────────────

// OnInitialized is called once the administrative state is set.
type OnInitialized interface {
	Plugin
	OnInitialized(ctx context.Context, e event.Initialized) error
}

// OnAgentChanged is called when an agent is registered or removed.
type OnAgentChanged interface {
	Plugin
	OnAgentChanged(ctx context.Context, e event.AgentChanged) error
}

// OnFeeUpdated is called when the platform fee changes.
type OnFeeUpdated interface {
	Plugin
	OnFeeUpdated(ctx context.Context, e event.FeeUpdated) error
}

// OnPauseChanged is called on pause and unpause.
type OnPauseChanged interface {
	Plugin
	OnPauseChanged(ctx context.Context, e event.PauseChanged) error
}

// OnFeesWithdrawn is called when accumulated fees are paid out.
type OnFeesWithdrawn interface {
	Plugin
	OnFeesWithdrawn(ctx context.Context, e event.FeesWithdrawn) error
}

// OnDailyLimitSet is called when a corridor cap is configured.
type OnDailyLimitSet interface {
	Plugin
	OnDailyLimitSet(ctx context.Context, e event.DailyLimitSet) error
}

// ──────────────────────────────────────────────────
// Remittance lifecycle hooks
// ──────────────────────────────────────────────────

// OnRemittanceCreated is called when a remittance is created.
type OnRemittanceCreated interface {
	Plugin
	OnRemittanceCreated(ctx context.Context, e event.RemittanceCreated) error
}

// OnRemittanceCompleted is called when a payout is confirmed.
type OnRemittanceCompleted interface {
	Plugin
	OnRemittanceCompleted(ctx context.Context, e event.RemittanceCompleted) error
}

// OnRemittanceCancelled is called when a remittance is cancelled.
type OnRemittanceCancelled interface {
	Plugin
	OnRemittanceCancelled(ctx context.Context, e event.RemittanceCancelled) error
}

// OnSettlementCompleted is called with the executed payout values.
type OnSettlementCompleted interface {
	Plugin
	OnSettlementCompleted(ctx context.Context, e event.SettlementCompleted) error
}

// ──────────────────────────────────────────────────
// Batch hooks
// ──────────────────────────────────────────────────

// OnBatchStarted is called before a batch is validated.
type OnBatchStarted interface {
	Plugin
	OnBatchStarted(ctx context.Context, e event.BatchStarted) error
}

// OnBatchCompleted is called when a batch has settled.
type OnBatchCompleted interface {
	Plugin
	OnBatchCompleted(ctx context.Context, e event.BatchCompleted) error
}

// OnBatchFailed is called when a batch is rejected.
type OnBatchFailed interface {
	Plugin
	OnBatchFailed(ctx context.Context, e event.BatchFailed) error
}
