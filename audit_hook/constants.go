package audithook

// Action constants for audit events.
const (
	// Control plane actions
	ActionInitialized     = "ledger.initialized"
	ActionAgentRegistered = "agent.registered"
	ActionAgentRemoved    = "agent.removed"
	ActionFeeUpdated      = "fee.updated"
	ActionPaused          = "ledger.paused"
	ActionUnpaused        = "ledger.unpaused"
	ActionFeesWithdrawn   = "fees.withdrawn"
	ActionDailyLimitSet   = "daily_limit.set"

	// Remittance actions
	ActionRemittanceCreated   = "remittance.created"
	ActionRemittanceCompleted = "remittance.completed"
	ActionRemittanceCancelled = "remittance.cancelled"

	// Batch actions
	ActionBatchStarted   = "batch.started"
	ActionBatchCompleted = "batch.completed"
	ActionBatchFailed    = "batch.failed"

	// Custody and failure actions
	ActionCustodyMove      = "custody.move"
	ActionInvocationFailed = "invocation.failed"
)

// Resource constants for audit events.
const (
	ResourceLedger     = "ledger"
	ResourceAgent      = "agent"
	ResourceRemittance = "remittance"
	ResourceBatch      = "batch"
	ResourceDailyLimit = "daily_limit"
	ResourceCustody    = "custody"
)

// Category constants for audit events.
const (
	CategoryAdmin      = "admin"
	CategoryRemittance = "remittance"
	CategorySettlement = "settlement"
	CategoryCompliance = "compliance"
	CategoryFunds      = "funds"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
