// Package remit provides a remittance settlement ledger for Go applications.
//
// Remit is designed as a library, not a service. It tracks money owed
// between a sender and a payout agent, takes a platform fee, and moves
// each remittance through pending → completed or pending → cancelled.
// It provides:
//
//   - Single and batched payout confirmation with all-or-nothing batches
//   - Duplicate-settlement protection independent of remittance status
//   - Optional expiry on every remittance
//   - Fee accounting in 128-bit checked integer arithmetic
//   - Rolling 24-hour spending caps per sender and corridor
//   - Pluggable storage (memory, SQLite, PostgreSQL, MongoDB)
//   - Domain events delivered to plugins (audit, metrics, RabbitMQ)
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/remit"
//	    "github.com/xraph/remit/custody"
//	    "github.com/xraph/remit/store/memory"
//	)
//
//	ledger := custody.NewMemory()
//	engine := remit.New(memory.New(),
//	    remit.WithTransferer(ledger),
//	)
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
//	err := engine.Initialize(ctx, "admin", "USDC", 250)
//
// # Authorization
//
// Operations that act on behalf of a principal (the admin, a sender, an
// agent) consult the engine's auth.Authorizer. The default authorizer
// accepts principals bound to the context:
//
//	ctx = auth.WithPrincipals(ctx, "alice")
//	id, err := engine.CreateRemittance(ctx, remit.CreateParams{
//	    Sender: "alice", Agent: "agent-1",
//	    Amount: remit.NewAmount(10000), Currency: "USD", Country: "PH",
//	})
//
// # Invocations
//
// Every mutating operation runs as one invocation: it holds the invocation
// lock, reads the clock once, stages its writes, value transfers and
// events, and applies all of them or none. Events reach plugins only after
// the invocation commits.
//
// # Errors
//
// Failures are sentinel *Error values with a numeric Kind:
//
//	if errors.Is(err, remit.ErrDuplicateSettlement) { ... }
//	code := remit.KindOf(err).Code()
//
// A rejected batch returns a *BatchError that matches
// ErrBatchValidationFailed and keeps the failing entry and cause.
package remit
