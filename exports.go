package remit

import (
	"github.com/xraph/remit/remittance"
	"github.com/xraph/remit/settlement"
	"github.com/xraph/remit/types"
)

// Re-export common types for convenience so users don't have to import the
// types package.

// Amount is re-exported from types package.
type Amount = types.Amount

// Address is re-exported from types package.
type Address = types.Address

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export Amount constructors
var (
	NewAmount   = types.NewAmount
	ParseAmount = types.ParseAmount
	Zero        = types.Zero
	Sum         = types.Sum
)

// Remittance is re-exported from remittance package.
type Remittance = remittance.Remittance

// CreateParams is re-exported from remittance package.
type CreateParams = remittance.CreateParams

// MaxBatchSize is re-exported from settlement package.
const MaxBatchSize = settlement.MaxBatchSize

// Entries is re-exported from settlement package.
var Entries = settlement.Entries
