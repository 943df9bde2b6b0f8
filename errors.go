package remit

import (
	"errors"
	"fmt"

	"github.com/xraph/remit/lock"
	"github.com/xraph/remit/types"
)

// Kind classifies a remit error. The numeric value is the error code
// reported to callers and carried by batch-failed events.
type Kind uint32

const (
	KindUnknown               Kind = 0
	KindAlreadyInitialized    Kind = 1
	KindNotInitialized        Kind = 2
	KindInvalidAmount         Kind = 3
	KindInvalidFeeBps         Kind = 4
	KindAgentNotRegistered    Kind = 5
	KindRemittanceNotFound    Kind = 6
	KindInvalidStatus         Kind = 7
	KindOverflow              Kind = 8
	KindNoFeesToWithdraw      Kind = 9
	KindInvalidAddress        Kind = 10
	KindSettlementExpired     Kind = 11
	KindDuplicateSettlement   Kind = 12
	KindContractPaused        Kind = 13
	KindEmptyBatchSettlement  Kind = 14
	KindBatchTooLarge         Kind = 15
	KindBatchValidationFailed Kind = 16
	KindDailyLimitExceeded    Kind = 17
	KindUnauthorized          Kind = 18
	KindTransferFailed        Kind = 19
)

var kindNames = map[Kind]string{
	KindUnknown:               "Unknown",
	KindAlreadyInitialized:    "AlreadyInitialized",
	KindNotInitialized:        "NotInitialized",
	KindInvalidAmount:         "InvalidAmount",
	KindInvalidFeeBps:         "InvalidFeeBps",
	KindAgentNotRegistered:    "AgentNotRegistered",
	KindRemittanceNotFound:    "RemittanceNotFound",
	KindInvalidStatus:         "InvalidStatus",
	KindOverflow:              "Overflow",
	KindNoFeesToWithdraw:      "NoFeesToWithdraw",
	KindInvalidAddress:        "InvalidAddress",
	KindSettlementExpired:     "SettlementExpired",
	KindDuplicateSettlement:   "DuplicateSettlement",
	KindContractPaused:        "ContractPaused",
	KindEmptyBatchSettlement:  "EmptyBatchSettlement",
	KindBatchTooLarge:         "BatchTooLarge",
	KindBatchValidationFailed: "BatchValidationFailed",
	KindDailyLimitExceeded:    "DailyLimitExceeded",
	KindUnauthorized:          "Unauthorized",
	KindTransferFailed:        "TransferFailed",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", uint32(k))
}

// Code returns the numeric error code.
func (k Kind) Code() uint32 { return uint32(k) }

// Error is a remit error of a known Kind. The package-level sentinels are
// the only values; compare them with errors.Is.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string { return "remit: " + e.msg }

// Code returns the numeric error code of the error's kind.
func (e *Error) Code() uint32 { return e.Kind.Code() }

func newError(k Kind, msg string) *Error { return &Error{Kind: k, msg: msg} }

// Sentinel errors, one per kind.
var (
	// Control plane
	ErrAlreadyInitialized = newError(KindAlreadyInitialized, "already initialized")
	ErrNotInitialized     = newError(KindNotInitialized, "not initialized")
	ErrInvalidFeeBps      = newError(KindInvalidFeeBps, "fee bps must be within [0, 10000]")
	ErrNoFeesToWithdraw   = newError(KindNoFeesToWithdraw, "no fees to withdraw")
	ErrContractPaused     = newError(KindContractPaused, "settlement is paused")
	ErrUnauthorized       = newError(KindUnauthorized, "unauthorized")

	// Remittance
	ErrInvalidAmount       = newError(KindInvalidAmount, "invalid amount")
	ErrAgentNotRegistered  = newError(KindAgentNotRegistered, "agent not registered")
	ErrRemittanceNotFound  = newError(KindRemittanceNotFound, "remittance not found")
	ErrInvalidStatus       = newError(KindInvalidStatus, "invalid remittance status")
	ErrInvalidAddress      = newError(KindInvalidAddress, "invalid address")
	ErrOverflow            = newError(KindOverflow, "arithmetic overflow")
	ErrDailyLimitExceeded  = newError(KindDailyLimitExceeded, "daily limit exceeded")
	ErrTransferFailed      = newError(KindTransferFailed, "value transfer failed")
	ErrSettlementExpired   = newError(KindSettlementExpired, "settlement expired")
	ErrDuplicateSettlement = newError(KindDuplicateSettlement, "remittance already settled")

	// Batch
	ErrEmptyBatchSettlement  = newError(KindEmptyBatchSettlement, "empty batch")
	ErrBatchTooLarge         = newError(KindBatchTooLarge, "batch too large")
	ErrBatchValidationFailed = newError(KindBatchValidationFailed, "batch validation failed")
)

// Store-level sentinels. They never leave an operation unmapped except on
// reads where absence is the answer.
var (
	ErrStateNotFound          = errors.New("remit: administrative state not found")
	ErrSettlementMarkNotFound = errors.New("remit: settlement mark not found")
	ErrDailyLimitNotFound     = errors.New("remit: daily limit not found")
)

// KindOf returns the kind of err, or KindUnknown if err is not a remit
// error. A BatchError reports KindBatchValidationFailed.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// BatchError is returned by BatchSettle when an entry fails validation.
// It matches ErrBatchValidationFailed; Reason keeps the underlying cause.
type BatchError struct {
	Index        int
	RemittanceID uint64
	Reason       error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("remit: batch validation failed at entry %d (remittance %d): %v",
		e.Index, e.RemittanceID, e.Reason)
}

func (e *BatchError) Unwrap() []error {
	return []error{ErrBatchValidationFailed, e.Reason}
}

// ReasonKind returns the kind of the underlying cause.
func (e *BatchError) ReasonKind() Kind { return KindOf(e.Reason) }

// ValidationError represents a validation failure with details. Err, when
// set, is the sentinel the failure maps to.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("remit: validation failed for %s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error { return e.Err }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "remit: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("remit: %d errors occurred", len(e.Errors))
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

func (e MultiError) Unwrap() []error { return e.Errors }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRemittanceNotFound) ||
		errors.Is(err, ErrStateNotFound) ||
		errors.Is(err, ErrSettlementMarkNotFound) ||
		errors.Is(err, ErrDailyLimitNotFound)
}

// IsRetryable returns true if the error is temporary and the operation can
// be retried as-is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransferFailed) ||
		errors.Is(err, lock.ErrNotAcquired)
}

// mapArith converts amount arithmetic failures into domain errors.
func mapArith(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, types.ErrOverflow):
		return ErrOverflow
	case errors.Is(err, types.ErrNotInteger):
		return ErrInvalidAmount
	default:
		return err
	}
}

// invalidAddress builds the validation error for a malformed principal.
func invalidAddress(field string, err error) error {
	return ValidationError{Field: field, Message: err.Error(), Err: ErrInvalidAddress}
}
