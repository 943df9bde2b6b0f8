// Package custody is the value transfer collaborator. Remit never holds
// funds itself: every balance change is a Move executed by a Transferer,
// which must apply it atomically or not at all.
package custody

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/remit/id"
	"github.com/xraph/remit/types"
)

var (
	// ErrInsufficientFunds is returned when the source balance cannot cover
	// a move.
	ErrInsufficientFunds = errors.New("custody: insufficient funds")

	// ErrInvalidMove is returned for malformed moves.
	ErrInvalidMove = errors.New("custody: invalid move")
)

// Reason labels why a move was made.
type Reason string

const (
	ReasonDeposit      Reason = "deposit"
	ReasonRefund       Reason = "refund"
	ReasonPayout       Reason = "payout"
	ReasonFeeWithdraw  Reason = "fee_withdrawal"
	ReasonCompensation Reason = "compensation"
)

// Move transfers Amount of Asset from one principal to another.
type Move struct {
	ID     id.MoveID     `json:"id"`
	Asset  string        `json:"asset"`
	From   types.Address `json:"from"`
	To     types.Address `json:"to"`
	Amount types.Amount  `json:"amount"`
	Reason Reason        `json:"reason"`
}

// NewMove builds a move with a fresh identifier.
func NewMove(asset string, from, to types.Address, amount types.Amount, reason Reason) Move {
	return Move{
		ID:     id.NewMoveID(),
		Asset:  asset,
		From:   from,
		To:     to,
		Amount: amount,
		Reason: reason,
	}
}

// Reverse returns the compensating move that undoes m.
func (m Move) Reverse() Move {
	return Move{
		ID:     id.NewMoveID(),
		Asset:  m.Asset,
		From:   m.To,
		To:     m.From,
		Amount: m.Amount,
		Reason: ReasonCompensation,
	}
}

// Validate checks the structural soundness of a move.
func (m Move) Validate() error {
	switch {
	case m.Asset == "":
		return fmt.Errorf("%w: missing asset", ErrInvalidMove)
	case m.From.IsZero() || m.To.IsZero():
		return fmt.Errorf("%w: missing principal", ErrInvalidMove)
	case m.From == m.To:
		return fmt.Errorf("%w: source equals destination", ErrInvalidMove)
	case !m.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be positive", ErrInvalidMove)
	}
	return nil
}

// Transferer executes moves.
type Transferer interface {
	Transfer(ctx context.Context, m Move) error
}

// TransfererFunc adapts a function to the Transferer interface.
type TransfererFunc func(ctx context.Context, m Move) error

// Transfer implements Transferer.
func (f TransfererFunc) Transfer(ctx context.Context, m Move) error { return f(ctx, m) }
