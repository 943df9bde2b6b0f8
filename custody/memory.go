package custody

import (
	"context"
	"fmt"
	"sync"

	"github.com/xraph/remit/types"
)

// Memory is an in-process asset ledger. Balances are kept per asset per
// principal and never go negative.
type Memory struct {
	mu       sync.Mutex
	balances map[string]map[types.Address]types.Amount
	history  []Move
}

// NewMemory returns an empty ledger.
func NewMemory() *Memory {
	return &Memory{balances: make(map[string]map[types.Address]types.Amount)}
}

// Mint credits amount of asset to a principal out of thin air.
func (m *Memory) Mint(asset string, to types.Address, amount types.Amount) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidMove)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := m.balanceLocked(asset, to).CheckedAdd(amount)
	if err != nil {
		return err
	}
	m.setLocked(asset, to, next)
	return nil
}

// Balance returns the current balance of a principal.
func (m *Memory) Balance(asset string, who types.Address) types.Amount {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balanceLocked(asset, who)
}

// Transfer implements Transferer.
func (m *Memory) Transfer(ctx context.Context, mv Move) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := mv.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.balanceLocked(mv.Asset, mv.From)
	if from.LessThan(mv.Amount) {
		return fmt.Errorf("%w: %s holds %s %s, needs %s",
			ErrInsufficientFunds, mv.From, from, mv.Asset, mv.Amount)
	}
	debited, err := from.CheckedSub(mv.Amount)
	if err != nil {
		return err
	}
	credited, err := m.balanceLocked(mv.Asset, mv.To).CheckedAdd(mv.Amount)
	if err != nil {
		return err
	}

	m.setLocked(mv.Asset, mv.From, debited)
	m.setLocked(mv.Asset, mv.To, credited)
	m.history = append(m.history, mv)
	return nil
}

// History returns the executed moves in order.
func (m *Memory) History() []Move {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Move, len(m.history))
	copy(out, m.history)
	return out
}

func (m *Memory) balanceLocked(asset string, who types.Address) types.Amount {
	return m.balances[asset][who]
}

func (m *Memory) setLocked(asset string, who types.Address, v types.Amount) {
	b, ok := m.balances[asset]
	if !ok {
		b = make(map[types.Address]types.Amount)
		m.balances[asset] = b
	}
	b[who] = v
}
