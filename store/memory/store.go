// Package memory provides an in-memory Store for tests and single-process
// deployments. Apply is atomic under the store mutex.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/xraph/remit"
	"github.com/xraph/remit/admin"
	"github.com/xraph/remit/limit"
	"github.com/xraph/remit/remittance"
	"github.com/xraph/remit/settlement"
	"github.com/xraph/remit/store"
	"github.com/xraph/remit/types"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	state       *admin.State
	agents      map[types.Address]*admin.Agent
	remittances map[uint64]*remittance.Remittance
	marks       map[uint64]*settlement.Mark
	limits      map[limit.Key]*limit.DailyLimit

	// Transfer history, per sender and corridor, oldest first.
	transfers map[limit.HistoryKey][]*limit.TransferRecord
}

func New() *Store {
	return &Store{
		agents:      make(map[types.Address]*admin.Agent),
		remittances: make(map[uint64]*remittance.Remittance),
		marks:       make(map[uint64]*settlement.Mark),
		limits:      make(map[limit.Key]*limit.DailyLimit),
		transfers:   make(map[limit.HistoryKey][]*limit.TransferRecord),
	}
}

// ──────────────────────────────────────────────────
// Admin store
// ──────────────────────────────────────────────────

func (s *Store) GetState(_ context.Context) (*admin.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == nil {
		return nil, remit.ErrStateNotFound
	}
	return s.state.Clone(), nil
}

func (s *Store) IsAgentRegistered(_ context.Context, agent types.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agents[agent]
	return ok && a.Registered, nil
}

func (s *Store) ListAgents(_ context.Context) ([]*admin.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*admin.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		c := *a
		result = append(result, &c)
	}
	slices.SortFunc(result, func(a, b *admin.Agent) int {
		return cmp.Compare(string(a.Address), string(b.Address))
	})
	return result, nil
}

// ──────────────────────────────────────────────────
// Remittance store
// ──────────────────────────────────────────────────

func (s *Store) GetRemittance(_ context.Context, rid uint64) (*remittance.Remittance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.remittances[rid]; ok {
		return r.Clone(), nil
	}
	return nil, remit.ErrRemittanceNotFound
}

func (s *Store) ListRemittances(_ context.Context, opts remittance.ListOpts) ([]*remittance.Remittance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*remittance.Remittance, 0)
	for _, r := range s.remittances {
		if opts.Matches(r) {
			result = append(result, r.Clone())
		}
	}
	slices.SortFunc(result, func(a, b *remittance.Remittance) int {
		return cmp.Compare(a.ID, b.ID)
	})

	// Apply limit/offset
	start := opts.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

// ──────────────────────────────────────────────────
// Settlement store
// ──────────────────────────────────────────────────

func (s *Store) HasSettlementMark(_ context.Context, rid uint64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.marks[rid]
	return ok, nil
}

func (s *Store) GetSettlementMark(_ context.Context, rid uint64) (*settlement.Mark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if m, ok := s.marks[rid]; ok {
		c := *m
		return &c, nil
	}
	return nil, remit.ErrSettlementMarkNotFound
}

// ──────────────────────────────────────────────────
// Limit store
// ──────────────────────────────────────────────────

func (s *Store) GetDailyLimit(_ context.Context, key limit.Key) (*limit.DailyLimit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if l, ok := s.limits[key]; ok {
		c := *l
		return &c, nil
	}
	return nil, remit.ErrDailyLimitNotFound
}

func (s *Store) ListDailyLimits(_ context.Context) ([]*limit.DailyLimit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*limit.DailyLimit, 0, len(s.limits))
	for _, l := range s.limits {
		c := *l
		result = append(result, &c)
	}
	slices.SortFunc(result, func(a, b *limit.DailyLimit) int {
		return cmp.Compare(a.Key.String(), b.Key.String())
	})
	return result, nil
}

func (s *Store) ListTransferRecords(_ context.Context, key limit.HistoryKey, since time.Time) ([]*limit.TransferRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*limit.TransferRecord, 0)
	for _, r := range s.transfers[key] {
		if r.Timestamp.After(since) {
			c := *r
			result = append(result, &c)
		}
	}
	return result, nil
}

func (s *Store) PruneTransferRecords(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pruned int64
	for key, records := range s.transfers {
		kept := records[:0]
		for _, r := range records {
			if r.Timestamp.After(before) {
				kept = append(kept, r)
			} else {
				pruned++
			}
		}
		if len(kept) == 0 {
			delete(s.transfers, key)
			continue
		}
		s.transfers[key] = kept
	}
	return pruned, nil
}

// ──────────────────────────────────────────────────
// Writes
// ──────────────────────────────────────────────────

// Apply implements store.Store. Every record is copied so callers cannot
// mutate stored state afterwards.
func (s *Store) Apply(_ context.Context, cs *store.ChangeSet) error {
	if cs.Empty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cs.State != nil {
		s.state = cs.State.Clone()
	}
	for _, a := range cs.Agents {
		c := *a
		s.agents[a.Address] = &c
	}
	for _, r := range cs.Remittances {
		s.remittances[r.ID] = r.Clone()
	}
	for _, m := range cs.Marks {
		c := *m
		s.marks[m.RemittanceID] = &c
	}
	for _, l := range cs.Limits {
		c := *l
		s.limits[l.Key] = &c
	}
	for _, r := range cs.Transfers {
		c := *r
		key := r.HistoryKey()
		s.transfers[key] = append(s.transfers[key], &c)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Core methods
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Close() error { return nil }
