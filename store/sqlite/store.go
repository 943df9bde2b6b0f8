package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate" // registers the sqlite migration executor
	"github.com/xraph/grove/migrate"

	"github.com/xraph/remit"
	"github.com/xraph/remit/admin"
	"github.com/xraph/remit/limit"
	"github.com/xraph/remit/remittance"
	"github.com/xraph/remit/settlement"
	remitstore "github.com/xraph/remit/store"
	"github.com/xraph/remit/types"
)

// compile-time interface check
var _ remitstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("remit/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("remit/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Admin Store ====================

func (s *Store) GetState(ctx context.Context) (*admin.State, error) {
	m := new(stateModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", stateRowID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, remit.ErrStateNotFound
		}
		return nil, err
	}
	return fromStateModel(m)
}

func (s *Store) IsAgentRegistered(ctx context.Context, agent types.Address) (bool, error) {
	m := new(agentModel)
	err := s.sdb.NewSelect(m).
		Where("address = ?", string(agent)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return m.Registered, nil
}

func (s *Store) ListAgents(ctx context.Context) ([]*admin.Agent, error) {
	var models []agentModel
	err := s.sdb.NewSelect(&models).
		OrderExpr("address ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*admin.Agent, len(models))
	for i := range models {
		a, err := fromAgentModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = a
	}
	return result, nil
}

// ==================== Remittance Store ====================

func (s *Store) GetRemittance(ctx context.Context, rid uint64) (*remittance.Remittance, error) {
	m := new(remittanceModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", int64(rid)). //nolint:gosec // see remittanceModel
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, remit.ErrRemittanceNotFound
		}
		return nil, err
	}
	return fromRemittanceModel(m)
}

func (s *Store) ListRemittances(ctx context.Context, opts remittance.ListOpts) ([]*remittance.Remittance, error) {
	var models []remittanceModel
	q := s.sdb.NewSelect(&models)

	if opts.Sender != "" {
		q = q.Where("sender = ?", string(opts.Sender))
	}
	if opts.Agent != "" {
		q = q.Where("agent = ?", string(opts.Agent))
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*remittance.Remittance, len(models))
	for i := range models {
		r, err := fromRemittanceModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

// ==================== Settlement Store ====================

func (s *Store) HasSettlementMark(ctx context.Context, rid uint64) (bool, error) {
	_, err := s.GetSettlementMark(ctx, rid)
	if err != nil {
		if errors.Is(err, remit.ErrSettlementMarkNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) GetSettlementMark(ctx context.Context, rid uint64) (*settlement.Mark, error) {
	m := new(markModel)
	err := s.sdb.NewSelect(m).
		Where("remittance_id = ?", int64(rid)). //nolint:gosec // see remittanceModel
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, remit.ErrSettlementMarkNotFound
		}
		return nil, err
	}
	return fromMarkModel(m)
}

// ==================== Limit Store ====================

func (s *Store) GetDailyLimit(ctx context.Context, key limit.Key) (*limit.DailyLimit, error) {
	m := new(dailyLimitModel)
	err := s.sdb.NewSelect(m).
		Where("currency = ?", key.Currency).
		Where("country = ?", key.Country).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, remit.ErrDailyLimitNotFound
		}
		return nil, err
	}
	return fromDailyLimitModel(m)
}

func (s *Store) ListDailyLimits(ctx context.Context) ([]*limit.DailyLimit, error) {
	var models []dailyLimitModel
	err := s.sdb.NewSelect(&models).
		OrderExpr("currency ASC, country ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*limit.DailyLimit, len(models))
	for i := range models {
		l, err := fromDailyLimitModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = l
	}
	return result, nil
}

func (s *Store) ListTransferRecords(ctx context.Context, key limit.HistoryKey, since time.Time) ([]*limit.TransferRecord, error) {
	var models []transferRecordModel
	err := s.sdb.NewSelect(&models).
		Where("sender = ?", string(key.Sender)).
		Where("currency = ?", key.Currency).
		Where("country = ?", key.Country).
		Where("timestamp > ?", formatTime(since)).
		OrderExpr("timestamp ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*limit.TransferRecord, len(models))
	for i := range models {
		r, err := fromTransferRecordModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

func (s *Store) PruneTransferRecords(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.sdb.NewDelete((*transferRecordModel)(nil)).
		Where("timestamp <= ?", formatTime(before)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return rows, nil
}

// ==================== Apply ====================

// Apply writes the change set in one transaction, in dependency order:
// state, agents, remittances, marks, limits, transfer records.
func (s *Store) Apply(ctx context.Context, cs *remitstore.ChangeSet) error {
	if cs.Empty() {
		return nil
	}

	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("remit/sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if cs.State != nil {
		_, err := tx.NewInsert(toStateModel(cs.State)).
			OnConflict("(id) DO UPDATE").
			Set("admin = EXCLUDED.admin").
			Set("asset = EXCLUDED.asset").
			Set("fee_bps = EXCLUDED.fee_bps").
			Set("remittance_counter = EXCLUDED.remittance_counter").
			Set("accumulated_fees = EXCLUDED.accumulated_fees").
			Set("paused = EXCLUDED.paused").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("remit/sqlite: write state: %w", err)
		}
	}

	for _, a := range cs.Agents {
		_, err := tx.NewInsert(toAgentModel(a)).
			OnConflict("(address) DO UPDATE").
			Set("registered = EXCLUDED.registered").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("remit/sqlite: write agent %s: %w", a.Address, err)
		}
	}

	for _, r := range cs.Remittances {
		_, err := tx.NewInsert(toRemittanceModel(r)).
			OnConflict("(id) DO UPDATE").
			Set("status = EXCLUDED.status").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("remit/sqlite: write remittance %d: %w", r.ID, err)
		}
	}

	for _, m := range cs.Marks {
		if _, err := tx.NewInsert(toMarkModel(m)).Exec(ctx); err != nil {
			return fmt.Errorf("remit/sqlite: write settlement mark %d: %w", m.RemittanceID, err)
		}
	}

	for _, l := range cs.Limits {
		_, err := tx.NewInsert(toDailyLimitModel(l)).
			OnConflict("(currency, country) DO UPDATE").
			Set("cap = EXCLUDED.cap").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("remit/sqlite: write daily limit %s: %w", l.Key, err)
		}
	}

	if len(cs.Transfers) > 0 {
		models := make([]transferRecordModel, len(cs.Transfers))
		for i, r := range cs.Transfers {
			models[i] = *toTransferRecordModel(r)
		}
		if _, err := tx.NewInsert(&models).Exec(ctx); err != nil {
			return fmt.Errorf("remit/sqlite: write transfer records: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("remit/sqlite: commit: %w", err)
	}
	return nil
}

// ==================== Helpers ====================

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
