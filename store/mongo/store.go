package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/remit"
	"github.com/xraph/remit/admin"
	"github.com/xraph/remit/limit"
	"github.com/xraph/remit/remittance"
	"github.com/xraph/remit/settlement"
	remitstore "github.com/xraph/remit/store"
	"github.com/xraph/remit/types"
)

// Collection name constants.
const (
	colState       = "remit_state"
	colAgents      = "remit_agents"
	colRemittances = "remit_remittances"
	colMarks       = "remit_settlement_marks"
	colLimits      = "remit_daily_limits"
	colTransfers   = "remit_transfer_records"
)

// compile-time interface check
var _ remitstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db         *grove.DB
	mdb        *mongodriver.MongoDB
	standalone bool
}

// Option configures a Store.
type Option func(*Store)

// WithStandalone makes Apply write document by document instead of in a
// session transaction. Standalone servers reject multi-document
// transactions; a failed Apply can then leave earlier writes behind.
func WithStandalone() Option {
	return func(s *Store) { s.standalone = true }
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB, opts ...Option) *Store {
	s := &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Standalone reports whether Apply writes without a transaction.
func (s *Store) Standalone() bool { return s.standalone }

// Migrate creates indexes for all remit collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("remit/mongo: migrate %s indexes: %w", col, err)
		}
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
	var m stateModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": stateDocID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, remit.ErrStateNotFound
		}
		return nil, fmt.Errorf("remit/mongo: get state: %w", err)
	}
	return fromStateModel(&m)
}

func (s *Store) IsAgentRegistered(ctx context.Context, agent types.Address) (bool, error) {
	var m agentModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": string(agent)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return false, nil
		}
		return false, fmt.Errorf("remit/mongo: get agent: %w", err)
	}
	return m.Registered, nil
}

func (s *Store) ListAgents(ctx context.Context) ([]*admin.Agent, error) {
	var models []agentModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("remit/mongo: list agents: %w", err)
	}

	result := make([]*admin.Agent, len(models))
	for i := range models {
		result[i] = fromAgentModel(&models[i])
	}
	return result, nil
}

// ==================== Remittance Store ====================

func (s *Store) GetRemittance(ctx context.Context, rid uint64) (*remittance.Remittance, error) {
	var m remittanceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": int64(rid)}). //nolint:gosec // see remittanceModel
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, remit.ErrRemittanceNotFound
		}
		return nil, fmt.Errorf("remit/mongo: get remittance: %w", err)
	}
	return fromRemittanceModel(&m)
}

func (s *Store) ListRemittances(ctx context.Context, opts remittance.ListOpts) ([]*remittance.Remittance, error) {
	var models []remittanceModel

	filter := bson.M{}
	if opts.Sender != "" {
		filter["sender"] = string(opts.Sender)
	}
	if opts.Agent != "" {
		filter["agent"] = string(opts.Agent)
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("remit/mongo: list remittances: %w", err)
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
	var m markModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": int64(rid)}). //nolint:gosec // see remittanceModel
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, remit.ErrSettlementMarkNotFound
		}
		return nil, fmt.Errorf("remit/mongo: get settlement mark: %w", err)
	}
	return fromMarkModel(&m)
}

// ==================== Limit Store ====================

func (s *Store) GetDailyLimit(ctx context.Context, key limit.Key) (*limit.DailyLimit, error) {
	var m dailyLimitModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": key.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, remit.ErrDailyLimitNotFound
		}
		return nil, fmt.Errorf("remit/mongo: get daily limit: %w", err)
	}
	return fromDailyLimitModel(&m)
}

func (s *Store) ListDailyLimits(ctx context.Context) ([]*limit.DailyLimit, error) {
	var models []dailyLimitModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("remit/mongo: list daily limits: %w", err)
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
	err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"sender":    string(key.Sender),
			"currency":  key.Currency,
			"country":   key.Country,
			"timestamp": bson.M{"$gt": since},
		}).
		Sort(bson.D{{Key: "timestamp", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("remit/mongo: list transfer records: %w", err)
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
	res, err := s.mdb.NewDelete((*transferRecordModel)(nil)).
		Filter(bson.M{"timestamp": bson.M{"$lte": before}}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("remit/mongo: prune transfer records: %w", err)
	}
	return res.DeletedCount(), nil
}

// ==================== Apply ====================

// writer is the query surface shared by the database and a transaction.
type writer interface {
	NewInsert(model any) *mongodriver.InsertQuery
	NewUpdate(model any) *mongodriver.UpdateQuery
}

// Apply writes the change set inside a session transaction, or document by
// document with WithStandalone.
func (s *Store) Apply(ctx context.Context, cs *remitstore.ChangeSet) error {
	if cs.Empty() {
		return nil
	}
	if s.standalone {
		return write(ctx, s.mdb, cs)
	}

	raw, err := s.mdb.GroveTx(ctx, 0, false)
	if err != nil {
		return fmt.Errorf("remit/mongo: begin: %w", err)
	}
	tx, ok := raw.(*mongodriver.MongoTx)
	if !ok {
		return fmt.Errorf("remit/mongo: begin: unexpected transaction type %T", raw)
	}

	if err := write(ctx, tx, cs); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("remit/mongo: commit: %w", err)
	}
	return nil
}

// write upserts state, agents, remittances and limits, and inserts marks
// and transfer records.
func write(ctx context.Context, w writer, cs *remitstore.ChangeSet) error {
	if cs.State != nil {
		m := toStateModel(cs.State)
		_, err := w.NewUpdate(m).
			Filter(bson.M{"_id": m.ID}).
			SetUpdate(bson.M{"$set": bson.M{
				"admin":              m.Admin,
				"asset":              m.Asset,
				"fee_bps":            m.FeeBps,
				"remittance_counter": m.RemittanceCounter,
				"accumulated_fees":   m.AccumulatedFees,
				"paused":             m.Paused,
				"initialized_at":     m.InitializedAt,
				"updated_at":         m.UpdatedAt,
			}}).
			Upsert().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("remit/mongo: write state: %w", err)
		}
	}

	for _, a := range cs.Agents {
		m := toAgentModel(a)
		_, err := w.NewUpdate(m).
			Filter(bson.M{"_id": m.Address}).
			SetUpdate(bson.M{"$set": bson.M{
				"registered": m.Registered,
				"updated_at": m.UpdatedAt,
			}}).
			Upsert().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("remit/mongo: write agent %s: %w", a.Address, err)
		}
	}

	for _, r := range cs.Remittances {
		m := toRemittanceModel(r)
		_, err := w.NewUpdate(m).
			Filter(bson.M{"_id": m.ID}).
			SetUpdate(bson.M{"$set": bson.M{
				"sender":     m.Sender,
				"agent":      m.Agent,
				"amount":     m.Amount,
				"fee":        m.Fee,
				"currency":   m.Currency,
				"country":    m.Country,
				"status":     m.Status,
				"expiry":     m.Expiry,
				"created_at": m.CreatedAt,
				"updated_at": m.UpdatedAt,
			}}).
			Upsert().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("remit/mongo: write remittance %d: %w", r.ID, err)
		}
	}

	for _, mk := range cs.Marks {
		if _, err := w.NewInsert(toMarkModel(mk)).Exec(ctx); err != nil {
			return fmt.Errorf("remit/mongo: write settlement mark %d: %w", mk.RemittanceID, err)
		}
	}

	for _, l := range cs.Limits {
		m := toDailyLimitModel(l)
		_, err := w.NewUpdate(m).
			Filter(bson.M{"_id": m.Key}).
			SetUpdate(bson.M{"$set": bson.M{
				"currency":   m.Currency,
				"country":    m.Country,
				"cap":        m.Limit,
				"created_at": m.CreatedAt,
				"updated_at": m.UpdatedAt,
			}}).
			Upsert().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("remit/mongo: write daily limit %s: %w", l.Key, err)
		}
	}

	for _, r := range cs.Transfers {
		if _, err := w.NewInsert(toTransferRecordModel(r)).Exec(ctx); err != nil {
			return fmt.Errorf("remit/mongo: write transfer record: %w", err)
		}
	}

	return nil
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all remit collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colState:  nil,
		colAgents: {{Keys: bson.D{{Key: "registered", Value: 1}}}},
		colRemittances: {
			{Keys: bson.D{{Key: "sender", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "agent", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		colMarks: {
			{
				Keys:    bson.D{{Key: "batch_id", Value: 1}},
				Options: options.Index().SetSparse(true),
			},
		},
		colLimits: {
			{
				Keys:    bson.D{{Key: "currency", Value: 1}, {Key: "country", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colTransfers: {
			{Keys: bson.D{{Key: "sender", Value: 1}, {Key: "currency", Value: 1}, {Key: "country", Value: 1}, {Key: "timestamp", Value: 1}}},
			{Keys: bson.D{{Key: "timestamp", Value: 1}}},
		},
	}
}
