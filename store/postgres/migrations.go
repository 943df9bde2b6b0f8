package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the remit store.
var Migrations = migrate.NewGroup("remit")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_remit_state",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS remit_state (
    id                 INT PRIMARY KEY CHECK (id = 1),
    admin              TEXT NOT NULL,
    asset              TEXT NOT NULL,
    fee_bps            BIGINT NOT NULL DEFAULT 0,
    remittance_counter BIGINT NOT NULL DEFAULT 0,
    accumulated_fees   TEXT NOT NULL DEFAULT '0',
    paused             BOOLEAN NOT NULL DEFAULT FALSE,
    initialized_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS remit_state`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_remit_agents",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS remit_agents (
    address    TEXT PRIMARY KEY,
    registered BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS remit_agents`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_remit_remittances",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS remit_remittances (
    id         BIGINT PRIMARY KEY,
    sender     TEXT NOT NULL,
    agent      TEXT NOT NULL,
    amount     TEXT NOT NULL,
    fee        TEXT NOT NULL,
    currency   TEXT NOT NULL DEFAULT '',
    country    TEXT NOT NULL DEFAULT '',
    status     TEXT NOT NULL DEFAULT 'pending',
    expiry     TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_remit_remittances_sender ON remit_remittances (sender);
CREATE INDEX IF NOT EXISTS idx_remit_remittances_agent ON remit_remittances (agent);
CREATE INDEX IF NOT EXISTS idx_remit_remittances_status ON remit_remittances (status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS remit_remittances`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_remit_settlement_marks",
			Version: "20240101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS remit_settlement_marks (
    remittance_id BIGINT PRIMARY KEY,
    batch_id      TEXT NOT NULL DEFAULT '',
    settled_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_remit_settlement_marks_batch ON remit_settlement_marks (batch_id) WHERE batch_id != '';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS remit_settlement_marks`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_remit_daily_limits",
			Version: "20240101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS remit_daily_limits (
    currency   TEXT NOT NULL,
    country    TEXT NOT NULL,
    cap        TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (currency, country)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS remit_daily_limits`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_remit_transfer_records",
			Version: "20240101000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS remit_transfer_records (
    id        TEXT PRIMARY KEY,
    sender    TEXT NOT NULL,
    currency  TEXT NOT NULL,
    country   TEXT NOT NULL,
    amount    TEXT NOT NULL,
    timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_remit_transfer_records_history ON remit_transfer_records (sender, currency, country, timestamp);
CREATE INDEX IF NOT EXISTS idx_remit_transfer_records_timestamp ON remit_transfer_records (timestamp);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS remit_transfer_records`)
				return err
			},
		},
	)
}
