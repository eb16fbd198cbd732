// Package migrations applies the discovery platform schema in order.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

// statements are executed in order. Each statement is idempotent so Apply can
// run on every startup.
var statements = []string{
	`CREATE TABLE IF NOT EXISTS registered_nodes (
		id TEXT PRIMARY KEY,
		chain_id BIGINT NOT NULL,
		has_exit_node BOOLEAN NOT NULL DEFAULT FALSE,
		api_endpoint TEXT NOT NULL,
		api_token TEXT NOT NULL DEFAULT '',
		native_address TEXT NOT NULL DEFAULT '',
		exit_node_pub_key TEXT NOT NULL DEFAULT '',
		honesty_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'FRESH',
		total_amount_funded NUMERIC(78,0) NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		payment TEXT NOT NULL DEFAULT 'trial',
		labels TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS quotas (
		id BIGSERIAL PRIMARY KEY,
		client_id TEXT NOT NULL,
		paid_by TEXT NOT NULL,
		action_taker TEXT NOT NULL DEFAULT '',
		quota NUMERIC(78,0) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS funding_requests (
		id BIGSERIAL PRIMARY KEY,
		registered_node_id TEXT NOT NULL REFERENCES registered_nodes(id) ON DELETE CASCADE,
		request_id TEXT NOT NULL,
		amount NUMERIC(78,0) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_quotas_paid_by ON quotas (paid_by)`,
	`CREATE INDEX IF NOT EXISTS idx_registered_nodes_status ON registered_nodes (status)`,
}

// Apply executes all schema migrations against the database handle.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
