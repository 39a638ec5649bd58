// Package migrations applies the database schema. Statements are idempotent
// so Apply can run on every startup.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS bounties (
		id TEXT PRIMARY KEY,
		publisher_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		reward_amount BIGINT NOT NULL,
		status TEXT NOT NULL,
		deadline TIMESTAMPTZ NOT NULL,
		review_deadline TIMESTAMPTZ NOT NULL,
		max_submissions INT NOT NULL,
		submission_count INT NOT NULL DEFAULT 0,
		criteria JSONB NOT NULL DEFAULT '[]',
		tags JSONB NOT NULL DEFAULT '[]',
		awarded_submission_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bounties_status ON bounties (status)`,
	`CREATE TABLE IF NOT EXISTS bids (
		id TEXT PRIMARY KEY,
		bounty_id TEXT NOT NULL REFERENCES bounties (id),
		agent_id TEXT NOT NULL,
		status TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (bounty_id, agent_id)
	)`,
	`CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		bounty_id TEXT NOT NULL REFERENCES bounties (id),
		agent_id TEXT NOT NULL,
		content TEXT NOT NULL,
		status TEXT NOT NULL,
		quality_score INT NOT NULL DEFAULT 0,
		review_notes TEXT NOT NULL DEFAULT '',
		criterion_scores JSONB NOT NULL DEFAULT '[]',
		rejection_reason TEXT NOT NULL DEFAULT '',
		dispute_deadline TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (bounty_id, agent_id)
	)`,
	`CREATE TABLE IF NOT EXISTS disputes (
		id TEXT PRIMARY KEY,
		submission_id TEXT NOT NULL UNIQUE REFERENCES submissions (id),
		bounty_id TEXT NOT NULL REFERENCES bounties (id),
		agent_id TEXT NOT NULL,
		publisher_id TEXT NOT NULL,
		status TEXT NOT NULL,
		grounds JSONB NOT NULL DEFAULT '[]',
		agent_statement TEXT NOT NULL,
		publisher_response TEXT NOT NULL DEFAULT '',
		resolution_amount BIGINT NOT NULL DEFAULT 0,
		resolution_split_bps INT NOT NULL DEFAULT 0,
		resolution_notes TEXT NOT NULL DEFAULT '',
		resolved_by TEXT NOT NULL DEFAULT '',
		filed_at TIMESTAMPTZ NOT NULL,
		publisher_deadline TIMESTAMPTZ NOT NULL,
		resolution_deadline TIMESTAMPTZ,
		responded_at TIMESTAMPTZ,
		resolved_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS dispute_evidence (
		id TEXT PRIMARY KEY,
		dispute_id TEXT NOT NULL REFERENCES disputes (id),
		submitted_by TEXT NOT NULL,
		party TEXT NOT NULL,
		artifact_type TEXT NOT NULL,
		content TEXT NOT NULL,
		criterion_index INT NOT NULL DEFAULT -1,
		submitted_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL DEFAULT '',
		agent_id TEXT NOT NULL DEFAULT '',
		bounty_id TEXT NOT NULL DEFAULT '',
		dispute_id TEXT NOT NULL DEFAULT '',
		amount BIGINT NOT NULL,
		type TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_bounty ON transactions (bounty_id)`,
	`CREATE TABLE IF NOT EXISTS wallets (
		owner_id TEXT PRIMARY KEY,
		balance BIGINT NOT NULL DEFAULT 0,
		tasks_completed INT NOT NULL DEFAULT 0,
		tasks_submitted INT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reputation_signals (
		publisher_id TEXT PRIMARY KEY,
		bounties_posted INT NOT NULL DEFAULT 0,
		bounties_awarded INT NOT NULL DEFAULT 0,
		bounties_expired INT NOT NULL DEFAULT 0,
		total_rejections INT NOT NULL DEFAULT 0,
		disputes_received INT NOT NULL DEFAULT 0,
		disputes_lost INT NOT NULL DEFAULT 0,
		reviews_on_time INT NOT NULL DEFAULT 0,
		reviews_total INT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS test_cases (
		id TEXT PRIMARY KEY,
		bounty_id TEXT NOT NULL REFERENCES bounties (id),
		stdin TEXT NOT NULL,
		expected_output TEXT NOT NULL,
		public BOOLEAN NOT NULL DEFAULT FALSE,
		time_limit_ms INT NOT NULL DEFAULT 0,
		memory_limit_kb INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS verification_results (
		submission_id TEXT PRIMARY KEY REFERENCES submissions (id),
		all_passed BOOLEAN NOT NULL,
		passed_count INT NOT NULL,
		total_count INT NOT NULL,
		cases JSONB NOT NULL DEFAULT '[]',
		completed_at TIMESTAMPTZ NOT NULL
	)`,
}

// Apply runs every schema statement in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
