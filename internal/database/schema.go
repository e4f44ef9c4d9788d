// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createSchema creates tables and indexes if they do not exist.
func (db *DB) createSchema() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range getTableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	for _, query := range getIndexCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create index: %s: %w", query, err)
		}
	}
	return nil
}

// getTableCreationQueries returns the table creation SQL statements.
//
// events.payload holds the feed document exactly as received; repo_name,
// org_login, and actor_login are denormalized from it so search never has
// to parse JSON at query time.
func getTableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS events (
			id VARCHAR PRIMARY KEY,
			event_type VARCHAR NOT NULL,
			repo_name VARCHAR NOT NULL DEFAULT '',
			org_login VARCHAR NOT NULL DEFAULT '',
			actor_login VARCHAR NOT NULL DEFAULT '',
			payload VARCHAR NOT NULL,
			created_at TIMESTAMP NOT NULL,
			ingested_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS warnings (
			id VARCHAR PRIMARY KEY,
			warning_type VARCHAR NOT NULL,
			root_cause VARCHAR NOT NULL DEFAULT '[]',
			impact VARCHAR NOT NULL DEFAULT '[]',
			next_steps VARCHAR NOT NULL DEFAULT '[]',
			has_been_analyzed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL,
			analyzed_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS events_warnings (
			event_id VARCHAR NOT NULL,
			warning_id VARCHAR NOT NULL,
			PRIMARY KEY (event_id, warning_id)
		)`,
		`CREATE TABLE IF NOT EXISTS dead_letters (
			id VARCHAR PRIMARY KEY,
			warning_id VARCHAR NOT NULL,
			topic VARCHAR NOT NULL,
			reason VARCHAR NOT NULL,
			payload VARCHAR NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
	}
}

// getIndexCreationQueries returns the index creation SQL statements.
func getIndexCreationQueries() []string {
	return []string{
		`CREATE INDEX IF NOT EXISTS idx_events_created_at ON events (created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_repo_name ON events (repo_name)`,
		`CREATE INDEX IF NOT EXISTS idx_warnings_analyzed ON warnings (has_been_analyzed, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_links_warning ON events_warnings (warning_id)`,
	}
}
