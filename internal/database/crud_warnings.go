// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/marekvw/gitsentry/internal/metrics"
	"github.com/marekvw/gitsentry/internal/models"
)

// CreateWarning inserts a warning and its event links in one transaction.
// A warning is never observable without its links: either everything
// commits or nothing does.
func (db *DB) CreateWarning(ctx context.Context, warning *models.Warning, eventIDs []string) error {
	if warning.ID == "" {
		warning.ID = uuid.NewString()
	}
	if warning.CreatedAt.IsZero() {
		warning.CreatedAt = time.Now().UTC()
	}
	if err := warning.Validate(); err != nil {
		return fmt.Errorf("invalid warning: %w", err)
	}
	if len(eventIDs) == 0 {
		return fmt.Errorf("warning %s has no event links", warning.ID)
	}

	start := time.Now()
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO warnings (id, warning_type, has_been_analyzed, created_at)
		VALUES (?, ?, FALSE, ?)`,
		warning.ID, warning.WarningType, warning.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert warning %s: %w", warning.ID, err)
	}

	for _, eventID := range eventIDs {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO events_warnings (event_id, warning_id) VALUES (?, ?)`,
			eventID, warning.ID)
		if err != nil {
			return fmt.Errorf("failed to link event %s to warning %s: %w", eventID, warning.ID, err)
		}
	}

	err = tx.Commit()
	metrics.RecordDBQuery("insert", "warnings", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to commit warning %s: %w", warning.ID, err)
	}
	return nil
}

// GetWarning loads a warning by id. Returns an error satisfying IsNotFound
// when absent.
func (db *DB) GetWarning(ctx context.Context, id string) (*models.Warning, error) {
	query := `SELECT id, warning_type, root_cause, impact, next_steps,
		has_been_analyzed, created_at, analyzed_at
		FROM warnings WHERE id = ?`

	return scanWarning(db.conn.QueryRowContext(ctx, query, id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWarning(row rowScanner) (*models.Warning, error) {
	var (
		w          models.Warning
		rootCause  string
		impact     string
		nextSteps  string
		analyzedAt sql.NullTime
	)
	if err := row.Scan(&w.ID, &w.WarningType, &rootCause, &impact, &nextSteps,
		&w.HasBeenAnalyzed, &w.CreatedAt, &analyzedAt); err != nil {
		return nil, fmt.Errorf("failed to scan warning: %w", err)
	}

	var err error
	if w.RootCause, err = unmarshalStrings(rootCause); err != nil {
		return nil, err
	}
	if w.Impact, err = unmarshalStrings(impact); err != nil {
		return nil, err
	}
	if w.NextSteps, err = unmarshalStrings(nextSteps); err != nil {
		return nil, err
	}
	if analyzedAt.Valid {
		t := analyzedAt.Time
		w.AnalyzedAt = &t
	}
	return &w, nil
}

// SetWarningAnalysis writes the analysis and flips has_been_analyzed in a
// single conditional UPDATE. The WHERE clause makes the flip monotonic:
// once analyzed, later attempts return false and change nothing, which is
// how duplicate queue deliveries are neutralized.
func (db *DB) SetWarningAnalysis(ctx context.Context, id string, analysis *models.Analysis) (bool, error) {
	if err := analysis.Validate(); err != nil {
		return false, fmt.Errorf("refusing to store analysis for warning %s: %w", id, err)
	}

	rootCause, err := marshalStrings(analysis.RootCause)
	if err != nil {
		return false, err
	}
	impact, err := marshalStrings(analysis.Impact)
	if err != nil {
		return false, err
	}
	nextSteps, err := marshalStrings(analysis.NextSteps)
	if err != nil {
		return false, err
	}

	query := `UPDATE warnings
		SET root_cause = ?, impact = ?, next_steps = ?,
			has_been_analyzed = TRUE, analyzed_at = ?
		WHERE id = ? AND has_been_analyzed = FALSE`

	start := time.Now()
	result, err := db.conn.ExecContext(ctx, query,
		rootCause, impact, nextSteps, start.UTC(), id)
	metrics.RecordDBQuery("update", "warnings", time.Since(start), err)
	if err != nil {
		return false, fmt.Errorf("failed to update warning %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return rows > 0, nil
}

// ListUnanalyzedWarningsBefore returns warnings flagged before cutoff that
// still have no analysis, oldest first. The analyzer backfill republishes
// these to cover lost publishes.
func (db *DB) ListUnanalyzedWarningsBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Warning, error) {
	query := `SELECT id, warning_type, root_cause, impact, next_steps,
		has_been_analyzed, created_at, analyzed_at
		FROM warnings
		WHERE has_been_analyzed = FALSE AND created_at < ?
		ORDER BY created_at ASC
		LIMIT ?`

	rows, err := db.conn.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unanalyzed warnings: %w", err)
	}
	defer closeQuietly(rows)

	var warnings []*models.Warning
	for rows.Next() {
		w, err := scanWarning(rows)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading warning rows: %w", err)
	}
	return warnings, nil
}

// RecordDeadLetter persists a permanently failed warning message for
// operator inspection.
func (db *DB) RecordDeadLetter(ctx context.Context, warningID, topic, reason string, payload []byte) error {
	start := time.Now()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO dead_letters (id, warning_id, topic, reason, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), warningID, topic, reason, string(payload), start.UTC())
	metrics.RecordDBQuery("insert", "dead_letters", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to record dead letter for warning %s: %w", warningID, err)
	}
	return nil
}

// CountDeadLetters returns the number of dead-lettered messages.
func (db *DB) CountDeadLetters(ctx context.Context) (int64, error) {
	var count int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letters`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count dead letters: %w", err)
	}
	return count, nil
}
