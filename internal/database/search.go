// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/marekvw/gitsentry/internal/metrics"
	"github.com/marekvw/gitsentry/internal/models"
)

// WarningRecord pairs a warning with the payload of its most recent linked
// event, which is what the stream and the query endpoints emit.
type WarningRecord struct {
	Warning models.Warning
	Payload json.RawMessage
}

// StreamMessage converts the record to the external wire shape.
func (r *WarningRecord) StreamMessage() models.StreamMessage {
	return models.StreamMessage{
		Payload:     r.Payload,
		Analysis:    r.Warning.Analysis(),
		WarningID:   r.Warning.ID,
		WarningType: r.Warning.WarningType,
	}
}

const warningRecordColumns = `w.id, w.warning_type, w.root_cause, w.impact,
	w.next_steps, w.has_been_analyzed, w.created_at, w.analyzed_at, e.payload`

// SearchAnalyzedWarnings matches the query term against the repository
// name, organization, and actor login of linked events. Only analyzed
// warnings are returned; unanalyzed ones are still in flight and would
// surface with empty analyses.
func (db *DB) SearchAnalyzedWarnings(ctx context.Context, term string, limit int) ([]*WarningRecord, error) {
	pattern := "%" + escapeLike(term) + "%"

	query := `SELECT ` + warningRecordColumns + `
		FROM warnings w
		JOIN events_warnings ew ON ew.warning_id = w.id
		JOIN events e ON e.id = ew.event_id
		WHERE w.has_been_analyzed = TRUE
		AND (e.repo_name ILIKE ? ESCAPE '\'
			OR e.org_login ILIKE ? ESCAPE '\'
			OR e.actor_login ILIKE ? ESCAPE '\')
		QUALIFY ROW_NUMBER() OVER (PARTITION BY w.id ORDER BY e.created_at DESC) = 1
		ORDER BY w.created_at DESC
		LIMIT ?`

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, pattern, pattern, pattern, limit)
	metrics.RecordDBQuery("search", "warnings", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to search warnings: %w", err)
	}
	defer closeQuietly(rows)

	return collectWarningRecords(rows)
}

// ListAnalyzedWarningsSince returns analyzed warnings created after the
// given time, oldest first. Dashboards use this to backfill history before
// attaching to the live stream.
func (db *DB) ListAnalyzedWarningsSince(ctx context.Context, since time.Time, limit int) ([]*WarningRecord, error) {
	query := `SELECT ` + warningRecordColumns + `
		FROM warnings w
		JOIN events_warnings ew ON ew.warning_id = w.id
		JOIN events e ON e.id = ew.event_id
		WHERE w.has_been_analyzed = TRUE AND w.created_at > ?
		QUALIFY ROW_NUMBER() OVER (PARTITION BY w.id ORDER BY e.created_at DESC) = 1
		ORDER BY w.created_at ASC
		LIMIT ?`

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, since, limit)
	metrics.RecordDBQuery("select", "warnings", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyzed warnings: %w", err)
	}
	defer closeQuietly(rows)

	return collectWarningRecords(rows)
}

func collectWarningRecords(rows *sql.Rows) ([]*WarningRecord, error) {
	var records []*WarningRecord
	for rows.Next() {
		var (
			w          models.Warning
			rootCause  string
			impact     string
			nextSteps  string
			analyzedAt sql.NullTime
			payload    string
		)
		if err := rows.Scan(&w.ID, &w.WarningType, &rootCause, &impact, &nextSteps,
			&w.HasBeenAnalyzed, &w.CreatedAt, &analyzedAt, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan warning record: %w", err)
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

		records = append(records, &WarningRecord{
			Warning: w,
			Payload: json.RawMessage(payload),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading warning records: %w", err)
	}
	return records, nil
}

// escapeLike neutralizes LIKE metacharacters in user-supplied search terms.
func escapeLike(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(term)
}
