// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/marekvw/gitsentry/internal/metrics"
	"github.com/marekvw/gitsentry/internal/models"
)

// InsertEvent stores a feed event idempotently. Re-ingesting an id that is
// already present is silently ignored via ON CONFLICT DO NOTHING, which
// makes crash-recovery replays of a poll cycle safe. Returns true when a
// row was actually written.
func (db *DB) InsertEvent(ctx context.Context, event *models.Event) (bool, error) {
	if err := event.Validate(); err != nil {
		return false, fmt.Errorf("invalid event: %w", err)
	}

	orgLogin := ""
	if event.Org != nil {
		orgLogin = event.Org.Login
	}

	query := `INSERT INTO events (
		id, event_type, repo_name, org_login, actor_login, payload, created_at, ingested_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT DO NOTHING`

	start := time.Now()
	result, err := db.conn.ExecContext(ctx, query,
		event.ID, event.Type, event.Repo.Name, orgLogin, event.Actor.Login,
		string(event.Raw), event.CreatedAt, time.Now().UTC())
	metrics.RecordDBQuery("insert", "events", time.Since(start), err)
	if err != nil {
		return false, fmt.Errorf("failed to insert event %s: %w", event.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return rows > 0, nil
}

// GetEvent loads a single event by id. Returns sql.ErrNoRows when absent.
func (db *DB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	query := `SELECT payload FROM events WHERE id = ?`

	var payload string
	if err := db.conn.QueryRowContext(ctx, query, id).Scan(&payload); err != nil {
		return nil, fmt.Errorf("failed to load event %s: %w", id, err)
	}
	return models.ParseEvent([]byte(payload))
}

// EventHasWarnings reports whether the event already has a warning link.
// The poller checks this before flagging so an event re-seen after a crash
// never produces a second warning.
func (db *DB) EventHasWarnings(ctx context.Context, eventID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM events_warnings WHERE event_id = ?)`

	var exists bool
	if err := db.conn.QueryRowContext(ctx, query, eventID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check links for event %s: %w", eventID, err)
	}
	return exists, nil
}

// EventsForWarning loads all events linked to the warning, oldest first.
func (db *DB) EventsForWarning(ctx context.Context, warningID string) ([]*models.Event, error) {
	query := `SELECT e.payload
		FROM events e
		JOIN events_warnings ew ON ew.event_id = e.id
		WHERE ew.warning_id = ?
		ORDER BY e.created_at ASC`

	rows, err := db.conn.QueryContext(ctx, query, warningID)
	if err != nil {
		return nil, fmt.Errorf("failed to load events for warning %s: %w", warningID, err)
	}
	defer closeQuietly(rows)

	var events []*models.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		event, err := models.ParseEvent([]byte(payload))
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading event rows: %w", err)
	}
	return events, nil
}

// DeleteUnflaggedEventsBefore removes events older than cutoff that have no
// warning links, returning the number deleted. Linked events are retained
// indefinitely.
func (db *DB) DeleteUnflaggedEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM events
		WHERE created_at < ?
		AND id NOT IN (SELECT event_id FROM events_warnings)`

	start := time.Now()
	result, err := db.conn.ExecContext(ctx, query, cutoff)
	metrics.RecordDBQuery("delete", "events", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old events: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return rows, nil
}

// CountEvents returns the number of stored events.
func (db *DB) CountEvents(ctx context.Context) (int64, error) {
	var count int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// IsNotFound reports whether err is the no-rows sentinel from a point read.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// marshalStrings encodes a string list as a JSON array for storage.
func marshalStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("failed to encode string list: %w", err)
	}
	return string(data), nil
}

// unmarshalStrings decodes a stored JSON array back into a string list.
func unmarshalStrings(data string) ([]string, error) {
	if data == "" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil, fmt.Errorf("failed to decode string list: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values, nil
}
