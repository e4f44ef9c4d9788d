// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

// Package cursor provides the durable poll cursor: the id of the newest
// event that has been fully persisted and published. The cursor is a single
// versioned value in BadgerDB; advancement is monotonic, so replays after a
// crash can only re-cover ground, never skip forward past unseen events.
package cursor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"

	"github.com/marekvw/gitsentry/internal/logging"
)

var cursorKey = []byte("cursor:last_processed_event_id")

// ErrStoreClosed is returned by operations on a closed store.
var ErrStoreClosed = errors.New("cursor store is closed")

// State is the persisted cursor value. Version increments on every write so
// operators can tell a fresh store from one that was reset.
type State struct {
	EventID   string    `json:"event_id"`
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the durable cursor backed by BadgerDB.
type Store struct {
	db *badger.DB

	mu     sync.Mutex
	closed bool
}

// Open creates or opens the cursor store at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = true
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cursor store: %w", err)
	}

	s := &Store{db: db}

	state, err := s.Get()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logging.Info().
		Str("path", path).
		Str("event_id", state.EventID).
		Uint64("version", state.Version).
		Msg("Cursor store opened")

	return s, nil
}

// Get returns the current cursor state. A store that has never advanced
// returns a zero State with an empty EventID.
func (s *Store) Get() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return State{}, ErrStoreClosed
	}

	var state State
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cursorKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &state)
		})
	})
	if err != nil {
		return State{}, fmt.Errorf("read cursor: %w", err)
	}
	return state, nil
}

// Advance moves the cursor to eventID if it is newer than the stored value,
// returning true when the cursor actually moved. Older or equal ids are
// rejected silently: pages are committed oldest-first, so a rejected
// advance just means a newer page already landed.
func (s *Store) Advance(eventID string) (bool, error) {
	if eventID == "" {
		return false, fmt.Errorf("cursor event id must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrStoreClosed
	}

	advanced := false
	err := s.db.Update(func(txn *badger.Txn) error {
		var state State
		item, err := txn.Get(cursorKey)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			// First advance ever.
		case err != nil:
			return err
		default:
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &state)
			}); err != nil {
				return err
			}
		}

		if state.EventID != "" && !IDLess(state.EventID, eventID) {
			return nil
		}

		state.EventID = eventID
		state.Version++
		state.UpdatedAt = time.Now().UTC()

		data, err := json.Marshal(state)
		if err != nil {
			return err
		}
		if err := txn.Set(cursorKey, data); err != nil {
			return err
		}
		advanced = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("advance cursor: %w", err)
	}
	return advanced, nil
}

// Reset clears the cursor so the next poll cycle starts from the live head
// of the feed. The version counter is preserved.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		var state State
		item, err := txn.Get(cursorKey)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			return nil
		case err != nil:
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &state)
		}); err != nil {
			return err
		}

		state.EventID = ""
		state.Version++
		state.UpdatedAt = time.Now().UTC()

		data, err := json.Marshal(state)
		if err != nil {
			return err
		}
		return txn.Set(cursorKey, data)
	})
	if err != nil {
		return fmt.Errorf("reset cursor: %w", err)
	}
	return nil
}

// Close closes the underlying BadgerDB.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// IDLess compares feed event ids, which are decimal strings that grow
// monotonically. A longer id is always numerically larger.
func IDLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
