// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ManuGH/storyverse/internal/persistence/sqlite"
)

// Store persists events to a local SQLite database. It implements Sink.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the event database at path.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	db, err := sqlite.Open(ctx, path, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS analytics_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		book_id TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL DEFAULT '',
		properties TEXT NOT NULL DEFAULT '{}',
		ts_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_analytics_events_type ON analytics_events(type);
	CREATE INDEX IF NOT EXISTS idx_analytics_events_ts ON analytics_events(ts_ms);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts ev.
func (s *Store) Record(ctx context.Context, ev Event) error {
	props := ev.Properties
	if props == nil {
		props = map[string]any{}
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("encode properties: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analytics_events (type, book_id, user_id, properties, ts_ms) VALUES (?, ?, ?, ?, ?)`,
		string(ev.Type), ev.BookID, ev.UserID, string(raw), ev.Timestamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Count returns the number of stored events of type t; an empty t counts all.
func (s *Store) Count(ctx context.Context, t EventType) (int, error) {
	var n int
	var err error
	if t == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analytics_events`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analytics_events WHERE type = ?`, string(t)).Scan(&n)
	}
	return n, err
}

// Recent returns up to limit events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
	SELECT type, book_id, user_id, properties, ts_ms
	FROM analytics_events
	ORDER BY ts_ms DESC, id DESC
	LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Event
	for rows.Next() {
		var (
			ev    Event
			typ   string
			props string
			tsMS  int64
		)
		if err := rows.Scan(&typ, &ev.BookID, &ev.UserID, &props, &tsMS); err != nil {
			return nil, err
		}
		ev.Type = EventType(typ)
		ev.Timestamp = time.UnixMilli(tsMS).UTC()
		if err := json.Unmarshal([]byte(props), &ev.Properties); err != nil {
			return nil, fmt.Errorf("decode properties: %w", err)
		}
		if len(ev.Properties) == 0 {
			ev.Properties = nil
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Check reports whether the database is reachable and structurally sound.
func (s *Store) Check(ctx context.Context) error {
	issues, err := sqlite.VerifyIntegrity(ctx, s.db, "quick")
	if err != nil {
		return err
	}
	if issues != nil {
		return fmt.Errorf("analytics store integrity: %v", issues)
	}
	return nil
}
