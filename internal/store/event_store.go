package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/soyeahso/eventhost/internal/logging"
)

// Event is one recorded payload.
type Event struct {
	ID         int64          `json:"id"`
	Source     string         `json:"source,omitempty"`
	Payload    map[string]any `json:"payload"`
	ReceivedAt time.Time      `json:"receivedAt"`
	Rank       float64        `json:"rank,omitempty"` // FTS5 rank score (search results only)
}

// EventStore persists events.
type EventStore interface {
	Append(ctx context.Context, ev Event) (Event, error)
	Recent(ctx context.Context, limit int) ([]Event, error)
	Search(ctx context.Context, query string, limit int) ([]Event, error)
	Count(ctx context.Context) (int, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
	Close() error
}

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Backend names accepted by OpenEventStore.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// OpenEventStore opens the named backend. path is ignored for memory.
func OpenEventStore(backend, path string, log *logging.Logger) (EventStore, error) {
	switch backend {
	case "", BackendSQLite:
		db, err := Open(path, log)
		if err != nil {
			return nil, err
		}
		return NewSQLiteEventStore(db), nil
	case BackendMemory:
		return NewMemoryEventStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

// SQLiteEventStore implements EventStore on a DB.
type SQLiteEventStore struct {
	db *DB
}

// NewSQLiteEventStore creates an event store using the given database. The
// store owns db and closes it on Close.
func NewSQLiteEventStore(db *DB) *SQLiteEventStore {
	return &SQLiteEventStore{db: db}
}

// Append inserts an event and returns it with ID and timestamp set.
func (s *SQLiteEventStore) Append(ctx context.Context, ev Event) (Event, error) {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}
	ev.ReceivedAt = ev.ReceivedAt.UTC()

	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return Event{}, fmt.Errorf("encoding payload: %w", err)
	}

	res, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO events (source, payload, received_at) VALUES (?, ?, ?)`,
		ev.Source, string(data), ev.ReceivedAt.Format(timeFormat),
	)
	if err != nil {
		return Event{}, fmt.Errorf("inserting event: %w", err)
	}
	ev.ID, err = res.LastInsertId()
	if err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Recent returns the newest events first. Limit of 0 defaults to 20.
func (s *SQLiteEventStore) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT id, source, payload, received_at, 0
		 FROM events ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Search finds events whose payload matches the FTS5 query, best match
// first. Limit of 0 defaults to 20.
func (s *SQLiteEventStore) Search(ctx context.Context, query string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT e.id, e.source, e.payload, e.received_at, rank
		 FROM events_fts
		 JOIN events e ON e.id = events_fts.rowid
		 WHERE events_fts MATCH ?
		 ORDER BY rank
		 LIMIT ?`,
		query, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Count returns the number of stored events.
func (s *SQLiteEventStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}

// Prune deletes events received before the given time.
func (s *SQLiteEventStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.sql.ExecContext(ctx,
		`DELETE FROM events WHERE received_at < ?`, before.UTC().Format(timeFormat),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close closes the underlying database.
func (s *SQLiteEventStore) Close() error {
	return s.db.Close()
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var ev Event
		var payload, receivedAt string

		if err := rows.Scan(&ev.ID, &ev.Source, &payload, &receivedAt, &ev.Rank); err != nil {
			continue
		}
		ev.ReceivedAt, _ = time.Parse(timeFormat, receivedAt)
		_ = json.Unmarshal([]byte(payload), &ev.Payload)

		events = append(events, ev)
	}
	return events, rows.Err()
}
