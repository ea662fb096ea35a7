package store

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// MemoryEventStore keeps events in process memory. Search is a
// case-insensitive substring match over the JSON-encoded payload.
type MemoryEventStore struct {
	mu     sync.RWMutex
	events []Event
	text   []string
	nextID int64
}

// NewMemoryEventStore creates an empty store.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{nextID: 1}
}

// Append stores a copy of the event.
func (m *MemoryEventStore) Append(_ context.Context, ev Event) (Event, error) {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}
	ev.ReceivedAt = ev.ReceivedAt.UTC()

	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return Event{}, err
	}
	// Store the decoded form so callers never share maps with the store.
	var payload map[string]any
	_ = json.Unmarshal(data, &payload)

	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = m.nextID
	m.nextID++
	stored := ev
	stored.Payload = payload
	m.events = append(m.events, stored)
	m.text = append(m.text, strings.ToLower(string(data)))
	return ev, nil
}

// Recent returns the newest events first. Limit of 0 defaults to 20.
func (m *MemoryEventStore) Recent(_ context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 20
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Event
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.events[i])
	}
	return out, nil
}

// Search returns matching events, newest first.
func (m *MemoryEventStore) Search(_ context.Context, query string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 20
	}
	q := strings.ToLower(query)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Event
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		if strings.Contains(m.text[i], q) {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

// Count returns the number of stored events.
func (m *MemoryEventStore) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events), nil
}

// Prune deletes events received before the given time.
func (m *MemoryEventStore) Prune(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	events := m.events[:0]
	text := m.text[:0]
	for i, ev := range m.events {
		if ev.ReceivedAt.Before(before) {
			n++
			continue
		}
		events = append(events, ev)
		text = append(text, m.text[i])
	}
	m.events, m.text = events, text
	return n, nil
}

// Close is a no-op.
func (m *MemoryEventStore) Close() error { return nil }
