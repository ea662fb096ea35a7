package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create events",
		SQL: `
			CREATE TABLE events (
				id           INTEGER PRIMARY KEY AUTOINCREMENT,
				source       TEXT NOT NULL DEFAULT '',
				payload      TEXT NOT NULL,
				received_at  TEXT NOT NULL
			);

			CREATE INDEX idx_events_source ON events (source, id);
			CREATE INDEX idx_events_received ON events (received_at);
		`,
	},
	{
		Version: 2,
		Name:    "create events full-text index",
		SQL: `
			CREATE VIRTUAL TABLE events_fts USING fts5(
				payload,
				content='events',
				content_rowid='id'
			);

			CREATE TRIGGER events_ai AFTER INSERT ON events BEGIN
				INSERT INTO events_fts(rowid, payload) VALUES (new.id, new.payload);
			END;

			CREATE TRIGGER events_ad AFTER DELETE ON events BEGIN
				INSERT INTO events_fts(events_fts, rowid, payload)
				VALUES ('delete', old.id, old.payload);
			END;
		`,
	},
}
