package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema (seen_events + watermarks)
const currentSchemaVersion = 1

// Index is the SQLite side store for the journal: seen event ids and
// per-source collector watermarks. It is an accelerator, not the source
// of truth; Rebuild reconstructs it from the journal file.
type Index struct {
	db *sql.DB
}

// OpenIndex creates or opens the index database at the given path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to index database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Index{db: db}, nil
}

// Close closes the database connection.
func (x *Index) Close() error {
	if x.db == nil {
		return nil
	}
	return x.db.Close()
}

// Seen reports whether an event id has already been journaled.
func (x *Index) Seen(ctx context.Context, eventID string) (bool, error) {
	var one int
	err := x.db.QueryRowContext(ctx,
		`SELECT 1 FROM seen_events WHERE event_id = ?`, eventID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query seen event: %w", err)
	}
	return true, nil
}

// MarkSeen records an event id. Uses ON CONFLICT DO NOTHING for
// idempotency - duplicate ids are silently ignored. Returns true when
// the id was newly inserted.
func (x *Index) MarkSeen(ctx context.Context, eventID string, recordedAtMs int64) (bool, error) {
	res, err := x.db.ExecContext(ctx, `
		INSERT INTO seen_events (event_id, recorded_at_ms)
		VALUES (?, ?)
		ON CONFLICT(event_id) DO NOTHING
	`, eventID, recordedAtMs)
	if err != nil {
		return false, fmt.Errorf("mark seen: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark seen: %w", err)
	}
	return n > 0, nil
}

// Watermark returns the newest observation timestamp consumed for a
// source, or 0 when the source has never been collected.
func (x *Index) Watermark(ctx context.Context, source string) (int64, error) {
	var ms int64
	err := x.db.QueryRowContext(ctx,
		`SELECT last_seen_ms FROM watermarks WHERE source = ?`, source).Scan(&ms)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query watermark: %w", err)
	}
	return ms, nil
}

// SetWatermark advances a source watermark. Watermarks never move
// backwards; a lower value than the stored one is ignored.
func (x *Index) SetWatermark(ctx context.Context, source string, lastSeenMs, nowMs int64) error {
	_, err := x.db.ExecContext(ctx, `
		INSERT INTO watermarks (source, last_seen_ms, updated_at_ms)
		VALUES (?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET
			last_seen_ms = MAX(last_seen_ms, excluded.last_seen_ms),
			updated_at_ms = excluded.updated_at_ms
	`, source, lastSeenMs, nowMs)
	if err != nil {
		return fmt.Errorf("set watermark: %w", err)
	}
	return nil
}

// Rebuild repopulates seen_events by scanning the journal file. Used
// when the index database was lost or is suspected incomplete. Returns
// the number of ids newly indexed.
func (x *Index) Rebuild(ctx context.Context, journalPath string, nowMs int64) (int, error) {
	events, _, err := Read(journalPath, Cursor{})
	if err != nil {
		return 0, fmt.Errorf("rebuild index: %w", err)
	}

	added := 0
	for _, ev := range events {
		inserted, err := x.MarkSeen(ctx, ev.EventID, nowMs)
		if err != nil {
			return added, fmt.Errorf("rebuild index: %w", err)
		}
		if inserted {
			added++
		}
	}
	return added, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}
