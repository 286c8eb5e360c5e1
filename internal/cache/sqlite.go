package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/bankrot-cli/internal/model"
)

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS lots (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	record     TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_lots_status ON lots(status);
`

// SQLiteBackend stores one row per lot using modernc.org/sqlite.
type SQLiteBackend struct {
	db   *sql.DB
	path string
}

// NewSQLiteBackend opens the database at path, configures WAL mode and
// creates the lots table.
func NewSQLiteBackend(ctx context.Context, path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=FULL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteMigration); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "sqlite: migrate")
	}
	return &SQLiteBackend{db: db, path: path}, nil
}

// Location returns the database path.
func (b *SQLiteBackend) Location() string { return b.path }

// Load reads every lot row.
func (b *SQLiteBackend) Load(ctx context.Context) (map[string]model.CacheEntry, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT id, record FROM lots`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query lots")
	}
	defer rows.Close()

	entries := make(map[string]model.CacheEntry)
	for rows.Next() {
		var id, record string
		if err := rows.Scan(&id, &record); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lot")
		}
		var e model.CacheEntry
		if err := json.Unmarshal([]byte(record), &e); err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode lot %s", id)
		}
		entries[id] = e
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: iterate lots")
}

// Save upserts the dirty lots in one transaction.
func (b *SQLiteBackend) Save(ctx context.Context, snapshot map[string]model.CacheEntry, dirty []string) error {
	if len(dirty) == 0 {
		return nil
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO lots (id, status, record, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status, record = excluded.record, updated_at = excluded.updated_at`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, id := range dirty {
		e, ok := snapshot[id]
		if !ok {
			continue
		}
		record, err := json.Marshal(e)
		if err != nil {
			return eris.Wrapf(err, "sqlite: encode lot %s", id)
		}
		if _, err := stmt.ExecContext(ctx, id, string(e.Lot.Status), string(record), now); err != nil {
			return eris.Wrapf(err, "sqlite: upsert lot %s", id)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

// Close closes the database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
