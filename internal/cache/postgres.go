package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/bankrot-cli/internal/db"
	"github.com/sells-group/bankrot-cli/internal/model"
)

const postgresMigration = `
CREATE TABLE IF NOT EXISTS bankrot_lots (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	record     JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_bankrot_lots_status ON bankrot_lots(status);
`

var lotUpsert = db.UpsertConfig{
	Table:        "bankrot_lots",
	Columns:      []string{"id", "status", "record", "updated_at"},
	ConflictKeys: []string{"id"},
}

// PostgresBackend stores one JSONB row per lot.
type PostgresBackend struct {
	pool db.Pool
}

// NewPostgresBackend connects to databaseURL and creates the lots table.
func NewPostgresBackend(ctx context.Context, databaseURL string) (*PostgresBackend, error) {
	pgxCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 4
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	b := &PostgresBackend{pool: pool}
	if err := b.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return b, nil
}

// Migrate creates the lots table if needed.
func (b *PostgresBackend) Migrate(ctx context.Context) error {
	_, err := b.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Location names the backing table.
func (b *PostgresBackend) Location() string { return "postgres:" + lotUpsert.Table }

// Load reads every lot row.
func (b *PostgresBackend) Load(ctx context.Context) (map[string]model.CacheEntry, error) {
	rows, err := b.pool.Query(ctx, `SELECT id, record FROM bankrot_lots`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query lots")
	}
	defer rows.Close()

	entries := make(map[string]model.CacheEntry)
	for rows.Next() {
		var (
			id     string
			record []byte
		)
		if err := rows.Scan(&id, &record); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lot")
		}
		var e model.CacheEntry
		if err := json.Unmarshal(record, &e); err != nil {
			return nil, eris.Wrapf(err, "postgres: decode lot %s", id)
		}
		entries[id] = e
	}
	return entries, eris.Wrap(rows.Err(), "postgres: iterate lots")
}

// Save upserts the dirty lots in one transaction.
func (b *PostgresBackend) Save(ctx context.Context, snapshot map[string]model.CacheEntry, dirty []string) error {
	if len(dirty) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(dirty))
	for _, id := range dirty {
		e, ok := snapshot[id]
		if !ok {
			continue
		}
		record, err := json.Marshal(e)
		if err != nil {
			return eris.Wrapf(err, "postgres: encode lot %s", id)
		}
		rows = append(rows, []any{id, string(e.Lot.Status), record, now})
	}

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := db.UpsertTx(ctx, tx, lotUpsert, rows); err != nil {
		return eris.Wrap(err, "postgres: upsert lots")
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

// Close closes the pool.
func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}
