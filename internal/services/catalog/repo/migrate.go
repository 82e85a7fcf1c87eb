package repo

import (
	"context"

	"starchart/internal/modkit/repokit"
	perr "starchart/internal/platform/errors"
)

// migrations are versioned and forward-only; append, never edit
// each entry is applied exactly once, inside its own transaction when the
// bound Queryer supports one
var migrations = []struct {
	version int
	stmts   []string
}{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS forges (
				hostname        TEXT PRIMARY KEY,
				kind            TEXT NOT NULL,
				base_url        TEXT NOT NULL,
				added_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				last_crawled_at TIMESTAMPTZ
			)`,
			`CREATE TABLE IF NOT EXISTS users (
				forge_host  TEXT NOT NULL REFERENCES forges(hostname) ON DELETE CASCADE,
				external_id BIGINT NOT NULL,
				username    TEXT NOT NULL,
				full_name   TEXT NOT NULL DEFAULT '',
				avatar_url  TEXT NOT NULL DEFAULT '',
				html_url    TEXT NOT NULL DEFAULT '',
				PRIMARY KEY (forge_host, external_id)
			)`,
			`CREATE TABLE IF NOT EXISTS repositories (
				forge_host  TEXT NOT NULL REFERENCES forges(hostname) ON DELETE CASCADE,
				external_id BIGINT NOT NULL,
				name        TEXT NOT NULL,
				owner       TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				website     TEXT NOT NULL DEFAULT '',
				html_url    TEXT NOT NULL DEFAULT '',
				topics      TEXT[] NOT NULL DEFAULT '{}',
				private     BOOLEAN NOT NULL DEFAULT FALSE,
				updated_at  TIMESTAMPTZ,
				PRIMARY KEY (forge_host, external_id)
			)`,
			`CREATE TABLE IF NOT EXISTS challenges (
				domain     TEXT PRIMARY KEY,
				token      TEXT NOT NULL,
				issued_at  TIMESTAMPTZ NOT NULL,
				expires_at TIMESTAMPTZ NOT NULL,
				status     TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS crawl_cursors (
				forge_host TEXT PRIMARY KEY,
				position   TEXT NOT NULL,
				saved_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
		},
	},
	{
		version: 2,
		stmts: []string{
			`CREATE INDEX IF NOT EXISTS repositories_name_idx ON repositories (name)`,
			`CREATE INDEX IF NOT EXISTS challenges_status_idx ON challenges (status)`,
		},
	},
}

// Migrate applies pending migrations; a no-op when the schema is current
func (r *queries) Migrate(ctx context.Context) error {
	const versionTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`
	if _, err := r.q.Exec(ctx, versionTable); err != nil {
		return perr.FromPostgres(err, "create schema_migrations failed")
	}

	var current int
	err := r.q.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return perr.FromPostgres(err, "read schema version failed")
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		apply := func(q repokit.Queryer) error {
			for _, s := range m.stmts {
				if _, err := q.Exec(ctx, s); err != nil {
					return perr.FromPostgresf(err, "migration %d failed", m.version)
				}
			}
			_, err := q.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.version)
			return perr.FromPostgresf(err, "record migration %d failed", m.version)
		}

		if tx, ok := r.q.(repokit.TxRunner); ok {
			if err := tx.Tx(ctx, apply); err != nil {
				return err
			}
			continue
		}
		if err := apply(r.q); err != nil {
			return err
		}
	}
	return nil
}
