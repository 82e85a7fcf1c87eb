package repo

import (
	"context"
	stderrs "errors"
	"time"

	"starchart/internal/modkit/repokit"
	perr "starchart/internal/platform/errors"
	"starchart/internal/services/catalog/domain"

	"github.com/jackc/pgx/v5"
)

// queries is the Postgres Store bound to a Queryer (pool or open transaction)
type queries struct {
	q repokit.Queryer
}

func (r *queries) CreateForge(ctx context.Context, f domain.ForgeRecord) error {
	const sql = `
		INSERT INTO forges (hostname, kind, base_url, added_at)
		VALUES ($1, $2, $3, COALESCE($4, NOW()))
		ON CONFLICT (hostname) DO UPDATE
		SET kind = EXCLUDED.kind, base_url = EXCLUDED.base_url`
	var added any
	if !f.AddedAt.IsZero() {
		added = f.AddedAt
	}
	_, err := r.q.Exec(ctx, sql, f.Hostname, f.Kind, f.BaseURL, added)
	return perr.FromPostgresf(err, "create forge %s failed", f.Hostname)
}

func (r *queries) GetForge(ctx context.Context, hostname string) (domain.ForgeRecord, error) {
	const sql = `
		SELECT hostname, kind, base_url, added_at, last_crawled_at
		FROM forges WHERE hostname = $1`
	var f domain.ForgeRecord
	err := r.q.QueryRow(ctx, sql, hostname).
		Scan(&f.Hostname, &f.Kind, &f.BaseURL, &f.AddedAt, &f.LastCrawledAt)
	if stderrs.Is(err, pgx.ErrNoRows) {
		return domain.ForgeRecord{}, perr.NotFoundf("forge %s not found", hostname)
	}
	if err != nil {
		return domain.ForgeRecord{}, perr.FromPostgresf(err, "get forge %s failed", hostname)
	}
	return f, nil
}

func (r *queries) ForgeExists(ctx context.Context, hostname string) (bool, error) {
	const sql = `SELECT EXISTS (SELECT 1 FROM forges WHERE hostname = $1)`
	var ok bool
	if err := r.q.QueryRow(ctx, sql, hostname).Scan(&ok); err != nil {
		return false, perr.FromPostgresf(err, "forge exists %s failed", hostname)
	}
	return ok, nil
}

func (r *queries) TouchForge(ctx context.Context, hostname string) error {
	const sql = `UPDATE forges SET last_crawled_at = NOW() WHERE hostname = $1`
	ct, err := r.q.Exec(ctx, sql, hostname)
	if err != nil {
		return perr.FromPostgresf(err, "touch forge %s failed", hostname)
	}
	if ct.RowsAffected() == 0 {
		return perr.NotFoundf("forge %s not found", hostname)
	}
	return nil
}

func (r *queries) DeleteForge(ctx context.Context, hostname string) error {
	// children cascade; deleting an absent forge is a no-op
	const sql = `DELETE FROM forges WHERE hostname = $1`
	_, err := r.q.Exec(ctx, sql, hostname)
	return perr.FromPostgresf(err, "delete forge %s failed", hostname)
}

func (r *queries) AddRepository(ctx context.Context, rec domain.RepositoryRecord) error {
	const sql = `
		INSERT INTO repositories
			(forge_host, external_id, name, owner, description, website, html_url, topics, private, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (forge_host, external_id) DO UPDATE SET
			name = EXCLUDED.name,
			owner = EXCLUDED.owner,
			description = EXCLUDED.description,
			website = EXCLUDED.website,
			html_url = EXCLUDED.html_url,
			topics = EXCLUDED.topics,
			private = EXCLUDED.private,
			updated_at = EXCLUDED.updated_at`
	topics := rec.Topics
	if topics == nil {
		topics = []string{}
	}
	_, err := r.q.Exec(ctx, sql,
		rec.ForgeHost, rec.ExternalID, rec.Name, rec.Owner, rec.Description,
		rec.Website, rec.HTMLURL, topics, rec.Private, rec.UpdatedAt)
	return perr.FromPostgresf(err, "add repository %s/%d failed", rec.ForgeHost, rec.ExternalID)
}

func (r *queries) AddUser(ctx context.Context, u domain.UserRecord) error {
	const sql = `
		INSERT INTO users (forge_host, external_id, username, full_name, avatar_url, html_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (forge_host, external_id) DO UPDATE SET
			username = EXCLUDED.username,
			full_name = EXCLUDED.full_name,
			avatar_url = EXCLUDED.avatar_url,
			html_url = EXCLUDED.html_url`
	_, err := r.q.Exec(ctx, sql,
		u.ForgeHost, u.ExternalID, u.Username, u.FullName, u.AvatarURL, u.HTMLURL)
	return perr.FromPostgresf(err, "add user %s/%d failed", u.ForgeHost, u.ExternalID)
}

func (r *queries) DeleteRepository(ctx context.Context, forgeHost string, externalID int64) error {
	const sql = `DELETE FROM repositories WHERE forge_host = $1 AND external_id = $2`
	_, err := r.q.Exec(ctx, sql, forgeHost, externalID)
	return perr.FromPostgresf(err, "delete repository %s/%d failed", forgeHost, externalID)
}

func (r *queries) DeleteUser(ctx context.Context, forgeHost string, externalID int64) error {
	const sql = `DELETE FROM users WHERE forge_host = $1 AND external_id = $2`
	_, err := r.q.Exec(ctx, sql, forgeHost, externalID)
	return perr.FromPostgresf(err, "delete user %s/%d failed", forgeHost, externalID)
}

func (r *queries) SearchRepositories(ctx context.Context, q string, limit int) ([]domain.RepositoryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const sql = `
		SELECT forge_host, external_id, name, owner, description, website, html_url, topics, private, updated_at
		FROM repositories
		WHERE name ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%'
		ORDER BY forge_host, external_id
		LIMIT $2`
	rows, err := r.q.Query(ctx, sql, q, limit)
	if err != nil {
		return nil, perr.FromPostgres(err, "search repositories failed")
	}
	defer rows.Close()

	out := make([]domain.RepositoryRecord, 0, limit)
	for rows.Next() {
		var rec domain.RepositoryRecord
		var updated *time.Time
		if err := rows.Scan(&rec.ForgeHost, &rec.ExternalID, &rec.Name, &rec.Owner,
			&rec.Description, &rec.Website, &rec.HTMLURL, &rec.Topics, &rec.Private, &updated); err != nil {
			return nil, perr.FromPostgres(err, "scan repository failed")
		}
		if updated != nil {
			rec.UpdatedAt = *updated
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, perr.FromPostgres(err, "search repositories failed")
	}
	return out, nil
}

func (r *queries) AddChallenge(ctx context.Context, c domain.Challenge) error {
	const sql = `
		INSERT INTO challenges (domain, token, issued_at, expires_at, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (domain) DO UPDATE SET
			token = EXCLUDED.token,
			issued_at = EXCLUDED.issued_at,
			expires_at = EXCLUDED.expires_at,
			status = EXCLUDED.status`
	_, err := r.q.Exec(ctx, sql, c.Domain, c.Token, c.IssuedAt, c.ExpiresAt, string(c.Status))
	return perr.FromPostgresf(err, "add challenge %s failed", c.Domain)
}

func (r *queries) GetChallenge(ctx context.Context, dom string) (domain.Challenge, error) {
	const sql = `
		SELECT domain, token, issued_at, expires_at, status
		FROM challenges WHERE domain = $1`
	var c domain.Challenge
	var status string
	err := r.q.QueryRow(ctx, sql, dom).
		Scan(&c.Domain, &c.Token, &c.IssuedAt, &c.ExpiresAt, &status)
	if stderrs.Is(err, pgx.ErrNoRows) {
		return domain.Challenge{}, perr.NotFoundf("challenge for %s not found", dom)
	}
	if err != nil {
		return domain.Challenge{}, perr.FromPostgresf(err, "get challenge %s failed", dom)
	}
	c.Status = domain.ChallengeStatus(status)
	return c, nil
}

// MarkChallenge is a compare-and-set: the row must currently hold from.
// A zero-row update is disambiguated with a follow-up read so callers can tell
// "challenge gone" from "state moved underneath us"
func (r *queries) MarkChallenge(ctx context.Context, dom string, from, to domain.ChallengeStatus) error {
	// terminal states never change again, so this check is race-free
	if from.Terminal() {
		return perr.InvalidTransitionf("challenge %s is %s, cannot move %s -> %s",
			dom, from, from, to)
	}
	const sql = `UPDATE challenges SET status = $3 WHERE domain = $1 AND status = $2`
	ct, err := r.q.Exec(ctx, sql, dom, string(from), string(to))
	if err != nil {
		return perr.FromPostgresf(err, "mark challenge %s failed", dom)
	}
	if ct.RowsAffected() > 0 {
		return nil
	}

	cur, err := r.GetChallenge(ctx, dom)
	if err != nil {
		return err
	}
	return perr.InvalidTransitionf("challenge %s is %s, cannot move %s -> %s",
		dom, cur.Status, from, to)
}

func (r *queries) SaveCursor(ctx context.Context, forgeHost, position string) error {
	const sql = `
		INSERT INTO crawl_cursors (forge_host, position, saved_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (forge_host) DO UPDATE SET
			position = EXCLUDED.position,
			saved_at = NOW()`
	_, err := r.q.Exec(ctx, sql, forgeHost, position)
	return perr.FromPostgresf(err, "save cursor for %s failed", forgeHost)
}

func (r *queries) GetCursor(ctx context.Context, forgeHost string) (string, error) {
	const sql = `SELECT position FROM crawl_cursors WHERE forge_host = $1`
	var pos string
	err := r.q.QueryRow(ctx, sql, forgeHost).Scan(&pos)
	if stderrs.Is(err, pgx.ErrNoRows) {
		// no cursor yet means start from the beginning
		return "", nil
	}
	if err != nil {
		return "", perr.FromPostgresf(err, "get cursor for %s failed", forgeHost)
	}
	return pos, nil
}
