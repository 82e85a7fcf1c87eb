// Package repo provides the catalog storage contract and its implementations
package repo

import (
	"context"

	"starchart/internal/modkit/repokit"
	"starchart/internal/services/catalog/domain"
)

// Store is the durable persistence contract the crawl engine and the domain
// verifier depend on. All Add*/Create* operations are upserts keyed by natural
// key: re-applying the same write has no additional effect, and a duplicate-key
// outcome is success, not error. Implementations must serialize concurrent
// upserts to the same key with full-row replace (last writer wins, no partial
// merges)
type Store interface {
	// Migrate applies versioned, forward-only schema changes exactly once;
	// safe to call on every startup
	Migrate(ctx context.Context) error

	// Forges, keyed by hostname
	CreateForge(ctx context.Context, f domain.ForgeRecord) error
	GetForge(ctx context.Context, hostname string) (domain.ForgeRecord, error)
	ForgeExists(ctx context.Context, hostname string) (bool, error)
	TouchForge(ctx context.Context, hostname string) error
	DeleteForge(ctx context.Context, hostname string) error

	// Repositories and users, keyed by (forge hostname, external id)
	AddRepository(ctx context.Context, r domain.RepositoryRecord) error
	AddUser(ctx context.Context, u domain.UserRecord) error
	DeleteRepository(ctx context.Context, forgeHost string, externalID int64) error
	DeleteUser(ctx context.Context, forgeHost string, externalID int64) error
	SearchRepositories(ctx context.Context, q string, limit int) ([]domain.RepositoryRecord, error)

	// Challenges, keyed by domain. AddChallenge replaces any prior row for the
	// domain (a domain has at most one pending challenge). MarkChallenge is a
	// compare-and-set on the current status: a mismatch or a transition out of
	// a terminal state fails with invalid-transition, never silently succeeds
	AddChallenge(ctx context.Context, c domain.Challenge) error
	GetChallenge(ctx context.Context, dom string) (domain.Challenge, error)
	MarkChallenge(ctx context.Context, dom string, from, to domain.ChallengeStatus) error

	// Crawl cursors, keyed by forge hostname; opaque to storage
	SaveCursor(ctx context.Context, forgeHost, position string) error
	GetCursor(ctx context.Context, forgeHost string) (string, error)
}

// NewPG returns a binder producing the Postgres implementation
func NewPG() repokit.Binder[Store] {
	return repokit.BindFunc[Store](func(q repokit.Queryer) Store {
		return &queries{q: q}
	})
}
