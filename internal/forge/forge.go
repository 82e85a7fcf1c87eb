// Package forge defines the client contract a hosting platform integration
// must satisfy, plus the descriptor and registry used to construct clients
package forge

import (
	"context"
	"time"
)

// UserAgent is sent on every request to a forge
// fixed for the process lifetime; never mutated
const UserAgent = "starchart-spider"

// Kind identifies a forge software family
// New kinds are independent implementations of Client, never variants of each other
type Kind string

// Supported forge kinds
const (
	KindGitea Kind = "gitea"
)

// Cursor is an opaque pagination position returned by a Client
// Empty means start from the beginning when passed in, end of listing when returned
// Replaying a previously returned cursor is always safe (at-least-once delivery)
type Cursor string

// ListQuery asks for one page of a full repository listing
type ListQuery struct {
	Cursor  Cursor
	PerPage int
}

// SearchQuery asks for one page of a keyword search
type SearchQuery struct {
	Query   string
	Cursor  Cursor
	PerPage int
}

// Repo is the normalized repository shape a client returns
type Repo struct {
	ID          int64
	Name        string
	Owner       string
	Description string
	Website     string
	Topics      []string
	Private     bool
	HTMLURL     string
	UpdatedAt   time.Time
}

// User is the normalized user or organization shape a client returns
type User struct {
	ID        int64
	Username  string
	FullName  string
	IsOrg     bool
	AvatarURL string
	HTMLURL   string
}

// Page is one page of repositories plus the position of the next one
type Page struct {
	Repos []Repo
	Next  Cursor
}

// Done reports end of listing
func (p Page) Done() bool { return p.Next == "" }

// Client is the polymorphic surface for one forge instance.
// Implementations must return project errors: unavailable (retryable, with a
// retry-after hint on rate limits), unauthorized and not-found (non-retryable).
// Pagination is deterministic and forward-only.
type Client interface {
	ListRepositories(ctx context.Context, q ListQuery) (Page, error)
	SearchRepositories(ctx context.Context, q SearchQuery) (Page, error)
	GetUser(ctx context.Context, username string) (User, error)
}
