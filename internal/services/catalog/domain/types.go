// Package domain holds the catalog entities shared by storage and crawl code
package domain

import "time"

// ChallengeStatus is the state of a domain ownership challenge
type ChallengeStatus string

// Challenge states. Verified and Expired are terminal; Failed stays retryable
// until the validity window elapses
const (
	ChallengePending  ChallengeStatus = "pending"
	ChallengeVerified ChallengeStatus = "verified"
	ChallengeFailed   ChallengeStatus = "failed"
	ChallengeExpired  ChallengeStatus = "expired"
)

// Terminal reports whether no further transition is allowed from s
func (s ChallengeStatus) Terminal() bool {
	return s == ChallengeVerified || s == ChallengeExpired
}

// Known reports whether s is one of the defined states
func (s ChallengeStatus) Known() bool {
	switch s {
	case ChallengePending, ChallengeVerified, ChallengeFailed, ChallengeExpired:
		return true
	}
	return false
}

// ForgeRecord is one cataloged forge instance, keyed by hostname
type ForgeRecord struct {
	Hostname      string
	Kind          string
	BaseURL       string
	AddedAt       time.Time
	LastCrawledAt *time.Time
}

// RepositoryRecord is a cataloged repository
// Natural key: (ForgeHost, ExternalID); upserts replace the full row
type RepositoryRecord struct {
	ForgeHost   string
	ExternalID  int64
	Name        string
	Owner       string
	Description string
	Website     string
	HTMLURL     string
	Topics      []string
	Private     bool
	UpdatedAt   time.Time
}

// UserRecord is a cataloged user or organization
// Natural key: (ForgeHost, ExternalID)
type UserRecord struct {
	ForgeHost  string
	ExternalID int64
	Username   string
	FullName   string
	AvatarURL  string
	HTMLURL    string
}

// Challenge is one domain ownership challenge, keyed by domain
// A domain has at most one live row; re-issuing replaces it
type Challenge struct {
	Domain    string
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Status    ChallengeStatus
}

// ExpiredAt reports whether the validity window has elapsed at now
func (c Challenge) ExpiredAt(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// CrawlCursor is the last committed pagination position for one forge
// The position is opaque to storage; only the crawl engine interprets it
type CrawlCursor struct {
	ForgeHost string
	Position  string
	SavedAt   time.Time
}
