package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	perr "starchart/internal/platform/errors"
	"starchart/internal/services/catalog/domain"
)

type entityKey struct {
	forgeHost  string
	externalID int64
}

// Memory is an in-process Store with the same upsert and compare-and-set
// semantics as the Postgres implementation. Used by tests and by single-node
// deployments that do not want a database
type Memory struct {
	mu      sync.Mutex
	now     func() time.Time
	forges  map[string]domain.ForgeRecord
	users   map[entityKey]domain.UserRecord
	repos   map[entityKey]domain.RepositoryRecord
	chals   map[string]domain.Challenge
	cursors map[string]domain.CrawlCursor
}

// NewMemory returns an empty in-memory Store
func NewMemory() *Memory {
	return &Memory{
		now:     time.Now,
		forges:  make(map[string]domain.ForgeRecord),
		users:   make(map[entityKey]domain.UserRecord),
		repos:   make(map[entityKey]domain.RepositoryRecord),
		chals:   make(map[string]domain.Challenge),
		cursors: make(map[string]domain.CrawlCursor),
	}
}

// Migrate is a no-op; there is no schema to evolve
func (m *Memory) Migrate(context.Context) error { return nil }

func (m *Memory) CreateForge(_ context.Context, f domain.ForgeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.forges[f.Hostname]; ok {
		// re-registering keeps the original admission time and crawl history
		f.AddedAt = prev.AddedAt
		f.LastCrawledAt = prev.LastCrawledAt
	} else if f.AddedAt.IsZero() {
		f.AddedAt = m.now()
	}
	m.forges[f.Hostname] = f
	return nil
}

func (m *Memory) GetForge(_ context.Context, hostname string) (domain.ForgeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.forges[hostname]
	if !ok {
		return domain.ForgeRecord{}, perr.NotFoundf("forge %s not found", hostname)
	}
	return f, nil
}

func (m *Memory) ForgeExists(_ context.Context, hostname string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.forges[hostname]
	return ok, nil
}

func (m *Memory) TouchForge(_ context.Context, hostname string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.forges[hostname]
	if !ok {
		return perr.NotFoundf("forge %s not found", hostname)
	}
	t := m.now()
	f.LastCrawledAt = &t
	m.forges[hostname] = f
	return nil
}

func (m *Memory) DeleteForge(_ context.Context, hostname string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.forges, hostname)
	for k := range m.users {
		if k.forgeHost == hostname {
			delete(m.users, k)
		}
	}
	for k := range m.repos {
		if k.forgeHost == hostname {
			delete(m.repos, k)
		}
	}
	delete(m.cursors, hostname)
	return nil
}

func (m *Memory) AddRepository(_ context.Context, r domain.RepositoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repos[entityKey{r.ForgeHost, r.ExternalID}] = r
	return nil
}

func (m *Memory) AddUser(_ context.Context, u domain.UserRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[entityKey{u.ForgeHost, u.ExternalID}] = u
	return nil
}

func (m *Memory) DeleteRepository(_ context.Context, forgeHost string, externalID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.repos, entityKey{forgeHost, externalID})
	return nil
}

func (m *Memory) DeleteUser(_ context.Context, forgeHost string, externalID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, entityKey{forgeHost, externalID})
	return nil
}

func (m *Memory) SearchRepositories(_ context.Context, q string, limit int) ([]domain.RepositoryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	needle := strings.ToLower(q)

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.RepositoryRecord, 0, limit)
	for _, r := range m.repos {
		if strings.Contains(strings.ToLower(r.Name), needle) ||
			strings.Contains(strings.ToLower(r.Description), needle) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ForgeHost != out[j].ForgeHost {
			return out[i].ForgeHost < out[j].ForgeHost
		}
		return out[i].ExternalID < out[j].ExternalID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) AddChallenge(_ context.Context, c domain.Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chals[c.Domain] = c
	return nil
}

func (m *Memory) GetChallenge(_ context.Context, dom string) (domain.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chals[dom]
	if !ok {
		return domain.Challenge{}, perr.NotFoundf("challenge for %s not found", dom)
	}
	return c, nil
}

func (m *Memory) MarkChallenge(_ context.Context, dom string, from, to domain.ChallengeStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if from.Terminal() {
		return perr.InvalidTransitionf("challenge %s is %s, cannot move %s -> %s",
			dom, from, from, to)
	}
	c, ok := m.chals[dom]
	if !ok {
		return perr.NotFoundf("challenge for %s not found", dom)
	}
	if c.Status != from {
		return perr.InvalidTransitionf("challenge %s is %s, cannot move %s -> %s",
			dom, c.Status, from, to)
	}
	c.Status = to
	m.chals[dom] = c
	return nil
}

func (m *Memory) SaveCursor(_ context.Context, forgeHost, position string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[forgeHost] = domain.CrawlCursor{
		ForgeHost: forgeHost,
		Position:  position,
		SavedAt:   m.now(),
	}
	return nil
}

func (m *Memory) GetCursor(_ context.Context, forgeHost string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursors[forgeHost].Position, nil
}
