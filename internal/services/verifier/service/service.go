// Package service implements DNS TXT ownership verification
package service

import (
	"context"
	"net"
	"time"

	"starchart/internal/forge"
	"starchart/internal/modkit"
	perr "starchart/internal/platform/errors"
	"starchart/internal/platform/logger"
	cdom "starchart/internal/services/catalog/domain"
	crepo "starchart/internal/services/catalog/repo"

	"github.com/google/uuid"
)

// RecordPrefix is the TXT record owner name prepended to the claimed domain
const RecordPrefix = "_starchart-challenge"

// RecordName returns the DNS owner name a claimant must publish the token under
func RecordName(dom string) string { return RecordPrefix + "." + dom }

// Resolver is the single DNS operation verification needs
// *net.Resolver satisfies it
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// Config controls challenge issuance and lookup behavior
type Config struct {
	TTL           time.Duration
	LookupTimeout time.Duration
}

// Svc implements domain.VerifierPort
type Svc struct {
	store    crepo.Store
	cfg      Config
	resolver Resolver
	now      func() time.Time
	newToken func() string
}

// New constructs the service bound to the process database
func New(deps modkit.Deps, cfg Config) *Svc {
	return NewWith(crepo.NewPG().Bind(deps.PG), cfg)
}

// NewWith constructs the service over an explicit store
func NewWith(store crepo.Store, cfg Config) *Svc {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 5 * time.Second
	}
	return &Svc{
		store:    store,
		cfg:      cfg,
		resolver: net.DefaultResolver,
		now:      time.Now,
		newToken: uuid.NewString,
	}
}

// WithResolver overrides the DNS resolver seam
func (s *Svc) WithResolver(r Resolver) *Svc {
	s.resolver = r
	return s
}

// Issue creates a pending challenge for dom, or returns the existing pending
// one unchanged so repeated requests cannot be used to rotate tokens
func (s *Svc) Issue(ctx context.Context, dom string) (cdom.Challenge, error) {
	host := forge.NormalizeHostname(dom)
	if host == "" {
		return cdom.Challenge{}, perr.InvalidArgf("empty domain")
	}
	ctx = logger.WithCrawl(ctx, "", host)
	now := s.now()

	cur, err := s.store.GetChallenge(ctx, host)
	switch {
	case err == nil && cur.Status == cdom.ChallengePending && !cur.ExpiredAt(now):
		return cur, nil
	case err != nil && !perr.IsCode(err, perr.ErrorCodeNotFound):
		return cdom.Challenge{}, err
	}

	c := cdom.Challenge{
		Domain:    host,
		Token:     s.newToken(),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.TTL),
		Status:    cdom.ChallengePending,
	}
	if err := s.store.AddChallenge(ctx, c); err != nil {
		return cdom.Challenge{}, err
	}
	logger.C(ctx).Info().
		Str("record", RecordName(host)).
		Time("expires_at", c.ExpiresAt).
		Msg("challenge issued")
	return c, nil
}

// Verify performs one lookup attempt against the challenge for dom
// Exactly one state transition happens per attempt; terminal states are sticky
func (s *Svc) Verify(ctx context.Context, dom string) (cdom.Challenge, error) {
	host := forge.NormalizeHostname(dom)
	if host == "" {
		return cdom.Challenge{}, perr.InvalidArgf("empty domain")
	}
	ctx = logger.WithCrawl(ctx, "", host)

	c, err := s.store.GetChallenge(ctx, host)
	if err != nil {
		return cdom.Challenge{}, err
	}

	switch c.Status {
	case cdom.ChallengeVerified:
		// already settled; verifying again is a no-op success
		return c, nil
	case cdom.ChallengeExpired:
		return c, perr.ChallengeExpiredf("challenge for %s expired at %s", host, c.ExpiresAt)
	}

	now := s.now()
	if c.ExpiredAt(now) {
		if err := s.store.MarkChallenge(ctx, host, c.Status, cdom.ChallengeExpired); err != nil {
			return c, err
		}
		c.Status = cdom.ChallengeExpired
		logger.C(ctx).Info().Msg("challenge expired")
		return c, perr.ChallengeExpiredf("challenge for %s expired at %s", host, c.ExpiresAt)
	}

	records, lookupErr := s.lookup(ctx, RecordName(host))
	if lookupErr == nil {
		for _, rec := range records {
			if rec == c.Token {
				if err := s.store.MarkChallenge(ctx, host, c.Status, cdom.ChallengeVerified); err != nil {
					return c, err
				}
				c.Status = cdom.ChallengeVerified
				logger.C(ctx).Info().Msg("challenge verified")
				return c, nil
			}
		}
	}

	// lookup failure and token mismatch both count as one failed attempt;
	// the challenge stays retryable until its window lapses
	if c.Status != cdom.ChallengeFailed {
		if err := s.store.MarkChallenge(ctx, host, c.Status, cdom.ChallengeFailed); err != nil {
			return c, err
		}
		c.Status = cdom.ChallengeFailed
	}
	if lookupErr != nil {
		logger.C(ctx).Warn().Err(lookupErr).Msg("challenge lookup failed")
		return c, perr.ChallengeMismatchf("txt lookup for %s failed: %v", RecordName(host), lookupErr)
	}
	logger.C(ctx).Info().Int("records", len(records)).Msg("challenge token not found")
	return c, perr.ChallengeMismatchf("no txt record at %s matches the issued token", RecordName(host))
}

// Admitted reports whether dom has completed verification
func (s *Svc) Admitted(ctx context.Context, dom string) (bool, error) {
	host := forge.NormalizeHostname(dom)
	if host == "" {
		return false, perr.InvalidArgf("empty domain")
	}
	c, err := s.store.GetChallenge(ctx, host)
	if perr.IsCode(err, perr.ErrorCodeNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return c.Status == cdom.ChallengeVerified, nil
}

func (s *Svc) lookup(ctx context.Context, name string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	defer cancel()
	return s.resolver.LookupTXT(ctx, name)
}
