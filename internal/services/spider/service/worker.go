package service

import (
	"context"
	"sync"
	"time"

	"starchart/internal/forge"
	perr "starchart/internal/platform/errors"
	"starchart/internal/platform/logger"
	cdom "starchart/internal/services/catalog/domain"
)

// RunOnce crawls every descriptor one full cycle with bounded concurrency
// Descriptor failures are logged and isolated; only cancellation is returned
func (s *Svc) RunOnce(ctx context.Context, descs []forge.Descriptor) error {
	log := logger.Named("spider")
	sem := make(chan struct{}, s.cfg.Concurrency)
	var wg sync.WaitGroup

	for i := range descs {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case sem <- struct{}{}:
		}
		wg.Add(1)
		d := descs[i]
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := s.crawlCycle(ctx, d); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Str("forge", d.Hostname).Msg("crawl cycle failed")
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

// Run crawls every descriptor on its own poll interval until ctx is done
func (s *Svc) Run(ctx context.Context, descs []forge.Descriptor) error {
	log := logger.Named("spider")
	sem := make(chan struct{}, s.cfg.Concurrency)
	var wg sync.WaitGroup

	for i := range descs {
		wg.Add(1)
		d := descs[i]
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case sem <- struct{}{}:
				}
				err := s.crawlCycle(ctx, d)
				<-sem
				if err != nil && ctx.Err() == nil {
					log.Warn().Err(err).Str("forge", d.Hostname).Msg("crawl cycle failed")
				}
				interval := d.PollInterval
				if interval <= 0 {
					interval = time.Hour
				}
				if s.sleep(ctx, interval) != nil {
					return
				}
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

// crawlCycle runs one full pagination pass over a single forge
// The cursor is persisted after every committed page, so a crash or shutdown
// resumes from the last committed page instead of restarting the cycle
func (s *Svc) crawlCycle(ctx context.Context, d forge.Descriptor) error {
	if err := d.Normalize(); err != nil {
		return err
	}
	ctx = logger.WithCrawl(ctx, d.Hostname, "")
	log := logger.C(ctx)

	if d.VerifyRequired {
		ok, err := s.verifier.Admitted(ctx, d.Hostname)
		if err != nil {
			return err
		}
		if !ok {
			// make sure a challenge exists so the operator can act, then
			// skip this cycle; admission is re-checked on the next poll
			c, err := s.verifier.Issue(ctx, d.Hostname)
			if err != nil {
				return err
			}
			s.events.Emit(ctx, CrawlEvent{
				At: time.Now(), Forge: d.Hostname, Kind: EventSkipped,
				Detail: "ownership not verified, challenge " + string(c.Status),
			})
			log.Info().Str("challenge_status", string(c.Status)).Msg("descriptor skipped, unverified")
			return nil
		}
	}

	client, err := s.reg.New(d)
	if err != nil {
		return err
	}

	if err := s.store.CreateForge(ctx, cdom.ForgeRecord{
		Hostname: d.Hostname,
		Kind:     string(d.Kind),
		BaseURL:  d.BaseURL,
	}); err != nil {
		return err
	}

	pos, err := s.store.GetCursor(ctx, d.Hostname)
	if err != nil {
		return err
	}
	cursor := forge.Cursor(pos)
	s.events.Emit(ctx, CrawlEvent{At: time.Now(), Forge: d.Hostname, Kind: EventCycleStart, Cursor: pos})

	owners := make(map[string]forge.User)
	for {
		page, err := s.fetchPage(ctx, client, forge.ListQuery{Cursor: cursor, PerPage: s.cfg.PerPage})
		if err != nil {
			s.events.Emit(ctx, CrawlEvent{
				At: time.Now(), Forge: d.Hostname, Kind: EventCycleAbort,
				Cursor: string(cursor), Detail: err.Error(),
			})
			return err
		}

		if err := s.commitPage(ctx, client, d, page, owners); err != nil {
			s.events.Emit(ctx, CrawlEvent{
				At: time.Now(), Forge: d.Hostname, Kind: EventCycleAbort,
				Cursor: string(cursor), Detail: err.Error(),
			})
			return err
		}

		next := page.Next
		if err := s.store.SaveCursor(ctx, d.Hostname, string(next)); err != nil {
			return err
		}
		s.events.Emit(ctx, CrawlEvent{
			At: time.Now(), Forge: d.Hostname, Kind: EventPage,
			Cursor: string(next), Repos: len(page.Repos),
		})

		if page.Done() {
			break
		}
		cursor = next

		// a committed page is a clean stopping point on shutdown
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if err := s.store.TouchForge(ctx, d.Hostname); err != nil {
		return err
	}
	s.events.Emit(ctx, CrawlEvent{At: time.Now(), Forge: d.Hostname, Kind: EventCycleDone})
	log.Info().Msg("crawl cycle complete")
	return nil
}

// commitPage upserts every repository on the page, owner first
func (s *Svc) commitPage(ctx context.Context, client forge.Client, d forge.Descriptor, page forge.Page, owners map[string]forge.User) error {
	log := logger.C(ctx)
	for _, r := range page.Repos {
		if u, err := s.ownerUser(ctx, client, owners, r.Owner); err == nil && u.ID != 0 {
			if err := s.store.AddUser(ctx, cdom.UserRecord{
				ForgeHost:  d.Hostname,
				ExternalID: u.ID,
				Username:   u.Username,
				FullName:   u.FullName,
				AvatarURL:  u.AvatarURL,
				HTMLURL:    u.HTMLURL,
			}); err != nil {
				return err
			}
		} else if err != nil {
			// a missing or unreadable owner does not block the repository row
			log.Warn().Err(err).Str("owner", r.Owner).Msg("owner lookup failed")
		}

		if err := s.store.AddRepository(ctx, cdom.RepositoryRecord{
			ForgeHost:   d.Hostname,
			ExternalID:  r.ID,
			Name:        r.Name,
			Owner:       r.Owner,
			Description: r.Description,
			Website:     r.Website,
			HTMLURL:     r.HTMLURL,
			Topics:      r.Topics,
			Private:     r.Private,
			UpdatedAt:   r.UpdatedAt,
		}); err != nil {
			return err
		}
	}
	return nil
}

// ownerUser resolves an owner login once per cycle
func (s *Svc) ownerUser(ctx context.Context, client forge.Client, cache map[string]forge.User, login string) (forge.User, error) {
	if login == "" {
		return forge.User{}, nil
	}
	if u, ok := cache[login]; ok {
		return u, nil
	}
	u, err := client.GetUser(ctx, login)
	if err != nil {
		return forge.User{}, err
	}
	cache[login] = u
	return u, nil
}

// fetchPage retries transient listing failures with exponential backoff
// A Retry-After hint from the forge overrides the computed backoff when larger
// Unauthorized and other persistent failures abort immediately
func (s *Svc) fetchPage(ctx context.Context, client forge.Client, q forge.ListQuery) (forge.Page, error) {
	var attempt int
	for {
		page, err := client.ListRepositories(ctx, q)
		if err == nil {
			return page, nil
		}
		if !perr.Transient(err) {
			return forge.Page{}, err
		}
		attempt++
		if attempt >= s.cfg.MaxAttempts {
			return forge.Page{}, err
		}
		wait := s.backoff(attempt)
		if ra := perr.RetryAfterOf(err); ra > wait {
			wait = ra
		}
		logger.C(ctx).Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("sleep", wait).
			Msg("transient fetch failure, backing off")
		if err := s.sleep(ctx, wait); err != nil {
			return forge.Page{}, err
		}
	}
}

// backoff is simple exponential with a cap
func (s *Svc) backoff(attempt int) time.Duration {
	ms := int64(s.cfg.RetryBase / time.Millisecond)
	ms = ms << uint(attempt)
	max := int64(30 * time.Second / time.Millisecond)
	if ms > max {
		ms = max
	}
	return time.Duration(ms) * time.Millisecond
}
