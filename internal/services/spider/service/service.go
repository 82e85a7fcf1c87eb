// Package service implements the crawl engine
package service

import (
	"context"
	"time"

	"starchart/internal/forge"
	"starchart/internal/forge/gitea"
	"starchart/internal/modkit"
	crepo "starchart/internal/services/catalog/repo"
	vdom "starchart/internal/services/verifier/domain"
	vsvc "starchart/internal/services/verifier/service"
)

const (
	defaultConcurrency = 4
	defaultPerPage     = 50
	defaultMaxAttempts = 5
	defaultRetryBase   = 500 * time.Millisecond
)

// Config controls the crawl engine
type Config struct {
	Concurrency int
	PerPage     int
	MaxAttempts int
	RetryBase   time.Duration
}

// Svc implements domain.CrawlerPort
type Svc struct {
	store    crepo.Store
	verifier vdom.VerifierPort
	reg      *forge.Registry
	events   Sink
	cfg      Config

	// seam for tests; must honor ctx cancellation
	sleep func(ctx context.Context, d time.Duration) error
}

// New constructs the engine bound to the process database and event sink
func New(deps modkit.Deps, cfg Config) *Svc {
	reg := forge.NewRegistry()
	reg.Register(forge.KindGitea, gitea.FromDescriptor)

	return NewWith(
		crepo.NewPG().Bind(deps.PG),
		vsvc.New(deps, vsvc.Config{}),
		reg,
		NewSink(deps.CH),
		cfg,
	)
}

// NewWith constructs the engine over explicit collaborators
func NewWith(store crepo.Store, verifier vdom.VerifierPort, reg *forge.Registry, events Sink, cfg Config) *Svc {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = defaultPerPage
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaultRetryBase
	}
	return &Svc{
		store:    store,
		verifier: verifier,
		reg:      reg,
		events:   events,
		cfg:      cfg,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
