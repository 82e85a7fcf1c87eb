// Package module wires the crawl engine and its descriptor set
package module

import (
	"starchart/internal/forge"
	"starchart/internal/modkit"
	"starchart/internal/services/spider/domain"
	"starchart/internal/services/spider/service"
)

// Module defines the spider module
type Module struct {
	deps  modkit.Deps
	port  domain.CrawlerPort
	descs []forge.Descriptor
}

// New constructs the spider module
func New(deps modkit.Deps, overrides Options) *Module {
	opts := FromConfig(deps.Cfg)
	if overrides.Concurrency != 0 {
		opts.Concurrency = overrides.Concurrency
	}
	if overrides.PerPage != 0 {
		opts.PerPage = overrides.PerPage
	}
	if overrides.MaxAttempts != 0 {
		opts.MaxAttempts = overrides.MaxAttempts
	}
	if overrides.RetryBase != 0 {
		opts.RetryBase = overrides.RetryBase
	}
	if len(overrides.ForgeURLs) != 0 {
		opts.ForgeURLs = overrides.ForgeURLs
	}
	if overrides.ForgeKind != "" {
		opts.ForgeKind = overrides.ForgeKind
	}
	if overrides.Token != "" {
		opts.Token = overrides.Token
	}
	if overrides.PollInterval != 0 {
		opts.PollInterval = overrides.PollInterval
	}

	svc := service.New(deps, service.Config{
		Concurrency: opts.Concurrency,
		PerPage:     opts.PerPage,
		MaxAttempts: opts.MaxAttempts,
		RetryBase:   opts.RetryBase,
	})

	descs := make([]forge.Descriptor, 0, len(opts.ForgeURLs))
	for _, u := range opts.ForgeURLs {
		descs = append(descs, forge.Descriptor{
			Kind:           forge.Kind(opts.ForgeKind),
			BaseURL:        u,
			Token:          opts.Token,
			PollInterval:   opts.PollInterval,
			VerifyRequired: opts.VerifyRequired,
		})
	}

	return &Module{deps: deps, port: svc, descs: descs}
}

// Port returns the crawler port
func (m *Module) Port() domain.CrawlerPort { return m.port }

// Descriptors returns the configured forge set
func (m *Module) Descriptors() []forge.Descriptor { return m.descs }

// Name returns the module name
func (m *Module) Name() string { return "spider" }
