// Package module wires the verifier service and exposes its port
package module

import (
	"starchart/internal/modkit"
	"starchart/internal/services/verifier/domain"
	"starchart/internal/services/verifier/service"
)

// Module defines the verifier module
type Module struct {
	deps modkit.Deps
	port domain.VerifierPort
}

// New constructs the verifier module
func New(deps modkit.Deps, overrides Options) *Module {
	opts := FromConfig(deps.Cfg)
	if overrides.TTL != 0 {
		opts.TTL = overrides.TTL
	}
	if overrides.LookupTimeout != 0 {
		opts.LookupTimeout = overrides.LookupTimeout
	}

	svc := service.New(deps, service.Config{
		TTL:           opts.TTL,
		LookupTimeout: opts.LookupTimeout,
	})
	return &Module{deps: deps, port: svc}
}

// Port returns the verifier port
func (m *Module) Port() domain.VerifierPort { return m.port }

// Name returns the module name
func (m *Module) Name() string { return "verifier" }
