// Package module exposes the operator HTTP API: challenge lifecycle,
// catalog search, and forge removal
package module

import (
	"starchart/internal/modkit"
	crepo "starchart/internal/services/catalog/repo"
	vdom "starchart/internal/services/verifier/domain"
	vmod "starchart/internal/services/verifier/module"
)

// Module defines the operator module
type Module struct {
	store    crepo.Store
	verifier vdom.VerifierPort
}

// New constructs the operator module bound to the process database
func New(deps modkit.Deps) *Module {
	return NewWith(
		crepo.NewPG().Bind(deps.PG),
		vmod.New(deps, vmod.Options{}).Port(),
	)
}

// NewWith constructs the module over explicit collaborators
func NewWith(store crepo.Store, verifier vdom.VerifierPort) *Module {
	return &Module{store: store, verifier: verifier}
}

// Name returns the module name
func (m *Module) Name() string { return "operator" }
