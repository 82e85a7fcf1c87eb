// Package domain defines the ownership verification ports and types
package domain

import (
	"context"

	cdom "starchart/internal/services/catalog/domain"
)

// VerifierPort issues and checks DNS TXT ownership challenges
type VerifierPort interface {
	// Issue creates a challenge for dom or returns the live pending one
	Issue(ctx context.Context, dom string) (cdom.Challenge, error)

	// Verify performs one DNS lookup attempt and advances the challenge state
	Verify(ctx context.Context, dom string) (cdom.Challenge, error)

	// Admitted reports whether dom currently holds a verified challenge
	Admitted(ctx context.Context, dom string) (bool, error)
}
