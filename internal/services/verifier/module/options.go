package module

import (
	"time"

	"starchart/internal/platform/config"
)

// Options controls challenge issuance
type Options struct {
	TTL           time.Duration
	LookupTimeout time.Duration
}

// FromConfig reads with VERIFIER_ prefix
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("VERIFIER_")
	return Options{
		TTL:           c.MayDuration("CHALLENGE_TTL", 5*time.Minute),
		LookupTimeout: c.MayDuration("LOOKUP_TIMEOUT", 5*time.Second),
	}
}
