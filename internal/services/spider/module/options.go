package module

import (
	"time"

	"starchart/internal/platform/config"
)

// Options controls the crawl engine and the crawled forge set
type Options struct {
	Concurrency int
	PerPage     int
	MaxAttempts int
	RetryBase   time.Duration

	// ForgeURLs is the CSV of base urls to crawl; all share Kind and the
	// admission and poll settings below
	ForgeURLs      []string
	ForgeKind      string
	Token          string
	PollInterval   time.Duration
	VerifyRequired bool
}

// FromConfig reads with SPIDER_ prefix
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("SPIDER_")
	return Options{
		Concurrency:    c.MayInt("WORKER_CONCURRENCY", 4),
		PerPage:        c.MayInt("PER_PAGE", 50),
		MaxAttempts:    c.MayInt("MAX_ATTEMPTS", 5),
		RetryBase:      c.MayDuration("RETRY_BASE", 500*time.Millisecond),
		ForgeURLs:      c.MayCSV("FORGES", nil),
		ForgeKind:      c.MayString("FORGE_KIND", "gitea"),
		Token:          c.MayString("TOKEN", ""),
		PollInterval:   c.MayDuration("POLL_INTERVAL", time.Hour),
		VerifyRequired: c.MayBool("VERIFY_REQUIRED", true),
	}
}
