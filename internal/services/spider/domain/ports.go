// Package domain defines the crawl engine ports
package domain

import (
	"context"

	"starchart/internal/forge"
)

// CrawlerPort drives crawl cycles over a set of forge descriptors
type CrawlerPort interface {
	// RunOnce crawls every descriptor one full cycle and returns
	// Descriptor failures are isolated; only context cancellation aborts the run
	RunOnce(ctx context.Context, descs []forge.Descriptor) error

	// Run crawls every descriptor on its poll interval until ctx is done
	Run(ctx context.Context, descs []forge.Descriptor) error
}
