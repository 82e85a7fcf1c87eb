package service

import (
	"context"
	"time"

	"starchart/internal/platform/logger"
	"starchart/internal/platform/store"
)

// Crawl event kinds written to the sink
const (
	EventCycleStart  = "cycle_start"
	EventPage        = "page_committed"
	EventCycleDone   = "cycle_done"
	EventCycleAbort  = "cycle_abort"
	EventSkipped     = "descriptor_skipped"
	EventVerifyIssue = "challenge_issued"
)

// CrawlEvent is one observable crawl engine occurrence
type CrawlEvent struct {
	At     time.Time
	Forge  string
	Kind   string
	Cursor string
	Repos  int
	Detail string
}

// Sink receives crawl events; implementations must be safe for concurrent use
type Sink interface {
	Emit(ctx context.Context, ev CrawlEvent)
}

// NewSink returns a clickhouse-backed sink, or a log sink when ch is nil
func NewSink(ch store.Clickhouse) Sink {
	if ch == nil {
		return logSink{}
	}
	return &chSink{ch: ch}
}

// EnsureEventTable creates the crawl_events table when it does not exist
func EnsureEventTable(ctx context.Context, ch store.Clickhouse) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS crawl_events (
			at     DateTime64(3),
			forge  LowCardinality(String),
			kind   LowCardinality(String),
			cursor String,
			repos  Int32,
			detail String
		) ENGINE = MergeTree ORDER BY (forge, at)`
	return ch.Exec(ctx, ddl)
}

// chSink appends events to the crawl_events table
type chSink struct {
	ch store.Clickhouse
}

func (s *chSink) Emit(ctx context.Context, ev CrawlEvent) {
	rows := [][]any{{ev.At, ev.Forge, ev.Kind, ev.Cursor, int32(ev.Repos), ev.Detail}}
	if err := s.ch.Insert(ctx, "crawl_events", rows); err != nil {
		// the sink is observability, never a reason to fail a crawl
		logger.Named("spider").Warn().Err(err).Str("kind", ev.Kind).Msg("event sink insert failed")
	}
}

// logSink is the fallback when no columnar store is configured
type logSink struct{}

func (logSink) Emit(_ context.Context, ev CrawlEvent) {
	logger.Named("spider").Info().
		Str("forge", ev.Forge).
		Str("kind", ev.Kind).
		Str("cursor", ev.Cursor).
		Int("repos", ev.Repos).
		Str("detail", ev.Detail).
		Msg("crawl event")
}
