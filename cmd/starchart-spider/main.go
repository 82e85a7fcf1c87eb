package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"starchart/internal/modkit"
	"starchart/internal/modkit/repokit"
	"starchart/internal/platform/config"
	"starchart/internal/platform/logger"
	"starchart/internal/platform/store"
	crepo "starchart/internal/services/catalog/repo"
	spidermod "starchart/internal/services/spider/module"
	spidersvc "starchart/internal/services/spider/service"

	"github.com/joho/godotenv"
)

func mustSetEnv(key, val string) {
	if val != "" {
		_ = os.Setenv(key, val)
	}
}

func main() {
	_ = godotenv.Load()

	root := config.New()
	pgCfg := root.Prefix("SERVICE_PGSQL_")
	chCfg := root.Prefix("SERVICE_CLICKHOUSE_")

	l := logger.Get()

	st, err := store.Open(context.Background(), store.Config{
		AppName: "starchart-spider",
		PG: store.PGConfig{
			Enabled:     true,
			URL:         pgCfg.MustString("DBURL"),
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 4)),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", false),
		},
		CH: store.CHConfig{
			Enabled: chCfg.MayBool("ENABLED", false),
			Addr:    chCfg.MayString("ADDR", ""),
			DB:      chCfg.MayString("DB", "starchart"),
			User:    chCfg.MayString("USER", "default"),
			Pass:    chCfg.MayString("PASS", ""),
		},
	}, store.WithLogger(*l))
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	repokit.MustGuard(context.Background(), st)

	// schema is applied on boot; re-running is a no-op
	if err := crepo.NewPG().Bind(st.PG).Migrate(context.Background()); err != nil {
		l.Panic().Err(err).Msg("migrate failed")
	}
	if st.CH != nil {
		if err := spidersvc.EnsureEventTable(context.Background(), st.CH); err != nil {
			l.Panic().Err(err).Msg("event table setup failed")
		}
	}

	var (
		fOnce    = flag.Bool("once", false, "run one crawl cycle per forge and exit")
		fConc    = flag.Int("concurrency", 0, "max concurrent crawl cycles")
		fPerPage = flag.Int("per_page", 0, "repositories requested per page")
		fForges  = flag.String("forges", "", "comma-separated forge base urls (overrides env)")
	)
	flag.Parse()

	// export flags as env so FromConfig sees the same values
	if *fConc > 0 {
		mustSetEnv("SPIDER_WORKER_CONCURRENCY", fmt.Sprintf("%d", *fConc))
	}
	if *fPerPage > 0 {
		mustSetEnv("SPIDER_PER_PAGE", fmt.Sprintf("%d", *fPerPage))
	}
	mustSetEnv("SPIDER_FORGES", *fForges)

	deps := modkit.Deps{
		Log: *l,
		Cfg: root,
		PG:  st.PG,
		CH:  st.CH,
	}

	mod := spidermod.New(deps, spidermod.Options{})
	descs := mod.Descriptors()
	if len(descs) == 0 {
		l.Fatal().Msg("no forges configured, set SPIDER_FORGES or -forges")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *fOnce {
		if err := mod.Port().RunOnce(ctx, descs); err != nil && ctx.Err() == nil {
			l.Fatal().Err(err).Msg("crawl run failed")
		}
		return
	}
	if err := mod.Port().Run(ctx, descs); err != nil && ctx.Err() == nil {
		l.Fatal().Err(err).Msg("spider stopped")
	}
}
