package main

import (
	"context"
	stdhttp "net/http"
	"os/signal"
	"syscall"

	"starchart/internal/modkit"
	"starchart/internal/platform/config"
	"starchart/internal/platform/logger"
	"starchart/internal/platform/store"
	"starchart/internal/platform/web"
	crepo "starchart/internal/services/catalog/repo"
	opmod "starchart/internal/services/operator/module"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	root := config.New()
	apiCfg := root.Prefix("CORE_API_")
	pgCfg := root.Prefix("SERVICE_PGSQL_")

	l := logger.Get()

	st, err := store.Open(context.Background(), store.Config{
		AppName: "starchart-web",
		PG: store.PGConfig{
			Enabled:     true,
			URL:         pgCfg.MustString("DBURL"),
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 4)),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", true),
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

	if err := crepo.NewPG().Bind(st.PG).Migrate(context.Background()); err != nil {
		l.Panic().Err(err).Msg("migrate failed")
	}

	deps := modkit.Deps{
		Log: *l,
		Cfg: root,
		PG:  st.PG,
	}

	srv := web.NewServer(apiCfg, func(m *chi.Mux) {
		m.Get("/healthz", web.Handle(func(r *stdhttp.Request) web.Response {
			if err := st.Guard(r.Context()); err != nil {
				return web.Error(err)
			}
			return web.OK(map[string]string{"status": "ok"})
		}))
		opmod.New(deps).MountRoutes(m)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(context.Background()); err != nil {
			l.Error().Err(err).Msg("shutdown failed")
		}
	}()

	if err := srv.Run(ctx); err != nil {
		l.Fatal().Err(err).Msg("http server stopped")
	}
}
