package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"vnmarket/internal/app"
	"vnmarket/internal/assets"
	"vnmarket/internal/config"
	"vnmarket/internal/logger"
	"vnmarket/internal/scheduler"
)

// vnTZ anchors "today" and the cron schedules to the exchange's clock.
var vnTZ = time.FixedZone("ICT", 7*60*60)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	lg := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	logger.SetGlobalLogger(lg)

	a := app.New(cfg, lg)

	// the service starts without funds if the first refresh fails; the
	// scheduled refresh retries
	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	if err := a.Market.Initialize(initCtx); err != nil {
		lg.Warn().Err(err).Msg("fund registry not loaded, fund symbols classify as stocks until the next refresh")
	}
	cancelInit()

	db, err := assets.Open(context.Background(), cfg.Assets.DatabasePath)
	if err != nil {
		lg.Fatal().Err(err).Str("path", cfg.Assets.DatabasePath).Msg("assets database")
	}
	defer db.Close()

	sched := scheduler.New(lg, vnTZ)
	if cfg.Funds.RefreshSchedule != "" {
		job := scheduler.NewFundRefreshJob(a.Market, time.Minute, lg)
		if err := sched.AddJob(cfg.Funds.RefreshSchedule, job); err != nil {
			lg.Fatal().Err(err).Msg("schedule fund refresh")
		}
	}
	if cfg.Cache.PurgeSchedule != "" {
		if err := sched.AddJob(cfg.Cache.PurgeSchedule, scheduler.NewCachePurgeJob(a.Market, lg)); err != nil {
			lg.Fatal().Err(err).Msg("schedule cache purge")
		}
	}
	sched.Start()
	defer sched.Stop()

	timeout := time.Duration(cfg.Server.RequestTimeoutSec) * time.Second
	handlers := &api{
		market:  a.Market,
		assets:  assets.NewRepository(db),
		log:     lg.With().Str("component", "api").Logger(),
		timeout: timeout,
		origins: cfg.Server.AllowedOrigins,
		now:     func() time.Time { return time.Now().In(vnTZ) },
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handlers.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      timeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		lg.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal().Err(err).Msg("server")
		}
	}()

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Warn().Err(err).Msg("shutdown")
	}
}
