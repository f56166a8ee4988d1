package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"

	"github.com/dkeye/StreamRelay/internal/adapters/eventbus"
	router "github.com/dkeye/StreamRelay/internal/adapters/http"
	"github.com/dkeye/StreamRelay/internal/adapters/rtmp"
	"github.com/dkeye/StreamRelay/internal/app"
	"github.com/dkeye/StreamRelay/internal/config"
	"github.com/dkeye/StreamRelay/internal/core"
	"github.com/dkeye/StreamRelay/internal/metrics"
)

func setupLogger(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		log.Warn().Str("level", cfg.Level).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Console output until the config says otherwise, so config.Load can log.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg.Log)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	registry := core.NewSubscriberRegistry()
	sessions := core.NewSessionTable()
	dispatch := app.NewDispatcher(registry, app.SimplePolicy{}, m)
	orch := app.NewOrchestrator(sessions, registry, dispatch, m)
	orch.Limiter = app.NewPublishLimiter(cfg.PublishLimit.Count, cfg.PublishLimit.Window)

	var bus *eventbus.RedisBus
	if cfg.Redis.Enabled {
		bus, err = eventbus.NewRedisBus(ctx, cfg.Redis, m)
		if err != nil {
			log.Fatal().Err(err).Msg("redis export")
		}
		dispatch.SetExporter(bus)
	}

	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		gatherer = promReg
	}
	r := router.SetupRouter(ctx, cfg, orch, gatherer)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	var wg conc.WaitGroup
	wg.Go(func() {
		log.Info().Str("addr", addr).Msg("StreamRelay server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	})

	if cfg.RTMP.Enabled {
		ingest := rtmp.NewServer(cfg.RTMP.Addr, orch)
		// not joined: the joy4 listener cannot be stopped and dies with the process
		go func() {
			if err := ingest.ListenAndServe(); err != nil {
				log.Error().Err(err).Msg("rtmp server error")
				cancel()
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	err = srv.Shutdown(shutdownCtx)
	wg.Wait()
	if bus != nil {
		err = multierr.Append(err, bus.Close())
	}
	if err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		return
	}
	log.Info().Msg("Server exited gracefully")
}
