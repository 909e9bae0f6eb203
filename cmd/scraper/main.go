package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"PriceTracker/internal/app"
	"PriceTracker/internal/browser"
	"PriceTracker/internal/database"
	"PriceTracker/internal/metrics"
	"PriceTracker/internal/publisher"
	"PriceTracker/internal/server"
	"PriceTracker/pkg/config"
	"PriceTracker/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yml", "Path to the optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Init("info", "json")
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := database.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("failed to open store")
	}
	defer store.Close()

	m := metrics.New()
	var pub publisher.Publisher = publisher.Noop{}
	if cfg.Redis.Addr != "" {
		redisPub := publisher.NewRedisPublisher(cfg.Redis.Addr, cfg.Redis.DB, cfg.Redis.Stream, cfg.Redis.MaxLen)
		if err := redisPub.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, price changes will fail to publish until it is back")
		}
		pub = redisPub
	}

	application, err := app.New(cfg, app.Deps{
		Store:     store,
		Launcher:  browser.NewRodLauncher(),
		Publisher: pub,
		Metrics:   m,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build application")
	}

	var srv *server.Server
	if cfg.Metrics.Addr != "" {
		srv = server.New(cfg.Metrics.Addr, m)
		srv.Health = application.Healthy
		srv.Start()
	}

	shutdown := func() {
		if srv != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := srv.Shutdown(sctx); err != nil {
				log.Warn().Err(err).Msg("http server shutdown")
			}
			cancel()
		}
		application.Close()
	}

	// A panic escaping the loop still runs cleanup. The process exits 0 on
	// this path as well, matching the graceful shutdown.
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Msg("fatal error, shutting down")
			shutdown()
			store.Close()
			os.Exit(0)
		}
	}()

	for {
		err := application.Initialize(ctx)
		if err == nil {
			break
		}
		log.Error().Err(err).Dur("backoff", cfg.Scraper.ErrorBackoff).Msg("failed to start browser")
		select {
		case <-ctx.Done():
			shutdown()
			return
		case <-time.After(cfg.Scraper.ErrorBackoff):
		}
	}

	log.Info().Msg("price scraper running")
	if err := application.Run(ctx); err != nil {
		log.Error().Err(err).Msg("scrape loop ended with error")
	}

	log.Info().Msg("shutting down")
	shutdown()
}
