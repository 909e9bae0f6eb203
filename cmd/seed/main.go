package main

import (
	"context"
	"flag"

	"github.com/rs/zerolog/log"

	"PriceTracker/internal/database"
	"PriceTracker/internal/scraper/sellers"
	"PriceTracker/pkg/config"
	"PriceTracker/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yml", "Path to the optional YAML config file")
	file := flag.String("file", "catalog.yml", "Catalog of sellers and listings to load")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Init("info", "json")
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	catalog, err := LoadCatalog(*file)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load catalog")
	}
	if err := catalog.Validate(sellers.Builtin()); err != nil {
		log.Fatal().Err(err).Msg("catalog is invalid")
	}

	ctx := context.Background()
	store, err := database.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer store.Close()

	if err := catalog.Apply(ctx, store); err != nil {
		store.Close()
		log.Fatal().Err(err).Msg("seeding failed, nothing was written")
	}
	log.Info().
		Int("sellers", len(catalog.Sellers)).
		Int("listings", len(catalog.Listings)).
		Msg("catalog loaded")
}
