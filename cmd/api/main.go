package main

import (
	"context"
	"time"

	"github.com/joho/godotenv"

	"github.com/estatescope/go-estate-scraper/api"
	"github.com/estatescope/go-estate-scraper/internal/config"
	"github.com/estatescope/go-estate-scraper/internal/logger"
	"github.com/estatescope/go-estate-scraper/internal/repository"
	"github.com/estatescope/go-estate-scraper/internal/service"
	"github.com/estatescope/go-estate-scraper/internal/tracker"
)

func main() {
	_ = godotenv.Load()

	log := logger.NewLogger("api")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Configuration failed")
	}
	logger.SetGlobalLevel(logger.ParseLevel(cfg.LogLevel))

	store, err := tracker.NewSQLiteStore(cfg.TrackerDBPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to open tracker store")
	}
	tr := tracker.New(store)
	defer tr.Close()

	scrapeService := service.NewScrapeService(cfg)

	var propertyService *service.PropertyService
	if cfg.MongoURI != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		repo, rerr := repository.NewMongoRepository(ctx, cfg.MongoURI, cfg.MongoDatabase)
		cancel()
		if rerr != nil {
			log.WithError(rerr).Fatal("Failed to connect property repository")
		}
		defer repo.Close(context.Background())
		propertyService = service.NewPropertyService(repo)
	} else {
		log.Warn("MONGO_URI not set, property query endpoints disabled")
	}

	r := api.SetupRouter(scrapeService, propertyService, tr)
	log.WithField("port", cfg.Port).Info("API listening")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.WithError(err).Fatal("API server failed")
	}
}
