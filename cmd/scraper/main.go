package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/estatescope/go-estate-scraper/internal/config"
	"github.com/estatescope/go-estate-scraper/internal/engine"
	"github.com/estatescope/go-estate-scraper/internal/logger"
	"github.com/estatescope/go-estate-scraper/internal/models"
	"github.com/estatescope/go-estate-scraper/internal/validator"
)

const (
	exitOK          = 0
	exitConfigError = 1
	exitRunFailure  = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	city := flag.String("city", "", "city to scrape (required)")
	mode := flag.String("mode", "full", "scraping mode: full, incremental, conservative, date_range, custom")
	maxPages := flag.Int("max-pages", 50, "listing page budget")
	individualPages := flag.Bool("individual-pages", false, "visit each property's detail page")
	forceRescrape := flag.Bool("force-rescrape", false, "bypass the smart filter")
	formats := flag.String("formats", "csv,json", "comma-separated export formats: csv, json, spreadsheet, sql")
	concurrency := flag.Int("concurrency", 0, "detail-page worker count (default from env)")
	batchSize := flag.Int("batch-size", 0, "detail-page batch size (default from env)")
	priceMin := flag.Float64("price-min", 0, "minimum price in lakh")
	priceMax := flag.Float64("price-max", 0, "maximum price in lakh")
	areaMin := flag.Float64("area-min", 0, "minimum area in sqft")
	areaMax := flag.Float64("area-max", 0, "maximum area in sqft")
	propertyTypes := flag.String("property-types", "", "comma-separated property type keywords")
	bhkTypes := flag.String("bhk", "", "comma-separated BHK filters, e.g. '2 BHK,3 BHK'")
	localities := flag.String("localities", "", "comma-separated locality keywords")
	exclude := flag.String("exclude", "", "comma-separated title keywords to exclude")
	flag.Parse()

	// .env is optional; the environment alone is a complete configuration
	_ = godotenv.Load()

	log := logger.NewLogger("scraper")

	if strings.TrimSpace(*city) == "" {
		fmt.Fprintln(os.Stderr, "missing required flag: -city")
		flag.Usage()
		return exitConfigError
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Error("Configuration failed")
		return exitConfigError
	}
	logger.SetGlobalLevel(logger.ParseLevel(cfg.LogLevel))

	opts := config.RunOptions{
		City:            *city,
		Mode:            *mode,
		MaxPages:        *maxPages,
		IndividualPages: *individualPages,
		ForceRescrape:   *forceRescrape,
		ExportFormats:   splitList(*formats),
		Concurrency:     *concurrency,
		BatchSize:       *batchSize,
	}
	if err := config.ValidateFormats(opts.ExportFormats); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}

	filters := validator.FilterConfig{
		PriceMinLakh:    *priceMin,
		PriceMaxLakh:    *priceMax,
		AreaMinSqft:     *areaMin,
		AreaMaxSqft:     *areaMax,
		PropertyTypes:   splitList(*propertyTypes),
		BHKTypes:        splitList(*bhkTypes),
		Localities:      splitList(*localities),
		ExcludeKeywords: splitList(*exclude),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coordinator, cleanup, err := engine.Build(ctx, cfg, filters)
	if err != nil {
		log.WithError(err).Error("Failed to build scraper")
		return exitConfigError
	}
	defer cleanup()

	stats, err := coordinator.Run(ctx, opts)
	if stats != nil {
		printSummary(stats)
	}
	if err != nil {
		log.WithError(err).Error("Scrape session failed")
		return exitRunFailure
	}
	return exitOK
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func printSummary(stats *models.SessionStats) {
	snap := stats.Snapshot()
	fmt.Printf("\nSession %s (%s, %s)\n", snap.SessionID, snap.City, snap.Mode)
	fmt.Printf("  pages scraped:        %d\n", snap.PagesScraped)
	fmt.Printf("  properties found:     %d\n", snap.PropertiesFound)
	fmt.Printf("  properties saved:     %d\n", snap.PropertiesSaved)
	fmt.Printf("  detail pages scraped: %d\n", snap.IndividualPropertiesScraped)
	fmt.Printf("  detection events:     %d\n", snap.DetectionEvents)
	if snap.FilterStats.ValidationDropped > 0 {
		fmt.Printf("  validation drops:     %d\n", snap.FilterStats.ValidationDropped)
	}
	if snap.IncrementalStopped {
		fmt.Printf("  stopped early:        %s\n", snap.StopReason)
	}
	fmt.Printf("  duration:             %s\n", stats.Duration().Round(time.Second))
}
