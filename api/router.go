// Package api wires the HTTP control surface: scrape triggering, status and
// stored-property queries.
package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/estatescope/go-estate-scraper/api/handler"
	"github.com/estatescope/go-estate-scraper/api/middleware"
	"github.com/estatescope/go-estate-scraper/internal/service"
	"github.com/estatescope/go-estate-scraper/internal/tracker"
)

// SetupRouter builds the gin engine. propertyService may be nil when no
// MongoDB is configured; the query endpoints then answer 503.
func SetupRouter(scrapeService *service.ScrapeService, propertyService *service.PropertyService, tr *tracker.Tracker) *gin.Engine {
	r := gin.Default()

	// 100 requests per hour for query endpoints, 10 for triggers
	generalLimiter := middleware.NewRateLimiter(100, time.Hour)
	triggerLimiter := middleware.NewRateLimiter(10, time.Hour)

	r.Use(middleware.CORSMiddleware())

	scrapeHandler := handler.NewScrapeHandler(scrapeService)
	scrapeGroup := r.Group("/scrape")
	scrapeGroup.Use(triggerLimiter.Middleware())
	{
		scrapeGroup.POST("/trigger", scrapeHandler.Trigger)
		scrapeGroup.GET("/status", scrapeHandler.Status)
	}

	queryGroup := r.Group("/")
	queryGroup.Use(generalLimiter.Middleware())
	{
		if propertyService != nil {
			propertyHandler := handler.NewPropertyHandler(propertyService)
			queryGroup.GET("/properties", propertyHandler.GetProperties)
		} else {
			queryGroup.GET("/properties", func(c *gin.Context) {
				c.JSON(503, gin.H{"error": "property storage not configured"})
			})
		}

		if tr != nil {
			trackerHandler := handler.NewTrackerHandler(tr)
			queryGroup.GET("/tracker/stats", trackerHandler.Stats)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "estate-scraper-api",
			"version": "1.0.0",
		})
	})

	return r
}
