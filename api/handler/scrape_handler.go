package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/estatescope/go-estate-scraper/internal/config"
	"github.com/estatescope/go-estate-scraper/internal/service"
	"github.com/estatescope/go-estate-scraper/internal/validator"
)

// ScrapeHandler exposes scrape-session control endpoints
type ScrapeHandler struct {
	scrapeService *service.ScrapeService
}

// NewScrapeHandler creates the handler
func NewScrapeHandler(scrapeService *service.ScrapeService) *ScrapeHandler {
	return &ScrapeHandler{scrapeService: scrapeService}
}

// TriggerRequest is the POST /scrape/trigger body
type TriggerRequest struct {
	City            string   `json:"city" binding:"required"`
	Mode            string   `json:"mode"`
	MaxPages        int      `json:"max_pages"`
	IndividualPages bool     `json:"individual_pages"`
	ForceRescrape   bool     `json:"force_rescrape"`
	ExportFormats   []string `json:"export_formats"`
	PriceMinLakh    float64  `json:"price_min_lakh"`
	PriceMaxLakh    float64  `json:"price_max_lakh"`
	AreaMinSqft     float64  `json:"area_min_sqft"`
	AreaMaxSqft     float64  `json:"area_max_sqft"`
	PropertyTypes   []string `json:"property_types"`
	BHKTypes        []string `json:"bhk_types"`
	Localities      []string `json:"localities"`
	ExcludeKeywords []string `json:"exclude_keywords"`
}

// Trigger starts a scrape session in the background
func (h *ScrapeHandler) Trigger(c *gin.Context) {
	var req TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.ExportFormats) > 0 {
		if err := config.ValidateFormats(req.ExportFormats); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	opts := config.RunOptions{
		City:            req.City,
		Mode:            req.Mode,
		MaxPages:        req.MaxPages,
		IndividualPages: req.IndividualPages,
		ForceRescrape:   req.ForceRescrape,
		ExportFormats:   req.ExportFormats,
	}
	filters := validator.FilterConfig{
		PriceMinLakh:    req.PriceMinLakh,
		PriceMaxLakh:    req.PriceMaxLakh,
		AreaMinSqft:     req.AreaMinSqft,
		AreaMaxSqft:     req.AreaMaxSqft,
		PropertyTypes:   req.PropertyTypes,
		BHKTypes:        req.BHKTypes,
		Localities:      req.Localities,
		ExcludeKeywords: req.ExcludeKeywords,
	}

	if err := h.scrapeService.Trigger(opts, filters); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Scrape session started", "city": req.City})
}

// Status returns the running flag plus the last session's stats
func (h *ScrapeHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.scrapeService.Status())
}
