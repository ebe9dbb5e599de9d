package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/estatescope/go-estate-scraper/internal/repository"
	"github.com/estatescope/go-estate-scraper/internal/service"
)

// PropertyHandler exposes stored-property query endpoints
type PropertyHandler struct {
	propertyService *service.PropertyService
}

// NewPropertyHandler creates the handler
func NewPropertyHandler(propertyService *service.PropertyService) *PropertyHandler {
	return &PropertyHandler{propertyService: propertyService}
}

// GetProperties lists stored properties with optional filters and pagination
func (h *PropertyHandler) GetProperties(c *gin.Context) {
	filter := repository.PropertyFilter{
		City:         c.Query("city"),
		Locality:     c.Query("locality"),
		PropertyType: c.Query("property_type"),
		BHK:          c.Query("bhk"),
		PriceMinLakh: queryFloat(c, "price_min_lakh"),
		PriceMaxLakh: queryFloat(c, "price_max_lakh"),
		MinQuality:   queryFloat(c, "min_quality"),
	}
	pagination := repository.PaginationParams{
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
	}

	result, err := h.propertyService.Search(c.Request.Context(), filter, pagination)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func queryFloat(c *gin.Context, key string) float64 {
	v, err := strconv.ParseFloat(c.Query(key), 64)
	if err != nil {
		return 0
	}
	return v
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return fallback
	}
	return v
}
