package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/estatescope/go-estate-scraper/internal/tracker"
)

// TrackerHandler exposes tracker-store statistics
type TrackerHandler struct {
	tracker *tracker.Tracker
}

// NewTrackerHandler creates the handler
func NewTrackerHandler(tr *tracker.Tracker) *TrackerHandler {
	return &TrackerHandler{tracker: tr}
}

// Stats returns store-wide tracker counters
func (h *TrackerHandler) Stats(c *gin.Context) {
	stats, err := h.tracker.Statistics(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
