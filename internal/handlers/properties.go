package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"funda-finder/internal/analysis"
	"funda-finder/internal/database"
	"funda-finder/internal/history"
	"funda-finder/internal/models"

	"github.com/gin-gonic/gin"
)

// PropertyHandler serves property records, their analysis and price history
type PropertyHandler struct {
	db       *database.GormDB
	analyzer *analysis.Analyzer
	history  *history.Service
}

// NewPropertyHandler creates a new property handler
func NewPropertyHandler(db *database.GormDB, analyzer *analysis.Analyzer, hist *history.Service) *PropertyHandler {
	return &PropertyHandler{db: db, analyzer: analyzer, history: hist}
}

// ListProperties returns stored properties filtered by city, type and status
func (h *PropertyHandler) ListProperties(c *gin.Context) {
	lt, err := queryListingType(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	limit, err := queryLimit(c, 50)
	if err != nil {
		badRequest(c, err)
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		badRequest(c, err)
		return
	}

	filters := database.PropertyFilters{
		City:        c.Query("city"),
		ListingType: lt,
		SortBy:      c.Query("sort"),
		Limit:       limit,
	}
	if offset != nil && *offset > 0 {
		filters.Offset = *offset
	}
	switch status := models.PropertyStatus(c.DefaultQuery("status", string(models.PropertyStatusActive))); status {
	case models.PropertyStatusActive, models.PropertyStatusInactive:
		filters.Status = status
	case "all":
	default:
		badRequest(c, fmt.Errorf("status must be active, inactive or all"))
		return
	}

	properties, err := h.db.ListProperties(filters)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"properties": properties,
		"count":      len(properties),
	})
}

// GetProperty returns one property
func (h *PropertyHandler) GetProperty(c *gin.Context) {
	p, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, p)
}

// GetPropertyAnalysis scores one property against its comparables
func (h *PropertyHandler) GetPropertyAnalysis(c *gin.Context) {
	p, ok := h.load(c)
	if !ok {
		return
	}

	score, err := h.analyzer.AnalyzeProperty(c.Request.Context(), p)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, score)
}

// GetPropertyHistory returns the price ledger of one property, oldest first
func (h *PropertyHandler) GetPropertyHistory(c *gin.Context) {
	p, ok := h.load(c)
	if !ok {
		return
	}

	rows, err := h.history.ForProperty(c.Request.Context(), p.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"property_id": p.ID,
		"external_id": p.ExternalID,
		"history":     rows,
		"count":       len(rows),
	})
}

func (h *PropertyHandler) load(c *gin.Context) (*models.Property, bool) {
	id, err := paramID(c)
	if err != nil {
		badRequest(c, err)
		return nil, false
	}

	p, err := h.db.GetPropertyByID(id)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Property not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return p, true
}
