package handlers

import (
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"

	"funda-finder/internal/analysis"

	"github.com/gin-gonic/gin"
)

// AnalysisHandler serves undervalue rankings and market statistics
type AnalysisHandler struct {
	analyzer     *analysis.Analyzer
	defaultLimit int
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(analyzer *analysis.Analyzer, defaultLimit int) *AnalysisHandler {
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	return &AnalysisHandler{analyzer: analyzer, defaultLimit: defaultLimit}
}

// GetUndervalued returns properties ranked by composite score
func (h *AnalysisHandler) GetUndervalued(c *gin.Context) {
	lt, err := queryListingType(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	limit, err := queryLimit(c, h.defaultLimit)
	if err != nil {
		badRequest(c, err)
		return
	}

	query := analysis.UndervaluedQuery{
		City:        c.Query("city"),
		ListingType: lt,
		Limit:       limit,
	}
	if raw := c.Query("min_score"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || v < 0 || v > 100 {
			badRequest(c, fmt.Errorf("min_score must be a number between 0 and 100"))
			return
		}
		query.MinScore = &v
	}

	scores, err := h.analyzer.FindUndervalued(c.Request.Context(), query)
	if err != nil {
		log.Printf("API: undervalued query failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"properties": scores,
		"count":      len(scores),
	})
}

// GetMarketStats returns price, area and price per m² statistics
func (h *AnalysisHandler) GetMarketStats(c *gin.Context) {
	lt, err := queryListingType(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	query := analysis.MarketQuery{
		City:        c.Query("city"),
		ListingType: lt,
	}
	switch c.Query("group_by") {
	case "":
	case "city":
		query.GroupByCity = true
	default:
		badRequest(c, fmt.Errorf("group_by supports only city"))
		return
	}

	stats, err := h.analyzer.MarketStats(c.Request.Context(), query)
	if err != nil {
		log.Printf("API: market stats failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
