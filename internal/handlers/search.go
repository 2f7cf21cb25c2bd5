package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"funda-finder/internal/search"

	"github.com/gin-gonic/gin"
)

// Searcher runs filtered full-text searches
type Searcher interface {
	FilterSearch(params search.FilterParams) (*search.SearchResult, error)
}

// SearchHandler proxies property searches to the search index
type SearchHandler struct {
	searcher Searcher
}

// NewSearchHandler creates a search handler. A nil searcher makes the
// endpoint report 503.
func NewSearchHandler(searcher Searcher) *SearchHandler {
	return &SearchHandler{searcher: searcher}
}

// Search handles GET /api/search
func (h *SearchHandler) Search(c *gin.Context) {
	if h.searcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Search is not configured"})
		return
	}

	lt, err := queryListingType(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	limit, err := queryLimit(c, 20)
	if err != nil {
		badRequest(c, err)
		return
	}

	params := search.FilterParams{
		Query:       c.Query("q"),
		City:        c.Query("city"),
		ListingType: string(lt),
		Status:      c.Query("status"),
		SortBy:      c.Query("sort"),
		Limit:       int64(limit),
	}
	for key, dst := range map[string]**int{
		"min_price": &params.MinPrice,
		"max_price": &params.MaxPrice,
		"min_rooms": &params.MinRooms,
		"min_area":  &params.MinArea,
	} {
		v, err := queryInt(c, key)
		if err != nil {
			badRequest(c, err)
			return
		}
		*dst = v
	}
	if offset, _ := strconv.Atoi(c.Query("offset")); offset > 0 {
		params.Offset = int64(offset)
	}
	if labels := c.Query("energy_label"); labels != "" {
		for _, l := range strings.Split(labels, ",") {
			if l = strings.TrimSpace(l); l != "" {
				params.EnergyLabels = append(params.EnergyLabels, strings.ToUpper(l))
			}
		}
	}

	result, err := h.searcher.FilterSearch(params)
	if errors.Is(err, search.ErrInvalidSort) {
		badRequest(c, err)
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"hits":            result.Hits,
		"total_hits":      result.TotalHits,
		"processing_time": result.ProcessingTime,
		"query":           params.Query,
	})
}
