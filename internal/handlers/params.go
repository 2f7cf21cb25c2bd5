package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"funda-finder/internal/models"

	"github.com/gin-gonic/gin"
)

const maxLimit = 500

// queryLimit reads ?limit=, falling back to def. Values outside 1..500 are rejected.
func queryLimit(c *gin.Context, def int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxLimit {
		return 0, fmt.Errorf("limit must be between 1 and %d", maxLimit)
	}
	return limit, nil
}

// queryListingType reads ?listing_type=; empty means unset
func queryListingType(c *gin.Context) (models.ListingType, error) {
	raw := strings.ToLower(strings.TrimSpace(c.Query("listing_type")))
	if raw == "" {
		return "", nil
	}
	lt, ok := models.ParseListingType(raw)
	if !ok {
		return "", fmt.Errorf("listing_type must be buy or rent")
	}
	return lt, nil
}

// queryInt reads an optional integer query parameter
func queryInt(c *gin.Context, key string) (*int, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer", key)
	}
	return &v, nil
}

// paramID reads the numeric :id path parameter
func paramID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid property id %q", c.Param("id"))
	}
	return uint(id), nil
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
