package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"funda-finder/internal/cleanup"
	"funda-finder/internal/database"
	"funda-finder/internal/history"
	"funda-finder/internal/ratelimit"
	"funda-finder/internal/runs"
	"funda-finder/internal/scheduler"

	"github.com/gin-gonic/gin"
)

// BatchTrigger starts a scrape batch in the background
type BatchTrigger interface {
	Trigger() error
}

// AdminHandler handles runs, manual triggers and housekeeping
type AdminHandler struct {
	db             *database.GormDB
	tracker        *runs.Tracker
	trigger        BatchTrigger
	cleanupService *cleanup.Service
	history        *history.Service
	rateLimiter    *ratelimit.RateLimiter
	purgeDefaults  cleanup.PurgeConfig
}

// NewAdminHandler creates a new admin handler. trigger may be nil, in which
// case manual runs are unavailable.
func NewAdminHandler(db *database.GormDB, tracker *runs.Tracker, trigger BatchTrigger, cleanupService *cleanup.Service, hist *history.Service, rl *ratelimit.RateLimiter, purgeDefaults cleanup.PurgeConfig) *AdminHandler {
	return &AdminHandler{
		db:             db,
		tracker:        tracker,
		trigger:        trigger,
		cleanupService: cleanupService,
		history:        hist,
		rateLimiter:    rl,
		purgeDefaults:  purgeDefaults,
	}
}

// ListRuns returns the most recent runs
func (h *AdminHandler) ListRuns(c *gin.Context) {
	limit, err := queryLimit(c, 20)
	if err != nil {
		badRequest(c, err)
		return
	}

	list, err := h.tracker.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":  list,
		"count": len(list),
	})
}

// GetRun returns one run by id
func (h *AdminHandler) GetRun(c *gin.Context) {
	run, err := h.tracker.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, runs.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

// TriggerRun starts a batch over the configured scopes
func (h *AdminHandler) TriggerRun(c *gin.Context) {
	if h.trigger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Scheduler not available"})
		return
	}

	log.Println("Admin: Manual scrape trigger requested")
	err := h.trigger.Trigger()
	if errors.Is(err, scheduler.ErrAlreadyRunning) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Scrape batch started",
		"status":  "running",
	})
}

// GetStats returns property and housekeeping counters
func (h *AdminHandler) GetStats(c *gin.Context) {
	counts, err := h.db.StatusCounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	housekeeping, err := h.cleanupService.GetStats(c.Request.Context(), h.purgeDefaults.RetentionDays)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"properties":   counts,
		"housekeeping": housekeeping,
	})
}

// RunCleanup purges long-inactive properties. Dry run unless dry_run is false.
func (h *AdminHandler) RunCleanup(c *gin.Context) {
	var req struct {
		RetentionDays    int   `json:"retention_days"`
		MaxDeletionCount int   `json:"max_deletion_count"`
		DryRun           *bool `json:"dry_run"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	cfg := h.purgeDefaults
	if req.RetentionDays > 0 {
		cfg.RetentionDays = req.RetentionDays
	}
	if req.MaxDeletionCount > 0 {
		cfg.MaxDeletionCount = req.MaxDeletionCount
	}
	cfg.DryRun = true
	if req.DryRun != nil {
		cfg.DryRun = *req.DryRun
	}

	log.Printf("Admin: Running cleanup (retention: %d days, max: %d, dry-run: %v)",
		cfg.RetentionDays, cfg.MaxDeletionCount, cfg.DryRun)

	result, err := h.cleanupService.PurgeInactive(c.Request.Context(), cfg)
	if err != nil {
		log.Printf("Admin: Cleanup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetRecentChanges returns price changes observed in the last ?days= days
func (h *AdminHandler) GetRecentChanges(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
		return
	}
	limit, err := queryLimit(c, 100)
	if err != nil {
		badRequest(c, err)
		return
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	changes, err := h.history.RecentChanges(c.Request.Context(), since, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"changes": changes,
		"count":   len(changes),
		"days":    days,
	})
}

// GetRateLimitStats returns current rate limiter statistics
func (h *AdminHandler) GetRateLimitStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.rateLimiter.GetStats())
}

// RateLimit rejects requests once the limiter's budget is spent
func (h *AdminHandler) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.rateLimiter.AllowRequest() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "Rate limit exceeded",
				"message": "Too many requests. Please try again later.",
				"stats":   h.rateLimiter.GetStats(),
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
