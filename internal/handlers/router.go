package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Handlers groups everything the router serves
type Handlers struct {
	Properties   *PropertyHandler
	Analysis     *AnalysisHandler
	Admin        *AdminHandler
	Search       *SearchHandler
	AllowOrigins []string
}

// NewRouter registers every route on a new gin engine
func NewRouter(h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	if len(h.AllowOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     h.AllowOrigins,
			AllowMethods:     []string{"GET", "POST"},
			AllowHeaders:     []string{"Origin", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/health", healthCheck)

	api := r.Group("/api")
	{
		api.GET("/analysis/undervalued", h.Analysis.GetUndervalued)
		api.GET("/analysis/stats", h.Analysis.GetMarketStats)

		api.GET("/properties", h.Properties.ListProperties)
		api.GET("/properties/:id", h.Properties.GetProperty)
		api.GET("/properties/:id/analysis", h.Properties.GetPropertyAnalysis)
		api.GET("/properties/:id/history", h.Properties.GetPropertyHistory)
		api.GET("/changes/recent", h.Admin.GetRecentChanges)

		api.GET("/runs", h.Admin.ListRuns)
		api.GET("/runs/:id", h.Admin.GetRun)
		api.POST("/runs", h.Admin.RateLimit(), h.Admin.TriggerRun)
		api.GET("/ratelimit/stats", h.Admin.GetRateLimitStats)

		api.GET("/search", h.Search.Search)

		admin := api.Group("/admin")
		{
			admin.GET("/stats", h.Admin.GetStats)
			admin.POST("/cleanup/run", h.Admin.RateLimit(), h.Admin.RunCleanup)
		}
	}

	return r
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
