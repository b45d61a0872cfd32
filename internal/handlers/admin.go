package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"skimeister/internal/cache"
	"skimeister/internal/cleanup"
	"skimeister/internal/models"
	"skimeister/internal/ratelimit"
	"skimeister/internal/scheduler"
	"skimeister/internal/scraper"
)

// ScrapeTrigger starts background runs
type ScrapeTrigger interface {
	RunNow() error
	IsRunning() bool
}

// ResortScraper refreshes a single resort synchronously
type ResortScraper interface {
	ScrapeResort(ctx context.Context, slug, country string) (*models.Resort, error)
}

// RunHistory lists past scrape runs
type RunHistory interface {
	RecentScrapeRuns(ctx context.Context, limit int) ([]models.ScrapeRun, error)
}

// CacheStatter exposes page cache counters
type CacheStatter interface {
	Stats() cache.Stats
}

// Cleaner prunes expired history
type Cleaner interface {
	Run(ctx context.Context, cfg cleanup.Config) (*cleanup.Result, error)
}

// AdminDeps wires the admin handler. Any field except DB and Logger may be nil.
type AdminDeps struct {
	DB          *gorm.DB
	Trigger     ScrapeTrigger
	Scraper     ResortScraper
	Runs        RunHistory
	Cache       CacheStatter
	Cleanup     Cleaner
	APILimiter  *ratelimit.RateLimiter
	HostLimiter *ratelimit.HostLimiter
	Breaker     *scraper.CircuitBreaker
	Logger      *logrus.Logger
}

// AdminHandler handles admin-related requests
type AdminHandler struct {
	deps AdminDeps
	log  *logrus.Entry
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(deps AdminDeps) *AdminHandler {
	return &AdminHandler{
		deps: deps,
		log:  deps.Logger.WithField("component", "admin"),
	}
}

// GetStats returns system statistics
func (h *AdminHandler) GetStats(c *gin.Context) {
	db := h.deps.DB.WithContext(c.Request.Context())

	var total int64
	if err := db.Model(&models.Resort{}).Count(&total).Error; err != nil {
		respondError(c, h.deps.Logger, err)
		return
	}

	type statusCount struct {
		Status models.ResortStatus
		Count  int64
	}
	var counts []statusCount
	if err := db.Model(&models.Conditions{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&counts).Error; err != nil {
		respondError(c, h.deps.Logger, err)
		return
	}
	byStatus := make(map[string]int64, len(counts))
	for _, sc := range counts {
		byStatus[string(sc.Status)] = sc.Count
	}

	var snapshots int64
	db.Model(&models.ConditionsSnapshot{}).Count(&snapshots)

	var withLocation int64
	db.Model(&models.Resort{}).Where("latitude IS NOT NULL AND longitude IS NOT NULL").Count(&withLocation)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats": gin.H{
			"resorts": gin.H{
				"total":         total,
				"with_location": withLocation,
				"by_status":     byStatus,
			},
			"snapshots": gin.H{
				"total": snapshots,
			},
		},
	})
}

// TriggerScrape starts a full run in the background
func (h *AdminHandler) TriggerScrape(c *gin.Context) {
	if h.deps.Trigger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error":   "scheduler not available",
		})
		return
	}

	h.log.Info("manual scrape requested")
	if err := h.deps.Trigger.RunNow(); err != nil {
		respondError(c, h.deps.Logger, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "scrape run started",
		"status":  "running",
	})
}

// GetScrapeStatus reports whether a run is executing and the latest run
func (h *AdminHandler) GetScrapeStatus(c *gin.Context) {
	running := h.deps.Trigger != nil && h.deps.Trigger.IsRunning()
	response := gin.H{
		"success": true,
		"running": running,
	}
	if h.deps.Runs != nil {
		runs, err := h.deps.Runs.RecentScrapeRuns(c.Request.Context(), 1)
		if err != nil {
			respondError(c, h.deps.Logger, err)
			return
		}
		if len(runs) > 0 {
			response["last_run"] = runs[0]
		}
	}
	c.JSON(http.StatusOK, response)
}

// ScrapeResort refreshes one resort by slug and returns it
func (h *AdminHandler) ScrapeResort(c *gin.Context) {
	if h.deps.Scraper == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error":   "scraper not available",
		})
		return
	}

	slug := strings.TrimSpace(c.Param("slug"))
	country := strings.TrimSpace(c.Query("country"))
	h.log.WithField("slug", slug).Info("single resort refresh requested")

	resort, err := h.deps.Scraper.ScrapeResort(c.Request.Context(), slug, country)
	if err != nil {
		var resortErr *scheduler.ResortError
		if errors.As(err, &resortErr) {
			h.log.WithFields(logrus.Fields{"slug": slug, "stage": resortErr.Stage}).WithError(err).Warn("single resort refresh failed")
		}
		respondError(c, h.deps.Logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"resort":  newResortResponse(resort, nil),
	})
}

// GetScrapeRuns returns recent scrape runs, newest first
func (h *AdminHandler) GetScrapeRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	var runs []models.ScrapeRun
	if h.deps.Runs != nil {
		var err error
		runs, err = h.deps.Runs.RecentScrapeRuns(c.Request.Context(), limit)
		if err != nil {
			respondError(c, h.deps.Logger, err)
			return
		}
	}
	if runs == nil {
		runs = []models.ScrapeRun{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"runs":    runs,
		"count":   len(runs),
	})
}

// GetCacheStats returns page cache counters
func (h *AdminHandler) GetCacheStats(c *gin.Context) {
	response := gin.H{"success": true}
	if h.deps.Cache != nil {
		response["cache"] = h.deps.Cache.Stats()
	}
	c.JSON(http.StatusOK, response)
}

// GetRateLimitStats returns API limiter, per-host limiter and breaker state
func (h *AdminHandler) GetRateLimitStats(c *gin.Context) {
	response := gin.H{"success": true}
	if h.deps.APILimiter != nil {
		response["api"] = h.deps.APILimiter.GetStats()
	}
	if h.deps.HostLimiter != nil {
		response["hosts"] = h.deps.HostLimiter.Stats()
		response["host_interval_seconds"] = h.deps.HostLimiter.Interval().Seconds()
	}
	if h.deps.Breaker != nil {
		response["breaker"] = h.deps.Breaker.GetStatus()
	}
	c.JSON(http.StatusOK, response)
}

// RunCleanup deletes expired snapshots, past forecasts and old scrape runs.
// Dry run is the default.
func (h *AdminHandler) RunCleanup(c *gin.Context) {
	if h.deps.Cleanup == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error":   "cleanup not available",
		})
		return
	}

	var req struct {
		SnapshotRetentionDays int   `json:"snapshot_retention_days"`
		RunRetentionDays      int   `json:"run_retention_days"`
		MaxDeletionCount      int   `json:"max_deletion_count"`
		DryRun                *bool `json:"dry_run"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
	}

	// Set defaults
	cfg := cleanup.DefaultConfig()
	if req.SnapshotRetentionDays > 0 {
		cfg.SnapshotRetentionDays = req.SnapshotRetentionDays
	}
	if req.RunRetentionDays > 0 {
		cfg.RunRetentionDays = req.RunRetentionDays
	}
	if req.MaxDeletionCount > 0 {
		cfg.MaxDeletionCount = req.MaxDeletionCount
	}
	cfg.DryRun = req.DryRun == nil || *req.DryRun

	result, err := h.deps.Cleanup.Run(c.Request.Context(), cfg)
	if err != nil {
		respondError(c, h.deps.Logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  result,
	})
}
