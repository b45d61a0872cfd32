package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"skimeister/internal/database"
	"skimeister/internal/models"
	"skimeister/internal/search"
)

const (
	defaultHistoryDays = 30
	maxHistoryDays     = 365
)

// ResortStore is the read side of the resort repository
type ResortStore interface {
	GetResort(ctx context.Context, id uint) (*models.Resort, error)
	CountResorts(ctx context.Context) (int64, error)
	Countries(ctx context.Context) ([]string, error)
}

// HistorySource returns recorded conditions snapshots
type HistorySource interface {
	History(ctx context.Context, resortID uint, days int) ([]models.ConditionsSnapshot, error)
}

// ResortHandler serves the public resort API
type ResortHandler struct {
	search  *search.Service
	store   ResortStore
	history HistorySource
	limits  search.RadiusLimits
	logger  *logrus.Logger
}

// NewResortHandler creates a new resort handler
func NewResortHandler(svc *search.Service, store ResortStore, history HistorySource, limits search.RadiusLimits, logger *logrus.Logger) *ResortHandler {
	return &ResortHandler{
		search:  svc,
		store:   store,
		history: history,
		limits:  limits,
		logger:  logger,
	}
}

// ListResorts returns all resorts matching the optional filters
func (h *ResortHandler) ListResorts(c *gin.Context) {
	params, err := search.ParseQuery(c.Request.URL.Query(), h.limits, false)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	matches, err := h.search.Search(c.Request.Context(), params)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"resorts": newMatchResponses(matches),
		"count":   len(matches),
	})
}

// Search returns resorts around a required origin
func (h *ResortHandler) Search(c *gin.Context) {
	params, err := search.ParseQuery(c.Request.URL.Query(), h.limits, true)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	matches, err := h.search.Search(c.Request.Context(), params)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	response := gin.H{
		"success":       true,
		"resorts":       newMatchResponses(matches),
		"count":         len(matches),
		"user_location": params.Origin,
		"radius_km":     params.RadiusKm,
	}
	if params.Country != "" {
		response["country"] = params.Country
	}
	c.JSON(http.StatusOK, response)
}

// GetResort returns one resort with its conditions, pricing and forecasts
func (h *ResortHandler) GetResort(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	resort, err := h.store.GetResort(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"resort":  newResortResponse(resort, nil),
	})
}

// GetHistory returns the daily conditions snapshots of a resort
func (h *ResortHandler) GetHistory(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	days := defaultHistoryDays
	if raw := c.Query("days"); raw != "" {
		days, err = strconv.Atoi(raw)
		if err != nil || days < 1 || days > maxHistoryDays {
			respondError(c, h.logger, &search.ValidationError{Field: "days", Reason: "must be an integer between 1 and 365"})
			return
		}
	}

	ctx := c.Request.Context()
	if _, err := h.store.GetResort(ctx, id); err != nil {
		respondError(c, h.logger, err)
		return
	}

	history, err := h.history.History(ctx, id, days)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"history": history,
		"days":    days,
	})
}

// GetStats returns the resort count and the countries present
func (h *ResortHandler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	total, err := h.store.CountResorts(ctx)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	countries, err := h.store.Countries(ctx)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats": gin.H{
			"total_resorts": total,
			"countries":     countries,
		},
	})
}

// Health reports whether the resort store is reachable
func (h *ResortHandler) Health(c *gin.Context) {
	if _, err := h.store.CountResorts(c.Request.Context()); err != nil {
		h.logger.WithField("component", "api").WithError(err).Warn("health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, &search.ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	return uint(id), nil
}

var _ ResortStore = (*database.GormDB)(nil)
