package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"skimeister/internal/database"
	"skimeister/internal/scheduler"
	"skimeister/internal/scraper"
	"skimeister/internal/search"
)

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	var validationErr *search.ValidationError
	var notFoundErr *database.NotFoundError
	var resortErr *scheduler.ResortError

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound
	case errors.Is(err, scheduler.ErrRunInProgress):
		return http.StatusConflict
	case errors.As(err, &resortErr):
		var fetchErr *scraper.FetchError
		var parseErr *scraper.ParseError
		if errors.As(err, &fetchErr) {
			return http.StatusBadGateway
		}
		if errors.As(err, &parseErr) {
			return http.StatusUnprocessableEntity
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the {success:false, error} envelope. Internal errors
// are logged and reported without detail.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.WithFields(logrus.Fields{
			"component": "api",
			"path":      c.FullPath(),
		}).WithError(err).Error("request failed")
		message = "internal server error"
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   message,
	})
}
