package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/filter"
	"github.com/andresuchdata/autopo-replenish/internal/lock"
)

// respondError maps domain errors to HTTP statuses.
func respondError(c *gin.Context, err error) {
	var (
		verr *domain.ValidationError
		terr *domain.InvalidTransitionError
	)

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "fields": verr.Fields})
	case errors.As(err, &terr):
		c.JSON(http.StatusConflict, gin.H{
			"error":     terr.Error(),
			"current":   terr.Current,
			"attempted": terr.Attempted,
		})
	case errors.Is(err, domain.ErrInvalidInput):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrStaleState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrTransient), errors.Is(err, lock.ErrNotAcquired):
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Backing store unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, retry later"})
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
	c.Error(err)
}

// bindOptionalJSON decodes the body into dst, accepting an empty body.
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// parseFilters reads every ?filter=field:op:value of the request.
func parseFilters(c *gin.Context, schema filter.Schema) ([]filter.Condition, bool) {
	var exprs []string
	for _, raw := range c.QueryArray("filter") {
		if raw = strings.TrimSpace(raw); raw != "" {
			exprs = append(exprs, raw)
		}
	}
	conds, err := filter.ParseAll(exprs, schema)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return conds, true
}
