package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/sjperalta/pharmavault-api/internal/services"
	"github.com/sjperalta/pharmavault-api/pkg/logger"
)

const maxPerPage = 100

// statusFor maps a service error onto its HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrAuthenticationFailed), errors.Is(err, services.ErrInactiveAccount):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidState), errors.Is(err, services.ErrOutOfOrderApproval):
		return http.StatusConflict
	case errors.Is(err, services.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, services.ErrDependencyUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the JSON error body. Workflow conflicts carry the next
// legitimate action; unexpected failures are logged and reported.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}

	if next := services.NextActionOf(err); next != nil {
		body["next_action"] = next
	}

	switch status {
	case http.StatusServiceUnavailable:
		body["retryable"] = true
	case http.StatusInternalServerError:
		logger.Error("Request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		if hub := sentrygin.GetHubFromContext(c); hub != nil {
			hub.CaptureException(err)
		} else if sentry.CurrentHub().Client() != nil {
			sentry.CaptureException(err)
		}
		body["error"] = "internal server error"
	}

	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

// pagination reads page and per_page, clamping per_page to maxPerPage
func pagination(c *gin.Context, defaultPerPage int) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(defaultPerPage)))
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

func paginationBody(page, perPage int, total int64) gin.H {
	return gin.H{
		"page":        page,
		"per_page":    perPage,
		"total":       total,
		"total_pages": (total + int64(perPage) - 1) / int64(perPage),
	}
}

// queryTime parses an optional RFC3339 query parameter
func queryTime(c *gin.Context, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		if d, derr := time.Parse(time.DateOnly, raw); derr == nil {
			return &d, nil
		}
		return nil, err
	}
	return &t, nil
}

func paramUint(c *gin.Context, key string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(key), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
