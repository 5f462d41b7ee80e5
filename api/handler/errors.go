package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/marsdata/models"
)

// asScrapeError returns err as a *models.ScrapeError, wrapping unknown
// errors as INTERNAL_ERROR.
func asScrapeError(err error) *models.ScrapeError {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se
	}
	return models.NewScrapeError(models.ErrCodeInternal, err.Error(), err)
}

// respondError writes a structured JSON error with the status for its code.
func respondError(c *gin.Context, err error, durationMs int64) {
	se := asScrapeError(err)
	c.JSON(mapErrorToStatus(se), models.ScrapeResponse{
		Success:    false,
		DurationMs: durationMs,
		Error:      se.ToDetail(),
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ScrapeError) int {
	switch e.Code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation:
		return http.StatusBadGateway // 502
	case models.ErrCodeBrowserCrash:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodeRunInProgress:
		return http.StatusConflict // 409
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
