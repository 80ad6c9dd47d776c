package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/harvest/models"
)

// respondError maps a ScrapeError to the correct HTTP status code and writes
// a structured JSON error response.
func respondError(c *gin.Context, resp models.ScrapeResponse, err error) {
	scrapeErr := asScrapeError(err)
	resp.Success = false
	resp.ExtractionResult = nil
	resp.Error = scrapeErr.ToDetail()
	c.JSON(mapErrorToStatus(scrapeErr), resp)
}

func asScrapeError(err error) *models.ScrapeError {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se
	}
	return models.NewScrapeError(models.ErrCodeInternal, err.Error(), err)
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ScrapeError) int {
	switch e.Code {
	case models.ErrCodeTimeout, models.ErrCodeNavigationTimeout,
		models.ErrCodeLoginTimeout, models.ErrCodeDownloadTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation:
		return http.StatusBadGateway // 502
	case models.ErrCodeBrowserLaunch:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodeButtonNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeUnsupportedFormat, models.ErrCodeParseFailure:
		return http.StatusUnprocessableEntity // 422
	case models.ErrCodeCanceled:
		return http.StatusRequestTimeout // 408
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
