package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/gatherer/models"
	"github.com/use-agent/gatherer/report"
)

// Reports reads recorded test reports.
type Reports interface {
	Entries(test string) ([]report.Entry, error)
	ScreenshotPath(test, file string) (string, error)
}

// GetReport returns a handler for GET /api/v1/reports/:test.
func GetReport(rp Reports) gin.HandlerFunc {
	return func(c *gin.Context) {
		test := c.Param("test")
		entries, err := rp.Entries(test)
		if err != nil {
			reportError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.ReportResponse{Test: test, Entries: entries})
	}
}

// GetReportScreenshot returns a handler for
// GET /api/v1/reports/:test/screenshots/:file that serves the stored PNG.
func GetReportScreenshot(rp Reports) gin.HandlerFunc {
	return func(c *gin.Context) {
		path, err := rp.ScreenshotPath(c.Param("test"), c.Param("file"))
		if err != nil {
			reportError(c, err)
			return
		}
		c.Header("Content-Type", "image/png")
		c.File(path)
	}
}

func reportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, report.ErrInvalidTest):
		c.JSON(http.StatusBadRequest, models.NewErrorResponse(models.ErrCodeInvalidInput, err.Error()))
	case errors.Is(err, report.ErrNoReport), errors.Is(err, report.ErrNoScreenshot):
		c.JSON(http.StatusNotFound, models.NewErrorResponse(models.ErrCodeNotFound, err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, models.NewErrorResponse(models.ErrCodeInternal, err.Error()))
	}
}
