package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/egor6820/price-tracker-server/api/middleware"
	"github.com/egor6820/price-tracker-server/models"
)

// Extractor is the single inbound operation. *pipeline.Orchestrator
// satisfies it.
type Extractor interface {
	Extract(ctx context.Context, url string) models.ExtractedResult
}

// Parse returns a handler for POST /parse.
//
// A malformed body is rejected with 400. Everything else answers 200 with
// an ExtractedResult; extraction failures surface as the sentinel.
func Parse(ex Extractor) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ParseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		// Extraction is bounded by its own timeouts, not by the client
		// connection, so a dropped client still refreshes the cache.
		ctx := context.WithoutCancel(c.Request.Context())
		result := ex.Extract(ctx, req.URL)

		slog.Debug("parse served",
			"requestId", middleware.RequestID(c),
			"url", req.URL,
			"sentinel", result.IsSentinel(),
		)
		c.JSON(http.StatusOK, result)
	}
}
