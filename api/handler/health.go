package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/egor6820/price-tracker-server/models"
)

// Ping returns a handler for GET /ping.
func Ping() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.HealthResponse{Status: "ok"})
	}
}
