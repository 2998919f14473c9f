package handler

import (
	"context"
	"net/http"
	"time"

	"gameshelf/backend/internal/database"

	"github.com/gin-gonic/gin"
)

// Ping godoc
// @Summary      Liveness probe
// @Tags         ops
// @Produce      json
// @Success      200  {object}  MessageResponse
// @Router       /ping [get]
func Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// Healthz godoc
// @Summary      Readiness probe
// @Description  Pings the database.
// @Tags         ops
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /healthz [get]
func Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := database.Ping(ctx); err != nil {
		logCtx(c).Warn().Err(err).Msg("health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "ok"})
}
