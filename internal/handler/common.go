package handler

import (
	"net/http"
	"strconv"
	"strings"

	"gameshelf/backend/internal/auth"
	"gameshelf/backend/internal/database"
	"gameshelf/backend/internal/logging"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// StatusDuplicateResource is returned when the resource being created already
// exists (game name, wishlist/collection entry, game details, friend request).
const StatusDuplicateResource = 420

// ErrorResponse represents a generic error response.
type ErrorResponse struct {
	Error string `json:"error" example:"An error message"`
}

// MessageResponse represents a generic success message.
type MessageResponse struct {
	Message string `json:"message" example:"Done"`
}

// db returns the shared handle bound to the request context.
func db(c *gin.Context) *gorm.DB {
	return database.DB.WithContext(c.Request.Context())
}

// currentUserID is only valid behind auth.AuthMiddleware.
func currentUserID(c *gin.Context) uint {
	id, _ := auth.UserID(c)
	return id
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern turns q into a substring pattern for `LIKE ? ESCAPE '\'`, so
// wildcard characters in q match literally.
func likePattern(q string) string {
	return "%" + likeEscaper.Replace(q) + "%"
}

// uintParam parses a numeric path parameter, answering 400 when it is not one.
func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return uint(v), true
}

// internalError logs err with the request-scoped logger and answers 500 with
// a generic message.
func internalError(c *gin.Context, err error, msg string) {
	logCtx(c).Error().Err(err).Str("route", c.FullPath()).Msg(msg)
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func logCtx(c *gin.Context) *zerolog.Logger {
	return logging.Ctx(c.Request.Context())
}
