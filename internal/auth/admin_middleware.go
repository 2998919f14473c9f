package auth

import (
	"net/http"
	"strconv"

	"gameshelf/backend/internal/database"
	"gameshelf/backend/internal/models"

	"github.com/gin-gonic/gin"
)

const contextIsAdmin = "isAdmin"

// AdminMiddleware creates a gin middleware to check the admin flag.
// It must be used AFTER the standard AuthMiddleware.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := UserID(c)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			return
		}

		admin, err := isAdmin(c, userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authenticated user not found"})
			return
		}
		if !admin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}

		c.Next()
	}
}

// SelfOrAdminMiddleware only lets a request through when the user id in the
// named path parameter is the caller's own, or the caller is an admin.
func SelfOrAdminMiddleware(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := UserID(c)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			return
		}

		target, err := strconv.ParseUint(c.Param(param), 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
			return
		}
		if uint(target) == userID {
			c.Next()
			return
		}

		admin, err := isAdmin(c, userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authenticated user not found"})
			return
		}
		if !admin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "You can only access your own resources"})
			return
		}
		c.Next()
	}
}

// IsAdmin reports whether the caller was verified as admin by one of the
// middlewares above, loading the flag if it was not checked yet.
func IsAdmin(c *gin.Context) bool {
	userID, ok := UserID(c)
	if !ok {
		return false
	}
	admin, err := isAdmin(c, userID)
	return err == nil && admin
}

func isAdmin(c *gin.Context, userID uint) (bool, error) {
	if v, ok := c.Get(contextIsAdmin); ok {
		return v.(bool), nil
	}
	var user models.User
	if err := database.DB.WithContext(c.Request.Context()).Select("id", "is_admin").First(&user, userID).Error; err != nil {
		return false, err
	}
	c.Set(contextIsAdmin, user.IsAdmin)
	return user.IsAdmin, nil
}
