package handler

import (
	"errors"
	"net/http"
	"strings"

	"gameshelf/backend/internal/config"
	"gameshelf/backend/internal/database"
	"gameshelf/backend/internal/metrics"
	"gameshelf/backend/internal/models"
	"gameshelf/backend/pkg/jwt"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// RefreshCookieName is the HttpOnly cookie carrying the refresh token.
const RefreshCookieName = "refresh_token"

// region --- DTOs ---

// RegisterInput defines the structure for user registration.
type RegisterInput struct {
	Username string `json:"username" binding:"required,username" example:"mario64"`
	Email    string `json:"email" binding:"required,email" example:"mario@example.com"`
	Password string `json:"password" binding:"required,min=8,max=72" example:"password123"`
}

// LoginInput defines the structure for user login.
type LoginInput struct {
	Login    string `json:"login" binding:"required" example:"mario@example.com"`
	Password string `json:"password" binding:"required" example:"password123"`
}

// RefreshInput is the optional body of the refresh endpoint.
type RefreshInput struct {
	RefreshToken string `json:"refresh_token"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Token        string              `json:"token"`
	RefreshToken string              `json:"refresh_token"`
	User         PrivateUserResponse `json:"user"`
}

// TokenResponse is returned by the refresh endpoint.
type TokenResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

// endregion

// region --- Auth Handlers ---

// RegisterUser godoc
// @Summary      Register a new user
// @Description  Creates a new user and returns an access and a refresh token.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        input body RegisterInput true "Registration Info"
// @Success      201  {object}  AuthResponse
// @Failure      400  {object}  ErrorResponse "Invalid input, or username/email already taken"
// @Failure      429  {object}  ErrorResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /register [post]
func RegisterUser(c *gin.Context) {
	var input RegisterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	input.Email = normalizeEmail(input.Email)

	if taken, field, err := identityTaken(c, 0, input.Username, input.Email); err != nil {
		internalError(c, err, "Failed to check existing users")
		return
	} else if taken {
		c.JSON(http.StatusBadRequest, gin.H{"error": field + " already in use"})
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		internalError(c, err, "Failed to hash password")
		return
	}

	user := models.User{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: string(hashedPassword),
	}
	if err := db(c).Create(&user).Error; err != nil {
		if database.IsDuplicate(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Username or email already in use"})
			return
		}
		internalError(c, err, "Failed to create user")
		return
	}
	metrics.UsersRegistered.Inc()

	respondWithTokens(c, http.StatusCreated, user)
}

// LoginUser godoc
// @Summary      Log in a user
// @Description  Authenticates with email or username and password. The refresh token is also set as an HttpOnly cookie.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        input body LoginInput true "Login Info"
// @Success      200  {object}  AuthResponse
// @Failure      400  {object}  ErrorResponse "Invalid input"
// @Failure      401  {object}  ErrorResponse "Invalid credentials"
// @Failure      429  {object}  ErrorResponse
// @Failure      500  {object}  ErrorResponse "Internal server error"
// @Router       /login [post]
func LoginUser(c *gin.Context) {
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	err := db(c).Where("email = ? OR username = ?", normalizeEmail(input.Login), input.Login).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.LoginAttempts.WithLabelValues("unknown_user").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if err != nil {
		internalError(c, err, "Failed to look up user")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		metrics.LoginAttempts.WithLabelValues("bad_password").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	metrics.LoginAttempts.WithLabelValues("success").Inc()

	respondWithTokens(c, http.StatusOK, user)
}

// RefreshToken godoc
// @Summary      Refresh the access token
// @Description  Exchanges a refresh token (cookie or body) for a new access token and a rotated refresh token. Each refresh token works once; refreshing also revokes the refresh tokens of the user's other sessions.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        input body RefreshInput false "Refresh token, when not sent as cookie"
// @Success      200  {object}  TokenResponse
// @Failure      401  {object}  ErrorResponse
// @Router       /api/token/refresh [post]
func RefreshToken(c *gin.Context) {
	tokenString, _ := c.Cookie(RefreshCookieName)
	if tokenString == "" {
		var input RefreshInput
		_ = c.ShouldBindJSON(&input)
		tokenString = input.RefreshToken
	}
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Refresh token required"})
		return
	}

	claims, err := jwt.ParseRefreshToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired refresh token"})
		return
	}
	userID, err := claims.UserID()
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired refresh token"})
		return
	}

	var user models.User
	if err := db(c).First(&user, userID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired refresh token"})
		return
	}

	// Refresh tokens are single-use: moving the version forward only succeeds
	// for the token carrying the current one.
	result := db(c).Model(&models.User{}).Where("id = ? AND token_version = ?", user.ID, claims.Version).
		UpdateColumn("token_version", gorm.Expr("token_version + 1"))
	if result.Error != nil {
		internalError(c, result.Error, "Failed to rotate refresh token")
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Refresh token has been revoked"})
		return
	}
	user.TokenVersion = claims.Version + 1

	access, refresh, err := issueTokens(c, user)
	if err != nil {
		internalError(c, err, "Failed to generate token")
		return
	}
	c.JSON(http.StatusOK, TokenResponse{Token: access, RefreshToken: refresh})
}

// LogoutUser godoc
// @Summary      Log out
// @Description  Revokes every outstanding refresh token of the user and clears the refresh cookie.
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  MessageResponse
// @Failure      401  {object}  ErrorResponse
// @Router       /logout [post]
func LogoutUser(c *gin.Context) {
	if err := bumpTokenVersion(db(c), currentUserID(c)); err != nil {
		internalError(c, err, "Failed to log out")
		return
	}
	clearRefreshCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// endregion

// region --- Helpers ---

func respondWithTokens(c *gin.Context, status int, user models.User) {
	access, refresh, err := issueTokens(c, user)
	if err != nil {
		internalError(c, err, "Failed to generate token")
		return
	}

	summary, err := buildPrivateUserResponse(c, user)
	if err != nil {
		internalError(c, err, "Failed to load profile")
		return
	}
	c.JSON(status, AuthResponse{Token: access, RefreshToken: refresh, User: summary})
}

// issueTokens signs a token pair and sets the refresh cookie.
func issueTokens(c *gin.Context, user models.User) (string, string, error) {
	access, err := jwt.GenerateToken(user.ID)
	if err != nil {
		return "", "", err
	}
	refresh, err := jwt.GenerateRefreshToken(user.ID, user.TokenVersion)
	if err != nil {
		return "", "", err
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(RefreshCookieName, refresh, int(config.AppConfig.RefreshTokenTTL.Seconds()), "/", "", config.AppConfig.CookieSecure, true)
	return access, refresh, nil
}

func clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(RefreshCookieName, "", -1, "/", "", config.AppConfig.CookieSecure, true)
}

func bumpTokenVersion(tx *gorm.DB, userID uint) error {
	return tx.Model(&models.User{}).Where("id = ?", userID).
		UpdateColumn("token_version", gorm.Expr("token_version + 1")).Error
}

// identityTaken checks username and email uniqueness, ignoring exceptID.
// It returns which field collides.
func identityTaken(c *gin.Context, exceptID uint, username, email string) (bool, string, error) {
	check := func(column, value string) (bool, error) {
		if value == "" {
			return false, nil
		}
		var count int64
		q := db(c).Model(&models.User{}).Where(column+" = ?", value)
		if exceptID != 0 {
			q = q.Where("id <> ?", exceptID)
		}
		if err := q.Count(&count).Error; err != nil {
			return false, err
		}
		return count > 0, nil
	}

	if taken, err := check("email", email); err != nil || taken {
		return taken, "Email", err
	}
	if taken, err := check("username", username); err != nil || taken {
		return taken, "Username", err
	}
	return false, "", nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// endregion
