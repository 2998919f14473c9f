package handler

import (
	"errors"
	"fmt"
	"net/http"

	"gameshelf/backend/internal/database"
	"gameshelf/backend/internal/metrics"
	"gameshelf/backend/internal/models"
	"gameshelf/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// FriendshipStatus is the relation of a profile to the viewer.
type FriendshipStatus string

const (
	StatusNone            FriendshipStatus = "none"
	StatusSelf            FriendshipStatus = "self"
	StatusFriends         FriendshipStatus = "friends"
	StatusRequestSent     FriendshipStatus = "request_sent"
	StatusRequestReceived FriendshipStatus = "request_received"
)

// region --- DTOs ---

// PublicUserResponse defines the structure for a user's public profile.
type PublicUserResponse struct {
	ID               uint             `json:"id" example:"1"`
	Username         string           `json:"username" example:"mario64"`
	AvatarURL        string           `json:"avatar_url"`
	Bio              string           `json:"bio"`
	FriendsCount     int64            `json:"friends_count"`
	FriendshipStatus FriendshipStatus `json:"friendship_status,omitempty"`
}

// PrivateUserResponse defines the structure for the authenticated user's own profile.
type PrivateUserResponse struct {
	ID              uint   `json:"id" example:"1"`
	Username        string `json:"username" example:"mario64"`
	Email           string `json:"email" example:"mario@example.com"`
	IsAdmin         bool   `json:"is_admin"`
	AvatarURL       string `json:"avatar_url"`
	Bio             string `json:"bio"`
	FriendsCount    int64  `json:"friends_count"`
	CollectionCount int64  `json:"collection_count"`
	WishlistCount   int64  `json:"wishlist_count"`
}

// UsernameInput changes the username.
type UsernameInput struct {
	Username string `json:"username" binding:"required,username"`
}

// EmailInput changes the email.
type EmailInput struct {
	Email string `json:"email" binding:"required,email"`
}

// PasswordInput changes the password.
type PasswordInput struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8,max=72"`
}

// BioInput changes the bio.
type BioInput struct {
	Bio string `json:"bio" binding:"max=500"`
}

// endregion

// region --- User Handlers ---

// SearchUsers godoc
// @Summary      Search for users
// @Description  Searches for users by username with pagination. The viewer is excluded.
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        q     query     string  false  "Search query for username"
// @Param        page  query     int     false  "Page number" default(1)
// @Param        limit query     int     false  "Items per page" default(10)
// @Success      200   {object}  PaginatedResponse[PublicUserResponse]
// @Failure      401   {object}  ErrorResponse
// @Router       /api/users [get]
func SearchUsers(c *gin.Context) {
	viewerID := currentUserID(c)
	page := pageParams(c)

	query := db(c).Model(&models.User{}).Where("id <> ?", viewerID)
	if q := c.Query("q"); q != "" {
		query = query.Where(`LOWER(username) LIKE LOWER(?) ESCAPE '\'`, likePattern(q))
	}

	var totalItems int64
	if err := query.Count(&totalItems).Error; err != nil {
		internalError(c, err, "Failed to count users")
		return
	}

	var users []models.User
	if err := query.Order("username").Scopes(page.Scope).Find(&users).Error; err != nil {
		internalError(c, err, "Failed to retrieve users")
		return
	}

	responses := make([]PublicUserResponse, 0, len(users))
	for _, user := range users {
		res, err := buildPublicUserResponse(c, user, viewerID)
		if err != nil {
			internalError(c, err, "Failed to build user profile")
			return
		}
		responses = append(responses, res)
	}

	c.JSON(http.StatusOK, NewPaginatedResponse(responses, totalItems, page))
}

// GetUserByID godoc
// @Summary      Get user by ID
// @Description  Retrieves the public profile for a specific user, including the friendship status with the viewer.
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "User ID"
// @Success      200  {object}  PublicUserResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /api/users/{id} [get]
func GetUserByID(c *gin.Context) {
	targetID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	var target models.User
	if err := db(c).First(&target, targetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		internalError(c, err, "Failed to load user")
		return
	}

	res, err := buildPublicUserResponse(c, target, currentUserID(c))
	if err != nil {
		internalError(c, err, "Failed to build user profile")
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetMe godoc
// @Summary      Get current user's info
// @Description  Retrieves the private profile for the currently authenticated user.
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  PrivateUserResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /api/users/me [get]
func GetMe(c *gin.Context) {
	var user models.User
	if err := db(c).First(&user, currentUserID(c)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	res, err := buildPrivateUserResponse(c, user)
	if err != nil {
		internalError(c, err, "Failed to build user profile")
		return
	}
	c.JSON(http.StatusOK, res)
}

// UpdateAvatar godoc
// @Summary      Upload a new avatar
// @Description  Stores the uploaded image and makes it the user's avatar. The previous avatar is removed from storage.
// @Tags         users
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        id      path      int   true  "User ID"
// @Param        avatar  formData  file  true  "PNG, JPEG, GIF or WebP image"
// @Success      200  {object}  PrivateUserResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Failure      413  {object}  ErrorResponse
// @Failure      503  {object}  ErrorResponse
// @Router       /api/users/{id}/avatar [put]
func UpdateAvatar(c *gin.Context) {
	user, ok := loadPathUser(c)
	if !ok {
		return
	}

	fh, err := c.FormFile("avatar")
	if err != nil {
		if bodyTooLarge(c, err) {
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "An 'avatar' file is required"})
		return
	}
	data, err := readUpload(fh)
	if err != nil {
		if !storageError(c, err) {
			internalError(c, err, "Failed to read upload")
		}
		return
	}

	_, url, err := storage.Default.PutImage(c.Request.Context(), fmt.Sprintf("avatars/%d", user.ID), data)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("avatar", "error").Inc()
		if !storageError(c, err) {
			internalError(c, err, "Failed to store avatar")
		}
		return
	}
	metrics.UploadsTotal.WithLabelValues("avatar", "ok").Inc()

	previous := user.AvatarURL
	if err := db(c).Model(&user).Update("avatar_url", url).Error; err != nil {
		removeStoredObject(c, url)
		internalError(c, err, "Failed to update avatar")
		return
	}
	if previous != "" {
		removeStoredObject(c, previous)
	}

	respondPrivateProfile(c, user)
}

// UpdateUsername godoc
// @Summary      Change username
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id     path  int            true  "User ID"
// @Param        input  body  UsernameInput  true  "New username"
// @Success      200  {object}  PrivateUserResponse
// @Failure      400  {object}  ErrorResponse "Invalid or already taken"
// @Failure      403  {object}  ErrorResponse
// @Router       /api/users/{id}/username [put]
func UpdateUsername(c *gin.Context) {
	user, ok := loadPathUser(c)
	if !ok {
		return
	}
	var input UsernameInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updateIdentity(c, user, "username", input.Username)
}

// UpdateEmail godoc
// @Summary      Change email
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id     path  int         true  "User ID"
// @Param        input  body  EmailInput  true  "New email"
// @Success      200  {object}  PrivateUserResponse
// @Failure      400  {object}  ErrorResponse "Invalid or already taken"
// @Failure      403  {object}  ErrorResponse
// @Router       /api/users/{id}/email [put]
func UpdateEmail(c *gin.Context) {
	user, ok := loadPathUser(c)
	if !ok {
		return
	}
	var input EmailInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updateIdentity(c, user, "email", normalizeEmail(input.Email))
}

// UpdatePassword godoc
// @Summary      Change password
// @Description  Requires the current password. Outstanding refresh tokens are revoked.
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id     path  int            true  "User ID"
// @Param        input  body  PasswordInput  true  "Current and new password"
// @Success      200  {object}  MessageResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse "Current password is wrong"
// @Failure      403  {object}  ErrorResponse
// @Router       /api/users/{id}/password [put]
func UpdatePassword(c *gin.Context) {
	user, ok := loadPathUser(c)
	if !ok {
		return
	}
	var input PasswordInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.CurrentPassword)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Current password is incorrect"})
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		internalError(c, err, "Failed to hash password")
		return
	}

	err = db(c).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&user).Update("password_hash", string(hashed)).Error; err != nil {
			return err
		}
		return bumpTokenVersion(tx, user.ID)
	})
	if err != nil {
		internalError(c, err, "Failed to update password")
		return
	}

	clearRefreshCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
}

// UpdateBio godoc
// @Summary      Change bio
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id     path  int       true  "User ID"
// @Param        input  body  BioInput  true  "New bio"
// @Success      200  {object}  PrivateUserResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Router       /api/users/{id}/bio [put]
func UpdateBio(c *gin.Context) {
	user, ok := loadPathUser(c)
	if !ok {
		return
	}
	var input BioInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := db(c).Model(&user).Update("bio", input.Bio).Error; err != nil {
		internalError(c, err, "Failed to update bio")
		return
	}
	respondPrivateProfile(c, user)
}

// endregion

// region --- Helpers ---

// loadPathUser loads the user named by :id. Access was already checked by
// auth.SelfOrAdminMiddleware.
func loadPathUser(c *gin.Context) (models.User, bool) {
	var user models.User
	id, ok := uintParam(c, "id")
	if !ok {
		return user, false
	}
	if err := db(c).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		} else {
			internalError(c, err, "Failed to load user")
		}
		return user, false
	}
	return user, true
}

func updateIdentity(c *gin.Context, user models.User, column, value string) {
	username, email := "", ""
	if column == "username" {
		username = value
	} else {
		email = value
	}

	taken, field, err := identityTaken(c, user.ID, username, email)
	if err != nil {
		internalError(c, err, "Failed to check existing users")
		return
	}
	if taken {
		c.JSON(http.StatusBadRequest, gin.H{"error": field + " already in use"})
		return
	}

	if err := db(c).Model(&user).Update(column, value).Error; err != nil {
		if database.IsDuplicate(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Username or email already in use"})
			return
		}
		internalError(c, err, "Failed to update "+column)
		return
	}
	respondPrivateProfile(c, user)
}

func respondPrivateProfile(c *gin.Context, user models.User) {
	if err := db(c).First(&user, user.ID).Error; err != nil {
		internalError(c, err, "Failed to reload user")
		return
	}
	res, err := buildPrivateUserResponse(c, user)
	if err != nil {
		internalError(c, err, "Failed to build user profile")
		return
	}
	c.JSON(http.StatusOK, res)
}

func buildPublicUserResponse(c *gin.Context, target models.User, viewerID uint) (PublicUserResponse, error) {
	friendsCount, err := countFriends(c, target.ID)
	if err != nil {
		return PublicUserResponse{}, err
	}

	res := PublicUserResponse{
		ID:           target.ID,
		Username:     target.Username,
		AvatarURL:    target.AvatarURL,
		Bio:          target.Bio,
		FriendsCount: friendsCount,
	}
	if viewerID != 0 {
		status, err := friendshipStatus(c, viewerID, target.ID)
		if err != nil {
			return PublicUserResponse{}, err
		}
		res.FriendshipStatus = status
	}
	return res, nil
}

func buildPrivateUserResponse(c *gin.Context, user models.User) (PrivateUserResponse, error) {
	friendsCount, err := countFriends(c, user.ID)
	if err != nil {
		return PrivateUserResponse{}, err
	}
	var collectionCount, wishlistCount int64
	if err := db(c).Model(&models.CollectionEntry{}).Where("user_id = ?", user.ID).Count(&collectionCount).Error; err != nil {
		return PrivateUserResponse{}, err
	}
	if err := db(c).Model(&models.WishlistEntry{}).Where("user_id = ?", user.ID).Count(&wishlistCount).Error; err != nil {
		return PrivateUserResponse{}, err
	}

	return PrivateUserResponse{
		ID:              user.ID,
		Username:        user.Username,
		Email:           user.Email,
		IsAdmin:         user.IsAdmin,
		AvatarURL:       user.AvatarURL,
		Bio:             user.Bio,
		FriendsCount:    friendsCount,
		CollectionCount: collectionCount,
		WishlistCount:   wishlistCount,
	}, nil
}

func countFriends(c *gin.Context, userID uint) (int64, error) {
	var count int64
	err := db(c).Model(&models.Friendship{}).
		Where("user_one_id = ? OR user_two_id = ?", userID, userID).
		Count(&count).Error
	return count, err
}

func friendshipStatus(c *gin.Context, viewerID, targetID uint) (FriendshipStatus, error) {
	if viewerID == targetID {
		return StatusSelf, nil
	}

	friends, err := areFriends(c, viewerID, targetID)
	if err != nil {
		return "", err
	}
	if friends {
		return StatusFriends, nil
	}

	var requests []models.FriendRequest
	err = db(c).
		Where("(from_user_id = ? AND to_user_id = ?) OR (from_user_id = ? AND to_user_id = ?)", viewerID, targetID, targetID, viewerID).
		Find(&requests).Error
	if err != nil {
		return "", err
	}
	for _, r := range requests {
		if r.FromUserID == viewerID {
			return StatusRequestSent, nil
		}
		return StatusRequestReceived, nil
	}
	return StatusNone, nil
}

// endregion
