package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"gameshelf/backend/internal/database"
	"gameshelf/backend/internal/metrics"
	"gameshelf/backend/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// region --- DTOs ---

type ShelfInput struct {
	GameID     uint   `json:"game_id" binding:"required" example:"3"`
	ConsoleIDs []uint `json:"console_ids"`
}

// GameRefInput is the optional body of the remove endpoints.
type GameRefInput struct {
	GameID uint `json:"game_id"`
}

type WishlistEntryResponse struct {
	ID        uint              `json:"id"`
	Game      GameResponse      `json:"game"`
	Consoles  []ConsoleResponse `json:"consoles"`
	CreatedAt time.Time         `json:"created_at"`
}

func newWishlistEntryResponse(entry models.WishlistEntry) WishlistEntryResponse {
	return WishlistEntryResponse{
		ID:        entry.ID,
		Game:      newGameResponse(entry.Game),
		Consoles:  newConsoleResponses(entry.Consoles),
		CreatedAt: entry.CreatedAt,
	}
}

// endregion

// region --- Wishlist Handlers ---

// GetWishlist godoc
// @Summary      Get a user's wishlist
// @Description  Lists wishlist entries with the game and the consoles it is wanted on, newest first.
// @Tags         wishlist
// @Produce      json
// @Security     BearerAuth
// @Param        userId  path  int  true  "User ID"
// @Success      200  {array}   WishlistEntryResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Router       /api/mywishlist/{userId} [get]
func GetWishlist(c *gin.Context) {
	userID, ok := uintParam(c, "userId")
	if !ok {
		return
	}

	var entries []models.WishlistEntry
	err := db(c).Where("user_id = ?", userID).
		Preload("Game.Consoles").Preload("Consoles").
		Order("created_at DESC, id DESC").
		Find(&entries).Error
	if err != nil {
		internalError(c, err, "Failed to retrieve wishlist")
		return
	}

	response := make([]WishlistEntryResponse, 0, len(entries))
	for _, entry := range entries {
		response = append(response, newWishlistEntryResponse(entry))
	}
	c.JSON(http.StatusOK, response)
}

// AddToWishlist godoc
// @Summary      Add a game to a user's wishlist
// @Tags         wishlist
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        userId  path  int         true  "User ID"
// @Param        input   body  ShelfInput  true  "Game and desired consoles"
// @Success      201  {object}  WishlistEntryResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse "Game not found"
// @Failure      420  {object}  ErrorResponse "Already wishlisted or already collected"
// @Router       /api/mywishlist/{userId} [post]
func AddToWishlist(c *gin.Context) {
	userID, ok := uintParam(c, "userId")
	if !ok {
		return
	}
	var input ShelfInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !gameExists(c, input.GameID) {
		return
	}

	var wished, collected int64
	if err := db(c).Model(&models.WishlistEntry{}).Where("user_id = ? AND game_id = ?", userID, input.GameID).Count(&wished).Error; err != nil {
		internalError(c, err, "Failed to check wishlist")
		return
	}
	if wished > 0 {
		c.JSON(StatusDuplicateResource, gin.H{"error": "Game is already in the wishlist"})
		return
	}
	if err := db(c).Model(&models.CollectionEntry{}).Where("user_id = ? AND game_id = ?", userID, input.GameID).Count(&collected).Error; err != nil {
		internalError(c, err, "Failed to check collection")
		return
	}
	if collected > 0 {
		c.JSON(StatusDuplicateResource, gin.H{"error": "Game is already in the collection"})
		return
	}

	consoles, err := findConsoles(db(c), input.ConsoleIDs)
	if err != nil {
		if !consoleError(c, err) {
			internalError(c, err, "Failed to load consoles")
		}
		return
	}

	entry := models.WishlistEntry{UserID: userID, GameID: input.GameID, Consoles: consoles}
	if err := db(c).Omit("Consoles.*").Create(&entry).Error; err != nil {
		if database.IsDuplicate(err) {
			c.JSON(StatusDuplicateResource, gin.H{"error": "Game is already in the wishlist"})
			return
		}
		internalError(c, err, "Failed to add to wishlist")
		return
	}
	metrics.ShelfChanges.WithLabelValues("wishlist", "add").Inc()

	if err := db(c).Preload("Game.Consoles").Preload("Consoles").First(&entry, entry.ID).Error; err != nil {
		internalError(c, err, "Failed to reload wishlist entry")
		return
	}
	c.JSON(http.StatusCreated, newWishlistEntryResponse(entry))
}

// RemoveFromWishlist godoc
// @Summary      Remove a game from a user's wishlist
// @Tags         wishlist
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        userId   path   int           true   "User ID"
// @Param        game_id  query  int           false  "Game ID"
// @Param        input    body   GameRefInput  false  "Game ID, when not given as query parameter"
// @Success      200  {object}  MessageResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse "Game is not in the wishlist"
// @Router       /api/mywishlist/{userId} [delete]
func RemoveFromWishlist(c *gin.Context) {
	userID, ok := uintParam(c, "userId")
	if !ok {
		return
	}
	gameID, ok := gameIDFromRequest(c)
	if !ok {
		return
	}

	err := db(c).Transaction(func(tx *gorm.DB) error {
		var entry models.WishlistEntry
		if err := tx.Where("user_id = ? AND game_id = ?", userID, gameID).First(&entry).Error; err != nil {
			return err
		}
		if err := tx.Model(&entry).Association("Consoles").Clear(); err != nil {
			return err
		}
		return tx.Delete(&entry).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Game is not in the wishlist"})
		return
	}
	if err != nil {
		internalError(c, err, "Failed to remove from wishlist")
		return
	}
	metrics.ShelfChanges.WithLabelValues("wishlist", "remove").Inc()

	c.JSON(http.StatusOK, gin.H{"message": "Game removed from wishlist"})
}

// endregion

// region --- Helpers ---

func gameExists(c *gin.Context, gameID uint) bool {
	var count int64
	if err := db(c).Model(&models.Game{}).Where("id = ?", gameID).Count(&count).Error; err != nil {
		internalError(c, err, "Failed to load game")
		return false
	}
	if count == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Game not found"})
		return false
	}
	return true
}

// gameIDFromRequest reads game_id from the query string, falling back to a
// JSON body.
func gameIDFromRequest(c *gin.Context) (uint, bool) {
	if raw := c.Query("game_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid game_id"})
			return 0, false
		}
		return uint(id), true
	}

	var input GameRefInput
	if err := c.ShouldBindJSON(&input); err != nil || input.GameID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "game_id is required"})
		return 0, false
	}
	return input.GameID, true
}

// endregion
