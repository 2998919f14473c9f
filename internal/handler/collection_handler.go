package handler

import (
	"errors"
	"net/http"
	"time"

	"gameshelf/backend/internal/database"
	"gameshelf/backend/internal/metrics"
	"gameshelf/backend/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// region --- DTOs ---

// GameDetailsInput is used for both creation and partial updates; nil fields
// are left untouched.
type GameDetailsInput struct {
	OwnershipStatus   *models.OwnershipStatus `json:"ownership_status" binding:"omitempty,oneof=owned digital borrowed lent sold" example:"owned"`
	HasBox            *bool                   `json:"has_box"`
	HasManual         *bool                   `json:"has_manual"`
	HasGame           *bool                   `json:"has_game"`
	Notes             *string                 `json:"notes" binding:"omitempty,max=2000"`
	CompletionPercent *int                    `json:"completion_percent" binding:"omitempty,min=0,max=100" example:"80"`
	Review            *string                 `json:"review" binding:"omitempty,max=5000"`
	ReviewHasSpoilers *bool                   `json:"review_has_spoilers"`
	Price             *float64                `json:"price" binding:"omitempty,min=0" example:"39.99"`
	Rating            *int                    `json:"rating" binding:"omitempty,min=1,max=10" example:"9"`
}

type CollectionInput struct {
	GameID     uint              `json:"game_id" binding:"required" example:"3"`
	ConsoleIDs []uint            `json:"console_ids"`
	Details    *GameDetailsInput `json:"details"`
}

type EditGameDetailsInput struct {
	GameDetailsInput
	// ConsoleIDs, when present, replaces the consoles the game is owned on.
	ConsoleIDs []uint `json:"console_ids"`
}

type GameDetailsResponse struct {
	ID                uint                   `json:"id"`
	CollectionEntryID uint                   `json:"collection_entry_id"`
	OwnershipStatus   models.OwnershipStatus `json:"ownership_status"`
	HasBox            bool                   `json:"has_box"`
	HasManual         bool                   `json:"has_manual"`
	HasGame           bool                   `json:"has_game"`
	Notes             string                 `json:"notes"`
	CompletionPercent int                    `json:"completion_percent"`
	Review            string                 `json:"review"`
	ReviewHasSpoilers bool                   `json:"review_has_spoilers"`
	Price             *float64               `json:"price"`
	Rating            *int                   `json:"rating"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

type CollectionEntryResponse struct {
	ID        uint                 `json:"id"`
	Game      GameResponse         `json:"game"`
	Consoles  []ConsoleResponse    `json:"consoles"`
	Details   *GameDetailsResponse `json:"details"`
	CreatedAt time.Time            `json:"created_at"`
}

// GameInfoResponse is a game seen through one user's shelves.
type GameInfoResponse struct {
	Game       GameResponse             `json:"game"`
	Collection *CollectionEntryResponse `json:"collection"`
	InWishlist bool                     `json:"in_wishlist"`
}

func newGameDetailsResponse(d *models.GameDetails) *GameDetailsResponse {
	if d == nil || d.ID == 0 {
		return nil
	}
	return &GameDetailsResponse{
		ID:                d.ID,
		CollectionEntryID: d.CollectionEntryID,
		OwnershipStatus:   d.OwnershipStatus,
		HasBox:            d.HasBox,
		HasManual:         d.HasManual,
		HasGame:           d.HasGame,
		Notes:             d.Notes,
		CompletionPercent: d.CompletionPercent,
		Review:            d.Review,
		ReviewHasSpoilers: d.ReviewHasSpoilers,
		Price:             d.Price,
		Rating:            d.Rating,
		UpdatedAt:         d.UpdatedAt,
	}
}

func newCollectionEntryResponse(entry models.CollectionEntry) CollectionEntryResponse {
	return CollectionEntryResponse{
		ID:        entry.ID,
		Game:      newGameResponse(entry.Game),
		Consoles:  newConsoleResponses(entry.Consoles),
		Details:   newGameDetailsResponse(entry.GameDetails),
		CreatedAt: entry.CreatedAt,
	}
}

// apply copies the provided fields onto d.
func (in GameDetailsInput) apply(d *models.GameDetails) {
	if in.OwnershipStatus != nil {
		d.OwnershipStatus = *in.OwnershipStatus
	}
	if in.HasBox != nil {
		d.HasBox = *in.HasBox
	}
	if in.HasManual != nil {
		d.HasManual = *in.HasManual
	}
	if in.HasGame != nil {
		d.HasGame = *in.HasGame
	}
	if in.Notes != nil {
		d.Notes = *in.Notes
	}
	if in.CompletionPercent != nil {
		d.CompletionPercent = *in.CompletionPercent
	}
	if in.Review != nil {
		d.Review = *in.Review
	}
	if in.ReviewHasSpoilers != nil {
		d.ReviewHasSpoilers = *in.ReviewHasSpoilers
	}
	if in.Price != nil {
		d.Price = in.Price
	}
	if in.Rating != nil {
		d.Rating = in.Rating
	}
}

func newGameDetails(entryID uint, in GameDetailsInput) models.GameDetails {
	d := models.GameDetails{
		CollectionEntryID: entryID,
		OwnershipStatus:   models.OwnershipOwned,
		HasGame:           true,
	}
	in.apply(&d)
	return d
}

// endregion

// region --- Collection Handlers ---

// GetCollection godoc
// @Summary      Get a user's collection
// @Description  Lists collection entries with the game, owned consoles and game details, newest first.
// @Tags         collection
// @Produce      json
// @Security     BearerAuth
// @Param        userId  path  int  true  "User ID"
// @Success      200  {array}   CollectionEntryResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Router       /api/mycollection/{userId} [get]
func GetCollection(c *gin.Context) {
	userID, ok := uintParam(c, "userId")
	if !ok {
		return
	}

	var entries []models.CollectionEntry
	err := preloadEntry(db(c)).Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&entries).Error
	if err != nil {
		internalError(c, err, "Failed to retrieve collection")
		return
	}

	response := make([]CollectionEntryResponse, 0, len(entries))
	for _, entry := range entries {
		response = append(response, newCollectionEntryResponse(entry))
	}
	c.JSON(http.StatusOK, response)
}

// AddToCollection godoc
// @Summary      Add a game to a user's collection
// @Description  Creates the collection entry and optional details in one transaction. The game leaves the user's wishlist.
// @Tags         collection
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        userId  path  int              true  "User ID"
// @Param        input   body  CollectionInput  true  "Game, owned consoles and details"
// @Success      201  {object}  CollectionEntryResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse "Game not found"
// @Failure      420  {object}  ErrorResponse "Already in the collection"
// @Router       /api/mycollection/{userId} [post]
func AddToCollection(c *gin.Context) {
	userID, ok := uintParam(c, "userId")
	if !ok {
		return
	}
	var input CollectionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !gameExists(c, input.GameID) {
		return
	}

	var count int64
	if err := db(c).Model(&models.CollectionEntry{}).Where("user_id = ? AND game_id = ?", userID, input.GameID).Count(&count).Error; err != nil {
		internalError(c, err, "Failed to check collection")
		return
	}
	if count > 0 {
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

	entry := models.CollectionEntry{UserID: userID, GameID: input.GameID, Consoles: consoles}
	var unwished int64
	err = db(c).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Consoles.*").Create(&entry).Error; err != nil {
			return err
		}
		if input.Details != nil {
			details := newGameDetails(entry.ID, *input.Details)
			if err := tx.Create(&details).Error; err != nil {
				return err
			}
		}

		wished := tx.Model(&models.WishlistEntry{}).Select("id").Where("user_id = ? AND game_id = ?", userID, input.GameID)
		if err := tx.Exec("DELETE FROM wishlist_entry_consoles WHERE wishlist_entry_id IN (?)", wished).Error; err != nil {
			return err
		}
		result := tx.Where("user_id = ? AND game_id = ?", userID, input.GameID).Delete(&models.WishlistEntry{})
		unwished = result.RowsAffected
		return result.Error
	})
	if err != nil {
		if database.IsDuplicate(err) {
			c.JSON(StatusDuplicateResource, gin.H{"error": "Game is already in the collection"})
			return
		}
		internalError(c, err, "Failed to add to collection")
		return
	}
	metrics.ShelfChanges.WithLabelValues("collection", "add").Inc()
	if unwished > 0 {
		metrics.ShelfChanges.WithLabelValues("wishlist", "remove").Inc()
	}

	if err := preloadEntry(db(c)).First(&entry, entry.ID).Error; err != nil {
		internalError(c, err, "Failed to reload collection entry")
		return
	}
	c.JSON(http.StatusCreated, newCollectionEntryResponse(entry))
}

// RemoveFromCollection godoc
// @Summary      Remove a game from a user's collection
// @Description  Deletes the collection entry together with its game details.
// @Tags         collection
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        userId   path   int           true   "User ID"
// @Param        game_id  query  int           false  "Game ID"
// @Param        input    body   GameRefInput  false  "Game ID, when not given as query parameter"
// @Success      200  {object}  MessageResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse "Game is not in the collection"
// @Router       /api/mycollection/{userId} [delete]
func RemoveFromCollection(c *gin.Context) {
	userID, ok := uintParam(c, "userId")
	if !ok {
		return
	}
	gameID, ok := gameIDFromRequest(c)
	if !ok {
		return
	}

	err := db(c).Transaction(func(tx *gorm.DB) error {
		var entry models.CollectionEntry
		if err := tx.Where("user_id = ? AND game_id = ?", userID, gameID).First(&entry).Error; err != nil {
			return err
		}
		if err := tx.Where("collection_entry_id = ?", entry.ID).Delete(&models.GameDetails{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&entry).Association("Consoles").Clear(); err != nil {
			return err
		}
		return tx.Delete(&entry).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Game is not in the collection"})
		return
	}
	if err != nil {
		internalError(c, err, "Failed to remove from collection")
		return
	}
	metrics.ShelfChanges.WithLabelValues("collection", "remove").Inc()

	c.JSON(http.StatusOK, gin.H{"message": "Game removed from collection"})
}

// endregion

// region --- Game Details Handlers ---

// GetGameInfo godoc
// @Summary      Get a game as seen by a user
// @Description  Returns the game, the user's collection entry with details (null when not collected) and whether it is wishlisted.
// @Tags         collection
// @Produce      json
// @Security     BearerAuth
// @Param        userId  path  int  true  "User ID"
// @Param        gameId  path  int  true  "Game ID"
// @Success      200  {object}  GameInfoResponse
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse "Game not found"
// @Router       /api/game-info/{userId}/{gameId} [get]
func GetGameInfo(c *gin.Context) {
	userID, ok := uintParam(c, "userId")
	if !ok {
		return
	}
	game, ok := loadGame(c, db(c))
	if !ok {
		return
	}

	res := GameInfoResponse{Game: newGameResponse(game)}

	var entry models.CollectionEntry
	err := preloadEntry(db(c)).Where("user_id = ? AND game_id = ?", userID, game.ID).First(&entry).Error
	switch {
	case err == nil:
		e := newCollectionEntryResponse(entry)
		res.Collection = &e
	case !errors.Is(err, gorm.ErrRecordNotFound):
		internalError(c, err, "Failed to load collection entry")
		return
	}

	var wished int64
	if err := db(c).Model(&models.WishlistEntry{}).Where("user_id = ? AND game_id = ?", userID, game.ID).Count(&wished).Error; err != nil {
		internalError(c, err, "Failed to check wishlist")
		return
	}
	res.InWishlist = wished > 0

	c.JSON(http.StatusOK, res)
}

// AddGameDetails godoc
// @Summary      Add details to a collected game
// @Tags         collection
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        userId  path  int               true  "User ID"
// @Param        gameId  path  int               true  "Game ID"
// @Param        input   body  GameDetailsInput  true  "Game details"
// @Success      201  {object}  GameDetailsResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse "Game is not in the collection"
// @Failure      420  {object}  ErrorResponse "Details already exist"
// @Router       /api/add-game-details/{userId}/{gameId} [post]
func AddGameDetails(c *gin.Context) {
	entry, ok := loadCollectionEntry(c)
	if !ok {
		return
	}
	if entry.GameDetails != nil && entry.GameDetails.ID != 0 {
		c.JSON(StatusDuplicateResource, gin.H{"error": "Game details already exist"})
		return
	}

	var input GameDetailsInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	details := newGameDetails(entry.ID, input)
	if err := db(c).Create(&details).Error; err != nil {
		if database.IsDuplicate(err) {
			c.JSON(StatusDuplicateResource, gin.H{"error": "Game details already exist"})
			return
		}
		internalError(c, err, "Failed to create game details")
		return
	}

	c.JSON(http.StatusCreated, newGameDetailsResponse(&details))
}

// EditGameDetails godoc
// @Summary      Edit the details of a collected game
// @Description  Only provided fields change. console_ids, when present, replaces the owned consoles.
// @Tags         collection
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        userId  path  int                   true  "User ID"
// @Param        gameId  path  int                   true  "Game ID"
// @Param        input   body  EditGameDetailsInput  true  "Fields to change"
// @Success      200  {object}  CollectionEntryResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse "No collection entry or details"
// @Router       /api/edit-game-details/{userId}/{gameId} [put]
func EditGameDetails(c *gin.Context) {
	entry, ok := loadCollectionEntry(c)
	if !ok {
		return
	}
	if entry.GameDetails == nil || entry.GameDetails.ID == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Game details not found"})
		return
	}

	var input EditGameDetailsInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var consoles []*models.Console
	if input.ConsoleIDs != nil {
		var err error
		if consoles, err = findConsoles(db(c), input.ConsoleIDs); err != nil {
			if !consoleError(c, err) {
				internalError(c, err, "Failed to load consoles")
			}
			return
		}
	}

	details := *entry.GameDetails
	input.GameDetailsInput.apply(&details)

	err := db(c).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&details).Error; err != nil {
			return err
		}
		if input.ConsoleIDs != nil {
			return tx.Model(&entry).Association("Consoles").Replace(consoles)
		}
		return nil
	})
	if err != nil {
		internalError(c, err, "Failed to update game details")
		return
	}

	if err := preloadEntry(db(c)).First(&entry, entry.ID).Error; err != nil {
		internalError(c, err, "Failed to reload collection entry")
		return
	}
	c.JSON(http.StatusOK, newCollectionEntryResponse(entry))
}

// endregion

// region --- Helpers ---

func preloadEntry(tx *gorm.DB) *gorm.DB {
	return tx.Preload("Game.Consoles").Preload("Consoles").Preload("GameDetails")
}

// loadCollectionEntry loads the entry of :userId for :gameId.
func loadCollectionEntry(c *gin.Context) (models.CollectionEntry, bool) {
	var entry models.CollectionEntry
	userID, ok := uintParam(c, "userId")
	if !ok {
		return entry, false
	}
	gameID, ok := uintParam(c, "gameId")
	if !ok {
		return entry, false
	}

	err := db(c).Preload("GameDetails").Where("user_id = ? AND game_id = ?", userID, gameID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Game is not in the collection"})
		return entry, false
	}
	if err != nil {
		internalError(c, err, "Failed to load collection entry")
		return entry, false
	}
	return entry, true
}

// endregion
