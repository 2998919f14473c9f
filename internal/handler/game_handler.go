package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"gameshelf/backend/internal/auth"
	"gameshelf/backend/internal/database"
	"gameshelf/backend/internal/metrics"
	"gameshelf/backend/internal/models"
	"gameshelf/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// region --- DTOs ---

// GameInput is accepted as JSON or as a multipart form. A multipart request
// may carry the cover as the file field "cover".
type GameInput struct {
	Name       string `json:"name" form:"name" binding:"required,max=255" example:"Super Mario Odyssey"`
	ConsoleIDs []uint `json:"console_ids" form:"console_ids" binding:"required,min=1"`
	// CoverArt is an http(s) URL kept as is, or a base64 data URI that gets uploaded.
	CoverArt string `json:"cover_art" form:"cover_art"`
}

type GameUpdateInput struct {
	Name       *string `json:"name" binding:"omitempty,min=1,max=255"`
	ConsoleIDs []uint  `json:"console_ids" binding:"omitempty,min=1"`
	CoverArt   *string `json:"cover_art"`
}

type GameResponse struct {
	ID           uint              `json:"id" example:"1"`
	Name         string            `json:"name" example:"Super Mario Odyssey"`
	CoverArt     string            `json:"cover_art"`
	Consoles     []ConsoleResponse `json:"consoles"`
	InCollection *bool             `json:"in_collection,omitempty"`
	InWishlist   *bool             `json:"in_wishlist,omitempty"`
}

func newGameResponse(game models.Game) GameResponse {
	return GameResponse{
		ID:       game.ID,
		Name:     game.Name,
		CoverArt: game.CoverArt,
		Consoles: newConsoleResponses(game.Consoles),
	}
}

// endregion

// region --- Public Handlers ---

// SearchGames godoc
// @Summary      Search the game catalogue
// @Description  Case-insensitive substring search on the game name, optionally restricted to a console. Authenticated callers also get whether each game is in their collection or wishlist.
// @Tags         games
// @Produce      json
// @Param        q           query  string  false  "Search query for game name"
// @Param        console_id  query  int     false  "Only games available on this console"
// @Param        page        query  int     false  "Page number" default(1)
// @Param        limit       query  int     false  "Items per page" default(10)
// @Success      200  {object}  PaginatedResponse[GameResponse]
// @Failure      400  {object}  ErrorResponse
// @Router       /api/search [get]
func SearchGames(c *gin.Context) {
	page := pageParams(c)

	query := db(c).Model(&models.Game{})
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		query = query.Where(`LOWER(name) LIKE LOWER(?) ESCAPE '\'`, likePattern(q))
	}
	if raw := c.Query("console_id"); raw != "" {
		consoleID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid console_id"})
			return
		}
		query = query.Where("id IN (?)", db(c).Table("game_consoles").Select("game_id").Where("console_id = ?", consoleID))
	}

	var totalItems int64
	if err := query.Count(&totalItems).Error; err != nil {
		internalError(c, err, "Failed to count games")
		return
	}

	var games []models.Game
	err := query.Preload("Consoles").Order("name").Scopes(page.Scope).Find(&games).Error
	if err != nil {
		internalError(c, err, "Failed to retrieve games")
		return
	}

	response := make([]GameResponse, 0, len(games))
	for _, game := range games {
		response = append(response, newGameResponse(game))
	}

	if userID, ok := auth.UserID(c); ok && len(games) > 0 {
		if err := markShelves(c, userID, response); err != nil {
			internalError(c, err, "Failed to load shelves")
			return
		}
	}

	c.JSON(http.StatusOK, NewPaginatedResponse(response, totalItems, page))
}

// GetGameByID godoc
// @Summary      Get a single game by ID
// @Tags         games
// @Produce      json
// @Param        gameId path int true "Game ID"
// @Success      200 {object} GameResponse
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse "Game not found"
// @Router       /api/games/{gameId} [get]
func GetGameByID(c *gin.Context) {
	game, ok := loadGame(c, db(c))
	if !ok {
		return
	}

	response := []GameResponse{newGameResponse(game)}
	if userID, ok := auth.UserID(c); ok {
		if err := markShelves(c, userID, response); err != nil {
			internalError(c, err, "Failed to load shelves")
			return
		}
	}
	c.JSON(http.StatusOK, response[0])
}

// AddGameToDatabase godoc
// @Summary      Add a game to the catalogue
// @Description  Creates a game available on the given consoles. The cover is either an uploaded file, an http(s) URL, or a base64 data URI.
// @Tags         games
// @Accept       json
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        input body GameInput true "Game Info"
// @Success      201  {object}  GameResponse
// @Failure      400  {object}  ErrorResponse "Invalid input or unknown console"
// @Failure      413  {object}  ErrorResponse
// @Failure      420  {object}  ErrorResponse "A game with this name already exists"
// @Router       /add-game-to-database [post]
func AddGameToDatabase(c *gin.Context) {
	var input GameInput
	if err := c.ShouldBind(&input); err != nil {
		if bodyTooLarge(c, err) {
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name is required"})
		return
	}

	taken, err := gameNameTaken(db(c), input.Name, 0)
	if err != nil {
		internalError(c, err, "Failed to check catalogue")
		return
	}
	if taken {
		c.JSON(StatusDuplicateResource, gin.H{"error": "A game with this name already exists"})
		return
	}

	consoles, err := findConsoles(db(c), input.ConsoleIDs)
	if err != nil {
		if !consoleError(c, err) {
			internalError(c, err, "Failed to load consoles")
		}
		return
	}

	cover, uploaded, ok := resolveCover(c, input.CoverArt)
	if !ok {
		return
	}

	game := models.Game{
		Name:     input.Name,
		CoverArt: cover,
		Consoles: consoles,
	}
	if userID, ok := auth.UserID(c); ok {
		game.CreatedByID = &userID
	}

	if err := db(c).Omit("Consoles.*").Create(&game).Error; err != nil {
		if uploaded {
			removeStoredObject(c, cover)
		}
		if database.IsDuplicate(err) {
			c.JSON(StatusDuplicateResource, gin.H{"error": "A game with this name already exists"})
			return
		}
		internalError(c, err, "Failed to create game")
		return
	}

	c.JSON(http.StatusCreated, newGameResponse(game))
}

// endregion

// region --- Admin Handlers ---

// UpdateGame godoc
// @Summary      Update a game
// @Description  Renames a game, replaces its cover, and/or replaces its consoles. Only provided fields change.
// @Tags         admin-games
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        gameId  path  int              true  "Game ID"
// @Param        input   body  GameUpdateInput  true  "Fields to change"
// @Success      200  {object}  GameResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse "Admin access required"
// @Failure      404  {object}  ErrorResponse "Game not found"
// @Failure      420  {object}  ErrorResponse "A game with this name already exists"
// @Router       /api/admin/games/{gameId} [put]
func UpdateGame(c *gin.Context) {
	game, ok := loadGame(c, db(c))
	if !ok {
		return
	}

	var input GameUpdateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		if bodyTooLarge(c, err) {
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Name is required"})
			return
		}
		taken, err := gameNameTaken(db(c), name, game.ID)
		if err != nil {
			internalError(c, err, "Failed to check catalogue")
			return
		}
		if taken {
			c.JSON(StatusDuplicateResource, gin.H{"error": "A game with this name already exists"})
			return
		}
		updates["name"] = name
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

	previousCover := game.CoverArt
	uploaded := false
	if input.CoverArt != nil {
		cover, up, ok := resolveCover(c, *input.CoverArt)
		if !ok {
			return
		}
		updates["cover_art"] = cover
		uploaded = up
	}

	err := db(c).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(&game).Updates(updates).Error; err != nil {
				return err
			}
		}
		if consoles != nil {
			return tx.Model(&game).Association("Consoles").Replace(consoles)
		}
		return nil
	})
	if err != nil {
		if uploaded {
			removeStoredObject(c, updates["cover_art"].(string))
		}
		if database.IsDuplicate(err) {
			c.JSON(StatusDuplicateResource, gin.H{"error": "A game with this name already exists"})
			return
		}
		internalError(c, err, "Failed to update game")
		return
	}
	if _, changed := updates["cover_art"]; changed && previousCover != "" && previousCover != updates["cover_art"] {
		removeStoredObject(c, previousCover)
	}

	if err := db(c).Preload("Consoles").First(&game, game.ID).Error; err != nil {
		internalError(c, err, "Failed to reload game")
		return
	}
	c.JSON(http.StatusOK, newGameResponse(game))
}

// DeleteGame godoc
// @Summary      Delete a game
// @Description  Removes a game together with every wishlist entry, collection entry and game details that reference it.
// @Tags         admin-games
// @Produce      json
// @Security     BearerAuth
// @Param        gameId path int true "Game ID"
// @Success      200 {object} MessageResponse
// @Failure      400 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse "Admin access required"
// @Failure      404 {object} ErrorResponse "Game not found"
// @Router       /api/admin/games/{gameId} [delete]
func DeleteGame(c *gin.Context) {
	game, ok := loadGame(c, db(c))
	if !ok {
		return
	}

	err := db(c).Transaction(func(tx *gorm.DB) error {
		collected := tx.Model(&models.CollectionEntry{}).Select("id").Where("game_id = ?", game.ID)
		wished := tx.Model(&models.WishlistEntry{}).Select("id").Where("game_id = ?", game.ID)

		steps := []func() *gorm.DB{
			func() *gorm.DB { return tx.Where("collection_entry_id IN (?)", collected).Delete(&models.GameDetails{}) },
			func() *gorm.DB {
				return tx.Exec("DELETE FROM collection_entry_consoles WHERE collection_entry_id IN (?)", collected)
			},
			func() *gorm.DB { return tx.Exec("DELETE FROM wishlist_entry_consoles WHERE wishlist_entry_id IN (?)", wished) },
			func() *gorm.DB { return tx.Where("game_id = ?", game.ID).Delete(&models.CollectionEntry{}) },
			func() *gorm.DB { return tx.Where("game_id = ?", game.ID).Delete(&models.WishlistEntry{}) },
			func() *gorm.DB { return tx.Exec("DELETE FROM game_consoles WHERE game_id = ?", game.ID) },
			func() *gorm.DB { return tx.Delete(&models.Game{}, game.ID) },
		}
		for _, step := range steps {
			if err := step().Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		internalError(c, err, "Failed to delete game")
		return
	}
	if game.CoverArt != "" {
		removeStoredObject(c, game.CoverArt)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Game deleted"})
}

// endregion

// region --- Helpers ---

// loadGame loads the game named by :gameId with its consoles.
func loadGame(c *gin.Context, tx *gorm.DB) (models.Game, bool) {
	var game models.Game
	id, ok := uintParam(c, "gameId")
	if !ok {
		return game, false
	}
	if err := tx.Preload("Consoles").First(&game, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Game not found"})
		} else {
			internalError(c, err, "Failed to load game")
		}
		return game, false
	}
	return game, true
}

func gameNameTaken(tx *gorm.DB, name string, exceptID uint) (bool, error) {
	var count int64
	q := tx.Model(&models.Game{}).Where("LOWER(name) = LOWER(?)", name)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	err := q.Count(&count).Error
	return count > 0, err
}

func consoleError(c *gin.Context, err error) bool {
	if errors.Is(err, errUnknownConsole) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown console id"})
		return true
	}
	return false
}

// resolveCover turns the submitted cover into the value stored on the game.
// uploaded reports whether an object was written to the bucket.
func resolveCover(c *gin.Context, coverArt string) (cover string, uploaded bool, ok bool) {
	var data []byte
	if fh, err := c.FormFile("cover"); err == nil {
		if data, err = readUpload(fh); err != nil {
			if !storageError(c, err) {
				internalError(c, err, "Failed to read upload")
			}
			return "", false, false
		}
	} else {
		coverArt = strings.TrimSpace(coverArt)
		switch {
		case coverArt == "":
			return "", false, true
		case storage.IsDataURI(coverArt):
			if _, data, err = storage.DecodeDataURI(coverArt); err != nil {
				storageError(c, err)
				return "", false, false
			}
		default:
			u, err := url.Parse(coverArt)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "cover_art must be an http(s) URL or a data URI"})
				return "", false, false
			}
			return coverArt, false, true
		}
	}

	_, cover, err := storage.Default.PutImage(c.Request.Context(), "covers", data)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("cover", "error").Inc()
		if !storageError(c, err) {
			internalError(c, err, "Failed to store cover")
		}
		return "", false, false
	}
	metrics.UploadsTotal.WithLabelValues("cover", "ok").Inc()
	return cover, true, true
}

// markShelves fills InCollection and InWishlist for the viewer.
func markShelves(c *gin.Context, userID uint, games []GameResponse) error {
	ids := make([]uint, 0, len(games))
	for _, g := range games {
		ids = append(ids, g.ID)
	}

	var collected, wished []uint
	if err := db(c).Model(&models.CollectionEntry{}).Where("user_id = ? AND game_id IN ?", userID, ids).Pluck("game_id", &collected).Error; err != nil {
		return err
	}
	if err := db(c).Model(&models.WishlistEntry{}).Where("user_id = ? AND game_id IN ?", userID, ids).Pluck("game_id", &wished).Error; err != nil {
		return err
	}

	inCollection := toSet(collected)
	inWishlist := toSet(wished)
	for i := range games {
		col, wish := inCollection[games[i].ID], inWishlist[games[i].ID]
		games[i].InCollection = &col
		games[i].InWishlist = &wish
	}
	return nil
}

func toSet(ids []uint) map[uint]bool {
	set := make(map[uint]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// endregion
