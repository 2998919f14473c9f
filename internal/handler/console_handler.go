package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gameshelf/backend/internal/database"
	"gameshelf/backend/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

var errUnknownConsole = errors.New("unknown console id")

type ConsoleInput struct {
	Name string `json:"name" binding:"required,max=100" example:"Switch"`
}

type ConsoleResponse struct {
	ID   uint   `json:"id" example:"1"`
	Name string `json:"name" example:"Switch"`
}

func newConsoleResponse(console models.Console) ConsoleResponse {
	return ConsoleResponse{ID: console.ID, Name: console.Name}
}

func newConsoleResponses(consoles []*models.Console) []ConsoleResponse {
	res := make([]ConsoleResponse, 0, len(consoles))
	for _, console := range consoles {
		if console != nil {
			res = append(res, newConsoleResponse(*console))
		}
	}
	return res
}

// GetConsoles godoc
// @Summary      Get all consoles
// @Description  Retrieves every console a game can be owned or wished for on.
// @Tags         consoles
// @Produce      json
// @Success      200  {array}   ConsoleResponse
// @Router       /api/consoles [get]
func GetConsoles(c *gin.Context) {
	var consoles []*models.Console
	if err := db(c).Order("name").Find(&consoles).Error; err != nil {
		internalError(c, err, "Failed to retrieve consoles")
		return
	}
	c.JSON(http.StatusOK, newConsoleResponses(consoles))
}

// CreateConsole godoc
// @Summary      Create a new console
// @Tags         admin-consoles
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        input body ConsoleInput true "Console Info"
// @Success      201  {object}  ConsoleResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse "Admin access required"
// @Failure      420  {object}  ErrorResponse "Console already exists"
// @Router       /api/admin/consoles [post]
func CreateConsole(c *gin.Context) {
	var input ConsoleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name := strings.TrimSpace(input.Name)

	var count int64
	if err := db(c).Model(&models.Console{}).Where("LOWER(name) = LOWER(?)", name).Count(&count).Error; err != nil {
		internalError(c, err, "Failed to check consoles")
		return
	}
	if count > 0 {
		c.JSON(StatusDuplicateResource, gin.H{"error": "Console already exists"})
		return
	}

	console := models.Console{Name: name}
	if err := db(c).Create(&console).Error; err != nil {
		if database.IsDuplicate(err) {
			c.JSON(StatusDuplicateResource, gin.H{"error": "Console already exists"})
			return
		}
		internalError(c, err, "Failed to create console")
		return
	}

	c.JSON(http.StatusCreated, newConsoleResponse(console))
}

// DeleteConsole godoc
// @Summary      Delete a console
// @Description  Deletes a console. Games, wishlist and collection entries lose the association.
// @Tags         admin-consoles
// @Produce      json
// @Security     BearerAuth
// @Param        consoleId  path  int  true  "Console ID"
// @Success      200  {object}  MessageResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse "Admin access required"
// @Failure      404  {object}  ErrorResponse "Console not found"
// @Router       /api/admin/consoles/{consoleId} [delete]
func DeleteConsole(c *gin.Context) {
	id, ok := uintParam(c, "consoleId")
	if !ok {
		return
	}

	err := db(c).Transaction(func(tx *gorm.DB) error {
		for _, table := range []string{"game_consoles", "wishlist_entry_consoles", "collection_entry_consoles"} {
			if err := tx.Exec("DELETE FROM "+table+" WHERE console_id = ?", id).Error; err != nil {
				return err
			}
		}
		result := tx.Delete(&models.Console{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Console not found"})
		return
	}
	if err != nil {
		internalError(c, err, "Failed to delete console")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Console deleted"})
}

// findConsoles loads the consoles named by ids. Every id must exist.
func findConsoles(tx *gorm.DB, ids []uint) ([]*models.Console, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	var consoles []*models.Console
	if err := tx.Where("id IN ?", ids).Find(&consoles).Error; err != nil {
		return nil, err
	}
	if len(consoles) != len(ids) {
		return nil, fmt.Errorf("%w: some of %v do not exist", errUnknownConsole, ids)
	}
	return consoles, nil
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
