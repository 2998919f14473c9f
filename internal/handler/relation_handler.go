package handler

import (
	"errors"
	"net/http"
	"time"

	"gameshelf/backend/internal/database"
	"gameshelf/backend/internal/hub"
	"gameshelf/backend/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// region --- DTOs ---

type FriendRequestResponse struct {
	User      PublicUserResponse `json:"user"`
	Direction string             `json:"direction" example:"incoming"`
	CreatedAt time.Time          `json:"created_at"`
}

// FriendshipResponse is returned when a request turns into a friendship.
type FriendshipResponse struct {
	Message  string `json:"message" example:"Friend request accepted"`
	ThreadID uint   `json:"thread_id" example:"4"`
}

// endregion

// region --- Friend Handlers ---

// GetFriends godoc
// @Summary      Get friends
// @Description  Lists the public profiles of the viewer's friends.
// @Tags         friendship
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   PublicUserResponse
// @Failure      401  {object}  ErrorResponse
// @Router       /api/friends [get]
func GetFriends(c *gin.Context) {
	viewerID := currentUserID(c)

	var friendships []models.Friendship
	err := db(c).Preload("UserOne").Preload("UserTwo").
		Where("user_one_id = ? OR user_two_id = ?", viewerID, viewerID).
		Order("created_at DESC").
		Find(&friendships).Error
	if err != nil {
		internalError(c, err, "Failed to fetch friends")
		return
	}

	responses := make([]PublicUserResponse, 0, len(friendships))
	for _, f := range friendships {
		friend := f.UserOne
		if f.UserOneID == viewerID {
			friend = f.UserTwo
		}
		if friend.ID == 0 {
			continue
		}
		res, err := buildPublicUserResponse(c, friend, viewerID)
		if err != nil {
			internalError(c, err, "Failed to build user profile")
			return
		}
		responses = append(responses, res)
	}

	c.JSON(http.StatusOK, responses)
}

// GetFriendRequests godoc
// @Summary      Get pending friend requests
// @Tags         friendship
// @Produce      json
// @Security     BearerAuth
// @Param        direction query     string  false  "incoming (default) or outgoing"
// @Success      200       {array}   FriendRequestResponse
// @Failure      400       {object}  ErrorResponse
// @Failure      401       {object}  ErrorResponse
// @Router       /api/friends/requests [get]
func GetFriendRequests(c *gin.Context) {
	viewerID := currentUserID(c)
	direction := c.DefaultQuery("direction", "incoming")

	query := db(c).Order("created_at DESC")
	switch direction {
	case "incoming":
		query = query.Where("to_user_id = ?", viewerID).Preload("FromUser")
	case "outgoing":
		query = query.Where("from_user_id = ?", viewerID).Preload("ToUser")
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "direction must be incoming or outgoing"})
		return
	}

	var requests []models.FriendRequest
	if err := query.Find(&requests).Error; err != nil {
		internalError(c, err, "Failed to fetch requests")
		return
	}

	responses := make([]FriendRequestResponse, 0, len(requests))
	for _, r := range requests {
		other := r.ToUser
		if direction == "incoming" {
			other = r.FromUser
		}
		if other.ID == 0 {
			continue
		}
		profile, err := buildPublicUserResponse(c, other, viewerID)
		if err != nil {
			internalError(c, err, "Failed to build user profile")
			return
		}
		responses = append(responses, FriendRequestResponse{User: profile, Direction: direction, CreatedAt: r.CreatedAt})
	}

	c.JSON(http.StatusOK, responses)
}

// SendFriendRequest godoc
// @Summary      Send friend request
// @Description  Sends a friend request to another user. If that user already asked the viewer, the two become friends instead.
// @Tags         friendship
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Target User ID"
// @Success      200  {object}  FriendshipResponse "The reverse request existed and was accepted"
// @Success      201  {object}  MessageResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse "Target user not found"
// @Failure      420  {object}  ErrorResponse "Already friends or already requested"
// @Router       /api/friends/requests/{id} [post]
func SendFriendRequest(c *gin.Context) {
	viewerID := currentUserID(c)
	targetID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if viewerID == targetID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot send request to yourself"})
		return
	}

	var count int64
	if err := db(c).Model(&models.User{}).Where("id = ?", targetID).Count(&count).Error; err != nil {
		internalError(c, err, "Failed to load user")
		return
	}
	if count == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	friends, err := areFriends(c, viewerID, targetID)
	if err != nil {
		internalError(c, err, "Failed to check friendship")
		return
	}
	if friends {
		c.JSON(StatusDuplicateResource, gin.H{"error": "Already friends"})
		return
	}

	status, err := friendshipStatus(c, viewerID, targetID)
	if err != nil {
		internalError(c, err, "Failed to check requests")
		return
	}
	switch status {
	case StatusRequestSent:
		c.JSON(StatusDuplicateResource, gin.H{"error": "Request already sent"})
		return
	case StatusRequestReceived:
		respondAccepted(c, targetID, viewerID)
		return
	}

	request := models.FriendRequest{FromUserID: viewerID, ToUserID: targetID}
	if err := db(c).Create(&request).Error; err != nil {
		if database.IsDuplicate(err) {
			c.JSON(StatusDuplicateResource, gin.H{"error": "Request already sent"})
			return
		}
		internalError(c, err, "Failed to create request")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Request sent successfully"})
}

// AcceptFriendRequest godoc
// @Summary      Accept friend request
// @Description  Accepts a pending request: creates the friendship and its chat thread, and deletes the request.
// @Tags         friendship
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Requesting User ID"
// @Success      200  {object}  FriendshipResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse "Request not found"
// @Router       /api/friends/requests/{id}/accept [post]
func AcceptFriendRequest(c *gin.Context) {
	requesterID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	respondAccepted(c, requesterID, currentUserID(c))
}

// DeclineFriendRequest godoc
// @Summary      Decline friend request
// @Tags         friendship
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Requesting User ID"
// @Success      200  {object}  MessageResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse "Request not found"
// @Router       /api/friends/requests/{id}/decline [post]
func DeclineFriendRequest(c *gin.Context) {
	requesterID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	deleteRequest(c, requesterID, currentUserID(c), "Request declined")
}

// CancelFriendRequest godoc
// @Summary      Cancel a sent friend request
// @Tags         friendship
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Target User ID"
// @Success      200  {object}  MessageResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse "Request not found"
// @Router       /api/friends/requests/{id} [delete]
func CancelFriendRequest(c *gin.Context) {
	targetID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	deleteRequest(c, currentUserID(c), targetID, "Request cancelled")
}

// RemoveFriend godoc
// @Summary      Remove a friend
// @Description  Deletes the friendship together with the pair's chat thread and its messages. Open chat streams are closed.
// @Tags         friendship
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Friend User ID"
// @Success      200  {object}  MessageResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse "Friendship not found"
// @Router       /api/friends/{id} [delete]
func RemoveFriend(c *gin.Context) {
	viewerID := currentUserID(c)
	friendID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	one, two := models.OrderedPair(viewerID, friendID)

	var threadIDs []uint
	err := db(c).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("user_one_id = ? AND user_two_id = ?", one, two).Delete(&models.Friendship{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		if err := tx.Model(&models.ChatThread{}).Where("user_one_id = ? AND user_two_id = ?", one, two).Pluck("id", &threadIDs).Error; err != nil {
			return err
		}
		if len(threadIDs) == 0 {
			return nil
		}
		if err := tx.Where("thread_id IN ?", threadIDs).Delete(&models.ChatMessage{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", threadIDs).Delete(&models.ChatThread{}).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Friendship not found"})
		return
	}
	if err != nil {
		internalError(c, err, "Failed to remove friend")
		return
	}

	for _, id := range threadIDs {
		hub.GlobalHub.CloseThread(id)
	}
	c.JSON(http.StatusOK, gin.H{"message": "Friend removed"})
}

// endregion

// region --- Helpers ---

func areFriends(c *gin.Context, a, b uint) (bool, error) {
	one, two := models.OrderedPair(a, b)
	var count int64
	err := db(c).Model(&models.Friendship{}).Where("user_one_id = ? AND user_two_id = ?", one, two).Count(&count).Error
	return count > 0, err
}

// respondAccepted turns the request from -> to into a friendship with a
// chat thread, in one transaction.
func respondAccepted(c *gin.Context, from, to uint) {
	var thread models.ChatThread
	err := db(c).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("from_user_id = ? AND to_user_id = ?", from, to).Delete(&models.FriendRequest{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		// A crossed request in the other direction is now moot.
		if err := tx.Where("from_user_id = ? AND to_user_id = ?", to, from).Delete(&models.FriendRequest{}).Error; err != nil {
			return err
		}

		friendship := models.NewFriendship(from, to)
		if err := tx.Create(&friendship).Error; err != nil {
			return err
		}

		one, two := models.OrderedPair(from, to)
		return tx.Where(models.ChatThread{UserOneID: one, UserTwoID: two}).FirstOrCreate(&thread).Error
	})
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Pending request not found"})
	case database.IsDuplicate(err):
		c.JSON(StatusDuplicateResource, gin.H{"error": "Already friends"})
	case err != nil:
		internalError(c, err, "Failed to accept request")
	default:
		c.JSON(http.StatusOK, FriendshipResponse{Message: "Friend request accepted", ThreadID: thread.ID})
	}
}

func deleteRequest(c *gin.Context, from, to uint, message string) {
	result := db(c).Where("from_user_id = ? AND to_user_id = ?", from, to).Delete(&models.FriendRequest{})
	if result.Error != nil {
		internalError(c, result.Error, "Failed to delete request")
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Pending request not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}

// endregion
