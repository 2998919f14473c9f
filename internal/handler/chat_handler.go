package handler

import (
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"gameshelf/backend/internal/hub"
	"gameshelf/backend/internal/metrics"
	"gameshelf/backend/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const streamHeartbeat = 25 * time.Second

// region --- DTOs ---

type SendMessageInput struct {
	Text string `json:"text" binding:"required,max=2000" example:"GG!"`
}

type ChatMessageResponse struct {
	ID        uint      `json:"id"`
	ThreadID  uint      `json:"thread_id"`
	SenderID  uint      `json:"sender_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type ChatThreadResponse struct {
	ID            uint                 `json:"id"`
	Friend        PublicUserResponse   `json:"friend"`
	LastMessage   *ChatMessageResponse `json:"last_message"`
	LastMessageAt *time.Time           `json:"last_message_at"`
}

func newChatMessageResponse(m models.ChatMessage) ChatMessageResponse {
	return ChatMessageResponse{
		ID:        m.ID,
		ThreadID:  m.ThreadID,
		SenderID:  m.SenderID,
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
	}
}

// endregion

// region --- Chat Handlers ---

// GetChats godoc
// @Summary      Get chat threads
// @Description  Lists the viewer's threads with the friend's profile and the last message, most recently active first.
// @Tags         chat
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   ChatThreadResponse
// @Failure      401  {object}  ErrorResponse
// @Router       /api/chats [get]
func GetChats(c *gin.Context) {
	viewerID := currentUserID(c)

	var threads []models.ChatThread
	err := db(c).Where("user_one_id = ? OR user_two_id = ?", viewerID, viewerID).
		Order("last_message_at IS NULL, last_message_at DESC, id DESC").
		Find(&threads).Error
	if err != nil {
		internalError(c, err, "Failed to fetch chats")
		return
	}

	responses := make([]ChatThreadResponse, 0, len(threads))
	for _, thread := range threads {
		var friend models.User
		if err := db(c).First(&friend, thread.Other(viewerID)).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			internalError(c, err, "Failed to load friend")
			return
		}
		profile, err := buildPublicUserResponse(c, friend, viewerID)
		if err != nil {
			internalError(c, err, "Failed to build user profile")
			return
		}

		res := ChatThreadResponse{ID: thread.ID, Friend: profile, LastMessageAt: thread.LastMessageAt}
		var last models.ChatMessage
		err = db(c).Where("thread_id = ?", thread.ID).Order("id DESC").Limit(1).Take(&last).Error
		switch {
		case err == nil:
			m := newChatMessageResponse(last)
			res.LastMessage = &m
		case !errors.Is(err, gorm.ErrRecordNotFound):
			internalError(c, err, "Failed to load last message")
			return
		}
		responses = append(responses, res)
	}

	c.JSON(http.StatusOK, responses)
}

// GetMessages godoc
// @Summary      Get messages of a chat
// @Description  Returns up to limit messages older than the before cursor, oldest first.
// @Tags         chat
// @Produce      json
// @Security     BearerAuth
// @Param        friendId  path   int  true   "Friend User ID"
// @Param        before    query  int  false  "Only messages with a smaller id"
// @Param        limit     query  int  false  "Number of messages" default(50)
// @Success      200  {array}   ChatMessageResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse "Not friends"
// @Router       /api/chats/{friendId}/messages [get]
func GetMessages(c *gin.Context) {
	thread, ok := loadThread(c)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	query := db(c).Where("thread_id = ?", thread.ID)
	if raw := c.Query("before"); raw != "" {
		before, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid before"})
			return
		}
		query = query.Where("id < ?", before)
	}

	var messages []models.ChatMessage
	if err := query.Order("id DESC").Limit(limit).Find(&messages).Error; err != nil {
		internalError(c, err, "Failed to fetch messages")
		return
	}
	slices.Reverse(messages)

	responses := make([]ChatMessageResponse, 0, len(messages))
	for _, m := range messages {
		responses = append(responses, newChatMessageResponse(m))
	}
	c.JSON(http.StatusOK, responses)
}

// SendMessage godoc
// @Summary      Send a chat message
// @Description  Stores the message, bumps the thread activity and pushes the message to open streams.
// @Tags         chat
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        friendId  path  int               true  "Friend User ID"
// @Param        input     body  SendMessageInput  true  "Message"
// @Success      201  {object}  ChatMessageResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse "Not friends"
// @Router       /api/chats/{friendId}/messages [post]
func SendMessage(c *gin.Context) {
	thread, ok := loadThread(c)
	if !ok {
		return
	}

	var input SendMessageInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	text := strings.TrimSpace(input.Text)
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message text is required"})
		return
	}

	message := models.ChatMessage{ThreadID: thread.ID, SenderID: currentUserID(c), Text: text}
	err := db(c).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&message).Error; err != nil {
			return err
		}
		return tx.Model(&thread).Update("last_message_at", message.CreatedAt).Error
	})
	if err != nil {
		internalError(c, err, "Failed to send message")
		return
	}
	metrics.ChatMessagesSent.Inc()

	res := newChatMessageResponse(message)
	hub.GlobalHub.Broadcast(thread.ID, hub.Event{Type: hub.EventMessage, Payload: res})
	c.JSON(http.StatusCreated, res)
}

// StreamMessages godoc
// @Summary      Stream chat messages
// @Description  Server-sent events: one "message" event per new message in the thread until the client disconnects or the friendship ends.
// @Tags         chat
// @Produce      text/event-stream
// @Security     BearerAuth
// @Param        friendId  path  int  true  "Friend User ID"
// @Success      200  {string}  string  "event stream"
// @Failure      403  {object}  ErrorResponse "Not friends"
// @Router       /api/chats/{friendId}/stream [get]
func StreamMessages(c *gin.Context) {
	thread, ok := loadThread(c)
	if !ok {
		return
	}

	client := hub.NewClient()
	hub.GlobalHub.Subscribe(thread.ID, client)
	defer hub.GlobalHub.Unsubscribe(thread.ID, client)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case msg, open := <-client:
			if !open {
				return false
			}
			c.SSEvent(hub.EventMessage, string(msg))
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", "")
			return true
		case <-ctx.Done():
			return false
		}
	})
}

// endregion

// loadThread resolves :friendId to the viewer's thread with that friend,
// answering 403 when the two are not friends.
func loadThread(c *gin.Context) (models.ChatThread, bool) {
	var thread models.ChatThread
	viewerID := currentUserID(c)
	friendID, ok := uintParam(c, "friendId")
	if !ok {
		return thread, false
	}

	friends, err := areFriends(c, viewerID, friendID)
	if err != nil {
		internalError(c, err, "Failed to check friendship")
		return thread, false
	}
	if !friends {
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only chat with friends"})
		return thread, false
	}

	one, two := models.OrderedPair(viewerID, friendID)
	err = db(c).Where(models.ChatThread{UserOneID: one, UserTwoID: two}).FirstOrCreate(&thread).Error
	if err != nil {
		internalError(c, err, "Failed to load chat")
		return thread, false
	}
	return thread, true
}
