package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"chatapp/backend/internal/hub"
	"chatapp/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

const (
	// DefaultChannel is where POST /message publishes.
	DefaultChannel = "chat"
	// MessageEvent is the event name accepted messages are published under.
	MessageEvent = "message"
)

// region --- DTOs ---

// MessageInput is a chat message as submitted by a client.
type MessageInput struct {
	Text      string     `json:"text" binding:"required" example:"Hello!"`
	Username  string     `json:"username" binding:"required" example:"Alice"`
	CreatedAt *time.Time `json:"createdAt" binding:"required" example:"2025-03-14T09:00:00Z"`
	ID        *int       `json:"id" binding:"required,min=0" example:"4821"`
}

// MessageResponse is an archived chat message.
type MessageResponse struct {
	Text       string    `json:"text"`
	Username   string    `json:"username"`
	CreatedAt  time.Time `json:"createdAt"`
	ID         int       `json:"id"`
	ArchivedAt time.Time `json:"archivedAt"`
}

// PaginatedMessageResponse defines the structure for a paginated list of messages.
type PaginatedMessageResponse struct {
	Data []MessageResponse `json:"data"`
	Meta PaginationMeta    `json:"meta"`
}

func newMessageResponse(msg models.Message) MessageResponse {
	return MessageResponse{
		Text:       msg.Text,
		Username:   msg.Username,
		CreatedAt:  msg.SentAt,
		ID:         msg.ClientID,
		ArchivedAt: msg.CreatedAt,
	}
}

// endregion

// Archive stores accepted messages. Record must not block.
type Archive interface {
	Record(msg models.Message) bool
	Query(channel string) *gorm.DB
}

type MessageHandler struct {
	publisher hub.Publisher
	archive   Archive
	log       *slog.Logger
}

// NewMessageHandler returns a handler that publishes accepted messages.
// archive may be nil, in which case nothing is stored and history is unavailable.
func NewMessageHandler(publisher hub.Publisher, archive Archive, log *slog.Logger) *MessageHandler {
	return &MessageHandler{publisher: publisher, archive: archive, log: log}
}

// PostMessage godoc
// @Summary      Send a message to the shared chat
// @Description  Validates the message and publishes it unchanged as event "message" on channel "chat". The sender receives it back like every other subscriber.
// @Tags         messages
// @Accept       json
// @Produce      json
// @Param        input body MessageInput true "Message"
// @Success      200  {object}  ResultResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      429  {object}  ErrorResponse "Too many requests"
// @Failure      500  {object}  ErrorResponse
// @Router       /message [post]
func (h *MessageHandler) PostMessage(c *gin.Context) {
	h.publish(c, DefaultChannel)
}

// PostChannelMessage godoc
// @Summary      Send a message to a channel
// @Description  Same as POST /message, published on the given channel.
// @Tags         messages
// @Accept       json
// @Produce      json
// @Param        channel path   string       true  "Channel name"
// @Param        input   body   MessageInput true  "Message"
// @Success      200  {object}  ResultResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      429  {object}  ErrorResponse "Too many requests"
// @Failure      500  {object}  ErrorResponse
// @Router       /channels/{channel}/message [post]
func (h *MessageHandler) PostChannelMessage(c *gin.Context) {
	channel := c.Param("channel")
	if !hub.ValidChannel(channel) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid channel name"})
		return
	}
	h.publish(c, channel)
}

func (h *MessageHandler) publish(c *gin.Context, channel string) {
	var input MessageInput
	if err := c.ShouldBindBodyWith(&input, binding.JSON); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(input.Text) == "" || strings.TrimSpace(input.Username) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Text and username must not be blank"})
		return
	}

	// Subscribers get the payload exactly as the sender wrote it.
	var payload bytes.Buffer
	if err := json.Compact(&payload, c.MustGet(gin.BodyBytesKey).([]byte)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event := hub.Event{Channel: channel, Name: MessageEvent, Data: payload.Bytes()}
	if err := h.publisher.Publish(c.Request.Context(), event); err != nil {
		h.log.Error("Failed to publish message", "channel", channel, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not deliver message"})
		return
	}

	if h.archive != nil {
		h.archive.Record(models.Message{
			Channel:  channel,
			ClientID: *input.ID,
			Username: input.Username,
			Text:     input.Text,
			SentAt:   *input.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, ResultResponse{Result: true})
}

// GetMessages godoc
// @Summary      Get channel history
// @Description  Retrieves the archived messages of a channel, oldest first.
// @Tags         messages
// @Produce      json
// @Param        channel path   string  true   "Channel name"
// @Param        page    query  int     false  "Page number" default(1)
// @Param        limit   query  int     false  "Items per page" default(50)
// @Success      200  {object}  PaginatedMessageResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse "History disabled"
// @Failure      500  {object}  ErrorResponse
// @Router       /channels/{channel}/messages [get]
func (h *MessageHandler) GetMessages(c *gin.Context) {
	channel := c.Param("channel")
	if !hub.ValidChannel(channel) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid channel name"})
		return
	}
	if h.archive == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Message history is disabled"})
		return
	}

	page, limit := pageParams(c)
	result, err := Paginate[models.Message](h.archive.Query(channel).WithContext(c.Request.Context()), page, limit)
	if err != nil {
		h.log.Error("Failed to load history", "channel", channel, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not load messages"})
		return
	}

	c.JSON(http.StatusOK, NewPaginatedResponse(lo.Map(result.Data, func(msg models.Message, _ int) MessageResponse {
		return newMessageResponse(msg)
	}), result.Meta.TotalItems, page, limit))
}
