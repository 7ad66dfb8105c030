package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"chatapp/backend/internal/presence"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// region --- DTOs ---

// ErrorResponse represents a generic error response.
type ErrorResponse struct {
	Error string `json:"error" example:"An error message"`
}

// ResultResponse is returned by write endpoints that succeeded.
type ResultResponse struct {
	Result bool `json:"result" example:"true"`
}

// PresenceResponse is one user currently in the chat.
type PresenceResponse struct {
	Username string    `json:"username" example:"Alice"`
	Since    time.Time `json:"since"`
}

// endregion

type PresenceHandler struct {
	store presence.Store
	log   *slog.Logger
}

func NewPresenceHandler(store presence.Store, log *slog.Logger) *PresenceHandler {
	return &PresenceHandler{store: store, log: log}
}

// RegisterPresence godoc
// @Summary      Announce a user
// @Description  Marks a username as present in the chat. Registering twice is allowed.
// @Tags         presence
// @Produce      json
// @Param        username path      string  true  "Display name"
// @Success      200  {object}  ResultResponse
// @Failure      400  {object}  ErrorResponse "Blank username"
// @Failure      500  {object}  ErrorResponse
// @Router       /users/{username} [put]
func (h *PresenceHandler) RegisterPresence(c *gin.Context) {
	username := strings.TrimSpace(c.Param("username"))
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username must not be blank"})
		return
	}

	if err := h.store.Register(c.Request.Context(), username); err != nil {
		h.log.Error("Failed to register presence", "username", username, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not register presence"})
		return
	}
	c.JSON(http.StatusOK, ResultResponse{Result: true})
}

// DeregisterPresence godoc
// @Summary      Withdraw a user
// @Description  Removes a username from the present users. Unknown usernames are ignored.
// @Tags         presence
// @Produce      json
// @Param        username path      string  true  "Display name"
// @Success      200  {object}  ResultResponse
// @Failure      400  {object}  ErrorResponse "Blank username"
// @Failure      500  {object}  ErrorResponse
// @Router       /users/{username} [delete]
func (h *PresenceHandler) DeregisterPresence(c *gin.Context) {
	username := strings.TrimSpace(c.Param("username"))
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username must not be blank"})
		return
	}

	if err := h.store.Deregister(c.Request.Context(), username); err != nil {
		h.log.Error("Failed to deregister presence", "username", username, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not deregister presence"})
		return
	}
	c.JSON(http.StatusOK, ResultResponse{Result: true})
}

// ListPresence godoc
// @Summary      List present users
// @Tags         presence
// @Produce      json
// @Success      200  {array}   PresenceResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /users [get]
func (h *PresenceHandler) ListPresence(c *gin.Context) {
	entries, err := h.store.List(c.Request.Context())
	if err != nil {
		h.log.Error("Failed to list presence", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not list users"})
		return
	}
	c.JSON(http.StatusOK, lo.Map(entries, func(e presence.Entry, _ int) PresenceResponse {
		return PresenceResponse{Username: e.Username, Since: e.Since}
	}))
}
