package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"chatapp/backend/internal/hub"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type ChannelHandler struct {
	hub    *hub.Hub
	buffer int
	log    *slog.Logger
}

// NewChannelHandler serves subscriptions from h. buffer is how many events
// a subscriber may lag behind before it is disconnected.
func NewChannelHandler(h *hub.Hub, buffer int, log *slog.Logger) *ChannelHandler {
	return &ChannelHandler{hub: h, buffer: buffer, log: log}
}

func subscribed(channel string) hub.Event {
	return hub.Event{Channel: channel, Name: hub.SubscriptionSucceeded, Data: json.RawMessage(`{}`)}
}

// Subscribe godoc
// @Summary      Subscribe over WebSocket
// @Description  Upgrades to a WebSocket. The first frame is a "pubsub:subscription_succeeded" event, then one JSON frame {"channel","event","data"} per published event.
// @Tags         channels
// @Param        channel path string true "Channel name"
// @Success      101
// @Failure      400  {object}  ErrorResponse
// @Router       /channels/{channel}/ws [get]
func (h *ChannelHandler) Subscribe(c *gin.Context) {
	channel := c.Param("channel")
	if !hub.ValidChannel(channel) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid channel name"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "channel", channel, "error", err)
		return
	}

	id := uuid.NewString()
	log := h.log.With("subscriber", id, "channel", channel)
	client := make(hub.Client, h.buffer)
	h.hub.Subscribe(channel, client)

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(subscribed(channel)); err != nil {
		log.Warn("Failed to acknowledge subscription", "error", err)
		h.hub.Unsubscribe(channel, client)
		_ = conn.Close()
		return
	}
	log.Debug("Subscriber connected")

	go h.writePump(conn, client, log)
	h.readPump(conn, channel, client, log)
}

// readPump only watches the connection; subscribers never publish over it.
func (h *ChannelHandler) readPump(conn *websocket.Conn, channel string, client hub.Client, log *slog.Logger) {
	defer func() {
		h.hub.Unsubscribe(channel, client)
		_ = conn.Close()
		log.Debug("Subscriber disconnected")
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn("WebSocket read error", "error", err)
			}
			return
		}
	}
}

func (h *ChannelHandler) writePump(conn *websocket.Conn, client hub.Client, log *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case message, ok := <-client:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug("WebSocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Stream godoc
// @Summary      Subscribe over Server-Sent Events
// @Description  Streams the same events as the WebSocket endpoint, starting with "pubsub:subscription_succeeded".
// @Tags         channels
// @Produce      text/event-stream
// @Param        channel path string true "Channel name"
// @Success      200
// @Failure      400  {object}  ErrorResponse
// @Router       /channels/{channel}/events [get]
func (h *ChannelHandler) Stream(c *gin.Context) {
	channel := c.Param("channel")
	if !hub.ValidChannel(channel) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid channel name"})
		return
	}

	client := make(hub.Client, h.buffer)
	h.hub.Subscribe(channel, client)
	defer h.hub.Unsubscribe(channel, client)

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(hub.SubscriptionSucceeded, "{}")
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case message, ok := <-client:
			if !ok {
				return false
			}
			var event hub.Event
			if err := json.Unmarshal(message, &event); err != nil {
				h.log.Error("Undecodable hub frame", "channel", channel, "error", err)
				return true
			}
			c.SSEvent(event.Name, string(event.Data))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
