package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"sync"
)

// SubscriptionSucceeded is sent to a subscriber right after it joined a channel.
const SubscriptionSucceeded = "pubsub:subscription_succeeded"

var channelName = regexp.MustCompile(`^[-a-zA-Z0-9_=@,.;]{1,164}$`)

// ValidChannel reports whether name can be used as a channel name.
func ValidChannel(name string) bool {
	return channelName.MatchString(name)
}

// Event represents a real-time event to be sent to clients.
type Event struct {
	Channel string          `json:"channel"`
	Name    string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// Publisher delivers an event to every subscriber of its channel.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Client represents a single subscriber connection.
// It's essentially a channel that the WebSocket or SSE handler will listen to.
type Client chan []byte

// Hub manages all active channels and their clients.
type Hub struct {
	channels map[string]map[Client]bool
	mu       sync.RWMutex
	log      *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		channels: make(map[string]map[Client]bool),
		log:      log,
	}
}

// Subscribe adds a new client to a channel, creating the channel on first use.
func (h *Hub) Subscribe(channel string, client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.channels[channel]; !ok {
		h.channels[channel] = make(map[Client]bool)
	}
	h.channels[channel][client] = true
}

// Unsubscribe removes a client from a channel and closes it.
// Unknown clients are ignored, so it is safe to call more than once.
func (h *Hub) Unsubscribe(channel string, client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(channel, client)
}

func (h *Hub) unsubscribeLocked(channel string, client Client) {
	if clients, ok := h.channels[channel]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			close(client) // Close the channel to signal the handler to stop.
			if len(clients) == 0 {
				delete(h.channels, channel)
			}
		}
	}
}

// Broadcast sends an event to all clients of its channel.
// A client whose buffer is full is disconnected instead of silently missing events.
func (h *Hub) Broadcast(event Event) {
	messageBytes, err := json.Marshal(event)
	if err != nil {
		h.log.Error("Failed to encode event", "channel", event.Channel, "event", event.Name, "error", err)
		return
	}

	var slow []Client
	h.mu.RLock()
	for client := range h.channels[event.Channel] {
		// Use a non-blocking send to prevent a slow client from blocking the hub.
		select {
		case client <- messageBytes:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	if len(slow) == 0 {
		return
	}
	h.mu.Lock()
	for _, client := range slow {
		h.unsubscribeLocked(event.Channel, client)
	}
	h.mu.Unlock()
	h.log.Warn("Disconnected slow subscribers", "channel", event.Channel, "count", len(slow))
}

// Publish implements Publisher for a single relay instance.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.Broadcast(event)
	return nil
}

// SubscriberCount returns how many clients currently listen on channel.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Channels returns the names of channels that have at least one subscriber.
func (h *Hub) Channels() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.channels))
	for name := range h.channels {
		names = append(names, name)
	}
	return names
}
