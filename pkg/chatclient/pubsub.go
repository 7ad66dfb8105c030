package chatclient

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// SubscriptionSucceededEvent is the first frame the provider sends on a new subscription.
const SubscriptionSucceededEvent = "pubsub:subscription_succeeded"

const defaultAckTimeout = 10 * time.Second

// Event is one frame received from the pub/sub provider.
type Event struct {
	Channel string          `json:"channel"`
	Name    string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// PubSub subscribes to provider channels over WebSocket, one connection per channel.
type PubSub struct {
	baseURL    string
	dialer     *websocket.Dialer
	ackTimeout time.Duration
	log        *slog.Logger
}

// NewPubSub returns a Subscriber dialing channels under baseURL.
func NewPubSub(baseURL string, log *slog.Logger) *PubSub {
	return &PubSub{
		baseURL:    baseURL,
		dialer:     websocket.DefaultDialer,
		ackTimeout: defaultAckTimeout,
		log:        log,
	}
}

// Subscribe opens the channel and returns once the provider acknowledged the
// subscription, so no event published afterwards can be missed.
func (p *PubSub) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	endpoint, err := p.channelURL(channel)
	if err != nil {
		return nil, &NetworkError{Op: "subscribe", Err: err}
	}

	conn, resp, err := p.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, &NetworkError{Op: "subscribe", Status: status, Err: err}
	}

	deadline := time.Now().Add(p.ackTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)

	var ack Event
	if err := conn.ReadJSON(&ack); err != nil {
		_ = conn.Close()
		return nil, &NetworkError{Op: "subscribe", Err: err}
	}
	if ack.Name != SubscriptionSucceededEvent || ack.Channel != channel {
		_ = conn.Close()
		return nil, &NetworkError{Op: "subscribe", Err: ErrNotSubscribed}
	}
	_ = conn.SetReadDeadline(time.Time{})

	sub := newChannelSubscription(channel, conn, p.log)
	go sub.readLoop()
	p.log.Debug("Subscribed", "channel", channel)
	return sub, nil
}

func (p *PubSub) channelURL(channel string) (string, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.JoinPath("channels", channel, "ws").String(), nil
}

// channelSubscription dispatches frames of a single channel to bound handlers.
// Handlers run on the read goroutine while holding the read lock, so UnbindAll
// returns only after any in-flight handler has finished.
type channelSubscription struct {
	name string
	conn *websocket.Conn
	log  *slog.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler

	closing   atomic.Bool
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

func newChannelSubscription(name string, conn *websocket.Conn, log *slog.Logger) *channelSubscription {
	return &channelSubscription{
		name:     name,
		conn:     conn,
		log:      log,
		handlers: make(map[string][]Handler),
		done:     make(chan struct{}),
	}
}

func (s *channelSubscription) Bind(event string, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = append(s.handlers[event], handler)
}

func (s *channelSubscription) UnbindAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = make(map[string][]Handler)
}

// Unsubscribe closes the connection and waits for the read goroutine to exit.
// It must not be called from inside a handler.
func (s *channelSubscription) Unsubscribe() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		s.closeErr = s.conn.Close()
	})
	<-s.done
	return s.closeErr
}

func (s *channelSubscription) readLoop() {
	defer close(s.done)
	for {
		_, r, err := s.conn.NextReader()
		if err != nil {
			if !s.closing.Load() {
				s.log.Warn("Subscription closed by provider", "channel", s.name, "error", err)
			}
			return
		}
		var evt Event
		if err := json.NewDecoder(r).Decode(&evt); err != nil {
			s.log.Warn("Dropping undecodable frame", "channel", s.name, "error", err)
			continue
		}
		s.dispatch(evt)
	}
}

func (s *channelSubscription) dispatch(evt Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, handler := range s.handlers[evt.Name] {
		handler(evt.Data)
	}
}

var _ Subscription = (*channelSubscription)(nil)
