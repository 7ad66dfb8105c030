//go:generate go run go.uber.org/mock/mockgen -source=session.go -destination=mocks/mock_session.go -package=mocks
package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// DefaultSettleDelay is how long the log must stay quiet before OnSettle runs.
const DefaultSettleDelay = 100 * time.Millisecond

var (
	// ErrNoSession is returned by Send when no session is active.
	ErrNoSession = errors.New("no active session")
	// ErrSessionClosed is returned by Start once Close was called.
	ErrSessionClosed = errors.New("session closed")
)

// Handler receives the data of one provider event.
type Handler func(data json.RawMessage)

// Relay is the backend the session registers presence with and submits messages to.
type Relay interface {
	RegisterPresence(ctx context.Context, username string) error
	DeregisterPresence(ctx context.Context, username string) error
	SubmitMessage(ctx context.Context, channel string, msg Message) error
}

// Subscriber opens channel subscriptions on the pub/sub provider.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Subscription is a live channel subscription.
type Subscription interface {
	Bind(event string, handler Handler)
	UnbindAll()
	Unsubscribe() error
}

// Option configures a Session.
type Option func(*Session)

// WithChannel scopes the session to a conversation other than DefaultChannel.
func WithChannel(channel string) Option {
	return func(s *Session) { s.channel = channel }
}

// WithSettleDelay replaces DefaultSettleDelay.
func WithSettleDelay(delay time.Duration) Option {
	return func(s *Session) { s.settleDelay = delay }
}

// WithOnMessage is called after each message is appended to the log.
func WithOnMessage(fn func(Message)) Option {
	return func(s *Session) { s.onMessage = fn }
}

// WithOnSettle is called once per burst of log mutations, after the settle delay.
func WithOnSettle(fn func()) Option {
	return func(s *Session) { s.onSettle = fn }
}

// WithOnError receives failures of fire-and-forget calls. Without it they are logged.
func WithOnError(fn func(op string, err error)) Option {
	return func(s *Session) { s.onError = fn }
}

// WithLogger sets the logger used when no OnError hook is set.
func WithLogger(log *slog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithClock sets the clock that stamps outgoing messages.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithIDSource sets the generator of outgoing message ids.
func WithIDSource(next func() int) Option {
	return func(s *Session) { s.nextID = next }
}

// Session holds presence and a live message stream for one user at a time.
//
// Presence register/deregister are fire-and-forget: their errors go to the
// OnError hook and never change the session state. Messages are only added
// to the log when the provider delivers them, including the user's own.
type Session struct {
	relay       Relay
	subscriber  Subscriber
	channel     string
	settleDelay time.Duration
	log         *slog.Logger
	now         func() time.Time
	nextID      func() int
	onMessage   func(Message)
	onSettle    func()
	onError     func(op string, err error)
	settle      *debouncer

	// lifecycle serializes Start, End and Close. Handlers never take it.
	lifecycle sync.Mutex
	closed    bool

	mu       sync.Mutex
	active   bool
	gen      uint64
	username string
	sub      Subscription
	messages []Message

	inflight sync.WaitGroup
}

// NewSession returns an inactive session on DefaultChannel unless WithChannel says otherwise.
func NewSession(relay Relay, subscriber Subscriber, opts ...Option) *Session {
	s := &Session{
		relay:       relay,
		subscriber:  subscriber,
		channel:     DefaultChannel,
		settleDelay: DefaultSettleDelay,
		log:         slog.Default(),
		now:         time.Now,
		nextID:      RandomID,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.settle = newDebouncer(s.settleDelay, func() {
		if s.onSettle != nil {
			s.onSettle()
		}
	})
	return s
}

// Start binds the session to username. An active session is ended first.
// Only a failed subscription is returned; the session then stays inactive.
// Concurrent calls run one after the other.
func (s *Session) Start(ctx context.Context, username string) error {
	username, err := Enter(username)
	if err != nil {
		return err
	}

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.closed {
		return &ValidationError{Err: ErrSessionClosed}
	}
	s.end()

	sub, err := s.subscriber.Subscribe(ctx, s.channel)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.active = true
	s.username = username
	s.sub = sub
	s.messages = nil
	s.mu.Unlock()

	sub.Bind(MessageEvent, func(data json.RawMessage) { s.receive(gen, data) })
	s.fire(context.WithoutCancel(ctx), "register presence", func(ctx context.Context) error {
		return s.relay.RegisterPresence(ctx, username)
	})
	s.log.Debug("Session started", "username", username, "channel", s.channel)
	return nil
}

// End tears the session down. The settle timer is cancelled and the
// subscription released before End returns; presence deregistration is
// fired afterwards. Calling End on an inactive session does nothing.
// A Start in progress finishes first and is then ended.
func (s *Session) End() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.end()
}

// Close ends the session and makes every later Start fail with ErrSessionClosed.
func (s *Session) Close() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.closed = true
	s.end()
}

func (s *Session) end() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	s.gen++
	sub, username := s.sub, s.username
	s.sub = nil
	s.settle.Stop()
	s.mu.Unlock()

	sub.UnbindAll()
	if err := sub.Unsubscribe(); err != nil {
		s.report("unsubscribe", err)
	}
	s.fire(context.Background(), "deregister presence", func(ctx context.Context) error {
		return s.relay.DeregisterPresence(ctx, username)
	})
	s.log.Debug("Session ended", "username", username, "channel", s.channel)
}

// Receive appends one "message" event payload to the log of the active session.
func (s *Session) Receive(data json.RawMessage) {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	s.receive(gen, data)
}

func (s *Session) receive(gen uint64, data json.RawMessage) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.report("decode message", err)
		return
	}

	s.mu.Lock()
	if !s.active || s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.messages = append(s.messages, msg)
	s.settle.Trigger()
	s.mu.Unlock()

	if s.onMessage != nil {
		s.onMessage(msg)
	}
}

// Send submits text as a new message. Blank text is refused without any call.
// The message shows up in the log only once the provider echoes it back.
func (s *Session) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return &ValidationError{Err: ErrEmptyText}
	}

	s.mu.Lock()
	active, username := s.active, s.username
	s.mu.Unlock()
	if !active {
		return &ValidationError{Err: ErrNoSession}
	}

	msg := NewMessage(text, username, s.now(), s.nextID())
	return s.relay.SubmitMessage(ctx, s.channel, msg)
}

// Log returns the received messages in arrival order.
func (s *Session) Log() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

func (s *Session) Channel() string { return s.channel }

// Wait blocks until every fire-and-forget call has returned.
func (s *Session) Wait() {
	s.inflight.Wait()
}

// WaitContext is Wait bounded by ctx. It returns ctx.Err() if calls are still running.
func (s *Session) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) fire(ctx context.Context, op string, call func(context.Context) error) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if err := call(ctx); err != nil {
			s.report(op, err)
		}
	}()
}

func (s *Session) report(op string, err error) {
	if s.onError != nil {
		s.onError(op, err)
		return
	}
	s.log.Warn("Chat call failed", "op", op, "error", err)
}
