package chatclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chatapp/backend/pkg/chatclient"
	"chatapp/backend/pkg/chatclient/mocks"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	relay      *mocks.MockRelay
	subscriber *mocks.MockSubscriber
	sub        *mocks.MockSubscription
	handler    chatclient.Handler
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	return &fixture{
		relay:      mocks.NewMockRelay(ctrl),
		subscriber: mocks.NewMockSubscriber(ctrl),
		sub:        mocks.NewMockSubscription(ctrl),
	}
}

func (f *fixture) expectStart(username, channel string) {
	f.subscriber.EXPECT().Subscribe(gomock.Any(), channel).Return(f.sub, nil)
	f.sub.EXPECT().Bind(chatclient.MessageEvent, gomock.Any()).
		Do(func(_ string, h chatclient.Handler) { f.handler = h })
	f.relay.EXPECT().RegisterPresence(gomock.Any(), username).Return(nil)
}

func (f *fixture) expectEnd(username string) {
	f.sub.EXPECT().UnbindAll()
	f.sub.EXPECT().Unsubscribe().Return(nil)
	f.relay.EXPECT().DeregisterPresence(gomock.Any(), username).Return(nil)
}

func payload(t *testing.T, msg chatclient.Message) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return data
}

func at(minute int) time.Time {
	return time.Date(2025, 3, 14, 9, minute, 0, 0, time.UTC)
}

func TestEnter(t *testing.T) {
	req := require.New(t)

	for _, blank := range []string{"", " ", "\t\n  "} {
		_, err := chatclient.Enter(blank)
		req.ErrorIs(err, chatclient.ErrEmptyUsername)
		req.Equal(chatclient.ResultValidationError, chatclient.Classify(err))
	}

	username, err := chatclient.Enter("  Alice ")
	req.NoError(err)
	req.Equal("Alice", username)
}

func TestSession_Start_BlankUsernameDoesNothing(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	session := chatclient.NewSession(f.relay, f.subscriber)

	// When starting with a blank name, no mock call is expected
	err := session.Start(context.Background(), "   ")

	req.ErrorIs(err, chatclient.ErrEmptyUsername)
	req.False(session.Active())
}

func TestSession_ReceivesMessagesInDeliveryOrder(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.expectStart("Alice", chatclient.DefaultChannel)
	f.expectEnd("Alice")
	session := chatclient.NewSession(f.relay, f.subscriber)

	req.NoError(session.Start(context.Background(), "Alice"))
	req.True(session.Active())

	// Given N events delivered, one of them twice
	var want []chatclient.Message
	for i := range 20 {
		msg := chatclient.Message{Text: fmt.Sprintf("msg %d", i), Username: "Bob", CreatedAt: at(i), ID: 99999 - i}
		want = append(want, msg)
		f.handler(payload(t, msg))
	}
	f.handler(payload(t, want[3]))
	want = append(want, want[3])

	// Then the log holds exactly those events, in order, duplicates included
	req.Equal(want, session.Log())

	session.End()
	session.Wait()
}

func TestSession_End_DropsLateEvents(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.expectStart("Alice", chatclient.DefaultChannel)
	f.expectEnd("Alice")
	session := chatclient.NewSession(f.relay, f.subscriber)
	req.NoError(session.Start(context.Background(), "Alice"))

	first := chatclient.Message{Text: "hi", Username: "Alice", CreatedAt: at(1), ID: 7}
	f.handler(payload(t, first))

	// When the session ends, twice
	session.End()
	session.End()
	session.Wait()

	// Then events delivered afterwards have no effect
	f.handler(payload(t, chatclient.Message{Text: "late", Username: "Bob", CreatedAt: at(2), ID: 8}))
	session.Receive(payload(t, chatclient.Message{Text: "later", Username: "Bob", CreatedAt: at(3), ID: 9}))

	req.False(session.Active())
	req.Equal([]chatclient.Message{first}, session.Log())
}

func TestSession_Send_BlankTextIsRefused(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.expectStart("Alice", chatclient.DefaultChannel)
	f.expectEnd("Alice")
	session := chatclient.NewSession(f.relay, f.subscriber)
	req.NoError(session.Start(context.Background(), "Alice"))

	for _, blank := range []string{"", "   ", "\n"} {
		err := session.Send(context.Background(), blank)
		req.ErrorIs(err, chatclient.ErrEmptyText)
		req.Equal(chatclient.ResultValidationError, chatclient.Classify(err))
	}

	session.End()
	session.Wait()
}

func TestSession_Send_WithoutSession(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	session := chatclient.NewSession(f.relay, f.subscriber)

	err := session.Send(context.Background(), "hello")

	req.ErrorIs(err, chatclient.ErrNoSession)
}

func TestSession_Send_SubmitsWithoutLocalEcho(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.expectStart("Alice", chatclient.DefaultChannel)
	f.expectEnd("Alice")
	session := chatclient.NewSession(f.relay, f.subscriber,
		chatclient.WithClock(func() time.Time { return at(5) }),
		chatclient.WithIDSource(func() int { return 4242 }),
	)
	req.NoError(session.Start(context.Background(), "Alice"))

	// Given the relay accepts the message, untrimmed text included
	expected := chatclient.Message{Text: " hi ", Username: "Alice", CreatedAt: at(5), ID: 4242}
	f.relay.EXPECT().SubmitMessage(gomock.Any(), chatclient.DefaultChannel, expected).Return(nil)

	req.NoError(session.Send(context.Background(), " hi "))

	// Then nothing is appended until the provider echoes it
	req.Empty(session.Log())
	f.handler(payload(t, expected))
	req.Equal([]chatclient.Message{expected}, session.Log())

	session.End()
	session.Wait()
}

func TestSession_Send_NetworkErrorIsReturned(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.expectStart("Alice", chatclient.DefaultChannel)
	f.expectEnd("Alice")
	session := chatclient.NewSession(f.relay, f.subscriber)
	req.NoError(session.Start(context.Background(), "Alice"))

	f.relay.EXPECT().SubmitMessage(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&chatclient.NetworkError{Op: "submit message", Status: 502, Err: errors.New("Bad Gateway")})

	err := session.Send(context.Background(), "hi")

	req.Error(err)
	req.True(chatclient.IsNetworkError(err))
	req.Equal(chatclient.ResultNetworkError, chatclient.Classify(err))

	session.End()
	session.Wait()
}

func TestSession_SettleCoalescesBursts(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.expectStart("Alice", chatclient.DefaultChannel)
	f.expectEnd("Alice")
	var settled atomic.Int32
	delay := 30 * time.Millisecond
	session := chatclient.NewSession(f.relay, f.subscriber,
		chatclient.WithSettleDelay(delay),
		chatclient.WithOnSettle(func() { settled.Add(1) }),
	)
	req.NoError(session.Start(context.Background(), "Alice"))

	// When 5 messages arrive within the settle window
	for i := range 5 {
		f.handler(payload(t, chatclient.Message{Text: "burst", Username: "Bob", CreatedAt: at(i), ID: i}))
	}

	// Then the settle hook runs once, after the quiet period
	req.Eventually(func() bool { return settled.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(4 * delay)
	req.Equal(int32(1), settled.Load())

	session.End()
	session.Wait()
}

func TestSession_End_CancelsPendingSettle(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.expectStart("Alice", chatclient.DefaultChannel)
	f.expectEnd("Alice")
	var settled atomic.Int32
	delay := 30 * time.Millisecond
	session := chatclient.NewSession(f.relay, f.subscriber,
		chatclient.WithSettleDelay(delay),
		chatclient.WithOnSettle(func() { settled.Add(1) }),
	)
	req.NoError(session.Start(context.Background(), "Alice"))

	f.handler(payload(t, chatclient.Message{Text: "hi", Username: "Bob", CreatedAt: at(1), ID: 1}))
	session.End()
	session.Wait()

	time.Sleep(4 * delay)
	req.Equal(int32(0), settled.Load())
}

func TestSession_Start_EndsPreviousSession(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	gomock.InOrder(
		f.subscriber.EXPECT().Subscribe(gomock.Any(), chatclient.DefaultChannel).Return(f.sub, nil),
		f.sub.EXPECT().UnbindAll(),
		f.sub.EXPECT().Unsubscribe().Return(nil),
		f.subscriber.EXPECT().Subscribe(gomock.Any(), chatclient.DefaultChannel).Return(f.sub, nil),
	)
	f.sub.EXPECT().Bind(chatclient.MessageEvent, gomock.Any()).
		Do(func(_ string, h chatclient.Handler) { f.handler = h }).Times(2)
	f.relay.EXPECT().RegisterPresence(gomock.Any(), "Alice").Return(nil)
	f.relay.EXPECT().DeregisterPresence(gomock.Any(), "Alice").Return(nil)
	f.relay.EXPECT().RegisterPresence(gomock.Any(), "Bob").Return(nil)
	session := chatclient.NewSession(f.relay, f.subscriber)

	req.NoError(session.Start(context.Background(), "Alice"))
	stale := f.handler
	f.handler(payload(t, chatclient.Message{Text: "for alice", Username: "Carol", CreatedAt: at(1), ID: 1}))

	// When the name changes
	req.NoError(session.Start(context.Background(), "Bob"))
	session.Wait()

	// Then the previous log is gone and the previous handler is inert
	req.Equal("Bob", session.Username())
	req.Empty(session.Log())
	stale(payload(t, chatclient.Message{Text: "stale", Username: "Carol", CreatedAt: at(2), ID: 2}))
	req.Empty(session.Log())

	f.expectEnd("Bob")
	session.End()
	session.Wait()
}

func TestSession_PresenceFailureIsReportedNotFatal(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.subscriber.EXPECT().Subscribe(gomock.Any(), chatclient.DefaultChannel).Return(f.sub, nil)
	f.sub.EXPECT().Bind(chatclient.MessageEvent, gomock.Any())
	f.relay.EXPECT().RegisterPresence(gomock.Any(), "Alice").Return(errors.New("connection refused"))
	f.expectEnd("Alice")

	var (
		mu  sync.Mutex
		ops []string
	)
	session := chatclient.NewSession(f.relay, f.subscriber,
		chatclient.WithOnError(func(op string, err error) {
			mu.Lock()
			defer mu.Unlock()
			ops = append(ops, op)
		}),
	)

	req.NoError(session.Start(context.Background(), "Alice"))
	session.Wait()

	req.True(session.Active())
	mu.Lock()
	req.Equal([]string{"register presence"}, ops)
	mu.Unlock()

	session.End()
	session.Wait()
}

func TestSession_SubscribeFailureLeavesSessionInactive(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	subscribeErr := &chatclient.NetworkError{Op: "subscribe", Err: errors.New("dial tcp: refused")}
	f.subscriber.EXPECT().Subscribe(gomock.Any(), chatclient.DefaultChannel).Return(nil, subscribeErr)
	session := chatclient.NewSession(f.relay, f.subscriber)

	err := session.Start(context.Background(), "Alice")
	session.Wait()

	req.ErrorIs(err, subscribeErr)
	req.False(session.Active())
}

func TestSession_MalformedPayloadIsReported(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.expectStart("Alice", chatclient.DefaultChannel)
	f.expectEnd("Alice")
	reported := make(chan string, 1)
	session := chatclient.NewSession(f.relay, f.subscriber,
		chatclient.WithOnError(func(op string, _ error) { reported <- op }),
	)
	req.NoError(session.Start(context.Background(), "Alice"))

	f.handler(json.RawMessage(`{"text": 42`))

	req.Equal("decode message", <-reported)
	req.Empty(session.Log())

	session.End()
	session.Wait()
}

func TestSession_ScopedChannel(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.expectStart("Alice", "room-42")
	f.expectEnd("Alice")
	session := chatclient.NewSession(f.relay, f.subscriber, chatclient.WithChannel("room-42"))
	req.NoError(session.Start(context.Background(), "Alice"))

	f.relay.EXPECT().SubmitMessage(gomock.Any(), "room-42", gomock.Any()).Return(nil)
	req.NoError(session.Send(context.Background(), "hello room"))
	req.Equal("room-42", session.Channel())

	session.End()
	session.Wait()
}

func TestSession_OnMessageHook(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.expectStart("Alice", chatclient.DefaultChannel)
	f.expectEnd("Alice")
	var received []chatclient.Message
	session := chatclient.NewSession(f.relay, f.subscriber,
		chatclient.WithOnMessage(func(m chatclient.Message) { received = append(received, m) }),
	)
	req.NoError(session.Start(context.Background(), "Alice"))

	msg := chatclient.Message{Text: "hey", Username: "Bob", CreatedAt: at(1), ID: 3}
	f.handler(payload(t, msg))

	req.Equal([]chatclient.Message{msg}, received)

	session.End()
	session.Wait()
}
