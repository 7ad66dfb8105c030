package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"chatapp/backend/internal/archive"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func messageRouter(publisher *recordingPublisher, store Archive) *gin.Engine {
	h := NewMessageHandler(publisher, store, testLogger())
	r := gin.New()
	r.POST("/message", h.PostMessage)
	r.POST("/channels/:channel/message", h.PostChannelMessage)
	r.GET("/channels/:channel/messages", h.GetMessages)
	return r
}

func TestMessageHandler_PublishesPayloadUnchanged(t *testing.T) {
	req := require.New(t)
	publisher := &recordingPublisher{}
	r := messageRouter(publisher, nil)

	w := perform(r, http.MethodPost, "/message", `{
		"text": "  Hello!  ",
		"username": "Alice",
		"createdAt": "2025-03-14T09:00:00Z",
		"id": 4821
	}`)

	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`{"result":true}`, w.Body.String())
	events := publisher.published()
	req.Len(events, 1)
	req.Equal(DefaultChannel, events[0].Channel)
	req.Equal(MessageEvent, events[0].Name)
	req.Equal(`{"text":"  Hello!  ","username":"Alice","createdAt":"2025-03-14T09:00:00Z","id":4821}`, string(events[0].Data))
}

func TestMessageHandler_ScopedChannel(t *testing.T) {
	req := require.New(t)
	publisher := &recordingPublisher{}
	r := messageRouter(publisher, nil)

	w := perform(r, http.MethodPost, "/channels/room-42/message", `{"text":"hi","username":"Bob","createdAt":"2025-03-14T09:00:00Z","id":0}`)

	req.Equal(http.StatusOK, w.Code)
	req.Equal("room-42", publisher.published()[0].Channel)

	w = perform(r, http.MethodPost, "/channels/bad%20name/message", `{"text":"hi","username":"Bob","createdAt":"2025-03-14T09:00:00Z","id":0}`)
	req.Equal(http.StatusBadRequest, w.Code)
}

func TestMessageHandler_Validation(t *testing.T) {
	publisher := &recordingPublisher{}
	r := messageRouter(publisher, nil)

	cases := map[string]string{
		"blank text":        `{"text":"   ","username":"Alice","createdAt":"2025-03-14T09:00:00Z","id":1}`,
		"missing text":      `{"username":"Alice","createdAt":"2025-03-14T09:00:00Z","id":1}`,
		"blank username":    `{"text":"hi","username":" ","createdAt":"2025-03-14T09:00:00Z","id":1}`,
		"missing createdAt": `{"text":"hi","username":"Alice","id":1}`,
		"missing id":        `{"text":"hi","username":"Alice","createdAt":"2025-03-14T09:00:00Z"}`,
		"negative id":       `{"text":"hi","username":"Alice","createdAt":"2025-03-14T09:00:00Z","id":-1}`,
		"not json":          `hello`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := perform(r, http.MethodPost, "/message", body)
			require.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	require.Empty(t, publisher.published())
}

func TestMessageHandler_PublishFailure(t *testing.T) {
	req := require.New(t)
	r := messageRouter(&recordingPublisher{err: errBroken}, nil)

	w := perform(r, http.MethodPost, "/message", `{"text":"hi","username":"Alice","createdAt":"2025-03-14T09:00:00Z","id":1}`)

	req.Equal(http.StatusInternalServerError, w.Code)
	req.JSONEq(`{"error":"Could not deliver message"}`, w.Body.String())
}

func TestMessageHandler_History(t *testing.T) {
	req := require.New(t)
	recorder := archive.NewRecorder(testDB(t), 1, 10, testLogger())
	r := messageRouter(&recordingPublisher{}, recorder)

	// Given three accepted messages
	for _, text := range []string{"one", "two", "three"} {
		body, err := json.Marshal(map[string]any{"text": text, "username": "Alice", "createdAt": "2025-03-14T09:00:00Z", "id": 7})
		req.NoError(err)
		req.Equal(http.StatusOK, perform(r, http.MethodPost, "/message", string(body)).Code)
	}
	recorder.Close()

	// When the second page of two is requested
	w := perform(r, http.MethodGet, "/channels/chat/messages?page=2&limit=2", "")

	// Then it holds the oldest-first remainder
	req.Equal(http.StatusOK, w.Code)
	var page PaginatedMessageResponse
	req.NoError(json.Unmarshal(w.Body.Bytes(), &page))
	req.Equal(PaginationMeta{TotalItems: 3, TotalPages: 2, CurrentPage: 2, PageSize: 2}, page.Meta)
	req.Len(page.Data, 1)
	req.Equal("three", page.Data[0].Text)
	req.Equal(7, page.Data[0].ID)
	req.True(page.Data[0].CreatedAt.Equal(time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)))

	w = perform(r, http.MethodGet, "/channels/room-1/messages", "")
	req.Equal(http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	req.NoError(err)
	req.JSONEq(`{"data":[],"meta":{"total_items":0,"total_pages":0,"current_page":1,"page_size":50}}`, string(body))
}

func TestMessageHandler_HistoryDisabled(t *testing.T) {
	r := messageRouter(&recordingPublisher{}, nil)

	w := perform(r, http.MethodGet, "/channels/chat/messages", "")

	require.Equal(t, http.StatusNotFound, w.Code)
}
