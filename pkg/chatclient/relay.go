package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// RelayClient talks to the backend relay over HTTP.
// Response bodies are drained and ignored; only the status code matters.
type RelayClient struct {
	baseURL string
	http    *http.Client
}

// NewRelayClient returns a client for the relay at baseURL. A nil httpClient
// uses a client without timeout.
func NewRelayClient(baseURL string, httpClient *http.Client) *RelayClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &RelayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// RegisterPresence marks username as online: PUT /users/{username}.
func (c *RelayClient) RegisterPresence(ctx context.Context, username string) error {
	return c.do(ctx, "register presence", http.MethodPut, "/users/"+url.PathEscape(username), nil)
}

// DeregisterPresence removes username from the online set: DELETE /users/{username}.
func (c *RelayClient) DeregisterPresence(ctx context.Context, username string) error {
	return c.do(ctx, "deregister presence", http.MethodDelete, "/users/"+url.PathEscape(username), nil)
}

// SubmitMessage posts msg for rebroadcast. The default channel uses the
// historical POST /message route, any other channel its scoped route.
func (c *RelayClient) SubmitMessage(ctx context.Context, channel string, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	path := "/message"
	if channel != "" && channel != DefaultChannel {
		path = "/channels/" + url.PathEscape(channel) + "/message"
	}
	return c.do(ctx, "submit message", http.MethodPost, path, body)
}

func (c *RelayClient) do(ctx context.Context, op, method, path string, body []byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &NetworkError{Op: op, Status: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}
	return nil
}
