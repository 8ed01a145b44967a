package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// RoomState is what a participant learns when entering a room.
type RoomState struct {
	RoomID        string   `json:"roomId"`
	UserID        string   `json:"userId,omitempty"`
	Host          string   `json:"host,omitempty"`
	ExistingUsers []string `json:"existingUsers"`
	UserCount     int      `json:"userCount"`
	AllUsers      []string `json:"allUsers"`
}

type RoomInfo struct {
	HasPassword bool     `json:"hasPassword"`
	UserCount   int      `json:"userCount"`
	Users       []string `json:"users"`
}

// RoomsClient talks to the /rooms and /signaling/trigger endpoints.
type RoomsClient struct {
	base  *url.URL
	http  *http.Client
	token string
}

func NewRoomsClient(serverURL string, httpClient *http.Client) (*RoomsClient, error) {
	base, err := url.Parse(strings.TrimSuffix(serverURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", serverURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &RoomsClient{base: base, http: httpClient}, nil
}

// WithToken returns a copy that sends a bearer token on every request.
func (c *RoomsClient) WithToken(token string) *RoomsClient {
	cp := *c
	cp.token = token
	return &cp
}

func (c *RoomsClient) BaseURL() *url.URL {
	u := *c.base
	return &u
}

func (c *RoomsClient) Create(ctx context.Context, userID string, password *string) (*RoomState, error) {
	const op = "client.rooms.create"

	req := map[string]any{"userId": userID}
	if password != nil {
		req["password"] = *password
	}
	var resp RoomState
	if err := c.do(ctx, http.MethodPost, "/rooms/create", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	resp.UserID = userID
	resp.Host = userID
	if resp.ExistingUsers == nil {
		resp.ExistingUsers = []string{}
	}
	return &resp, nil
}

func (c *RoomsClient) Join(ctx context.Context, roomID, userID string, password *string) (*RoomState, error) {
	const op = "client.rooms.join"

	req := map[string]any{"roomId": roomID, "userId": userID}
	if password != nil {
		req["password"] = *password
	}
	var resp RoomState
	if err := c.do(ctx, http.MethodPost, "/rooms/join", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	resp.RoomID = roomID
	resp.UserID = userID
	return &resp, nil
}

// Leave returns the number of participants left in the room.
func (c *RoomsClient) Leave(ctx context.Context, roomID, userID string) (int, error) {
	const op = "client.rooms.leave"

	var resp struct {
		UserCount int `json:"userCount"`
	}
	req := map[string]any{"roomId": roomID, "userId": userID}
	if err := c.do(ctx, http.MethodPost, "/rooms/leave", nil, req, &resp); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return resp.UserCount, nil
}

func (c *RoomsClient) Info(ctx context.Context, roomID string) (*RoomInfo, error) {
	const op = "client.rooms.info"

	var resp RoomInfo
	query := url.Values{"roomId": {roomID}}
	if err := c.do(ctx, http.MethodGet, "/rooms/info", query, nil, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &resp, nil
}

// Trigger publishes one event on a room channel through the server.
func (c *RoomsClient) Trigger(ctx context.Context, channel, event string, data json.RawMessage) error {
	const op = "client.signaling.trigger"

	req := map[string]any{"channel": channel, "event": event, "data": data}
	if err := c.do(ctx, http.MethodPost, "/signaling/trigger", nil, req, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (c *RoomsClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.BaseURL()
	u.Path += path
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var failure struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &failure)
		return &APIError{Status: resp.StatusCode, Message: failure.Message}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
