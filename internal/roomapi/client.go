// Package roomapi is the HTTP client for the room backend
package roomapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/navikt/myrooms/internal/config"
	"github.com/navikt/myrooms/internal/models"
)

// AccessCookieName is the cookie carrying the user's access token to the room backend
const AccessCookieName = "access"

// ErrUnexpectedStatus is returned when the room backend answers with a non-2xx status
var ErrUnexpectedStatus = errors.New("unexpected status from room API")

// Credentials are forwarded as-is to the room backend
type Credentials struct {
	AccessToken string
}

// CredentialsFromRequest picks the access cookie of an incoming request
func CredentialsFromRequest(r *http.Request) Credentials {
	cookie, err := r.Cookie(AccessCookieName)
	if err != nil {
		return Credentials{}
	}
	return Credentials{AccessToken: cookie.Value}
}

// RoomsResponse is the result of GetUserEnteredRoom
type RoomsResponse struct {
	StatusCode int
	Data       []models.RoomSummary
}

// EnterRoomRequest is the join-room form submitted from the modal
type EnterRoomRequest struct {
	RoomID   string `json:"-"`
	Password string `json:"password,omitempty"`
}

// Client handles interactions with the room API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new room API client
func NewClient(cfg config.RoomAPIConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// GetUserEnteredRoom fetches the rooms the current user has joined, in server order
func (c *Client) GetUserEnteredRoom(ctx context.Context, creds Credentials) (*RoomsResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/rooms/entered/", nil, creds)
	if err != nil {
		return nil, err
	}

	body, status, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var rooms []models.RoomSummary
	if err := json.Unmarshal(body, &rooms); err != nil {
		return nil, fmt.Errorf("failed to parse rooms response: %w", err)
	}
	if rooms == nil {
		rooms = []models.RoomSummary{}
	}

	return &RoomsResponse{
		StatusCode: status,
		Data:       rooms,
	}, nil
}

// EnterRoom joins the room named in the request
func (c *Client) EnterRoom(ctx context.Context, creds Credentials, enter EnterRoomRequest) error {
	if enter.RoomID == "" {
		return errors.New("room id is required")
	}

	payload, err := json.Marshal(enter)
	if err != nil {
		return fmt.Errorf("failed to marshal enter request: %w", err)
	}

	path := fmt.Sprintf("/rooms/%s/enter/", url.PathEscape(enter.RoomID))
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(payload), creds)
	if err != nil {
		return err
	}

	_, _, err = c.do(req)
	return err
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, creds Credentials) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if creds.AccessToken != "" {
		req.AddCookie(&http.Cookie{Name: AccessCookieName, Value: creds.AccessToken})
	}

	return req, nil
}

// do sends the request and returns the body of a 2xx response
func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return body, resp.StatusCode, nil
}

// StatusError carries a non-2xx answer from the room API
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("room API error (status %d): %s", e.StatusCode, e.Body)
}

// Unwrap lets callers match with errors.Is(err, ErrUnexpectedStatus)
func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}
