// Package attendance is the client side of the attendance API: a thin HTTP
// client and a Tracker that keeps a live, locally projected view of today's
// record.
package attendance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cmlabs-hris/hrms-backend-go/internal/domain/attendance"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("attendance api: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("attendance api: %s: %s", e.Code, e.Message)
}

// IsConflict reports whether the server rejected a command for the current
// state.
func (e *APIError) IsConflict() bool {
	return e.StatusCode == http.StatusConflict
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

var commandPaths = map[attendance.Command]string{
	attendance.CommandCheckIn:    "/check-in",
	attendance.CommandCheckOut:   "/check-out",
	attendance.CommandStartLunch: "/lunch/start",
	attendance.CommandEndLunch:   "/lunch/end",
	attendance.CommandStartBreak: "/break/start",
	attendance.CommandEndBreak:   "/break/end",
}

// Client talks to /api/v1/attendance with a bearer token.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient creates a client for the API rooted at baseURL, for example
// "http://localhost:8080". A nil httpClient gets a 30s timeout.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/api/v1/attendance",
		token:   token,
		client:  httpClient,
	}
}

// MyStatus fetches today's record and the caller's profile.
func (c *Client) MyStatus(ctx context.Context) (attendance.MyStatusResponse, error) {
	var out attendance.MyStatusResponse
	err := c.do(ctx, http.MethodGet, "/my-status", nil, &out)
	return out, err
}

// Send issues a state-machine command. reason is only sent with
// start_break.
func (c *Client) Send(ctx context.Context, cmd attendance.Command, reason string) (attendance.AttendanceResponse, error) {
	path, ok := commandPaths[cmd]
	if !ok {
		return attendance.AttendanceResponse{}, attendance.ErrUnknownCommand
	}

	var body interface{}
	if cmd == attendance.CommandStartBreak {
		body = attendance.StartBreakRequest{Reason: reason}
	}

	var out attendance.AttendanceResponse
	err := c.do(ctx, http.MethodPost, path, body, &out)
	return out, err
}

// MyHistory lists the caller's recent records, newest first.
func (c *Client) MyHistory(ctx context.Context, limit int) ([]attendance.AttendanceResponse, error) {
	var out []attendance.AttendanceResponse
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/my-history?limit=%d", limit), nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("undecodable response: %v", err)}
	}

	if resp.StatusCode >= 300 || !env.Success {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: env.Message}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s %s data: %w", method, path, err)
	}
	return nil
}
