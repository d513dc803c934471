package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"storybook/internal/api"
)

// Client talks to a running storybookd API server. Used by the CLI
// subcommands; the daemon itself never imports this package.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New constructs an API client for the given base URL.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateRun submits a new run and returns its identifier.
func (c *Client) CreateRun(ctx context.Context, req api.CreateRunRequest) (api.CreateRunResponse, error) {
	var out api.CreateRunResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/runs", req, &out)
	return out, err
}

// RunState fetches the observable state of a run.
func (c *Client) RunState(ctx context.Context, runID string) (api.RunStateResponse, error) {
	var out api.RunStateResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/runs/"+runID, nil, &out)
	return out, err
}

// ListRuns fetches the retained-run listing, newest first.
func (c *Client) ListRuns(ctx context.Context) (api.RunListResponse, error) {
	var out api.RunListResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/runs", nil, &out)
	return out, err
}

// Status fetches daemon runtime information.
func (c *Client) Status(ctx context.Context) (api.StatusResponse, error) {
	var out api.StatusResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/status", nil, &out)
	return out, err
}

// WatchEvents streams run progress events, invoking fn for every update
// until the stream ends or ctx is cancelled. Keepalive frames are skipped.
func (c *Client) WatchEvents(ctx context.Context, runID string, fn func(api.RunEvent)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/runs/"+runID+"/events", nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	req.Header.Set("Accept", "text/event-stream")

	// The stream outlives the regular request timeout.
	streamClient := &http.Client{}
	resp, err := streamClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	current := ""
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if current != "update" {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")
			var evt api.RunEvent
			if err := json.Unmarshal([]byte(payload), &evt); err != nil {
				return fmt.Errorf("decode event: %w", err)
			}
			fn(evt)
		case line == "":
			if current == "done" {
				return nil
			}
			current = ""
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return ctx.Err()
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("storybookd unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		return fmt.Errorf("%s (http %d)", payload.Error, resp.StatusCode)
	}
	return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
}
