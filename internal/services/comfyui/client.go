package comfyui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storybook/internal/services"
)

const (
	defaultTimeout      = 300 * time.Second
	defaultPollInterval = 2 * time.Second
	healthTimeout       = 2 * time.Second
)

// Config captures the runtime settings required to talk to ComfyUI.
type Config struct {
	BaseURL        string
	WorkflowPath   string
	TimeoutSeconds int
	PollSeconds    int
}

// Client wraps the ComfyUI HTTP API: queue a workflow, poll its history,
// download the rendered image, and free GPU memory between runs.
type Client struct {
	baseURL    string
	httpClient *http.Client
	poll       time.Duration
	timeout    time.Duration
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithPollInterval overrides how often history is polled.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.poll = interval
		}
	}
}

// NewClient constructs a ComfyUI client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	poll := defaultPollInterval
	if cfg.PollSeconds > 0 {
		poll = time.Duration(cfg.PollSeconds) * time.Second
	}
	client := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		httpClient: &http.Client{},
		poll:       poll,
		timeout:    timeout,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.baseURL == "" {
		client.baseURL = "http://127.0.0.1:8188"
	}
	return client
}

// Healthy reports whether ComfyUI answers its system stats endpoint.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/system_stats", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// QueuePrompt submits an API-format workflow and returns the prompt ID.
func (c *Client) QueuePrompt(ctx context.Context, workflow map[string]any) (string, error) {
	body, err := json.Marshal(map[string]any{"prompt": workflow})
	if err != nil {
		return "", fmt.Errorf("marshal workflow: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var parsed struct {
		PromptID string `json:"prompt_id"`
	}
	if err := c.doJSON(req, &parsed); err != nil {
		return "", classify("queue", err)
	}
	if parsed.PromptID == "" {
		return "", services.Wrap(services.ErrGeneration, "images", "queue",
			"comfyui returned no prompt id", nil)
	}
	return parsed.PromptID, nil
}

// historyEntry mirrors the per-prompt slice of the /history response.
type historyEntry struct {
	Status struct {
		Completed bool `json:"completed"`
	} `json:"status"`
	Outputs map[string]struct {
		Images []imageRef `json:"images"`
	} `json:"outputs"`
}

type imageRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// History fetches the execution history for a prompt. The second return is
// false while the prompt has not completed yet.
func (c *Client) History(ctx context.Context, promptID string) (historyEntry, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/history/"+url.PathEscape(promptID), nil)
	if err != nil {
		return historyEntry{}, false, err
	}

	var parsed map[string]historyEntry
	if err := c.doJSON(req, &parsed); err != nil {
		return historyEntry{}, false, classify("history", err)
	}
	entry, ok := parsed[promptID]
	if !ok || !entry.Status.Completed {
		return historyEntry{}, false, nil
	}
	return entry, true, nil
}

// WaitForCompletion polls history until the prompt completes or the render
// timeout elapses.
func (c *Client) WaitForCompletion(ctx context.Context, promptID string) (historyEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		entry, done, err := c.History(ctx, promptID)
		if err != nil {
			return historyEntry{}, err
		}
		if done {
			return entry, nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return historyEntry{}, services.Wrap(services.ErrTimeout, "images", "wait",
					fmt.Sprintf("prompt %s did not complete within %s", promptID, c.timeout), ctx.Err())
			}
			return historyEntry{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// DownloadImage fetches a rendered image from the ComfyUI output folder.
func (c *Client) DownloadImage(ctx context.Context, ref imageRef) ([]byte, error) {
	query := url.Values{}
	query.Set("filename", ref.Filename)
	query.Set("subfolder", ref.Subfolder)
	folderType := ref.Type
	if folderType == "" {
		folderType = "output"
	}
	query.Set("type", folderType)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/view?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify("download", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classify("download", &httpStatusError{StatusCode: resp.StatusCode})
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if len(data) == 0 {
		return nil, services.Wrap(services.ErrMissingAsset, "images", "download",
			"empty image body for "+ref.Filename, nil)
	}
	return data, nil
}

// Free asks ComfyUI to unload models and free GPU memory. Best effort.
func (c *Client) Free(ctx context.Context) error {
	body := []byte(`{"unload_models":true,"free_memory":true}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/free", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify("free", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return classify("free", &httpStatusError{StatusCode: resp.StatusCode})
	}
	return nil
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &httpStatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("comfyui: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

func classify(operation string, err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, "images", operation, "", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return services.Wrap(services.ErrTimeout, "images", operation, "", err)
	case errors.As(err, &netErr):
		return services.Wrap(services.ErrUnavailable, "images", operation, "", err)
	default:
		return services.Wrap(services.ErrGeneration, "images", operation, "", err)
	}
}
