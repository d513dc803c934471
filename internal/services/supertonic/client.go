package supertonic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"storybook/internal/logging"
	"storybook/internal/run"
	"storybook/internal/services"
)

const defaultTimeout = 120 * time.Second

// Config captures the runtime settings required to talk to the Supertonic
// synthesis sidecar.
type Config struct {
	BaseURL        string
	Voice          string
	Language       string
	Speed          float64
	TimeoutSeconds int
}

// Client synthesizes page narration through the Supertonic HTTP sidecar.
// Safe for concurrent use; the sidecar batches requests on its side.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
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

// NewClient constructs a Supertonic client using the supplied configuration.
func NewClient(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://127.0.0.1:8189"
	}
	if cfg.Voice == "" {
		cfg.Voice = "M2"
	}
	if cfg.Language == "" {
		cfg.Language = "ko"
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1.05
	}
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger(logger, "supertonic"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Healthy reports whether the synthesis sidecar answers its health endpoint.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type synthesizeRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice"`
	Lang  string  `json:"lang"`
	Speed float64 `json:"speed"`
}

// Synthesize implements pipeline.SpeechSynthesizer: render the narration to
// WAV and write it to destDir under the page's artifact name.
func (c *Client) Synthesize(ctx context.Context, text string, page int, destDir string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", services.Wrap(services.ErrConversion, "audio", "synthesize",
			fmt.Sprintf("page %d has no narration text", page), nil)
	}

	body, err := json.Marshal(synthesizeRequest{
		Text:  text,
		Voice: c.cfg.Voice,
		Lang:  c.cfg.Language,
		Speed: c.cfg.Speed,
	})
	if err != nil {
		return "", fmt.Errorf("marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/tts", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", services.Wrap(services.ErrConversion, "audio", "synthesize",
			fmt.Sprintf("supertonic: http %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))), nil)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read tts body: %w", err)
	}
	if len(wav) == 0 {
		return "", services.Wrap(services.ErrMissingAsset, "audio", "synthesize",
			fmt.Sprintf("empty audio for page %d", page), nil)
	}

	filename := run.AudioFilename(page)
	if err := os.WriteFile(filepath.Join(destDir, filename), wav, 0o644); err != nil {
		return "", services.Wrap(services.ErrConversion, "audio", "write", "", err)
	}
	c.logger.Debug("synthesized narration",
		logging.Int("page", page),
		logging.String("voice", c.cfg.Voice),
		logging.Int("bytes", len(wav)),
	)
	return filename, nil
}

func classify(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, "audio", "synthesize", "", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return services.Wrap(services.ErrTimeout, "audio", "synthesize", "", err)
	case errors.As(err, &netErr):
		return services.Wrap(services.ErrUnavailable, "audio", "synthesize", "", err)
	default:
		return services.Wrap(services.ErrConversion, "audio", "synthesize", "", err)
	}
}
