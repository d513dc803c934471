package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"

	"storybook/internal/services"
)

const defaultTimeout = 60 * time.Second

// Config captures the runtime settings required to talk to the Whisper
// transcription sidecar.
type Config struct {
	BaseURL        string
	Model          string
	Language       string
	TimeoutSeconds int
}

// Transcription is one recognized utterance with the model's confidence.
type Transcription struct {
	Text       string
	Confidence float64
}

// Client transcribes short audio clips through the Whisper HTTP sidecar.
type Client struct {
	cfg        Config
	httpClient *http.Client
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

// NewClient constructs a Whisper client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://127.0.0.1:8190"
	}
	if cfg.Model == "" {
		cfg.Model = "medium"
	}
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Healthy reports whether the transcription sidecar answers its health
// endpoint.
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

type transcribeResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Transcribe uploads an audio clip and returns the recognized text. The
// language is a bare ISO 639-1 code; callers normalize BCP 47 tags first.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename, language string) (Transcription, error) {
	if len(audio) == 0 {
		return Transcription{}, services.Wrap(services.ErrConversion, "stt", "transcribe",
			"empty audio upload", nil)
	}
	if filename == "" {
		filename = "clip.webm"
	}
	if language == "" {
		language = c.cfg.Language
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("audio", filename)
	if err != nil {
		return Transcription{}, fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return Transcription{}, fmt.Errorf("write multipart body: %w", err)
	}
	writer.WriteField("language", language)
	writer.WriteField("model", c.cfg.Model)
	if err := writer.Close(); err != nil {
		return Transcription{}, fmt.Errorf("finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/transcribe", &body)
	if err != nil {
		return Transcription{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Transcription{}, classify(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Transcription{}, fmt.Errorf("read transcription: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Transcription{}, services.Wrap(services.ErrConversion, "stt", "transcribe",
			fmt.Sprintf("whisper: http %d: %s", resp.StatusCode, strings.TrimSpace(string(data))), nil)
	}

	var parsed transcribeResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Transcription{}, fmt.Errorf("decode transcription: %w", err)
	}

	result := Transcription{
		Text:       strings.TrimSpace(parsed.Text),
		Confidence: clampConfidence(parsed.Confidence),
	}
	return result, nil
}

func clampConfidence(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func classify(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, "stt", "transcribe", "", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return services.Wrap(services.ErrTimeout, "stt", "transcribe", "", err)
	case errors.As(err, &netErr):
		return services.Wrap(services.ErrUnavailable, "stt", "transcribe", "", err)
	default:
		return services.Wrap(services.ErrConversion, "stt", "transcribe", "", err)
	}
}
