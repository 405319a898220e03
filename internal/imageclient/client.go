// ABOUTME: Generation client for an OpenAI-compatible image synthesis service
// ABOUTME: Turns prompts or source images into raw image bytes or typed failures

package imageclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/2389/imagegen/internal/failure"
	"github.com/2389/imagegen/internal/imageconv"
)

const (
	// DefaultBaseURL is the OpenAI API root.
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "dall-e-2"
	DefaultSize    = "1024x1024"
	DefaultTimeout = 2 * time.Minute

	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 64 << 20
	// maxVariationSide is the largest square side uploaded for variations.
	maxVariationSide = 1024
)

// Config holds the connection settings for the image service.
type Config struct {
	BaseURL      string
	APIKey       string
	Organization string
	Model        string
	Size         string
	Timeout      time.Duration
}

// Client calls the image service. It holds no state between calls and never
// retries.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its Timeout is left as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger used by the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger.With("component", "imageclient")
		}
	}
}

// New creates a Client, filling unset Config fields with defaults.
func New(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Size == "" {
		cfg.Size = DefaultSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: slog.Default().With("component", "imageclient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate asks the service for one image matching prompt.
func (c *Client) Generate(ctx context.Context, prompt string) ([]byte, error) {
	const op = "generate"

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, failure.Errorf(failure.InvalidInput, op, "prompt is empty")
	}

	body, err := json.Marshal(generationRequest{
		Model:          c.cfg.Model,
		Prompt:         prompt,
		N:              1,
		Size:           c.cfg.Size,
		ResponseFormat: "b64_json",
	})
	if err != nil {
		return nil, failure.New(failure.InvalidInput, op, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, failure.New(failure.InvalidInput, op, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	return c.exchange(ctx, op, req)
}

// Vary asks the service for one variation of source. Source may be PNG, JPEG,
// GIF or WEBP; it is uploaded as a square PNG.
func (c *Client) Vary(ctx context.Context, source []byte) ([]byte, error) {
	const op = "vary"

	if len(source) == 0 {
		return nil, failure.Errorf(failure.InvalidInput, op, "source image is empty")
	}
	square, err := imageconv.SquarePNG(source, maxVariationSide)
	if err != nil {
		return nil, failure.New(failure.InvalidInput, op, fmt.Errorf("source image: %w", err))
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "image.png")
	if err != nil {
		return nil, failure.New(failure.InvalidInput, op, err)
	}
	if _, err := part.Write(square); err != nil {
		return nil, failure.New(failure.InvalidInput, op, err)
	}
	fields := [][2]string{
		{"model", c.cfg.Model},
		{"n", "1"},
		{"size", c.cfg.Size},
		{"response_format", "b64_json"},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, failure.New(failure.InvalidInput, op, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, failure.New(failure.InvalidInput, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/images/variations", &buf)
	if err != nil {
		return nil, failure.New(failure.InvalidInput, op, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.exchange(ctx, op, req)
}

// exchange performs the single request/response round trip and extracts the
// first image of the payload.
func (c *Client) exchange(ctx context.Context, op string, req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if c.cfg.Organization != "" {
		req.Header.Set("OpenAI-Organization", c.cfg.Organization)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("image request failed", "op", op, "error", err)
		return nil, failure.New(failure.TransportFailure, op, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, failure.New(failure.TransportFailure, op, fmt.Errorf("read response: %w", err))
	}

	c.logger.Debug("image response",
		"op", op,
		"status", resp.StatusCode,
		"bytes", len(respBody),
		"duration", time.Since(start),
	)

	var parsed imagesResponse
	parseErr := json.Unmarshal(respBody, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := truncate(strings.TrimSpace(string(respBody)), 500)
		if parseErr == nil && parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return nil, failure.Errorf(failure.ServiceFailure, op, "status %d: %s", resp.StatusCode, msg)
	}
	if parseErr != nil {
		return nil, failure.Errorf(failure.DecodeFailure, op, "parse response (%d): %s", resp.StatusCode, truncate(string(respBody), 500))
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return nil, failure.Errorf(failure.ServiceFailure, op, "api error: %s", parsed.Error.Message)
	}
	if len(parsed.Data) == 0 {
		return nil, failure.Errorf(failure.DecodeFailure, op, "no image data returned")
	}

	first := parsed.Data[0]
	var raw []byte
	switch {
	case first.B64JSON != "":
		raw, err = decodeB64(first.B64JSON)
		if err != nil {
			return nil, failure.New(failure.DecodeFailure, op, err)
		}
	case strings.HasPrefix(first.URL, "data:"):
		raw, err = decodeB64(first.URL)
		if err != nil {
			return nil, failure.New(failure.DecodeFailure, op, err)
		}
	case first.URL != "":
		raw, err = c.download(ctx, op, first.URL)
		if err != nil {
			return nil, err
		}
	default:
		return nil, failure.Errorf(failure.DecodeFailure, op, "image entry has neither b64_json nor url")
	}

	if len(raw) == 0 {
		return nil, failure.Errorf(failure.DecodeFailure, op, "image payload is empty")
	}
	if imageconv.Sniff(raw) == "" {
		return nil, failure.Errorf(failure.DecodeFailure, op, "payload is not a recognised image (%s)", http.DetectContentType(raw))
	}
	return raw, nil
}

func (c *Client) download(ctx context.Context, op, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, failure.New(failure.DecodeFailure, op, fmt.Errorf("image url: %w", err))
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, failure.New(failure.TransportFailure, op, fmt.Errorf("download image url: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, failure.Errorf(failure.ServiceFailure, op, "download status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, failure.New(failure.TransportFailure, op, fmt.Errorf("read image url: %w", err))
	}
	return data, nil
}
