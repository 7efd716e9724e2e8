package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/invoice-organizer/internal/llm"
	"google.golang.org/genai"
)

// Config for the Gemini client.
type Config struct {
	APIKey      string // if empty, genai reads GEMINI_API_KEY / GOOGLE_API_KEY
	Model       string // e.g., "gemini-2.5-flash"
	Temperature float32
}

type Client struct {
	cfg    Config
	models *genai.Models
	logger *slog.Logger
}

func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{cfg: cfg, models: client.Models, logger: logger}, nil
}

func (c *Client) Name() string  { return "gemini" }
func (c *Client) Model() string { return c.cfg.Model }

// Complete implements llm.Completer with a JSON response MIME type.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
		Temperature:       genai.Ptr(c.cfg.Temperature),
		ResponseMIMEType:  "application/json",
	}

	resp, err := c.models.GenerateContent(ctx, c.cfg.Model, genai.Text(req.User), cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("gemini: %w", &llm.StatusError{Status: apiErr.Code, Body: apiErr.Message})
		}
		return "", fmt.Errorf("gemini: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		c.logger.Warn("llm.gemini.empty_response", "model", c.cfg.Model)
		return "", errors.New("gemini: empty response")
	}
	return text, nil
}
