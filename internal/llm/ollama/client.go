package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/joseph-ayodele/invoice-organizer/internal/llm"
	"github.com/ollama/ollama/api"
)

// Config for a local Ollama server.
type Config struct {
	Host        string // if empty, OLLAMA_HOST or the default local address
	Model       string // e.g., "llama3.1"
	Temperature float32
}

type Client struct {
	cfg    Config
	api    *api.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Model == "" {
		cfg.Model = "llama3.1"
	}
	if logger == nil {
		logger = slog.Default()
	}

	var (
		client *api.Client
		err    error
	)
	if cfg.Host == "" {
		client, err = api.ClientFromEnvironment()
	} else {
		var base *url.URL
		base, err = url.Parse(cfg.Host)
		if err == nil {
			client = api.NewClient(base, http.DefaultClient)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	return &Client{cfg: cfg, api: client, logger: logger}, nil
}

func (c *Client) Name() string  { return "ollama" }
func (c *Client) Model() string { return c.cfg.Model }

// Complete implements llm.Completer using /api/chat with format=json.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	stream := false
	chat := &api.ChatRequest{
		Model: c.cfg.Model,
		Messages: []api.Message{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Stream:  &stream,
		Format:  json.RawMessage(`"json"`),
		Options: map[string]any{"temperature": c.cfg.Temperature},
	}

	var out strings.Builder
	err := c.api.Chat(ctx, chat, func(r api.ChatResponse) error {
		out.WriteString(r.Message.Content)
		return nil
	})
	if err != nil {
		var se api.StatusError
		if errors.As(err, &se) {
			return "", fmt.Errorf("ollama: %w", &llm.StatusError{Status: se.StatusCode, Body: se.ErrorMessage})
		}
		return "", fmt.Errorf("ollama: %w", err)
	}
	return strings.TrimSpace(out.String()), nil
}
