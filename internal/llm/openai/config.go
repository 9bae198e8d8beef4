package openai

import (
	"log/slog"
	"net/http"
	"time"
)

// Config for an OpenAI-compatible chat completions backend.
type Config struct {
	Provider string        // provider id the client is registered under
	APIKey   string        // bearer token
	BaseURL  string        // e.g. https://api.openai.com/v1 or https://api.groq.com/openai/v1
	Timeout  time.Duration // http client timeout
	// JSONMode sends response_format=json_object when a request asks for an object.
	JSONMode bool
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.With("provider", cfg.Provider),
	}
}
