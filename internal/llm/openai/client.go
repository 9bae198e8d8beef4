package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/catalog-extractor/internal/common"
	"github.com/joseph-ayodele/catalog-extractor/internal/llm"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Temperature    float32        `json:"temperature"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete implements llm.Invoker with a single user message.
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	body := chatRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
	}
	if req.JSONObject && c.cfg.JSONMode {
		body.ResponseFormat = map[string]any{"type": "json_object"}
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, _, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		c.logger.Error("llm.complete.http_error",
			"req_id", rid, "model", req.Model, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.complete.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("%w: decode %s response: %v", common.ErrTransport, c.cfg.Provider, err)
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("llm.complete.no_choices",
			"req_id", rid, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("%w: no choices in %s response", common.ErrTransport, c.cfg.Provider)
	}

	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	c.logger.Info("llm.complete.ok",
		"req_id", rid,
		"model", req.Model,
		"finish_reason", cc.Choices[0].FinishReason,
		"prompt_tokens", cc.Usage.PromptTokens,
		"completion_tokens", cc.Usage.CompletionTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}

// RegisterFromConfig registers an OpenAI and a Groq client for every provider
// that has an API key configured.
func RegisterFromConfig(r *llm.Router, cfg common.LLMConfig, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.OpenAIAPIKey != "" {
		r.Register("openai", NewClient(Config{
			Provider: "openai",
			APIKey:   cfg.OpenAIAPIKey,
			BaseURL:  cfg.OpenAIBaseURL,
			Timeout:  cfg.Timeout,
			JSONMode: true,
		}, logger))
	}
	if cfg.GroqAPIKey != "" {
		r.Register("groq", NewClient(Config{
			Provider: "groq",
			APIKey:   cfg.GroqAPIKey,
			BaseURL:  cfg.GroqBaseURL,
			Timeout:  cfg.Timeout,
			JSONMode: true,
		}, logger))
	}
	logger.Info("llm.providers.registered", "providers", r.Providers())
}
