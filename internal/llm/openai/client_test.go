package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/catalog-extractor/internal/common"
	"github.com/joseph-ayodele/catalog-extractor/internal/llm"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestCompleteSendsChatRequest(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  {\"hscode\":\"33049900\"}  "},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{Provider: "groq", APIKey: "secret", BaseURL: srv.URL + "/v1/", JSONMode: true}, quietLogger())
	out, err := c.Complete(context.Background(), llm.Request{
		Provider: "groq", Model: "deepseek-r1-distill-llama-70b", Temperature: 0.1,
		Prompt: "classify", JSONObject: true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"hscode":"33049900"}`, out)
	assert.Equal(t, "deepseek-r1-distill-llama-70b", got.Model)
	assert.InDelta(t, 0.1, got.Temperature, 1e-6)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "classify", got.Messages[0].Content)
	assert.Equal(t, "json_object", got.ResponseFormat["type"])
}

func TestCompleteOmitsResponseFormatForLists(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"[]"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, JSONMode: true}, quietLogger())
	_, err := c.Complete(context.Background(), llm.Request{Model: "m", Prompt: "p"})
	require.NoError(t, err)
	assert.NotContains(t, raw, "response_format")
}

func TestCompleteTransportErrors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
		},
		"no choices": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		},
		"garbage": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			c := NewClient(Config{BaseURL: srv.URL}, quietLogger())
			_, err := c.Complete(context.Background(), llm.Request{Model: "m", Prompt: "p"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrTransport))
		})
	}
}

func TestRegisterFromConfig(t *testing.T) {
	r := llm.NewRouter(quietLogger())
	RegisterFromConfig(r, common.LLMConfig{GroqAPIKey: "k"}, quietLogger())
	assert.True(t, r.Has("groq"))
	assert.True(t, r.Has("GROQ"))
	assert.False(t, r.Has("openai"))
}
