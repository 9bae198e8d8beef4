package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/joseph-ayodele/catalog-extractor/internal/common"
)

// Router dispatches requests to the Invoker registered for req.Provider.
type Router struct {
	mu      sync.RWMutex
	clients map[string]Invoker
	logger  *slog.Logger
}

func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{clients: make(map[string]Invoker), logger: logger}
}

// Register binds a provider id (case-insensitive) to an invoker.
func (r *Router) Register(provider string, inv Invoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[strings.ToLower(provider)] = inv
}

// Has reports whether a provider is registered.
func (r *Router) Has(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[strings.ToLower(provider)]
	return ok
}

// Providers lists registered provider ids.
func (r *Router) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.clients))
	for p := range r.clients {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (r *Router) Complete(ctx context.Context, req Request) (string, error) {
	r.mu.RLock()
	inv, ok := r.clients[strings.ToLower(req.Provider)]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: provider %q is not configured", common.ErrTransport, req.Provider)
	}

	start := time.Now()
	r.logger.Debug("llm.invoke.start",
		"provider", req.Provider,
		"model", req.Model,
		"temperature", req.Temperature,
		"prompt_len", len(req.Prompt),
	)
	out, err := inv.Complete(ctx, req)
	if err != nil {
		r.logger.Error("llm.invoke.error",
			"provider", req.Provider, "model", req.Model, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}
	r.logger.Info("llm.invoke.ok",
		"provider", req.Provider, "model", req.Model,
		"response_len", len(out),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}
