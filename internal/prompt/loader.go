// Package prompt resolves and renders the model prompt templates.
package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/catalog-extractor/constants"
	"github.com/joseph-ayodele/catalog-extractor/internal/catalog"
	"github.com/joseph-ayodele/catalog-extractor/internal/common"
)

// Placeholder is the single substitution point every template must contain.
const Placeholder = "{text}"

// Template is a resolved template.
type Template struct {
	ID   string
	Text string
}

// Loader maps categories to templates through the registry and a Store.
type Loader struct {
	store    Store
	registry *catalog.Registry
	logger   *slog.Logger
}

func NewLoader(store Store, registry *catalog.Registry, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{store: store, registry: registry, logger: logger}
}

// Load resolves the extraction template for a category.
func (l *Loader) Load(ctx context.Context, category constants.Category) (Template, error) {
	entry, ok := l.registry.Lookup(category)
	if !ok {
		return Template{}, common.ConfigError("unknown category %q", category)
	}
	return l.LoadID(ctx, entry.TemplateID)
}

// LoadID resolves a template by id and checks its placeholder.
func (l *Loader) LoadID(ctx context.Context, id string) (Template, error) {
	text, err := l.store.Lookup(ctx, id)
	if err != nil {
		l.logger.Error("prompt.lookup.failed", "template_id", id, "error", err)
		return Template{}, err
	}
	t := Template{ID: id, Text: text}
	if err := t.check(); err != nil {
		l.logger.Error("prompt.template.invalid", "template_id", id, "error", err)
		return Template{}, err
	}
	l.logger.Debug("prompt.lookup.ok", "template_id", id, "bytes", len(text))
	return t, nil
}

func (t Template) check() error {
	if n := strings.Count(t.Text, Placeholder); n != 1 {
		return common.NewAppError(common.CodeTemplate,
			fmt.Sprintf("template %q has %d %s placeholders, want exactly 1", t.ID, n, Placeholder),
			common.ErrValidation)
	}
	return nil
}

// Render substitutes text into the template's placeholder.
func (t Template) Render(text string) (string, error) {
	if err := t.check(); err != nil {
		return "", err
	}
	return strings.Replace(t.Text, Placeholder, text, 1), nil
}
