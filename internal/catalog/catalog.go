// Package catalog holds the per-category settings the pipeline dispatches on:
// extraction template, expected layout, required fields and the classifier
// field mapping. Adding a category is adding one Entry.
package catalog

import (
	"sort"
	"sync"

	"github.com/joseph-ayodele/catalog-extractor/constants"
	"github.com/joseph-ayodele/catalog-extractor/internal/shape"
)

// FieldKind is the JSON kind a required field must have.
type FieldKind string

const (
	KindString         FieldKind = "string"
	KindNumber         FieldKind = "number"
	KindArray          FieldKind = "array"
	KindStringOrNumber FieldKind = "string-or-number"
)

// Field is one required field and its expected kind.
type Field struct {
	Name string
	Kind FieldKind
}

// Template ids shared by all categories.
const (
	ClassificationTemplateID = "hscode"
	JudgeTemplateID          = "content_judge"
)

// Entry describes one category.
type Entry struct {
	Category      constants.Category
	TemplateID    string
	Shape         shape.Kind
	RootFields    []Field
	VariantFields []Field
	// Classification maps classifier inputs to record locations.
	Classification shape.FieldMapping
}

// RequiredCount is the number of required fields for a record with n variants.
func (e Entry) RequiredCount(n int) int {
	return len(e.RootFields) + n*len(e.VariantFields)
}

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[constants.Category]Entry
}

func NewRegistry(entries ...Entry) *Registry {
	r := &Registry{entries: make(map[constants.Category]Entry, len(entries))}
	for _, e := range entries {
		r.Register(e)
	}
	return r
}

// Register adds or replaces the entry for e.Category.
func (r *Registry) Register(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.Category] = e
}

func (r *Registry) Lookup(c constants.Category) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[c]
	return e, ok
}

// Categories lists the registered categories, sorted.
func (r *Registry) Categories() []constants.Category {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]constants.Category, 0, len(r.entries))
	for c := range r.entries {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Default returns the registry with the built-in categories.
func Default() *Registry {
	return NewRegistry(cosmetics(), fragrance(), subtype(), supplements())
}
