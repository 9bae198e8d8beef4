package shape

import (
	"fmt"
	"strings"
)

// FieldRef names where a classification input is read from.
type FieldRef struct {
	Key string
	// FromVariant reads Key from the first variant instead of the root object.
	FromVariant bool
}

// FromRoot references a root-level key.
func FromRoot(key string) FieldRef { return FieldRef{Key: key} }

// FromVariant references a key on the first variant.
func FromVariant(key string) FieldRef { return FieldRef{Key: key, FromVariant: true} }

// FieldMapping maps each classification input name to candidate locations,
// tried in order until one yields a non-empty value.
type FieldMapping map[string][]FieldRef

// ClassificationFields derives the small field map sent to the classifier.
// Every mapped name is present in the result, empty when nothing matched.
// FlatList records have no root object, so root references read the first variant.
func (r *Record) ClassificationFields(mapping FieldMapping) map[string]string {
	var first map[string]any
	if vs := r.Variants(); len(vs) > 0 {
		first = vs[0]
	}
	root := r.Root()
	if root == nil {
		root = first
	}

	out := make(map[string]string, len(mapping))
	for name, refs := range mapping {
		out[name] = ""
		for _, ref := range refs {
			src := root
			if ref.FromVariant {
				src = first
			}
			if src == nil {
				continue
			}
			if s := Text(src[ref.Key]); s != "" {
				out[name] = s
				break
			}
		}
	}
	return out
}

// Text renders a JSON leaf as plain text; lists are joined with ", ".
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, el := range t {
			if s := Text(el); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
