// Package shape detects which of the three extraction output layouts a model
// response uses and gives the rest of the pipeline layout-independent access to
// its variants.
package shape

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/joseph-ayodele/catalog-extractor/internal/common"
)

// Kind tags the physical layout of an extracted record.
type Kind string

const (
	// FlatList is a bare list of variant objects.
	FlatList Kind = "flat-list"
	// FlatObject is an object with marketing fields and a Subtypes list.
	FlatObject Kind = "flat-object"
	// Supplement is an object with a Presentations list.
	Supplement Kind = "supplement"
)

// Well-known keys.
const (
	SubtypesKey      = "Subtypes"
	PresentationsKey = "Presentations"
	CodeKey          = "HSCode"
)

// ErrUnrecognizedShape is returned (wrapped) when no layout matches.
var ErrUnrecognizedShape = common.ErrShape

// Detect inspects a decoded JSON value. Priority: bare list, then an object
// holding Subtypes, then an object holding Presentations. A nested key that is
// null counts as an empty variant list.
func Detect(v any) (Kind, error) {
	switch t := v.(type) {
	case []any:
		if err := objectList(t, "top-level list"); err != nil {
			return "", err
		}
		return FlatList, nil
	case map[string]any:
		if nested, ok := t[SubtypesKey]; ok {
			if nested == nil {
				return FlatObject, nil
			}
			if err := objectList(nested, SubtypesKey); err != nil {
				return "", err
			}
			return FlatObject, nil
		}
		if nested, ok := t[PresentationsKey]; ok {
			if nested == nil {
				return Supplement, nil
			}
			if err := objectList(nested, PresentationsKey); err != nil {
				return "", err
			}
			return Supplement, nil
		}
		return "", fmt.Errorf("%w: object has neither %s nor %s", ErrUnrecognizedShape, SubtypesKey, PresentationsKey)
	case nil:
		return "", fmt.Errorf("%w: empty response", ErrUnrecognizedShape)
	default:
		return "", fmt.Errorf("%w: top-level %T", ErrUnrecognizedShape, v)
	}
}

func objectList(v any, what string) error {
	list, ok := v.([]any)
	if !ok {
		return fmt.Errorf("%w: %s is %T, want a list", ErrUnrecognizedShape, what, v)
	}
	for i, el := range list {
		if _, ok := el.(map[string]any); !ok {
			return fmt.Errorf("%w: %s[%d] is %T, want an object", ErrUnrecognizedShape, what, i, el)
		}
	}
	return nil
}

// Record is an extracted record tagged with its detected layout.
type Record struct {
	kind  Kind
	value any
}

// New wraps an already decoded JSON value.
func New(v any) (*Record, error) {
	kind, err := Detect(v)
	if err != nil {
		return nil, err
	}
	if root, ok := v.(map[string]any); ok {
		for _, key := range []string{SubtypesKey, PresentationsKey} {
			if nested, present := root[key]; present && nested == nil {
				root[key] = []any{}
			}
		}
	}
	return &Record{kind: kind, value: v}, nil
}

// Parse decodes JSON (numbers kept as json.Number) and detects its layout.
func Parse(data []byte) (*Record, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return New(v)
}

// Decode unmarshals a single JSON document keeping numbers as json.Number.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrParse, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after JSON value", common.ErrParse)
	}
	return v, nil
}

func (r *Record) Kind() Kind { return r.kind }

// Value returns the underlying decoded value. Callers must not modify it; use SetCode.
func (r *Record) Value() any { return r.value }

// Root returns the top-level object for the object layouts and nil for FlatList.
func (r *Record) Root() map[string]any {
	if m, ok := r.value.(map[string]any); ok {
		return m
	}
	return nil
}

func (r *Record) list() []any {
	switch r.kind {
	case FlatList:
		l, _ := r.value.([]any)
		return l
	case FlatObject:
		l, _ := r.Root()[SubtypesKey].([]any)
		return l
	case Supplement:
		l, _ := r.Root()[PresentationsKey].([]any)
		return l
	}
	return nil
}

// Len is the number of leaf variants.
func (r *Record) Len() int { return len(r.list()) }

// Variants lists the leaf variant objects in order. The maps are live views.
func (r *Record) Variants() []map[string]any {
	l := r.list()
	out := make([]map[string]any, 0, len(l))
	for _, el := range l {
		out = append(out, el.(map[string]any))
	}
	return out
}

func (r *Record) variant(i int) (map[string]any, error) {
	l := r.list()
	if i < 0 || i >= len(l) {
		return nil, fmt.Errorf("variant index %d out of range [0,%d)", i, len(l))
	}
	return l[i].(map[string]any), nil
}

// SetCode places a classification code on variant i, replacing any previous one.
func (r *Record) SetCode(i int, code string) error {
	v, err := r.variant(i)
	if err != nil {
		return err
	}
	v[CodeKey] = code
	return nil
}

// SetCodeAll places the same code on every variant.
func (r *Record) SetCodeAll(code string) {
	for _, v := range r.Variants() {
		v[CodeKey] = code
	}
}

// Code returns the code of variant i.
func (r *Record) Code(i int) (string, bool) {
	v, err := r.variant(i)
	if err != nil {
		return "", false
	}
	return VariantCode(v)
}

// VariantCode reads the code from one variant object.
func VariantCode(v map[string]any) (string, bool) {
	s, ok := v[CodeKey].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Codes returns each variant's code ("" when unset).
func (r *Record) Codes() []string {
	vs := r.Variants()
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i], _ = VariantCode(v)
	}
	return out
}

// ClearCodes removes the code from every variant.
func (r *Record) ClearCodes() {
	for _, v := range r.Variants() {
		delete(v, CodeKey)
	}
}

// Clone deep-copies the record.
func (r *Record) Clone() *Record {
	return &Record{kind: r.kind, value: deepCopy(r.value)}
}

func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.value)
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, el := range t {
			m[k] = deepCopy(el)
		}
		return m
	case []any:
		l := make([]any, len(t))
		for i, el := range t {
			l[i] = deepCopy(el)
		}
		return l
	default:
		return v
	}
}
