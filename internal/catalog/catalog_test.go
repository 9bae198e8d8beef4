package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/catalog-extractor/constants"
	"github.com/joseph-ayodele/catalog-extractor/internal/shape"
)

var classificationInputs = []string{"product_name", "description", "brand", "product_type", "ingredients", "how_to_use"}

func TestDefaultCoversEveryCategory(t *testing.T) {
	r := Default()
	for _, name := range constants.AsStringSlice() {
		e, ok := r.Lookup(constants.Category(name))
		require.True(t, ok, name)
		assert.NotEmpty(t, e.TemplateID)
		assert.NotEmpty(t, e.VariantFields)
		for _, in := range classificationInputs {
			assert.Contains(t, e.Classification, in, "%s mapping misses %s", name, in)
		}
	}
	assert.Len(t, r.Categories(), len(constants.AsStringSlice()))
}

func TestExpectedShapes(t *testing.T) {
	r := Default()
	want := map[constants.Category]shape.Kind{
		constants.Cosmetics:   shape.FlatObject,
		constants.Fragrance:   shape.FlatObject,
		constants.Subtype:     shape.FlatList,
		constants.Supplements: shape.Supplement,
	}
	for c, k := range want {
		e, _ := r.Lookup(c)
		assert.Equal(t, k, e.Shape, c)
	}
}

func TestRegisterReplaces(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup(constants.Cosmetics)
	assert.False(t, ok)

	r.Register(Entry{Category: constants.Cosmetics, TemplateID: "v1"})
	r.Register(Entry{Category: constants.Cosmetics, TemplateID: "v2"})
	e, ok := r.Lookup(constants.Cosmetics)
	require.True(t, ok)
	assert.Equal(t, "v2", e.TemplateID)
}

func TestRequiredCount(t *testing.T) {
	e := Entry{RootFields: []Field{{"a", KindString}}, VariantFields: []Field{{"b", KindNumber}, {"c", KindArray}}}
	assert.Equal(t, 1, e.RequiredCount(0))
	assert.Equal(t, 7, e.RequiredCount(3))
}
