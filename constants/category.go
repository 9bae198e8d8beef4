package constants

import (
	"strings"
)

type Category string

const (
	Cosmetics   Category = "cosmetics"
	Fragrance   Category = "fragrance"
	Subtype     Category = "subtype"
	Supplements Category = "supplements"
)

var allCategories = []Category{
	Cosmetics,
	Fragrance,
	Subtype,
	Supplements,
}

// RequiresQualifier reports whether jobs of this category must name their base product.
func (c Category) RequiresQualifier() bool {
	return c == Subtype
}

func AsStringSlice() []string {
	result := make([]string, len(allCategories))
	for i, cat := range allCategories {
		result[i] = string(cat)
	}
	return result
}

// Canonicalize maps user input (any case, common synonyms) onto a known category.
func Canonicalize(input string) (Category, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return "", false
	}

	synonyms := map[string]Category{
		"cosmetic":   Cosmetics,
		"beauty":     Cosmetics,
		"perfume":    Fragrance,
		"fragrances": Fragrance,
		"variant":    Subtype,
		"variants":   Subtype,
		"subtypes":   Subtype,
		"supplement": Supplements,
		"nutrition":  Supplements,
		"vitamins":   Supplements,
	}
	if cat, ok := synonyms[normalized]; ok {
		return cat, true
	}

	for _, cat := range allCategories {
		if normalized == string(cat) {
			return cat, true
		}
	}
	return "", false
}
