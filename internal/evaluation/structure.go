package evaluation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/catalog-extractor/internal/catalog"
	"github.com/joseph-ayodele/catalog-extractor/internal/entity"
	"github.com/joseph-ayodele/catalog-extractor/internal/llm"
)

var kindSchemas = map[catalog.FieldKind]map[string]any{
	catalog.KindString:         {"type": "string"},
	catalog.KindNumber:         {"type": "number"},
	catalog.KindArray:          {"type": "array"},
	catalog.KindStringOrNumber: {"type": []string{"string", "number"}},
}

// StructureScorer checks every required field (root, and per variant) for
// presence and kind. Score is the share of correct fields.
type StructureScorer struct {
	schemas map[catalog.FieldKind]*jsonschema.Schema
}

func NewStructureScorer() *StructureScorer {
	s := &StructureScorer{schemas: make(map[catalog.FieldKind]*jsonschema.Schema, len(kindSchemas))}
	for kind, m := range kindSchemas {
		compiled, err := llm.CompileSchema(string(kind)+".json", m)
		if err != nil {
			panic(fmt.Sprintf("compile %s kind schema: %v", kind, err))
		}
		s.schemas[kind] = compiled
	}
	return s
}

func (s *StructureScorer) Score(_ context.Context, in Input) (entity.SubScore, error) {
	variants := in.Record.Variants()
	required := in.Entry.RequiredCount(len(variants))
	if required == 0 {
		return entity.SubScore{Score: 100, Reason: "no required fields", Method: entity.MethodRule}, nil
	}

	missing := map[string]int{}
	wrong := map[string]int{}
	ok := 0
	check := func(obj map[string]any, f catalog.Field) {
		v, present := obj[f.Name]
		switch {
		case !present || v == nil:
			missing[f.Name]++
		case s.schemas[f.Kind].Validate(v) != nil:
			wrong[f.Name]++
		default:
			ok++
		}
	}

	root := in.Record.Root()
	for _, f := range in.Entry.RootFields {
		check(root, f)
	}
	for _, v := range variants {
		for _, f := range in.Entry.VariantFields {
			check(v, f)
		}
	}

	reason := fmt.Sprintf("%d of %d required fields present with the expected type", ok, required)
	if len(missing) > 0 {
		reason += "; missing: " + summarize(missing)
	}
	if len(wrong) > 0 {
		reason += "; wrong type: " + summarize(wrong)
	}
	return entity.SubScore{Score: ratio(ok, required), Reason: reason, Method: entity.MethodRule}, nil
}

func summarize(counts map[string]int) string {
	names := make([]string, 0, len(counts))
	for n := range counts {
		names = append(names, n)
	}
	sort.Strings(names)
	for i, n := range names {
		if counts[n] > 1 {
			names[i] = fmt.Sprintf("%s (x%d)", n, counts[n])
		}
	}
	return strings.Join(names, ", ")
}
