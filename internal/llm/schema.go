package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/catalog-extractor/internal/common"
)

// CompileSchema compiles a schema given as a generic map.
func CompileSchema(name string, schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// ValidateValue validates an already decoded value.
func ValidateValue(schema *jsonschema.Schema, v any) error {
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: json does not match schema: %v", common.ErrValidation, err)
	}
	return nil
}

// ClassificationSchema constrains a classifier reply to one code from codes.
func ClassificationSchema(codes []string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"hscode":    map[string]any{"type": "string", "enum": codes},
			"reasoning": map[string]any{"type": "string"},
		},
		"required": []string{"hscode"},
	}
}

// JudgeSchema constrains a content judge reply.
func JudgeSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"score":    map[string]any{"type": "integer", "minimum": 1, "maximum": 5},
			"feedback": map[string]any{"type": "string"},
		},
		"required": []string{"score"},
	}
}
