package llm

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/catalog-extractor/internal/common"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"plain object", `{"a":1}`, `{"a":1}`},
		{"fenced json", "```json\n{\"a\": [1, 2]}\n```", `{"a": [1, 2]}`},
		{"fenced no lang", "```\n[{\"b\":\"x\"}]\n```", `[{"b":"x"}]`},
		{"leading prose", "Here is the product:\n[{\"b\":1}] hope it helps", `[{"b":1}]`},
		{"think block", "<think>maybe {not this}</think>{\"hscode\":\"33049900\"}", `{"hscode":"33049900"}`},
		{"brackets in strings", `{"s":"a } b ] c","n":{"x":[1]}} trailing`, `{"s":"a } b ] c","n":{"x":[1]}}`},
		{"escaped quote", `{"s":"say \"}\" ok"}`, `{"s":"say \"}\" ok"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractJSON(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExtractJSONErrors(t *testing.T) {
	for _, in := range []string{"", "no json here", `{"a": [1, 2}`, "```json\n{\"a\":\n```"} {
		_, err := ExtractJSON(in)
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, common.ErrParse))
	}
}

func TestParseLenientKeepsNumbers(t *testing.T) {
	v, err := ParseLenient("```json\n{\"ItemCapacity\": 50.0}\n```")
	require.NoError(t, err)
	m := v.(map[string]any)
	assert.Equal(t, json.Number("50.0"), m["ItemCapacity"])

	_, err = ParseLenient(`{"a": tru}`)
	assert.True(t, errors.Is(err, common.ErrParse))
}

func TestParseInto(t *testing.T) {
	var out struct {
		Score    int    `json:"score"`
		Feedback string `json:"feedback"`
	}
	require.NoError(t, ParseInto(`Sure! {"score": 4, "feedback": "mostly faithful"}`, &out))
	assert.Equal(t, 4, out.Score)
	assert.Equal(t, "mostly faithful", out.Feedback)
}

// validateReply parses a model reply leniently and checks it against schemaMap.
func validateReply(t *testing.T, schemaMap map[string]any, reply string) error {
	t.Helper()
	schema, err := CompileSchema("reply.json", schemaMap)
	require.NoError(t, err)
	v, err := ParseLenient(reply)
	if err != nil {
		return err
	}
	return ValidateValue(schema, v)
}

func TestClassificationSchema(t *testing.T) {
	schema := ClassificationSchema([]string{"33049900", "33051000"})
	assert.NoError(t, validateReply(t, schema, `{"hscode":"33051000","reasoning":"shampoo"}`))

	err := validateReply(t, schema, `{"hscode":"99999999"}`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrValidation))

	assert.Error(t, validateReply(t, schema, `{"code":"33049900"}`))
	assert.True(t, errors.Is(validateReply(t, schema, `no json here`), common.ErrParse))
}

func TestJudgeSchema(t *testing.T) {
	schema := JudgeSchema()
	assert.NoError(t, validateReply(t, schema, `{"score":5,"feedback":"ok"}`))
	assert.NoError(t, validateReply(t, schema, `{"score":4.0}`))
	assert.Error(t, validateReply(t, schema, `{"score":7}`))
	assert.Error(t, validateReply(t, schema, `{"score":"4"}`))
}
