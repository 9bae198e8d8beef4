package extract

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/catalog-extractor/constants"
	"github.com/joseph-ayodele/catalog-extractor/internal/catalog"
	"github.com/joseph-ayodele/catalog-extractor/internal/common"
	"github.com/joseph-ayodele/catalog-extractor/internal/entity"
	"github.com/joseph-ayodele/catalog-extractor/internal/llm"
	"github.com/joseph-ayodele/catalog-extractor/internal/prompt"
)

// scriptedModel answers extraction prompts from a queue and classification
// prompts (recognized by the code list) with a fixed reply.
type scriptedModel struct {
	mu          sync.Mutex
	extraction  []string
	extractErr  error
	classify    string
	classifyErr error
	requests    []llm.Request
}

func (m *scriptedModel) Complete(_ context.Context, req llm.Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if strings.Contains(req.Prompt, "ALLOWED CODES:") {
		return m.classify, m.classifyErr
	}
	if m.extractErr != nil {
		return "", m.extractErr
	}
	if len(m.extraction) == 0 {
		return "", errors.New("unexpected extraction call")
	}
	reply := m.extraction[0]
	if len(m.extraction) > 1 {
		m.extraction = m.extraction[1:]
	}
	return reply, nil
}

func (m *scriptedModel) extractionCalls() int {
	n := 0
	for _, r := range m.requests {
		if !strings.Contains(r.Prompt, "ALLOWED CODES:") {
			n++
		}
	}
	return n
}

const cosmeticsReply = "Here you go:\n```json\n" + `{
  "TitleEN": "Hydra Night Cream", "TitlePT": "Creme de Noite Hydra",
  "DescriptionEN": "Rich night cream", "brand": "Lumen",
  "Subtypes": [
    {"EAN": "5601234567890", "ItemDescriptionEN": "50 ml jar", "HSCode": "99999999"},
    {"EAN": "5601234567891", "ItemDescriptionEN": "100 ml jar"}
  ]
}` + "\n```"

func newOrchestrator(t *testing.T, m llm.Invoker) *Orchestrator {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := catalog.Default()
	o, err := NewOrchestrator(m, prompt.NewLoader(prompt.DefaultStore(), reg, logger), reg, Config{
		Classifier:   entity.ModelParams{Provider: "groq", Model: "deepseek-r1-distill-llama-70b", Temperature: 0.1},
		ParseRetries: 1,
	}, logger)
	require.NoError(t, err)
	return o
}

func cosmeticsJob() *entity.Job {
	return &entity.Job{
		ID:       uuid.New(),
		Category: constants.Cosmetics,
		Params:   entity.ModelParams{Provider: "openai", Model: "gpt-4o", Temperature: 0.2},
	}
}

func TestRunExtractsAndClassifies(t *testing.T) {
	m := &scriptedModel{
		extraction: []string{cosmeticsReply},
		classify:   `<think>it is a cream</think>{"hscode": "3304.99.00", "reasoning": "skin care cream"}`,
	}
	o := newOrchestrator(t, m)

	out, err := o.Run(context.Background(), cosmeticsJob(), "=== DOCUMENT SOURCE (a.pdf) ===\nHydra")
	require.NoError(t, err)
	assert.Equal(t, 1, out.Calls)
	assert.Empty(t, out.Warnings)
	assert.Equal(t, "33049900", out.Classification.Code)
	assert.Empty(t, out.Classification.Warning)
	assert.Equal(t, []string{"33049900", "33049900"}, out.Record.Codes())

	require.Len(t, m.requests, 2)
	ext, cls := m.requests[0], m.requests[1]
	assert.Equal(t, "openai", ext.Provider)
	assert.Equal(t, "gpt-4o", ext.Model)
	assert.Contains(t, ext.Prompt, "=== DOCUMENT SOURCE (a.pdf) ===\nHydra")
	assert.Equal(t, "groq", cls.Provider)
	assert.InDelta(t, 0.1, cls.Temperature, 1e-6)
	assert.Contains(t, cls.Prompt, "product_name: Hydra Night Cream")
	assert.Contains(t, cls.Prompt, "brand: Lumen")
	assert.Contains(t, cls.Prompt, "how_to_use: (not provided)")
	assert.Contains(t, cls.Prompt, "33049900 - ")
}

func TestExtractRetriesParseFailureOnce(t *testing.T) {
	t.Run("second reply parses", func(t *testing.T) {
		m := &scriptedModel{extraction: []string{"I could not read that.", cosmeticsReply}, classify: `{"hscode":"33049900"}`}
		out, err := newOrchestrator(t, m).Run(context.Background(), cosmeticsJob(), "text")
		require.NoError(t, err)
		assert.Equal(t, 2, out.Calls)
		assert.Equal(t, 2, m.extractionCalls())
		assert.Equal(t, m.requests[0].Prompt, m.requests[1].Prompt)
	})

	t.Run("still failing is a parse error", func(t *testing.T) {
		m := &scriptedModel{extraction: []string{`{"TitleEN": "cut off`}}
		ex, err := newOrchestrator(t, m).ExtractOnly(context.Background(), cosmeticsJob(), "text")
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrParse)
		assert.Equal(t, common.CodeParse, common.ErrorCode(err))
		assert.Equal(t, 2, m.extractionCalls())
		assert.Equal(t, `{"TitleEN": "cut off`, ex.RawResponse)
	})
}

func TestExtractTransportErrorIsNotRetried(t *testing.T) {
	m := &scriptedModel{extractErr: errors.New("connection reset")}
	_, err := newOrchestrator(t, m).ExtractOnly(context.Background(), cosmeticsJob(), "text")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrTransport)
	assert.Equal(t, common.CodeTransport, common.ErrorCode(err))
	assert.Equal(t, 1, m.extractionCalls())
}

func TestExtractShapeHandling(t *testing.T) {
	t.Run("unknown layout fails", func(t *testing.T) {
		m := &scriptedModel{extraction: []string{`{"TitleEN": "no variants"}`}}
		_, err := newOrchestrator(t, m).ExtractOnly(context.Background(), cosmeticsJob(), "text")
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrShape)
	})

	t.Run("other known layout warns", func(t *testing.T) {
		m := &scriptedModel{extraction: []string{`[{"EAN": "1"}]`}}
		ex, err := newOrchestrator(t, m).ExtractOnly(context.Background(), cosmeticsJob(), "text")
		require.NoError(t, err)
		require.Len(t, ex.Warnings, 1)
		assert.Contains(t, ex.Warnings[0], "expected flat-object layout")
	})
}

func TestExtractJSONObjectModeFollowsExpectedShape(t *testing.T) {
	want := map[constants.Category]bool{
		constants.Cosmetics:   true,
		constants.Fragrance:   true,
		constants.Subtype:     false,
		constants.Supplements: true,
	}
	for cat, jsonObject := range want {
		t.Run(string(cat), func(t *testing.T) {
			m := &scriptedModel{extraction: []string{`[{"EAN": "1"}]`}}
			job := cosmeticsJob()
			job.Category = cat
			job.Qualifier = "Hydra Night Cream"
			_, err := newOrchestrator(t, m).ExtractOnly(context.Background(), job, "text")
			require.NoError(t, err)
			require.Len(t, m.requests, 1)
			assert.Equal(t, jsonObject, m.requests[0].JSONObject)
		})
	}
}

func TestClassificationFailuresLeaveCodesUnset(t *testing.T) {
	cases := map[string]*scriptedModel{
		"out of enum": {classify: `{"hscode": "12345678", "reasoning": "guess"}`},
		"unparseable": {classify: "I think it is a cream"},
		"transport":   {classifyErr: errors.New("timeout")},
		"wrong type":  {classify: `{"hscode": 33049900}`},
	}
	for name, m := range cases {
		t.Run(name, func(t *testing.T) {
			m.extraction = []string{cosmeticsReply}
			out, err := newOrchestrator(t, m).Run(context.Background(), cosmeticsJob(), "text")
			require.NoError(t, err)
			assert.Empty(t, out.Classification.Code)
			assert.NotEmpty(t, out.Classification.Warning)

			// The model-supplied code on the first variant is gone too.
			for i := 0; i < out.Record.Len(); i++ {
				_, ok := out.Record.Code(i)
				assert.False(t, ok)
			}
			b, err := json.Marshal(out.Record)
			require.NoError(t, err)
			assert.NotContains(t, string(b), "HSCode")
		})
	}
}

func TestClassifyReusesRecordForSupplement(t *testing.T) {
	m := &scriptedModel{
		extraction: []string{`{"product_name": "Vitamin D3", "brand": "Sol", "ingredients": ["cholecalciferol"],
			"Presentations": [{"form": "capsule", "count": 60}, {"form": "capsule", "count": 120}]}`},
		classify: `{"hscode": "21069092"}`,
	}
	o := newOrchestrator(t, m)
	job := cosmeticsJob()
	job.Category = constants.Supplements

	ex, err := o.ExtractOnly(context.Background(), job, "text")
	require.NoError(t, err)
	rec := ex.Record.Clone()

	cl := o.Classify(context.Background(), job, rec)
	require.Empty(t, cl.Warning)
	assert.Equal(t, []string{"21069092", "21069092"}, rec.Codes())
	assert.Equal(t, []string{"", ""}, ex.Record.Codes())
	assert.Contains(t, m.requests[len(m.requests)-1].Prompt, "ingredients: cholecalciferol")
	assert.Contains(t, m.requests[len(m.requests)-1].Prompt, "product_type: capsule")
}

func TestClassifierInputOrder(t *testing.T) {
	in := ClassifierInput(map[string]string{"brand": "Lumen", "product_name": "Cream", "zeta": "extra"})
	lines := strings.Split(in, "\n")
	assert.Equal(t, "PRODUCT INFORMATION:", lines[0])
	assert.Equal(t, "product_name: Cream", lines[1])
	assert.Equal(t, "brand: Lumen", lines[3])
	assert.Equal(t, "zeta: extra", lines[7])
	assert.Contains(t, in, "ALLOWED CODES:")
}
