package evaluation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/catalog-extractor/constants"
	"github.com/joseph-ayodele/catalog-extractor/internal/catalog"
	"github.com/joseph-ayodele/catalog-extractor/internal/entity"
	"github.com/joseph-ayodele/catalog-extractor/internal/llm"
	"github.com/joseph-ayodele/catalog-extractor/internal/prompt"
	"github.com/joseph-ayodele/catalog-extractor/internal/shape"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func mustParse(t *testing.T, s string) *shape.Record {
	t.Helper()
	rec, err := shape.Parse([]byte(s))
	require.NoError(t, err)
	return rec
}

func fixed(score float64) Scorer {
	return ScorerFunc(func(context.Context, Input) (entity.SubScore, error) {
		return entity.SubScore{Score: score, Method: entity.MethodRule}, nil
	})
}

const source = `=== DOCUMENT SOURCE (lumen.pdf) ===
--- PAGE 1 ---
Lumen Hydra Night Cream. A rich night cream with hyaluronic acid for dry skin.
EAN 5601234567890, 50 ml jar.`

const goodRecord = `{
  "TitleEN": "Hydra Night Cream", "TitlePT": "Creme de Noite Hydra",
  "DescriptionEN": "A rich night cream with hyaluronic acid for dry skin",
  "DescriptionPT": "Um creme de noite rico com ácido hialurónico para pele seca",
  "brand": "Lumen",
  "Subtypes": [{"EAN": "5601234567890", "ItemCapacity": 50, "ItemCapacityUnits": "ml",
    "ItemDescriptionEN": "50 ml jar", "ItemDescriptionPT": "Frasco de 50 ml"}]
}`

func TestCompositeWeights(t *testing.T) {
	assert.InDelta(t, 1.0, StructureWeight+ContentWeight+TranslationWeight, 1e-9)
	assert.Equal(t, 100.0, Composite(100, 100, 100))
	assert.Equal(t, 0.0, Composite(0, 0, 0))
	assert.Equal(t, 50.0, Composite(100, 0, 100))
	assert.Equal(t, 100.0, Composite(250, 130, 101))
	assert.Equal(t, 0.0, Composite(-10, -1, -5))
	assert.Equal(t, 33.33, Composite(33.333, 33.333, 33.333))
}

func TestEvaluateCompositeAlwaysInRange(t *testing.T) {
	rec := mustParse(t, goodRecord)
	for _, scores := range [][3]float64{{0, 0, 0}, {100, 100, 100}, {-50, 400, 20}, {55.5, 12.25, 99}} {
		e := NewEngine(catalog.Default(), discard,
			WithStructureScorer(fixed(scores[0])),
			WithContentScorer(fixed(scores[1])),
			WithTranslationScorer(fixed(scores[2])))
		res := e.Evaluate(context.Background(), rec, source, constants.Cosmetics)
		assert.GreaterOrEqual(t, res.Composite, 0.0)
		assert.LessOrEqual(t, res.Composite, 100.0)
		for _, s := range []float64{res.Structure.Score, res.Content.Score, res.Translation.Score} {
			assert.GreaterOrEqual(t, s, 0.0)
			assert.LessOrEqual(t, s, 100.0)
		}
	}
}

func TestFailingContentScorerScoresZero(t *testing.T) {
	rec := mustParse(t, goodRecord)
	cases := map[string]Scorer{
		"error": ScorerFunc(func(context.Context, Input) (entity.SubScore, error) {
			return entity.SubScore{}, errors.New("judge unavailable")
		}),
		"panic": ScorerFunc(func(context.Context, Input) (entity.SubScore, error) {
			panic("nil map")
		}),
	}
	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			e := NewEngine(catalog.Default(), discard,
				WithStructureScorer(fixed(80)), WithContentScorer(s), WithTranslationScorer(fixed(60)))
			res := e.Evaluate(context.Background(), rec, source, constants.Cosmetics)
			assert.Equal(t, 0.0, res.Content.Score)
			assert.Equal(t, entity.MethodError, res.Content.Method)
			assert.NotEmpty(t, res.Content.Reason)
			assert.InDelta(t, 0.2*80+0.3*60, res.Composite, 1e-9)
		})
	}
}

func TestStructureScorer(t *testing.T) {
	ctx := context.Background()
	s := NewStructureScorer()
	entry, _ := catalog.Default().Lookup(constants.Subtype)

	rec := mustParse(t, `[
	  {"EAN": "1", "CNP": "2", "ItemDescriptionEN": "a", "ItemDescriptionPT": "b",
	   "ItemCapacity": 50, "ItemCapacityUnits": "ml", "PackType": 1, "VariantType": "Size", "VariantValue": "50"},
	  {"EAN": "3", "CNP": null, "ItemDescriptionEN": "c", "ItemDescriptionPT": "d",
	   "ItemCapacity": "100", "ItemCapacityUnits": "ml", "PackType": "box", "VariantType": 2, "VariantValue": "100"}
	]`)
	sub, err := s.Score(ctx, Input{Record: rec, Entry: entry})
	require.NoError(t, err)
	// 18 required; CNP null and ItemCapacity as a string are wrong.
	assert.InDelta(t, 100*16.0/18.0, sub.Score, 0.01)
	assert.Equal(t, entity.MethodRule, sub.Method)
	assert.Contains(t, sub.Reason, "missing: CNP")
	assert.Contains(t, sub.Reason, "wrong type: ItemCapacity")

	sub, err = s.Score(ctx, Input{Record: rec, Entry: catalog.Entry{}})
	require.NoError(t, err)
	assert.Equal(t, 100.0, sub.Score)
}

func TestHeuristicContent(t *testing.T) {
	ctx := context.Background()
	sub, err := HeuristicContent{}.Score(ctx, Input{Record: mustParse(t, goodRecord), Source: source})
	require.NoError(t, err)
	assert.Equal(t, 100.0, sub.Score)
	assert.Equal(t, entity.MethodHeuristic, sub.Method)

	invented := mustParse(t, `{"TitleEN": "Hydra Night Cream", "brand": "Glowify",
	  "Subtypes": [{"EAN": "5601234567890", "HSCode": "33049900"}]}`)
	sub, err = HeuristicContent{}.Score(ctx, Input{Record: invented, Source: source})
	require.NoError(t, err)
	assert.InDelta(t, 66.67, sub.Score, 0.01)
	assert.Contains(t, sub.Reason, "brand")
}

func TestTranslationScorer(t *testing.T) {
	ctx := context.Background()
	score := func(js string) entity.SubScore {
		sub, err := TranslationScorer{}.Score(ctx, Input{Record: mustParse(t, js)})
		require.NoError(t, err)
		return sub
	}

	assert.Equal(t, 100.0, score(goodRecord).Score)
	assert.Equal(t, 100.0, score(`[{"EAN": "1"}]`).Score)
	assert.Equal(t, "no translation pairs", score(`{"Presentations": []}`).Reason)

	missing := score(`{"TitleEN": "Night cream", "Subtypes": []}`)
	assert.Equal(t, 0.0, missing.Score)
	assert.Contains(t, missing.Reason, "missing")

	copied := score(`{"DescriptionEN": "A rich night cream for dry skin",
	  "DescriptionPT": "A rich night cream for dry skin", "Subtypes": []}`)
	assert.Equal(t, 0.0, copied.Score)

	brandName := score(`{"TitleEN": "Lumen Hydra", "TitlePT": "Lumen Hydra", "Subtypes": []}`)
	assert.Equal(t, 100.0, brandName.Score)

	mixed := score(`{"DescriptionEN": "Apply the cream to your skin every night",
	  "DescriptionPT": "Aplique the cream to your skin todas as noites", "Subtypes": []}`)
	assert.Equal(t, 50.0, mixed.Score)

	dropped := score(`{"brand": "Lumen", "TitleEN": "Lumen cream 50 ml", "TitlePT": "Creme hidratante", "Subtypes": []}`)
	assert.Equal(t, 50.0, dropped.Score)
	assert.Contains(t, dropped.Reason, "number 50")
	assert.Contains(t, dropped.Reason, `brand "Lumen"`)

	decimal := score(`{"TitleEN": "Serum 0.5 oz", "TitlePT": "Sérum 0,5 oz", "Subtypes": []}`)
	assert.Equal(t, 100.0, decimal.Score)
}

func TestTranslationPairsPerVariant(t *testing.T) {
	pairs := TranslationPairs(mustParse(t, goodRecord))
	require.Len(t, pairs, 3)
	assert.Equal(t, Pair{Field: "ItemDescription", Location: "Subtypes[0]", EN: "50 ml jar", PT: "Frasco de 50 ml"}, pairs[2])
}

func judgeFor(t *testing.T, reply string, err error, cfg JudgeConfig) *Judge {
	t.Helper()
	inv := llm.InvokerFunc(func(_ context.Context, req llm.Request) (string, error) {
		assert.True(t, strings.Contains(req.Prompt, "SOURCE DATA:"))
		assert.True(t, strings.Contains(req.Prompt, "EXTRACTED RESULT:"))
		return reply, err
	})
	j, jerr := NewJudge(inv, prompt.NewLoader(prompt.DefaultStore(), catalog.Default(), discard), cfg, discard)
	require.NoError(t, jerr)
	return j
}

func TestJudge(t *testing.T) {
	ctx := context.Background()
	in := Input{Record: mustParse(t, goodRecord), Source: source}
	cfg := JudgeConfig{Params: entity.ModelParams{Provider: "openai", Model: "gpt-4o-mini"}}

	sub, err := judgeFor(t, "```json\n{\"score\": 4, \"feedback\": \"ok\"}\n```", nil, cfg).Score(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 75.0, sub.Score)
	assert.Equal(t, entity.MethodModel, sub.Method)

	sub, err = judgeFor(t, `{"score": 1}`, nil, cfg).Score(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 0.0, sub.Score)

	sub, err = judgeFor(t, `{"score": 4.0, "feedback": "accurate"}`, nil, cfg).Score(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 75.0, sub.Score)
	assert.Equal(t, entity.MethodModel, sub.Method)
	assert.Equal(t, "judge score 4/5: accurate", sub.Reason)

	_, err = judgeFor(t, "", errors.New("429 rate limited"), cfg).Score(ctx, in)
	assert.Error(t, err)

	sub, err = judgeFor(t, `{"score": 9}`, nil, cfg).Score(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, entity.MethodHeuristic, sub.Method)
	assert.Contains(t, sub.Reason, "judge reply unreadable")

	forced := cfg
	forced.ForceHeuristic = true
	sub, err = judgeFor(t, `{"score": 5}`, nil, forced).Score(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, entity.MethodHeuristic, sub.Method)

	sub, err = judgeFor(t, `{"score": 5}`, nil, JudgeConfig{}).Score(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, entity.MethodHeuristic, sub.Method)
}

func TestEngineWithFailingJudge(t *testing.T) {
	j := judgeFor(t, "", errors.New("connection refused"),
		JudgeConfig{Params: entity.ModelParams{Provider: "openai", Model: "gpt-4o-mini"}})
	e := NewEngine(catalog.Default(), discard, WithContentScorer(j))

	res := e.Evaluate(context.Background(), mustParse(t, goodRecord), source, constants.Cosmetics)
	assert.Equal(t, 0.0, res.Content.Score)
	assert.Contains(t, res.Content.Reason, "connection refused")
	assert.InDelta(t, 0.2*res.Structure.Score+0.3*res.Translation.Score, res.Composite, 0.01)
}
