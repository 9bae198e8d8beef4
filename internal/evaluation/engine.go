// Package evaluation scores a completed extraction on three criteria and
// combines them into a weighted composite. Evaluation never fails an attempt:
// a scorer that errors or panics contributes 0 with a reason.
package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/joseph-ayodele/catalog-extractor/constants"
	"github.com/joseph-ayodele/catalog-extractor/internal/catalog"
	"github.com/joseph-ayodele/catalog-extractor/internal/entity"
	"github.com/joseph-ayodele/catalog-extractor/internal/shape"
)

// Composite weights; they sum to 1.
const (
	StructureWeight   = 0.20
	ContentWeight     = 0.50
	TranslationWeight = 0.30
)

// Input is what every scorer sees.
type Input struct {
	Record   *shape.Record
	Source   string
	Category constants.Category
	Entry    catalog.Entry
}

// Scorer produces one sub-score on the 0..100 scale.
type Scorer interface {
	Score(ctx context.Context, in Input) (entity.SubScore, error)
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(ctx context.Context, in Input) (entity.SubScore, error)

func (f ScorerFunc) Score(ctx context.Context, in Input) (entity.SubScore, error) { return f(ctx, in) }

type Engine struct {
	registry    *catalog.Registry
	structure   Scorer
	content     Scorer
	translation Scorer
	logger      *slog.Logger
}

type Option func(*Engine)

func WithStructureScorer(s Scorer) Option {
	return func(e *Engine) {
		if s != nil {
			e.structure = s
		}
	}
}

func WithContentScorer(s Scorer) Option {
	return func(e *Engine) {
		if s != nil {
			e.content = s
		}
	}
}

func WithTranslationScorer(s Scorer) Option {
	return func(e *Engine) {
		if s != nil {
			e.translation = s
		}
	}
}

// NewEngine builds an engine with the rule-based structure and translation
// scorers and a heuristic content scorer; pass WithContentScorer(NewJudge(...))
// to use a model judge.
func NewEngine(registry *catalog.Registry, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		registry:    registry,
		structure:   NewStructureScorer(),
		content:     HeuristicContent{},
		translation: TranslationScorer{},
		logger:      logger,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Evaluate scores rec against the source text it was extracted from.
func (e *Engine) Evaluate(ctx context.Context, rec *shape.Record, source string, category constants.Category) entity.EvaluationResult {
	start := time.Now()
	entry, _ := e.registry.Lookup(category)
	in := Input{Record: rec, Source: source, Category: category, Entry: entry}

	res := entity.EvaluationResult{
		Structure:   e.run(ctx, "structure", e.structure, in),
		Content:     e.run(ctx, "content", e.content, in),
		Translation: e.run(ctx, "translation", e.translation, in),
		CreatedAt:   time.Now().UTC(),
	}
	res.Composite = Composite(res.Structure.Score, res.Content.Score, res.Translation.Score)

	e.logger.Info("evaluation.completed",
		"category", category,
		"structure", res.Structure.Score,
		"content", res.Content.Score,
		"content_method", res.Content.Method,
		"translation", res.Translation.Score,
		"composite", res.Composite,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res
}

func (e *Engine) run(ctx context.Context, name string, s Scorer, in Input) (out entity.SubScore) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("evaluation.scorer.panic", "scorer", name, "panic", r)
			out = entity.SubScore{Score: 0, Reason: fmt.Sprintf("%s scorer panicked: %v", name, r), Method: entity.MethodError}
		}
	}()
	if in.Record == nil {
		return entity.SubScore{Score: 0, Reason: "no record to evaluate", Method: entity.MethodError}
	}
	sub, err := s.Score(ctx, in)
	if err != nil {
		e.logger.Warn("evaluation.scorer.failed", "scorer", name, "error", err)
		return entity.SubScore{Score: 0, Reason: fmt.Sprintf("%s scorer failed: %v", name, err), Method: entity.MethodError}
	}
	sub.Score = clamp(sub.Score)
	return sub
}

// Composite is the weighted sum of the sub-scores, clamped to [0,100] and
// rounded to two decimals.
func Composite(structure, content, translation float64) float64 {
	c := StructureWeight*clamp(structure) + ContentWeight*clamp(content) + TranslationWeight*clamp(translation)
	return math.Round(clamp(c)*100) / 100
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

func ratio(ok, total int) float64 {
	if total == 0 {
		return 100
	}
	return math.Round(10000*float64(ok)/float64(total)) / 100
}
