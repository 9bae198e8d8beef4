package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/catalog-extractor/internal/catalog"
	"github.com/joseph-ayodele/catalog-extractor/internal/common"
	"github.com/joseph-ayodele/catalog-extractor/internal/entity"
	"github.com/joseph-ayodele/catalog-extractor/internal/llm"
	"github.com/joseph-ayodele/catalog-extractor/internal/prompt"
	"github.com/joseph-ayodele/catalog-extractor/internal/shape"
)

// JudgeConfig selects the judge model.
type JudgeConfig struct {
	Params entity.ModelParams
	// MaxInputChars caps the source text shown to the judge.
	MaxInputChars int
	// ForceHeuristic skips the model and always scores heuristically.
	ForceHeuristic bool
}

// Judge asks a model to rate content accuracy 1..5 and maps it to 0..100.
// A failed call scores 0. A reply that cannot be read falls back to the
// heuristic scorer, as does a judge without a configured model.
type Judge struct {
	invoker  llm.Invoker
	prompts  *prompt.Loader
	cfg      JudgeConfig
	schema   *jsonschema.Schema
	fallback HeuristicContent
	logger   *slog.Logger
}

func NewJudge(invoker llm.Invoker, prompts *prompt.Loader, cfg JudgeConfig, logger *slog.Logger) (*Judge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = 50000
	}
	schema, err := llm.CompileSchema("judge.json", llm.JudgeSchema())
	if err != nil {
		return nil, fmt.Errorf("judge schema: %w", err)
	}
	return &Judge{invoker: invoker, prompts: prompts, cfg: cfg, schema: schema, logger: logger}, nil
}

func (j *Judge) configured() bool {
	return j.invoker != nil && j.prompts != nil && j.cfg.Params.Provider != "" && j.cfg.Params.Model != ""
}

func (j *Judge) Score(ctx context.Context, in Input) (entity.SubScore, error) {
	if j.cfg.ForceHeuristic || !j.configured() {
		return j.fallback.Score(ctx, in)
	}

	tmpl, err := j.prompts.LoadID(ctx, catalog.JudgeTemplateID)
	if err != nil {
		return entity.SubScore{}, err
	}
	record, err := json.MarshalIndent(in.Record, "", "  ")
	if err != nil {
		return entity.SubScore{}, fmt.Errorf("marshal record: %w", err)
	}
	rendered, err := tmpl.Render(fmt.Sprintf("SOURCE DATA:\n%s\n\nEXTRACTED RESULT:\n%s",
		truncateRunes(in.Source, j.cfg.MaxInputChars), record))
	if err != nil {
		return entity.SubScore{}, err
	}

	raw, err := j.invoker.Complete(ctx, llm.Request{
		Provider:    j.cfg.Params.Provider,
		Model:       j.cfg.Params.Model,
		Temperature: j.cfg.Params.Temperature,
		Prompt:      rendered,
		JSONObject:  true,
	})
	if err != nil {
		return entity.SubScore{}, fmt.Errorf("content judge call: %w", err)
	}

	var reply struct {
		Score    json.Number `json:"score"`
		Feedback string      `json:"feedback"`
	}
	v, perr := llm.ParseLenient(raw)
	if perr == nil {
		perr = llm.ValidateValue(j.schema, v)
	}
	if perr == nil {
		perr = llm.ParseInto(raw, &reply)
	}
	var s int
	if perr == nil {
		s, perr = judgeScore(reply.Score)
	}
	if perr != nil {
		j.logger.Warn("evaluation.judge.unreadable", "error", perr, "response_bytes", len(raw))
		sub, err := j.fallback.Score(ctx, in)
		sub.Reason = "judge reply unreadable, heuristic used: " + sub.Reason
		return sub, err
	}

	return entity.SubScore{
		Score:  float64(s-1) * 25,
		Reason: fmt.Sprintf("judge score %d/5: %s", s, strings.TrimSpace(reply.Feedback)),
		Method: entity.MethodModel,
	}, nil
}

// judgeScore reads the 1-5 score. Models sometimes write 4 as 4.0.
func judgeScore(n json.Number) (int, error) {
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: judge score %q: %v", common.ErrParse, n, err)
	}
	s := int(math.Round(f))
	if s < 1 || s > 5 || math.Abs(f-float64(s)) > 1e-9 {
		return 0, fmt.Errorf("%w: judge score %s outside 1-5", common.ErrParse, n)
	}
	return s, nil
}

// HeuristicContent scores the share of extracted string and number values
// that can be found in the source text. Portuguese fields, URLs and codes are
// not checked because they are generated rather than copied.
type HeuristicContent struct{}

// minWordShare is how many significant words of a long value must occur in the source.
const minWordShare = 0.6

func (HeuristicContent) Score(_ context.Context, in Input) (entity.SubScore, error) {
	src := normalizeText(in.Source)
	srcWords := make(map[string]bool)
	for _, w := range strings.Fields(src) {
		srcWords[w] = true
	}

	var total, found int
	var unsupported []string
	var visit func(key string, v any)
	visit = func(key string, v any) {
		switch t := v.(type) {
		case map[string]any:
			for k, el := range t {
				if skipHeuristicKey(k) {
					continue
				}
				visit(k, el)
			}
		case []any:
			for _, el := range t {
				visit(key, el)
			}
		case string, json.Number, float64, int:
			text := normalizeText(shape.Text(t))
			if text == "" {
				return
			}
			total++
			if supported(text, src, srcWords) {
				found++
			} else if len(unsupported) < 5 {
				unsupported = append(unsupported, key)
			}
		}
	}
	visit("", in.Record.Value())

	if total == 0 {
		return entity.SubScore{Score: 100, Reason: "no values to verify", Method: entity.MethodHeuristic}, nil
	}
	reason := fmt.Sprintf("%d of %d extracted values found in the source", found, total)
	if len(unsupported) > 0 {
		reason += "; not found: " + strings.Join(unsupported, ", ")
	}
	return entity.SubScore{Score: ratio(found, total), Reason: reason, Method: entity.MethodHeuristic}, nil
}

func skipHeuristicKey(k string) bool {
	return k == shape.CodeKey || strings.HasSuffix(k, "PT") || strings.HasPrefix(strings.ToLower(k), "url")
}

func supported(text, src string, srcWords map[string]bool) bool {
	if strings.Contains(src, text) {
		return true
	}
	var sig, hit int
	for _, w := range strings.Fields(text) {
		if utf8.RuneCountInString(w) < 4 {
			continue
		}
		sig++
		if srcWords[w] {
			hit++
		}
	}
	return sig > 0 && float64(hit)/float64(sig) >= minWordShare
}

// normalizeText lowercases and replaces punctuation with spaces, keeping
// letters, digits and the decimal separators inside numbers.
func normalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	rs := []rune(strings.ToLower(s))
	for i, r := range rs {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case (r == '.' || r == ',') && i > 0 && i+1 < len(rs) && unicode.IsDigit(rs[i-1]) && unicode.IsDigit(rs[i+1]):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
