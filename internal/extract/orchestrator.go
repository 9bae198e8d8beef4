// Package extract runs the two model stages of an attempt: content extraction
// from consolidated source text, then customs-code classification of the record.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/catalog-extractor/constants"
	"github.com/joseph-ayodele/catalog-extractor/internal/catalog"
	"github.com/joseph-ayodele/catalog-extractor/internal/common"
	"github.com/joseph-ayodele/catalog-extractor/internal/entity"
	"github.com/joseph-ayodele/catalog-extractor/internal/llm"
	"github.com/joseph-ayodele/catalog-extractor/internal/prompt"
	"github.com/joseph-ayodele/catalog-extractor/internal/shape"
)

// classifierInputs is the order the derived fields are shown to the classifier.
var classifierInputs = []string{"product_name", "description", "brand", "product_type", "ingredients", "how_to_use"}

type Config struct {
	// Classifier overrides the job's model params for stage 2. Empty
	// provider or model falls back to the job's own.
	Classifier entity.ModelParams
	// ParseRetries is the number of identical re-invocations after an
	// unparseable extraction reply.
	ParseRetries int
}

type Orchestrator struct {
	invoker  llm.Invoker
	prompts  *prompt.Loader
	registry *catalog.Registry
	cfg      Config
	schema   *jsonschema.Schema
	logger   *slog.Logger
}

func NewOrchestrator(invoker llm.Invoker, prompts *prompt.Loader, registry *catalog.Registry, cfg Config, logger *slog.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ParseRetries < 0 {
		cfg.ParseRetries = 0
	}
	schema, err := llm.CompileSchema("classification.json", llm.ClassificationSchema(constants.HSCodeValues()))
	if err != nil {
		return nil, fmt.Errorf("classification schema: %w", err)
	}
	return &Orchestrator{
		invoker:  invoker,
		prompts:  prompts,
		registry: registry,
		cfg:      cfg,
		schema:   schema,
		logger:   logger,
	}, nil
}

// Run extracts a record from text and classifies it. Only extraction errors
// are returned; classification problems end up in Outcome.Classification.Warning.
func (o *Orchestrator) Run(ctx context.Context, job *entity.Job, text string) (Outcome, error) {
	ex, err := o.ExtractOnly(ctx, job, text)
	if err != nil {
		return Outcome{Extraction: ex}, err
	}
	cl := o.Classify(ctx, job, ex.Record)
	return Outcome{Extraction: ex, Classification: cl}, nil
}

// ExtractOnly renders the category template, invokes the model and resolves
// the reply's layout. A transport failure is returned immediately. A reply
// that does not parse is retried ParseRetries times with the same request.
func (o *Orchestrator) ExtractOnly(ctx context.Context, job *entity.Job, text string) (Extraction, error) {
	start := time.Now()
	var ex Extraction

	entry, ok := o.registry.Lookup(job.Category)
	if !ok {
		return ex, common.ConfigError("unknown category %q", job.Category)
	}
	tmpl, err := o.prompts.Load(ctx, job.Category)
	if err != nil {
		return ex, err
	}
	rendered, err := tmpl.Render(text)
	if err != nil {
		return ex, err
	}

	req := llm.Request{
		Provider:    job.Params.Provider,
		Model:       job.Params.Model,
		Temperature: job.Params.Temperature,
		Prompt:      rendered,
		// JSON object mode cannot return a bare array.
		JSONObject: entry.Shape != shape.FlatList,
	}

	var value any
	var parseErr error
	for try := 0; try <= o.cfg.ParseRetries; try++ {
		ex.Calls++
		raw, err := o.invoker.Complete(ctx, req)
		if err != nil {
			ex.Duration = time.Since(start)
			o.logger.Error("extract.call.failed", "job_id", job.ID, "provider", req.Provider, "error", err)
			return ex, common.NewAppError(common.CodeTransport, "extraction call failed", wrapTransport(err))
		}
		ex.RawResponse = raw
		value, parseErr = llm.ParseLenient(raw)
		if parseErr == nil {
			break
		}
		o.logger.Warn("extract.parse.failed",
			"job_id", job.ID, "try", try+1, "response_bytes", len(raw), "error", parseErr)
	}
	if parseErr != nil {
		ex.Duration = time.Since(start)
		return ex, common.NewAppError(common.CodeParse,
			fmt.Sprintf("model reply is not valid JSON after %d calls", ex.Calls), parseErr)
	}

	rec, err := shape.New(value)
	if err != nil {
		ex.Duration = time.Since(start)
		return ex, common.NewAppError(common.CodeShape, "model reply has an unknown layout", err)
	}
	if rec.Kind() != entry.Shape {
		msg := fmt.Sprintf("expected %s layout for %s, got %s", entry.Shape, job.Category, rec.Kind())
		ex.Warnings = append(ex.Warnings, msg)
		o.logger.Warn("extract.shape.unexpected", "job_id", job.ID, "expected", entry.Shape, "got", rec.Kind())
	}

	ex.Record = rec
	ex.Duration = time.Since(start)
	o.logger.Info("extract.ok",
		"job_id", job.ID,
		"category", job.Category,
		"shape", rec.Kind(),
		"variants", rec.Len(),
		"calls", ex.Calls,
		"elapsed_ms", ex.Duration.Milliseconds(),
	)
	return ex, nil
}

// Classify asks the classifier for one code and places it on every variant of
// rec. Codes already present in rec are cleared first, so a failed
// classification always leaves the record without any code.
func (o *Orchestrator) Classify(ctx context.Context, job *entity.Job, rec *shape.Record) Classification {
	start := time.Now()
	rec.ClearCodes()

	cl := o.classify(ctx, job, rec)
	cl.Duration = time.Since(start)
	if cl.Warning != "" {
		rec.ClearCodes()
		o.logger.Warn("extract.classify.unset", "job_id", job.ID, "warning", cl.Warning)
		return cl
	}

	rec.SetCodeAll(cl.Code)
	o.logger.Info("extract.classify.ok",
		"job_id", job.ID, "hs_code", cl.Code, "variants", rec.Len(),
		"elapsed_ms", cl.Duration.Milliseconds(),
	)
	return cl
}

func (o *Orchestrator) classify(ctx context.Context, job *entity.Job, rec *shape.Record) Classification {
	var cl Classification
	entry, ok := o.registry.Lookup(job.Category)
	if !ok {
		cl.Warning = fmt.Sprintf("no classification mapping for category %q", job.Category)
		return cl
	}
	if rec.Len() == 0 {
		cl.Warning = "record has no variants to classify"
		return cl
	}

	tmpl, err := o.prompts.LoadID(ctx, catalog.ClassificationTemplateID)
	if err != nil {
		cl.Warning = fmt.Sprintf("classification template: %v", err)
		return cl
	}
	rendered, err := tmpl.Render(ClassifierInput(rec.ClassificationFields(entry.Classification)))
	if err != nil {
		cl.Warning = fmt.Sprintf("classification template: %v", err)
		return cl
	}

	params := o.cfg.Classifier
	if params.Provider == "" || params.Model == "" {
		params = job.Params
	}
	raw, err := o.invoker.Complete(ctx, llm.Request{
		Provider:    params.Provider,
		Model:       params.Model,
		Temperature: params.Temperature,
		Prompt:      rendered,
		JSONObject:  true,
	})
	if err != nil {
		cl.Warning = fmt.Sprintf("classification call failed: %v", err)
		return cl
	}
	cl.RawResponse = raw

	var reply struct {
		HSCode    string `json:"hscode"`
		Reasoning string `json:"reasoning"`
	}
	if err := llm.ParseInto(raw, &reply); err != nil {
		cl.Warning = fmt.Sprintf("classification reply unparseable: %v", err)
		return cl
	}
	code := constants.NormalizeHSCode(reply.HSCode)
	if err := llm.ValidateValue(o.schema, map[string]any{"hscode": code, "reasoning": reply.Reasoning}); err != nil {
		cl.Warning = fmt.Sprintf("classifier returned %q, which is not an allowed code", reply.HSCode)
		return cl
	}
	cl.Code = code
	cl.Reasoning = reply.Reasoning
	return cl
}

// ClassifierInput renders the derived fields and the allowed code list as the
// text substituted into the classification template.
func ClassifierInput(fields map[string]string) string {
	var b strings.Builder
	b.WriteString("PRODUCT INFORMATION:\n")
	seen := make(map[string]bool, len(fields))
	for _, k := range classifierInputs {
		seen[k] = true
		writeField(&b, k, fields[k])
	}
	extra := make([]string, 0)
	for k := range fields {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		writeField(&b, k, fields[k])
	}

	b.WriteString("\nALLOWED CODES:\n")
	for _, c := range constants.HSCodes() {
		fmt.Fprintf(&b, "%s - %s\n", c.Code, c.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeField(b *strings.Builder, key, value string) {
	if strings.TrimSpace(value) == "" {
		value = "(not provided)"
	}
	fmt.Fprintf(b, "%s: %s\n", key, value)
}

func wrapTransport(err error) error {
	if errors.Is(err, common.ErrTransport) {
		return err
	}
	return fmt.Errorf("%w: %v", common.ErrTransport, err)
}
