// Package pipeline drives one job through consolidation, extraction,
// classification and evaluation, and records the outcome as an attempt.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/catalog-extractor/constants"
	"github.com/joseph-ayodele/catalog-extractor/internal/common"
	"github.com/joseph-ayodele/catalog-extractor/internal/entity"
	"github.com/joseph-ayodele/catalog-extractor/internal/extract"
	"github.com/joseph-ayodele/catalog-extractor/internal/jobs"
	"github.com/joseph-ayodele/catalog-extractor/internal/shape"
	"github.com/joseph-ayodele/catalog-extractor/internal/sources"
)

// TextSource consolidates a job's inputs.
type TextSource interface {
	Consolidate(ctx context.Context, job *entity.Job) (sources.Result, error)
}

// Extractor runs the two model stages.
type Extractor interface {
	ExtractOnly(ctx context.Context, job *entity.Job, text string) (extract.Extraction, error)
	Classify(ctx context.Context, job *entity.Job, rec *shape.Record) extract.Classification
}

// Evaluator scores a record. It never fails.
type Evaluator interface {
	Evaluate(ctx context.Context, rec *shape.Record, source string, category constants.Category) entity.EvaluationResult
}

// Processor coordinates the stages of an attempt.
type Processor struct {
	machine        *jobs.Machine
	sources        TextSource
	extractor      Extractor
	evaluator      Evaluator
	attemptTimeout time.Duration
	logger         *slog.Logger
}

func NewProcessor(machine *jobs.Machine, src TextSource, ex Extractor, ev Evaluator, attemptTimeout time.Duration, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		machine:        machine,
		sources:        src,
		extractor:      ex,
		evaluator:      ev,
		attemptTimeout: attemptTimeout,
		logger:         logger,
	}
}

// Machine exposes the state machine for read access.
func (p *Processor) Machine() *jobs.Machine { return p.machine }

// Create makes a job from spec and submits it. Sources are checked first so
// a rejected spec leaves no job behind.
func (p *Processor) Create(ctx context.Context, spec entity.JobSpec) (*entity.Job, error) {
	if err := sources.ValidateSources(spec.Sources); err != nil {
		return nil, err
	}
	job, err := p.machine.New(ctx, spec)
	if err != nil {
		return nil, err
	}
	return p.machine.Submit(ctx, job.ID)
}

// Process runs the first full attempt of a pending job. A failed attempt is
// still recorded and returned together with its cause.
func (p *Processor) Process(ctx context.Context, id uuid.UUID) (entity.Attempt, error) {
	return p.Reprocess(ctx, id, entity.ModelParams{})
}

// Reprocess runs a new full attempt, optionally with different model params.
// Earlier attempts are kept as they are.
func (p *Processor) Reprocess(ctx context.Context, id uuid.UUID, params entity.ModelParams) (entity.Attempt, error) {
	t, err := p.machine.Begin(ctx, id, constants.AttemptKindFull, params)
	if err != nil && t.AttemptID == uuid.Nil {
		return entity.Attempt{}, err
	}
	actx, cancel := p.detach(ctx)
	defer cancel()
	return p.runFull(actx, t)
}

// Reclassify reruns only the classification stage on a copy of the latest
// completed record and appends the result as a new attempt.
func (p *Processor) Reclassify(ctx context.Context, id uuid.UUID) (entity.Attempt, error) {
	t, err := p.machine.Begin(ctx, id, constants.AttemptKindReclassify, entity.ModelParams{})
	if err != nil && t.AttemptID == uuid.Nil {
		return entity.Attempt{}, err
	}
	actx, cancel := p.detach(ctx)
	defer cancel()
	return p.runReclassify(actx, t)
}

// detach keeps the attempt running when the caller goes away; the attempt
// timeout bounds it instead.
func (p *Processor) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	actx := context.WithoutCancel(ctx)
	if p.attemptTimeout > 0 {
		return context.WithTimeout(actx, p.attemptTimeout)
	}
	return actx, func() {}
}

func (p *Processor) snapshot(t jobs.Ticket) (*entity.Job, error) {
	job, err := p.machine.Get(t.JobID)
	if err != nil {
		return nil, err
	}
	job.Params = t.Params
	return job, nil
}

func (p *Processor) runFull(ctx context.Context, t jobs.Ticket) (entity.Attempt, error) {
	start := time.Now()
	job, err := p.snapshot(t)
	if err != nil {
		return p.fail(ctx, t, err, jobs.Result{})
	}
	p.logger.Info("pipeline.attempt.started",
		"job_id", job.ID, "seq", t.Seq, "category", job.Category,
		"provider", t.Params.Provider, "model", t.Params.Model)

	src, err := p.sources.Consolidate(ctx, job)
	if err != nil {
		return p.fail(ctx, t, err, jobs.Result{Warnings: src.Warnings})
	}
	partial := jobs.Result{InputText: src.Text, Warnings: src.Warnings}

	ex, err := p.extractor.ExtractOnly(ctx, job, src.Text)
	partial.RawResponse = ex.RawResponse
	if err != nil {
		return p.fail(ctx, t, err, partial)
	}
	partial.Warnings = append(partial.Warnings, ex.Warnings...)

	a, err := p.finishRecord(ctx, t, job, ex.Record, partial)
	if err == nil {
		p.logger.Info("pipeline.attempt.completed",
			"job_id", job.ID, "seq", a.Seq, "hs_code", a.HSCode,
			"composite", a.Evaluation.Composite,
			"warnings", len(a.Warnings),
			"elapsed_ms", time.Since(start).Milliseconds())
	}
	return a, err
}

func (p *Processor) runReclassify(ctx context.Context, t jobs.Ticket) (entity.Attempt, error) {
	start := time.Now()
	job, err := p.snapshot(t)
	if err != nil {
		return p.fail(ctx, t, err, jobs.Result{})
	}
	prev, ok := job.LastCompleted()
	if !ok {
		return p.fail(ctx, t, common.NewAppError(common.CodeState, "no completed record to reclassify", common.ErrConflict), jobs.Result{})
	}
	rec, err := shape.Parse(prev.Record)
	if err != nil {
		return p.fail(ctx, t, common.NewAppError(common.CodeShape, "stored record cannot be read", err), jobs.Result{})
	}
	partial := jobs.Result{InputText: prev.InputText, RawResponse: prev.RawResponse}

	a, err := p.finishRecord(ctx, t, job, rec.Clone(), partial)
	if err == nil {
		p.logger.Info("pipeline.reclassify.completed",
			"job_id", job.ID, "seq", a.Seq, "previous_seq", prev.Seq,
			"hs_code", a.HSCode, "previous_hs_code", prev.HSCode,
			"elapsed_ms", time.Since(start).Milliseconds())
	}
	return a, err
}

// finishRecord classifies rec, evaluates it and completes the attempt.
func (p *Processor) finishRecord(ctx context.Context, t jobs.Ticket, job *entity.Job, rec *shape.Record, partial jobs.Result) (entity.Attempt, error) {
	cl := p.extractor.Classify(ctx, job, rec)
	partial.HSCode = cl.Code
	partial.ClassificationWarning = cl.Warning
	if cl.Warning != "" {
		partial.Warnings = append(partial.Warnings, "classification: "+cl.Warning)
	}

	record, err := json.Marshal(rec)
	if err != nil {
		return p.fail(ctx, t, fmt.Errorf("marshal record: %w", err), partial)
	}
	partial.Record = record

	ev := p.evaluator.Evaluate(ctx, rec, partial.InputText, job.Category)
	partial.Evaluation = &ev

	a, err := p.machine.Complete(ctx, t, partial)
	if err != nil && a.ID == uuid.Nil {
		return p.fail(ctx, t, err, partial)
	}
	return a, err
}

func (p *Processor) fail(ctx context.Context, t jobs.Ticket, cause error, partial jobs.Result) (entity.Attempt, error) {
	code := common.ErrorCode(cause)
	if code == "" {
		code = classify(cause)
	}
	a, err := p.machine.Fail(ctx, t, cause.Error(), code, partial)
	p.logger.Error("pipeline.attempt.failed", "job_id", t.JobID, "seq", t.Seq, "code", code, "error", cause)
	if err != nil {
		return a, errors.Join(cause, err)
	}
	return a, cause
}

func classify(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, common.ErrTransport):
		return common.CodeTransport
	case errors.Is(err, common.ErrParse):
		return common.CodeParse
	case errors.Is(err, common.ErrShape):
		return common.CodeShape
	default:
		return "INTERNAL_ERROR"
	}
}
