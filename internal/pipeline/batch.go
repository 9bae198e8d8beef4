package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/catalog-extractor/constants"
	"github.com/joseph-ayodele/catalog-extractor/internal/batch"
	"github.com/joseph-ayodele/catalog-extractor/internal/common"
	"github.com/joseph-ayodele/catalog-extractor/internal/entity"
)

// Row outcome statuses.
const (
	RowCompleted = "completed"
	RowFailed    = "failed"
	RowRejected  = "rejected"
	RowCancelled = "cancelled"
	RowQueued    = "queued"
)

// RowOutcome is the result of one spreadsheet row.
type RowOutcome struct {
	Row       int       `json:"row"`
	JobID     uuid.UUID `json:"job_id,omitempty"`
	Status    string    `json:"status"`
	HSCode    string    `json:"hs_code,omitempty"`
	Composite float64   `json:"composite,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// BatchReport summarizes a batch run.
type BatchReport struct {
	RunID     string       `json:"run_id"`
	Created   int          `json:"created"`
	Skipped   int          `json:"skipped"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Cancelled int          `json:"cancelled"`
	Warnings  []string     `json:"warnings,omitempty"`
	Outcomes  []RowOutcome `json:"outcomes"`
}

// BatchRunner expands a spreadsheet and processes one job per row.
type BatchRunner struct {
	expander *batch.Expander
	proc     *Processor
	logger   *slog.Logger
}

func NewBatchRunner(expander *batch.Expander, proc *Processor, logger *slog.Logger) *BatchRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchRunner{expander: expander, proc: proc, logger: logger}
}

// Run processes the rows sequentially in sheet order. Expansion errors
// create no jobs. A failing row is recorded and the batch moves on; a
// cancelled ctx stops rows that have not started yet.
func (b *BatchRunner) Run(ctx context.Context, template entity.JobSpec, srcs []entity.Source) (BatchReport, error) {
	start := time.Now()
	runID := common.RunIDFromContext(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = common.WithRunID(ctx, runID)
	}

	exp, err := b.expander.Expand(ctx, template, srcs)
	if err != nil {
		return BatchReport{RunID: runID}, err
	}
	rep := BatchReport{
		RunID:    runID,
		Created:  exp.Created,
		Skipped:  exp.Skipped,
		Warnings: exp.Warnings,
		Outcomes: make([]RowOutcome, 0, len(exp.Specs)),
	}
	b.logger.Info("pipeline.batch.started", "run_id", runID, "rows", exp.Created, "skipped", exp.Skipped)

	for i, spec := range exp.Specs {
		out := RowOutcome{Row: exp.Rows[i]}
		if ctx.Err() != nil {
			out.Status = RowCancelled
			rep.Cancelled++
			rep.Outcomes = append(rep.Outcomes, out)
			continue
		}

		job, err := b.proc.Create(ctx, spec)
		if err != nil {
			out.Status, out.Error = RowRejected, err.Error()
			rep.Failed++
			rep.Outcomes = append(rep.Outcomes, out)
			b.logger.Warn("pipeline.batch.row_rejected", "run_id", runID, "row", out.Row, "error", err)
			continue
		}
		out.JobID = job.ID

		a, err := b.proc.Process(ctx, job.ID)
		switch {
		case err == nil && a.Status == constants.AttemptStatusCompleted:
			out.Status = RowCompleted
			out.HSCode = a.HSCode
			if a.Evaluation != nil {
				out.Composite = a.Evaluation.Composite
			}
			rep.Succeeded++
		default:
			out.Status = RowFailed
			if err != nil {
				out.Error = err.Error()
			}
			rep.Failed++
		}
		rep.Outcomes = append(rep.Outcomes, out)
	}

	b.logger.Info("pipeline.batch.finished",
		"run_id", runID,
		"succeeded", rep.Succeeded,
		"failed", rep.Failed,
		"cancelled", rep.Cancelled,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return rep, nil
}

// Plan expands the sheet and creates one pending job per row without
// processing them. The daemon hands the created jobs to its queue.
func (b *BatchRunner) Plan(ctx context.Context, template entity.JobSpec, srcs []entity.Source) (BatchReport, error) {
	runID := common.RunIDFromContext(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = common.WithRunID(ctx, runID)
	}
	exp, err := b.expander.Expand(ctx, template, srcs)
	if err != nil {
		return BatchReport{RunID: runID}, err
	}
	rep := BatchReport{
		RunID:    runID,
		Created:  exp.Created,
		Skipped:  exp.Skipped,
		Warnings: exp.Warnings,
		Outcomes: make([]RowOutcome, 0, len(exp.Specs)),
	}
	for i, spec := range exp.Specs {
		out := RowOutcome{Row: exp.Rows[i], Status: RowQueued}
		job, err := b.proc.Create(ctx, spec)
		if err != nil {
			out.Status, out.Error = RowRejected, err.Error()
			rep.Failed++
		} else {
			out.JobID = job.ID
		}
		rep.Outcomes = append(rep.Outcomes, out)
	}
	b.logger.Info("pipeline.batch.planned", "run_id", runID, "rows", exp.Created, "rejected", rep.Failed)
	return rep, nil
}
