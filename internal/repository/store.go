package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/catalog-extractor/constants"
	"github.com/joseph-ayodele/catalog-extractor/internal/common"
	"github.com/joseph-ayodele/catalog-extractor/internal/entity"
)

// AuditRepository is the durable audit trail of jobs, attempts and evaluations.
// It satisfies jobs.Recorder.
type AuditRepository interface {
	SaveJob(ctx context.Context, job *entity.Job) error
	AppendAttempt(ctx context.Context, a entity.Attempt) error
	GetJob(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*entity.Job, error)
}

// JobFilter narrows ListJobs. Zero values match everything.
type JobFilter struct {
	Status   constants.JobStatus
	Category constants.Category
	Since    time.Time
}

type auditRepo struct {
	db *DB
}

func NewAuditRepository(db *DB) AuditRepository {
	return &auditRepo{db: db}
}

func (r *auditRepo) builder() *entsql.DialectBuilder { return entsql.Dialect(r.db.dialect) }

func (r *auditRepo) SaveJob(ctx context.Context, job *entity.Job) error {
	srcs, err := json.Marshal(job.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}
	params, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}

	q, args := r.builder().Insert(jobsTable.Name).
		Columns("id", "category", "qualifier", "sources", "params", "status",
			"user_id", "username", "user_name", "created_at", "updated_at").
		Values(job.ID.String(), string(job.Category), job.Qualifier, string(srcs), string(params), string(job.Status),
			job.CreatedBy.ID, job.CreatedBy.Username, job.CreatedBy.Name, job.CreatedAt.UTC(), job.UpdatedAt.UTC()).
		OnConflict(
			entsql.ConflictColumns("id"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.SetExcluded("status")
				u.SetExcluded("updated_at")
				u.SetExcluded("sources")
				u.SetExcluded("params")
			}),
		).
		Query()
	if err := r.db.drv.Exec(ctx, q, args, nil); err != nil {
		r.db.logger.Error("jobs upsert failed", "job_id", job.ID, "error", err)
		return fmt.Errorf("%w: save job: %v", common.ErrDatabase, err)
	}
	r.db.logger.Debug("jobs upserted", "job_id", job.ID, "status", job.Status)
	return nil
}

// AppendAttempt inserts the attempt and its evaluation in one transaction.
func (r *auditRepo) AppendAttempt(ctx context.Context, a entity.Attempt) error {
	params, err := json.Marshal(a.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	warnings, err := json.Marshal(nonNil(a.Warnings))
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}
	var record any
	if len(a.Record) > 0 {
		record = string(a.Record)
	}

	tx, err := r.db.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", common.ErrDatabase, err)
	}

	q, args := r.builder().Insert(attemptsTable.Name).
		Columns("id", "job_id", "seq", "kind", "status", "params", "record", "raw_response", "input_text",
			"hs_code", "classification_warning", "warnings", "error", "error_code", "elapsed_ms",
			"user_id", "username", "user_name", "run_id", "started_at", "finished_at").
		Values(a.ID.String(), a.JobID.String(), a.Seq, string(a.Kind), string(a.Status), string(params), record,
			a.RawResponse, a.InputText, a.HSCode, a.ClassificationWarning, string(warnings), a.Error, a.ErrorCode,
			a.Elapsed.Milliseconds(), a.By.ID, a.By.Username, a.By.Name, a.RunID, a.StartedAt.UTC(), a.FinishedAt.UTC()).
		Query()
	if err := tx.Exec(ctx, q, args, nil); err != nil {
		return r.rollback(tx, a, err)
	}

	if ev := a.Evaluation; ev != nil {
		q, args = r.builder().Insert(evaluationsTable.Name).
			Columns("attempt_id", "job_id", "category",
				"structure", "structure_reason", "structure_method",
				"content", "content_reason", "content_method",
				"translation", "translation_reason", "translation_method",
				"composite", "created_at").
			Values(a.ID.String(), a.JobID.String(), r.categoryOf(ctx, tx, a.JobID),
				ev.Structure.Score, ev.Structure.Reason, ev.Structure.Method,
				ev.Content.Score, ev.Content.Reason, ev.Content.Method,
				ev.Translation.Score, ev.Translation.Reason, ev.Translation.Method,
				ev.Composite, ev.CreatedAt.UTC()).
			Query()
		if err := tx.Exec(ctx, q, args, nil); err != nil {
			return r.rollback(tx, a, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", common.ErrDatabase, err)
	}
	r.db.logger.Info("attempt recorded", "job_id", a.JobID, "attempt_id", a.ID, "seq", a.Seq, "status", a.Status)
	return nil
}

func (r *auditRepo) rollback(tx dialect.Tx, a entity.Attempt, cause error) error {
	if err := tx.Rollback(); err != nil {
		r.db.logger.Warn("rollback failed", "error", err)
	}
	r.db.logger.Error("attempt insert failed", "job_id", a.JobID, "seq", a.Seq, "error", cause)
	return fmt.Errorf("%w: append attempt: %v", common.ErrDatabase, cause)
}

func (r *auditRepo) categoryOf(ctx context.Context, q dialect.ExecQuerier, jobID uuid.UUID) string {
	query, args := r.builder().Select("category").From(entsql.Table(jobsTable.Name)).
		Where(entsql.EQ("id", jobID.String())).Query()
	rows := &entsql.Rows{}
	if err := q.Query(ctx, query, args, rows); err != nil {
		return ""
	}
	defer rows.Close()
	var c string
	if rows.Next() {
		_ = rows.Scan(&c)
	}
	return c
}

func (r *auditRepo) GetJob(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	jobs, err := r.listJobs(ctx, entsql.EQ("id", id.String()))
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, common.NewAppError(common.CodeNotFound, fmt.Sprintf("job %s", id), common.ErrNotFound)
	}
	return jobs[0], nil
}

// ListJobs returns matching jobs in creation order with their attempts and evaluations.
func (r *auditRepo) ListJobs(ctx context.Context, filter JobFilter) ([]*entity.Job, error) {
	var preds []*entsql.Predicate
	if filter.Status != "" {
		preds = append(preds, entsql.EQ("status", string(filter.Status)))
	}
	if filter.Category != "" {
		preds = append(preds, entsql.EQ("category", string(filter.Category)))
	}
	if !filter.Since.IsZero() {
		preds = append(preds, entsql.GTE("created_at", filter.Since.UTC()))
	}
	return r.listJobs(ctx, preds...)
}

func (r *auditRepo) listJobs(ctx context.Context, preds ...*entsql.Predicate) ([]*entity.Job, error) {
	sel := r.builder().Select("id", "category", "qualifier", "sources", "params", "status",
		"user_id", "username", "user_name", "created_at", "updated_at").
		From(entsql.Table(jobsTable.Name))
	if len(preds) > 0 {
		sel = sel.Where(entsql.And(preds...))
	}
	q, args := sel.OrderBy("created_at", "id").Query()

	rows := &entsql.Rows{}
	if err := r.db.drv.Query(ctx, q, args, rows); err != nil {
		return nil, fmt.Errorf("%w: list jobs: %v", common.ErrDatabase, err)
	}
	var out []*entity.Job
	byID := map[uuid.UUID]*entity.Job{}
	for rows.Next() {
		var (
			id, category, status string
			srcs, params         []byte
			j                    entity.Job
		)
		if err := rows.Scan(&id, &category, &j.Qualifier, &srcs, &params, &status,
			&j.CreatedBy.ID, &j.CreatedBy.Username, &j.CreatedBy.Name, &j.CreatedAt, &j.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: scan job: %v", common.ErrDatabase, err)
		}
		j.ID, _ = uuid.Parse(id)
		j.Category = constants.Category(category)
		j.Status = constants.JobStatus(status)
		j.CreatedAt, j.UpdatedAt = j.CreatedAt.UTC(), j.UpdatedAt.UTC()
		if err := json.Unmarshal(srcs, &j.Sources); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode sources of job %s: %w", id, err)
		}
		if err := json.Unmarshal(params, &j.Params); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode params of job %s: %w", id, err)
		}
		j.Attempts = []entity.Attempt{}
		job := j
		out = append(out, &job)
		byID[job.ID] = &job
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("%w: list jobs: %v", common.ErrDatabase, err)
	}
	rows.Close()
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]any, 0, len(out))
	for _, j := range out {
		ids = append(ids, j.ID.String())
	}
	attempts, err := r.attempts(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, a := range attempts {
		if j, ok := byID[a.JobID]; ok {
			j.Attempts = append(j.Attempts, a)
		}
	}
	return out, nil
}

func (r *auditRepo) attempts(ctx context.Context, jobIDs []any) ([]entity.Attempt, error) {
	q, args := r.builder().Select("id", "job_id", "seq", "kind", "status", "params", "record", "raw_response",
		"input_text", "hs_code", "classification_warning", "warnings", "error", "error_code", "elapsed_ms",
		"user_id", "username", "user_name", "run_id", "started_at", "finished_at").
		From(entsql.Table(attemptsTable.Name)).
		Where(entsql.In("job_id", jobIDs...)).
		OrderBy("job_id", "seq").
		Query()

	rows := &entsql.Rows{}
	if err := r.db.drv.Query(ctx, q, args, rows); err != nil {
		return nil, fmt.Errorf("%w: list attempts: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []entity.Attempt
	for rows.Next() {
		var (
			id, jobID, kind, status string
			params, record, warns   []byte
			elapsedMS               int64
			a                       entity.Attempt
		)
		if err := rows.Scan(&id, &jobID, &a.Seq, &kind, &status, &params, &record, &a.RawResponse,
			&a.InputText, &a.HSCode, &a.ClassificationWarning, &warns, &a.Error, &a.ErrorCode, &elapsedMS,
			&a.By.ID, &a.By.Username, &a.By.Name, &a.RunID, &a.StartedAt, &a.FinishedAt); err != nil {
			return nil, fmt.Errorf("%w: scan attempt: %v", common.ErrDatabase, err)
		}
		a.ID, _ = uuid.Parse(id)
		a.JobID, _ = uuid.Parse(jobID)
		a.Kind = constants.AttemptKind(kind)
		a.Status = constants.AttemptStatus(status)
		a.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		a.StartedAt, a.FinishedAt = a.StartedAt.UTC(), a.FinishedAt.UTC()
		if len(record) > 0 {
			a.Record = json.RawMessage(record)
		}
		if err := json.Unmarshal(params, &a.Params); err != nil {
			return nil, fmt.Errorf("decode params of attempt %s: %w", id, err)
		}
		if len(warns) > 0 {
			if err := json.Unmarshal(warns, &a.Warnings); err != nil {
				return nil, fmt.Errorf("decode warnings of attempt %s: %w", id, err)
			}
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list attempts: %v", common.ErrDatabase, err)
	}
	rows.Close()

	if len(out) == 0 {
		return out, nil
	}
	evals, err := r.evaluations(ctx, jobIDs)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if ev, ok := evals[out[i].ID]; ok {
			out[i].Evaluation = ev
		}
	}
	return out, nil
}

func (r *auditRepo) evaluations(ctx context.Context, jobIDs []any) (map[uuid.UUID]*entity.EvaluationResult, error) {
	q, args := r.builder().Select("attempt_id",
		"structure", "structure_reason", "structure_method",
		"content", "content_reason", "content_method",
		"translation", "translation_reason", "translation_method",
		"composite", "created_at").
		From(entsql.Table(evaluationsTable.Name)).
		Where(entsql.In("job_id", jobIDs...)).
		Query()

	rows := &entsql.Rows{}
	if err := r.db.drv.Query(ctx, q, args, rows); err != nil {
		return nil, fmt.Errorf("%w: list evaluations: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]*entity.EvaluationResult)
	for rows.Next() {
		var (
			id string
			ev entity.EvaluationResult
		)
		if err := rows.Scan(&id,
			&ev.Structure.Score, &ev.Structure.Reason, &ev.Structure.Method,
			&ev.Content.Score, &ev.Content.Reason, &ev.Content.Method,
			&ev.Translation.Score, &ev.Translation.Reason, &ev.Translation.Method,
			&ev.Composite, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan evaluation: %v", common.ErrDatabase, err)
		}
		ev.AttemptID, _ = uuid.Parse(id)
		ev.CreatedAt = ev.CreatedAt.UTC()
		out[ev.AttemptID] = &ev
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
