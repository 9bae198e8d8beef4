// Package jobs owns the job lifecycle: creation, submission, at most one
// in-flight attempt per job, and the append-only attempt history.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/catalog-extractor/constants"
	"github.com/joseph-ayodele/catalog-extractor/internal/catalog"
	"github.com/joseph-ayodele/catalog-extractor/internal/common"
	"github.com/joseph-ayodele/catalog-extractor/internal/entity"
	"github.com/joseph-ayodele/catalog-extractor/internal/sources"
)

// ErrAttemptInFlight is returned by Begin while another attempt of the same job runs.
var ErrAttemptInFlight = errors.New("attempt already in flight")

// Recorder persists jobs and appended attempts. The repository implements it.
type Recorder interface {
	SaveJob(ctx context.Context, job *entity.Job) error
	AppendAttempt(ctx context.Context, a entity.Attempt) error
}

// Ticket identifies the in-flight attempt handed out by Begin.
type Ticket struct {
	JobID     uuid.UUID
	AttemptID uuid.UUID
	Seq       int
	Kind      constants.AttemptKind
	Params    entity.ModelParams
	By        common.User
	RunID     string
	StartedAt time.Time
}

// Result is what an attempt produced. Complete needs Record and Evaluation;
// Fail keeps whatever partial data is set.
type Result struct {
	Record                json.RawMessage
	RawResponse           string
	InputText             string
	HSCode                string
	ClassificationWarning string
	Warnings              []string
	Evaluation            *entity.EvaluationResult
}

type Machine struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]*entity.Job
	order    []uuid.UUID
	inflight map[uuid.UUID]Ticket
	last     time.Time

	registry *catalog.Registry
	recorder Recorder
	now      func() time.Time
	logger   *slog.Logger
}

type Option func(*Machine)

// WithRecorder persists every transition.
func WithRecorder(r Recorder) Option {
	return func(m *Machine) { m.recorder = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

func NewMachine(registry *catalog.Registry, logger *slog.Logger, opts ...Option) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Machine{
		jobs:     make(map[uuid.UUID]*entity.Job),
		inflight: make(map[uuid.UUID]Ticket),
		registry: registry,
		now:      time.Now,
		logger:   logger,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// stamp returns a strictly increasing UTC timestamp with microsecond precision.
func (m *Machine) stamp() time.Time {
	t := m.now().UTC().Truncate(time.Microsecond)
	if !t.After(m.last) {
		t = m.last.Add(time.Microsecond)
	}
	m.last = t
	return t
}

// New validates the category and qualifier and creates an unsubmitted job.
// Nothing is created when validation fails.
func (m *Machine) New(ctx context.Context, spec entity.JobSpec) (*entity.Job, error) {
	cat, ok := constants.Canonicalize(spec.Category)
	if !ok {
		return nil, common.ConfigError("unknown category %q (want one of %s)", spec.Category, strings.Join(constants.AsStringSlice(), ", "))
	}
	if _, ok := m.registry.Lookup(cat); !ok {
		return nil, common.ConfigError("category %q is not configured", cat)
	}
	qualifier := strings.TrimSpace(spec.Qualifier)
	if cat.RequiresQualifier() && qualifier == "" {
		return nil, common.ConfigError("category %q requires the base product it qualifies", cat)
	}
	if !cat.RequiresQualifier() {
		qualifier = ""
	}

	srcs := make([]entity.Source, len(spec.Sources))
	for i, s := range spec.Sources {
		srcs[i] = s.Clone()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.stamp()
	job := &entity.Job{
		ID:        uuid.New(),
		Category:  cat,
		Qualifier: qualifier,
		Sources:   srcs,
		Params:    spec.Params,
		Status:    constants.JobStatusUnsubmitted,
		CreatedBy: common.UserFromContext(ctx),
		CreatedAt: now,
		UpdatedAt: now,
		Attempts:  []entity.Attempt{},
	}
	m.jobs[job.ID] = job
	m.order = append(m.order, job.ID)
	m.logger.Info("jobs.created", "job_id", job.ID, "category", cat, "sources", len(srcs), "by", job.CreatedBy.Username)
	return job.Clone(), m.persistJob(ctx, job)
}

// Submit validates the job's sources and moves it unsubmitted -> pending.
func (m *Machine) Submit(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.get(id)
	if err != nil {
		return nil, err
	}
	if job.Status != constants.JobStatusUnsubmitted {
		return nil, stateError("submit", job.Status)
	}
	if err := sources.ValidateSources(job.Sources); err != nil {
		return nil, err
	}
	job.Status = constants.JobStatusPending
	job.UpdatedAt = m.stamp()
	m.logger.Info("jobs.submitted", "job_id", id)
	return job.Clone(), m.persistJob(ctx, job)
}

// Begin starts an attempt and moves the job to processing. A full attempt
// runs from pending, completed or failed; a reclassify attempt also needs a
// completed attempt with a record. Zero params fall back to the job's own.
func (m *Machine) Begin(ctx context.Context, id uuid.UUID, kind constants.AttemptKind, params entity.ModelParams) (Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.get(id)
	if err != nil {
		return Ticket{}, err
	}
	if _, busy := m.inflight[id]; busy || job.Status == constants.JobStatusProcessing {
		return Ticket{}, common.NewAppError(common.CodeState, fmt.Sprintf("job %s", id), ErrAttemptInFlight)
	}
	switch job.Status {
	case constants.JobStatusPending, constants.JobStatusCompleted, constants.JobStatusFailed:
	default:
		return Ticket{}, stateError("begin an attempt on", job.Status)
	}
	switch kind {
	case constants.AttemptKindFull:
	case constants.AttemptKindReclassify:
		if _, ok := job.LastCompleted(); !ok {
			return Ticket{}, common.NewAppError(common.CodeState,
				"reclassification needs a completed attempt with a record", common.ErrConflict)
		}
	default:
		return Ticket{}, common.ConfigError("unknown attempt kind %q", kind)
	}
	if params == (entity.ModelParams{}) {
		params = job.Params
	}

	t := Ticket{
		JobID:     id,
		AttemptID: uuid.New(),
		Seq:       len(job.Attempts) + 1,
		Kind:      kind,
		Params:    params,
		By:        common.UserFromContext(ctx),
		RunID:     common.RunIDFromContext(ctx),
		StartedAt: m.stamp(),
	}
	m.inflight[id] = t
	job.InFlight = &entity.Attempt{
		ID:        t.AttemptID,
		JobID:     id,
		Seq:       t.Seq,
		Kind:      kind,
		Params:    params,
		Status:    constants.AttemptStatusProcessing,
		By:        t.By,
		RunID:     t.RunID,
		StartedAt: t.StartedAt,
	}
	job.Status = constants.JobStatusProcessing
	job.UpdatedAt = t.StartedAt
	m.logger.Info("jobs.attempt.begin", "job_id", id, "attempt_id", t.AttemptID, "seq", t.Seq, "kind", kind)
	return t, m.persistJob(ctx, job)
}

// Complete appends a completed attempt and moves the job to completed.
func (m *Machine) Complete(ctx context.Context, t Ticket, res Result) (entity.Attempt, error) {
	if len(res.Record) == 0 {
		return entity.Attempt{}, common.NewAppError(common.CodeState, "completed attempt needs a record", common.ErrInvalidInput)
	}
	if res.Evaluation == nil {
		return entity.Attempt{}, common.NewAppError(common.CodeState, "completed attempt needs an evaluation", common.ErrInvalidInput)
	}
	return m.finish(ctx, t, constants.AttemptStatusCompleted, "", "", res)
}

// Fail appends a failed attempt carrying detail and moves the job to failed.
func (m *Machine) Fail(ctx context.Context, t Ticket, detail, code string, res Result) (entity.Attempt, error) {
	if strings.TrimSpace(detail) == "" {
		return entity.Attempt{}, common.NewAppError(common.CodeState, "failed attempt needs an error detail", common.ErrInvalidInput)
	}
	return m.finish(ctx, t, constants.AttemptStatusFailed, detail, code, res)
}

func (m *Machine) finish(ctx context.Context, t Ticket, status constants.AttemptStatus, detail, code string, res Result) (entity.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.get(t.JobID)
	if err != nil {
		return entity.Attempt{}, err
	}
	cur, ok := m.inflight[t.JobID]
	if !ok || cur.AttemptID != t.AttemptID {
		return entity.Attempt{}, common.NewAppError(common.CodeState,
			fmt.Sprintf("attempt %s is not in flight for job %s", t.AttemptID, t.JobID), common.ErrConflict)
	}

	finished := m.stamp()
	a := entity.Attempt{
		ID:                    t.AttemptID,
		JobID:                 t.JobID,
		Seq:                   t.Seq,
		Kind:                  t.Kind,
		Params:                t.Params,
		Status:                status,
		Record:                slices.Clone(res.Record),
		RawResponse:           res.RawResponse,
		InputText:             res.InputText,
		HSCode:                res.HSCode,
		ClassificationWarning: res.ClassificationWarning,
		Warnings:              slices.Clone(res.Warnings),
		Error:                 detail,
		ErrorCode:             code,
		Elapsed:               finished.Sub(t.StartedAt),
		By:                    t.By,
		RunID:                 t.RunID,
		StartedAt:             t.StartedAt,
		FinishedAt:            finished,
	}
	if res.Evaluation != nil {
		ev := *res.Evaluation
		ev.AttemptID = a.ID
		a.Evaluation = &ev
	}

	job.Attempts = append(job.Attempts, a)
	job.InFlight = nil
	delete(m.inflight, t.JobID)
	if status == constants.AttemptStatusCompleted {
		job.Status = constants.JobStatusCompleted
	} else {
		job.Status = constants.JobStatusFailed
	}
	job.UpdatedAt = finished

	if status == constants.AttemptStatusFailed {
		m.logger.Warn("jobs.attempt.failed", "job_id", t.JobID, "seq", t.Seq, "code", code, "error", detail)
	} else {
		m.logger.Info("jobs.attempt.completed", "job_id", t.JobID, "seq", t.Seq, "elapsed_ms", a.Elapsed.Milliseconds())
	}

	var perr error
	if m.recorder != nil {
		if err := m.recorder.AppendAttempt(ctx, a); err != nil {
			perr = m.persistError("append attempt", t.JobID, err)
		}
	}
	if err := m.persistJob(ctx, job); err != nil && perr == nil {
		perr = err
	}
	return a.Clone(), perr
}

// Get returns a deep copy of the job.
func (m *Machine) Get(id uuid.UUID) (*entity.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return job.Clone(), nil
}

// List returns deep copies in creation order, optionally filtered by status.
func (m *Machine) List(statuses ...constants.JobStatus) []*entity.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*entity.Job, 0, len(m.order))
	for _, id := range m.order {
		job := m.jobs[id]
		if len(statuses) > 0 && !slices.Contains(statuses, job.Status) {
			continue
		}
		out = append(out, job.Clone())
	}
	return out
}

// Load seeds the machine with previously persisted jobs. A job left in
// processing by an interrupted run gets the status of its last finished
// attempt back, or pending when it has none.
func (m *Machine) Load(jobs []*entity.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range jobs {
		if _, dup := m.jobs[j.ID]; dup {
			continue
		}
		job := j.Clone()
		job.InFlight = nil
		if job.Status == constants.JobStatusProcessing {
			job.Status = constants.JobStatusPending
			if last, ok := job.LastAttempt(); ok {
				job.Status = constants.JobStatusFailed
				if last.Status == constants.AttemptStatusCompleted {
					job.Status = constants.JobStatusCompleted
				}
			}
			m.logger.Warn("jobs.load.interrupted", "job_id", job.ID, "restored_status", job.Status)
		}
		for _, a := range job.Attempts {
			if a.FinishedAt.After(m.last) {
				m.last = a.FinishedAt
			}
		}
		if job.UpdatedAt.After(m.last) {
			m.last = job.UpdatedAt
		}
		m.jobs[job.ID] = job
		m.order = append(m.order, job.ID)
	}
}

func (m *Machine) get(id uuid.UUID) (*entity.Job, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, common.NewAppError(common.CodeNotFound, fmt.Sprintf("job %s", id), common.ErrNotFound)
	}
	return job, nil
}

func (m *Machine) persistJob(ctx context.Context, job *entity.Job) error {
	if m.recorder == nil {
		return nil
	}
	if err := m.recorder.SaveJob(ctx, job.Clone()); err != nil {
		return m.persistError("save job", job.ID, err)
	}
	return nil
}

func (m *Machine) persistError(op string, id uuid.UUID, err error) error {
	m.logger.Error("jobs.record.failed", "op", op, "job_id", id, "error", err)
	return common.NewAppError(common.CodePersisting, op, err)
}

func stateError(action string, status constants.JobStatus) error {
	return common.NewAppError(common.CodeState, fmt.Sprintf("cannot %s a job in status %s", action, status), common.ErrConflict)
}
