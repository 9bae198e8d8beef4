// Package server exposes the pipeline as a local daemon: a chi HTTP API that
// queues attempts for a single worker, and a gRPC health service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/catalog-extractor/constants"
	"github.com/joseph-ayodele/catalog-extractor/internal/async"
	"github.com/joseph-ayodele/catalog-extractor/internal/common"
	"github.com/joseph-ayodele/catalog-extractor/internal/entity"
	"github.com/joseph-ayodele/catalog-extractor/internal/export"
	"github.com/joseph-ayodele/catalog-extractor/internal/pipeline"
	"github.com/joseph-ayodele/catalog-extractor/internal/repository"
)

const maxBodySize = 1 << 20

// Attribution headers. Missing headers attribute the request to the system user.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUsername = "X-Username"
	HeaderUserName = "X-User-Name"
)

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	HealthCheck(ctx context.Context, timeout time.Duration) error
}

type Deps struct {
	Processor *pipeline.Processor
	Batch     *pipeline.BatchRunner
	Queue     async.Queue
	Export    *export.Service
	DB        HealthChecker // optional
	Logger    *slog.Logger
}

type api struct {
	Deps
}

// NewHandler builds the HTTP API.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	a := &api{Deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(a.requestContext)

	r.Get("/healthz", a.handleHealth)
	r.Get("/export.xlsx", a.handleExport)
	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", a.handleCreateJob)
		r.Get("/", a.handleListJobs)
		r.Post("/batch", a.handleBatch)
		r.Get("/{id}", a.handleGetJob)
		r.Post("/{id}/reprocess", a.handleReprocess)
		r.Post("/{id}/reclassify", a.handleReclassify)
	})
	return r
}

// requestContext attaches the request id and attribution and logs the request.
func (a *api) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := common.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		if u := strings.TrimSpace(r.Header.Get(HeaderUsername)); u != "" {
			ctx = common.WithUser(ctx, common.User{
				ID:       strings.TrimSpace(r.Header.Get(HeaderUserID)),
				Username: u,
				Name:     strings.TrimSpace(r.Header.Get(HeaderUserName)),
			})
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))
		a.Logger.Info("http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", common.RequestIDFromContext(ctx),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func jobID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

func (a *api) enqueue(r *http.Request, t async.Task) error {
	t.User = common.UserFromContext(r.Context())
	t.RunID = common.RunIDFromContext(r.Context())
	return a.Queue.Enqueue(r.Context(), t)
}

func (a *api) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var spec entity.JobSpec
	if err := decodeBody(w, r, &spec); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	job, err := a.Processor.Create(r.Context(), spec)
	if err != nil && job == nil {
		writeError(w, err)
		return
	}
	if err != nil {
		a.Logger.Warn("http.jobs.create.persist_failed", "job_id", job.ID, "error", err)
	}
	if err := a.enqueue(r, async.Task{JobID: job.ID, Kind: constants.AttemptKindFull}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

type batchRequest struct {
	Template entity.JobSpec  `json:"template"`
	Sources  []entity.Source `json:"sources"`
}

func (a *api) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeBody(w, r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	ctx := r.Context()
	rep, err := a.Batch.Plan(ctx, req.Template, req.Sources)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx = common.WithRunID(ctx, rep.RunID)
	for i, out := range rep.Outcomes {
		if out.Status != pipeline.RowQueued {
			continue
		}
		if err := a.enqueue(r.WithContext(ctx), async.Task{JobID: out.JobID, Kind: constants.AttemptKindFull}); err != nil {
			rep.Outcomes[i].Status, rep.Outcomes[i].Error = pipeline.RowRejected, err.Error()
			rep.Failed++
		}
	}
	writeJSON(w, http.StatusAccepted, rep)
}

// jobSummary is the list view of a job.
type jobSummary struct {
	ID        uuid.UUID           `json:"id"`
	Category  constants.Category  `json:"category"`
	Qualifier string              `json:"qualifier,omitempty"`
	Status    constants.JobStatus `json:"status"`
	Attempts  int                 `json:"attempts"`
	HSCode    string              `json:"hs_code,omitempty"`
	Composite *float64            `json:"composite,omitempty"`
	LastError string              `json:"last_error,omitempty"`
	CreatedBy string              `json:"created_by"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

func summarize(j *entity.Job) jobSummary {
	s := jobSummary{
		ID:        j.ID,
		Category:  j.Category,
		Qualifier: j.Qualifier,
		Status:    j.Status,
		Attempts:  len(j.Attempts),
		CreatedBy: j.CreatedBy.Username,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
	if last, ok := j.LastAttempt(); ok {
		s.HSCode = last.HSCode
		s.LastError = last.Error
		if last.Evaluation != nil {
			c := last.Evaluation.Composite
			s.Composite = &c
		}
	}
	return s
}

func (a *api) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var statuses []constants.JobStatus
	for _, raw := range r.URL.Query()["status"] {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if !slices.Contains(constants.JobStatuses, s) {
				httpError(w, http.StatusBadRequest, "unknown status %q", s)
				return
			}
			statuses = append(statuses, constants.JobStatus(s))
		}
	}
	list := a.Processor.Machine().List(statuses...)
	out := make([]jobSummary, 0, len(list))
	for _, j := range list {
		out = append(out, summarize(j))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

func (a *api) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		httpError(w, http.StatusBadRequest, "id must be a UUID")
		return
	}
	job, err := a.Processor.Machine().Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type reprocessRequest struct {
	Params entity.ModelParams `json:"params"`
}

func (a *api) handleReprocess(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		httpError(w, http.StatusBadRequest, "id must be a UUID")
		return
	}
	var req reprocessRequest
	if err := decodeBody(w, r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	if _, err := a.runnable(id, constants.AttemptKindFull); err != nil {
		writeError(w, err)
		return
	}
	if err := a.enqueue(r, async.Task{JobID: id, Kind: constants.AttemptKindFull, Reprocess: true, Params: req.Params}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"job_id": id, "kind": constants.AttemptKindFull})
}

func (a *api) handleReclassify(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		httpError(w, http.StatusBadRequest, "id must be a UUID")
		return
	}
	if _, err := a.runnable(id, constants.AttemptKindReclassify); err != nil {
		writeError(w, err)
		return
	}
	if err := a.enqueue(r, async.Task{JobID: id, Kind: constants.AttemptKindReclassify}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"job_id": id, "kind": constants.AttemptKindReclassify})
}

// runnable rejects requests the worker would refuse anyway, so the caller
// hears about them now. The state machine still has the final say.
func (a *api) runnable(id uuid.UUID, kind constants.AttemptKind) (*entity.Job, error) {
	job, err := a.Processor.Machine().Get(id)
	if err != nil {
		return nil, err
	}
	switch job.Status {
	case constants.JobStatusPending, constants.JobStatusCompleted, constants.JobStatusFailed:
	default:
		return nil, common.NewAppError(common.CodeState, fmt.Sprintf("job is %s", job.Status), common.ErrConflict)
	}
	if kind == constants.AttemptKindReclassify {
		if _, ok := job.LastCompleted(); !ok {
			return nil, common.NewAppError(common.CodeState,
				"reclassification needs a completed attempt with a record", common.ErrConflict)
		}
	}
	return job, nil
}

func (a *api) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter repository.JobFilter
	if s := q.Get("status"); s != "" {
		if !slices.Contains(constants.JobStatuses, s) {
			httpError(w, http.StatusBadRequest, "unknown status %q", s)
			return
		}
		filter.Status = constants.JobStatus(s)
	}
	if c := q.Get("category"); c != "" {
		cat, ok := constants.Canonicalize(c)
		if !ok {
			httpError(w, http.StatusBadRequest, "unknown category %q", c)
			return
		}
		filter.Category = cat
	}
	if s := q.Get("since"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			httpError(w, http.StatusBadRequest, "since must be YYYY-MM-DD")
			return
		}
		filter.Since = t
	}

	xlsx, err := a.Export.ExportAttemptsXLSX(r.Context(), filter)
	if err != nil {
		a.Logger.Error("export.xlsx.failed", "error", err)
		httpError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="attempts-%s.xlsx"`, time.Now().UTC().Format("20060102-150405")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(xlsx)
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if d, ok := a.Queue.(interface{ Depth() int }); ok {
		body["queue_depth"] = d.Depth()
	}
	if a.DB != nil {
		if err := a.DB.HealthCheck(r.Context(), 2*time.Second); err != nil {
			body["status"] = "degraded"
			body["database"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
		body["database"] = "ok"
	}
	writeJSON(w, http.StatusOK, body)
}
