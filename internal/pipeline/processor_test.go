package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/catalog-extractor/constants"
	"github.com/joseph-ayodele/catalog-extractor/internal/batch"
	"github.com/joseph-ayodele/catalog-extractor/internal/catalog"
	"github.com/joseph-ayodele/catalog-extractor/internal/common"
	"github.com/joseph-ayodele/catalog-extractor/internal/entity"
	"github.com/joseph-ayodele/catalog-extractor/internal/evaluation"
	"github.com/joseph-ayodele/catalog-extractor/internal/extract"
	"github.com/joseph-ayodele/catalog-extractor/internal/jobs"
	"github.com/joseph-ayodele/catalog-extractor/internal/llm"
	"github.com/joseph-ayodele/catalog-extractor/internal/prompt"
	"github.com/joseph-ayodele/catalog-extractor/internal/shape"
	"github.com/joseph-ayodele/catalog-extractor/internal/sources"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

const productReply = `{"TitleEN": "Night Cream", "TitlePT": "Creme de Noite", "brand": "Lumen",
  "Subtypes": [{"EAN": "5601234567890", "ItemDescriptionEN": "50 ml", "ItemDescriptionPT": "50 ml"}]}`

// model is a scripted backend. Extraction prompts get extractReply unless
// they mention "BROKEN"; classification prompts get code.
type model struct {
	mu           sync.Mutex
	code         string
	extractCalls int
	classCalls   int
	onExtract    func()
}

func (m *model) Complete(ctx context.Context, req llm.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if strings.Contains(req.Prompt, "ALLOWED CODES:") {
		m.classCalls++
		return fmt.Sprintf(`{"hscode": %q, "reasoning": "cream"}`, m.code), nil
	}
	m.extractCalls++
	if m.onExtract != nil {
		m.onExtract()
	}
	if strings.Contains(req.Prompt, "BROKEN") {
		return "sorry, no JSON today", nil
	}
	return productReply, nil
}

type pages map[string]string

func (p pages) Fetch(_ context.Context, url string) (string, error) {
	text, ok := p[url]
	if !ok {
		return "", fmt.Errorf("%w: GET %s: status 404", common.ErrTransport, url)
	}
	return text, nil
}

type harness struct {
	proc    *Processor
	batch   *BatchRunner
	model   *model
	machine *jobs.Machine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	reg := catalog.Default()
	m := &model{code: "33049900"}
	loader := prompt.NewLoader(prompt.DefaultStore(), reg, discard)
	orch, err := extract.NewOrchestrator(m, loader, reg, extract.Config{ParseRetries: 1}, discard)
	require.NoError(t, err)

	sheets := sources.NewSpreadsheetReader(discard)
	web := pages{"https://shop.example.com/night-cream": "Lumen Night Cream 50 ml EAN 5601234567890"}
	cons := sources.NewConsolidator(sources.NewDocumentReader(discard), sheets, web, sources.NoopPacer{}, discard)
	machine := jobs.NewMachine(reg, discard)
	proc := NewProcessor(machine, cons, orch, evaluation.NewEngine(reg, discard), time.Minute, discard)
	return &harness{
		proc:    proc,
		batch:   NewBatchRunner(batch.NewExpander(sheets, 0, 0, discard), proc, discard),
		model:   m,
		machine: machine,
	}
}

func webSpec(url string) entity.JobSpec {
	return entity.JobSpec{
		Category: "cosmetics",
		Sources:  []entity.Source{{Kind: constants.SourceWeb, URLs: []string{url}}},
		Params:   entity.ModelParams{Provider: "openai", Model: "gpt-4o", Temperature: 0.2, Instructions: "Use EU sizes."},
	}
}

func TestProcessCompletesAttempt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job, err := h.proc.Create(ctx, webSpec("shop.example.com/night-cream"))
	require.NoError(t, err)

	a, err := h.proc.Process(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.AttemptStatusCompleted, a.Status)
	assert.Equal(t, "33049900", a.HSCode)
	assert.Contains(t, a.InputText, "=== CUSTOM INSTRUCTIONS ===\nUse EU sizes.")
	assert.Contains(t, a.InputText, "=== WEB SOURCE (https://shop.example.com/night-cream) ===")
	assert.Equal(t, productReply, a.RawResponse)
	require.NotNil(t, a.Evaluation)
	assert.Equal(t, a.ID, a.Evaluation.AttemptID)
	assert.Equal(t, entity.MethodHeuristic, a.Evaluation.Content.Method)

	rec, err := shape.Parse(a.Record)
	require.NoError(t, err)
	assert.Equal(t, []string{"33049900"}, rec.Codes())

	got, err := h.machine.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, got.Status)
}

func TestOutOfEnumCodeStillCompletes(t *testing.T) {
	h := newHarness(t)
	h.model.code = "99999999"
	ctx := context.Background()
	job, err := h.proc.Create(ctx, webSpec("https://shop.example.com/night-cream"))
	require.NoError(t, err)

	a, err := h.proc.Process(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.AttemptStatusCompleted, a.Status)
	assert.Empty(t, a.HSCode)
	assert.Contains(t, a.ClassificationWarning, "99999999")
	assert.NotContains(t, string(a.Record), "HSCode")
}

func TestSourceFailureFailsAttempt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job, err := h.proc.Create(ctx, webSpec("https://shop.example.com/gone"))
	require.NoError(t, err)

	a, err := h.proc.Process(ctx, job.ID)
	require.Error(t, err)
	assert.Equal(t, constants.AttemptStatusFailed, a.Status)
	assert.Equal(t, common.CodeSource, a.ErrorCode)
	assert.Contains(t, a.Error, "status 404")
	assert.Zero(t, h.model.extractCalls)

	got, _ := h.machine.Get(job.ID)
	assert.Equal(t, constants.JobStatusFailed, got.Status)
}

func TestParseFailureIsRetriedThenRecorded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	spec := webSpec("https://shop.example.com/night-cream")
	spec.Params.Instructions = "BROKEN"
	job, err := h.proc.Create(ctx, spec)
	require.NoError(t, err)

	a, err := h.proc.Process(ctx, job.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrParse)
	assert.Equal(t, common.CodeParse, a.ErrorCode)
	assert.Equal(t, "sorry, no JSON today", a.RawResponse)
	assert.NotEmpty(t, a.InputText)
	assert.Equal(t, 2, h.model.extractCalls)
}

func TestReprocessAndReclassify(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job, err := h.proc.Create(ctx, webSpec("https://shop.example.com/night-cream"))
	require.NoError(t, err)
	first, err := h.proc.Process(ctx, job.ID)
	require.NoError(t, err)

	_, err = h.proc.Process(ctx, job.ID)
	require.NoError(t, err, "processing a completed job runs a new full attempt")

	h.model.code = "33079000"
	calls := h.model.extractCalls
	re, err := h.proc.Reclassify(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, calls, h.model.extractCalls, "reclassify skips extraction")
	assert.Equal(t, constants.AttemptKindReclassify, re.Kind)
	assert.Equal(t, 3, re.Seq)
	assert.Equal(t, "33079000", re.HSCode)
	assert.Equal(t, first.InputText, re.InputText)

	redo, err := h.proc.Reprocess(ctx, job.ID, entity.ModelParams{Provider: "groq", Model: "llama-3.3-70b-versatile"})
	require.NoError(t, err)
	assert.Equal(t, 4, redo.Seq)
	assert.Equal(t, "groq", redo.Params.Provider)

	got, _ := h.machine.Get(job.ID)
	require.Len(t, got.Attempts, 4)
	assert.Equal(t, first, got.Attempts[0])
	for i := 1; i < len(got.Attempts); i++ {
		assert.True(t, got.Attempts[i].StartedAt.After(got.Attempts[i-1].StartedAt))
	}
}

func TestCallerCancellationDoesNotAbortAttempt(t *testing.T) {
	h := newHarness(t)
	job, err := h.proc.Create(context.Background(), webSpec("https://shop.example.com/night-cream"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a, err := h.proc.Process(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.AttemptStatusCompleted, a.Status)
}

type savedJobs struct {
	mu  sync.Mutex
	ids []string
}

func (s *savedJobs) SaveJob(_ context.Context, job *entity.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, job.ID.String())
	return nil
}

func (s *savedJobs) AppendAttempt(context.Context, entity.Attempt) error { return nil }

func TestCreateRejectsBadSourcesWithoutJob(t *testing.T) {
	h := newHarness(t)
	rec := &savedJobs{}
	machine := jobs.NewMachine(catalog.Default(), discard, jobs.WithRecorder(rec))
	proc := NewProcessor(machine, nil, nil, nil, time.Minute, discard)
	ctx := context.Background()

	for name, srcs := range map[string][]entity.Source{
		"no sources": nil,
		"empty urls": {{Kind: constants.SourceWeb, URLs: []string{}}},
		"no pages":   {{Kind: constants.SourceDocument, Path: "a.pdf"}},
	} {
		spec := webSpec("https://shop.example.com/night-cream")
		spec.Sources = srcs
		_, err := proc.Create(ctx, spec)
		require.Error(t, err, name)
		assert.Equal(t, common.CodeConfig, common.ErrorCode(err), name)

		_, err = h.proc.Create(ctx, spec)
		require.Error(t, err, name)
	}
	assert.Empty(t, machine.List())
	assert.Empty(t, rec.ids)
	assert.Empty(t, h.machine.List())
}

func TestBeginErrorsSurface(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job, err := h.proc.Create(ctx, webSpec("https://shop.example.com/night-cream"))
	require.NoError(t, err)

	_, err = h.proc.Reclassify(ctx, job.ID)
	assert.ErrorIs(t, err, common.ErrConflict)
	got, _ := h.machine.Get(job.ID)
	assert.Empty(t, got.Attempts)
	assert.Equal(t, constants.JobStatusPending, got.Status)
}

func writeCSV(t *testing.T, rows []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "products.csv")
	body := "Name,EAN\n" + strings.Join(rows, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestBatchRun(t *testing.T) {
	h := newHarness(t)
	rows := []string{"Cream A,1", "Cream B,2", ",", "Cream C,3", "BROKEN,4", "Cream D,5", ",", "Cream E,6", "Cream F,7", "Cream G,8"}
	path := writeCSV(t, rows)

	tmpl := entity.JobSpec{Category: "cosmetics", Params: entity.ModelParams{Provider: "openai", Model: "gpt-4o"}}
	rep, err := h.batch.Run(context.Background(), tmpl, []entity.Source{{Kind: constants.SourceSpreadsheet, Path: path}})
	require.NoError(t, err)
	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, 8, rep.Created)
	assert.Equal(t, 2, rep.Skipped)
	assert.Equal(t, 7, rep.Succeeded)
	assert.Equal(t, 1, rep.Failed)
	require.Len(t, rep.Outcomes, 8)
	assert.Equal(t, 4, rep.Outcomes[3].Row)
	assert.Equal(t, RowFailed, rep.Outcomes[3].Status)
	assert.Equal(t, RowCompleted, rep.Outcomes[4].Status)

	all := h.machine.List()
	require.Len(t, all, 8)
	for _, j := range all {
		require.Len(t, j.Attempts, 1)
		assert.Equal(t, rep.RunID, j.Attempts[0].RunID)
	}
}

func TestBatchRunRejectsBeforeCreatingJobs(t *testing.T) {
	h := newHarness(t)
	path := writeCSV(t, []string{"Cream,1"})
	tmpl := entity.JobSpec{Category: "cosmetics"}
	_, err := h.batch.Run(context.Background(), tmpl, []entity.Source{
		{Kind: constants.SourceSpreadsheet, Path: path},
		{Kind: constants.SourceDocument, Path: "a.pdf", Pages: []int{0}},
	})
	assert.ErrorIs(t, err, batch.ErrSourceConflict)
	assert.Empty(t, h.machine.List())
}

func TestBatchCancellationStopsFutureRows(t *testing.T) {
	h := newHarness(t)
	path := writeCSV(t, []string{"Cream A,1", "Cream B,2", "Cream C,3"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.model.onExtract = cancel

	rep, err := h.batch.Run(ctx, entity.JobSpec{Category: "cosmetics"}, []entity.Source{{Kind: constants.SourceSpreadsheet, Path: path}})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Succeeded, "the running row finishes")
	assert.Equal(t, 2, rep.Cancelled)
	assert.Len(t, h.machine.List(), 1)
	assert.True(t, errors.Is(ctx.Err(), context.Canceled))
}

func TestBatchPlanCreatesPendingJobs(t *testing.T) {
	h := newHarness(t)
	path := writeCSV(t, []string{"Cream A,1", ",", "Cream B,2"})

	ctx := common.WithRunID(context.Background(), "run-plan")
	tmpl := entity.JobSpec{Category: "cosmetics", Params: entity.ModelParams{Provider: "openai", Model: "gpt-4o"}}
	rep, err := h.batch.Plan(ctx, tmpl, []entity.Source{{Kind: constants.SourceSpreadsheet, Path: path}})
	require.NoError(t, err)
	assert.Equal(t, "run-plan", rep.RunID)
	assert.Equal(t, 2, rep.Created)
	assert.Equal(t, 1, rep.Skipped)
	require.Len(t, rep.Outcomes, 2)
	for _, out := range rep.Outcomes {
		assert.Equal(t, RowQueued, out.Status)
		job, err := h.machine.Get(out.JobID)
		require.NoError(t, err)
		assert.Equal(t, constants.JobStatusPending, job.Status)
		assert.Empty(t, job.Attempts)
	}
	assert.Equal(t, 2, rep.Outcomes[1].Row)
}
