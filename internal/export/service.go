package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/catalog-extractor/internal/entity"
	"github.com/joseph-ayodele/catalog-extractor/internal/repository"
)

// JobLister is the read side of the audit repository.
type JobLister interface {
	ListJobs(ctx context.Context, filter repository.JobFilter) ([]*entity.Job, error)
}

// Service produces XLSX bytes for audit exports.
type Service struct {
	jobs   JobLister
	logger *slog.Logger
}

func NewService(jobs JobLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobs: jobs, logger: logger}
}

const sheet = "Attempts"

var headers = []string{
	"Job ID",
	"Category",
	"Qualifier",
	"Job Status",
	"Attempt",
	"Kind",
	"Status",
	"Provider",
	"Model",
	"Temperature",
	"HS Code",
	"Structure",
	"Content",
	"Translation",
	"Composite",
	"Content Method",
	"Classification Warning",
	"Warnings",
	"Error",
	"Error Code",
	"User",
	"Run ID",
	"Started At",
	"Elapsed (s)",
	"Sources",
}

// ExportAttemptsXLSX returns a workbook with one row per attempt of every job
// matching filter, ordered by job creation and attempt sequence.
func (s *Service) ExportAttemptsXLSX(ctx context.Context, filter repository.JobFilter) ([]byte, error) {
	start := time.Now()

	jobs, err := s.jobs.ListJobs(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if _, err := f.NewSheet(sheet); err != nil {
		return nil, err
	}
	idx, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(idx)
	_ = f.DeleteSheet("Sheet1")

	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}

	row := 2
	for _, j := range jobs {
		for _, a := range j.Attempts {
			cell, _ := excelize.CoordinatesToCellName(1, row)
			values := attemptRow(j, a)
			if err := f.SetSheetRow(sheet, cell, &values); err != nil {
				return nil, fmt.Errorf("write row %d: %w", row, err)
			}
			row++
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 38) // job id
	_ = f.SetColWidth(sheet, "B", "D", 14)
	_ = f.SetColWidth(sheet, "H", "I", 22) // provider, model
	_ = f.SetColWidth(sheet, "Q", "S", 48) // warnings, error
	_ = f.SetColWidth(sheet, "W", "W", 22) // started
	_ = f.SetColWidth(sheet, "Y", "Y", 60) // sources
	_ = f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"jobs", len(jobs),
		"rows", row-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func attemptRow(j *entity.Job, a entity.Attempt) []any {
	var structure, content, translation, composite any = "", "", "", ""
	method := ""
	if ev := a.Evaluation; ev != nil {
		structure, content, translation, composite = ev.Structure.Score, ev.Content.Score, ev.Translation.Score, ev.Composite
		method = ev.Content.Method
	}
	user := a.By.Name
	if user == "" {
		user = a.By.Username
	}
	return []any{
		j.ID.String(),
		string(j.Category),
		j.Qualifier,
		string(j.Status),
		a.Seq,
		string(a.Kind),
		string(a.Status),
		a.Params.Provider,
		a.Params.Model,
		a.Params.Temperature,
		a.HSCode,
		structure,
		content,
		translation,
		composite,
		method,
		truncate(a.ClassificationWarning, 300),
		truncate(strings.Join(a.Warnings, "; "), 300),
		truncate(a.Error, 300),
		a.ErrorCode,
		user,
		a.RunID,
		a.StartedAt.UTC().Format(time.RFC3339),
		a.Elapsed.Seconds(),
		sourceNames(j.Sources),
	}
}

func sourceNames(srcs []entity.Source) string {
	names := make([]string, 0, len(srcs))
	for _, s := range srcs {
		names = append(names, string(s.Kind)+":"+s.Name())
	}
	return strings.Join(names, ", ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
