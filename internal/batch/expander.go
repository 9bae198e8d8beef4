// Package batch turns one spreadsheet into one job spec per data row.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/catalog-extractor/constants"
	"github.com/joseph-ayodele/catalog-extractor/internal/common"
	"github.com/joseph-ayodele/catalog-extractor/internal/entity"
	"github.com/joseph-ayodele/catalog-extractor/internal/sources"
)

var (
	// ErrSourceConflict is returned when the batch sources are anything but a single spreadsheet.
	ErrSourceConflict = errors.New("batch needs exactly one spreadsheet source and nothing else")
	// ErrTooManyRows is returned when the sheet has more non-empty rows than the hard limit.
	ErrTooManyRows = errors.New("too many rows for one batch")
)

// Default limits.
const (
	DefaultMaxRows  = 500
	DefaultWarnRows = 100
)

// Result lists one spec per non-empty row, in sheet order.
type Result struct {
	Specs    []entity.JobSpec
	Rows     []int
	Created  int
	Skipped  int
	Warnings []string
}

type Expander struct {
	sheets   sources.SpreadsheetReader
	maxRows  int
	warnRows int
	logger   *slog.Logger
}

func NewExpander(sheets sources.SpreadsheetReader, maxRows, warnRows int, logger *slog.Logger) *Expander {
	if logger == nil {
		logger = slog.Default()
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	if warnRows <= 0 {
		warnRows = DefaultWarnRows
	}
	return &Expander{sheets: sheets, maxRows: maxRows, warnRows: warnRows, logger: logger}
}

// Expand checks the sources, reads the sheet, drops fully empty rows and
// returns one spec per remaining row. The template supplies category,
// qualifier and params for every spec. When the spreadsheet source already
// selects rows, only those rows are expanded.
func (e *Expander) Expand(ctx context.Context, template entity.JobSpec, srcs []entity.Source) (Result, error) {
	start := time.Now()
	var sheet *entity.Source
	for i := range srcs {
		if srcs[i].Kind != constants.SourceSpreadsheet || sheet != nil {
			return Result{}, common.NewAppError(common.CodeBatch,
				fmt.Sprintf("source %d is a %s source", i, srcs[i].Kind), ErrSourceConflict)
		}
		sheet = &srcs[i]
	}
	if sheet == nil {
		return Result{}, common.NewAppError(common.CodeBatch, "no spreadsheet given", ErrSourceConflict)
	}
	if sheet.Path == "" || sheet.HeaderRow < 0 {
		return Result{}, common.ConfigError("spreadsheet source needs a path and a non-negative header row")
	}

	tbl, err := e.sheets.Table(ctx, sheet.Path, sheet.Sheet, sheet.HeaderRow)
	if err != nil {
		return Result{}, common.NewAppError(common.CodeBatch, "read spreadsheet", err)
	}

	candidates := sheet.Rows
	if len(candidates) == 0 {
		candidates = make([]int, len(tbl.Rows))
		for i := range tbl.Rows {
			candidates[i] = i
		}
	}

	var res Result
	for _, idx := range candidates {
		if idx < 0 || idx >= len(tbl.Rows) {
			return Result{}, common.ConfigError("row %d out of range: sheet has %d data rows", idx, len(tbl.Rows))
		}
		if tbl.IsEmptyRow(idx) {
			res.Skipped++
			continue
		}
		res.Rows = append(res.Rows, idx)
	}

	if len(res.Rows) > e.maxRows {
		e.logger.Warn("batch.expand.rejected", "path", sheet.Path, "rows", len(res.Rows), "max", e.maxRows)
		return Result{}, common.NewAppError(common.CodeBatch,
			fmt.Sprintf("%d rows exceed the limit of %d", len(res.Rows), e.maxRows), ErrTooManyRows)
	}
	if len(res.Rows) > e.warnRows {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("%d rows is a large batch; processing is sequential and may take a while", len(res.Rows)))
	}

	res.Specs = make([]entity.JobSpec, 0, len(res.Rows))
	for _, idx := range res.Rows {
		res.Specs = append(res.Specs, entity.JobSpec{
			Category:  template.Category,
			Qualifier: template.Qualifier,
			Params:    template.Params,
			Sources: []entity.Source{{
				Kind:      constants.SourceSpreadsheet,
				Path:      sheet.Path,
				Sheet:     tbl.Sheet,
				HeaderRow: sheet.HeaderRow,
				Rows:      []int{idx},
			}},
		})
	}
	res.Created = len(res.Specs)

	e.logger.Info("batch.expand.ok",
		"path", sheet.Path,
		"sheet", tbl.Sheet,
		"created", res.Created,
		"skipped", res.Skipped,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}
