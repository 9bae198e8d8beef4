// Package sources turns a job's inputs (document pages, spreadsheet rows and
// web pages) into one labeled text blob for the extraction prompt.
package sources

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/catalog-extractor/constants"
	"github.com/joseph-ayodele/catalog-extractor/internal/common"
	"github.com/joseph-ayodele/catalog-extractor/internal/entity"
)

// Section headers.
const (
	InstructionsHeader = "=== CUSTOM INSTRUCTIONS ==="
	BaseProductHeader  = "=== BASE PRODUCT ==="
)

func sectionHeader(kind constants.SourceKind, name string) string {
	return fmt.Sprintf("=== %s SOURCE (%s) ===", strings.ToUpper(string(kind)), name)
}

// Result is the consolidated text plus per-source warnings for omitted sources.
type Result struct {
	Text     string
	Warnings []string
	Sections int
}

// Consolidator fetches every source of a job and joins the texts.
type Consolidator struct {
	docs   DocumentReader
	sheets SpreadsheetReader
	web    WebFetcher
	pacer  Pacer
	logger *slog.Logger
}

func NewConsolidator(docs DocumentReader, sheets SpreadsheetReader, web WebFetcher, pacer Pacer, logger *slog.Logger) *Consolidator {
	if pacer == nil {
		pacer = NoopPacer{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consolidator{docs: docs, sheets: sheets, web: web, pacer: pacer, logger: logger}
}

// Consolidate fetches all sources. A failing source becomes a warning and is
// omitted; the call fails only when no source yields text.
func (c *Consolidator) Consolidate(ctx context.Context, job *entity.Job) (Result, error) {
	start := time.Now()
	if err := ValidateSources(job.Sources); err != nil {
		return Result{}, err
	}

	var res Result
	var sections []string
	warn := func(label string, err error) {
		msg := fmt.Sprintf("%s: %v", label, err)
		res.Warnings = append(res.Warnings, msg)
		c.logger.Warn("sources.consolidate.source_failed", "job_id", job.ID, "source", label, "error", err)
	}

	webCount := 0
	for _, s := range job.Sources {
		if s.Kind == constants.SourceWeb {
			webCount += len(s.URLs)
		}
	}
	paced := webCount > 1

	for _, s := range job.Sources {
		switch s.Kind {
		case constants.SourceDocument:
			label := "document " + s.Name()
			if c.docs == nil {
				warn(label, fmt.Errorf("no document reader configured"))
				continue
			}
			text, err := c.docs.ReadPages(ctx, s.Path, s.Pages)
			if err != nil {
				warn(label, err)
				continue
			}
			if strings.TrimSpace(text) == "" {
				warn(label, fmt.Errorf("selected pages contain no text"))
				continue
			}
			sections = append(sections, sectionHeader(s.Kind, s.Name())+"\n"+text)

		case constants.SourceSpreadsheet:
			label := "spreadsheet " + s.Name()
			if c.sheets == nil {
				warn(label, fmt.Errorf("no spreadsheet reader configured"))
				continue
			}
			text, err := c.sheets.ReadRows(ctx, s.Path, s.Sheet, s.HeaderRow, s.Rows)
			if err != nil {
				warn(label, err)
				continue
			}
			if strings.TrimSpace(text) == "" {
				warn(label, fmt.Errorf("selected rows are empty"))
				continue
			}
			sections = append(sections, sectionHeader(s.Kind, s.Name())+"\n"+text)

		case constants.SourceWeb:
			for _, raw := range s.URLs {
				url := common.NormalizeURL(raw)
				label := "web " + url
				if c.web == nil {
					warn(label, fmt.Errorf("no web fetcher configured"))
					continue
				}
				if paced {
					if err := c.pacer.Wait(ctx); err != nil {
						warn(label, fmt.Errorf("politeness delay: %w", err))
						continue
					}
				}
				text, err := c.web.Fetch(ctx, url)
				if err != nil {
					warn(label, err)
					continue
				}
				if strings.TrimSpace(text) == "" {
					warn(label, fmt.Errorf("page has no visible text"))
					continue
				}
				sections = append(sections, sectionHeader(s.Kind, url)+"\n"+text)
			}
		}
	}

	if len(sections) == 0 {
		msg := "no source produced any text"
		if len(res.Warnings) > 0 {
			msg += ": " + strings.Join(res.Warnings, "; ")
		}
		c.logger.Error("sources.consolidate.failed", "job_id", job.ID, "warnings", len(res.Warnings))
		return res, common.NewAppError(common.CodeSource, msg, common.ErrTransport)
	}

	var preamble []string
	if instr := strings.TrimSpace(job.Params.Instructions); instr != "" {
		preamble = append(preamble, InstructionsHeader+"\n"+instr)
	}
	if job.Category.RequiresQualifier() {
		preamble = append(preamble, BaseProductHeader+"\n"+strings.TrimSpace(job.Qualifier))
	}

	res.Sections = len(sections)
	res.Text = strings.Join(append(preamble, sections...), "\n\n")
	c.logger.Info("sources.consolidate.ok",
		"job_id", job.ID,
		"sections", res.Sections,
		"warnings", len(res.Warnings),
		"chars", len(res.Text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// ValidateSources rejects configurations that cannot produce text: no
// sources, empty or negative selections, missing paths and bad addresses.
func ValidateSources(srcs []entity.Source) error {
	v := common.NewValidator()
	v.Check(len(srcs) > 0, "sources", len(srcs), "at least one source is required")

	for i, s := range srcs {
		field := fmt.Sprintf("sources[%d]", i)
		switch s.Kind {
		case constants.SourceDocument:
			v.Field(field+".path", s.Path, common.Required)
			v.Check(hasExt(s.Path, constants.DocumentExtensions), field+".path", s.Path, "must be a .pdf or .txt file")
			v.Field(field+".pages", s.Pages, common.Required, common.NonNegativeIndices)
		case constants.SourceSpreadsheet:
			v.Field(field+".path", s.Path, common.Required)
			v.Check(hasExt(s.Path, constants.SpreadsheetExtensions), field+".path", s.Path, "must be a .xlsx, .xlsm or .csv file")
			v.Check(s.HeaderRow >= 0, field+".header_row", s.HeaderRow, "must be non-negative")
			v.Field(field+".rows", s.Rows, common.Required, common.NonNegativeIndices)
		case constants.SourceWeb:
			v.Field(field+".urls", s.URLs, common.Required)
			for j, u := range s.URLs {
				v.Field(fmt.Sprintf("%s.urls[%d]", field, j), common.NormalizeURL(u), common.HTTPURL)
			}
		default:
			v.Check(false, field+".kind", s.Kind, "must be document, spreadsheet or web")
		}
	}
	return common.ValidateAndReturnError(v)
}

func hasExt(path string, allowed map[string]struct{}) bool {
	_, ok := allowed[constants.NormalizeExt(filepath.Ext(path))]
	return ok
}
