package sources

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/catalog-extractor/constants"
)

// Table is a sheet split into its header row and the data rows that follow it.
type Table struct {
	Sheet  string
	Header []string
	Rows   [][]string
}

// Column returns the header label for column i, or a positional name.
func (t Table) Column(i int) string {
	if i < len(t.Header) {
		if h := strings.TrimSpace(t.Header[i]); h != "" {
			return h
		}
	}
	return fmt.Sprintf("column_%d", i+1)
}

// IsEmptyRow reports whether every cell of data row i is blank.
func (t Table) IsEmptyRow(i int) bool {
	for _, cell := range t.Rows[i] {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// FormatRows renders the selected data rows (0-based) as "ROW n:" blocks of
// "column: value" lines. Blank cells are left out.
func (t Table) FormatRows(rows []int) (string, error) {
	blocks := make([]string, 0, len(rows))
	for _, idx := range rows {
		if idx < 0 || idx >= len(t.Rows) {
			return "", fmt.Errorf("row %d out of range: sheet has %d data rows", idx, len(t.Rows))
		}
		var b strings.Builder
		fmt.Fprintf(&b, "ROW %d:", idx+1)
		for col, cell := range t.Rows[idx] {
			if v := strings.TrimSpace(cell); v != "" {
				fmt.Fprintf(&b, "\n%s: %s", t.Column(col), v)
			}
		}
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n\n"), nil
}

// SpreadsheetReader reads tabular sources.
type SpreadsheetReader interface {
	// Table loads a sheet ("" = first sheet) with headerRow as its 0-based header index.
	Table(ctx context.Context, path, sheet string, headerRow int) (Table, error)
	// ReadRows returns the formatted text of the selected data rows.
	ReadRows(ctx context.Context, path, sheet string, headerRow int, rows []int) (string, error)
}

// FileSpreadsheetReader reads .xlsx/.xlsm through excelize and .csv through encoding/csv.
type FileSpreadsheetReader struct {
	logger *slog.Logger
}

func NewSpreadsheetReader(logger *slog.Logger) *FileSpreadsheetReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSpreadsheetReader{logger: logger}
}

func (r *FileSpreadsheetReader) ReadRows(ctx context.Context, path, sheet string, headerRow int, rows []int) (string, error) {
	t, err := r.Table(ctx, path, sheet, headerRow)
	if err != nil {
		return "", err
	}
	return t.FormatRows(rows)
}

func (r *FileSpreadsheetReader) Table(ctx context.Context, path, sheet string, headerRow int) (Table, error) {
	if err := ctx.Err(); err != nil {
		return Table{}, err
	}
	ext := constants.NormalizeExt(filepath.Ext(path))
	if _, ok := constants.SpreadsheetExtensions[ext]; !ok {
		return Table{}, fmt.Errorf("unsupported spreadsheet type %q", ext)
	}

	var all [][]string
	var err error
	if ext == "csv" {
		all, err = readCSV(path)
		sheet = filepath.Base(path)
	} else {
		all, sheet, err = r.readWorkbook(path, sheet)
	}
	if err != nil {
		return Table{}, err
	}
	if headerRow < 0 || headerRow >= len(all) {
		return Table{}, fmt.Errorf("header row %d out of range: sheet %q has %d rows", headerRow, sheet, len(all))
	}

	t := Table{Sheet: sheet, Header: all[headerRow], Rows: all[headerRow+1:]}
	r.logger.Debug("sources.spreadsheet.read", "path", path, "sheet", sheet, "data_rows", len(t.Rows))
	return t, nil
}

func (r *FileSpreadsheetReader) readWorkbook(path, sheet string) ([][]string, string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, sheet, fmt.Errorf("open workbook: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			r.logger.Warn("sources.spreadsheet.close_error", "path", path, "error", cerr)
		}
	}()

	if sheet == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			return nil, sheet, errors.New("workbook has no sheets")
		}
		sheet = list[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, sheet, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return rows, sheet, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	first, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	cr := csv.NewReader(br)
	cr.Comma = sniffDelimiter(string(first))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return rows, nil
}

// sniffDelimiter picks the most frequent candidate separator on the first line.
func sniffDelimiter(sample string) rune {
	line, _, _ := strings.Cut(sample, "\n")
	best, bestN := ',', 0
	for _, c := range []rune{',', ';', '\t', '|'} {
		if n := strings.Count(line, string(c)); n > bestN {
			best, bestN = c, n
		}
	}
	return best
}
