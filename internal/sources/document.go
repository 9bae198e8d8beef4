package sources

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/joseph-ayodele/catalog-extractor/constants"
)

// DocumentReader returns the text of the selected pages (0-based) of a paged document.
type DocumentReader interface {
	ReadPages(ctx context.Context, path string, pages []int) (string, error)
}

// FileDocumentReader reads PDF files, and plain text files split into pages on form feeds.
type FileDocumentReader struct {
	logger *slog.Logger
}

func NewDocumentReader(logger *slog.Logger) *FileDocumentReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileDocumentReader{logger: logger}
}

func (r *FileDocumentReader) ReadPages(ctx context.Context, path string, pages []int) (string, error) {
	ext := constants.NormalizeExt(filepath.Ext(path))
	if _, ok := constants.DocumentExtensions[ext]; !ok {
		return "", fmt.Errorf("unsupported document type %q", ext)
	}

	var texts map[int]string
	var total int
	var err error
	if ext == "txt" {
		texts, total, err = r.textPages(path, pages)
	} else {
		texts, total, err = r.pdfPages(ctx, path, pages)
	}
	if err != nil {
		return "", err
	}

	blocks := make([]string, 0, len(pages))
	for _, idx := range pages {
		txt := strings.TrimSpace(texts[idx])
		if txt == "" {
			r.logger.Warn("sources.document.empty_page", "path", path, "page", idx+1)
			continue
		}
		blocks = append(blocks, fmt.Sprintf("--- PAGE %d ---\n%s", idx+1, txt))
	}
	r.logger.Debug("sources.document.read", "path", path, "pages", len(pages), "total_pages", total, "non_empty", len(blocks))
	return strings.Join(blocks, "\n\n"), nil
}

func (r *FileDocumentReader) pdfPages(ctx context.Context, path string, pages []int) (map[int]string, int, error) {
	f, rd, err := pdf.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open pdf: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			r.logger.Warn("sources.document.close_error", "path", path, "error", cerr)
		}
	}()

	total := rd.NumPage()
	out := make(map[int]string, len(pages))
	for _, idx := range pages {
		if err := ctx.Err(); err != nil {
			return nil, total, err
		}
		if idx < 0 || idx >= total {
			return nil, total, fmt.Errorf("page %d out of range: document has %d pages", idx+1, total)
		}
		p := rd.Page(idx + 1)
		if p.V.IsNull() {
			continue
		}
		txt, err := p.GetPlainText(nil)
		if err != nil {
			return nil, total, fmt.Errorf("page %d text: %w", idx+1, err)
		}
		out[idx] = txt
	}
	return out, total, nil
}

func (r *FileDocumentReader) textPages(path string, pages []int) (map[int]string, int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read text document: %w", err)
	}
	all := strings.Split(string(b), "\f")
	out := make(map[int]string, len(pages))
	for _, idx := range pages {
		if idx < 0 || idx >= len(all) {
			return nil, len(all), fmt.Errorf("page %d out of range: document has %d pages", idx+1, len(all))
		}
		out[idx] = all[idx]
	}
	return out, len(all), nil
}
