package sources

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/catalog-extractor/constants"
	"github.com/joseph-ayodele/catalog-extractor/internal/common"
	"github.com/joseph-ayodele/catalog-extractor/internal/entity"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeDocs struct{ err error }

func (f fakeDocs) ReadPages(_ context.Context, path string, pages []int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "--- PAGE 1 ---\ntext of " + path, nil
}

type fakeSheets struct{ err error }

func (f fakeSheets) Table(context.Context, string, string, int) (Table, error) {
	return Table{}, f.err
}

func (f fakeSheets) ReadRows(_ context.Context, path, _ string, _ int, rows []int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "ROW 1:\nname: Cream", nil
}

type fakeWeb struct {
	mu      sync.Mutex
	fetched []string
	fail    map[string]bool
}

func (f *fakeWeb) Fetch(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, url)
	if f.fail[url] {
		return "", common.ErrTransport
	}
	return "page " + url, nil
}

type countingPacer struct{ waits int }

func (p *countingPacer) Wait(ctx context.Context) error {
	p.waits++
	return ctx.Err()
}

func newJob(srcs ...entity.Source) *entity.Job {
	return &entity.Job{ID: uuid.New(), Category: constants.Cosmetics, Sources: srcs}
}

var (
	docSrc   = entity.Source{Kind: constants.SourceDocument, Path: "/in/catalog.pdf", Pages: []int{0}}
	sheetSrc = entity.Source{Kind: constants.SourceSpreadsheet, Path: "/in/list.xlsx", Rows: []int{0}}
)

func TestConsolidateLabelsEverySource(t *testing.T) {
	web := &fakeWeb{}
	c := NewConsolidator(fakeDocs{}, fakeSheets{}, web, NoopPacer{}, quietLogger())
	job := newJob(docSrc, sheetSrc, entity.Source{Kind: constants.SourceWeb, URLs: []string{"shop.example.com/p/1"}})
	job.Params.Instructions = "Prices are in EUR."

	res, err := c.Consolidate(context.Background(), job)
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 3, res.Sections)

	assert.True(t, strings.HasPrefix(res.Text, InstructionsHeader+"\nPrices are in EUR."))
	assert.Contains(t, res.Text, "=== DOCUMENT SOURCE (catalog.pdf) ===\n--- PAGE 1 ---")
	assert.Contains(t, res.Text, "=== SPREADSHEET SOURCE (list.xlsx) ===\nROW 1:")
	assert.Contains(t, res.Text, "=== WEB SOURCE (https://shop.example.com/p/1) ===\npage https://shop.example.com/p/1")
	assert.NotContains(t, res.Text, BaseProductHeader)
}

func TestConsolidateAddsBaseProductForQualifiedCategory(t *testing.T) {
	c := NewConsolidator(fakeDocs{}, nil, nil, nil, quietLogger())
	job := newJob(docSrc)
	job.Category = constants.Subtype
	job.Qualifier = "Hydra Boost Gel"

	res, err := c.Consolidate(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Text, BaseProductHeader+"\nHydra Boost Gel"))
}

func TestConsolidateOmitsFailingSource(t *testing.T) {
	c := NewConsolidator(fakeDocs{err: errors.New("corrupt xref table")}, fakeSheets{}, nil, nil, quietLogger())
	res, err := c.Consolidate(context.Background(), newJob(docSrc, sheetSrc))
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "document catalog.pdf: corrupt xref table")
	assert.NotContains(t, res.Text, "DOCUMENT SOURCE")
	assert.Equal(t, 1, res.Sections)
}

func TestConsolidateFailsWhenNothingRemains(t *testing.T) {
	c := NewConsolidator(fakeDocs{err: errors.New("missing file")}, nil, nil, nil, quietLogger())
	_, err := c.Consolidate(context.Background(), newJob(docSrc))
	require.Error(t, err)
	assert.Equal(t, common.CodeSource, common.ErrorCode(err))
	assert.Contains(t, err.Error(), "missing file")
}

func TestConsolidateRejectsBadConfiguration(t *testing.T) {
	c := NewConsolidator(fakeDocs{}, fakeSheets{}, &fakeWeb{}, nil, quietLogger())
	cases := map[string]*entity.Job{
		"no sources":       newJob(),
		"empty pages":      newJob(entity.Source{Kind: constants.SourceDocument, Path: "a.pdf"}),
		"negative row":     newJob(entity.Source{Kind: constants.SourceSpreadsheet, Path: "a.csv", Rows: []int{-1}}),
		"duplicate row":    newJob(entity.Source{Kind: constants.SourceSpreadsheet, Path: "a.csv", Rows: []int{2, 2}}),
		"empty url list":   newJob(entity.Source{Kind: constants.SourceWeb}),
		"bad url":          newJob(entity.Source{Kind: constants.SourceWeb, URLs: []string{"not a url"}}),
		"unknown kind":     newJob(entity.Source{Kind: "fax"}),
		"wrong extension":  newJob(entity.Source{Kind: constants.SourceDocument, Path: "a.docx", Pages: []int{0}}),
		"negative header":  newJob(entity.Source{Kind: constants.SourceSpreadsheet, Path: "a.csv", HeaderRow: -1, Rows: []int{0}}),
		"missing doc path": newJob(entity.Source{Kind: constants.SourceDocument, Pages: []int{0}}),
	}
	for name, job := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := c.Consolidate(context.Background(), job)
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrInvalidInput))
			assert.Equal(t, common.CodeConfig, common.ErrorCode(err))
		})
	}
}

func TestWebPacing(t *testing.T) {
	t.Run("single address skips the pacer", func(t *testing.T) {
		p := &countingPacer{}
		c := NewConsolidator(nil, nil, &fakeWeb{}, p, quietLogger())
		_, err := c.Consolidate(context.Background(), newJob(entity.Source{Kind: constants.SourceWeb, URLs: []string{"https://a.example.com"}}))
		require.NoError(t, err)
		assert.Zero(t, p.waits)
	})

	t.Run("every fetch of a multi-address job waits", func(t *testing.T) {
		p := &countingPacer{}
		web := &fakeWeb{fail: map[string]bool{"https://b.example.com": true}}
		c := NewConsolidator(nil, nil, web, p, quietLogger())
		res, err := c.Consolidate(context.Background(), newJob(
			entity.Source{Kind: constants.SourceWeb, URLs: []string{"https://a.example.com", "https://b.example.com"}},
			entity.Source{Kind: constants.SourceWeb, URLs: []string{"https://c.example.com"}},
		))
		require.NoError(t, err)
		assert.Equal(t, 3, p.waits)
		assert.Equal(t, []string{"https://a.example.com", "https://b.example.com", "https://c.example.com"}, web.fetched)
		assert.Len(t, res.Warnings, 1)
		assert.Equal(t, 2, res.Sections)
	})

	t.Run("cancelled context never blocks", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		c := NewConsolidator(nil, nil, &fakeWeb{}, NewPacer(time.Hour), quietLogger())
		done := make(chan error, 1)
		go func() {
			_, err := c.Consolidate(ctx, newJob(entity.Source{Kind: constants.SourceWeb, URLs: []string{"https://a.example.com", "https://b.example.com"}}))
			done <- err
		}()
		select {
		case err := <-done:
			require.Error(t, err)
			assert.Equal(t, common.CodeSource, common.ErrorCode(err))
		case <-time.After(5 * time.Second):
			t.Fatal("consolidation blocked on the pacer")
		}
	})
}

func TestRatePacerSpacesCalls(t *testing.T) {
	p := NewPacer(50 * time.Millisecond)
	ctx := context.Background()
	start := time.Now()
	require.NoError(t, p.Wait(ctx))
	require.NoError(t, p.Wait(ctx))
	require.NoError(t, p.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)

	_, isNoop := NewPacer(0).(NoopPacer)
	assert.True(t, isNoop)
}
