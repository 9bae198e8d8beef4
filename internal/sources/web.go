package sources

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/joseph-ayodele/catalog-extractor/constants"
	"github.com/joseph-ayodele/catalog-extractor/internal/common"
)

// WebFetcher returns the visible text of a web page.
type WebFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

const maxWebBody = 4 << 20

// HTTPFetcher fetches pages with net/http and strips markup with x/net/html.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	maxText   int
	logger    *slog.Logger
}

func NewHTTPFetcher(timeout time.Duration, userAgent string, logger *slog.Logger) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		maxText:   constants.MaxWebPageTextBytes,
		logger:    logger,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			f.logger.Warn("sources.web.body_close_error", "url", url, "error", err)
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: GET %s: status %d", common.ErrTransport, url, resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, maxWebBody)
	var text string
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt == "text/plain" {
		b, err := io.ReadAll(body)
		if err != nil {
			return "", fmt.Errorf("%w: read body: %v", common.ErrTransport, err)
		}
		text = collapse(string(b))
	} else {
		text, err = HTMLText(body)
		if err != nil {
			return "", fmt.Errorf("parse html: %w", err)
		}
	}

	text = truncateUTF8(text, f.maxText)
	f.logger.Info("sources.web.fetched",
		"url", url, "status", resp.StatusCode, "chars", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

var skipElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"svg": true, "iframe": true,
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"title": true, "table": true, "ul": true, "ol": true, "dd": true, "dt": true,
}

// HTMLText returns the visible text of an HTML document, one block per line,
// with scripts and styles dropped and whitespace collapsed.
func HTMLText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	walkText(doc, &sb, 0)
	return collapse(sb.String()), nil
}

func walkText(n *html.Node, sb *strings.Builder, depth int) {
	if depth > 256 {
		return
	}
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		sb.WriteString(" ")
	case html.ElementNode:
		if skipElements[n.Data] {
			return
		}
		if blockElements[n.Data] {
			sb.WriteString("\n")
		}
		if n.Data == "img" {
			for _, a := range n.Attr {
				if a.Key == "alt" && strings.TrimSpace(a.Val) != "" {
					sb.WriteString("[Image: " + a.Val + "] ")
				}
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, sb, depth+1)
	}
	if n.Type == html.ElementNode && blockElements[n.Data] {
		sb.WriteString("\n")
	}
}

// collapse squeezes runs of spaces inside lines and drops blank lines.
func collapse(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if f := strings.Fields(l); len(f) > 0 {
			out = append(out, strings.Join(f, " "))
		}
	}
	return strings.Join(out, "\n")
}

func truncateUTF8(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
