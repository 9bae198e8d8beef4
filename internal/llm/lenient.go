package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/joseph-ayodele/catalog-extractor/internal/common"
)

var (
	reFence = regexp.MustCompile("(?s)```[a-zA-Z]*[ \t]*\r?\n?(.*?)```")
	reThink = regexp.MustCompile(`(?s)<think>.*?</think>`)
)

// StripFences removes reasoning blocks and returns the body of the first fenced
// code block, or the trimmed input when there is none.
func StripFences(s string) string {
	s = reThink.ReplaceAllString(s, "")
	if m := reFence.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(s)
}

// ExtractJSON isolates the first balanced JSON object or array in a reply,
// dropping leading prose and anything after the closing bracket.
func ExtractJSON(s string) (string, error) {
	s = StripFences(s)
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", fmt.Errorf("%w: no JSON object or array in response", common.ErrParse)
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("%w: unterminated JSON in response", common.ErrParse)
}

// ParseLenient extracts and decodes the JSON payload of a model reply.
// Numbers are kept as json.Number.
func ParseLenient(s string) (any, error) {
	raw, err := ExtractJSON(s)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrParse, err)
	}
	return v, nil
}

// ParseInto decodes the JSON payload of a reply into out.
func ParseInto(s string, out any) error {
	raw, err := ExtractJSON(s)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	if err := dec.Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("%w: %v", common.ErrParse, err)
	}
	return nil
}
