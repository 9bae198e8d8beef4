package constants

import "strings"

// SourceKind identifies where a job's input text comes from.
type SourceKind string

const (
	SourceDocument    SourceKind = "document"
	SourceSpreadsheet SourceKind = "spreadsheet"
	SourceWeb         SourceKind = "web"
)

// DocumentExtensions holds the file extensions the document reader accepts.
var DocumentExtensions = map[string]struct{}{
	"pdf": {},
	"txt": {},
}

// SpreadsheetExtensions holds the file extensions the spreadsheet reader accepts.
var SpreadsheetExtensions = map[string]struct{}{
	"xlsx": {},
	"xlsm": {},
	"csv":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Batch and fetch boundaries.
const (
	BatchMaxRows        = 500
	BatchWarnRows       = 100
	DefaultWebDelaySecs = 2.0
	MaxWebPageTextBytes = 200_000
)
