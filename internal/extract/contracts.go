package extract

import (
	"time"

	"github.com/joseph-ayodele/catalog-extractor/internal/shape"
)

// Extraction is stage 1: consolidated text -> structured record.
type Extraction struct {
	Record      *shape.Record
	RawResponse string
	// Calls counts model invocations, including the parse retry.
	Calls    int
	Warnings []string
	Duration time.Duration
}

// Classification is stage 2: record -> one code from the closed taxonomy.
// Code is empty when Warning explains why nothing was placed.
type Classification struct {
	Code        string
	Reasoning   string
	RawResponse string
	Warning     string
	Duration    time.Duration
}

// Outcome is the combined result of both stages.
type Outcome struct {
	Extraction
	Classification Classification
}
