package entity

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/catalog-extractor/constants"
	"github.com/joseph-ayodele/catalog-extractor/internal/common"
)

// Attempt is one execution of a job. Once appended to a job it is never changed.
type Attempt struct {
	ID                    uuid.UUID               `json:"id"`
	JobID                 uuid.UUID               `json:"job_id"`
	Seq                   int                     `json:"seq"`
	Kind                  constants.AttemptKind   `json:"kind"`
	Params                ModelParams             `json:"params"`
	Status                constants.AttemptStatus `json:"status"`
	Record                json.RawMessage         `json:"record,omitempty"`
	RawResponse           string                  `json:"raw_response,omitempty"`
	InputText             string                  `json:"input_text,omitempty"`
	HSCode                string                  `json:"hs_code,omitempty"`
	ClassificationWarning string                  `json:"classification_warning,omitempty"`
	Warnings              []string                `json:"warnings,omitempty"`
	Error                 string                  `json:"error,omitempty"`
	ErrorCode             string                  `json:"error_code,omitempty"`
	Elapsed               time.Duration           `json:"elapsed"`
	By                    common.User             `json:"by"`
	RunID                 string                  `json:"run_id,omitempty"`
	StartedAt             time.Time               `json:"started_at"`
	FinishedAt            time.Time               `json:"finished_at"`
	Evaluation            *EvaluationResult       `json:"evaluation,omitempty"`
}

// Clone deep-copies the attempt.
func (a Attempt) Clone() Attempt {
	a.Record = slices.Clone(a.Record)
	a.Warnings = slices.Clone(a.Warnings)
	if a.Evaluation != nil {
		e := *a.Evaluation
		a.Evaluation = &e
	}
	return a
}

// Finished reports whether the attempt reached a terminal status.
func (a Attempt) Finished() bool {
	return a.Status == constants.AttemptStatusCompleted || a.Status == constants.AttemptStatusFailed
}
