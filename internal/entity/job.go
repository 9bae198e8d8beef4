package entity

import (
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/catalog-extractor/constants"
	"github.com/joseph-ayodele/catalog-extractor/internal/common"
)

// ModelParams are the model invocation parameters a job (and each attempt) uses.
type ModelParams struct {
	Provider     string  `json:"provider" yaml:"provider"`
	Model        string  `json:"model" yaml:"model"`
	Temperature  float32 `json:"temperature" yaml:"temperature"`
	Instructions string  `json:"instructions,omitempty" yaml:"instructions"`
}

// Source is one input of a job. Only the fields relevant to Kind are set:
// documents use Path+Pages, spreadsheets Path+Sheet+HeaderRow+Rows, web URLs.
type Source struct {
	Kind      constants.SourceKind `json:"kind"`
	Path      string               `json:"path,omitempty"`
	Pages     []int                `json:"pages,omitempty"`
	Sheet     string               `json:"sheet,omitempty"`
	HeaderRow int                  `json:"header_row,omitempty"`
	Rows      []int                `json:"rows,omitempty"`
	URLs      []string             `json:"urls,omitempty"`
}

// Name is the label used in consolidated section markers.
func (s Source) Name() string {
	if s.Kind == constants.SourceWeb {
		if len(s.URLs) == 1 {
			return s.URLs[0]
		}
		return "web"
	}
	return filepath.Base(s.Path)
}

// Selection returns the page or row selection for file sources.
func (s Source) Selection() []int {
	switch s.Kind {
	case constants.SourceDocument:
		return s.Pages
	case constants.SourceSpreadsheet:
		return s.Rows
	default:
		return nil
	}
}

// Clone deep-copies the slices.
func (s Source) Clone() Source {
	s.Pages = slices.Clone(s.Pages)
	s.Rows = slices.Clone(s.Rows)
	s.URLs = slices.Clone(s.URLs)
	return s
}

// JobSpec is what a caller supplies to create a job.
type JobSpec struct {
	Category  string      `json:"category"`
	Qualifier string      `json:"qualifier,omitempty"`
	Sources   []Source    `json:"sources"`
	Params    ModelParams `json:"params"`
}

// Job represents one requested extraction task and its attempt history.
type Job struct {
	ID        uuid.UUID           `json:"id"`
	Category  constants.Category  `json:"category"`
	Qualifier string              `json:"qualifier,omitempty"`
	Sources   []Source            `json:"sources"`
	Params    ModelParams         `json:"params"`
	Status    constants.JobStatus `json:"status"`
	CreatedBy common.User         `json:"created_by"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
	Attempts  []Attempt           `json:"attempts"`
	// InFlight is the attempt currently processing. It is not persisted and
	// joins Attempts only once it finishes.
	InFlight *Attempt `json:"in_flight,omitempty"`
}

// Clone returns a deep copy; attempt records and texts are copied too.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	out.Sources = make([]Source, len(j.Sources))
	for i, s := range j.Sources {
		out.Sources[i] = s.Clone()
	}
	out.Attempts = make([]Attempt, len(j.Attempts))
	for i, a := range j.Attempts {
		out.Attempts[i] = a.Clone()
	}
	if j.InFlight != nil {
		a := j.InFlight.Clone()
		out.InFlight = &a
	}
	return &out
}

// LastAttempt returns the most recent attempt, if any.
func (j *Job) LastAttempt() (Attempt, bool) {
	if len(j.Attempts) == 0 {
		return Attempt{}, false
	}
	return j.Attempts[len(j.Attempts)-1], true
}

// LastCompleted returns the most recent completed attempt carrying a record.
func (j *Job) LastCompleted() (Attempt, bool) {
	for i := len(j.Attempts) - 1; i >= 0; i-- {
		a := j.Attempts[i]
		if a.Status == constants.AttemptStatusCompleted && len(a.Record) > 0 {
			return a, true
		}
	}
	return Attempt{}, false
}
