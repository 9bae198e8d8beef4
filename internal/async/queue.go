package async

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/catalog-extractor/constants"
	"github.com/joseph-ayodele/catalog-extractor/internal/common"
	"github.com/joseph-ayodele/catalog-extractor/internal/entity"
)

// ErrQueueClosed is returned by Enqueue once Shutdown has started.
var ErrQueueClosed = errors.New("queue is shutting down")

// Task asks the worker to run one attempt of an existing job.
type Task struct {
	JobID uuid.UUID
	Kind  constants.AttemptKind
	// Reprocess selects Reprocess over Process for full attempts. Zero Params
	// keep the job's own parameters.
	Reprocess   bool
	Params      entity.ModelParams
	User        common.User
	RunID       string
	SubmittedAt time.Time
}

// Handler runs a task. Errors are logged by the queue; the attempt itself
// records the failure.
type Handler func(ctx context.Context, t Task) error

type Queue interface {
	Enqueue(ctx context.Context, t Task) error
	Shutdown(ctx context.Context)
}
