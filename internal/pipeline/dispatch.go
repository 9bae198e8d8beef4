package pipeline

import (
	"context"

	"github.com/joseph-ayodele/catalog-extractor/constants"
	"github.com/joseph-ayodele/catalog-extractor/internal/async"
)

// Handle runs a queued task. It is the daemon queue's handler.
func (p *Processor) Handle(ctx context.Context, t async.Task) error {
	var err error
	switch {
	case t.Kind == constants.AttemptKindReclassify:
		_, err = p.Reclassify(ctx, t.JobID)
	case t.Reprocess:
		_, err = p.Reprocess(ctx, t.JobID, t.Params)
	default:
		_, err = p.Process(ctx, t.JobID)
	}
	return err
}
