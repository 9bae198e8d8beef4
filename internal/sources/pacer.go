package sources

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces consecutive web fetches. Wait must honor ctx.
type Pacer interface {
	Wait(ctx context.Context) error
}

// RatePacer lets one fetch through immediately, then one per interval.
// A single instance is shared by every job of a run.
type RatePacer struct {
	lim *rate.Limiter
}

// NewPacer returns a RatePacer, or a NoopPacer when interval <= 0.
func NewPacer(interval time.Duration) Pacer {
	if interval <= 0 {
		return NoopPacer{}
	}
	return &RatePacer{lim: rate.NewLimiter(rate.Every(interval), 1)}
}

func (p *RatePacer) Wait(ctx context.Context) error {
	return p.lim.Wait(ctx)
}

// NoopPacer never waits.
type NoopPacer struct{}

func (NoopPacer) Wait(ctx context.Context) error { return ctx.Err() }
