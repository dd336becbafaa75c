// Package throttle wraps an experiment with a request rate limit.
//
// Real oracles sit behind shared compute queues or external APIs that
// cannot absorb back-to-back campaign iterations. The wrapper gates
// each Evaluate call on a token bucket so auto loops stay within
// whatever budget the backend allows.
package throttle

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/quarry-labs/quarry-cli/internal/core/domain"
	"github.com/quarry-labs/quarry-cli/internal/core/ports/driven"
	"github.com/quarry-labs/quarry-cli/internal/logger"
)

// Ensure Experiment implements the interface.
var _ driven.Experiment = (*Experiment)(nil)

// Experiment rate-limits a wrapped experiment.
type Experiment struct {
	inner  driven.Experiment
	bucket *rate.Limiter
}

// New wraps inner with a token bucket admitting evaluationsPerSecond
// calls with the given burst capacity.
func New(inner driven.Experiment, evaluationsPerSecond float64, burst int) (*Experiment, error) {
	if inner == nil {
		return nil, fmt.Errorf("%w: nil inner experiment", domain.ErrInvalidInput)
	}
	if evaluationsPerSecond <= 0 || burst < 1 {
		return nil, fmt.Errorf("%w: rate %v/s with burst %d",
			domain.ErrInvalidInput, evaluationsPerSecond, burst)
	}

	return &Experiment{
		inner:  inner,
		bucket: rate.NewLimiter(rate.Limit(evaluationsPerSecond), burst),
	}, nil
}

// Evaluate waits for a token, then delegates to the wrapped experiment.
// A cancelled context aborts the wait.
func (e *Experiment) Evaluate(ctx context.Context, rows []domain.Row) (map[string]domain.Result, error) {
	if !e.bucket.Allow() {
		logger.Debug("experiment throttled, waiting for rate limit")
		if err := e.bucket.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limit: %w", err)
		}
	}
	return e.inner.Evaluate(ctx, rows)
}
