package driven

import (
	"context"

	"github.com/quarry-labs/quarry-cli/internal/core/domain"
)

// Experiment is the oracle that evaluates selected candidates. It may
// be long-running; implementations should honour ctx cancellation.
type Experiment interface {
	// Evaluate produces a Result per selected row, keyed by candidate
	// key. Individual candidates may fail (Result.Err non-empty)
	// without failing the batch; a returned error aborts the whole
	// iteration instead.
	Evaluate(ctx context.Context, rows []domain.Row) (map[string]domain.Result, error)
}
