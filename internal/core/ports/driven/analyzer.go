package driven

import (
	"context"

	"github.com/quarry-labs/quarry-cli/internal/core/domain"
)

// Analyzer scores the accumulated labeled dataset against a domain
// objective after each iteration.
type Analyzer interface {
	// Analyze produces a summary of the campaign so far. It may also
	// return a revised candidate view (e.g. pruning disproven
	// candidates); returning the input candidates unchanged is valid.
	Analyze(
		ctx context.Context,
		seed, candidates domain.Dataset,
		history []domain.IterationRecord,
	) (domain.Summary, domain.Dataset, error)
}
