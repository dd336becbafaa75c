package driven

import (
	"context"

	"github.com/quarry-labs/quarry-cli/internal/core/domain"
)

// Agent is a hypothesis-selection strategy. Implementations range from
// uniform random baselines to committee-based uncertainty sampling.
type Agent interface {
	// Select returns the keys of the candidates to evaluate next.
	// Every returned key must be present in candidates; the count may
	// be anything from zero to the full candidate set. Seed data is
	// read-only context for the strategy.
	Select(ctx context.Context, candidates, seed domain.Dataset) ([]string, error)
}
