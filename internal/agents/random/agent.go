// Package random provides the uniform random baseline agent.
//
// It samples candidates without replacement and ignores the seed data
// entirely. Useful as a control strategy when measuring how much an
// informed agent actually buys.
package random

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/quarry-labs/quarry-cli/internal/core/domain"
	"github.com/quarry-labs/quarry-cli/internal/core/ports/driven"
)

// Ensure Agent implements the interface.
var _ driven.Agent = (*Agent)(nil)

// Agent selects candidates uniformly at random.
type Agent struct {
	nQuery int
	rng    *rand.Rand
}

// New creates a random agent requesting nQuery candidates per
// iteration. A nil rng falls back to a time-seeded source.
func New(nQuery int, rng *rand.Rand) (*Agent, error) {
	if nQuery <= 0 {
		return nil, fmt.Errorf("%w: nQuery must be positive, got %d",
			domain.ErrInvalidInput, nQuery)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Agent{nQuery: nQuery, rng: rng}, nil
}

// Select draws up to nQuery candidate keys without replacement.
func (a *Agent) Select(_ context.Context, candidates, _ domain.Dataset) ([]string, error) {
	return candidates.Sample(a.nQuery, a.rng), nil
}
