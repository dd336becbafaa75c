// Package driving defines the interfaces through which the outside
// world drives the core (the "primary" ports in hexagonal
// architecture). The CLI adapter consumes these.
package driving

import (
	"context"
	"time"

	"github.com/quarry-labs/quarry-cli/internal/core/domain"
)

// CampaignRunner drives an active-learning campaign.
type CampaignRunner interface {
	// Initialize establishes or restores campaign state. Idempotent.
	// The returned flag reports whether a persisted snapshot was
	// restored; in that case any caller-supplied seed-creation request
	// was ignored in favour of the restored state.
	Initialize(ctx context.Context) (restored bool, err error)

	// Run executes exactly one iteration: select, evaluate, analyze,
	// commit. Requires Initialize to have succeeded.
	Run(ctx context.Context) (*domain.IterationRecord, error)

	// AutoLoop repeatedly calls Run under a stopping policy and
	// returns the number of completed iterations.
	AutoLoop(ctx context.Context, opts AutoLoopOptions) (int, error)

	// Status reports the campaign's current progress.
	Status(ctx context.Context) (*CampaignStatus, error)
}

// AutoLoopOptions controls AutoLoop's stopping policy.
type AutoLoopOptions struct {
	// Iterations is the maximum number of iterations to run.
	Iterations int

	// Timeout bounds the whole loop. When it elapses the loop stops
	// gracefully after the in-flight iteration completes; no partial
	// iteration is ever persisted. Zero means no timeout.
	Timeout time.Duration

	// Initialize calls Initialize before the first iteration.
	Initialize bool
}

// CampaignStatus is a snapshot of campaign progress.
type CampaignStatus struct {
	// Initialized indicates the campaign is ready to run.
	Initialized bool

	// Iteration counts committed iterations.
	Iteration int

	// SeedSize is the number of labeled rows.
	SeedSize int

	// CandidateSize is the number of unevaluated rows.
	CandidateSize int

	// TotalDiscoveries is the analyzer's running discovery count.
	TotalDiscoveries int
}
