package driven

import (
	"context"

	"github.com/quarry-labs/quarry-cli/internal/core/domain"
)

// CampaignStore persists campaign state for crash recovery and
// continuation across invocations.
//
// Save must be atomic: the previous snapshot stays intact until the new
// one is completely written (write-new-then-replace). A crash mid-save
// must never leave a half-written snapshot.
type CampaignStore interface {
	// Load restores the persisted campaign state.
	// Returns domain.ErrNotFound when no snapshot exists.
	Load(ctx context.Context) (*domain.CampaignState, error)

	// Save persists the full campaign state atomically.
	Save(ctx context.Context, state domain.CampaignState) error
}
