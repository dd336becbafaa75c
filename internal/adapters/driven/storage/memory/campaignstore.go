// Package memory provides in-memory storage adapters, used by tests
// and ephemeral (non-resumable) campaigns.
package memory

import (
	"context"
	"sync"

	"github.com/quarry-labs/quarry-cli/internal/core/domain"
	"github.com/quarry-labs/quarry-cli/internal/core/ports/driven"
)

// Ensure CampaignStore implements the interface.
var _ driven.CampaignStore = (*CampaignStore)(nil)

// CampaignStore is an in-memory implementation of driven.CampaignStore.
type CampaignStore struct {
	mu    sync.RWMutex
	state *domain.CampaignState
}

// NewCampaignStore creates a new in-memory campaign store.
func NewCampaignStore() *CampaignStore {
	return &CampaignStore{}
}

// Load restores the stored campaign state.
// Returns domain.ErrNotFound when nothing has been saved.
func (s *CampaignStore) Load(_ context.Context) (*domain.CampaignState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return nil, domain.ErrNotFound
	}
	state := *s.state
	return &state, nil
}

// Save replaces the stored campaign state.
func (s *CampaignStore) Save(_ context.Context, state domain.CampaignState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = &state
	return nil
}
