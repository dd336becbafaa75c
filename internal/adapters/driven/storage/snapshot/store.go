// Package snapshot persists campaign state as a JSON snapshot file.
//
// Saves are atomic: the new snapshot is written to a temporary file in
// the same directory and promoted with a rename, so the previous
// snapshot survives a crash at any point before the promotion.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/quarry-labs/quarry-cli/internal/core/domain"
	"github.com/quarry-labs/quarry-cli/internal/core/ports/driven"
)

// fileName is the snapshot file within the campaign directory.
const fileName = "campaign.json"

// Ensure Store implements the interface.
var _ driven.CampaignStore = (*Store)(nil)

// Store is a file-based implementation of driven.CampaignStore.
type Store struct {
	dir string
}

// NewStore creates a snapshot store rooted at the given campaign
// directory. If dir is empty, defaults to ~/.quarry/campaign.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, ".quarry", "campaign")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating campaign directory: %w", err)
	}

	return &Store{dir: dir}, nil
}

// Path returns the snapshot file path.
func (s *Store) Path() string {
	return filepath.Join(s.dir, fileName)
}

// Load restores the persisted campaign state.
// Returns domain.ErrNotFound when no snapshot exists.
func (s *Store) Load(_ context.Context) (*domain.CampaignState, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var state domain.CampaignState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &state, nil
}

// Save persists the full campaign state atomically.
func (s *Store) Save(_ context.Context, state domain.CampaignState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	// Write to a temp file in the target directory so the rename is
	// not a cross-device move.
	tmp, err := os.CreateTemp(s.dir, fileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, s.Path()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("promoting snapshot: %w", err)
	}
	return nil
}
