package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-labs/quarry-cli/internal/core/domain"
)

// TestCampaignStore_LoadEmpty tests the fresh-store path
func TestCampaignStore_LoadEmpty(t *testing.T) {
	store := NewCampaignStore()

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// TestCampaignStore_SaveLoad tests round-trip
func TestCampaignStore_SaveLoad(t *testing.T) {
	store := NewCampaignStore()
	state := domain.CampaignState{
		Iteration: 2,
		Seed:      domain.NewDataset([]string{"f"}, []domain.Row{{Key: "a", Labeled: true}}),
		History:   make([]domain.IterationRecord, 2),
	}

	require.NoError(t, store.Save(context.Background(), state))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state, *loaded)
}

// TestLedger_RecordHistoryPrune tests ledger behaviour
func TestLedger_RecordHistoryPrune(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, ledger.Record(ctx, domain.IterationRecord{
			ID:        string(rune('a' + i)),
			Iteration: i,
		}))
	}

	records, err := ledger.History(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 4, records[0].Iteration)

	require.NoError(t, ledger.Prune(ctx, 3))
	records, err = ledger.History(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

// TestLedger_RecordUpsert tests ID-based replacement
func TestLedger_RecordUpsert(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()

	require.NoError(t, ledger.Record(ctx, domain.IterationRecord{ID: "x", Iteration: 0}))
	require.NoError(t, ledger.Record(ctx, domain.IterationRecord{
		ID:        "x",
		Iteration: 0,
		Summary:   domain.Summary{TotalDiscoveries: 5},
	}))

	records, err := ledger.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 5, records[0].Summary.TotalDiscoveries)
}
