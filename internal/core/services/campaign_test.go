package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-labs/quarry-cli/internal/core/domain"
	"github.com/quarry-labs/quarry-cli/internal/core/ports/driving"
)

// --- Mock implementations for campaign testing ---

// mockAgent selects the first n candidate keys in pool order.
type mockAgent struct {
	n         int
	selectErr error
	override  []string
}

func (m *mockAgent) Select(_ context.Context, candidates, _ domain.Dataset) ([]string, error) {
	if m.selectErr != nil {
		return nil, m.selectErr
	}
	if m.override != nil {
		return m.override, nil
	}
	keys := candidates.Keys()
	if len(keys) > m.n {
		keys = keys[:m.n]
	}
	return keys, nil
}

// mockExperiment returns tabulated labels, failing configured keys.
type mockExperiment struct {
	labels   map[string]float64
	failKeys map[string]struct{}
	delay    time.Duration
	evalErr  error
}

func (m *mockExperiment) Evaluate(ctx context.Context, rows []domain.Row) (map[string]domain.Result, error) {
	if m.evalErr != nil {
		return nil, m.evalErr
	}
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	}

	results := make(map[string]domain.Result, len(rows))
	for _, row := range rows {
		if _, fail := m.failKeys[row.Key]; fail {
			results[row.Key] = domain.Result{Key: row.Key, Err: "evaluation failed"}
			continue
		}
		label, ok := m.labels[row.Key]
		if !ok {
			results[row.Key] = domain.Result{Key: row.Key, Err: "no tabulated value"}
			continue
		}
		results[row.Key] = domain.Result{Key: row.Key, Label: label}
	}
	return results, nil
}

// mockAnalyzer counts labeled rows at or below a threshold.
type mockAnalyzer struct {
	threshold  float64
	analyzeErr error
}

func (m *mockAnalyzer) Analyze(
	_ context.Context,
	seed, candidates domain.Dataset,
	history []domain.IterationRecord,
) (domain.Summary, domain.Dataset, error) {
	if m.analyzeErr != nil {
		return domain.Summary{}, candidates, m.analyzeErr
	}

	total := 0
	for _, row := range seed.Rows {
		if row.Labeled && row.Label <= m.threshold {
			total++
		}
	}
	previous := 0
	if len(history) > 0 {
		previous = history[len(history)-1].Summary.TotalDiscoveries
	}
	return domain.Summary{
		NewDiscoveries:   total - previous,
		TotalDiscoveries: total,
	}, candidates, nil
}

// mockStore is an in-memory CampaignStore with fault injection.
type mockStore struct {
	mu      sync.Mutex
	state   *domain.CampaignState
	saveErr error
	saves   int
}

func (m *mockStore) Load(_ context.Context) (*domain.CampaignState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return nil, domain.ErrNotFound
	}
	state := *m.state
	return &state, nil
}

func (m *mockStore) Save(_ context.Context, state domain.CampaignState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.state = &state
	m.saves++
	return nil
}

// mockLedger records iteration records, optionally failing.
type mockLedger struct {
	mu        sync.Mutex
	records   []domain.IterationRecord
	recordErr error
}

func (m *mockLedger) Record(_ context.Context, rec domain.IterationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *mockLedger) History(_ context.Context, limit int) ([]domain.IterationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := append([]domain.IterationRecord(nil), m.records...)
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (m *mockLedger) Prune(_ context.Context, _ int) error {
	return nil
}

// --- Helpers ---

func campaignPool(n int) (domain.Dataset, map[string]float64) {
	rows := make([]domain.Row, n)
	labels := make(map[string]float64, n)
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("mp-%d", i)
		rows[i] = domain.Row{
			Key:         key,
			Composition: fmt.Sprintf("X%dY", i%7),
			Features:    []float64{float64(i), float64(i % 13)},
		}
		labels[key] = float64(i%10) / 10.0
	}
	return domain.NewDataset([]string{"f1", "f2"}, rows), labels
}

func newTestCampaign(t *testing.T, poolSize, createSeed, nQuery int) (*Campaign, *mockStore, map[string]float64) {
	t.Helper()
	pool, labels := campaignPool(poolSize)
	store := &mockStore{}
	campaign := NewCampaign(
		&mockAgent{n: nQuery},
		&mockExperiment{labels: labels},
		&mockAnalyzer{threshold: 0.2},
		store,
		nil,
		CampaignConfig{
			Pool:       pool,
			CreateSeed: createSeed,
			Rand:       rand.New(rand.NewSource(42)),
		},
	)
	return campaign, store, labels
}

// assertPartition checks the seed/candidate partition invariant:
// disjoint, and together covering the pool minus permanent failures.
func assertPartition(t *testing.T, pool domain.Dataset, status *driving.CampaignStatus, state domain.CampaignState) {
	t.Helper()

	assert.Empty(t, state.Seed.Intersect(state.Candidates), "seed and candidates must be disjoint")

	failed := 0
	for _, rec := range state.History {
		failed += len(rec.Failed)
	}
	assert.Equal(t, pool.Len()-failed, state.Seed.Len()+state.Candidates.Len())
	assert.Equal(t, state.Iteration, len(state.History))
	assert.Equal(t, status.SeedSize, state.Seed.Len())
	assert.Equal(t, status.CandidateSize, state.Candidates.Len())
}

// --- Initialize ---

// TestCampaign_InitializeCreateSeed tests the fresh seed-draw path
func TestCampaign_InitializeCreateSeed(t *testing.T) {
	campaign, store, _ := newTestCampaign(t, 100, 10, 5)

	restored, err := campaign.Initialize(context.Background())
	require.NoError(t, err)
	assert.False(t, restored)
	assert.False(t, campaign.SeedCreationPending())

	status, err := campaign.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Initialized)
	assert.Equal(t, 0, status.Iteration)
	assert.Equal(t, 10, status.SeedSize)
	assert.Equal(t, 90, status.CandidateSize)

	// The initial partition is persisted immediately.
	assert.Equal(t, 1, store.saves)
}

// TestCampaign_InitializeExplicitPartition tests caller-supplied split
func TestCampaign_InitializeExplicitPartition(t *testing.T) {
	pool, labels := campaignPool(50)
	seed := domain.NewDataset(pool.Columns, pool.Rows[:8])
	candidates := domain.NewDataset(pool.Columns, pool.Rows[8:])

	campaign := NewCampaign(
		&mockAgent{n: 3},
		&mockExperiment{labels: labels},
		&mockAnalyzer{threshold: 0.2},
		&mockStore{},
		nil,
		CampaignConfig{Seed: &seed, Candidates: &candidates},
	)

	restored, err := campaign.Initialize(context.Background())
	require.NoError(t, err)
	assert.False(t, restored)

	status, err := campaign.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, status.SeedSize)
	assert.Equal(t, 42, status.CandidateSize)
}

// TestCampaign_InitializeOverlapFails tests the disjointness check
func TestCampaign_InitializeOverlapFails(t *testing.T) {
	pool, labels := campaignPool(20)
	seed := domain.NewDataset(pool.Columns, pool.Rows[:5])
	candidates := domain.NewDataset(pool.Columns, pool.Rows[3:]) // rows 3,4 overlap

	campaign := NewCampaign(
		&mockAgent{n: 3},
		&mockExperiment{labels: labels},
		&mockAnalyzer{threshold: 0.2},
		&mockStore{},
		nil,
		CampaignConfig{Seed: &seed, Candidates: &candidates},
	)

	_, err := campaign.Initialize(context.Background())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

// TestCampaign_InitializeWithoutSeedModeFails tests missing parameters
func TestCampaign_InitializeWithoutSeedModeFails(t *testing.T) {
	pool, labels := campaignPool(20)

	campaign := NewCampaign(
		&mockAgent{n: 3},
		&mockExperiment{labels: labels},
		&mockAnalyzer{threshold: 0.2},
		&mockStore{},
		nil,
		CampaignConfig{Pool: pool},
	)

	_, err := campaign.Initialize(context.Background())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

// TestCampaign_InitializeSeedLargerThanPoolFails tests bounds checking
func TestCampaign_InitializeSeedLargerThanPoolFails(t *testing.T) {
	campaign, _, _ := newTestCampaign(t, 10, 11, 2)

	_, err := campaign.Initialize(context.Background())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

// TestCampaign_InitializeIdempotent tests repeated initialization
func TestCampaign_InitializeIdempotent(t *testing.T) {
	campaign, store, _ := newTestCampaign(t, 100, 10, 5)

	_, err := campaign.Initialize(context.Background())
	require.NoError(t, err)
	first, err := campaign.Status(context.Background())
	require.NoError(t, err)

	_, err = campaign.Initialize(context.Background())
	require.NoError(t, err)
	second, err := campaign.Status(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.saves)
}

// TestCampaign_RestoreWinsOverCreateSeed tests that a persisted
// snapshot silently overrides a seed-creation request, observable via
// the restored flag and the cleared pending request.
func TestCampaign_RestoreWinsOverCreateSeed(t *testing.T) {
	pool, labels := campaignPool(60)
	store := &mockStore{
		state: &domain.CampaignState{
			Iteration:  4,
			Seed:       domain.NewDataset(pool.Columns, pool.Rows[:30]),
			Candidates: domain.NewDataset(pool.Columns, pool.Rows[30:]),
			History:    make([]domain.IterationRecord, 4),
		},
	}

	campaign := NewCampaign(
		&mockAgent{n: 3},
		&mockExperiment{labels: labels},
		&mockAnalyzer{threshold: 0.2},
		store,
		nil,
		CampaignConfig{Pool: pool, CreateSeed: 10},
	)
	require.True(t, campaign.SeedCreationPending())

	restored, err := campaign.Initialize(context.Background())
	require.NoError(t, err)
	assert.True(t, restored)
	assert.False(t, campaign.SeedCreationPending())

	status, err := campaign.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, status.Iteration)
	assert.Equal(t, 30, status.SeedSize)
}

// TestCampaign_IdempotentRestore tests restoring twice from the same
// snapshot yields identical state.
func TestCampaign_IdempotentRestore(t *testing.T) {
	campaign, store, labels := newTestCampaign(t, 80, 10, 5)
	_, err := campaign.Initialize(context.Background())
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = campaign.Run(context.Background())
		require.NoError(t, err)
	}

	pool, _ := campaignPool(80)
	build := func() *Campaign {
		return NewCampaign(
			&mockAgent{n: 5},
			&mockExperiment{labels: labels},
			&mockAnalyzer{threshold: 0.2},
			store,
			nil,
			CampaignConfig{Pool: pool},
		)
	}

	first := build()
	_, err = first.Initialize(context.Background())
	require.NoError(t, err)
	second := build()
	_, err = second.Initialize(context.Background())
	require.NoError(t, err)

	firstStatus, err := first.Status(context.Background())
	require.NoError(t, err)
	secondStatus, err := second.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, firstStatus, secondStatus)
	assert.Equal(t, 2, firstStatus.Iteration)
}

// --- Run ---

// TestCampaign_RunRequiresInitialize tests the programmer-error guard
func TestCampaign_RunRequiresInitialize(t *testing.T) {
	campaign, _, _ := newTestCampaign(t, 20, 5, 2)

	_, err := campaign.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
}

// TestCampaign_RunMovesSelectionToSeed tests one full iteration
func TestCampaign_RunMovesSelectionToSeed(t *testing.T) {
	campaign, store, _ := newTestCampaign(t, 40, 10, 4)
	_, err := campaign.Initialize(context.Background())
	require.NoError(t, err)

	rec, err := campaign.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, 0, rec.Iteration)
	assert.Len(t, rec.Selected, 4)
	assert.Equal(t, rec.Selected, rec.Acquired)
	assert.Empty(t, rec.Failed)
	assert.NotEmpty(t, rec.ID)

	status, err := campaign.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, status.Iteration)
	assert.Equal(t, 14, status.SeedSize)
	assert.Equal(t, 26, status.CandidateSize)

	pool, _ := campaignPool(40)
	assertPartition(t, pool, status, *store.state)

	// Acquired rows carry their labels.
	for _, key := range rec.Acquired {
		row, ok := store.state.Seed.Get(key)
		require.True(t, ok)
		assert.True(t, row.Labeled)
	}
}

// TestCampaign_RunAgentErrorAbortsWithoutMutation tests AgentError paths
func TestCampaign_RunAgentErrorAbortsWithoutMutation(t *testing.T) {
	tests := []struct {
		name  string
		agent *mockAgent
	}{
		{name: "agent returns error", agent: &mockAgent{selectErr: errors.New("model exploded")}},
		{name: "agent selects unknown key", agent: &mockAgent{override: []string{"not-a-candidate"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, labels := campaignPool(30)
			store := &mockStore{}
			campaign := NewCampaign(
				tt.agent,
				&mockExperiment{labels: labels},
				&mockAnalyzer{threshold: 0.2},
				store,
				nil,
				CampaignConfig{Pool: pool, CreateSeed: 5, Rand: rand.New(rand.NewSource(1))},
			)
			_, err := campaign.Initialize(context.Background())
			require.NoError(t, err)
			before, err := campaign.Status(context.Background())
			require.NoError(t, err)

			_, err = campaign.Run(context.Background())
			assert.ErrorIs(t, err, domain.ErrAgent)

			after, err := campaign.Status(context.Background())
			require.NoError(t, err)
			assert.Equal(t, before, after, "failed run must not mutate state")
		})
	}
}

// TestCampaign_RunRecordsPerCandidateFailures tests that failed
// candidates are removed from the pool without aborting the iteration.
func TestCampaign_RunRecordsPerCandidateFailures(t *testing.T) {
	pool, labels := campaignPool(30)
	failKey := pool.Rows[0].Key
	store := &mockStore{}
	campaign := NewCampaign(
		&mockAgent{override: []string{pool.Rows[0].Key, pool.Rows[1].Key, pool.Rows[2].Key}},
		&mockExperiment{labels: labels, failKeys: map[string]struct{}{failKey: {}}},
		&mockAnalyzer{threshold: 0.2},
		store,
		nil,
		CampaignConfig{Pool: pool, CreateSeed: 5, Rand: rand.New(rand.NewSource(9))},
	)
	_, err := campaign.Initialize(context.Background())
	require.NoError(t, err)

	// The deterministic seed draw may have taken some of the override
	// keys; re-point the agent at actual candidates.
	agent := campaign.agent.(*mockAgent)
	agent.override = store.state.Candidates.Keys()[:3]
	failKey = agent.override[0]
	exp := campaign.experiment.(*mockExperiment)
	exp.failKeys = map[string]struct{}{failKey: {}}

	rec, err := campaign.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{failKey}, rec.Failed)
	assert.Len(t, rec.Acquired, 2)
	assert.False(t, store.state.Seed.Contains(failKey))
	assert.False(t, store.state.Candidates.Contains(failKey))

	status, err := campaign.Status(context.Background())
	require.NoError(t, err)
	assertPartition(t, pool, status, *store.state)
}

// TestCampaign_CommitFailureLeavesSnapshotIntact tests the
// at-most-one-iteration-applied guarantee under a simulated crash at
// the persist step.
func TestCampaign_CommitFailureLeavesSnapshotIntact(t *testing.T) {
	campaign, store, _ := newTestCampaign(t, 40, 10, 4)
	_, err := campaign.Initialize(context.Background())
	require.NoError(t, err)
	_, err = campaign.Run(context.Background())
	require.NoError(t, err)

	persistedBefore := *store.state
	store.saveErr = errors.New("disk full")

	_, err = campaign.Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, persistedBefore.Iteration, store.state.Iteration)
	status, err := campaign.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, persistedBefore.Iteration, status.Iteration,
		"in-memory state must match last committed snapshot")

	// Run is safely re-invocable once the fault clears.
	store.saveErr = nil
	_, err = campaign.Run(context.Background())
	require.NoError(t, err)
	status, err = campaign.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, persistedBefore.Iteration+1, status.Iteration)
}

// TestCampaign_LedgerFailureDoesNotAbort tests best-effort recording
func TestCampaign_LedgerFailureDoesNotAbort(t *testing.T) {
	pool, labels := campaignPool(30)
	ledger := &mockLedger{recordErr: errors.New("ledger offline")}
	campaign := NewCampaign(
		&mockAgent{n: 3},
		&mockExperiment{labels: labels},
		&mockAnalyzer{threshold: 0.2},
		&mockStore{},
		ledger,
		CampaignConfig{Pool: pool, CreateSeed: 5, Rand: rand.New(rand.NewSource(3))},
	)
	_, err := campaign.Initialize(context.Background())
	require.NoError(t, err)

	_, err = campaign.Run(context.Background())
	assert.NoError(t, err)
}

// --- Scenarios from the campaign requirements ---

// TestCampaign_EndToEndScenario tests 3 iterations over a 200-row pool
func TestCampaign_EndToEndScenario(t *testing.T) {
	campaign, store, _ := newTestCampaign(t, 200, 20, 5)
	ledger := &mockLedger{}
	campaign.ledger = ledger

	_, err := campaign.Initialize(context.Background())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = campaign.Run(context.Background())
		require.NoError(t, err)
	}

	status, err := campaign.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, status.Iteration)
	assert.Equal(t, 35, status.SeedSize)
	assert.Equal(t, 165, status.CandidateSize)
	assert.Len(t, store.state.History, 3)
	assert.Len(t, ledger.records, 3)

	pool, _ := campaignPool(200)
	assertPartition(t, pool, status, *store.state)

	// Seed growth is monotonic and iterations increment by one.
	for i, rec := range store.state.History {
		assert.Equal(t, i, rec.Iteration)
	}
}

// TestCampaign_ContinuationScenario tests resuming from persisted state
func TestCampaign_ContinuationScenario(t *testing.T) {
	campaign, store, labels := newTestCampaign(t, 200, 20, 5)
	_, err := campaign.Initialize(context.Background())
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = campaign.Run(context.Background())
		require.NoError(t, err)
	}

	// New controller over the same store, no seed creation requested.
	pool, _ := campaignPool(200)
	resumed := NewCampaign(
		&mockAgent{n: 5},
		&mockExperiment{labels: labels},
		&mockAnalyzer{threshold: 0.2},
		store,
		nil,
		CampaignConfig{Pool: pool},
	)

	restored, err := resumed.Initialize(context.Background())
	require.NoError(t, err)
	assert.True(t, restored)

	status, err := resumed.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Initialized)
	assert.Equal(t, 3, status.Iteration)

	_, err = resumed.Run(context.Background())
	require.NoError(t, err)
	status, err = resumed.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, status.Iteration)
}

// --- AutoLoop ---

// TestCampaign_AutoLoopRunsRequestedIterations tests the happy path
func TestCampaign_AutoLoopRunsRequestedIterations(t *testing.T) {
	campaign, _, _ := newTestCampaign(t, 100, 10, 5)

	completed, err := campaign.AutoLoop(context.Background(), driving.AutoLoopOptions{
		Iterations: 4,
		Initialize: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, completed)

	status, err := campaign.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, status.Iteration)
}

// TestCampaign_AutoLoopStopsWhenCandidatesExhausted tests early stop
func TestCampaign_AutoLoopStopsWhenCandidatesExhausted(t *testing.T) {
	campaign, _, _ := newTestCampaign(t, 12, 2, 5)

	completed, err := campaign.AutoLoop(context.Background(), driving.AutoLoopOptions{
		Iterations: 10,
		Initialize: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, completed)

	status, err := campaign.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, status.CandidateSize)
	assert.Equal(t, 12, status.SeedSize)
}

// TestCampaign_AutoLoopTimeoutFinishesInFlightIteration tests graceful
// timeout: the in-flight iteration commits, nothing partial persists.
func TestCampaign_AutoLoopTimeoutFinishesInFlightIteration(t *testing.T) {
	pool, labels := campaignPool(50)
	store := &mockStore{}
	campaign := NewCampaign(
		&mockAgent{n: 2},
		&mockExperiment{labels: labels, delay: 60 * time.Millisecond},
		&mockAnalyzer{threshold: 0.2},
		store,
		nil,
		CampaignConfig{Pool: pool, CreateSeed: 5, Rand: rand.New(rand.NewSource(5))},
	)

	completed, err := campaign.AutoLoop(context.Background(), driving.AutoLoopOptions{
		Iterations: 5,
		Timeout:    30 * time.Millisecond,
		Initialize: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, completed)

	// The committed snapshot reflects exactly the completed iteration.
	assert.Equal(t, 1, store.state.Iteration)
	assert.Len(t, store.state.History, 1)
}

// TestCampaign_AutoLoopRequiresInitialize tests the uninitialized guard
func TestCampaign_AutoLoopRequiresInitialize(t *testing.T) {
	campaign, _, _ := newTestCampaign(t, 20, 5, 2)

	_, err := campaign.AutoLoop(context.Background(), driving.AutoLoopOptions{Iterations: 2})
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
}

// TestCampaign_AutoLoopHonoursContextCancellation tests cancellation
func TestCampaign_AutoLoopHonoursContextCancellation(t *testing.T) {
	campaign, _, _ := newTestCampaign(t, 50, 5, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	completed, err := campaign.AutoLoop(ctx, driving.AutoLoopOptions{
		Iterations: 3,
		Initialize: true,
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, completed)
}
