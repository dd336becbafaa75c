package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quarry-labs/quarry-cli/internal/core/domain"
	"github.com/quarry-labs/quarry-cli/internal/core/ports/driven"
	"github.com/quarry-labs/quarry-cli/internal/core/ports/driving"
	"github.com/quarry-labs/quarry-cli/internal/logger"
)

// ledgerRetention is how many iteration records the ledger keeps.
const ledgerRetention = 1000

// Ensure Campaign implements the interface.
var _ driving.CampaignRunner = (*Campaign)(nil)

// CampaignConfig holds the initial conditions of a campaign.
// Exactly one of the seeding modes must apply on a fresh start:
// CreateSeed > 0, or an explicit Seed/Candidates split. A restored
// snapshot takes precedence over both.
type CampaignConfig struct {
	// Pool is the full candidate pool. Required for CreateSeed.
	Pool domain.Dataset

	// CreateSeed draws this many pool rows (without replacement) as
	// the initial seed. Cleared after a snapshot restore.
	CreateSeed int

	// Seed and Candidates supply an explicit iteration-0 partition.
	Seed       *domain.Dataset
	Candidates *domain.Dataset

	// Rand is the random source for seed creation. Defaults to a
	// time-seeded source; tests inject a fixed seed.
	Rand *rand.Rand
}

// Campaign is the campaign loop controller. It owns the campaign state
// for the life of the process and is the only writer of the persisted
// snapshot. One iteration = select, evaluate, analyze, commit; the
// in-memory state is replaced only after the snapshot commit succeeds,
// so a crash mid-iteration leaves the previous snapshot intact and Run
// is safely re-invocable.
type Campaign struct {
	agent      driven.Agent
	experiment driven.Experiment
	analyzer   driven.Analyzer
	store      driven.CampaignStore
	ledger     driven.IterationLedger

	pool          domain.Dataset
	explicitSeed  *domain.Dataset
	explicitCands *domain.Dataset
	rng           *rand.Rand

	mu          sync.Mutex
	initialized bool
	restored    bool
	createSeed  int
	state       domain.CampaignState
}

// NewCampaign creates a campaign controller. The ledger is optional
// and may be nil; all other collaborators are required.
func NewCampaign(
	agent driven.Agent,
	experiment driven.Experiment,
	analyzer driven.Analyzer,
	store driven.CampaignStore,
	ledger driven.IterationLedger,
	cfg CampaignConfig,
) *Campaign {
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Campaign{
		agent:         agent,
		experiment:    experiment,
		analyzer:      analyzer,
		store:         store,
		ledger:        ledger,
		pool:          cfg.Pool,
		explicitSeed:  cfg.Seed,
		explicitCands: cfg.Candidates,
		createSeed:    cfg.CreateSeed,
		rng:           rng,
	}
}

// Initialize establishes or restores campaign state. Idempotent.
// A persisted snapshot always wins: it is restored as-is and any
// pending seed-creation request is cleared, which the returned flag
// makes observable to the caller.
func (c *Campaign) Initialize(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return c.restored, nil
	}

	state, err := c.store.Load(ctx)
	switch {
	case err == nil:
		c.state = *state
		c.createSeed = 0
		c.restored = true
		c.initialized = true
		logger.Info("Restored campaign at iteration %d (%d seed, %d candidates)",
			c.state.Iteration, c.state.Seed.Len(), c.state.Candidates.Len())
		return true, nil

	case !errors.Is(err, domain.ErrNotFound):
		return false, fmt.Errorf("load snapshot: %w", err)
	}

	state2, err := c.freshState()
	if err != nil {
		return false, err
	}

	if err := c.store.Save(ctx, *state2); err != nil {
		return false, fmt.Errorf("persist initial state: %w", err)
	}

	c.state = *state2
	c.createSeed = 0
	c.initialized = true
	logger.Info("Initialized campaign: %d seed, %d candidates",
		c.state.Seed.Len(), c.state.Candidates.Len())
	return false, nil
}

// freshState builds the iteration-0 partition from the configured
// seeding mode. Caller holds the lock.
func (c *Campaign) freshState() (*domain.CampaignState, error) {
	switch {
	case c.createSeed > 0:
		if c.pool.Len() == 0 {
			return nil, fmt.Errorf("create seed of %d from empty pool: %w",
				c.createSeed, domain.ErrConfiguration)
		}
		if c.createSeed > c.pool.Len() {
			return nil, fmt.Errorf("create seed of %d exceeds pool size %d: %w",
				c.createSeed, c.pool.Len(), domain.ErrConfiguration)
		}

		keys := c.pool.Sample(c.createSeed, c.rng)
		return &domain.CampaignState{
			Seed:       domain.NewDataset(c.pool.Columns, c.pool.Select(keys)),
			Candidates: c.pool.Without(keys...),
		}, nil

	case c.explicitSeed != nil && c.explicitCands != nil:
		if overlap := c.explicitSeed.Intersect(*c.explicitCands); len(overlap) > 0 {
			return nil, fmt.Errorf("seed and candidates overlap on %d keys: %w",
				len(overlap), domain.ErrConfiguration)
		}
		if c.explicitSeed.Len()+c.explicitCands.Len() == 0 {
			return nil, fmt.Errorf("empty seed and candidate data: %w",
				domain.ErrConfiguration)
		}

		return &domain.CampaignState{
			Seed:       *c.explicitSeed,
			Candidates: *c.explicitCands,
		}, nil

	default:
		return nil, fmt.Errorf("no snapshot, seed count or explicit partition: %w",
			domain.ErrConfiguration)
	}
}

// Run executes exactly one iteration.
//
//nolint:gocyclo // Orchestration function with necessary sequential steps
func (c *Campaign) Run(ctx context.Context) (*domain.IterationRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return nil, fmt.Errorf("run: %w", domain.ErrNotInitialized)
	}

	started := time.Now().UTC()

	// 1. SELECT
	selected, err := c.agent.Select(ctx, c.state.Candidates, c.state.Seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAgent, err)
	}
	for _, key := range selected {
		if !c.state.Candidates.Contains(key) {
			return nil, fmt.Errorf("%w: selected key %q not in candidate data",
				domain.ErrAgent, key)
		}
	}
	logger.Info("Iteration %d: agent selected %d of %d candidates",
		c.state.Iteration, len(selected), c.state.Candidates.Len())

	// 2. EVALUATE
	results, err := c.experiment.Evaluate(ctx, c.state.Candidates.Select(selected))
	if err != nil {
		return nil, fmt.Errorf("evaluate selection: %w", err)
	}

	// 3. TRANSITION (value-returning; nothing observable until commit)
	var acquired, failed []string
	var acquiredRows []domain.Row
	for _, key := range selected {
		res, ok := results[key]
		if !ok || res.Failed() {
			failed = append(failed, key)
			logger.Debug("Candidate %s failed: %s", key, res.Err)
			continue
		}
		row, _ := c.state.Candidates.Get(key)
		row.Label = res.Label
		row.Labeled = true
		acquiredRows = append(acquiredRows, row)
		acquired = append(acquired, key)
	}
	seed := c.state.Seed.With(acquiredRows...)
	candidates := c.state.Candidates.Without(selected...)

	// 4. ANALYZE
	summary, revised, err := c.analyzer.Analyze(ctx, seed, candidates, c.state.History)
	if err != nil {
		return nil, fmt.Errorf("analyze results: %w", err)
	}
	candidates = revised

	// 5. COMMIT
	rec := domain.IterationRecord{
		ID:        uuid.NewString(),
		Iteration: c.state.Iteration,
		Selected:  selected,
		Acquired:  acquired,
		Failed:    failed,
		Summary:   summary,
		StartedAt: started,
		EndedAt:   time.Now().UTC(),
	}
	history := make([]domain.IterationRecord, 0, len(c.state.History)+1)
	history = append(history, c.state.History...)
	history = append(history, rec)

	next := domain.CampaignState{
		Iteration:  c.state.Iteration + 1,
		Seed:       seed,
		Candidates: candidates,
		History:    history,
	}
	if err := c.store.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("commit iteration %d: %w", c.state.Iteration, err)
	}
	c.state = next

	// Ledger recording is best effort; the snapshot is authoritative.
	if c.ledger != nil {
		if err := c.ledger.Record(ctx, rec); err != nil {
			logger.Warn("Failed to record iteration %d in ledger: %v", rec.Iteration, err)
		}
		if err := c.ledger.Prune(ctx, ledgerRetention); err != nil {
			logger.Warn("Failed to prune ledger: %v", err)
		}
	}

	logger.Info("Iteration %d committed: %d acquired, %d failed, %d discoveries total",
		rec.Iteration, len(acquired), len(failed), summary.TotalDiscoveries)
	return &rec, nil
}

// AutoLoop repeatedly calls Run under the stopping policy in opts.
// The timeout is checked between iterations, so an in-flight iteration
// always runs to completion before the loop stops.
func (c *Campaign) AutoLoop(ctx context.Context, opts driving.AutoLoopOptions) (int, error) {
	if opts.Initialize {
		if _, err := c.Initialize(ctx); err != nil {
			return 0, err
		}
	}

	var deadline time.Time
	if opts.Timeout > 0 {
		deadline = time.Now().Add(opts.Timeout)
	}

	completed := 0
	for i := 0; i < opts.Iterations; i++ {
		select {
		case <-ctx.Done():
			return completed, ctx.Err()
		default:
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			logger.Info("Auto loop timed out after %d iterations", completed)
			return completed, nil
		}

		c.mu.Lock()
		initialized := c.initialized
		remaining := c.state.Candidates.Len()
		c.mu.Unlock()
		if !initialized {
			return completed, fmt.Errorf("auto loop: %w", domain.ErrNotInitialized)
		}
		if remaining == 0 {
			logger.Info("Auto loop stopped: candidates exhausted after %d iterations", completed)
			return completed, nil
		}

		if _, err := c.Run(ctx); err != nil {
			return completed, err
		}
		completed++
	}

	return completed, nil
}

// Status reports the campaign's current progress.
func (c *Campaign) Status(_ context.Context) (*driving.CampaignStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return &driving.CampaignStatus{
		Initialized:      c.initialized,
		Iteration:        c.state.Iteration,
		SeedSize:         c.state.Seed.Len(),
		CandidateSize:    c.state.Candidates.Len(),
		TotalDiscoveries: c.state.TotalDiscoveries(),
	}, nil
}

// SeedCreationPending reports whether an initial seed draw is still
// outstanding. It is cleared by Initialize in every path, including a
// snapshot restore that silently overrides the request.
func (c *Campaign) SeedCreationPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createSeed > 0
}
