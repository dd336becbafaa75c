// Package committee provides the query-by-committee agent.
//
// Each iteration it refits a committee ensemble on the labeled seed,
// predicts every remaining candidate and ranks them by a lower
// confidence bound: predicted value minus Alpha times the committee
// disagreement. Low predicted values are preferred, so the bound
// rewards both promising means and high uncertainty. A configurable
// fraction of the request exploits the top of the ranking; the rest
// explores uniformly at random.
package committee

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/quarry-labs/quarry-cli/internal/adapters/driven/modeling/linear"
	"github.com/quarry-labs/quarry-cli/internal/core/domain"
	"github.com/quarry-labs/quarry-cli/internal/core/ports/driven"
	"github.com/quarry-labs/quarry-cli/internal/core/services"
	"github.com/quarry-labs/quarry-cli/internal/logger"
)

// Ensure Agent implements the interface.
var _ driven.Agent = (*Agent)(nil)

// Config configures the committee agent.
type Config struct {
	// NQuery is how many candidates to request per iteration.
	NQuery int

	// Members is the committee size.
	Members int

	// TrainingFraction is the per-member subsample fraction, in (0, 1].
	TrainingFraction float64

	// Alpha weights the disagreement term in the acquisition bound.
	// Zero means pure exploitation of the predicted mean.
	Alpha float64

	// ExploitFraction is the share of NQuery taken from the top of the
	// acquisition ranking, in [0, 1]. The remainder is drawn uniformly
	// from the unranked rest.
	ExploitFraction float64

	// Factory produces committee member models. Defaults to the
	// least-squares linear regressor.
	Factory driven.RegressorFactory

	// EvaluateFullModel also computes a cross-validated error estimate
	// of the full-data model each refit, surfaced via verbose logging.
	EvaluateFullModel bool

	// Rand is the random source for subsampling and exploration.
	// Defaults to a time-seeded source.
	Rand *rand.Rand
}

// Agent selects candidates by committee disagreement.
type Agent struct {
	nQuery          int
	alpha           float64
	exploitFraction float64
	committee       *services.Committee
	rng             *rand.Rand
}

// New creates a committee agent.
func New(cfg Config) (*Agent, error) {
	if cfg.NQuery <= 0 {
		return nil, fmt.Errorf("%w: nQuery must be positive, got %d",
			domain.ErrInvalidInput, cfg.NQuery)
	}
	if cfg.Alpha < 0 {
		return nil, fmt.Errorf("%w: alpha must be non-negative, got %v",
			domain.ErrInvalidInput, cfg.Alpha)
	}
	if cfg.ExploitFraction < 0 || cfg.ExploitFraction > 1 {
		return nil, fmt.Errorf("%w: exploit fraction %v outside [0, 1]",
			domain.ErrInvalidInput, cfg.ExploitFraction)
	}

	if cfg.Factory == nil {
		cfg.Factory = linear.Factory()
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	ensemble, err := services.NewCommittee(services.CommitteeConfig{
		Members:           cfg.Members,
		TrainingFraction:  cfg.TrainingFraction,
		Factory:           cfg.Factory,
		EvaluateFullModel: cfg.EvaluateFullModel,
		Rand:              rng,
	})
	if err != nil {
		return nil, err
	}

	return &Agent{
		nQuery:          cfg.NQuery,
		alpha:           cfg.Alpha,
		exploitFraction: cfg.ExploitFraction,
		committee:       ensemble,
		rng:             rng,
	}, nil
}

// Select refits the committee on the labeled seed rows and returns up
// to nQuery candidate keys ranked by the acquisition bound.
func (a *Agent) Select(ctx context.Context, candidates, seed domain.Dataset) ([]string, error) {
	if candidates.Len() == 0 {
		return nil, nil
	}

	trainX, trainY := labeledRows(seed)
	if len(trainX) == 0 {
		return nil, fmt.Errorf("%w: seed has no labeled rows to train on",
			domain.ErrNotFitted)
	}

	if err := a.committee.Fit(trainX, trainY); err != nil {
		return nil, fmt.Errorf("fitting committee: %w", err)
	}
	if score := a.committee.HeldOutScore(); !math.IsNaN(score) {
		logger.Debug("committee held-out MAE: %.4f", score)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mean, std, err := a.committee.Predict(candidates.Features())
	if err != nil {
		return nil, fmt.Errorf("scoring candidates: %w", err)
	}

	keys := candidates.Keys()
	ranking := make([]int, len(keys))
	for i := range ranking {
		ranking[i] = i
	}
	sort.SliceStable(ranking, func(i, j int) bool {
		return acquisition(mean, std, a.alpha, ranking[i]) <
			acquisition(mean, std, a.alpha, ranking[j])
	})

	n := a.nQuery
	if n > len(keys) {
		n = len(keys)
	}
	nExploit := int(math.Round(a.exploitFraction * float64(n)))
	if nExploit > n {
		nExploit = n
	}

	selected := make([]string, 0, n)
	for _, idx := range ranking[:nExploit] {
		selected = append(selected, keys[idx])
	}

	// Fill the remainder with a uniform draw over the unranked tail.
	rest := ranking[nExploit:]
	for _, p := range a.rng.Perm(len(rest))[:n-nExploit] {
		selected = append(selected, keys[rest[p]])
	}

	logger.Debug("committee agent selected %d of %d candidates (%d exploit, %d explore)",
		len(selected), candidates.Len(), nExploit, n-nExploit)
	return selected, nil
}

// acquisition is the lower confidence bound for candidate i.
func acquisition(mean, std []float64, alpha float64, i int) float64 {
	return mean[i] - alpha*std[i]
}

// labeledRows extracts the feature matrix and labels of labeled rows.
func labeledRows(d domain.Dataset) ([][]float64, []float64) {
	var x [][]float64
	var y []float64
	for _, row := range d.Rows {
		if row.Labeled {
			x = append(x, row.Features)
			y = append(y, row.Label)
		}
	}
	return x, y
}
