package services

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/quarry-labs/quarry-cli/internal/core/domain"
	"github.com/quarry-labs/quarry-cli/internal/core/ports/driven"
)

// crossValidationFolds is the fold count for the full-model error
// estimate. Clamped to the dataset size for tiny datasets.
const crossValidationFolds = 5

// CommitteeConfig configures a committee ensemble.
type CommitteeConfig struct {
	// Members is the committee size. Must be at least 1.
	Members int

	// TrainingFraction is the fraction of the fit dataset sampled per
	// member, in (0, 1]. Sampling is with replacement via random index
	// draw; each member's subsample is independent.
	TrainingFraction float64

	// Factory produces a fresh untrained model per member.
	Factory driven.RegressorFactory

	// EvaluateFullModel additionally estimates the error of one model
	// trained on the entire dataset via shuffled k-fold
	// cross-validation, reported by HeldOutScore.
	EvaluateFullModel bool

	// Rand is the random source for subsampling. Defaults to a
	// time-seeded source; a fixed seed makes Fit and Predict
	// reproducible.
	Rand *rand.Rand
}

// Committee estimates per-candidate prediction uncertainty by
// disagreement among independently resampled sub-models (query by
// committee). Each member carries its own feature scaler fitted on its
// own subsample, so no global scaling choice leaks across the
// ensemble.
type Committee struct {
	members           int
	fraction          float64
	factory           driven.RegressorFactory
	evaluateFullModel bool
	rng               *rand.Rand

	committee    []scaledModel
	trained      bool
	heldOutScore float64
}

// scaledModel pairs one fitted sub-model with the scaler fitted on its
// subsample. Immutable once fit.
type scaledModel struct {
	scaler *standardScaler
	model  driven.Regressor
}

// NewCommittee creates a committee ensemble.
func NewCommittee(cfg CommitteeConfig) (*Committee, error) {
	if cfg.Members < 1 {
		return nil, fmt.Errorf("committee needs at least 1 member, got %d: %w",
			cfg.Members, domain.ErrInvalidInput)
	}
	if cfg.TrainingFraction <= 0 || cfg.TrainingFraction > 1 {
		return nil, fmt.Errorf("training fraction %v outside (0, 1]: %w",
			cfg.TrainingFraction, domain.ErrInvalidInput)
	}
	if cfg.Factory == nil {
		return nil, fmt.Errorf("nil regressor factory: %w", domain.ErrInvalidInput)
	}

	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Committee{
		members:           cfg.Members,
		fraction:          cfg.TrainingFraction,
		factory:           cfg.Factory,
		evaluateFullModel: cfg.EvaluateFullModel,
		rng:               rng,
		heldOutScore:      math.NaN(),
	}, nil
}

// Fit trains the committee on X/y. Members and the held-out score are
// replaced wholesale; a committee is never partially refit.
func (c *Committee) Fit(x [][]float64, y []float64) error {
	if len(x) == 0 || len(x) != len(y) {
		return fmt.Errorf("fit with %d feature rows and %d labels: %w",
			len(x), len(y), domain.ErrNotFitted)
	}

	sampleSize := int(math.Round(c.fraction * float64(len(x))))
	if sampleSize < 1 {
		sampleSize = 1
	}

	// Indices are drawn sequentially so results are reproducible under
	// a fixed seed even though member fits run concurrently.
	draws := make([][]int, c.members)
	for m := range draws {
		idx := make([]int, sampleSize)
		for i := range idx {
			idx[i] = c.rng.Intn(len(x))
		}
		draws[m] = idx
	}

	members := make([]scaledModel, c.members)
	errs := make([]error, c.members)
	var wg sync.WaitGroup
	for m := 0; m < c.members; m++ {
		wg.Add(1)
		go func(m int) {
			defer wg.Done()
			subX, subY := gatherRows(x, y, draws[m])
			scaler := fitScaler(subX)
			model := c.factory()
			if err := model.Fit(scaler.transform(subX), subY); err != nil {
				errs[m] = fmt.Errorf("fit member %d: %w", m, err)
				return
			}
			members[m] = scaledModel{scaler: scaler, model: model}
		}(m)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	c.committee = members
	c.trained = true
	c.heldOutScore = math.NaN()

	if c.evaluateFullModel {
		score, err := c.crossValidate(x, y)
		if err != nil {
			return fmt.Errorf("held-out score: %w", err)
		}
		c.heldOutScore = score
	}

	return nil
}

// Predict applies every member to X and aggregates. Returns the
// elementwise mean and population standard deviation across members;
// the standard deviation is the disagreement-based uncertainty proxy.
func (c *Committee) Predict(x [][]float64) (mean, std []float64, err error) {
	if !c.trained {
		return nil, nil, fmt.Errorf("predict: %w", domain.ErrNotFitted)
	}

	preds := make([][]float64, len(c.committee))
	errs := make([]error, len(c.committee))
	var wg sync.WaitGroup
	for m := range c.committee {
		wg.Add(1)
		go func(m int) {
			defer wg.Done()
			member := c.committee[m]
			p, err := member.model.Predict(member.scaler.transform(x))
			if err != nil {
				errs[m] = fmt.Errorf("predict member %d: %w", m, err)
				return
			}
			preds[m] = p
		}(m)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, nil, err
		}
	}

	n := float64(len(c.committee))
	mean = make([]float64, len(x))
	std = make([]float64, len(x))
	for i := range x {
		var sum float64
		for m := range preds {
			sum += preds[m][i]
		}
		mean[i] = sum / n

		var variance float64
		for m := range preds {
			d := preds[m][i] - mean[i]
			variance += d * d
		}
		std[i] = math.Sqrt(variance / n)
	}
	return mean, std, nil
}

// Trained reports whether Fit has completed.
func (c *Committee) Trained() bool {
	return c.trained
}

// HeldOutScore returns the cross-validated mean absolute error of a
// model trained on the full dataset, or NaN when not computed.
func (c *Committee) HeldOutScore() float64 {
	return c.heldOutScore
}

// crossValidate estimates generalization error with shuffled k-fold
// cross-validation, returning the mean absolute error across folds as
// a positive magnitude.
func (c *Committee) crossValidate(x [][]float64, y []float64) (float64, error) {
	folds := crossValidationFolds
	if folds > len(x) {
		folds = len(x)
	}

	perm := c.rng.Perm(len(x))
	var total float64
	for f := 0; f < folds; f++ {
		lo := f * len(x) / folds
		hi := (f + 1) * len(x) / folds
		hold := perm[lo:hi]
		train := make([]int, 0, len(x)-len(hold))
		train = append(train, perm[:lo]...)
		train = append(train, perm[hi:]...)

		trainX, trainY := gatherRows(x, y, train)
		holdX, holdY := gatherRows(x, y, hold)

		scaler := fitScaler(trainX)
		model := c.factory()
		if err := model.Fit(scaler.transform(trainX), trainY); err != nil {
			return 0, fmt.Errorf("fit fold %d: %w", f, err)
		}
		preds, err := model.Predict(scaler.transform(holdX))
		if err != nil {
			return 0, fmt.Errorf("predict fold %d: %w", f, err)
		}

		var mae float64
		for i := range preds {
			mae += math.Abs(preds[i] - holdY[i])
		}
		total += mae / float64(len(preds))
	}

	return total / float64(folds), nil
}

// gatherRows extracts the rows of x and y at the given indices.
func gatherRows(x [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	outX := make([][]float64, len(idx))
	outY := make([]float64, len(idx))
	for i, j := range idx {
		outX[i] = x[j]
		outY[i] = y[j]
	}
	return outX, outY
}

// standardScaler normalizes features to zero mean and unit variance,
// column by column. Constant columns are passed through unscaled.
type standardScaler struct {
	mean  []float64
	scale []float64
}

// fitScaler computes per-column mean and standard deviation.
func fitScaler(x [][]float64) *standardScaler {
	if len(x) == 0 {
		return &standardScaler{}
	}

	cols := len(x[0])
	mean := make([]float64, cols)
	scale := make([]float64, cols)
	for j := 0; j < cols; j++ {
		var sum float64
		for i := range x {
			sum += x[i][j]
		}
		mean[j] = sum / float64(len(x))

		var variance float64
		for i := range x {
			d := x[i][j] - mean[j]
			variance += d * d
		}
		scale[j] = math.Sqrt(variance / float64(len(x)))
		if scale[j] == 0 {
			scale[j] = 1
		}
	}
	return &standardScaler{mean: mean, scale: scale}
}

// transform returns a scaled copy of x.
func (s *standardScaler) transform(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i := range x {
		row := make([]float64, len(x[i]))
		for j := range x[i] {
			row[j] = (x[i][j] - s.mean[j]) / s.scale[j]
		}
		out[i] = row
	}
	return out
}
