package services

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-labs/quarry-cli/internal/core/domain"
	"github.com/quarry-labs/quarry-cli/internal/core/ports/driven"
)

// meanRegressor predicts the mean of its training targets. It is
// deterministic, which the reproducibility tests rely on.
type meanRegressor struct {
	mean   float64
	fitted bool
	fitErr error
}

func (m *meanRegressor) Fit(_ [][]float64, y []float64) error {
	if m.fitErr != nil {
		return m.fitErr
	}
	var sum float64
	for _, v := range y {
		sum += v
	}
	m.mean = sum / float64(len(y))
	m.fitted = true
	return nil
}

func (m *meanRegressor) Predict(x [][]float64) ([]float64, error) {
	if !m.fitted {
		return nil, errors.New("mean regressor not fitted")
	}
	out := make([]float64, len(x))
	for i := range out {
		out[i] = m.mean
	}
	return out, nil
}

func meanFactory() driven.Regressor {
	return &meanRegressor{}
}

func committeeData(n int) ([][]float64, []float64) {
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = []float64{float64(i), float64(i % 7)}
		y[i] = float64(i%10) / 10.0
	}
	return x, y
}

// TestNewCommittee_Validation tests constructor parameter checks
func TestNewCommittee_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  CommitteeConfig
	}{
		{name: "zero members", cfg: CommitteeConfig{Members: 0, TrainingFraction: 0.5, Factory: meanFactory}},
		{name: "negative members", cfg: CommitteeConfig{Members: -2, TrainingFraction: 0.5, Factory: meanFactory}},
		{name: "zero fraction", cfg: CommitteeConfig{Members: 3, TrainingFraction: 0, Factory: meanFactory}},
		{name: "fraction above one", cfg: CommitteeConfig{Members: 3, TrainingFraction: 1.1, Factory: meanFactory}},
		{name: "nil factory", cfg: CommitteeConfig{Members: 3, TrainingFraction: 0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCommittee(tt.cfg)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

// TestCommittee_FitRejectsBadInput tests empty and mismatched data
func TestCommittee_FitRejectsBadInput(t *testing.T) {
	committee, err := NewCommittee(CommitteeConfig{
		Members:          2,
		TrainingFraction: 0.5,
		Factory:          meanFactory,
	})
	require.NoError(t, err)

	assert.ErrorIs(t, committee.Fit(nil, nil), domain.ErrNotFitted)
	assert.ErrorIs(t, committee.Fit([][]float64{{1}}, []float64{1, 2}), domain.ErrNotFitted)
	assert.False(t, committee.Trained())
}

// TestCommittee_PredictBeforeFit tests the NotFitted guard
func TestCommittee_PredictBeforeFit(t *testing.T) {
	committee, err := NewCommittee(CommitteeConfig{
		Members:          2,
		TrainingFraction: 0.5,
		Factory:          meanFactory,
	})
	require.NoError(t, err)

	_, _, err = committee.Predict([][]float64{{1, 2}})
	assert.ErrorIs(t, err, domain.ErrNotFitted)
}

// TestCommittee_SingleMemberHasZeroStd tests the degenerate ensemble
func TestCommittee_SingleMemberHasZeroStd(t *testing.T) {
	x, y := committeeData(40)
	committee, err := NewCommittee(CommitteeConfig{
		Members:          1,
		TrainingFraction: 0.8,
		Factory:          meanFactory,
		Rand:             rand.New(rand.NewSource(11)),
	})
	require.NoError(t, err)
	require.NoError(t, committee.Fit(x, y))

	_, std, err := committee.Predict(x[:10])
	require.NoError(t, err)
	for i, s := range std {
		assert.Zero(t, s, "std[%d] must be zero for a single member", i)
	}
}

// TestCommittee_DeterministicUnderFixedSeed tests reproducibility:
// same seed, same data, identical (mean, std) across two runs.
func TestCommittee_DeterministicUnderFixedSeed(t *testing.T) {
	x, y := committeeData(100)
	query := x[:25]

	runOnce := func() ([]float64, []float64) {
		committee, err := NewCommittee(CommitteeConfig{
			Members:          3,
			TrainingFraction: 0.5,
			Factory:          meanFactory,
			Rand:             rand.New(rand.NewSource(1234)),
		})
		require.NoError(t, err)
		require.NoError(t, committee.Fit(x, y))
		mean, std, err := committee.Predict(query)
		require.NoError(t, err)
		return mean, std
	}

	mean1, std1 := runOnce()
	mean2, std2 := runOnce()

	assert.Equal(t, mean1, mean2)
	assert.Equal(t, std1, std2)
}

// TestCommittee_DisagreementIsPositive tests that independent
// subsamples produce nonzero disagreement on varied targets.
func TestCommittee_DisagreementIsPositive(t *testing.T) {
	x, y := committeeData(100)
	committee, err := NewCommittee(CommitteeConfig{
		Members:          5,
		TrainingFraction: 0.3,
		Factory:          meanFactory,
		Rand:             rand.New(rand.NewSource(2)),
	})
	require.NoError(t, err)
	require.NoError(t, committee.Fit(x, y))

	_, std, err := committee.Predict(x[:5])
	require.NoError(t, err)

	var total float64
	for _, s := range std {
		assert.GreaterOrEqual(t, s, 0.0)
		total += s
	}
	assert.Greater(t, total, 0.0, "committee members should disagree")
}

// TestCommittee_HeldOutScore tests the full-model cross-validation path
func TestCommittee_HeldOutScore(t *testing.T) {
	x, _ := committeeData(50)
	constant := make([]float64, len(x))
	for i := range constant {
		constant[i] = 2.0
	}

	committee, err := NewCommittee(CommitteeConfig{
		Members:           2,
		TrainingFraction:  0.5,
		Factory:           meanFactory,
		EvaluateFullModel: true,
		Rand:              rand.New(rand.NewSource(3)),
	})
	require.NoError(t, err)

	// Before fit, the score is not available.
	assert.True(t, math.IsNaN(committee.HeldOutScore()))

	require.NoError(t, committee.Fit(x, constant))

	// A constant target is learned perfectly by the mean regressor.
	assert.InDelta(t, 0.0, committee.HeldOutScore(), 1e-12)
}

// TestCommittee_HeldOutScoreSkippedWithoutFlag tests the default path
func TestCommittee_HeldOutScoreSkippedWithoutFlag(t *testing.T) {
	x, y := committeeData(30)
	committee, err := NewCommittee(CommitteeConfig{
		Members:          2,
		TrainingFraction: 0.5,
		Factory:          meanFactory,
		Rand:             rand.New(rand.NewSource(4)),
	})
	require.NoError(t, err)
	require.NoError(t, committee.Fit(x, y))

	assert.True(t, math.IsNaN(committee.HeldOutScore()))
}

// TestCommittee_RefitReplacesMembers tests wholesale replacement
func TestCommittee_RefitReplacesMembers(t *testing.T) {
	x, y := committeeData(40)
	committee, err := NewCommittee(CommitteeConfig{
		Members:          3,
		TrainingFraction: 0.6,
		Factory:          meanFactory,
		Rand:             rand.New(rand.NewSource(8)),
	})
	require.NoError(t, err)
	require.NoError(t, committee.Fit(x, y))
	first := committee.committee

	require.NoError(t, committee.Fit(x, y))
	second := committee.committee

	require.Len(t, second, 3)
	for i := range second {
		assert.NotSame(t, first[i].model, second[i].model)
	}
}

// TestCommittee_FitPropagatesModelErrors tests member fit failure
func TestCommittee_FitPropagatesModelErrors(t *testing.T) {
	x, y := committeeData(20)
	failing := func() driven.Regressor {
		return &meanRegressor{fitErr: errors.New("singular matrix")}
	}

	committee, err := NewCommittee(CommitteeConfig{
		Members:          2,
		TrainingFraction: 0.5,
		Factory:          failing,
		Rand:             rand.New(rand.NewSource(6)),
	})
	require.NoError(t, err)

	err = committee.Fit(x, y)
	assert.ErrorContains(t, err, "singular matrix")
	assert.False(t, committee.Trained())
}

// TestFitScaler tests standardization including constant columns
func TestFitScaler(t *testing.T) {
	x := [][]float64{
		{1, 5, 3},
		{3, 5, 3},
		{5, 5, 3},
	}

	scaler := fitScaler(x)
	out := scaler.transform(x)

	// First column standardizes to mean 0.
	var sum float64
	for i := range out {
		sum += out[i][0]
	}
	assert.InDelta(t, 0.0, sum, 1e-12)

	// Constant columns pass through centred but unscaled.
	for i := range out {
		assert.InDelta(t, 0.0, out[i][1], 1e-12)
		assert.InDelta(t, 0.0, out[i][2], 1e-12)
	}
}
